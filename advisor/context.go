package advisor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

// Context is what a rule sees: the configuration under test, the profile
// it is meant to run on and the active policy.
type Context struct {
	Props   *model.PropertySet
	Profile model.Profile
	Policy  Policy
	// Partial marks an isolated snippet; rules about missing keys stay quiet.
	Partial bool

	syntax   []model.Finding
	reported map[string]bool
}

func newContext(props *model.PropertySet, profile model.Profile, policy Policy, partial bool) *Context {
	return &Context{
		Props:    props,
		Profile:  profile,
		Policy:   policy,
		Partial:  partial,
		reported: make(map[string]bool),
	}
}

// Finding builds a finding whose origin is the first key's origin.
func (c *Context) Finding(rule string, sev model.Severity, keys []string, suggestion string, format string, args ...interface{}) model.Finding {
	f := model.Finding{
		Rule:       rule,
		Severity:   sev,
		Keys:       keys,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestion,
	}
	for _, k := range keys {
		if prop, ok := c.Props.Get(k); ok {
			f.Origin = prop.Origin
			break
		}
	}
	return f
}

func (c *Context) invalid(key string, err error) {
	if c.reported[key] {
		return
	}
	c.reported[key] = true
	c.syntax = append(c.syntax, c.Finding(RuleSyntax, model.SeverityCritical, []string{key}, "",
		"%s has an unparseable value %q: %v", key, c.Props.Value(key), err))
}

func (c *Context) raw(key string) (string, bool) {
	prop, ok := c.Props.Get(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(prop.Value), true
}

// Int reads an integer value. Absent keys return false; invalid ones are
// reported as syntax findings and also return false.
func (c *Context) Int(key string) (int64, bool) {
	s, ok := c.raw(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.invalid(key, err)
		return 0, false
	}
	return n, true
}

// IntOr returns the explicit value, or def when the key is absent and the
// whole configuration is under test.
func (c *Context) IntOr(key string, def int64) (int64, bool) {
	if n, ok := c.Int(key); ok {
		return n, true
	}
	if c.Props.Has(key) || c.Partial {
		return 0, false
	}
	return def, true
}

func (c *Context) Float(key string) (float64, bool) {
	s, ok := c.raw(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		c.invalid(key, err)
		return 0, false
	}
	return f, true
}

func (c *Context) Bool(key string) (bool, bool) {
	s, ok := c.raw(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		c.invalid(key, err)
		return false, false
	}
	return b, true
}

func (c *Context) JVMSize(key string) (uint64, bool) {
	s, ok := c.raw(key)
	if !ok {
		return 0, false
	}
	n, err := properties.ParseJVMSize(s)
	if err != nil {
		c.invalid(key, err)
		return 0, false
	}
	return n, true
}

// PGMemory reads a postgres.* memory setting in bytes.
func (c *Context) PGMemory(key string) (uint64, bool) {
	s, ok := c.raw(key)
	if !ok {
		return 0, false
	}
	n, err := properties.ParsePGMemory(s, PostgresSettings[properties.GUCName(key)])
	if err != nil {
		c.invalid(key, err)
		return 0, false
	}
	return n, true
}

func (c *Context) PGDuration(key string) (time.Duration, bool) {
	s, ok := c.raw(key)
	if !ok {
		return 0, false
	}
	d, err := properties.ParsePGDuration(s)
	if err != nil {
		c.invalid(key, err)
		return 0, false
	}
	return d, true
}

// String returns the trimmed, lower-cased value.
func (c *Context) String(key string) (string, bool) {
	s, ok := c.raw(key)
	return strings.ToLower(s), ok
}

// Memory is the application host memory in bytes.
func (c *Context) Memory() uint64 {
	return uint64(c.Profile.Memory)
}

// DBMemory is the database host memory in bytes.
func (c *Context) DBMemory() uint64 {
	return uint64(c.Profile.Database.Memory)
}

// Heap returns the effective maximum heap and the key it was derived from.
func (c *Context) Heap() (uint64, string, bool) {
	if xmx, ok := c.JVMSize(KeyXmx); ok {
		return xmx, KeyXmx, true
	}
	if pct, ok := c.Float(KeyMaxRAMPercentage); ok && pct > 0 && pct <= 100 {
		return uint64(pct / 100 * float64(c.Memory())), KeyMaxRAMPercentage, true
	}
	return 0, "", false
}

// MaxLifetime is Hikari's max-lifetime; zero means unlimited.
func (c *Context) MaxLifetime() (int64, bool) {
	return c.IntOr(KeyMaxLifetime, defaultMaxLifetimeMs)
}

func (c *Context) MaxConnections() (int64, bool) {
	return c.IntOr(KeyMaxConnections, defaultMaxConnections)
}

func (c *Context) ReservedConnections() int64 {
	if n, ok := c.Int(KeyReservedConns); ok {
		return n
	}
	return int64(c.Policy.Thresholds.SuperuserReservedConnections)
}
