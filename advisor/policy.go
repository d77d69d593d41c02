package advisor

import (
	"fmt"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
)

// Thresholds tune the numeric limits used by the rules.
type Thresholds struct {
	HeapHeadroomRatio            float64 `yaml:"heap_headroom_ratio" json:"heap_headroom_ratio"`
	SharedBuffersMaxRatio        float64 `yaml:"shared_buffers_max_ratio" json:"shared_buffers_max_ratio"`
	SuperuserReservedConnections int     `yaml:"superuser_reserved_connections" json:"superuser_reserved_connections"`
	MaxConnectionsWarn           int     `yaml:"max_connections_warn" json:"max_connections_warn"`
	PoolOversizeFactor           int     `yaml:"pool_oversize_factor" json:"pool_oversize_factor"`
}

// Policy is the organisation-wide advisory policy. It is usually served by
// a remote config source and refreshed in the background.
type Policy struct {
	// Environment overrides the profile environment when set.
	Environment       string                    `yaml:"environment,omitempty" json:"environment,omitempty"`
	DisabledRules     []string                  `yaml:"disabled_rules,omitempty" json:"disabled_rules,omitempty"`
	SeverityOverrides map[string]model.Severity `yaml:"severity_overrides,omitempty" json:"severity_overrides,omitempty"`
	Thresholds        Thresholds                `yaml:"thresholds" json:"thresholds"`
}

func DefaultPolicy() Policy {
	return Policy{
		Thresholds: Thresholds{
			HeapHeadroomRatio:            0.85,
			SharedBuffersMaxRatio:        0.40,
			SuperuserReservedConnections: 3,
			MaxConnectionsWarn:           500,
			PoolOversizeFactor:           4,
		},
	}
}

// Normalize fills zero thresholds with defaults and upper-cases rule IDs.
// SuperuserReservedConnections is left alone since zero is a valid setting;
// start from DefaultPolicy to inherit its default.
func (p *Policy) Normalize() {
	def := DefaultPolicy().Thresholds
	if p.Thresholds.HeapHeadroomRatio == 0 {
		p.Thresholds.HeapHeadroomRatio = def.HeapHeadroomRatio
	}
	if p.Thresholds.SharedBuffersMaxRatio == 0 {
		p.Thresholds.SharedBuffersMaxRatio = def.SharedBuffersMaxRatio
	}
	if p.Thresholds.MaxConnectionsWarn == 0 {
		p.Thresholds.MaxConnectionsWarn = def.MaxConnectionsWarn
	}
	if p.Thresholds.PoolOversizeFactor == 0 {
		p.Thresholds.PoolOversizeFactor = def.PoolOversizeFactor
	}
	for i, id := range p.DisabledRules {
		p.DisabledRules[i] = strings.ToUpper(strings.TrimSpace(id))
	}
	if len(p.SeverityOverrides) > 0 {
		overrides := make(map[string]model.Severity, len(p.SeverityOverrides))
		for id, sev := range p.SeverityOverrides {
			overrides[strings.ToUpper(strings.TrimSpace(id))] = sev
		}
		p.SeverityOverrides = overrides
	}
	p.Environment = strings.ToLower(strings.TrimSpace(p.Environment))
}

func (p *Policy) Validate() error {
	t := p.Thresholds
	if t.HeapHeadroomRatio <= 0 || t.HeapHeadroomRatio >= 1 {
		return fmt.Errorf("heap_headroom_ratio must be between 0 and 1, got %v", t.HeapHeadroomRatio)
	}
	if t.SharedBuffersMaxRatio <= 0 || t.SharedBuffersMaxRatio >= 1 {
		return fmt.Errorf("shared_buffers_max_ratio must be between 0 and 1, got %v", t.SharedBuffersMaxRatio)
	}
	if t.SuperuserReservedConnections < 0 {
		return fmt.Errorf("superuser_reserved_connections must not be negative, got %d", t.SuperuserReservedConnections)
	}
	if t.MaxConnectionsWarn < 1 {
		return fmt.Errorf("max_connections_warn must be positive, got %d", t.MaxConnectionsWarn)
	}
	if t.PoolOversizeFactor < 1 {
		return fmt.Errorf("pool_oversize_factor must be positive, got %d", t.PoolOversizeFactor)
	}
	known := make(map[string]bool)
	for _, r := range builtinRules() {
		known[r.ID()] = true
	}
	for _, id := range p.DisabledRules {
		if !known[id] {
			return fmt.Errorf("disabled_rules: unknown rule %q", id)
		}
	}
	for id := range p.SeverityOverrides {
		if !known[id] {
			return fmt.Errorf("severity_overrides: unknown rule %q", id)
		}
	}
	switch p.Environment {
	case "", model.EnvDevelopment, model.EnvStaging, model.EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", p.Environment)
	}
	return nil
}

func (p *Policy) disabled(id string) bool {
	for _, d := range p.DisabledRules {
		if d == id {
			return true
		}
	}
	return false
}
