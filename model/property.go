package model

import (
	"fmt"
	"sort"
	"strings"
)

// Origin records where a configuration value was read from.
type Origin struct {
	File string `json:"file,omitempty" yaml:"file,omitempty"`
	Line int    `json:"line,omitempty" yaml:"line,omitempty"`
}

func (o Origin) String() string {
	if o.File == "" {
		return ""
	}
	if o.Line == 0 {
		return o.File
	}
	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// Property is a single canonical configuration entry.
type Property struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Origin Origin `json:"origin"`
}

// PropertySet holds configuration entries keyed by their canonical key.
// The zero value is not usable; call NewPropertySet.
type PropertySet struct {
	entries map[string]Property
}

func NewPropertySet() *PropertySet {
	return &PropertySet{entries: make(map[string]Property)}
}

// Set stores a value, replacing any previous one for the same key.
func (p *PropertySet) Set(key, value string, origin Origin) {
	p.entries[key] = Property{Key: key, Value: value, Origin: origin}
}

// Get returns the property for key.
func (p *PropertySet) Get(key string) (Property, bool) {
	prop, ok := p.entries[key]
	return prop, ok
}

// Value returns the raw string value for key, or "" if absent.
func (p *PropertySet) Value(key string) string {
	return p.entries[key].Value
}

func (p *PropertySet) Has(key string) bool {
	_, ok := p.entries[key]
	return ok
}

func (p *PropertySet) Delete(key string) {
	delete(p.entries, key)
}

func (p *PropertySet) Len() int {
	return len(p.entries)
}

// Keys returns all keys in lexical order.
func (p *PropertySet) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPrefix reports whether any key starts with prefix.
func (p *PropertySet) HasPrefix(prefix string) bool {
	for k := range p.entries {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Merge copies every entry of other into p. Entries in other win.
func (p *PropertySet) Merge(other *PropertySet) {
	if other == nil {
		return
	}
	for k, v := range other.entries {
		p.entries[k] = v
	}
}

// Subset returns a new set with the keys that start with prefix.
func (p *PropertySet) Subset(prefix string) *PropertySet {
	out := NewPropertySet()
	for k, v := range p.entries {
		if strings.HasPrefix(k, prefix) {
			out.entries[k] = v
		}
	}
	return out
}

// Properties returns the entries ordered by key.
func (p *PropertySet) Properties() []Property {
	out := make([]Property, 0, len(p.entries))
	for _, k := range p.Keys() {
		out = append(out, p.entries[k])
	}
	return out
}
