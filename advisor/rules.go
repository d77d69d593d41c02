package advisor

import (
	"sort"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

// RuleSyntax reports values that cannot be parsed for a typed key.
const RuleSyntax = "SYN001"

// Rule inspects a configuration and returns its findings. Findings use the
// rule's default severity; policy overrides are applied by the Advisor.
type Rule interface {
	ID() string
	Description() string
	Check(c *Context) []model.Finding
}

// RuleInfo describes a rule for listings.
type RuleInfo struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type funcRule struct {
	id    string
	desc  string
	check func(c *Context) []model.Finding
}

func (r funcRule) ID() string                       { return r.id }
func (r funcRule) Description() string              { return r.desc }
func (r funcRule) Check(c *Context) []model.Finding { return r.check(c) }

func builtinRules() []Rule {
	var rules []Rule
	rules = append(rules, jvmRules()...)
	rules = append(rules, poolRules()...)
	rules = append(rules, springRules()...)
	rules = append(rules, postgresRules()...)
	// Last, so it sees every value the other rules parsed.
	rules = append(rules, funcRule{RuleSyntax, "Values of typed keys must parse", checkSyntax})
	return rules
}

type valueKind int

const (
	kindInt valueKind = iota
	kindFloat
	kindBool
	kindJVMSize
	kindPGMemory
	kindPGDuration
)

var typedKeys = map[string]valueKind{
	KeyPoolMax:         kindInt,
	KeyPoolMinIdle:     kindInt,
	KeyConnTimeout:     kindInt,
	KeyIdleTimeout:     kindInt,
	KeyMaxLifetime:     kindInt,
	KeyLeakThreshold:   kindInt,
	KeyThreadsMax:      kindInt,
	KeyThreadsMinSpare: kindInt,
	KeyAcceptCount:     kindInt,
	KeyBatchSize:       kindInt,
	KeyOpenInView:      kindBool,
	KeyShowSQL:         kindBool,
	KeyOrderInserts:    kindBool,

	KeySharedBuffers:      kindPGMemory,
	KeyEffectiveCache:     kindPGMemory,
	KeyWorkMem:            kindPGMemory,
	KeyMaintenanceWorkMem: kindPGMemory,
	KeyMaxConnections:     kindInt,
	KeyReservedConns:      kindInt,
	KeyRandomPageCost:     kindFloat,
	KeyIOConcurrency:      kindInt,
	KeyIdleInTxTimeout:    kindPGDuration,
	KeyIdleSessionTimeout: kindPGDuration,
	KeyStatementTimeout:   kindPGDuration,

	KeyXmx:                            kindJVMSize,
	KeyXms:                            kindJVMSize,
	properties.KeyXss:                 kindJVMSize,
	KeyMaxMetaspaceSize:               kindJVMSize,
	KeyMaxRAMPercentage:               kindFloat,
	properties.KeyInitRAMPercentage:   kindFloat,
	properties.KeyUseContainerSupport: kindBool,
}

func checkSyntax(c *Context) []model.Finding {
	keys := make([]string, 0, len(typedKeys))
	for k := range typedKeys {
		if c.Props.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch typedKeys[k] {
		case kindInt:
			c.Int(k)
		case kindFloat:
			c.Float(k)
		case kindBool:
			c.Bool(k)
		case kindJVMSize:
			c.JVMSize(k)
		case kindPGMemory:
			c.PGMemory(k)
		case kindPGDuration:
			c.PGDuration(k)
		}
	}
	return c.syntax
}
