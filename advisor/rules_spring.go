package advisor

import (
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

func springRules() []Rule {
	return []Rule{
		funcRule{"JPA001", "spring.jpa.open-in-view should be disabled", checkOpenInView},
		funcRule{"JPA002", "Hibernate must not create or update the schema in production", checkDDLAuto},
		funcRule{"JPA003", "SQL logging should be off in production", checkShowSQL},
		funcRule{"CACHE001", "Cache expiry settings must parse and be positive", checkCacheTTL},
		funcRule{"CACHE002", "Caffeine caches should be bounded", checkCaffeineBounds},
		funcRule{"ACT001", "Production must not expose every actuator endpoint", checkExposure},
	}
}

func checkOpenInView(c *Context) []model.Finding {
	if enabled, ok := c.Bool(KeyOpenInView); ok {
		if !enabled {
			return nil
		}
		return []model.Finding{c.Finding("JPA001", model.SeverityWarning, []string{KeyOpenInView},
			"set spring.jpa.open-in-view=false",
			"open-in-view keeps a database connection for the whole web request")}
	}
	if c.Partial || c.Props.Has(KeyOpenInView) || !c.Props.HasPrefix("spring.jpa.") {
		return nil
	}
	return []model.Finding{c.Finding("JPA001", model.SeverityWarning, []string{KeyOpenInView},
		"set spring.jpa.open-in-view=false",
		"open-in-view is not set and defaults to true, which keeps a database connection for the whole web request")}
}

func checkDDLAuto(c *Context) []model.Finding {
	mode, ok := c.String(KeyDDLAuto)
	if !ok || !c.Profile.IsProduction() {
		return nil
	}
	switch mode {
	case "create", "create-drop":
		return []model.Finding{c.Finding("JPA002", model.SeverityCritical, []string{KeyDDLAuto},
			"use validate and manage the schema with migrations",
			"ddl-auto=%s drops existing tables on startup", mode)}
	case "update":
		return []model.Finding{c.Finding("JPA002", model.SeverityWarning, []string{KeyDDLAuto},
			"use validate and manage the schema with migrations",
			"ddl-auto=update alters the production schema without review")}
	}
	return nil
}

func checkShowSQL(c *Context) []model.Finding {
	show, ok := c.Bool(KeyShowSQL)
	if !ok || !show || !c.Profile.IsProduction() {
		return nil
	}
	return []model.Finding{c.Finding("JPA003", model.SeverityWarning, []string{KeyShowSQL},
		"set spring.jpa.show-sql=false",
		"show-sql writes every statement to stdout")}
}

func checkCacheTTL(c *Context) []model.Finding {
	var findings []model.Finding
	if spec, ok := c.raw(KeyCaffeineSpec); ok {
		parsed, err := properties.ParseCaffeineSpec(spec)
		switch {
		case err != nil:
			findings = append(findings, c.Finding("CACHE001", model.SeverityWarning, []string{KeyCaffeineSpec},
				"use maximumSize=10000,expireAfterWrite=10m",
				"caffeine spec %q does not parse: %v", spec, err))
		case parsed.ZeroExpiry:
			findings = append(findings, c.Finding("CACHE001", model.SeverityWarning, []string{KeyCaffeineSpec},
				"use maximumSize=10000,expireAfterWrite=10m",
				"caffeine spec %q expires entries as soon as they are written", spec))
		}
	}
	if raw, ok := c.raw(KeyRedisTTL); ok {
		ttl, err := properties.ParseSpringDuration(raw)
		switch {
		case err != nil:
			findings = append(findings, c.Finding("CACHE001", model.SeverityWarning, []string{KeyRedisTTL},
				"use a duration such as 10m", "redis time-to-live %q does not parse", raw))
		case ttl <= 0:
			findings = append(findings, c.Finding("CACHE001", model.SeverityWarning, []string{KeyRedisTTL},
				"use a duration such as 10m", "redis time-to-live %q never expires entries", raw))
		}
	}
	return findings
}

func checkCaffeineBounds(c *Context) []model.Finding {
	raw, ok := c.raw(KeyCaffeineSpec)
	if !ok {
		return nil
	}
	spec, err := properties.ParseCaffeineSpec(raw)
	if err != nil || spec.HasMaximum || spec.HasExpiry {
		return nil
	}
	return []model.Finding{c.Finding("CACHE002", model.SeverityWarning, []string{KeyCaffeineSpec},
		"add maximumSize or expireAfterWrite",
		"caffeine spec %q is unbounded and will grow until the heap is exhausted", raw)}
}

func checkExposure(c *Context) []model.Finding {
	raw, ok := c.raw(KeyExposure)
	if !ok || !c.Profile.IsProduction() {
		return nil
	}
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "*" {
			return []model.Finding{c.Finding("ACT001", model.SeverityCritical, []string{KeyExposure},
				"use health,info,prometheus",
				"every actuator endpoint, including env and heapdump, is exposed")}
		}
	}
	return nil
}
