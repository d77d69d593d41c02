package advisor

import (
	"fmt"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

func postgresRules() []Rule {
	return []Rule{
		funcRule{"PG001", "shared_buffers should stay below the configured share of database memory", checkSharedBuffers},
		funcRule{"PG002", "effective_cache_size must not exceed database memory", checkEffectiveCache},
		funcRule{"PG003", "work_mem times max_connections must fit in database memory", checkWorkMem},
		funcRule{"PG004", "maintenance_work_mem should not exceed a quarter of database memory", checkMaintenanceWorkMem},
		funcRule{"PG005", "random_page_cost should be lowered on SSD storage", checkRandomPageCost},
		funcRule{"PG006", "max_connections should stay moderate; use a pooler beyond that", checkMaxConnections},
	}
}

func checkSharedBuffers(c *Context) []model.Finding {
	sb, ok := c.PGMemory(KeySharedBuffers)
	if !ok {
		return nil
	}
	ratio := c.Policy.Thresholds.SharedBuffersMaxRatio
	if float64(sb) <= ratio*float64(c.DBMemory()) {
		return nil
	}
	return []model.Finding{c.Finding("PG001", model.SeverityWarning, []string{KeySharedBuffers},
		"use "+properties.FormatPGMemory(recommendedSharedBuffers(c.DBMemory(), c.Policy)),
		"shared_buffers %s is more than %.0f%% of database memory %s",
		properties.FormatPGMemory(sb), ratio*100, model.ByteSize(c.DBMemory()))}
}

func checkEffectiveCache(c *Context) []model.Finding {
	ecs, ok := c.PGMemory(KeyEffectiveCache)
	if !ok || ecs <= c.DBMemory() {
		return nil
	}
	return []model.Finding{c.Finding("PG002", model.SeverityWarning, []string{KeyEffectiveCache},
		"use "+properties.FormatPGMemory(c.DBMemory()/4*3),
		"effective_cache_size %s exceeds database memory %s and makes the planner favour index scans it cannot cache",
		properties.FormatPGMemory(ecs), model.ByteSize(c.DBMemory()))}
}

func checkWorkMem(c *Context) []model.Finding {
	workMem, ok := c.PGMemory(KeyWorkMem)
	if !ok {
		return nil
	}
	maxConns, ok := c.MaxConnections()
	if !ok || maxConns <= 0 {
		// A snippet without max_connections is judged against the default.
		if c.Props.Has(KeyMaxConnections) {
			return nil
		}
		maxConns = defaultMaxConnections
	}
	worst := workMem * uint64(maxConns)
	mem := c.DBMemory()
	if worst <= mem {
		return nil
	}
	sev := model.SeverityWarning
	if worst > 2*mem {
		sev = model.SeverityCritical
	}
	return []model.Finding{c.Finding("PG003", sev, []string{KeyWorkMem, KeyMaxConnections},
		"use "+properties.FormatPGMemory(recommendedWorkMem(mem, maxConns)),
		"work_mem %s across %d connections can use %s, more than database memory %s",
		properties.FormatPGMemory(workMem), maxConns, model.ByteSize(worst), model.ByteSize(mem))}
}

func checkMaintenanceWorkMem(c *Context) []model.Finding {
	mwm, ok := c.PGMemory(KeyMaintenanceWorkMem)
	if !ok || mwm <= c.DBMemory()/4 {
		return nil
	}
	return []model.Finding{c.Finding("PG004", model.SeverityWarning, []string{KeyMaintenanceWorkMem},
		"use "+properties.FormatPGMemory(recommendedMaintenanceWorkMem(c.DBMemory())),
		"maintenance_work_mem %s is more than a quarter of database memory %s",
		properties.FormatPGMemory(mwm), model.ByteSize(c.DBMemory()))}
}

func checkRandomPageCost(c *Context) []model.Finding {
	cost, ok := c.Float(KeyRandomPageCost)
	if !ok || cost < 4 || c.Profile.Database.Storage != model.StorageSSD {
		return nil
	}
	return []model.Finding{c.Finding("PG005", model.SeverityInfo, []string{KeyRandomPageCost},
		"use 1.1",
		"random_page_cost %v assumes spinning disks but the database runs on SSD", cost)}
}

func checkMaxConnections(c *Context) []model.Finding {
	maxConns, ok := c.Int(KeyMaxConnections)
	limit := int64(c.Policy.Thresholds.MaxConnectionsWarn)
	if !ok || maxConns <= limit {
		return nil
	}
	return []model.Finding{c.Finding("PG006", model.SeverityWarning, []string{KeyMaxConnections},
		fmt.Sprintf("keep max_connections at or below %d and put PgBouncer in front", limit),
		"max_connections %d costs memory and lock contention per backend", maxConns)}
}
