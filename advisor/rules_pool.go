package advisor

import (
	"fmt"

	"github.com/sardine-ai/go-config-advisor/model"
)

func poolRules() []Rule {
	return []Rule{
		funcRule{"POOL001", "Hikari maximum-pool-size must not be below minimum-idle", checkPoolOrder},
		funcRule{"POOL002", "All application pools must fit in PostgreSQL max_connections", checkPoolBudget},
		funcRule{"POOL003", "Hikari connection-timeout must be at least 250ms", checkConnTimeout},
		funcRule{"POOL004", "Hikari max-lifetime must be at least 30s and below the server idle timeout", checkMaxLifetime},
		funcRule{"POOL005", "Hikari idle-timeout should be at least 10s and below max-lifetime", checkIdleTimeout},
		funcRule{"POOL006", "Hikari leak-detection-threshold must be at least 2s and below max-lifetime", checkLeakThreshold},
		funcRule{"POOL007", "Hikari pool should not be oversized for the database CPUs", checkPoolOversize},
		funcRule{"THREAD001", "Tomcat threads.max should not be below the pool size", checkThreads},
	}
}

func checkPoolOrder(c *Context) []model.Finding {
	poolMax, ok := c.Int(KeyPoolMax)
	if !ok {
		return nil
	}
	minIdle, ok := c.Int(KeyPoolMinIdle)
	if !ok || poolMax >= minIdle {
		return nil
	}
	return []model.Finding{c.Finding("POOL001", model.SeverityCritical, []string{KeyPoolMax, KeyPoolMinIdle},
		fmt.Sprintf("set minimum-idle to %d or raise maximum-pool-size", poolMax),
		"maximum-pool-size %d is below minimum-idle %d", poolMax, minIdle)}
}

func checkPoolBudget(c *Context) []model.Finding {
	pool, ok := c.IntOr(KeyPoolMax, defaultPoolSize)
	if !ok {
		return nil
	}
	maxConns, ok := c.MaxConnections()
	if !ok {
		return nil
	}
	instances := int64(c.Profile.Instances)
	total := pool * instances
	available := maxConns - c.ReservedConnections()
	if total <= available {
		return nil
	}
	return []model.Finding{c.Finding("POOL002", model.SeverityCritical, []string{KeyPoolMax, KeyMaxConnections},
		fmt.Sprintf("lower maximum-pool-size to %d or raise max_connections to %d", maxInt64(available/instances, 1), total+c.ReservedConnections()),
		"%d instances with a pool of %d need %d connections but max_connections %d leaves only %d",
		instances, pool, total, maxConns, available)}
}

func checkConnTimeout(c *Context) []model.Finding {
	timeout, ok := c.Int(KeyConnTimeout)
	if !ok || timeout >= 250 {
		return nil
	}
	return []model.Finding{c.Finding("POOL003", model.SeverityCritical, []string{KeyConnTimeout},
		"use 30000", "connection-timeout %dms is below Hikari's 250ms minimum", timeout)}
}

func checkMaxLifetime(c *Context) []model.Finding {
	lifetime, ok := c.Int(KeyMaxLifetime)
	if ok && lifetime != 0 && lifetime < 30000 {
		return []model.Finding{c.Finding("POOL004", model.SeverityCritical, []string{KeyMaxLifetime},
			"use 1800000", "max-lifetime %dms is below Hikari's 30000ms minimum", lifetime)}
	}
	idle, ok := c.PGDuration(KeyIdleSessionTimeout)
	if !ok || idle <= 0 {
		return nil
	}
	lifetime, ok = c.MaxLifetime()
	if !ok {
		return nil
	}
	if lifetime != 0 && lifetime < idle.Milliseconds() {
		return nil
	}
	return []model.Finding{c.Finding("POOL004", model.SeverityWarning, []string{KeyMaxLifetime, KeyIdleSessionTimeout},
		fmt.Sprintf("set max-lifetime below %d", idle.Milliseconds()),
		"max-lifetime %dms is not below idle_session_timeout %s; the server will close pooled connections first",
		lifetime, c.Props.Value(KeyIdleSessionTimeout))}
}

func checkIdleTimeout(c *Context) []model.Finding {
	idle, ok := c.Int(KeyIdleTimeout)
	if !ok || idle == 0 {
		return nil
	}
	if idle < 10000 {
		return []model.Finding{c.Finding("POOL005", model.SeverityWarning, []string{KeyIdleTimeout},
			"use 600000", "idle-timeout %dms is below Hikari's 10000ms minimum", idle)}
	}
	lifetime, ok := c.MaxLifetime()
	if !ok || lifetime == 0 || idle < lifetime {
		return nil
	}
	return []model.Finding{c.Finding("POOL005", model.SeverityWarning, []string{KeyIdleTimeout, KeyMaxLifetime},
		"keep idle-timeout below max-lifetime",
		"idle-timeout %dms is not below max-lifetime %dms and has no effect", idle, lifetime)}
}

func checkLeakThreshold(c *Context) []model.Finding {
	leak, ok := c.Int(KeyLeakThreshold)
	if !ok || leak == 0 {
		return nil
	}
	if leak < 2000 {
		return []model.Finding{c.Finding("POOL006", model.SeverityCritical, []string{KeyLeakThreshold},
			"use 60000", "leak-detection-threshold %dms is below Hikari's 2000ms minimum", leak)}
	}
	lifetime, ok := c.MaxLifetime()
	if !ok || lifetime == 0 || leak <= lifetime {
		return nil
	}
	return []model.Finding{c.Finding("POOL006", model.SeverityWarning, []string{KeyLeakThreshold, KeyMaxLifetime},
		"keep leak-detection-threshold below max-lifetime",
		"leak-detection-threshold %dms exceeds max-lifetime %dms", leak, lifetime)}
}

func checkPoolOversize(c *Context) []model.Finding {
	pool, ok := c.Int(KeyPoolMax)
	if !ok {
		return nil
	}
	cores := int64(2*c.Profile.Database.CPUs + 1)
	limit := cores * int64(c.Policy.Thresholds.PoolOversizeFactor)
	if pool <= limit {
		return nil
	}
	return []model.Finding{c.Finding("POOL007", model.SeverityWarning, []string{KeyPoolMax},
		fmt.Sprintf("use about %d", recommendedPool(c.Profile)),
		"maximum-pool-size %d is more than %d times the %d connections %d database CPUs serve well",
		pool, c.Policy.Thresholds.PoolOversizeFactor, cores, c.Profile.Database.CPUs)}
}

func checkThreads(c *Context) []model.Finding {
	pool, ok := c.Int(KeyPoolMax)
	if !ok {
		return nil
	}
	threads, ok := c.IntOr(KeyThreadsMax, defaultThreadsMax)
	if !ok || threads >= pool {
		return nil
	}
	return []model.Finding{c.Finding("THREAD001", model.SeverityWarning, []string{KeyThreadsMax, KeyPoolMax},
		fmt.Sprintf("raise threads.max to at least %d", pool),
		"tomcat threads.max %d is below the pool size %d; connections can never all be in use", threads, pool)}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
