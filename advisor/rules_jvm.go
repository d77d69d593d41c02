package advisor

import (
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

func jvmRules() []Rule {
	return []Rule{
		funcRule{"JVM001", "Maximum heap must be smaller than host memory", checkHeapFits},
		funcRule{"JVM002", "Maximum heap should leave headroom for off-heap memory", checkHeapHeadroom},
		funcRule{"JVM003", "Initial heap must not exceed maximum heap", checkHeapOrder},
		funcRule{"JVM004", "MaxRAMPercentage must be a sensible percentage", checkRAMPercentage},
		funcRule{"JVM005", "Xmx overrides MaxRAMPercentage when both are set", checkHeapConflict},
		funcRule{"JVM006", "Containers should size the heap explicitly", checkContainerHeap},
		funcRule{"JVM007", "Heap and metaspace together must fit in host memory", checkMetaspace},
	}
}

func checkHeapFits(c *Context) []model.Finding {
	heap, key, ok := c.Heap()
	if !ok || heap < c.Memory() {
		return nil
	}
	return []model.Finding{c.Finding("JVM001", model.SeverityCritical, []string{key},
		"set -Xmx to at most "+properties.FormatJVMSize(recommendedHeap(c.Memory(), c.Policy)),
		"maximum heap %s is not smaller than host memory %s",
		properties.FormatJVMSize(heap), model.ByteSize(c.Memory()))}
}

func checkHeapHeadroom(c *Context) []model.Finding {
	heap, key, ok := c.Heap()
	if !ok || heap >= c.Memory() {
		return nil
	}
	limit := c.Policy.Thresholds.HeapHeadroomRatio * float64(c.Memory())
	if float64(heap) <= limit {
		return nil
	}
	return []model.Finding{c.Finding("JVM002", model.SeverityWarning, []string{key},
		"set -Xmx to about "+properties.FormatJVMSize(recommendedHeap(c.Memory(), c.Policy)),
		"maximum heap %s exceeds %.0f%% of host memory %s, leaving little room for metaspace, threads and buffers",
		properties.FormatJVMSize(heap), c.Policy.Thresholds.HeapHeadroomRatio*100, model.ByteSize(c.Memory()))}
}

func checkHeapOrder(c *Context) []model.Finding {
	xms, ok := c.JVMSize(KeyXms)
	if !ok {
		return nil
	}
	xmx, ok := c.JVMSize(KeyXmx)
	if !ok || xms <= xmx {
		return nil
	}
	return []model.Finding{c.Finding("JVM003", model.SeverityCritical, []string{KeyXms, KeyXmx},
		"set -Xms equal to -Xmx",
		"initial heap %s is larger than maximum heap %s; the JVM refuses to start",
		properties.FormatJVMSize(xms), properties.FormatJVMSize(xmx))}
}

func checkRAMPercentage(c *Context) []model.Finding {
	pct, ok := c.Float(KeyMaxRAMPercentage)
	if !ok {
		return nil
	}
	keys := []string{KeyMaxRAMPercentage}
	switch {
	case pct <= 0 || pct > 100:
		return []model.Finding{c.Finding("JVM004", model.SeverityCritical, keys,
			"use -XX:MaxRAMPercentage=75.0",
			"MaxRAMPercentage %v is outside (0, 100]", pct)}
	case pct < 25:
		return []model.Finding{c.Finding("JVM004", model.SeverityWarning, keys,
			"use -XX:MaxRAMPercentage=75.0",
			"MaxRAMPercentage %v leaves most of the memory unused", pct)}
	case pct > 85:
		return []model.Finding{c.Finding("JVM004", model.SeverityWarning, keys,
			"use -XX:MaxRAMPercentage=75.0",
			"MaxRAMPercentage %v leaves little room for off-heap memory", pct)}
	}
	return nil
}

func checkHeapConflict(c *Context) []model.Finding {
	if !c.Props.Has(KeyXmx) || !c.Props.Has(KeyMaxRAMPercentage) {
		return nil
	}
	return []model.Finding{c.Finding("JVM005", model.SeverityInfo, []string{KeyXmx, KeyMaxRAMPercentage},
		"remove one of the two settings",
		"both -Xmx and -XX:MaxRAMPercentage are set; -Xmx takes precedence")}
}

func checkContainerHeap(c *Context) []model.Finding {
	if c.Partial || !c.Profile.Containerized || !c.Props.HasPrefix(properties.JVMPrefix) {
		return nil
	}
	if c.Props.Has(KeyXmx) || c.Props.Has(KeyMaxRAMPercentage) {
		return nil
	}
	return []model.Finding{c.Finding("JVM006", model.SeverityWarning, nil,
		"add -XX:MaxRAMPercentage=75.0",
		"containerized JVM has no -Xmx or -XX:MaxRAMPercentage; the default heap is 25%% of the container limit")}
}

func checkMetaspace(c *Context) []model.Finding {
	meta, ok := c.JVMSize(KeyMaxMetaspaceSize)
	if !ok {
		return nil
	}
	heap, key, ok := c.Heap()
	if !ok || heap >= c.Memory() || heap+meta <= c.Memory() {
		return nil
	}
	return []model.Finding{c.Finding("JVM007", model.SeverityCritical, []string{key, KeyMaxMetaspaceSize},
		"set -XX:MaxMetaspaceSize to "+properties.FormatJVMSize(recommendedMetaspace(c.Memory())),
		"heap %s plus metaspace %s exceed host memory %s",
		properties.FormatJVMSize(heap), properties.FormatJVMSize(meta), model.ByteSize(c.Memory()))}
}
