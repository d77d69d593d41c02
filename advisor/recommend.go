package advisor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

const (
	heapRatio           = 0.75
	sharedBuffersRatio  = 0.25
	maxPoolSize         = 50
	minPoolSize         = 2
	maxMetaspace        = 256 * model.MiB
	maxMaintenanceWork  = 2 * model.GiB
	preferredWorkMem    = 4 * model.MiB
	minWorkMem          = 64 * 1024
	threadsPerCPU       = 50
	minThreads          = 50
	maxThreads          = 400
	defaultCaffeineSpec = "maximumSize=10000,expireAfterWrite=10m"
)

// Recommendation is a complete configuration sized for one profile. Values
// live in a single PropertySet using canonical keys; the render methods
// split them into the files each component reads.
type Recommendation struct {
	Profile    model.Profile
	Properties *model.PropertySet
	// Rationale explains each recommended key.
	Rationale map[string]string
}

func (r *Recommendation) set(key, value, why string) {
	r.Properties.Set(key, value, model.Origin{File: "recommendation"})
	r.Rationale[key] = why
}

func (r *Recommendation) header() string {
	name := r.Profile.Name
	if name == "" {
		name = "profile"
	}
	return fmt.Sprintf("Recommended for %s: %d CPUs, %s memory, %d instance(s), %s",
		name, r.Profile.CPUs, r.Profile.Memory, r.Profile.Instances, r.Profile.Environment)
}

func (r *Recommendation) ApplicationProperties() []byte {
	return properties.RenderProperties(r.Properties, r.header())
}

func (r *Recommendation) ApplicationYAML() ([]byte, error) {
	return properties.RenderYAML(r.Properties)
}

func (r *Recommendation) PostgresConf() []byte {
	return properties.RenderPostgresConf(r.Properties, r.header())
}

func (r *Recommendation) JavaOpts() string {
	return properties.RenderJavaOpts(r.Properties)
}

// Render returns one of the recommendation's files: properties, yaml,
// postgresql or java-opts.
func (r *Recommendation) Render(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "properties", "application.properties":
		return r.ApplicationProperties(), nil
	case "yaml", "yml", "application.yml":
		return r.ApplicationYAML()
	case "postgresql", "postgresql.conf", "pg":
		return r.PostgresConf(), nil
	case "java-opts", "jvm":
		return []byte(r.JavaOpts() + "\n"), nil
	}
	return nil, fmt.Errorf("%w: %q", properties.ErrUnknownFormat, format)
}

type recommendationJSON struct {
	Profile     model.Profile     `json:"profile"`
	Application map[string]string `json:"application"`
	PostgreSQL  map[string]string `json:"postgresql"`
	JavaOpts    string            `json:"java_opts"`
	Rationale   map[string]string `json:"rationale"`
}

func (r *Recommendation) MarshalJSON() ([]byte, error) {
	out := recommendationJSON{
		Profile:     r.Profile,
		Application: map[string]string{},
		PostgreSQL:  map[string]string{},
		JavaOpts:    r.JavaOpts(),
		Rationale:   r.Rationale,
	}
	for _, p := range r.Properties.Properties() {
		switch {
		case strings.HasPrefix(p.Key, properties.PostgresPrefix):
			out.PostgreSQL[properties.GUCName(p.Key)] = p.Value
		case strings.HasPrefix(p.Key, properties.JVMPrefix):
		default:
			out.Application[p.Key] = p.Value
		}
	}
	return json.Marshal(out)
}

func recommend(profile model.Profile, policy Policy) *Recommendation {
	r := &Recommendation{
		Profile:    profile,
		Properties: model.NewPropertySet(),
		Rationale:  map[string]string{},
	}
	mem := uint64(profile.Memory)
	dbMem := uint64(profile.Database.Memory)

	// JVM
	ratio := heapFraction(policy)
	if profile.Containerized {
		pct := math.Floor(ratio*1000) / 10
		r.set(KeyMaxRAMPercentage, strconv.FormatFloat(pct, 'f', 1, 64),
			"heap follows the container limit and leaves the rest for metaspace, threads and buffers")
	} else {
		heap := properties.FormatJVMSize(recommendedHeap(mem, policy))
		r.set(KeyXmx, heap, "at most three quarters of host memory, the rest is left for off-heap use")
		r.set(KeyXms, heap, "equal to -Xmx so the heap is committed at startup")
	}
	r.set(KeyMaxMetaspaceSize, properties.FormatJVMSize(recommendedMetaspace(mem)),
		"bounds class metadata so a classloader leak fails fast")
	if profile.CPUs >= 2 && mem >= 2*model.GiB {
		r.set(KeyGC, "G1GC", "G1 suits multi-core hosts with a few GiB of heap")
	} else {
		r.set(KeyGC, "SerialGC", "small hosts gain nothing from a concurrent collector")
	}

	// Connection pool
	pool := recommendedPool(profile)
	r.set(KeyPoolMax, strconv.FormatInt(pool, 10),
		fmt.Sprintf("(2 x %d database CPUs + 1) spread over %d instance(s)", profile.Database.CPUs, profile.Instances))
	r.set(KeyPoolMinIdle, strconv.FormatInt(pool, 10), "a fixed-size pool avoids connection churn")
	r.set(KeyConnTimeout, "30000", "fail requests after 30s instead of queueing forever")
	r.set(KeyIdleTimeout, "600000", "retire idle connections after 10 minutes")
	r.set(KeyMaxLifetime, strconv.Itoa(defaultMaxLifetimeMs), "recycle connections before network devices drop them")
	r.set(KeyLeakThreshold, "60000", "log connections held for more than a minute")

	// Web server
	threads := clamp(int64(profile.CPUs)*threadsPerCPU, minThreads, maxThreads)
	if threads < pool {
		threads = pool
	}
	r.set(KeyThreadsMax, strconv.FormatInt(threads, 10), "50 request threads per CPU, never fewer than the pool")
	r.set(KeyThreadsMinSpare, "10", "keep a few threads warm")
	r.set(KeyAcceptCount, "100", "queue bursts instead of refusing connections")

	// JPA
	r.set(KeyOpenInView, "false", "release database connections when the transaction ends")
	if profile.Environment == model.EnvProduction || profile.Environment == model.EnvStaging {
		r.set(KeyDDLAuto, "validate", "schema changes go through migrations")
	} else {
		r.set(KeyDDLAuto, "update", "convenient for local development")
	}
	r.set(KeyShowSQL, "false", "use a logger category instead of stdout")
	r.set(KeyBatchSize, "50", "batch inserts and updates")
	r.set(KeyOrderInserts, "true", "lets Hibernate batch inserts per entity")

	// Cache
	r.set(KeyCacheType, "caffeine", "in-process cache with bounded size")
	r.set(KeyCaffeineSpec, defaultCaffeineSpec, "bounded by size and age")

	// Actuator
	if profile.IsProduction() {
		r.set(KeyExposure, "health,info,prometheus", "only the endpoints monitoring needs")
	} else {
		r.set(KeyExposure, "*", "everything is visible outside production")
	}

	// PostgreSQL
	reserved := int64(policy.Thresholds.SuperuserReservedConnections)
	total := pool * int64(profile.Instances)
	maxConns := total + total/10 + reserved
	if floor := minMaxConnections(policy); maxConns < floor {
		maxConns = floor
	}
	r.set(KeyMaxConnections, strconv.FormatInt(maxConns, 10),
		fmt.Sprintf("%d pooled connections plus 10%% and %d reserved", total, reserved))

	r.set(KeySharedBuffers, properties.FormatPGMemory(recommendedSharedBuffers(dbMem, policy)),
		"a quarter of memory, the OS page cache does the rest")
	r.set(KeyEffectiveCache, properties.FormatPGMemory(dbMem/4*3), "what the planner may assume is cached")
	r.set(KeyWorkMem, properties.FormatPGMemory(recommendedWorkMem(dbMem, maxConns)),
		"every connection may sort at once without exhausting memory")
	r.set(KeyMaintenanceWorkMem, properties.FormatPGMemory(recommendedMaintenanceWorkMem(dbMem)),
		"faster VACUUM and index builds")
	if profile.Database.Storage == model.StorageHDD {
		r.set(KeyRandomPageCost, "4", "random reads are expensive on spinning disks")
		r.set(KeyIOConcurrency, "2", "spinning disks serve few concurrent requests")
	} else {
		r.set(KeyRandomPageCost, "1.1", "random reads cost about as much as sequential ones on SSD")
		r.set(KeyIOConcurrency, "200", "SSDs serve many concurrent requests")
	}
	r.set(KeyIdleInTxTimeout, properties.FormatPGDuration(time.Minute),
		"abort sessions that hold locks while idle in a transaction")
	return r
}

// heapFraction never exceeds the policy's heap headroom ratio.
func heapFraction(policy Policy) float64 {
	if h := policy.Thresholds.HeapHeadroomRatio; h < heapRatio {
		return h
	}
	return heapRatio
}

func recommendedHeap(mem uint64, policy Policy) uint64 {
	return floorMiB(uint64(heapFraction(policy) * float64(mem)))
}

func recommendedSharedBuffers(mem uint64, policy Policy) uint64 {
	ratio := sharedBuffersRatio
	if policy.Thresholds.SharedBuffersMaxRatio < ratio {
		ratio = policy.Thresholds.SharedBuffersMaxRatio
	}
	return uint64(ratio * float64(mem))
}

// minMaxConnections is the PostgreSQL default unless the policy warns below it.
func minMaxConnections(policy Policy) int64 {
	if warn := int64(policy.Thresholds.MaxConnectionsWarn); warn < defaultMaxConnections {
		return warn
	}
	return defaultMaxConnections
}

func recommendedMetaspace(mem uint64) uint64 {
	if m := floorMiB(mem / 8); m < maxMetaspace {
		return m
	}
	return maxMetaspace
}

func recommendedPool(profile model.Profile) int64 {
	cores := int64(2*profile.Database.CPUs + 1)
	instances := int64(profile.Instances)
	if instances < 1 {
		instances = 1
	}
	return clamp((cores+instances-1)/instances, minPoolSize, maxPoolSize)
}

// recommendedWorkMem splits a quarter of memory across all connections and
// rounds up to 4MB when that still fits in half of memory.
func recommendedWorkMem(mem uint64, maxConns int64) uint64 {
	if maxConns < 1 {
		maxConns = 1
	}
	n := uint64(maxConns)
	workMem := mem / 4 / n
	if workMem < preferredWorkMem && preferredWorkMem*n <= mem/2 {
		workMem = preferredWorkMem
	}
	if workMem < minWorkMem {
		workMem = minWorkMem
	}
	return workMem - workMem%1024
}

func recommendedMaintenanceWorkMem(mem uint64) uint64 {
	if m := mem / 16; m < maxMaintenanceWork {
		return m
	}
	return maxMaintenanceWork
}

func floorMiB(n uint64) uint64 {
	return n - n%model.MiB
}

func clamp(v, lo, hi int64) int64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
