package advisor

import "github.com/sardine-ai/go-config-advisor/properties"

// Canonical keys the rules read and the recommendation writes.
const (
	KeyPoolMax         = "spring.datasource.hikari.maximum-pool-size"
	KeyPoolMinIdle     = "spring.datasource.hikari.minimum-idle"
	KeyConnTimeout     = "spring.datasource.hikari.connection-timeout"
	KeyIdleTimeout     = "spring.datasource.hikari.idle-timeout"
	KeyMaxLifetime     = "spring.datasource.hikari.max-lifetime"
	KeyLeakThreshold   = "spring.datasource.hikari.leak-detection-threshold"
	KeyThreadsMax      = "server.tomcat.threads.max"
	KeyThreadsMinSpare = "server.tomcat.threads.min-spare"
	KeyAcceptCount     = "server.tomcat.accept-count"
	KeyOpenInView      = "spring.jpa.open-in-view"
	KeyDDLAuto         = "spring.jpa.hibernate.ddl-auto"
	KeyShowSQL         = "spring.jpa.show-sql"
	KeyBatchSize       = "spring.jpa.properties.hibernate.jdbc.batch_size"
	KeyOrderInserts    = "spring.jpa.properties.hibernate.order_inserts"
	KeyCacheType       = "spring.cache.type"
	KeyCaffeineSpec    = "spring.cache.caffeine.spec"
	KeyRedisTTL        = "spring.cache.redis.time-to-live"
	KeyExposure        = "management.endpoints.web.exposure.include"

	KeySharedBuffers      = "postgres.shared_buffers"
	KeyEffectiveCache     = "postgres.effective_cache_size"
	KeyWorkMem            = "postgres.work_mem"
	KeyMaintenanceWorkMem = "postgres.maintenance_work_mem"
	KeyMaxConnections     = "postgres.max_connections"
	KeyReservedConns      = "postgres.superuser_reserved_connections"
	KeyRandomPageCost     = "postgres.random_page_cost"
	KeyIOConcurrency      = "postgres.effective_io_concurrency"
	KeyIdleInTxTimeout    = "postgres.idle_in_transaction_session_timeout"
	KeyIdleSessionTimeout = "postgres.idle_session_timeout"
	KeyStatementTimeout   = "postgres.statement_timeout"

	KeyXmx              = properties.KeyXmx
	KeyXms              = properties.KeyXms
	KeyMaxRAMPercentage = properties.KeyMaxRAMPercentage
	KeyMaxMetaspaceSize = properties.KeyMaxMetaspaceSize
	KeyGC               = properties.KeyGC
)

// Library defaults used when a key is absent and the full configuration is
// being validated.
const (
	defaultPoolSize       = 10
	defaultMaxLifetimeMs  = 1800000
	defaultThreadsMax     = 200
	defaultMaxConnections = 100
)

// PostgresSettings lists the GUCs the advisor knows about, with the unit
// PostgreSQL assumes when a value has none.
var PostgresSettings = map[string]uint64{
	"shared_buffers":                      properties.PGBlockSize,
	"effective_cache_size":                properties.PGBlockSize,
	"work_mem":                            properties.PGKilobyte,
	"maintenance_work_mem":                properties.PGKilobyte,
	"max_connections":                     0,
	"superuser_reserved_connections":      0,
	"random_page_cost":                    0,
	"effective_io_concurrency":            0,
	"idle_in_transaction_session_timeout": 0,
	"idle_session_timeout":                0,
	"statement_timeout":                   0,
}
