package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "config_advisor"

var (
	// Registry holds the advisor's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path"},
	)

	validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advisor",
			Name:      "validations_total",
			Help:      "Total number of validation runs by highest finding severity.",
		},
		[]string{"result"},
	)

	validationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "advisor",
			Name:      "validation_duration_seconds",
			Help:      "Duration of validation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advisor",
			Name:      "findings_total",
			Help:      "Total number of findings reported per rule.",
		},
		[]string{"rule", "severity"},
	)

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "refreshes_total",
			Help:      "Total number of policy source refreshes.",
		},
		[]string{"repository", "success"},
	)

	lastRefresh = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		},
		[]string{"repository"},
	)

	audits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Total number of scheduled database audits.",
		},
		[]string{"success"},
	)

	auditDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled database audits.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		validations,
		validationDuration,
		findings,
		refreshes,
		lastRefresh,
		audits,
		auditDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordValidation records one validation run. result is the highest
// severity found, or "clean".
func RecordValidation(result string, duration time.Duration) {
	validations.WithLabelValues(result).Inc()
	validationDuration.Observe(duration.Seconds())
}

func RecordFinding(rule, severity string) {
	findings.WithLabelValues(rule, severity).Inc()
}

func RecordRefresh(repository string, success bool) {
	refreshes.WithLabelValues(repository, strconv.FormatBool(success)).Inc()
	if success {
		lastRefresh.WithLabelValues(repository).SetToCurrentTime()
	}
}

func RecordAudit(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	audits.WithLabelValues(strconv.FormatBool(success)).Inc()
	auditDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Repository names are user controlled, so only known prefixes keep their
// own label.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "health", "ready", "status", "metrics":
		return "/" + parts[0]
	case "v1":
		if len(parts) > 1 {
			return "/v1/" + parts[1]
		}
		return "/v1"
	}
	return "/:repository"
}
