package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":                "/",
		"/":               "/",
		"/health":         "/health",
		"/v1/validate":    "/v1/validate",
		"/v1":             "/v1",
		"/team-policy":    "/:repository",
		"/metrics/extra/": "/metrics",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandler(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/v1/rules", "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/v1/rules", "418")))
}

func TestRecorders(t *testing.T) {
	RecordValidation("warning", 2*time.Millisecond)
	RecordFinding("POOL002", "critical")
	RecordRefresh("policy", true)
	RecordAudit(0, false)

	assert.GreaterOrEqual(t, testutil.ToFloat64(validations.WithLabelValues("warning")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(findings.WithLabelValues("POOL002", "critical")), 1.0)
	assert.Greater(t, testutil.ToFloat64(lastRefresh.WithLabelValues("policy")), 0.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(audits.WithLabelValues("false")), 1.0)
}

func TestHandler(t *testing.T) {
	RecordRefresh("handler-test", false)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `config_advisor_source_refreshes_total{repository="handler-test",success="false"} 1`))
}
