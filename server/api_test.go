package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const advisorDocument = `policy:
  disabled_rules: [ACT001]
  severity_overrides:
    JPA003: info
profiles:
  api:
    environment: staging
    cpus: 2
    memory: 4GiB
    instances: 2
`

func newAdvisorServer(t *testing.T, document string) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))
	server := NewServer(context.Background(), []source.Repository{&source.FileRepository{Name: "advisor", Path: path}}, time.Minute)
	t.Cleanup(server.Stop)
	return server
}

func post(t *testing.T, handler http.Handler, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPolicyAppliedFromRepository(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	policy := server.Advisor().Policy()
	assert.Equal(t, []string{"ACT001"}, policy.DisabledRules)
	assert.Equal(t, model.SeverityInfo, policy.SeverityOverrides["JPA003"])
}

func TestInvalidPolicyKeepsPrevious(t *testing.T) {
	server := newAdvisorServer(t, "policy:\n  thresholds:\n    heap_headroom_ratio: 3\n")
	assert.Equal(t, advisor.DefaultPolicy(), server.Advisor().Policy())
	assert.True(t, server.IsHealthy())
}

func TestValidateEndpoint(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := server.CreateHandlers()

	w := post(t, handler, "/v1/validate", ValidateRequest{
		Profile: &model.Profile{CPUs: 4, Memory: 8 * model.GiB},
		Snippet: true,
		Files: []File{
			{Name: "application.properties", Content: "spring.jpa.open-in-view=true\nmanagement.endpoints.web.exposure.include=*\n"},
			{Name: "opts", Format: "jvm", Content: "-Xmx16g\n"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report model.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.NotEmpty(t, report.ID)
	assert.Contains(t, report.Rules(), "JPA001")
	assert.Contains(t, report.Rules(), "JVM001")
	assert.NotContains(t, report.Rules(), "ACT001")
	assert.True(t, report.Failed(model.SeverityCritical))

	origins := map[string]string{}
	for _, f := range report.Findings {
		origins[f.Rule] = f.Origin.File
	}
	assert.Equal(t, "application.properties", origins["JPA001"])
	assert.Equal(t, "opts", origins["JVM001"])
}

func TestValidateEndpointNamedProfile(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := server.CreateHandlers()

	w := post(t, handler, "/v1/validate", ValidateRequest{
		ProfileName: "api",
		Files:       []File{{Name: "application.yml", Content: "spring:\n  jpa:\n    show-sql: true\n"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report model.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "api", report.Profile.Name)
	assert.Equal(t, model.EnvStaging, report.Profile.Environment)
	assert.NotContains(t, report.Rules(), "JPA003")

	w = post(t, handler, "/v1/validate", ValidateRequest{
		ProfileName: "missing",
		Files:       []File{{Name: "application.yml", Content: "a: b\n"}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateEndpointBadRequests(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := server.CreateHandlers()

	cases := map[string]interface{}{
		"no files":       ValidateRequest{},
		"unknown format": ValidateRequest{Files: []File{{Name: "notes.txt", Content: "x"}}},
		"bad profile":    ValidateRequest{Profile: &model.Profile{CPUs: 0, Memory: 8 * model.GiB}, Files: []File{{Name: "a.properties", Content: "a=b"}}},
		"bad yaml":       ValidateRequest{Files: []File{{Name: "a.yml", Content: "a: [b"}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := post(t, handler, "/v1/validate", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader("{"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendEndpoint(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := server.CreateHandlers()
	profile := &model.Profile{CPUs: 4, Memory: 8 * model.GiB, Instances: 2}

	w := post(t, handler, "/v1/recommend", RecommendRequest{Profile: profile})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Application map[string]string `json:"application"`
		PostgreSQL  map[string]string `json:"postgresql"`
		JavaOpts    string            `json:"java_opts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Application, advisor.KeyPoolMax)
	assert.Contains(t, body.PostgreSQL, "shared_buffers")
	assert.Contains(t, body.JavaOpts, "-Xmx")

	w = post(t, handler, "/v1/recommend?format=postgresql", RecommendRequest{Profile: profile})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shared_buffers = ")
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))

	w = post(t, handler, "/v1/recommend?format=toml", RecommendRequest{Profile: profile})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, handler, "/v1/recommend?format=properties", RecommendRequest{ProfileName: "api"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), advisor.KeyPoolMax+"=")
}

func TestRulesEndpoint(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
	w := httptest.NewRecorder()
	server.CreateHandlers().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var rules []advisor.RuleInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	byID := map[string]advisor.RuleInfo{}
	for _, r := range rules {
		byID[r.ID] = r
	}
	assert.Contains(t, byID, advisor.RuleSyntax)
	assert.True(t, byID["ACT001"].Disabled)
	assert.False(t, byID["JVM001"].Disabled)
}

func TestRateLimit(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	server.RateLimit = 0.001
	server.RateBurst = 2
	handler := server.CreateHandlers()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/rules", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Probes are outside the limit.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := Auth(server.CreateHandlers(), "secret")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "config_advisor_source_refreshes_total")
}

func TestHandlerRecoversAndAuthenticates(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	server.AuthKey = "secret"
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/advisor", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/advisor", nil)
	req.Header.Set("X-API-KEY", "secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, advisorDocument, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestUnknownRepository(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	server.CreateHandlers().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeSettings struct {
	props *model.PropertySet
	err   error
}

func (f fakeSettings) Settings(context.Context) (*model.PropertySet, error) {
	return f.props, f.err
}

func TestAudit(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	handler := server.CreateHandlers()

	req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	props := model.NewPropertySet()
	props.Set(advisor.KeySharedBuffers, "7GB", model.Origin{File: "pg_settings", Line: 1})
	profile := model.Profile{CPUs: 4, Memory: 8 * model.GiB}
	audit := server.RunAudit(context.Background(), fakeSettings{props: props}, profile)
	require.NotNil(t, audit.Report)
	assert.Empty(t, audit.Error)
	assert.Equal(t, "pg_settings", audit.Report.Source)
	assert.Contains(t, audit.Report.Rules(), "PG001")

	req = httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var served Audit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &served))
	assert.Equal(t, audit.Report.ID, served.Report.ID)

	failed := server.RunAudit(context.Background(), fakeSettings{err: errors.New("connection refused")}, profile)
	assert.Equal(t, "connection refused", failed.Error)
	assert.Nil(t, failed.Report)
	assert.Same(t, failed, server.LastAudit())
}

func TestScheduleAudit(t *testing.T) {
	server := newAdvisorServer(t, advisorDocument)
	profile := model.Profile{CPUs: 4, Memory: 8 * model.GiB}

	assert.Error(t, server.ScheduleAudit("not a schedule", fakeSettings{}, profile))
	require.NoError(t, server.ScheduleAudit("@every 1s", fakeSettings{props: model.NewPropertySet()}, profile))
	assert.Eventually(t, func() bool { return server.LastAudit() != nil }, 3*time.Second, 20*time.Millisecond)
}
