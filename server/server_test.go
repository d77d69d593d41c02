package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// policyRepository serves an in-memory policy document.
type policyRepository struct {
	mu           sync.RWMutex
	name         string
	next         string
	data         map[string]interface{}
	rawData      []byte
	refreshCount int
	err          error
}

func newPolicyRepository(name, document string) *policyRepository {
	return &policyRepository{name: name, next: document}
}

func (p *policyRepository) GetName() string {
	return p.name
}

func (p *policyRepository) GetData(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	return v, ok
}

func (p *policyRepository) GetRawData() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rawData
}

func (p *policyRepository) Refresh(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCount++
	if p.err != nil {
		return p.err
	}
	data := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(p.next), &data); err != nil {
		return err
	}
	p.data = data
	p.rawData = []byte(p.next)
	return nil
}

// publish replaces the document returned by the next refresh.
func (p *policyRepository) publish(document string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = document
}

func (p *policyRepository) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func get(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestServerHealthEndpoint(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()

	w := get(t, server.CreateHandlers(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeStatus(t, w)["status"])
}

func TestServerHealthEndpointUnhealthy(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	repo.fail(errors.New("bucket unreachable"))
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()

	handler := server.CreateHandlers()
	w := get(t, handler, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decodeStatus(t, w)["status"])

	w = get(t, handler, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// A later successful refresh recovers.
	repo.fail(nil)
	server.refreshRepository(context.Background(), repo)
	assert.True(t, server.IsHealthy())
	assert.True(t, server.IsReady())
}

func TestServerReadyWithoutRepositories(t *testing.T) {
	server := NewServer(context.Background(), nil, time.Minute)
	defer server.Stop()

	w := get(t, server.CreateHandlers(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeStatus(t, w)["status"])
	assert.True(t, server.IsHealthy())
}

func TestServerStatusEndpoint(t *testing.T) {
	healthy := newPolicyRepository("team-a", advisorDocument)
	broken := newPolicyRepository("team-b", advisorDocument)
	broken.fail(errors.New("403 Forbidden"))
	server := NewServer(context.Background(), []source.Repository{healthy, broken}, time.Minute)
	defer server.Stop()

	w := get(t, server.CreateHandlers(), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Healthy      bool                        `json:"healthy"`
		Ready        bool                        `json:"ready"`
		Repositories map[string]RepositoryStatus `json:"repositories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Healthy)
	assert.True(t, body.Ready)
	require.Len(t, body.Repositories, 2)
	assert.True(t, body.Repositories["team-a"].IsHealthy)
	assert.Equal(t, 1, body.Repositories["team-a"].RefreshCount)
	assert.Equal(t, "403 Forbidden", body.Repositories["team-b"].LastError)
	assert.False(t, body.Repositories["team-b"].LastRefresh.IsZero())
}

func TestServerRepositoryEndpoint(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()

	handler := server.CreateHandlers()
	w := get(t, handler, http.MethodGet, "/policy")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, advisorDocument, w.Body.String())

	w = get(t, handler, http.MethodHead, "/policy")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerMethodNotAllowed(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()

	handler := server.CreateHandlers()
	tests := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/policy"},
		{http.MethodPut, "/status"},
		{http.MethodGet, "/v1/validate"},
		{http.MethodPost, "/v1/rules"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := get(t, handler, tt.method, tt.target)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestServerAuthProtectsAPI(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()
	server.AuthKey = "s3cret"
	handler := server.Handler()

	for _, target := range []string{"/health", "/ready", "/status", "/metrics"} {
		w := get(t, handler, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, w.Code, target)
	}

	for _, target := range []string{"/policy", "/v1/rules"} {
		w := get(t, handler, http.MethodGet, target)
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)

		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-API-KEY", "wrong")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)

		req = httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-API-KEY", "s3cret")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, target)
	}
}

func TestServerRecoversFromPanics(t *testing.T) {
	server := NewServer(context.Background(), []source.Repository{&panickingRepository{}}, time.Minute)
	defer server.Stop()

	w := get(t, server.Handler(), http.MethodGet, "/broken")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// panickingRepository refreshes fine but panics when served.
type panickingRepository struct{}

func (panickingRepository) GetName() string                    { return "broken" }
func (panickingRepository) GetData(string) (interface{}, bool) { return nil, false }
func (panickingRepository) GetRawData() []byte                 { panic("corrupt document") }
func (panickingRepository) Refresh(context.Context) error      { return nil }

func TestServerPolicyFollowsRefreshes(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()
	assert.Equal(t, []string{"ACT001"}, server.Advisor().Policy().DisabledRules)

	repo.publish("policy:\n  disabled_rules: [PG006, POOL007]\n")
	server.refreshRepository(context.Background(), repo)
	assert.Equal(t, []string{"PG006", "POOL007"}, server.Advisor().Policy().DisabledRules)

	// A document without a policy section leaves the advisor alone.
	repo.publish("profiles: {}\n")
	server.refreshRepository(context.Background(), repo)
	assert.Equal(t, []string{"PG006", "POOL007"}, server.Advisor().Policy().DisabledRules)
}

func TestServerStop(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Second)

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 1, repo.refreshCount)
}

func TestServerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(ctx, []source.Repository{repo}, time.Second)
	cancel()

	done := make(chan struct{})
	go func() {
		server.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop ignored the cancelled context")
	}
	server.Stop()
}

func TestServerConcurrentStatusReads(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)
	defer server.Stop()
	handler := server.CreateHandlers()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = server.IsHealthy()
				_ = server.GetRepositoryStatus()
				_ = get(t, handler, http.MethodGet, "/status")
			}
		}()
		go func() {
			defer wg.Done()
			server.refreshRepository(context.Background(), repo)
		}()
	}
	wg.Wait()
	assert.Equal(t, 21, server.GetRepositoryStatus()["policy"].RefreshCount)
}

func TestServerStartReturnsError(t *testing.T) {
	server := NewServer(context.Background(), nil, time.Minute)
	defer server.Stop()

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start("invalid-address:99999999")
	}()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not fail")
	}
}

func TestServerShutdown(t *testing.T) {
	repo := newPolicyRepository("policy", advisorDocument)
	server := NewServer(context.Background(), []source.Repository{repo}, time.Minute)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start("127.0.0.1:0")
	}()
	assert.Eventually(t, func() bool {
		server.runMu.Lock()
		defer server.runMu.Unlock()
		return server.httpServer != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, server.Shutdown())
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestServerRefreshIntervalMinimum(t *testing.T) {
	server := NewServer(context.Background(), nil, time.Second)
	defer server.Stop()
	assert.Equal(t, minRefreshInterval, server.RefreshInterval)

	server = NewServer(context.Background(), nil, time.Minute)
	defer server.Stop()
	assert.Equal(t, time.Minute, server.RefreshInterval)
}
