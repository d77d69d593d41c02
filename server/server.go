package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-http-utils/etag"
	"github.com/gorilla/handlers"
	"github.com/robfig/cron/v3"
	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/client"
	"github.com/sardine-ai/go-config-advisor/metrics"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/sirupsen/logrus"
)

const (
	minRefreshInterval = 5 * time.Second
	shutdownTimeout    = 5 * time.Second

	defaultRateLimit = 20
	defaultRateBurst = 40
)

// RepositoryStatus is the refresh state of one policy source.
type RepositoryStatus struct {
	Name         string    `json:"name"`
	LastRefresh  time.Time `json:"last_refresh"`
	LastError    string    `json:"last_error,omitempty"`
	RefreshCount int       `json:"refresh_count"`
	IsHealthy    bool      `json:"is_healthy"`
}

// Server serves policy documents and the advisory API.
type Server struct {
	Repositories    []source.Repository
	RefreshInterval time.Duration
	AuthKey         string
	// RateLimit is the sustained requests per second allowed on /v1.
	RateLimit float64
	RateBurst int

	advisor *advisor.Advisor
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	status map[string]*RepositoryStatus
	audit  *Audit

	runMu      sync.Mutex
	httpServer *http.Server
	scheduler  *cron.Cron
}

// NewServer refreshes every repository once, then keeps each one fresh in
// its own goroutine until Stop. Intervals below five seconds are raised.
// A repository document with a policy section configures the advisor.
func NewServer(ctx context.Context, repository []source.Repository, refreshInterval time.Duration) *Server {
	if refreshInterval < minRefreshInterval {
		logrus.Warn("refresh interval too low, setting it to 5 seconds")
		refreshInterval = minRefreshInterval
	}
	// The default policy always validates.
	adv, _ := advisor.New(advisor.DefaultPolicy())

	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Repositories:    repository,
		RefreshInterval: refreshInterval,
		RateLimit:       defaultRateLimit,
		RateBurst:       defaultRateBurst,
		advisor:         adv,
		cancel:          cancel,
		status:          make(map[string]*RepositoryStatus, len(repository)),
	}
	for _, repo := range server.Repositories {
		server.status[repo.GetName()] = &RepositoryStatus{Name: repo.GetName()}
	}
	for _, repo := range server.Repositories {
		server.refreshRepository(ctx, repo)
	}
	for _, repo := range server.Repositories {
		server.wg.Add(1)
		go func(repo source.Repository) {
			defer server.wg.Done()
			server.refresh(ctx, repo)
		}(repo)
	}
	return server
}

// Advisor returns the advisor the API validates with.
func (s *Server) Advisor() *advisor.Advisor {
	return s.advisor
}

func (s *Server) refresh(ctx context.Context, repository source.Repository) {
	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.refreshRepository(ctx, repository)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) refreshRepository(ctx context.Context, repository source.Repository) {
	err := repository.Refresh(ctx)
	metrics.RecordRefresh(repository.GetName(), err == nil)

	s.mu.Lock()
	status := s.status[repository.GetName()]
	status.LastRefresh = time.Now()
	status.RefreshCount++
	if err != nil {
		status.LastError = err.Error()
		status.IsHealthy = false
	} else {
		status.LastError = ""
		status.IsHealthy = true
	}
	s.mu.Unlock()

	if err != nil {
		logrus.WithError(err).WithField("repository", repository.GetName()).Error("error refreshing repository")
		return
	}
	s.applyPolicy(repository)
}

// applyPolicy installs the repository's policy section, if it has one.
func (s *Server) applyPolicy(repository source.Repository) {
	if _, ok := repository.GetData(client.PolicyKey); !ok {
		return
	}
	policy, err := (&client.Client{Repository: repository}).Policy()
	if err == nil {
		err = s.advisor.SetPolicy(policy)
	}
	if err != nil {
		logrus.WithError(err).WithField("repository", repository.GetName()).Error("error applying policy, keeping the previous one")
	}
}

// IsHealthy reports whether the last refresh of every repository succeeded.
func (s *Server) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, status := range s.status {
		if !status.IsHealthy {
			return false
		}
	}
	return true
}

// IsReady reports whether there is something to serve: at least one
// repository holds data, or the server runs without repositories.
func (s *Server) IsReady() bool {
	if len(s.Repositories) == 0 {
		return true
	}
	for _, repo := range s.Repositories {
		if len(repo.GetRawData()) > 0 {
			return true
		}
	}
	return false
}

// GetRepositoryStatus returns a copy of the per-repository refresh state.
func (s *Server) GetRepositoryStatus() map[string]RepositoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]RepositoryStatus, len(s.status))
	for name, status := range s.status {
		out[name] = *status
	}
	return out
}

// Handler is CreateHandlers wrapped in the serving middleware chain.
func (s *Server) Handler() http.Handler {
	handler := etag.Handler(s.CreateHandlers(), false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}
	handler = metrics.InstrumentHandler(handler)
	handler = handlers.CompressHandler(handler)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(logrus.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(handler)
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	logrus.WithField("addr", addr).Info("Starting server")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.runMu.Lock()
	s.httpServer = httpServer
	s.runMu.Unlock()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		logrus.WithError(err).Error("error starting server")
	}
	return err
}

// Shutdown drains in-flight requests for up to five seconds, then stops the
// refresh loops and the audit schedule.
func (s *Server) Shutdown() error {
	s.runMu.Lock()
	httpServer := s.httpServer
	s.runMu.Unlock()

	var err error
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = httpServer.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop ends the refresh loops and the audit schedule and waits for them.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()

	s.runMu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.runMu.Unlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}
