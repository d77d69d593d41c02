package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sardine-ai/go-config-advisor/metrics"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sirupsen/logrus"
)

const auditTimeout = time.Minute

// SettingsSource yields the live settings of a database.
// *pgcheck.Inspector implements it.
type SettingsSource interface {
	Settings(ctx context.Context) (*model.PropertySet, error)
}

// Audit is the outcome of one scheduled database audit.
type Audit struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  string        `json:"duration"`
	Report    *model.Report `json:"report,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ScheduleAudit validates the settings of inspector against profile on the
// cron schedule spec. Results are served on /v1/audit.
func (s *Server) ScheduleAudit(spec string, inspector SettingsSource, profile model.Profile) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.scheduler == nil {
		s.scheduler = cron.New()
	}
	_, err := s.scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		s.RunAudit(ctx, inspector, profile)
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	s.scheduler.Start()
	logrus.WithField("schedule", spec).Info("database audit scheduled")
	return nil
}

// RunAudit performs one audit and records it as the latest.
func (s *Server) RunAudit(ctx context.Context, inspector SettingsSource, profile model.Profile) *Audit {
	start := time.Now()
	audit := &Audit{StartedAt: start.UTC()}

	settings, err := inspector.Settings(ctx)
	if err == nil {
		// Only database settings are present, so absent application keys
		// must not be reported.
		audit.Report, err = s.advisor.ValidateSnippet(ctx, settings, profile)
	}
	if audit.Report != nil {
		audit.Report.Source = "pg_settings"
	}
	if err != nil {
		audit.Error = err.Error()
		logrus.WithError(err).Error("database audit failed")
	}
	elapsed := time.Since(start)
	audit.Duration = elapsed.String()
	metrics.RecordAudit(elapsed, err == nil)

	s.mu.Lock()
	s.audit = audit
	s.mu.Unlock()
	return audit
}

// LastAudit returns the latest audit, or nil when none has run.
func (s *Server) LastAudit() *Audit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audit
}
