package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sardine-ai/go-config-advisor/client"
	"github.com/sardine-ai/go-config-advisor/config"
	"github.com/sardine-ai/go-config-advisor/hardware"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/pgcheck"
	"github.com/sardine-ai/go-config-advisor/server"
	"github.com/sardine-ai/go-config-advisor/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the advisory HTTP service",
	Long: `Serve the policy source, the validation API and Prometheus metrics.

Endpoints:
  GET  /health, /ready, /status, /metrics
  GET  /{source}           raw policy document
  POST /v1/validate        validate configuration files
  POST /v1/recommend       sized configuration (?format=properties|yaml|postgresql|java-opts)
  GET  /v1/rules           rule catalogue
  GET  /v1/audit           latest scheduled database audit

Everything except the probes and metrics requires the X-API-KEY header when
auth_key is set.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (overrides listen_addr)")
	serveCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			listen, _ := cmd.Flags().GetString("listen")
			return cfg.Set("listen_addr", listen)
		}
		return nil
	}
}

// newServer builds the service described by c, including the audit
// schedule, without starting to listen.
func newServer(ctx context.Context, c *config.Config) (*server.Server, error) {
	var repos []source.Repository
	repo, err := NewRepository(c)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		repos = append(repos, repo)
	}

	srv := server.NewServer(ctx, repos, c.Refresh())
	srv.AuthKey = c.AuthKey
	srv.RateLimit = c.RateLimit
	srv.RateBurst = c.RateBurst

	if c.AuditSchedule == "" {
		return srv, nil
	}
	profile, err := auditProfile(repo, c.AuditProfile)
	if err != nil {
		srv.Stop()
		return nil, err
	}
	inspector, err := pgcheck.Open(c.AuditDSN)
	if err != nil {
		srv.Stop()
		return nil, err
	}
	if err := srv.ScheduleAudit(c.AuditSchedule, inspector, profile); err != nil {
		srv.Stop()
		_ = inspector.Close()
		return nil, err
	}
	return srv, nil
}

func auditProfile(repo source.Repository, name string) (model.Profile, error) {
	if name == "" {
		return hardware.DefaultProfile(), nil
	}
	if repo == nil {
		return model.Profile{}, fmt.Errorf("audit_profile %s needs a policy source", name)
	}
	return (&client.Client{Repository: repo}).Profile(name)
}

func serve(ctx context.Context, c *config.Config) error {
	srv, err := newServer(ctx, c)
	if err != nil {
		return err
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Start(c.ListenAddr)
	}()

	select {
	case err := <-errs:
		srv.Stop()
		return err
	case <-ctx.Done():
		logrus.Info("Shutting down")
		return srv.Shutdown()
	}
}
