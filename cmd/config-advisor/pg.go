package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/pgcheck"
	"github.com/sardine-ai/go-config-advisor/report"
	"github.com/spf13/cobra"
)

type pgInspectOptions struct {
	profile profileOptions
	dsn     string
	output  string
	failOn  string
}

var pgInspectOpts pgInspectOptions

var pgCmd = &cobra.Command{
	Use:   "pg",
	Short: "Inspect a running PostgreSQL server",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'pg' requires a subcommand (inspect)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var pgInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Validate the live settings of a PostgreSQL server",
	Long: `Read the advised settings from pg_settings and validate them against the
database host of the profile. Nothing is changed on the server.

The DSN defaults to audit_dsn from the configuration.

Example:
  config-advisor pg inspect --dsn postgres://advisor@db:5432/postgres?sslmode=disable --db-memory 32GiB`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		failed, err := runPGInspect(cmd.Context(), cmd, pgInspectOpts, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to inspect database: %v\n", err)
			os.Exit(1)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(pgCmd)
	pgCmd.AddCommand(pgInspectCmd)
	addProfileFlags(pgInspectCmd, &pgInspectOpts.profile)
	addOutputFlags(pgInspectCmd, &pgInspectOpts.output, &pgInspectOpts.failOn)
	pgInspectCmd.Flags().StringVar(&pgInspectOpts.dsn, "dsn", "", "PostgreSQL connection string")
}

// settingsSource is satisfied by *pgcheck.Inspector.
type settingsSource interface {
	Settings(ctx context.Context) (*model.PropertySet, error)
}

func runPGInspect(ctx context.Context, cmd *cobra.Command, opts pgInspectOptions, w io.Writer) (bool, error) {
	dsn := opts.dsn
	if dsn == "" {
		dsn = cfg.AuditDSN
	}
	if dsn == "" {
		return false, fmt.Errorf("--dsn or audit_dsn is required")
	}
	inspector, err := pgcheck.Open(dsn)
	if err != nil {
		return false, err
	}
	defer func() { _ = inspector.Close() }()
	if err := inspector.Ping(ctx); err != nil {
		return false, fmt.Errorf("connecting to database: %w", err)
	}
	return inspectSettings(ctx, cmd, opts, inspector, w)
}

func inspectSettings(ctx context.Context, cmd *cobra.Command, opts pgInspectOptions, settings settingsSource, w io.Writer) (bool, error) {
	output, err := report.ParseFormat(opts.output)
	if err != nil {
		return false, err
	}
	threshold, err := failThreshold(opts.failOn)
	if err != nil {
		return false, err
	}
	s, err := newSession(ctx, cfg)
	if err != nil {
		return false, err
	}
	profile, err := opts.profile.resolve(ctx, cmd, s)
	if err != nil {
		return false, err
	}
	props, err := settings.Settings(ctx)
	if err != nil {
		return false, err
	}
	rep, err := s.advisor.ValidateSnippet(ctx, props, profile)
	if err != nil {
		return false, err
	}
	rep.Source = pgcheck.Origin
	if err := report.Write(w, output, rep); err != nil {
		return false, err
	}
	return rep.Failed(threshold), nil
}
