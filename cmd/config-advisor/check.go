package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
	"github.com/sardine-ai/go-config-advisor/report"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type checkOptions struct {
	profile profileOptions
	format  string
	output  string
	failOn  string
	snippet bool
}

var checkOpts checkOptions

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Validate configuration files against a hardware profile",
	Long: `Merge the given files, later files winning, and validate the result.

The format of each file is inferred from its name (application.properties,
application.yml, postgresql.conf, jvm.options, Dockerfile). Use --format to
force one format for every file.

The command exits with status 1 when a finding reaches --fail-on.

Example:
  config-advisor check application.yml postgresql.conf --cpus 4 --memory 8GiB
  config-advisor check --profile-name api --output pretty application.properties`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed, err := runCheck(cmd.Context(), cmd, checkOpts, args, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check configuration: %v\n", err)
			os.Exit(1)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addProfileFlags(checkCmd, &checkOpts.profile)
	addOutputFlags(checkCmd, &checkOpts.output, &checkOpts.failOn)
	checkCmd.Flags().StringVar(&checkOpts.format, "format", "", "Input format for every file (properties, yaml, postgresql, jvm)")
	checkCmd.Flags().BoolVar(&checkOpts.snippet, "snippet", false, "Treat the files as a fragment and skip rules about absent keys")
}

// addOutputFlags registers --output and --fail-on. An empty --fail-on falls
// back to the configured fail_on.
func addOutputFlags(cmd *cobra.Command, output, failOn *string) {
	cmd.Flags().StringVarP(output, "output", "o", "text", "Output format (text, json, markdown, pretty)")
	cmd.Flags().StringVar(failOn, "fail-on", "", "Lowest severity that fails the command (info, warning, critical)")
}

func failThreshold(flag string) (model.Severity, error) {
	if flag == "" {
		return cfg.FailOnSeverity()
	}
	return model.ParseSeverity(flag)
}

// parseFiles reads and parses files concurrently, then merges them in
// argument order.
func parseFiles(ctx context.Context, files []string, forced string) (*model.PropertySet, error) {
	var forcedFormat properties.Format
	if forced != "" {
		f, err := properties.ParseFormat(forced)
		if err != nil {
			return nil, err
		}
		forcedFormat = f
	}

	sets := make([]*model.PropertySet, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			format := forcedFormat
			if format == "" {
				detected, err := properties.DetectFormat(file)
				if err != nil {
					return err
				}
				format = detected
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			sets[i], err = properties.Parse(format, file, data)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := model.NewPropertySet()
	for _, set := range sets {
		merged.Merge(set)
	}
	return merged, nil
}

// runCheck validates files and writes the report to w. It reports whether
// the failure threshold was reached.
func runCheck(ctx context.Context, cmd *cobra.Command, opts checkOptions, files []string, w io.Writer) (bool, error) {
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
	props, err := parseFiles(ctx, files, opts.format)
	if err != nil {
		return false, err
	}

	validate := s.advisor.Validate
	if opts.snippet {
		validate = s.advisor.ValidateSnippet
	}
	rep, err := validate(ctx, props, profile)
	if err != nil {
		return false, err
	}
	rep.Source = strings.Join(files, ", ")
	if err := report.Write(w, output, rep); err != nil {
		return false, err
	}
	return rep.Failed(threshold), nil
}
