package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sardine-ai/go-config-advisor/guide"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/report"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type guideLintOptions struct {
	profile  profileOptions
	output   string
	failOn   string
	noAdvice bool
}

var guideLintOpts guideLintOptions

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Work with markdown tuning guides",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'guide' requires a subcommand (lint)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var guideLintCmd = &cobra.Command{
	Use:   "lint FILE...",
	Short: "Check fenced code blocks in markdown guides",
	Long: `Check that every fenced code block in the guides carries a language tag
that matches its contents and that configuration snippets parse. Settings
found in snippets are also validated against the profile, one snippet at a
time; use --no-advice to skip that.

Example:
  config-advisor guide lint docs/*.md --output markdown`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed, err := runGuideLint(cmd.Context(), cmd, guideLintOpts, args, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to lint guides: %v\n", err)
			os.Exit(1)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(guideCmd)
	guideCmd.AddCommand(guideLintCmd)
	addProfileFlags(guideLintCmd, &guideLintOpts.profile)
	addOutputFlags(guideLintCmd, &guideLintOpts.output, &guideLintOpts.failOn)
	guideLintCmd.Flags().BoolVar(&guideLintOpts.noAdvice, "no-advice", false, "Only check code block tags and syntax")
}

func runGuideLint(ctx context.Context, cmd *cobra.Command, opts guideLintOptions, files []string, w io.Writer) (bool, error) {
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

	reports := make([]*model.Report, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			rep, err := lintGuide(ctx, s, profile, file, !opts.noAdvice)
			reports[i] = rep
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	if err := report.Write(w, output, reports...); err != nil {
		return false, err
	}
	failed := false
	for _, rep := range reports {
		failed = failed || rep.Failed(threshold)
	}
	return failed, nil
}

// lintGuide reports tag and syntax problems of one guide, plus the advisor
// findings for each configuration snippet when advise is set.
func lintGuide(ctx context.Context, s *session, profile model.Profile, file string, advise bool) (*model.Report, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	snippets, err := guide.Parse(file, src)
	if err != nil {
		return nil, err
	}

	rep := &model.Report{
		ID:          uuid.NewString(),
		Source:      file,
		Profile:     profile,
		Findings:    guide.Lint(snippets),
		GeneratedAt: time.Now().UTC(),
	}
	if advise {
		for _, ex := range guide.Extract(snippets) {
			snippetReport, err := s.advisor.ValidateSnippet(ctx, ex.Props, profile)
			if err != nil {
				return nil, err
			}
			rep.Profile = snippetReport.Profile
			rep.Findings = append(rep.Findings, snippetReport.Findings...)
		}
	}
	if rep.Findings == nil {
		rep.Findings = []model.Finding{}
	}
	rep.Sort()
	return rep, nil
}
