package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/spf13/cobra"
)

type recommendOptions struct {
	profile profileOptions
	format  string
	out     string
}

var recommendOpts recommendOptions

// recommendationFiles maps each rendered format to its file name under --out.
var recommendationFiles = []struct {
	format string
	name   string
}{
	{"properties", "application.properties"},
	{"yaml", "application.yml"},
	{"postgresql", "postgresql.conf"},
	{"java-opts", "java-opts.txt"},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Emit configuration sized for a hardware profile",
	Long: `Emit Spring Boot, JVM and PostgreSQL settings sized for a profile. The
output validates without warnings under the active policy.

Formats: properties, yaml, postgresql, java-opts, json, all. With --out the
files are written to that directory; "all" writes every file.

Example:
  config-advisor recommend --cpus 8 --memory 16GiB --instances 3
  config-advisor recommend --profile-name api --format all --out ./generated`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s, err := newSession(ctx, cfg)
		if err == nil {
			err = runRecommend(ctx, cmd, s, recommendOpts, os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to recommend configuration: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	addProfileFlags(recommendCmd, &recommendOpts.profile)
	recommendCmd.Flags().StringVar(&recommendOpts.format, "format", "properties", "Output format (properties, yaml, postgresql, java-opts, json, all)")
	recommendCmd.Flags().StringVar(&recommendOpts.out, "out", "", "Directory to write the files to instead of stdout")
}

func runRecommend(ctx context.Context, cmd *cobra.Command, s *session, opts recommendOptions, w io.Writer) error {
	profile, err := opts.profile.resolve(ctx, cmd, s)
	if err != nil {
		return err
	}
	rec, err := s.advisor.Recommend(profile)
	if err != nil {
		return err
	}
	if opts.out != "" {
		return writeRecommendation(rec, opts.format, opts.out, w)
	}
	return printRecommendation(rec, opts.format, w)
}

func printRecommendation(rec *advisor.Recommendation, format string, w io.Writer) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "all":
		for i, f := range recommendationFiles {
			data, err := rec.Render(f.format)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# ==> %s <==\n", f.name)
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := rec.Render(format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// writeRecommendation writes the requested files into dir and lists them on w.
func writeRecommendation(rec *advisor.Recommendation, format, dir string, w io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", path)
		return nil
	}

	if format == "json" {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		return write("recommendation.json", append(data, '\n'))
	}
	matched := false
	for _, f := range recommendationFiles {
		if format != "all" && format != f.format {
			continue
		}
		matched = true
		data, err := rec.Render(f.format)
		if err != nil {
			return err
		}
		if err := write(f.name, data); err != nil {
			return err
		}
	}
	if matched {
		return nil
	}
	data, err := rec.Render(format)
	if err != nil {
		return err
	}
	return write("recommendation."+format, data)
}
