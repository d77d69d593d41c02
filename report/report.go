// Package report renders validation reports for terminals and pipelines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/sardine-ai/go-config-advisor/model"
)

type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPretty   Format = "pretty"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "pretty":
		return FormatPretty, nil
	}
	return "", fmt.Errorf("unknown output format %q: use text, json, markdown or pretty", s)
}

// Write renders reports to w. JSON output is a single object for one
// report and an array otherwise.
func Write(w io.Writer, format Format, reports ...*model.Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(reports) == 1 {
			return enc.Encode(reports[0])
		}
		if reports == nil {
			reports = []*model.Report{}
		}
		return enc.Encode(reports)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(reports...))
		return err
	case FormatPretty:
		out, err := Pretty(reports...)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case FormatText, "":
		_, err := io.WriteString(w, Text(reports...))
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

// Summary reads like "2 findings: 1 critical, 1 warning".
func Summary(r *model.Report) string {
	n := len(r.Findings)
	if n == 0 {
		return "no findings"
	}
	var parts []string
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo} {
		if c := r.Count(sev); c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, sev))
		}
	}
	return english.Plural(n, "finding", "") + ": " + strings.Join(parts, ", ")
}

func describeProfile(p model.Profile) string {
	name := p.Name
	if name == "" {
		name = "profile"
	}
	desc := fmt.Sprintf("%s (%s, %s, %s RAM, %s",
		name, p.Environment, english.Plural(p.CPUs, "CPU", ""),
		humanize.IBytes(uint64(p.Memory)), english.Plural(p.Instances, "instance", ""))
	if p.Containerized {
		desc += ", containerized"
	}
	return desc + ")"
}

func Text(reports ...*model.Report) string {
	var sb strings.Builder
	for i, r := range reports {
		if i > 0 {
			sb.WriteString("\n")
		}
		if r.Source != "" {
			fmt.Fprintf(&sb, "%s\n", r.Source)
		}
		fmt.Fprintf(&sb, "%s: %s\n", describeProfile(r.Profile), Summary(r))
		for _, f := range r.Findings {
			fmt.Fprintf(&sb, "  %-8s %-9s %s", strings.ToUpper(f.Severity.String()), f.Rule, f.Message)
			if origin := f.Origin.String(); origin != "" {
				fmt.Fprintf(&sb, " [%s]", origin)
			}
			sb.WriteString("\n")
			if f.Suggestion != "" {
				fmt.Fprintf(&sb, "  %-8s %-9s -> %s\n", "", "", f.Suggestion)
			}
		}
	}
	return sb.String()
}

var severityIcon = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityWarning:  "🟡",
	model.SeverityInfo:     "🔵",
}

func Markdown(reports ...*model.Report) string {
	var sb strings.Builder
	for i, r := range reports {
		if i > 0 {
			sb.WriteString("\n")
		}
		title := "Configuration report"
		if r.Source != "" {
			title = r.Source
		}
		fmt.Fprintf(&sb, "## %s\n\n", title)
		fmt.Fprintf(&sb, "%s: **%s**\n\n", describeProfile(r.Profile), Summary(r))
		if len(r.Findings) == 0 {
			continue
		}
		sb.WriteString("| Severity | Rule | Keys | Message | Suggestion | Origin |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, f := range r.Findings {
			keys := make([]string, len(f.Keys))
			for j, k := range f.Keys {
				keys[j] = "`" + k + "`"
			}
			fmt.Fprintf(&sb, "| %s %s | %s | %s | %s | %s | %s |\n",
				severityIcon[f.Severity], f.Severity, f.Rule, strings.Join(keys, ", "),
				escapeCell(f.Message), escapeCell(f.Suggestion), f.Origin)
		}
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Pretty renders the markdown report for a terminal.
func Pretty(reports ...*model.Report) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(Markdown(reports...))
}
