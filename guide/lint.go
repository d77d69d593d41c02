package guide

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

const (
	RuleTagMismatch = "GUIDE001"
	RuleMissingTag  = "GUIDE002"
	RuleParseError  = "GUIDE003"
)

var tagKinds = map[string]Kind{
	"properties":      KindProperties,
	"props":           KindProperties,
	"java-properties": KindProperties,
	"yaml":            KindYAML,
	"yml":             KindYAML,
	"sql":             KindSQL,
	"java":            KindJava,
	"dockerfile":      KindDockerfile,
	"docker":          KindDockerfile,
	"sh":              KindShell,
	"bash":            KindShell,
	"shell":           KindShell,
	"console":         KindShell,
	"zsh":             KindShell,
	"shell-session":   KindShell,
	"json":            KindJSON,
	"xml":             KindXML,
	"jvm":             KindJVM,
	"java-opts":       KindJVM,
}

// plainTags carry no claim about the content.
var plainTags = map[string]bool{"text": true, "txt": true, "plaintext": true, "plain": true}

// DeclaredKind maps a fence tag to a kind. Tags that depend on content,
// such as conf or postgresql, are resolved against the detected kind. ok is
// false for tags that make no claim, including the empty tag.
func DeclaredKind(tag string, detected Kind) (Kind, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if kind, found := tagKinds[tag]; found {
		return kind, true
	}
	switch tag {
	case "conf", "ini", "cfg", "config":
		if detected == KindPostgreSQL {
			return KindPostgreSQL, true
		}
		return KindProperties, true
	case "postgresql", "postgres", "pgsql", "plpgsql", "psql":
		if detected == KindPostgreSQL {
			return KindPostgreSQL, true
		}
		return KindSQL, true
	}
	return "", false
}

// compatible reports whether content of kind detected may carry tag kind declared.
func compatible(declared, detected Kind) bool {
	switch {
	case declared == detected, detected == KindUnknown:
		return true
	case declared == KindShell && (detected == KindJVM || detected == KindSQL):
		return true
	case declared == KindYAML && (detected == KindJSON || detected == KindProperties):
		return true
	case declared == KindProperties && detected == KindPostgreSQL:
		return true
	case declared == KindDockerfile && detected == KindJVM:
		return true
	}
	return false
}

// Lint checks each snippet's tag against its content and parses the
// configuration snippets.
func Lint(snippets []Snippet) []model.Finding {
	var findings []model.Finding
	for _, s := range snippets {
		origin := model.Origin{File: s.File, Line: s.Line}
		detected := Classify(s.Content)
		declared, ok := DeclaredKind(s.Language, detected)

		switch {
		case s.Language == "":
			findings = append(findings, model.Finding{
				Rule:       RuleMissingTag,
				Severity:   model.SeverityInfo,
				Message:    "fenced block has no language tag" + sectionSuffix(s),
				Suggestion: suggestTag(detected),
				Origin:     origin,
			})
		case ok && !compatible(declared, detected):
			findings = append(findings, model.Finding{
				Rule:       RuleTagMismatch,
				Severity:   model.SeverityWarning,
				Message:    fmt.Sprintf("block is tagged %q but looks like %s%s", s.Language, detected, sectionSuffix(s)),
				Suggestion: suggestTag(detected),
				Origin:     origin,
			})
		}

		kind := effectiveKind(s)
		if kind == KindProperties || kind == KindYAML || kind == KindPostgreSQL {
			if _, err := properties.Parse(formatOf(kind), s.File, []byte(s.Content)); err != nil {
				findings = append(findings, model.Finding{
					Rule:     RuleParseError,
					Severity: model.SeverityWarning,
					Message:  fmt.Sprintf("%s snippet does not parse: %v", kind, err),
					Origin:   origin,
				})
			}
		}
	}
	return findings
}

func sectionSuffix(s Snippet) string {
	if s.Section == "" {
		return ""
	}
	return fmt.Sprintf(" (section %q)", s.Section)
}

func suggestTag(kind Kind) string {
	if kind == KindUnknown {
		return "add a language tag, or text for prose"
	}
	return "tag it as " + string(kind)
}

// effectiveKind prefers what the content shows and falls back to the tag
// when the content is not recognisable.
func effectiveKind(s Snippet) Kind {
	if plainTags[strings.ToLower(s.Language)] {
		return KindUnknown
	}
	detected := Classify(s.Content)
	declared, ok := DeclaredKind(s.Language, detected)
	if !ok || detected != KindUnknown {
		return detected
	}
	return declared
}

func formatOf(kind Kind) properties.Format {
	switch kind {
	case KindYAML:
		return properties.FormatYAML
	case KindPostgreSQL:
		return properties.FormatPostgres
	case KindJVM:
		return properties.FormatJVM
	}
	return properties.FormatProperties
}

// Extraction is the configuration found in one snippet.
type Extraction struct {
	Snippet Snippet
	Kind    Kind
	Props   *model.PropertySet
}

// Extract turns configuration snippets into PropertySets whose origins point
// at the guide. Snippets that fail to parse are left to Lint. Shell and
// Dockerfile snippets contribute their JVM flags; SQL snippets contribute
// their SET statements.
func Extract(snippets []Snippet) []Extraction {
	var out []Extraction
	for _, s := range snippets {
		kind := effectiveKind(s)
		var (
			set *model.PropertySet
			err error
		)
		switch kind {
		case KindProperties, KindYAML, KindPostgreSQL, KindJVM:
			set, err = properties.Parse(formatOf(kind), s.File, []byte(s.Content))
		case KindShell, KindDockerfile:
			set, err = properties.ParseJVMOptions(s.File, []byte(s.Content))
		case KindSQL:
			set = parseSQLSettings(s.File, s.Content)
		default:
			continue
		}
		if err != nil || set == nil || set.Len() == 0 {
			continue
		}
		out = append(out, Extraction{Snippet: s, Kind: kind, Props: shift(set, s)})
	}
	return out
}

// shift moves origins from snippet-relative lines to guide lines.
func shift(set *model.PropertySet, s Snippet) *model.PropertySet {
	shifted := model.NewPropertySet()
	for _, p := range set.Properties() {
		shifted.Set(p.Key, p.Value, model.Origin{File: s.File, Line: s.Line + p.Origin.Line})
	}
	return shifted
}

var sqlSet = regexp.MustCompile(`(?i)^\s*(?:alter\s+system\s+)?set\s+([a-z_][a-z0-9_]*)\s*(?:=|\bto\b)\s*(.+?)\s*;?\s*$`)

// parseSQLSettings picks up "ALTER SYSTEM SET name = value" and
// "SET name TO value" statements.
func parseSQLSettings(name, content string) *model.PropertySet {
	set := model.NewPropertySet()
	for i, line := range strings.Split(content, "\n") {
		m := sqlSet.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = strings.ReplaceAll(value[1:len(value)-1], "''", "'")
		}
		set.Set(properties.PostgresKey(m[1]), value, model.Origin{File: name, Line: i + 1})
	}
	return set
}
