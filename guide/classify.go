package guide

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind is what a snippet's content looks like.
type Kind string

const (
	KindProperties Kind = "properties"
	KindYAML       Kind = "yaml"
	KindPostgreSQL Kind = "postgresql"
	KindJVM        Kind = "jvm"
	KindSQL        Kind = "sql"
	KindJava       Kind = "java"
	KindDockerfile Kind = "dockerfile"
	KindShell      Kind = "shell"
	KindJSON       Kind = "json"
	KindXML        Kind = "xml"
	KindUnknown    Kind = "unknown"
)

// IsConfig reports whether the kind can be turned into properties.
func (k Kind) IsConfig() bool {
	switch k {
	case KindProperties, KindYAML, KindPostgreSQL, KindJVM:
		return true
	}
	return false
}

var (
	dockerLine  = regexp.MustCompile(`^(FROM|RUN|CMD|ENTRYPOINT|COPY|ADD|ENV|ARG|EXPOSE|WORKDIR|USER|LABEL|HEALTHCHECK|VOLUME)\s`)
	sqlLine     = regexp.MustCompile(`(?i)^(select|insert|update|delete|create|alter|drop|with|grant|revoke|show|explain|vacuum|analyze|begin|commit|reset)(\s+[^:=\s]|;|$)`)
	javaLine    = regexp.MustCompile(`^(package\s+[\w.]+;|import\s+(static\s+)?[\w.*]+;|@[A-Z]\w*|(public|private|protected)\s+|(final\s+)?class\s+\w+)`)
	shellLine   = regexp.MustCompile(`^(\$\s|#!|export\s|sudo\s|docker\s|kubectl\s|helm\s|curl\s|mvn\s|\./|gradle\s|psql\s|pg_\w+\s|apt(-get)?\s|echo\s|cd\s|java\s)`)
	jvmFlag     = regexp.MustCompile(`(^|[\s"'=])-X[\w:+-]`)
	yamlKey     = regexp.MustCompile(`^\s*[\w.\-\[\]"']+:(\s|$)`)
	yamlItem    = regexp.MustCompile(`^\s*-\s`)
	propLine    = regexp.MustCompile(`^[\w\-\[\]]+(\.[\w\-\[\]]+)+\s*[=:]`)
	gucLine     = regexp.MustCompile(`^[a-z][a-z0-9_]*\s*=\s*\S`)
	nestedEntry = regexp.MustCompile(`^\s+\S`)
)

// Classify guesses the kind of a snippet from its content alone.
func Classify(content string) Kind {
	lines := codeLines(content)
	if len(lines) == 0 {
		return KindUnknown
	}
	trimmed := strings.TrimSpace(content)
	first := strings.TrimSpace(lines[0])

	switch {
	case strings.HasPrefix(trimmed, "<"):
		return KindXML
	case (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)):
		return KindJSON
	case dockerLine.MatchString(first) && anyMatch(lines, dockerLine):
		return KindDockerfile
	case sqlLine.MatchString(first):
		return KindSQL
	case anyMatch(lines, javaLine) && strings.ContainsAny(trimmed, ";{"):
		return KindJava
	case allMatch(lines, jvmFlag):
		return KindJVM
	case shellLine.MatchString(first):
		return KindShell
	}
	return classifyConfig(lines)
}

func classifyConfig(lines []string) Kind {
	var yamlCount, propCount, gucCount int
	for _, line := range lines {
		switch {
		case gucLine.MatchString(line):
			gucCount++
		case propLine.MatchString(line) && !strings.HasSuffix(strings.TrimSpace(line), ":"):
			propCount++
		case yamlKey.MatchString(line) || yamlItem.MatchString(line) || nestedEntry.MatchString(line):
			yamlCount++
		}
	}
	total := len(lines)
	switch {
	case gucCount == total:
		return KindPostgreSQL
	case yamlCount > 0 && yamlCount+propCount == total && hasNesting(lines):
		return KindYAML
	case propCount > 0 && propCount+gucCount == total:
		return KindProperties
	case yamlCount == total:
		return KindYAML
	}
	return KindUnknown
}

// hasNesting reports whether the lines use indentation or list items, which
// dotted .properties keys never do.
func hasNesting(lines []string) bool {
	for _, line := range lines {
		if nestedEntry.MatchString(line) || yamlItem.MatchString(line) {
			return true
		}
	}
	return false
}

// codeLines drops blank lines and whole-line comments.
func codeLines(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "--") || (strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "#!")) {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t\r"))
	}
	return out
}

func anyMatch(lines []string, re *regexp.Regexp) bool {
	for _, line := range lines {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func allMatch(lines []string, re *regexp.Regexp) bool {
	for _, line := range lines {
		if !re.MatchString(line) {
			return false
		}
	}
	return true
}
