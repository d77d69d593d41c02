package properties

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
)

// ParsePostgresConf reads postgresql.conf style "name = value" lines into
// postgres.* keys. Include directives are skipped.
func ParsePostgresConf(name string, data []byte) (*model.PropertySet, error) {
	set := model.NewPropertySet()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(stripConfComment(scanner.Text()))
		if line == "" {
			continue
		}

		guc, value, err := splitConfLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNum, err)
		}
		switch strings.ToLower(guc) {
		case "include", "include_if_exists", "include_dir":
			continue
		}
		set.Set(PostgresKey(guc), value, model.Origin{File: name, Line: lineNum})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// stripConfComment removes a trailing # comment that is not inside quotes.
func stripConfComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\'':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return line[:i]
			}
		}
	}
	return line
}

func splitConfLine(line string) (string, string, error) {
	end := strings.IndexAny(line, " \t=")
	if end <= 0 {
		return "", "", fmt.Errorf("%w: expected name = value, got %q", ErrInvalidValue, line)
	}
	guc := line[:end]
	rest := strings.TrimSpace(line[end:])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "="))
	if rest == "" {
		return "", "", fmt.Errorf("%w: %s has no value", ErrInvalidValue, guc)
	}
	if strings.HasPrefix(rest, "'") {
		if len(rest) < 2 || !strings.HasSuffix(rest, "'") {
			return "", "", fmt.Errorf("%w: unterminated quoted value for %s", ErrInvalidValue, guc)
		}
		rest = strings.ReplaceAll(rest[1:len(rest)-1], "''", "'")
	}
	return guc, rest, nil
}
