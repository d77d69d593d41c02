package properties

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
)

// Format names a configuration file syntax.
type Format string

const (
	FormatProperties Format = "properties"
	FormatYAML       Format = "yaml"
	FormatPostgres   Format = "postgresql"
	FormatJVM        Format = "jvm"
)

var ErrUnknownFormat = errors.New("unknown configuration format")

// ParseFormat accepts the names used on the command line and in the API.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "properties", "props":
		return FormatProperties, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "postgresql", "postgres", "pg", "conf":
		return FormatPostgres, nil
	case "jvm", "java-opts", "jvm-options":
		return FormatJVM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat guesses the format from a file name.
func DetectFormat(filename string) (Format, error) {
	base := strings.ToLower(filepath.Base(filename))
	ext := filepath.Ext(base)
	switch {
	case ext == ".properties":
		return FormatProperties, nil
	case ext == ".yml" || ext == ".yaml":
		return FormatYAML, nil
	case base == "postgresql.conf" || base == "postgresql.auto.conf" || ext == ".conf":
		return FormatPostgres, nil
	case base == "jvm.options" || base == ".jvmopts" || base == "java_opts" || base == "setenv.sh" ||
		base == "dockerfile" || strings.HasSuffix(base, ".dockerfile") || ext == ".jvmopts":
		return FormatJVM, nil
	}
	return "", fmt.Errorf("%w: cannot infer format of %s", ErrUnknownFormat, filename)
}

// Parse decodes data in the given format. name is recorded as the origin.
func Parse(format Format, name string, data []byte) (*model.PropertySet, error) {
	switch format {
	case FormatProperties:
		return ParseProperties(name, data)
	case FormatYAML:
		return ParseYAML(name, data)
	case FormatPostgres:
		return ParsePostgresConf(name, data)
	case FormatJVM:
		return ParseJVMOptions(name, data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
