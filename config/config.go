package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment variable the config reads.
	EnvPrefix = "ADVISOR_"
	// PathEnv names the YAML config file when no path is passed to Load.
	PathEnv = "ADVISOR_CONFIG_PATH"
	// EnvFileEnv names the dotenv file. ".env" is read when it exists.
	EnvFileEnv     = "ADVISOR_ENV_FILE"
	DefaultEnvFile = ".env"

	SourceDefault     = "default"
	SourceFile        = "file"
	SourceDotenv      = "dotenv"
	SourceEnvironment = "environment"
)

// Policy source types, as accepted by source_type.
const (
	SourceTypeNone = ""
	SourceTypeFS   = "fs"
	SourceTypeHTTP = "http"
	SourceTypeGit  = "git"
	SourceTypeS3   = "s3"
	SourceTypeGCS  = "gcs"
)

// Config holds the settings of the command line tool and the service.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	ListenAddr string  `yaml:"listen_addr" json:"listen_addr"`
	AuthKey    string  `yaml:"auth_key" json:"auth_key"`
	RateLimit  float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst" json:"rate_burst"`

	// RefreshInterval is a Go duration, such as "30s".
	RefreshInterval string `yaml:"refresh_interval" json:"refresh_interval"`
	SourceName      string `yaml:"source_name" json:"source_name"`
	SourceType      string `yaml:"source_type" json:"source_type"`
	SourcePath      string `yaml:"source_path" json:"source_path"`
	SourceURL       string `yaml:"source_url" json:"source_url"`
	SourceBranch    string `yaml:"source_branch" json:"source_branch"`
	SourceBucket    string `yaml:"source_bucket" json:"source_bucket"`
	SourceObject    string `yaml:"source_object" json:"source_object"`
	SourceAPIKey    string `yaml:"source_api_key" json:"source_api_key"`

	AuditSchedule string `yaml:"audit_schedule" json:"audit_schedule"`
	AuditDSN      string `yaml:"audit_dsn" json:"audit_dsn"`
	AuditProfile  string `yaml:"audit_profile" json:"audit_profile"`

	// FailOn is the lowest severity that makes check exit non-zero.
	FailOn string `yaml:"fail_on" json:"fail_on"`

	sources        map[string]string
	configFilePath string
	envFilePath    string
}

// Attribute is one configuration value and where it came from.
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func newDefault() *Config {
	c := &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		ListenAddr:      ":8080",
		RateLimit:       20,
		RateBurst:       40,
		RefreshInterval: "30s",
		SourceName:      "policy",
		FailOn:          "critical",
		sources:         make(map[string]string),
	}
	for _, name := range attributeNames() {
		c.sources[name] = SourceDefault
	}
	return c
}

// Default returns the built-in configuration.
func Default() *Config {
	return newDefault()
}

// Load layers defaults, the YAML file at path (or $ADVISOR_CONFIG_PATH),
// the dotenv file and the ADVISOR_* environment, later layers winning.
// An empty path with no environment override skips the file layer.
func Load(path string) (*Config, error) {
	c := newDefault()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		var fileConfig Config
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		c.configFilePath = path
		c.applyFileConfig(&fileConfig)
	}

	envFile := os.Getenv(EnvFileEnv)
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		c.envFilePath = envFile
		c.applyEnv(func(key string) (string, bool) {
			v, ok := dotenv[key]
			return v, ok
		}, SourceDotenv)
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}

	c.applyEnv(os.LookupEnv, SourceEnvironment)
	return c, nil
}

func attributeNames() []string {
	return []string{
		"log_level", "log_format", "listen_addr", "auth_key", "rate_limit",
		"rate_burst", "refresh_interval", "source_name", "source_type",
		"source_path", "source_url", "source_branch", "source_bucket",
		"source_object", "source_api_key", "audit_schedule", "audit_dsn",
		"audit_profile", "fail_on",
	}
}

// stringFields maps the string attributes to their fields.
func (c *Config) stringFields() map[string]*string {
	return map[string]*string{
		"log_level":        &c.LogLevel,
		"log_format":       &c.LogFormat,
		"listen_addr":      &c.ListenAddr,
		"auth_key":         &c.AuthKey,
		"refresh_interval": &c.RefreshInterval,
		"source_name":      &c.SourceName,
		"source_type":      &c.SourceType,
		"source_path":      &c.SourcePath,
		"source_url":       &c.SourceURL,
		"source_branch":    &c.SourceBranch,
		"source_bucket":    &c.SourceBucket,
		"source_object":    &c.SourceObject,
		"source_api_key":   &c.SourceAPIKey,
		"audit_schedule":   &c.AuditSchedule,
		"audit_dsn":        &c.AuditDSN,
		"audit_profile":    &c.AuditProfile,
		"fail_on":          &c.FailOn,
	}
}

func (c *Config) applyFileConfig(file *Config) {
	from := file.stringFields()
	for name, field := range c.stringFields() {
		if v := *from[name]; v != "" {
			*field = v
			c.sources[name] = SourceFile
		}
	}
	if file.RateLimit != 0 {
		c.RateLimit = file.RateLimit
		c.sources["rate_limit"] = SourceFile
	}
	if file.RateBurst != 0 {
		c.RateBurst = file.RateBurst
		c.sources["rate_burst"] = SourceFile
	}
}

// applyEnv reads ADVISOR_<NAME> for every attribute. Unparseable numbers
// are logged and skipped.
func (c *Config) applyEnv(lookup func(string) (string, bool), source string) {
	for name, field := range c.stringFields() {
		if v, ok := lookup(envName(name)); ok && v != "" {
			*field = v
			c.sources[name] = source
		}
	}
	if v, ok := lookup(envName("rate_limit")); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
			c.sources["rate_limit"] = source
		} else {
			logrus.WithField("value", v).Warn("ignoring invalid " + envName("rate_limit"))
		}
	}
	if v, ok := lookup(envName("rate_burst")); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.RateBurst = i
			c.sources["rate_burst"] = source
		} else {
			logrus.WithField("value", v).Warn("ignoring invalid " + envName("rate_burst"))
		}
	}
}

func envName(attribute string) string {
	return EnvPrefix + strings.ToUpper(attribute)
}

// Set assigns an attribute by name, as a command line flag would, and marks
// its source as "flag".
func (c *Config) Set(name, value string) error {
	switch name {
	case "rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate_limit %q: %w", value, err)
		}
		c.RateLimit = f
	case "rate_burst":
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid rate_burst %q: %w", value, err)
		}
		c.RateBurst = i
	default:
		field, ok := c.stringFields()[name]
		if !ok {
			return fmt.Errorf("unknown configuration attribute %q", name)
		}
		*field = value
	}
	c.sources[name] = "flag"
	return nil
}

// Source returns where an attribute's value came from.
func (c *Config) Source(name string) string {
	if s, ok := c.sources[name]; ok {
		return s
	}
	return SourceDefault
}

func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Refresh returns the parsed refresh interval. Validate reports bad values.
func (c *Config) Refresh() time.Duration {
	d, _ := time.ParseDuration(c.RefreshInterval)
	return d
}

// FailOnSeverity returns the parsed fail_on threshold.
func (c *Config) FailOnSeverity() (model.Severity, error) {
	return model.ParseSeverity(c.FailOn)
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: use text or json", c.LogFormat)
	}
	if d, err := time.ParseDuration(c.RefreshInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid refresh_interval %q", c.RefreshInterval)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %v", c.RateLimit)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1, got %d", c.RateBurst)
	}
	if _, err := c.FailOnSeverity(); err != nil {
		return fmt.Errorf("invalid fail_on: %w", err)
	}
	if c.AuditSchedule != "" && c.AuditDSN == "" {
		return fmt.Errorf("audit_schedule requires audit_dsn")
	}
	return c.validateSource()
}

func (c *Config) validateSource() error {
	require := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("source_type %s requires %s", c.SourceType, field)
		}
		return nil
	}
	requireURL := func() error {
		if err := require("source_url", c.SourceURL); err != nil {
			return err
		}
		if _, err := url.ParseRequestURI(c.SourceURL); err != nil {
			return fmt.Errorf("invalid source_url: %w", err)
		}
		return nil
	}

	switch c.SourceType {
	case SourceTypeNone:
		return nil
	case SourceTypeFS:
		return require("source_path", c.SourcePath)
	case SourceTypeHTTP:
		return requireURL()
	case SourceTypeGit:
		if err := requireURL(); err != nil {
			return err
		}
		return require("source_path", c.SourcePath)
	case SourceTypeS3, SourceTypeGCS:
		if err := require("source_bucket", c.SourceBucket); err != nil {
			return err
		}
		return require("source_object", c.SourceObject)
	}
	return fmt.Errorf("invalid source_type %q: use fs, http, git, s3 or gcs", c.SourceType)
}

// ConfigureLogging applies log_level and log_format to the standard logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

var secretAttributes = map[string]bool{"auth_key": true, "source_api_key": true, "audit_dsn": true}

// Attributes lists every attribute with its source. Secrets are masked.
func (c *Config) Attributes() []Attribute {
	fields := c.stringFields()
	attrs := make([]Attribute, 0, len(attributeNames()))
	for _, name := range attributeNames() {
		var value string
		switch name {
		case "rate_limit":
			value = strconv.FormatFloat(c.RateLimit, 'f', -1, 64)
		case "rate_burst":
			value = strconv.Itoa(c.RateBurst)
		default:
			value = *fields[name]
		}
		if secretAttributes[name] && value != "" {
			value = "********"
		}
		attrs = append(attrs, Attribute{Name: name, Value: value, Source: c.Source(name)})
	}
	return attrs
}

func (c *Config) FormatText() string {
	var sb strings.Builder
	file := c.configFilePath
	if file == "" {
		file = "(none)"
	}
	sb.WriteString(fmt.Sprintf("Config file: %s\n", file))
	if c.envFilePath != "" {
		sb.WriteString(fmt.Sprintf("Env file: %s\n", c.envFilePath))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-20s %-30s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-20s %-30s %s\n", "----", "-----", "------"))
	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-20s %-30s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

func (c *Config) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"env_file":    c.envFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
