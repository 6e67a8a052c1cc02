// ABOUTME: Configuration loading and parsing for zapgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete zapgate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WebhookConfig holds the outbound event sink configuration.
// Events that pass the dedupe window are POSTed to the URL.
type WebhookConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"-"`
	RetryDelay   time.Duration `yaml:"-"`
	RetryTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw      string `yaml:"timeout"`
	RetryDelayRaw   string `yaml:"retry_delay"`
	RetryTimeoutRaw string `yaml:"retry_timeout"`
}

// DedupeConfig holds event suppression configuration
type DedupeConfig struct {
	Window     time.Duration `yaml:"-"`
	MaxEntries int           `yaml:"max_entries"`

	WindowRaw string `yaml:"window"`
}

// SessionsConfig holds messaging-client configuration shared by all sessions
type SessionsConfig struct {
	// Driver selects the client implementation. "stub" runs an in-process
	// client that emits no real traffic; useful for development and tests.
	Driver   string `yaml:"driver"`
	Headless bool   `yaml:"headless"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults applied when the corresponding fields are absent from the file.
const (
	DefaultWebhookTimeout      = 10 * time.Second
	DefaultWebhookRetryDelay   = 5 * time.Second
	DefaultWebhookRetryTimeout = 20 * time.Second
	DefaultDedupeWindow        = 60 * time.Second
	DefaultDedupeMaxEntries    = 100_000
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = DefaultWebhookTimeout
	}
	if c.Webhook.RetryDelay == 0 {
		c.Webhook.RetryDelay = DefaultWebhookRetryDelay
	}
	if c.Webhook.RetryTimeout == 0 {
		c.Webhook.RetryTimeout = DefaultWebhookRetryTimeout
	}
	if c.Dedupe.Window == 0 {
		c.Dedupe.Window = DefaultDedupeWindow
	}
	if c.Dedupe.MaxEntries == 0 {
		c.Dedupe.MaxEntries = DefaultDedupeMaxEntries
	}
	if c.Sessions.Driver == "" {
		c.Sessions.Driver = "stub"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	// The webhook sink must be configured explicitly rather than falling
	// back to a loopback default.
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}

	if c.Sessions.Driver != "stub" {
		return fmt.Errorf("unknown sessions.driver %q", c.Sessions.Driver)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"webhook.timeout", cfg.Webhook.TimeoutRaw, &cfg.Webhook.Timeout},
		{"webhook.retry_delay", cfg.Webhook.RetryDelayRaw, &cfg.Webhook.RetryDelay},
		{"webhook.retry_timeout", cfg.Webhook.RetryTimeoutRaw, &cfg.Webhook.RetryTimeout},
		{"dedupe.window", cfg.Dedupe.WindowRaw, &cfg.Dedupe.Window},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
