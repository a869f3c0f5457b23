// ABOUTME: Configuration loading and parsing for chatdesk
// ABOUTME: YAML with environment variable expansion, plus env-var overrides

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chatdesk configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

// EngineConfig holds conversation engine tuning
type EngineConfig struct {
	ReplyTimeout time.Duration `yaml:"-" ignored:"true"`

	// Raw string value for YAML unmarshaling
	ReplyTimeoutRaw string `yaml:"reply_timeout" envconfig:"REPLY_TIMEOUT"`
}

// NotifyConfig holds the optional RabbitMQ event publisher configuration
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"ENABLED"`
	URL      string `yaml:"url" envconfig:"URL"`
	Exchange string `yaml:"exchange" envconfig:"EXCHANGE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded in the
// file; after parsing, CHATDESK_* environment variables override individual
// fields (CHATDESK_AUTH_JWT_SECRET, CHATDESK_SERVER_HTTP_ADDR, ...).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used before any file or env overrides.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "data/chatdesk.db"},
		Engine:   EngineConfig{ReplyTimeout: 10 * time.Second},
		Notify:   NotifyConfig{Exchange: "chatdesk.events"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// applyEnvOverrides layers CHATDESK_* environment variables over the parsed file.
func (c *Config) applyEnvOverrides() error {
	groups := []struct {
		prefix string
		target any
	}{
		{"CHATDESK_SERVER", &c.Server},
		{"CHATDESK_DATABASE", &c.Database},
		{"CHATDESK_AUTH", &c.Auth},
		{"CHATDESK_ENGINE", &c.Engine},
		{"CHATDESK_NOTIFY", &c.Notify},
		{"CHATDESK_LOGGING", &c.Logging},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("%s: %w", g.prefix, err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Engine.ReplyTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Engine.ReplyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_timeout %q: %w", cfg.Engine.ReplyTimeoutRaw, err)
		}
		cfg.Engine.ReplyTimeout = d
	}
	return nil
}
