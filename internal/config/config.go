// ABOUTME: Configuration loading and parsing for helix-backend.
// ABOUTME: YAML with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete helix-backend configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Agent    AgentConfig    `yaml:"agent"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables
// auth entirely, which is the normal local-development mode.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AgentConfig configures the scripted agent.
type AgentConfig struct {
	// Script is the path to a TOML scenario file. Empty means the built-in
	// echo scenario.
	Script string `yaml:"script"`

	// BaseDir is the root for workspace files and skills served by the file
	// endpoints.
	BaseDir string `yaml:"base_dir"`

	TokenDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenDelayRaw string `yaml:"token_delay"`
}

// ChatConfig holds chat-turn limits.
type ChatConfig struct {
	MaxMessageLength  int `yaml:"max_message_length"`
	CompressThreshold int `yaml:"compress_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves fields unset.
const (
	DefaultHTTPAddr          = ":8002"
	DefaultMaxMessageLength  = 32000
	DefaultCompressThreshold = 40
	DefaultTokenDelay        = 15 * time.Millisecond
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

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

// Default returns a configuration usable without any file, for running the
// development backend with zero setup.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Database.Path = "helix.db"
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Chat.CompressThreshold == 0 {
		c.Chat.CompressThreshold = DefaultCompressThreshold
	}
	if c.Agent.TokenDelay == 0 && c.Agent.TokenDelayRaw == "" {
		c.Agent.TokenDelay = DefaultTokenDelay
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
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

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Chat.MaxMessageLength < 0 {
		return fmt.Errorf("chat.max_message_length must not be negative")
	}
	if c.Chat.CompressThreshold < 0 {
		return fmt.Errorf("chat.compress_threshold must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Agent.TokenDelayRaw != "" {
		d, err := time.ParseDuration(cfg.Agent.TokenDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing token_delay %q: %w", cfg.Agent.TokenDelayRaw, err)
		}
		cfg.Agent.TokenDelay = d
	}
	return nil
}
