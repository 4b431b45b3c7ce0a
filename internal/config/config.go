// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Bot      BotConfig      `yaml:"bot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// BotConfig holds bot responder configuration
type BotConfig struct {
	Provider     string        `yaml:"provider"` // "openai" or "echo"
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"system_prompt"`
	ReplyTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReplyTimeoutRaw string `yaml:"reply_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves fields unset
const (
	DefaultTokenTTL     = 30 * 24 * time.Hour
	DefaultReplyTimeout = 60 * time.Second
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
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

	switch c.Bot.Provider {
	case "", "echo":
	case "openai":
		if c.Bot.APIKey == "" {
			return fmt.Errorf("bot.api_key is required when bot.provider is openai")
		}
	default:
		return fmt.Errorf("bot.provider must be \"openai\" or \"echo\", got %q", c.Bot.Provider)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
// and applies defaults for unset fields
func parseDurations(cfg *Config) error {
	var err error

	cfg.Auth.TokenTTL = DefaultTokenTTL
	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	cfg.Bot.ReplyTimeout = DefaultReplyTimeout
	if cfg.Bot.ReplyTimeoutRaw != "" {
		cfg.Bot.ReplyTimeout, err = time.ParseDuration(cfg.Bot.ReplyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_timeout %q: %w", cfg.Bot.ReplyTimeoutRaw, err)
		}
	}

	return nil
}
