// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete coven-chat configuration
type Config struct {
	API      APIConfig      `yaml:"api" toml:"api"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Stream   StreamConfig   `yaml:"stream" toml:"stream"`
	Chat     ChatConfig     `yaml:"chat" toml:"chat"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// APIConfig holds backend endpoints and request timing
type APIConfig struct {
	AuthBaseURL string        `yaml:"auth_base_url" toml:"auth_base_url"`
	APIBaseURL  string        `yaml:"api_base_url" toml:"api_base_url"`
	Timeout     time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds local database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// StreamConfig holds event stream decoding limits
type StreamConfig struct {
	MaxLineBytes int           `yaml:"max_line_bytes" toml:"max_line_bytes"`
	IdleTimeout  time.Duration `yaml:"-" toml:"-"`

	IdleTimeoutRaw string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// ChatConfig holds turn runner configuration
type ChatConfig struct {
	DuplicateWindow time.Duration `yaml:"-" toml:"-"`

	DuplicateWindowRaw string `yaml:"duplicate_window" toml:"duplicate_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration usable without any file.
func Default() *Config {
	cfg := &Config{
		API: APIConfig{
			AuthBaseURL: "https://bugswriter.ai",
			APIBaseURL:  "https://sys.bugswriter.ai",
			TimeoutRaw:  "30s",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "chat.db"),
		},
		Stream: StreamConfig{
			MaxLineBytes:   4 << 20,
			IdleTimeoutRaw: "5m",
		},
		Chat: ChatConfig{
			DuplicateWindowRaw: "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	// Defaults are known-good.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config file is loaded first without overriding
// variables already set. Environment variables in the format ${VAR_NAME}
// are then expanded. Files ending in .toml are parsed as TOML, everything
// else as YAML. Unset fields keep their Default values.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default when it
// does not. Any other error is returned.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		loadDotEnv(".env")
		return Default(), nil
	}
	return Load(path)
}

// loadDotEnv loads a .env file if present. Existing variables win.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	// Missing or unreadable .env files are not fatal
	_ = godotenv.Load(path)
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validateBaseURL("api.auth_base_url", c.API.AuthBaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("api.api_base_url", c.API.APIBaseURL); err != nil {
		return err
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Stream.MaxLineBytes < 0 {
		return fmt.Errorf("stream.max_line_bytes must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.Stream.IdleTimeoutRaw != "" {
		cfg.Stream.IdleTimeout, err = time.ParseDuration(cfg.Stream.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Stream.IdleTimeoutRaw, err)
		}
	}

	if cfg.Chat.DuplicateWindowRaw != "" {
		cfg.Chat.DuplicateWindow, err = time.ParseDuration(cfg.Chat.DuplicateWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing duplicate_window %q: %w", cfg.Chat.DuplicateWindowRaw, err)
		}
	}

	return nil
}

// Path returns the config file path.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

// DataDir returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}
