// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, .env files and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
api:
  auth_base_url: "https://auth.example.com"
  api_base_url: "https://api.example.com"
  timeout: "10s"

database:
  path: "./test.db"

stream:
  max_line_bytes: 1024
  idle_timeout: "1m"

chat:
  duplicate_window: "500ms"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.AuthBaseURL != "https://auth.example.com" {
		t.Errorf("API.AuthBaseURL = %q", cfg.API.AuthBaseURL)
	}
	if cfg.API.APIBaseURL != "https://api.example.com" {
		t.Errorf("API.APIBaseURL = %q", cfg.API.APIBaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, 10*time.Second)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Stream.MaxLineBytes != 1024 {
		t.Errorf("Stream.MaxLineBytes = %d, want 1024", cfg.Stream.MaxLineBytes)
	}
	if cfg.Stream.IdleTimeout != time.Minute {
		t.Errorf("Stream.IdleTimeout = %v, want %v", cfg.Stream.IdleTimeout, time.Minute)
	}
	if cfg.Chat.DuplicateWindow != 500*time.Millisecond {
		t.Errorf("Chat.DuplicateWindow = %v, want %v", cfg.Chat.DuplicateWindow, 500*time.Millisecond)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
logging:
  level: "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := Default()
	if cfg.API.APIBaseURL != def.API.APIBaseURL {
		t.Errorf("API.APIBaseURL = %q, want default %q", cfg.API.APIBaseURL, def.API.APIBaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.Stream.MaxLineBytes != 4<<20 {
		t.Errorf("Stream.MaxLineBytes = %d, want %d", cfg.Stream.MaxLineBytes, 4<<20)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", `
[api]
auth_base_url = "http://localhost:9000"
api_base_url = "http://localhost:9001"
timeout = "2s"

[chat]
duplicate_window = "1s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.AuthBaseURL != "http://localhost:9000" {
		t.Errorf("API.AuthBaseURL = %q", cfg.API.AuthBaseURL)
	}
	if cfg.API.Timeout != 2*time.Second {
		t.Errorf("API.Timeout = %v, want 2s", cfg.API.Timeout)
	}
	if cfg.Chat.DuplicateWindow != time.Second {
		t.Errorf("Chat.DuplicateWindow = %v, want 1s", cfg.Chat.DuplicateWindow)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COVEN_API", "https://env.example.com")
	t.Setenv("TEST_COVEN_DB", "/tmp/env.db")

	configPath := writeConfig(t, "chat.yaml", `
api:
  api_base_url: "${TEST_COVEN_API}"
database:
  path: "${TEST_COVEN_DB}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.APIBaseURL != "https://env.example.com" {
		t.Errorf("API.APIBaseURL = %q, want expanded value", cfg.API.APIBaseURL)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want expanded value", cfg.Database.Path)
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	const key = "TEST_COVEN_DOTENV_LEVEL"
	t.Setenv(key, "")
	os.Unsetenv(key)

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "chat.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: \"${"+key+"}\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want value from .env", cfg.Logging.Level)
	}
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	const key = "TEST_COVEN_DOTENV_KEEP"
	t.Setenv(key, "info")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "chat.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: \"${"+key+"}\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want existing env value", cfg.Logging.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			file:    "chat.yaml",
			content: "api: [unclosed",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid toml",
			file:    "chat.toml",
			content: "[api\n",
			wantErr: "parsing config file",
		},
		{
			name:    "invalid duration",
			file:    "chat.yaml",
			content: "api:\n  timeout: \"soon\"\n",
			wantErr: "parsing durations",
		},
		{
			name:    "relative base url",
			file:    "chat.yaml",
			content: "api:\n  api_base_url: \"/api\"\n",
			wantErr: "api.api_base_url",
		},
		{
			name:    "empty auth url",
			file:    "chat.yaml",
			content: "api:\n  auth_base_url: \"${TEST_COVEN_UNSET_VAR}\"\n",
			wantErr: "api.auth_base_url is required",
		},
		{
			name:    "bad log format",
			file:    "chat.yaml",
			content: "logging:\n  format: \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "negative line limit",
			file:    "chat.yaml",
			content: "stream:\n  max_line_bytes: -1\n",
			wantErr: "stream.max_line_bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("Load() error = %v, want read error", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v, want default", cfg.API.Timeout)
	}

	path := writeConfig(t, "chat.yaml", "logging:\n  level: \"debug\"\n")
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_COVEN_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_COVEN_A}", "alpha"},
		{"pre-${TEST_COVEN_A}-post", "pre-alpha-post"},
		{"${TEST_COVEN_NOT_SET_ANYWHERE}", ""},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "/etc/coven/chat.yaml")
		if got := Path(); got != "/etc/coven/chat.yaml" {
			t.Errorf("Path() = %q", got)
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := Path(); got != filepath.Join("/xdg", "coven", "chat.yaml") {
			t.Errorf("Path() = %q", got)
		}
	})
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DataDir(); got != filepath.Join("/data", "coven") {
		t.Errorf("DataDir() = %q", got)
	}
}
