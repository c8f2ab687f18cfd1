package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecrets = `
credentials:
  secret: "0123456789abcdef-credentials"
  salt: "salt-1234"

oauth:
  state_secret: "0123456789abcdef-state"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func setSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DITTOVFS_CREDENTIALS_SECRET", "0123456789abcdef-credentials")
	t.Setenv("DITTOVFS_CREDENTIALS_SALT", "salt-1234")
	t.Setenv("DITTOVFS_OAUTH_STATE_SECRET", "0123456789abcdef-state")
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"
`+testSecrets)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.ListenAddress != ":8080" {
		t.Errorf("Expected default listen address ':8080', got %q", cfg.Server.ListenAddress)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Store.Type)
	}
	if cfg.OAuth.StateTTL != 10*time.Minute {
		t.Errorf("Expected default state ttl 10m, got %v", cfg.OAuth.StateTTL)
	}
	if cfg.Sync.PageSize != 100 {
		t.Errorf("Expected default page size 100, got %d", cfg.Sync.PageSize)
	}
	if cfg.Multipart.SessionTTL != 24*time.Hour {
		t.Errorf("Expected default session ttl 24h, got %v", cfg.Multipart.SessionTTL)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	setSecretEnv(t)
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Credentials.Salt != "salt-1234" {
		t.Errorf("Expected salt from env, got %q", cfg.Credentials.Salt)
	}
}

func TestLoad_MissingSecretsFailValidation(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error without secrets, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[credentials]
secret = "0123456789abcdef-credentials"
salt = "salt-1234"

[oauth]
state_secret = "0123456789abcdef-state"
state_ttl = "5m"

[store]
type = "badger"

[store.badger]
in_memory = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.OAuth.StateTTL != 5*time.Minute {
		t.Errorf("Expected state ttl 5m, got %v", cfg.OAuth.StateTTL)
	}
	if cfg.Store.Badger["in_memory"] != true {
		t.Errorf("Expected badger in_memory option, got %v", cfg.Store.Badger)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Store.Type != "badger" {
		t.Errorf("Expected default store type 'badger', got %q", cfg.Store.Type)
	}
	if !cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}
	if cfg.Credentials.Secret == "" || cfg.OAuth.StateSecret == "" {
		t.Error("Expected generated secrets")
	}
	if cfg.Credentials.Secret == cfg.OAuth.StateSecret {
		t.Error("Expected distinct generated secrets")
	}

	other := GetDefaultConfig()
	if other.Credentials.Secret == cfg.Credentials.Secret {
		t.Error("Expected a fresh secret on every call")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	path := GetDefaultConfigPath()
	if path != "/tmp/xdg/dittovfs/config.yaml" {
		t.Errorf("Expected XDG config path, got %q", path)
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "dittovfs" {
		t.Errorf("Expected directory name 'dittovfs', got %q", filepath.Base(dir))
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOVFS_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOVFS_SYNC_PAGE_SIZE", "250")
	t.Setenv("DITTOVFS_MULTIPART_SESSION_TTL", "2h")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

sync:
  page_size: 50
`+testSecrets)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Sync.PageSize != 250 {
		t.Errorf("Expected page size 250 from env var, got %d", cfg.Sync.PageSize)
	}
	if cfg.Multipart.SessionTTL != 2*time.Hour {
		t.Errorf("Expected session ttl 2h from env var, got %v", cfg.Multipart.SessionTTL)
	}
}
