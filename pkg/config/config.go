package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete DittoVFS configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOVFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// The catalog store follows a type-plus-options pattern: Store.Type selects
// the implementation and only the matching options map is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings and the HTTP listeners
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store selects the catalog store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Credentials configures encryption of provider secrets at rest
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`

	// OAuth configures the signed state used by redirect authorization
	OAuth OAuthConfig `mapstructure:"oauth" yaml:"oauth"`

	// Sync tunes the background sync workers
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Multipart tunes chunked upload sessions
	Multipart MultipartConfig `mapstructure:"multipart" yaml:"multipart"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// ListenAddress is where the download proxy and OAuth callback are served
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address" validate:"required,hostname_port"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// StoreConfig specifies the catalog store.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// CredentialsConfig holds the key material for provider config encryption.
// Changing either value makes previously stored credentials unreadable.
type CredentialsConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required,min=16"`
	Salt   string `mapstructure:"salt" yaml:"salt" validate:"required,min=8"`
}

// OAuthConfig configures redirect-based authorization.
type OAuthConfig struct {
	// StateSecret signs the state parameter round-tripped through the
	// authorization server
	StateSecret string `mapstructure:"state_secret" yaml:"state_secret" validate:"required,min=16"`

	// StateTTL bounds how long a user may take to complete a consent screen
	StateTTL time.Duration `mapstructure:"state_ttl" yaml:"state_ttl" validate:"required,gt=0"`

	// CallbackURL is the default redirect URI handed to providers
	CallbackURL string `mapstructure:"callback_url" yaml:"callback_url" validate:"omitempty,url"`
}

// SyncConfig tunes the sync engine and its job queue.
type SyncConfig struct {
	QueueWorkers int `mapstructure:"queue_workers" yaml:"queue_workers" validate:"gte=1"`
	QueueSize    int `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`

	// PageSize is the listing page size requested from providers
	PageSize int `mapstructure:"page_size" yaml:"page_size" validate:"gte=1,lte=1000"`

	// ProgressInterval is how many files pass between progress reports
	ProgressInterval int `mapstructure:"progress_interval" yaml:"progress_interval" validate:"gte=1"`
}

// MultipartConfig tunes chunked upload sessions.
type MultipartConfig struct {
	// SessionTTL is how long an idle session survives before it is aborted
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl" validate:"required,gt=0"`

	// SweepInterval is how often idle sessions are looked for
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"required,gt=0"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOVFS_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location; a missing file there is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so that environment variables apply even when
// the key is absent from the config file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"server.shutdown_timeout", "server.listen_address",
	"server.metrics.enabled", "server.metrics.port",
	"store.type",
	"credentials.secret", "credentials.salt",
	"oauth.state_secret", "oauth.state_ttl", "oauth.callback_url",
	"sync.queue_workers", "sync.queue_size", "sync.page_size", "sync.progress_interval",
	"multipart.session_ttl", "multipart.sweep_interval",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOVFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// Default location: $XDG_CONFIG_HOME/dittovfs/config.yaml
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated the same way.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittovfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittovfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
