package config

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/multipart"
	"github.com/marmos91/dittovfs/pkg/syncer"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced, explicit values are preserved. Secrets are never
// defaulted: a process that invented its own key on every start could not
// read the credentials it stored on the previous one.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyOAuthDefaults(&cfg.OAuth)
	applySyncDefaults(&cfg.Sync)
	applyMultipartDefaults(&cfg.Multipart)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Type == "badger" {
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = "/var/lib/dittovfs/catalog"
		}
	}
}

func applyOAuthDefaults(cfg *OAuthConfig) {
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.QueueWorkers == 0 {
		cfg.QueueWorkers = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 100
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = syncer.DefaultPageSize
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = syncer.DefaultProgressInterval
	}
}

func applyMultipartDefaults(cfg *MultipartConfig) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = multipart.DefaultSessionTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
}

// GetDefaultConfig returns a complete configuration with fresh random secrets.
//
// It is meant for generating a starting config file; the secrets must be kept
// once credentials have been stored with them.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Type: "badger",
			Badger: map[string]any{
				"db_path": "/var/lib/dittovfs/catalog",
			},
		},
		Credentials: CredentialsConfig{
			Secret: rand.Text(),
			Salt:   rand.Text(),
		},
		OAuth: OAuthConfig{
			StateSecret: rand.Text(),
			CallbackURL: "http://localhost:8080/oauth/callback",
		},
		Server: ServerConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
