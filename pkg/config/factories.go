package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/credentials"
	"github.com/marmos91/dittovfs/pkg/metrics"
	promMetrics "github.com/marmos91/dittovfs/pkg/metrics/prometheus"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/provider/gdrive"
	"github.com/marmos91/dittovfs/pkg/provider/local"
	"github.com/marmos91/dittovfs/pkg/provider/s3"
	"github.com/marmos91/dittovfs/pkg/provider/webdav"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/marmos91/dittovfs/pkg/store/badger"
	"github.com/marmos91/dittovfs/pkg/store/memory"
	"github.com/marmos91/dittovfs/pkg/syncer"
	"github.com/marmos91/dittovfs/pkg/transfer"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates the catalog store selected by cfg.Type.
//
// Supported types:
//   - "memory": pkg/store/memory (ephemeral)
//   - "badger": pkg/store/badger (persistent), options decoded from cfg.Badger
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.NewMemoryStore(), nil
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createBadgerStore(ctx context.Context, options map[string]any) (store.Store, error) {
	var storeCfg badger.BadgerStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}

	s, err := badger.NewBadgerStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	logger.Info("Badger catalog store opened: path=%s in_memory=%t", storeCfg.DBPath, storeCfg.InMemory)
	return s, nil
}

// CreateCipher builds the cipher that seals provider credentials.
func CreateCipher(cfg *CredentialsConfig) (credentials.Cipher, error) {
	c, err := credentials.NewAESCipher(cfg.Secret, cfg.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials cipher: %w", err)
	}
	return c, nil
}

// InitializeRegistry returns a registry holding every built-in adapter.
func InitializeRegistry() (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, entry := range []provider.Entry{
		s3.Entry(),
		webdav.Entry(),
		gdrive.Entry(),
		local.Entry(),
	} {
		if err := reg.Register(entry); err != nil {
			return nil, err
		}
	}
	logger.Debug("Registered provider types: %v", reg.Types())
	return reg, nil
}

// MetricsResult contains the metrics components created from configuration.
type MetricsResult struct {
	// Server exposes the Prometheus registry (nil if disabled)
	Server *metrics.Server

	// SyncMetrics and TransferMetrics are nil when disabled; their consumers
	// fall back to no-op collectors.
	SyncMetrics     syncer.Metrics
	TransferMetrics transfer.Metrics
}

// InitializeMetrics creates the metrics components described by cfg.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		SyncMetrics:     promMetrics.NewSyncMetrics(),
		TransferMetrics: promMetrics.NewTransferMetrics(),
	}
}
