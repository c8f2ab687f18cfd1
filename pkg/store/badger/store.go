// Package badger implements store.Store on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittovfs/pkg/store"
)

// deleteBatch bounds the number of rows removed per transaction by cascading
// deletes, keeping each transaction below badger's size limit.
const deleteBatch = 256

// BadgerStore implements store.Store using BadgerDB for persistence.
//
// Storage Model:
// Rows are JSON values under namespaced keys, with secondary index keys for
// every lookup the catalog performs (see keys.go).
//
// Thread Safety:
// BadgerDB transactions are serializable; each method runs in a single
// transaction except cascading deletes, which run in batches.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

var _ store.Store = (*BadgerStore)(nil)

// BadgerStoreConfig contains configuration for creating a BadgerDB store.
type BadgerStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps everything in memory; DBPath is ignored. Used in tests.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerStore opens (or creates) the database described by config.
//
// Example:
//
//	s, err := badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{
//	    DBPath: "/var/lib/dittovfs/catalog",
//	})
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Catalog rows are small JSON documents; compression isn't worth it.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerStore{db: db, now: time.Now}, nil
}

// Close closes the database. The store must not be used afterwards.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// getJSON loads key into v. A missing key is reported as badger.ErrKeyNotFound.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// scanIDs returns the trailing id of every key under prefix.
func scanIDs(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, idFromKey(it.Item().Key(), prefix))
	}
	return ids
}

// mapNotFound converts badger.ErrKeyNotFound into the store's error.
func mapNotFound(err error, kind, id string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.NotFound(kind, id)
	}
	return err
}
