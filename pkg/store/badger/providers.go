package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

func (s *BadgerStore) CreateProvider(ctx context.Context, p *store.Provider) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyProvider(p.ID))
		if err == nil {
			return &provider.ConflictError{Kind: "provider", Message: fmt.Sprintf("id %s already exists", p.ID)}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := s.now()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now

		if err := setJSON(txn, keyProvider(p.ID), p); err != nil {
			return err
		}
		return txn.Set(keyWorkspace(p.WorkspaceID, p.ID), nil)
	})
}

func (s *BadgerStore) GetProvider(ctx context.Context, id string) (*store.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p store.Provider
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyProvider(id), &p)
	})
	if err != nil {
		return nil, mapNotFound(err, "provider", id)
	}
	return &p, nil
}

func (s *BadgerStore) UpdateProvider(ctx context.Context, p *store.Provider) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var existing store.Provider
		if err := getJSON(txn, keyProvider(p.ID), &existing); err != nil {
			return mapNotFound(err, "provider", p.ID)
		}

		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = s.now()

		if existing.WorkspaceID != p.WorkspaceID {
			if err := txn.Delete(keyWorkspace(existing.WorkspaceID, p.ID)); err != nil {
				return err
			}
			if err := txn.Set(keyWorkspace(p.WorkspaceID, p.ID), nil); err != nil {
				return err
			}
		}
		return setJSON(txn, keyProvider(p.ID), p)
	})
}

// DeleteProvider removes the provider's rows in batches, then the record.
func (s *BadgerStore) DeleteProvider(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var rec store.Provider
	if err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyProvider(id), &rec)
	}); err != nil {
		return mapNotFound(err, "provider", id)
	}

	for {
		var folderIDs, fileIDs []string
		if err := s.db.View(func(txn *badger.Txn) error {
			folderIDs = scanIDs(txn, keyProviderRowsPrefix(prefixFolderProvider, id))
			fileIDs = scanIDs(txn, keyProviderRowsPrefix(prefixFileProvider, id))
			return nil
		}); err != nil {
			return err
		}
		if len(folderIDs) == 0 && len(fileIDs) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(folderIDs) > deleteBatch {
			folderIDs = folderIDs[:deleteBatch]
		}
		if len(fileIDs) > deleteBatch {
			fileIDs = fileIDs[:deleteBatch]
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			for _, folderID := range folderIDs {
				if err := deleteFolderTxn(txn, folderID); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			for _, fileID := range fileIDs {
				if err := deleteFileTxn(txn, fileID); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete rows of provider %s: %w", id, err)
		}
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(keyWorkspace(rec.WorkspaceID, id)); err != nil {
			return err
		}
		return txn.Delete(keyProvider(id))
	})
}

func (s *BadgerStore) ListProviders(ctx context.Context, workspaceID string) ([]*store.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*store.Provider
	err := s.db.View(func(txn *badger.Txn) error {
		if workspaceID == "" {
			prefix := []byte(prefixProvider)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var p store.Provider
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &p)
				}); err != nil {
					return err
				}
				result = append(result, &p)
			}
			return nil
		}

		for _, id := range scanIDs(txn, keyWorkspacePrefix(workspaceID)) {
			var p store.Provider
			if err := getJSON(txn, keyProvider(id), &p); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			result = append(result, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SortProviders(result)
	return result, nil
}
