package badger

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/store"
)

// ============================================================================
// Folders
// ============================================================================

func (s *BadgerStore) GetFolder(ctx context.Context, id string) (*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var f store.Folder
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyFolder(id), &f)
	})
	if err != nil {
		return nil, mapNotFound(err, "folder", id)
	}
	return &f, nil
}

func (s *BadgerStore) FindFolderByRemoteID(ctx context.Context, providerID, remoteID string) (*store.Folder, error) {
	return s.findFolder(ctx, prefixFolderRemote, providerID, remoteID)
}

func (s *BadgerStore) FindFolderByPath(ctx context.Context, providerID, virtualPath string) (*store.Folder, error) {
	return s.findFolder(ctx, prefixFolderPath, providerID, virtualPath)
}

func (s *BadgerStore) findFolder(ctx context.Context, index, providerID, key string) (*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.NotFound("folder", key)
	}

	var best *store.Folder
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		best, err = bestFolder(txn, scanIDs(txn, indexPrefix(index, providerID, key)))
		return err
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, store.NotFound("folder", key)
	}
	return best, nil
}

func bestFolder(txn *badger.Txn, ids []string) (*store.Folder, error) {
	var best *store.Folder
	for _, id := range ids {
		var f store.Folder
		if err := getJSON(txn, keyFolder(id), &f); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		if best == nil || store.Prefer(f.IsDeleted, f.UpdatedAt, best.IsDeleted, best.UpdatedAt) {
			c := f
			best = &c
		}
	}
	return best, nil
}

func folderIndexKeys(f *store.Folder) [][]byte {
	keys := [][]byte{
		indexKey(prefixFolderPath, f.ProviderID, f.VirtualPath, f.ID),
		indexKey(prefixFolderChild, f.ProviderID, f.ParentID, f.ID),
		append(keyProviderRowsPrefix(prefixFolderProvider, f.ProviderID), f.ID...),
	}
	if f.RemoteID != "" {
		keys = append(keys, indexKey(prefixFolderRemote, f.ProviderID, f.RemoteID, f.ID))
	}
	return keys
}

func (s *BadgerStore) PutFolder(ctx context.Context, f *store.Folder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateFolder(f); err != nil {
		return err
	}

	row := f.Clone()
	err := s.db.Update(func(txn *badger.Txn) error {
		var existing *store.Folder
		if row.ID != "" {
			var old store.Folder
			if err := getJSON(txn, keyFolder(row.ID), &old); err != nil {
				return mapNotFound(err, "folder", row.ID)
			}
			existing = &old
		}

		if row.RemoteID != "" && !row.IsDeleted {
			for _, id := range scanIDs(txn, indexPrefix(prefixFolderRemote, row.ProviderID, row.RemoteID)) {
				if id == row.ID {
					continue
				}
				var other store.Folder
				if err := getJSON(txn, keyFolder(id), &other); err != nil {
					if errors.Is(err, badger.ErrKeyNotFound) {
						continue
					}
					return err
				}
				if !other.IsDeleted {
					return store.RemoteIDConflict("folder", row.ProviderID, row.RemoteID, id)
				}
			}
		}

		now := s.now()
		if existing == nil {
			row.ID = uuid.NewString()
			row.CreatedAt = now
		} else {
			row.CreatedAt = existing.CreatedAt
			for _, key := range folderIndexKeys(existing) {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		row.UpdatedAt = now

		for _, key := range folderIndexKeys(row) {
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return setJSON(txn, keyFolder(row.ID), row)
	})
	if err != nil {
		return err
	}

	f.ID, f.CreatedAt, f.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *BadgerStore) ListFolders(ctx context.Context, providerID, parentID string, includeDeleted bool) ([]*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*store.Folder
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanIDs(txn, indexPrefix(prefixFolderChild, providerID, parentID)) {
			var f store.Folder
			if err := getJSON(txn, keyFolder(id), &f); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if f.IsDeleted && !includeDeleted {
				continue
			}
			result = append(result, &f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SortFolders(result)
	return result, nil
}

func (s *BadgerStore) DeleteFolder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return deleteFolderTxn(txn, id)
	})
	return mapNotFound(err, "folder", id)
}

// deleteFolderTxn removes the row, its index keys and its permissions.
func deleteFolderTxn(txn *badger.Txn, id string) error {
	var f store.Folder
	if err := getJSON(txn, keyFolder(id), &f); err != nil {
		return err
	}
	for _, key := range folderIndexKeys(&f) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	for _, userID := range scanIDs(txn, keyPermissionPrefix(id)) {
		if err := txn.Delete(keyPermission(id, userID)); err != nil {
			return err
		}
	}
	return txn.Delete(keyFolder(id))
}

// ============================================================================
// Files
// ============================================================================

func (s *BadgerStore) GetFile(ctx context.Context, id string) (*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var f store.File
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyFile(id), &f)
	})
	if err != nil {
		return nil, mapNotFound(err, "file", id)
	}
	return &f, nil
}

func (s *BadgerStore) FindFileByRemoteID(ctx context.Context, providerID, remoteID string) (*store.File, error) {
	return s.findFile(ctx, prefixFileRemote, providerID, remoteID)
}

func (s *BadgerStore) FindFileByPath(ctx context.Context, providerID, virtualPath string) (*store.File, error) {
	return s.findFile(ctx, prefixFilePath, providerID, virtualPath)
}

func (s *BadgerStore) findFile(ctx context.Context, index, providerID, key string) (*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.NotFound("file", key)
	}

	var best *store.File
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanIDs(txn, indexPrefix(index, providerID, key)) {
			var f store.File
			if err := getJSON(txn, keyFile(id), &f); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if best == nil || store.Prefer(f.IsDeleted, f.UpdatedAt, best.IsDeleted, best.UpdatedAt) {
				c := f
				best = &c
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, store.NotFound("file", key)
	}
	return best, nil
}

func fileIndexKeys(f *store.File) [][]byte {
	return [][]byte{
		indexKey(prefixFileRemote, f.ProviderID, f.RemoteID, f.ID),
		indexKey(prefixFilePath, f.ProviderID, f.VirtualPath, f.ID),
		indexKey(prefixFileChild, f.ProviderID, f.FolderID, f.ID),
		append(keyProviderRowsPrefix(prefixFileProvider, f.ProviderID), f.ID...),
	}
}

func (s *BadgerStore) PutFile(ctx context.Context, f *store.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateFile(f); err != nil {
		return err
	}

	row := f.Clone()
	err := s.db.Update(func(txn *badger.Txn) error {
		var existing *store.File
		if row.ID != "" {
			var old store.File
			if err := getJSON(txn, keyFile(row.ID), &old); err != nil {
				return mapNotFound(err, "file", row.ID)
			}
			existing = &old
		}

		if !row.IsDeleted {
			for _, id := range scanIDs(txn, indexPrefix(prefixFileRemote, row.ProviderID, row.RemoteID)) {
				if id == row.ID {
					continue
				}
				var other store.File
				if err := getJSON(txn, keyFile(id), &other); err != nil {
					if errors.Is(err, badger.ErrKeyNotFound) {
						continue
					}
					return err
				}
				if !other.IsDeleted {
					return store.RemoteIDConflict("file", row.ProviderID, row.RemoteID, id)
				}
			}
		}

		now := s.now()
		if existing == nil {
			row.ID = uuid.NewString()
			row.CreatedAt = now
		} else {
			row.CreatedAt = existing.CreatedAt
			for _, key := range fileIndexKeys(existing) {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		row.UpdatedAt = now

		for _, key := range fileIndexKeys(row) {
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return setJSON(txn, keyFile(row.ID), row)
	})
	if err != nil {
		return err
	}

	f.ID, f.CreatedAt, f.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *BadgerStore) ListFiles(ctx context.Context, providerID, folderID string, includeDeleted bool) ([]*store.File, error) {
	return s.listFiles(ctx, indexPrefix(prefixFileChild, providerID, folderID), includeDeleted)
}

func (s *BadgerStore) ListProviderFiles(ctx context.Context, providerID string) ([]*store.File, error) {
	return s.listFiles(ctx, keyProviderRowsPrefix(prefixFileProvider, providerID), true)
}

func (s *BadgerStore) listFiles(ctx context.Context, prefix []byte, includeDeleted bool) ([]*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*store.File
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanIDs(txn, prefix) {
			var f store.File
			if err := getJSON(txn, keyFile(id), &f); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if f.IsDeleted && !includeDeleted {
				continue
			}
			result = append(result, &f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	store.SortFiles(result)
	return result, nil
}

func (s *BadgerStore) DeleteFile(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return deleteFileTxn(txn, id)
	})
	return mapNotFound(err, "file", id)
}

func deleteFileTxn(txn *badger.Txn, id string) error {
	var f store.File
	if err := getJSON(txn, keyFile(id), &f); err != nil {
		return err
	}
	for _, key := range fileIndexKeys(&f) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return txn.Delete(keyFile(id))
}
