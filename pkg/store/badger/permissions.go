package badger

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovfs/pkg/store"
)

func (s *BadgerStore) GetPermission(ctx context.Context, folderID, userID string) (*store.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p store.Permission
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyPermission(folderID, userID), &p)
	})
	if err != nil {
		return nil, mapNotFound(err, "permission", folderID+":"+userID)
	}
	return &p, nil
}

func (s *BadgerStore) PutPermission(ctx context.Context, p *store.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidatePermission(p); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFolder(p.FolderID)); err != nil {
			return mapNotFound(err, "folder", p.FolderID)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		return setJSON(txn, keyPermission(p.FolderID, p.UserID), p)
	})
}

func (s *BadgerStore) DeletePermission(ctx context.Context, folderID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := keyPermission(folderID, userID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return store.NotFound("permission", folderID+":"+userID)
			}
			return err
		}
		return txn.Delete(key)
	})
}
