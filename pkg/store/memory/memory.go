// Package memory implements store.Store with in-process maps.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// MemoryStore implements store.Store using in-memory maps.
//
// It is suitable for tests, demos and deployments where the catalog can be
// rebuilt by a full sync after a restart.
//
// Thread Safety:
// All operations are protected by a single read-write mutex (mu). Rows are
// cloned on the way in and on the way out, so callers never share memory with
// the store.
//
// Storage Model:
//   - providers: provider id → record
//   - folders, files: row id → row
//   - byProvider: provider id → ids of its folder and file rows plus the
//     remote id, path and parent indexes, so lookups never scan a provider
//   - permissions: folderID:userID → grant
type MemoryStore struct {
	mu sync.RWMutex

	providers   map[string]*store.Provider
	folders     map[string]*store.Folder
	files       map[string]*store.File
	byProvider  map[string]*providerRows
	permissions map[string]*store.Permission

	now func() time.Time
}

type providerRows struct {
	folders map[string]struct{}
	files   map[string]struct{}

	folderRemote index
	folderPath   index
	folderChild  index
	fileRemote   index
	filePath     index
	fileChild    index
}

// index maps a column value to the ids of the rows carrying it. Remote id
// and path admit several rows (a live one plus deleted ones).
type index map[string]map[string]struct{}

func (ix index) add(value, id string) {
	ids, ok := ix[value]
	if !ok {
		ids = make(map[string]struct{})
		ix[value] = ids
	}
	ids[id] = struct{}{}
}

func (ix index) remove(value, id string) {
	ids, ok := ix[value]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(ix, value)
	}
}

func (r *providerRows) indexFolder(f *store.Folder) {
	r.folders[f.ID] = struct{}{}
	r.folderRemote.add(f.RemoteID, f.ID)
	r.folderPath.add(f.VirtualPath, f.ID)
	r.folderChild.add(f.ParentID, f.ID)
}

func (r *providerRows) unindexFolder(f *store.Folder) {
	delete(r.folders, f.ID)
	r.folderRemote.remove(f.RemoteID, f.ID)
	r.folderPath.remove(f.VirtualPath, f.ID)
	r.folderChild.remove(f.ParentID, f.ID)
}

func (r *providerRows) indexFile(f *store.File) {
	r.files[f.ID] = struct{}{}
	r.fileRemote.add(f.RemoteID, f.ID)
	r.filePath.add(f.VirtualPath, f.ID)
	r.fileChild.add(f.FolderID, f.ID)
}

func (r *providerRows) unindexFile(f *store.File) {
	delete(r.files, f.ID)
	r.fileRemote.remove(f.RemoteID, f.ID)
	r.filePath.remove(f.VirtualPath, f.ID)
	r.fileChild.remove(f.FolderID, f.ID)
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers:   make(map[string]*store.Provider),
		folders:     make(map[string]*store.Folder),
		files:       make(map[string]*store.File),
		byProvider:  make(map[string]*providerRows),
		permissions: make(map[string]*store.Permission),
		now:         time.Now,
	}
}

func (s *MemoryStore) rows(providerID string) *providerRows {
	r, ok := s.byProvider[providerID]
	if !ok {
		r = &providerRows{
			folders:      make(map[string]struct{}),
			files:        make(map[string]struct{}),
			folderRemote: make(index),
			folderPath:   make(index),
			folderChild:  make(index),
			fileRemote:   make(index),
			filePath:     make(index),
			fileChild:    make(index),
		}
		s.byProvider[providerID] = r
	}
	return r
}

// ============================================================================
// Providers
// ============================================================================

func (s *MemoryStore) CreateProvider(ctx context.Context, p *store.Provider) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.providers[p.ID]; exists {
		return &provider.ConflictError{Kind: "provider", Message: fmt.Sprintf("id %s already exists", p.ID)}
	}

	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.providers[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetProvider(ctx context.Context, id string) (*store.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, store.NotFound("provider", id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) UpdateProvider(ctx context.Context, p *store.Provider) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.providers[p.ID]
	if !ok {
		return store.NotFound("provider", p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.providers[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) DeleteProvider(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; !ok {
		return store.NotFound("provider", id)
	}
	delete(s.providers, id)

	if r, ok := s.byProvider[id]; ok {
		for folderID := range r.folders {
			delete(s.folders, folderID)
			for key, perm := range s.permissions {
				if perm.FolderID == folderID {
					delete(s.permissions, key)
				}
			}
		}
		for fileID := range r.files {
			delete(s.files, fileID)
		}
		delete(s.byProvider, id)
	}
	return nil
}

func (s *MemoryStore) ListProviders(ctx context.Context, workspaceID string) ([]*store.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*store.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if workspaceID != "" && p.WorkspaceID != workspaceID {
			continue
		}
		result = append(result, p.Clone())
	}
	store.SortProviders(result)
	return result, nil
}

// ============================================================================
// Folders
// ============================================================================

func (s *MemoryStore) GetFolder(ctx context.Context, id string) (*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.folders[id]
	if !ok {
		return nil, store.NotFound("folder", id)
	}
	return f.Clone(), nil
}

func (s *MemoryStore) FindFolderByRemoteID(ctx context.Context, providerID, remoteID string) (*store.Folder, error) {
	return s.findFolder(ctx, providerID, remoteID, func(r *providerRows) index { return r.folderRemote })
}

func (s *MemoryStore) FindFolderByPath(ctx context.Context, providerID, virtualPath string) (*store.Folder, error) {
	return s.findFolder(ctx, providerID, virtualPath, func(r *providerRows) index { return r.folderPath })
}

// findFolder returns the live match, or the most recently updated deleted one.
func (s *MemoryStore) findFolder(ctx context.Context, providerID, key string, by func(*providerRows) index) (*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.NotFound("folder", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *store.Folder
	if r, ok := s.byProvider[providerID]; ok {
		for id := range by(r)[key] {
			f := s.folders[id]
			if best == nil || store.Prefer(f.IsDeleted, f.UpdatedAt, best.IsDeleted, best.UpdatedAt) {
				best = f
			}
		}
	}
	if best == nil {
		return nil, store.NotFound("folder", key)
	}
	return best.Clone(), nil
}

func (s *MemoryStore) PutFolder(ctx context.Context, f *store.Folder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateFolder(f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *store.Folder
	if f.ID != "" {
		var ok bool
		if existing, ok = s.folders[f.ID]; !ok {
			return store.NotFound("folder", f.ID)
		}
	}

	if f.RemoteID != "" && !f.IsDeleted {
		for id := range s.rows(f.ProviderID).folderRemote[f.RemoteID] {
			if id != f.ID && !s.folders[id].IsDeleted {
				return store.RemoteIDConflict("folder", f.ProviderID, f.RemoteID, id)
			}
		}
	}

	now := s.now()
	if existing == nil {
		f.ID = uuid.NewString()
		f.CreatedAt = now
	} else {
		f.CreatedAt = existing.CreatedAt
		s.rows(existing.ProviderID).unindexFolder(existing)
	}
	f.UpdatedAt = now

	s.folders[f.ID] = f.Clone()
	s.rows(f.ProviderID).indexFolder(f)
	return nil
}

func (s *MemoryStore) ListFolders(ctx context.Context, providerID, parentID string, includeDeleted bool) ([]*store.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.Folder
	if r, ok := s.byProvider[providerID]; ok {
		for id := range r.folderChild[parentID] {
			f := s.folders[id]
			if f.IsDeleted && !includeDeleted {
				continue
			}
			result = append(result, f.Clone())
		}
	}
	store.SortFolders(result)
	return result, nil
}

func (s *MemoryStore) DeleteFolder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[id]
	if !ok {
		return store.NotFound("folder", id)
	}
	delete(s.folders, id)
	s.rows(f.ProviderID).unindexFolder(f)
	for key, perm := range s.permissions {
		if perm.FolderID == id {
			delete(s.permissions, key)
		}
	}
	return nil
}

// ============================================================================
// Files
// ============================================================================

func (s *MemoryStore) GetFile(ctx context.Context, id string) (*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, store.NotFound("file", id)
	}
	return f.Clone(), nil
}

func (s *MemoryStore) FindFileByRemoteID(ctx context.Context, providerID, remoteID string) (*store.File, error) {
	return s.findFile(ctx, providerID, remoteID, func(r *providerRows) index { return r.fileRemote })
}

func (s *MemoryStore) FindFileByPath(ctx context.Context, providerID, virtualPath string) (*store.File, error) {
	return s.findFile(ctx, providerID, virtualPath, func(r *providerRows) index { return r.filePath })
}

func (s *MemoryStore) findFile(ctx context.Context, providerID, key string, by func(*providerRows) index) (*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.NotFound("file", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *store.File
	if r, ok := s.byProvider[providerID]; ok {
		for id := range by(r)[key] {
			f := s.files[id]
			if best == nil || store.Prefer(f.IsDeleted, f.UpdatedAt, best.IsDeleted, best.UpdatedAt) {
				best = f
			}
		}
	}
	if best == nil {
		return nil, store.NotFound("file", key)
	}
	return best.Clone(), nil
}

func (s *MemoryStore) PutFile(ctx context.Context, f *store.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateFile(f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *store.File
	if f.ID != "" {
		var ok bool
		if existing, ok = s.files[f.ID]; !ok {
			return store.NotFound("file", f.ID)
		}
	}

	if !f.IsDeleted {
		for id := range s.rows(f.ProviderID).fileRemote[f.RemoteID] {
			if id != f.ID && !s.files[id].IsDeleted {
				return store.RemoteIDConflict("file", f.ProviderID, f.RemoteID, id)
			}
		}
	}

	now := s.now()
	if existing == nil {
		f.ID = uuid.NewString()
		f.CreatedAt = now
	} else {
		f.CreatedAt = existing.CreatedAt
		s.rows(existing.ProviderID).unindexFile(existing)
	}
	f.UpdatedAt = now

	s.files[f.ID] = f.Clone()
	s.rows(f.ProviderID).indexFile(f)
	return nil
}

func (s *MemoryStore) ListFiles(ctx context.Context, providerID, folderID string, includeDeleted bool) ([]*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.File
	if r, ok := s.byProvider[providerID]; ok {
		for id := range r.fileChild[folderID] {
			f := s.files[id]
			if f.IsDeleted && !includeDeleted {
				continue
			}
			result = append(result, f.Clone())
		}
	}
	store.SortFiles(result)
	return result, nil
}

func (s *MemoryStore) ListProviderFiles(ctx context.Context, providerID string) ([]*store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.File
	if r, ok := s.byProvider[providerID]; ok {
		for id := range r.files {
			result = append(result, s.files[id].Clone())
		}
	}
	store.SortFiles(result)
	return result, nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return store.NotFound("file", id)
	}
	delete(s.files, id)
	s.rows(f.ProviderID).unindexFile(f)
	return nil
}

// ============================================================================
// Permissions
// ============================================================================

func permissionKey(folderID, userID string) string {
	return folderID + ":" + userID
}

func (s *MemoryStore) GetPermission(ctx context.Context, folderID, userID string) (*store.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.permissions[permissionKey(folderID, userID)]
	if !ok {
		return nil, store.NotFound("permission", permissionKey(folderID, userID))
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) PutPermission(ctx context.Context, p *store.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidatePermission(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[p.FolderID]; !ok {
		return store.NotFound("folder", p.FolderID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	c := *p
	s.permissions[permissionKey(p.FolderID, p.UserID)] = &c
	return nil
}

func (s *MemoryStore) DeletePermission(ctx context.Context, folderID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := permissionKey(folderID, userID)
	if _, ok := s.permissions[key]; !ok {
		return store.NotFound("permission", key)
	}
	delete(s.permissions, key)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
