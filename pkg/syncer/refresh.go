package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// RefreshOptions controls one RefreshFolder call.
type RefreshOptions struct {
	// Recursive descends into every listed folder, depth-first and
	// sequentially.
	Recursive bool

	// OnFile is called after each file upsert with the running count.
	OnFile func(processed int)
}

// RefreshResult describes what a refresh saw and wrote.
type RefreshResult struct {
	// SeenFolders and SeenFiles hold every remote id the listings reported,
	// including items whose upsert failed.
	SeenFolders map[string]struct{}
	SeenFiles   map[string]struct{}

	Files   int
	Folders int

	// Failed counts items skipped because their upsert failed.
	Failed int

	// ListFailures counts nested folders whose listing failed. A result with
	// list failures is partial and must not drive a prune.
	ListFailures int

	// Pruned counts rows removed by a scoped refresh.
	Pruned int
}

func newRefreshResult() *RefreshResult {
	return &RefreshResult{
		SeenFolders: make(map[string]struct{}),
		SeenFiles:   make(map[string]struct{}),
	}
}

// Complete reports whether every folder of the traversal was listed.
func (r *RefreshResult) Complete() bool {
	return r.ListFailures == 0
}

// RefreshFolder lists remoteFolderID ("" for the provider root) page by page
// and upserts its children under parentCacheID, whose virtual path is
// parentPath.
//
// Only a failure to list the requested folder itself is returned. Nested list
// failures and per-item upsert failures are logged and skipped.
func (e *Engine) RefreshFolder(ctx context.Context, adapter provider.StorageProvider, rec *store.Provider, remoteFolderID, parentCacheID, parentPath string, opts RefreshOptions) (*RefreshResult, error) {
	res := newRefreshResult()
	if parentPath == "" {
		parentPath = "/"
	}
	if err := e.refresh(ctx, adapter, rec, remoteFolderID, parentCacheID, parentPath, opts, res); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) refresh(ctx context.Context, adapter provider.StorageProvider, rec *store.Provider, remoteFolderID, parentCacheID, parentPath string, opts RefreshOptions, res *RefreshResult) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := adapter.List(ctx, provider.ListRequest{
			FolderID:  remoteFolderID,
			PageToken: token,
			Limit:     e.pageSize,
		})
		if err != nil {
			return provider.Wrap(rec.Type, "list", err)
		}

		for _, rf := range page.Folders {
			_, seen := res.SeenFolders[rf.RemoteID]
			res.SeenFolders[rf.RemoteID] = struct{}{}

			row, err := e.upsertFolder(ctx, rec, rf, parentCacheID, parentPath)
			if err != nil {
				res.Failed++
				e.metrics.RecordItemFailure(rec.Type, "folder")
				logger.Warn("Skipping folder %q of provider %s: %v", rf.Name, rec.ID, err)
				continue
			}
			res.Folders++
			e.metrics.RecordItems(rec.Type, "folder", 1)

			if !opts.Recursive || seen {
				continue
			}
			err = e.refresh(ctx, adapter, rec, rf.RemoteID, row.ID, row.VirtualPath, opts, res)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.ListFailures++
				logger.Warn("Skipping subtree %s of provider %s: %v", row.VirtualPath, rec.ID, err)
			}
		}

		for _, rf := range page.Files {
			res.SeenFiles[rf.RemoteID] = struct{}{}

			if _, err := e.upsertFile(ctx, rec, rf, parentCacheID, parentPath, res.SeenFiles); err != nil {
				res.Failed++
				e.metrics.RecordItemFailure(rec.Type, "file")
				logger.Warn("Skipping file %q of provider %s: %v", rf.Name, rec.ID, err)
				continue
			}
			res.Files++
			e.metrics.RecordItems(rec.Type, "file", 1)
			if opts.OnFile != nil {
				opts.OnFile(res.Files)
			}
		}

		if page.NextPageToken == "" || page.NextPageToken == token {
			return nil
		}
		token = page.NextPageToken
	}
}

// upsertFolder matches a remote folder to its row by remote id and writes it
// only when something changed.
func (e *Engine) upsertFolder(ctx context.Context, rec *store.Provider, rf provider.RemoteFolder, parentID, parentPath string) (*store.Folder, error) {
	name := provider.SanitizeName(rf.Name)
	path := provider.JoinFolderPath(parentPath, name)

	row, err := e.store.FindFolderByRemoteID(ctx, rec.ID, rf.RemoteID)
	switch {
	case err == nil:
		if row.Name == name && row.VirtualPath == path && row.ParentID == parentID &&
			row.RemoteModifiedAt.Equal(rf.ModifiedAt) && !row.IsDeleted {
			return row, nil
		}
	case errors.Is(err, provider.ErrNotFound):
		row = &store.Folder{ProviderID: rec.ID, RemoteID: rf.RemoteID}
	default:
		return nil, err
	}

	row.Name = name
	row.VirtualPath = path
	row.ParentID = parentID
	row.RemoteModifiedAt = rf.ModifiedAt
	row.IsDeleted = false

	if err := e.store.PutFolder(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// upsertFile matches a remote file by remote id, then by virtual path. The
// path fallback catches a backend that reissued the id of the same logical
// file. A path match whose remote id was already seen in this walk is a
// different file sharing the name, so the fallback skips it.
func (e *Engine) upsertFile(ctx context.Context, rec *store.Provider, rf provider.RemoteFile, folderID, parentPath string, seen map[string]struct{}) (*store.File, error) {
	name := provider.SanitizeName(rf.Name)
	path := provider.JoinFilePath(parentPath, name)

	row, err := e.store.FindFileByRemoteID(ctx, rec.ID, rf.RemoteID)
	if errors.Is(err, provider.ErrNotFound) {
		row, err = e.store.FindFileByPath(ctx, rec.ID, path)
		if err == nil {
			if _, taken := seen[row.RemoteID]; taken {
				row, err = nil, &provider.NotFoundError{Kind: "file", ID: rf.RemoteID}
			} else {
				logger.Debug("File %s of provider %s changed remote id %s -> %s", path, rec.ID, row.RemoteID, rf.RemoteID)
			}
		}
	}

	switch {
	case err == nil:
		if fileUnchanged(row, rf, name, path, folderID) {
			return row, nil
		}
	case errors.Is(err, provider.ErrNotFound):
		row = &store.File{ProviderID: rec.ID}
	default:
		return nil, err
	}

	row.RemoteID = rf.RemoteID
	row.Name = name
	row.VirtualPath = path
	row.FolderID = folderID
	row.MimeType = rf.MimeType
	row.Size = rf.Size
	row.Hash = rf.Hash
	row.RemoteModifiedAt = rf.ModifiedAt
	row.IsDeleted = false

	if err := e.store.PutFile(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func fileUnchanged(row *store.File, rf provider.RemoteFile, name, path, folderID string) bool {
	return row.RemoteID == rf.RemoteID &&
		row.Name == name &&
		row.VirtualPath == path &&
		row.FolderID == folderID &&
		row.MimeType == rf.MimeType &&
		row.Size == rf.Size &&
		row.Hash == rf.Hash &&
		row.RemoteModifiedAt.Equal(rf.ModifiedAt) &&
		!row.IsDeleted
}

// pruneScope hard-deletes the rows directly under parentID that the refresh
// did not see, together with the subtrees of pruned folders. Rows without a
// remote id were created locally and are kept.
func (e *Engine) pruneScope(ctx context.Context, providerID, parentID string, res *RefreshResult) (int, error) {
	pruned := 0

	folders, err := e.store.ListFolders(ctx, providerID, parentID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list folders for prune: %w", err)
	}
	for _, f := range folders {
		if f.RemoteID == "" {
			continue
		}
		if _, ok := res.SeenFolders[f.RemoteID]; ok {
			continue
		}
		n, err := e.deleteFolderTree(ctx, providerID, f.ID)
		pruned += n
		if err != nil {
			return pruned, err
		}
	}

	files, err := e.store.ListFiles(ctx, providerID, parentID, true)
	if err != nil {
		return pruned, fmt.Errorf("failed to list files for prune: %w", err)
	}
	for _, f := range files {
		if _, ok := res.SeenFiles[f.RemoteID]; ok {
			continue
		}
		if err := e.store.DeleteFile(ctx, f.ID); err != nil && !errors.Is(err, provider.ErrNotFound) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// deleteFolderTree removes a folder row and every row below it. The walk is
// an explicit stack with a visited set, so corrupt parent links cannot loop.
func (e *Engine) deleteFolderTree(ctx context.Context, providerID, folderID string) (int, error) {
	var (
		deleted int
		order   []string
		stack   = []string{folderID}
		visited = make(map[string]struct{})
	)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		order = append(order, id)

		files, err := e.store.ListFiles(ctx, providerID, id, true)
		if err != nil {
			return deleted, err
		}
		for _, f := range files {
			if err := e.store.DeleteFile(ctx, f.ID); err != nil && !errors.Is(err, provider.ErrNotFound) {
				return deleted, err
			}
			deleted++
		}

		children, err := e.store.ListFolders(ctx, providerID, id, true)
		if err != nil {
			return deleted, err
		}
		for _, c := range children {
			stack = append(stack, c.ID)
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		if err := e.store.DeleteFolder(ctx, order[i]); err != nil && !errors.Is(err, provider.ErrNotFound) {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
