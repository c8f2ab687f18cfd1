package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Contents is the answer to a folder read. Folder is nil at the root.
type Contents struct {
	Folder  *store.Folder
	Folders []*store.Folder
	Files   []*store.File
}

// GetContents returns the children of folderID, or the union of the provider
// roots when folderID is empty, warming any scope that has no cached rows.
//
// Root warms fan out across providers concurrently; a provider that fails to
// warm is logged and contributes only the rows it already had.
func (e *Engine) GetContents(ctx context.Context, providers []*store.Provider, folderID string) (*Contents, error) {
	if folderID == "" {
		return e.rootContents(ctx, providers)
	}

	folder, err := e.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.IsDeleted {
		return nil, &provider.NotFoundError{Kind: "folder", ID: folderID}
	}

	var rec *store.Provider
	for _, p := range providers {
		if p.ID == folder.ProviderID {
			rec = p
			break
		}
	}
	if rec == nil {
		return nil, &provider.NotFoundError{Kind: "folder", ID: folderID}
	}

	if usable(rec) && folder.RemoteID != "" {
		if err := e.warm(ctx, rec, folder.RemoteID, folder.ID, folder.VirtualPath); err != nil {
			return nil, err
		}
	}

	out := &Contents{Folder: folder}
	if out.Folders, err = e.store.ListFolders(ctx, rec.ID, folder.ID, false); err != nil {
		return nil, err
	}
	if out.Files, err = e.store.ListFiles(ctx, rec.ID, folder.ID, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) rootContents(ctx context.Context, providers []*store.Provider) (*Contents, error) {
	var active []*store.Provider
	for _, p := range providers {
		if usable(p) {
			active = append(active, p)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range active {
		g.Go(func() error {
			if err := e.warm(gctx, p, "", "", "/"); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warn("Failed to warm root of provider %s: %v", p.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Contents{}
	for _, p := range active {
		folders, err := e.store.ListFolders(ctx, p.ID, "", false)
		if err != nil {
			return nil, err
		}
		files, err := e.store.ListFiles(ctx, p.ID, "", false)
		if err != nil {
			return nil, err
		}
		out.Folders = append(out.Folders, folders...)
		out.Files = append(out.Files, files...)
	}
	store.SortFolders(out.Folders)
	store.SortFiles(out.Files)
	return out, nil
}

// warm refreshes one scope when it has no live rows.
func (e *Engine) warm(ctx context.Context, rec *store.Provider, remoteFolderID, parentID, parentPath string) error {
	empty, err := e.scopeEmpty(ctx, rec.ID, parentID)
	if err != nil {
		return err
	}
	e.metrics.RecordWarm(rec.Type, !empty)
	if !empty {
		return nil
	}
	_, err = e.refreshScope(ctx, rec, remoteFolderID, parentID, parentPath)
	return err
}

// Refresh re-lists one cached folder ("" for the provider root) regardless of
// what is cached, then prunes the rows of that scope the listing did not
// report. It does not descend into subfolders.
func (e *Engine) Refresh(ctx context.Context, rec *store.Provider, folderID string) (*RefreshResult, error) {
	if folderID == "" {
		return e.refreshScope(ctx, rec, "", "", "/")
	}

	folder, err := e.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.ProviderID != rec.ID || folder.RemoteID == "" {
		return nil, &provider.NotFoundError{Kind: "folder", ID: folderID}
	}
	return e.refreshScope(ctx, rec, folder.RemoteID, folder.ID, folder.VirtualPath)
}

func (e *Engine) refreshScope(ctx context.Context, rec *store.Provider, remoteFolderID, parentID, parentPath string) (*RefreshResult, error) {
	adapter, done, err := e.acquirer.AcquireRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := e.RefreshFolder(ctx, adapter, rec, remoteFolderID, parentID, parentPath, RefreshOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh %s: %w", parentPath, err)
	}

	res.Pruned, err = e.pruneScope(ctx, rec.ID, parentID, res)
	if err != nil {
		return res, err
	}
	logger.Debug("Refreshed %s of provider %s: %d folders, %d files, %d pruned",
		parentPath, rec.ID, res.Folders, res.Files, res.Pruned)
	return res, nil
}

func (e *Engine) scopeEmpty(ctx context.Context, providerID, parentID string) (bool, error) {
	folders, err := e.store.ListFolders(ctx, providerID, parentID, false)
	if err != nil {
		return false, err
	}
	if len(folders) > 0 {
		return false, nil
	}
	files, err := e.store.ListFiles(ctx, providerID, parentID, false)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

func usable(p *store.Provider) bool {
	return p.IsActive && p.AuthState == store.AuthActive
}
