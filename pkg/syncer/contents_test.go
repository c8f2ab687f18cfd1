package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/provider/memory"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContents_LazyWarmThenCacheHit(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend(memory.WithPageSize(2), memory.WithDirectURLs())
	b.AddFolder("", "alpha")
	b.AddFolder("", "beta")
	b.AddFolder("", "gamma")
	rec := f.addProvider(t, "bucket", b)
	ctx := context.Background()

	got, err := f.engine.GetContents(ctx, []*store.Provider{rec}, "")
	require.NoError(t, err)
	assert.Empty(t, got.Files)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, folderNames(got.Folders))
	assert.Nil(t, got.Folder)

	lists := b.Calls("list")
	assert.Equal(t, 2, lists, "three folders over two pages")

	again, err := f.engine.GetContents(ctx, []*store.Provider{rec}, "")
	require.NoError(t, err)
	assert.Equal(t, folderNames(got.Folders), folderNames(again.Folders))
	assert.Equal(t, lists, b.Calls("list"), "second read is served from the cache")
	assert.Equal(t, 1, b.Cleanups())
}

func TestGetContents_FolderWarm(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend()
	docs := b.AddFolder("", "docs")
	b.AddFolder(docs, "nested")
	b.AddFile(docs, "a.txt", []byte("a"))
	b.AddFile(docs, "b.txt", []byte("b"))
	rec := f.addProvider(t, "mem", b)
	ctx := context.Background()
	providers := []*store.Provider{rec}

	root, err := f.engine.GetContents(ctx, providers, "")
	require.NoError(t, err)
	require.Len(t, root.Folders, 1)
	assert.Equal(t, 1, b.Calls("list"), "the root warm is not recursive")

	got, err := f.engine.GetContents(ctx, providers, root.Folders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs/", got.Folder.VirtualPath)
	assert.Equal(t, []string{"nested"}, folderNames(got.Folders))
	assert.Equal(t, []string{"a.txt", "b.txt"}, fileNames(got.Files))
	assert.Equal(t, "/docs/a.txt", got.Files[0].VirtualPath)
	assert.Equal(t, 2, b.Calls("list"))

	_, err = f.engine.GetContents(ctx, providers, root.Folders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Calls("list"))
}

func TestGetContents_FolderOutsideProviderSet(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend()
	b.AddFolder("", "docs")
	rec := f.addProvider(t, "mine", b)
	other := f.addProvider(t, "other", memory.NewBackend())
	ctx := context.Background()

	root, err := f.engine.GetContents(ctx, []*store.Provider{rec}, "")
	require.NoError(t, err)
	require.Len(t, root.Folders, 1)

	_, err = f.engine.GetContents(ctx, []*store.Provider{other}, root.Folders[0].ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = f.engine.GetContents(ctx, []*store.Provider{rec}, "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestGetContents_RootFansOutAcrossProviders(t *testing.T) {
	f := newFixture(t)

	b1 := memory.NewBackend()
	b1.AddFolder("", "one")
	p1 := f.addProvider(t, "p1", b1)

	b2 := memory.NewBackend()
	b2.AddFile("", "two.txt", []byte("2"))
	p2 := f.addProvider(t, "p2", b2)

	b3 := memory.NewBackend()
	b3.AddFolder("", "three")
	b3.FailOn("list", errors.New("offline"))
	p3 := f.addProvider(t, "p3", b3)

	inactive := &store.Provider{Type: memory.Type, AuthState: store.AuthPending}
	require.NoError(t, f.store.CreateProvider(context.Background(), inactive))

	got, err := f.engine.GetContents(context.Background(), []*store.Provider{p1, p2, p3, inactive}, "")
	require.NoError(t, err, "one failing provider does not fail the read")
	assert.Equal(t, []string{"one"}, folderNames(got.Folders))
	assert.Equal(t, []string{"two.txt"}, fileNames(got.Files))
	assert.Equal(t, 1, b3.Cleanups(), "failed warm still releases its adapter")
}

func TestRefresh_ScopedPrune(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend()
	docs := b.AddFolder("", "docs")
	f1 := b.AddFile(docs, "f1.txt", []byte("1"))
	f2 := b.AddFile(docs, "f2.txt", []byte("2"))
	old := b.AddFolder(docs, "old")
	b.AddFile(old, "deep.txt", []byte("d"))
	other := b.AddFolder("", "other")
	g1 := b.AddFile(other, "g1.txt", []byte("g"))
	rec := f.addProvider(t, "mem", b)
	ctx := context.Background()

	_, err := f.engine.SyncProvider(ctx, rec.ID, DefaultSyncOptions())
	require.NoError(t, err)
	require.Len(t, f.allFiles(t, rec.ID), 4)

	b.Remove(f2)
	b.Remove(old)

	docsRow, err := f.store.FindFolderByRemoteID(ctx, rec.ID, docs)
	require.NoError(t, err)

	res, err := f.engine.Refresh(ctx, rec, docsRow.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pruned, "f2, old and the file below old")

	var remote []string
	for _, file := range f.allFiles(t, rec.ID) {
		remote = append(remote, file.RemoteID)
	}
	assert.ElementsMatch(t, []string{f1, g1}, remote, "rows of other scopes are untouched")

	_, err = f.store.FindFolderByRemoteID(ctx, rec.ID, old)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = f.store.FindFolderByRemoteID(ctx, rec.ID, other)
	assert.NoError(t, err)
}

func TestRefresh_KeepsLocalFolders(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend()
	rec := f.addProvider(t, "mem", b)
	ctx := context.Background()

	local := &store.Folder{ProviderID: rec.ID, Name: "draft", VirtualPath: "/draft/"}
	require.NoError(t, f.store.PutFolder(ctx, local))

	_, err := f.engine.Refresh(ctx, rec, "")
	require.NoError(t, err)

	_, err = f.store.GetFolder(ctx, local.ID)
	assert.NoError(t, err, "rows without a remote id are not pruned")
}

func TestRefresh_RevivesSoftDeletedRows(t *testing.T) {
	f := newFixture(t)
	b := memory.NewBackend()
	id := b.AddFile("", "a.txt", []byte("a"))
	rec := f.addProvider(t, "mem", b)
	ctx := context.Background()

	_, err := f.engine.Refresh(ctx, rec, "")
	require.NoError(t, err)

	row, err := f.store.FindFileByRemoteID(ctx, rec.ID, id)
	require.NoError(t, err)
	row.IsDeleted = true
	require.NoError(t, f.store.PutFile(ctx, row))

	_, err = f.engine.Refresh(ctx, rec, "")
	require.NoError(t, err)

	row, err = f.store.FindFileByRemoteID(ctx, rec.ID, id)
	require.NoError(t, err)
	assert.False(t, row.IsDeleted)
}
