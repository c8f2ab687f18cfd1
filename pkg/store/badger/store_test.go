package badger

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/marmos91/dittovfs/pkg/store"
	storetesting "github.com/marmos91/dittovfs/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestNewBadgerStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerStore(context.Background(), BadgerStoreConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)
	p := &store.Provider{WorkspaceID: "ws", Type: "local", Name: "disk"}
	require.NoError(t, s.CreateProvider(ctx, p))
	f := storetesting.NewFile(t, s, p.ID, nil, "kept.txt", "r-1")
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.FindFileByRemoteID(ctx, p.ID, "r-1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "/kept.txt", got.VirtualPath)
}

func TestBadgerStore_DeleteProviderInBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := &store.Provider{WorkspaceID: "ws", Type: "local"}
	require.NoError(t, s.CreateProvider(ctx, p))

	for i := 0; i < deleteBatch*2+3; i++ {
		storetesting.NewFile(t, s, p.ID, nil, fmt.Sprintf("f%03d", i), fmt.Sprintf("r-%03d", i))
	}
	require.NoError(t, s.DeleteProvider(ctx, p.ID))

	files, err := s.ListProviderFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIndexKeys(t *testing.T) {
	a := indexKey(prefixFileRemote, "p", "a", "id1")
	ab := indexKey(prefixFileRemote, "p", "a:b", "id2")

	assert.True(t, bytes.HasPrefix(a, indexPrefix(prefixFileRemote, "p", "a")))
	assert.False(t, bytes.HasPrefix(ab, indexPrefix(prefixFileRemote, "p", "a")),
		"a remote id must not match another id it prefixes")
	assert.Equal(t, "id1", idFromKey(a, indexPrefix(prefixFileRemote, "p", "a")))
}
