package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is the conformance suite for store.Store implementations.
// It tests the interface contract, not implementation details, so the memory
// and badger stores run the same expectations.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Implementations
	// needing teardown register it with t.Cleanup.
	NewStore func(t *testing.T) store.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("Providers", suite.RunProviderTests)
	test.Run("Folders", suite.RunFolderTests)
	test.Run("Files", suite.RunFileTests)
	test.Run("Permissions", suite.RunPermissionTests)
}

func testContext() context.Context {
	return context.Background()
}

// newProvider creates a provider record in s and returns its id.
func newProvider(t *testing.T, s store.Store, workspaceID string) string {
	t.Helper()
	p := &store.Provider{
		WorkspaceID: workspaceID,
		Type:        "memory",
		Name:        "test",
		AuthState:   store.AuthActive,
		IsActive:    true,
	}
	require.NoError(t, s.CreateProvider(testContext(), p))
	require.NotEmpty(t, p.ID)
	return p.ID
}

// NewFolder inserts a live folder row under parent and returns it.
func NewFolder(t *testing.T, s store.Store, providerID string, parent *store.Folder, name, remoteID string) *store.Folder {
	t.Helper()
	f := &store.Folder{
		ProviderID:  providerID,
		RemoteID:    remoteID,
		Name:        name,
		VirtualPath: "/" + name + "/",
	}
	if parent != nil {
		f.ParentID = parent.ID
		f.VirtualPath = parent.VirtualPath + name + "/"
	}
	require.NoError(t, s.PutFolder(testContext(), f))
	return f
}

// NewFile inserts a live file row under folder and returns it.
func NewFile(t *testing.T, s store.Store, providerID string, folder *store.Folder, name, remoteID string) *store.File {
	t.Helper()
	f := &store.File{
		ProviderID:  providerID,
		RemoteID:    remoteID,
		Name:        name,
		VirtualPath: "/" + name,
		Size:        int64(len(name)),
	}
	if folder != nil {
		f.FolderID = folder.ID
		f.VirtualPath = folder.VirtualPath + name
	}
	require.NoError(t, s.PutFile(testContext(), f))
	return f
}
