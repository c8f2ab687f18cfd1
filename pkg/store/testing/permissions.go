package testing

import (
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunPermissionTests(t *testing.T) {
	t.Run("PutAndGet", suite.testPutPermission)
	t.Run("Replace", suite.testReplacePermission)
	t.Run("UnknownFolder", suite.testPermissionUnknownFolder)
	t.Run("InvalidRole", suite.testPermissionInvalidRole)
	t.Run("Delete", suite.testDeletePermission)
}

func (suite *StoreTestSuite) testPutPermission(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")

	require.NoError(t, s.PutPermission(testContext(), &store.Permission{
		FolderID:  f.ID,
		UserID:    "alice",
		Role:      store.RoleEditor,
		GrantedBy: "bob",
	}))

	got, err := s.GetPermission(testContext(), f.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.RoleEditor, got.Role)
	assert.Equal(t, "bob", got.GrantedBy)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetPermission(testContext(), f.ID, "carol")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testReplacePermission(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")

	require.NoError(t, s.PutPermission(testContext(), &store.Permission{FolderID: f.ID, UserID: "alice", Role: store.RoleViewer}))
	require.NoError(t, s.PutPermission(testContext(), &store.Permission{FolderID: f.ID, UserID: "alice", Role: store.RoleAdmin}))

	got, err := s.GetPermission(testContext(), f.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAdmin, got.Role)
}

func (suite *StoreTestSuite) testPermissionUnknownFolder(t *testing.T) {
	s := suite.NewStore(t)
	err := s.PutPermission(testContext(), &store.Permission{FolderID: "missing", UserID: "alice", Role: store.RoleViewer})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testPermissionInvalidRole(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")
	err := s.PutPermission(testContext(), &store.Permission{FolderID: f.ID, UserID: "alice", Role: "superuser"})
	assert.Error(t, err)
}

func (suite *StoreTestSuite) testDeletePermission(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")
	require.NoError(t, s.PutPermission(testContext(), &store.Permission{FolderID: f.ID, UserID: "alice", Role: store.RoleViewer}))

	require.NoError(t, s.DeletePermission(testContext(), f.ID, "alice"))
	_, err := s.GetPermission(testContext(), f.ID, "alice")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.ErrorIs(t, s.DeletePermission(testContext(), f.ID, "alice"), provider.ErrNotFound)
}
