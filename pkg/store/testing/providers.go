package testing

import (
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunProviderTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetProvider)
	t.Run("CreateDuplicateID", suite.testCreateDuplicateProvider)
	t.Run("GetNotFound", suite.testGetProviderNotFound)
	t.Run("Update", suite.testUpdateProvider)
	t.Run("UpdateNotFound", suite.testUpdateProviderNotFound)
	t.Run("ListByWorkspace", suite.testListProviders)
	t.Run("DeleteCascades", suite.testDeleteProviderCascades)
	t.Run("ReturnsCopies", suite.testProviderCopies)
}

func (suite *StoreTestSuite) testCreateAndGetProvider(t *testing.T) {
	s := suite.NewStore(t)
	total := int64(1 << 30)

	p := &store.Provider{
		WorkspaceID:     "ws-1",
		Type:            "s3",
		Name:            "bucket",
		EncryptedConfig: "ciphertext",
		AuthState:       store.AuthActive,
		IsActive:        true,
		QuotaTotal:      &total,
		QuotaUsed:       42,
		CreatedBy:       "user-1",
	}
	require.NoError(t, s.CreateProvider(testContext(), p))
	require.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProvider(testContext(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3", got.Type)
	assert.Equal(t, "ciphertext", got.EncryptedConfig)
	assert.Equal(t, store.AuthActive, got.AuthState)
	require.NotNil(t, got.QuotaTotal)
	assert.Equal(t, total, *got.QuotaTotal)
	assert.Equal(t, int64(42), got.QuotaUsed)
	assert.Nil(t, got.LastSyncAt)
}

func (suite *StoreTestSuite) testCreateDuplicateProvider(t *testing.T) {
	s := suite.NewStore(t)
	id := newProvider(t, s, "ws-1")

	err := s.CreateProvider(testContext(), &store.Provider{ID: id, Type: "s3"})
	assert.ErrorIs(t, err, provider.ErrConflict)
}

func (suite *StoreTestSuite) testGetProviderNotFound(t *testing.T) {
	s := suite.NewStore(t)
	_, err := s.GetProvider(testContext(), "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testUpdateProvider(t *testing.T) {
	s := suite.NewStore(t)
	id := newProvider(t, s, "ws-1")

	got, err := s.GetProvider(testContext(), id)
	require.NoError(t, err)
	created := got.CreatedAt

	got.AuthState = store.AuthPending
	got.IsActive = false
	got.QuotaTotal = nil
	got.AccountEmail = "me@example.com"
	require.NoError(t, s.UpdateProvider(testContext(), got))

	updated, err := s.GetProvider(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, store.AuthPending, updated.AuthState)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "me@example.com", updated.AccountEmail)
	assert.True(t, created.Equal(updated.CreatedAt), "CreatedAt must be preserved")
	assert.False(t, updated.UpdatedAt.Before(created))
}

func (suite *StoreTestSuite) testUpdateProviderNotFound(t *testing.T) {
	s := suite.NewStore(t)
	err := s.UpdateProvider(testContext(), &store.Provider{ID: "missing"})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testListProviders(t *testing.T) {
	s := suite.NewStore(t)
	a := newProvider(t, s, "ws-a")
	b := newProvider(t, s, "ws-a")
	c := newProvider(t, s, "ws-b")

	inA, err := s.ListProviders(testContext(), "ws-a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, providerIDs(inA))

	all, err := s.ListProviders(testContext(), "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b, c}, providerIDs(all))

	none, err := s.ListProviders(testContext(), "ws-empty")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func (suite *StoreTestSuite) testDeleteProviderCascades(t *testing.T) {
	s := suite.NewStore(t)
	doomed := newProvider(t, s, "ws-1")
	kept := newProvider(t, s, "ws-1")

	folder := NewFolder(t, s, doomed, nil, "docs", "r-docs")
	file := NewFile(t, s, doomed, folder, "a.txt", "r-a")
	require.NoError(t, s.PutPermission(testContext(), &store.Permission{FolderID: folder.ID, UserID: "u", Role: store.RoleViewer}))
	keptFile := NewFile(t, s, kept, nil, "b.txt", "r-b")

	require.NoError(t, s.DeleteProvider(testContext(), doomed))

	_, err := s.GetProvider(testContext(), doomed)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.GetFolder(testContext(), folder.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.GetFile(testContext(), file.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.GetPermission(testContext(), folder.ID, "u")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = s.GetFile(testContext(), keptFile.ID)
	assert.NoError(t, err, "other providers' rows must survive")

	assert.ErrorIs(t, s.DeleteProvider(testContext(), doomed), provider.ErrNotFound)
}

func (suite *StoreTestSuite) testProviderCopies(t *testing.T) {
	s := suite.NewStore(t)
	id := newProvider(t, s, "ws-1")

	got, err := s.GetProvider(testContext(), id)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.GetProvider(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, "test", again.Name)
}

func providerIDs(ps []*store.Provider) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}
