package testing

import (
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFolderTests executes folder operation tests.
func (suite *ProviderTestSuite) RunFolderTests(t *testing.T) {
	t.Run("CreateFolder_Root", suite.testCreateFolderRoot)
	t.Run("CreateFolder_Nested", suite.testCreateFolderNested)
	t.Run("GetFolderMetadata", suite.testGetFolderMetadata)
	t.Run("DeleteFolder_Recursive", suite.testDeleteFolderRecursive)
	t.Run("MoveFolder", suite.testMoveFolder)
}

func (suite *ProviderTestSuite) testCreateFolderRoot(t *testing.T) {
	p := suite.newProvider(t)

	created, err := p.CreateFolder(testContext(), "docs", "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.RemoteID)
	assert.Equal(t, "docs", created.Name)

	found, ok := FindFolder(t, p, "", "docs")
	require.True(t, ok, "created folder should be listed at the root")
	assert.Equal(t, created.RemoteID, found.RemoteID)
}

func (suite *ProviderTestSuite) testCreateFolderNested(t *testing.T) {
	p := suite.newProvider(t)

	parent, err := p.CreateFolder(testContext(), "parent", "")
	require.NoError(t, err)
	child, err := p.CreateFolder(testContext(), "child", parent.RemoteID)
	require.NoError(t, err)

	found, ok := FindFolder(t, p, parent.RemoteID, "child")
	require.True(t, ok)
	assert.Equal(t, child.RemoteID, found.RemoteID)

	_, ok = FindFolder(t, p, "", "child")
	assert.False(t, ok, "nested folder must not appear at the root")
}

func (suite *ProviderTestSuite) testGetFolderMetadata(t *testing.T) {
	p := suite.newProvider(t)

	created, err := p.CreateFolder(testContext(), "meta", "")
	require.NoError(t, err)

	folder, err := p.GetFolderMetadata(testContext(), created.RemoteID)
	require.NoError(t, err)
	assert.Equal(t, "meta", folder.Name)
	assert.Equal(t, created.RemoteID, folder.RemoteID)
}

func (suite *ProviderTestSuite) testDeleteFolderRecursive(t *testing.T) {
	p := suite.newProvider(t)

	folder, err := p.CreateFolder(testContext(), "trash", "")
	require.NoError(t, err)
	Upload(t, p, folder.RemoteID, "a.txt", []byte("a"))
	Upload(t, p, folder.RemoteID, "b.txt", []byte("b"))

	require.NoError(t, p.Delete(testContext(), folder.RemoteID, true))

	_, ok := FindFolder(t, p, "", "trash")
	assert.False(t, ok, "deleted folder must disappear from the listing")
}

func (suite *ProviderTestSuite) testMoveFolder(t *testing.T) {
	p := suite.newProvider(t)

	src, err := p.CreateFolder(testContext(), "src", "")
	require.NoError(t, err)
	dst, err := p.CreateFolder(testContext(), "dst", "")
	require.NoError(t, err)
	Upload(t, p, src.RemoteID, "inner.txt", []byte("inner"))

	newParent := dst.RemoteID
	require.NoError(t, p.Move(testContext(), src.RemoteID, &newParent, nil))

	_, ok := FindFolder(t, p, "", "src")
	assert.False(t, ok, "moved folder must leave its old parent")

	moved, ok := FindFolder(t, p, dst.RemoteID, "src")
	require.True(t, ok, "moved folder must appear in its new parent")

	_, ok = FindFile(t, p, moved.RemoteID, "inner.txt")
	assert.True(t, ok, "folder contents must move with the folder")
}

// mustFolder is a small helper shared by the other test files.
func mustFolder(t *testing.T, p provider.StorageProvider, parentID, name string) provider.RemoteFolder {
	t.Helper()
	f, err := p.CreateFolder(testContext(), name, parentID)
	require.NoError(t, err)
	return f
}
