package testing

import (
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunFolderTests(t *testing.T) {
	t.Run("PutInsertAndGet", suite.testPutFolderInsert)
	t.Run("PutUpdate", suite.testPutFolderUpdate)
	t.Run("PutMovesParent", suite.testPutFolderMovesParent)
	t.Run("PutUnknownID", suite.testPutFolderUnknownID)
	t.Run("RejectsBadPath", suite.testPutFolderBadPath)
	t.Run("FindByRemoteID", suite.testFindFolderByRemoteID)
	t.Run("FindByPath", suite.testFindFolderByPath)
	t.Run("RemoteIDConflict", suite.testFolderRemoteIDConflict)
	t.Run("VirtualFolderWithoutRemoteID", suite.testVirtualFolders)
	t.Run("ListScoped", suite.testListFolders)
	t.Run("Delete", suite.testDeleteFolder)
}

func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("PutInsertAndGet", suite.testPutFileInsert)
	t.Run("PutUpdateMovesIndexes", suite.testPutFileUpdateIndexes)
	t.Run("RemoteIDConflict", suite.testFileRemoteIDConflict)
	t.Run("DeletedRowReleasesRemoteID", suite.testDeletedFileReleasesRemoteID)
	t.Run("SharedPath", suite.testFilesSharingPath)
	t.Run("NodeTypesAreSeparate", suite.testNodeTypesSeparate)
	t.Run("ListScoped", suite.testListFiles)
	t.Run("ListProviderFiles", suite.testListProviderFiles)
	t.Run("Delete", suite.testDeleteFile)
	t.Run("ReturnsCopies", suite.testFileCopies)
}

func (suite *StoreTestSuite) testPutFolderInsert(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")

	f := NewFolder(t, s, pid, nil, "docs", "r-docs")
	require.NotEmpty(t, f.ID)
	assert.False(t, f.CreatedAt.IsZero())

	got, err := s.GetFolder(testContext(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", got.Name)
	assert.Equal(t, "/docs/", got.VirtualPath)
	assert.Equal(t, "r-docs", got.RemoteID)
	assert.Empty(t, got.ParentID)
}

func (suite *StoreTestSuite) testPutFolderUpdate(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")
	created := f.CreatedAt

	f.Name = "papers"
	f.VirtualPath = "/papers/"
	require.NoError(t, s.PutFolder(testContext(), f))

	got, err := s.GetFolder(testContext(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "papers", got.Name)
	assert.True(t, created.Equal(got.CreatedAt))

	_, err = s.FindFolderByPath(testContext(), pid, "/docs/")
	assert.ErrorIs(t, err, provider.ErrNotFound, "old path index must be dropped")

	byPath, err := s.FindFolderByPath(testContext(), pid, "/papers/")
	require.NoError(t, err)
	assert.Equal(t, f.ID, byPath.ID)
}

func (suite *StoreTestSuite) testPutFolderMovesParent(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	a := NewFolder(t, s, pid, nil, "a", "r-a")
	b := NewFolder(t, s, pid, nil, "b", "r-b")
	child := NewFolder(t, s, pid, a, "c", "r-c")

	child.ParentID = b.ID
	child.VirtualPath = "/b/c/"
	require.NoError(t, s.PutFolder(testContext(), child))

	underA, err := s.ListFolders(testContext(), pid, a.ID, true)
	require.NoError(t, err)
	assert.Empty(t, underA)

	underB, err := s.ListFolders(testContext(), pid, b.ID, false)
	require.NoError(t, err)
	require.Len(t, underB, 1)
	assert.Equal(t, child.ID, underB[0].ID)

	byRemote, err := s.FindFolderByRemoteID(testContext(), pid, "r-c")
	require.NoError(t, err)
	assert.Equal(t, "/b/c/", byRemote.VirtualPath)
}

func (suite *StoreTestSuite) testPutFolderUnknownID(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	err := s.PutFolder(testContext(), &store.Folder{ID: "missing", ProviderID: pid, Name: "x", VirtualPath: "/x/"})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testPutFolderBadPath(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	err := s.PutFolder(testContext(), &store.Folder{ProviderID: pid, Name: "x", VirtualPath: "/x"})
	assert.Error(t, err)
}

func (suite *StoreTestSuite) testFindFolderByRemoteID(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	other := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r:docs/1")
	NewFolder(t, s, other, nil, "docs", "r:docs/1")

	got, err := s.FindFolderByRemoteID(testContext(), pid, "r:docs/1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)

	_, err = s.FindFolderByRemoteID(testContext(), pid, "r:docs")
	assert.ErrorIs(t, err, provider.ErrNotFound, "lookups must match whole remote ids")

	_, err = s.FindFolderByRemoteID(testContext(), pid, "")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func (suite *StoreTestSuite) testFindFolderByPath(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	parent := NewFolder(t, s, pid, nil, "a", "r-a")
	child := NewFolder(t, s, pid, parent, "b", "r-b")

	got, err := s.FindFolderByPath(testContext(), pid, "/a/b/")
	require.NoError(t, err)
	assert.Equal(t, child.ID, got.ID)
	assert.Equal(t, parent.ID, got.ParentID)
}

func (suite *StoreTestSuite) testFolderRemoteIDConflict(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	NewFolder(t, s, pid, nil, "a", "same")

	err := s.PutFolder(testContext(), &store.Folder{ProviderID: pid, RemoteID: "same", Name: "b", VirtualPath: "/b/"})
	assert.ErrorIs(t, err, provider.ErrConflict)
}

func (suite *StoreTestSuite) testVirtualFolders(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	NewFolder(t, s, pid, nil, "v1", "")
	NewFolder(t, s, pid, nil, "v2", "")

	folders, err := s.ListFolders(testContext(), pid, "", false)
	require.NoError(t, err)
	assert.Len(t, folders, 2, "folders without remote id never conflict")
}

func (suite *StoreTestSuite) testListFolders(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	other := newProvider(t, s, "ws")

	b := NewFolder(t, s, pid, nil, "b", "r-b")
	a := NewFolder(t, s, pid, nil, "a", "r-a")
	NewFolder(t, s, pid, a, "nested", "r-n")
	NewFolder(t, s, other, nil, "foreign", "r-f")

	gone := NewFolder(t, s, pid, nil, "gone", "r-g")
	gone.IsDeleted = true
	require.NoError(t, s.PutFolder(testContext(), gone))

	root, err := s.ListFolders(testContext(), pid, "", false)
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, a.ID, root[0].ID, "ordered by name")
	assert.Equal(t, b.ID, root[1].ID)

	withDeleted, err := s.ListFolders(testContext(), pid, "", true)
	require.NoError(t, err)
	assert.Len(t, withDeleted, 3)

	nested, err := s.ListFolders(testContext(), pid, a.ID, false)
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "nested", nested[0].Name)
}

func (suite *StoreTestSuite) testDeleteFolder(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFolder(t, s, pid, nil, "docs", "r-docs")
	require.NoError(t, s.PutPermission(testContext(), &store.Permission{FolderID: f.ID, UserID: "u", Role: store.RoleEditor}))

	require.NoError(t, s.DeleteFolder(testContext(), f.ID))

	_, err := s.GetFolder(testContext(), f.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.FindFolderByRemoteID(testContext(), pid, "r-docs")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.GetPermission(testContext(), f.ID, "u")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	assert.ErrorIs(t, s.DeleteFolder(testContext(), f.ID), provider.ErrNotFound)

	again := NewFolder(t, s, pid, nil, "docs", "r-docs")
	assert.NotEqual(t, f.ID, again.ID, "remote id is free after a hard delete")
}

func (suite *StoreTestSuite) testPutFileInsert(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	folder := NewFolder(t, s, pid, nil, "docs", "r-docs")

	f := &store.File{
		ProviderID:  pid,
		RemoteID:    "r-x",
		Name:        "x.txt",
		VirtualPath: "/docs/x.txt",
		FolderID:    folder.ID,
		MimeType:    "text/plain",
		Size:        12,
		Hash:        "abc",
	}
	require.NoError(t, s.PutFile(testContext(), f))
	require.NotEmpty(t, f.ID)

	got, err := s.GetFile(testContext(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "x.txt", got.Name)
	assert.Equal(t, int64(12), got.Size)
	assert.Equal(t, "text/plain", got.MimeType)
	assert.Equal(t, folder.ID, got.FolderID)

	err = s.PutFile(testContext(), &store.File{ProviderID: pid, Name: "y", VirtualPath: "/y"})
	assert.Error(t, err, "files require a remote id")
}

func (suite *StoreTestSuite) testPutFileUpdateIndexes(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	folder := NewFolder(t, s, pid, nil, "docs", "r-docs")
	f := NewFile(t, s, pid, nil, "x.txt", "A")

	f.RemoteID = "B"
	f.FolderID = folder.ID
	f.VirtualPath = "/docs/x.txt"
	require.NoError(t, s.PutFile(testContext(), f))

	_, err := s.FindFileByRemoteID(testContext(), pid, "A")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	byRemote, err := s.FindFileByRemoteID(testContext(), pid, "B")
	require.NoError(t, err)
	assert.Equal(t, f.ID, byRemote.ID)

	_, err = s.FindFileByPath(testContext(), pid, "/x.txt")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	byPath, err := s.FindFileByPath(testContext(), pid, "/docs/x.txt")
	require.NoError(t, err)
	assert.Equal(t, f.ID, byPath.ID)

	root, err := s.ListFiles(testContext(), pid, "", true)
	require.NoError(t, err)
	assert.Empty(t, root)
	inFolder, err := s.ListFiles(testContext(), pid, folder.ID, false)
	require.NoError(t, err)
	assert.Len(t, inFolder, 1)
}

func (suite *StoreTestSuite) testFileRemoteIDConflict(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	NewFile(t, s, pid, nil, "a.txt", "same")

	err := s.PutFile(testContext(), &store.File{ProviderID: pid, RemoteID: "same", Name: "b.txt", VirtualPath: "/b.txt"})
	assert.ErrorIs(t, err, provider.ErrConflict)

	other := newProvider(t, s, "ws")
	NewFile(t, s, other, nil, "a.txt", "same")
}

func (suite *StoreTestSuite) testDeletedFileReleasesRemoteID(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	old := NewFile(t, s, pid, nil, "a.txt", "same")
	old.IsDeleted = true
	require.NoError(t, s.PutFile(testContext(), old))

	live := NewFile(t, s, pid, nil, "a.txt", "same")

	got, err := s.FindFileByRemoteID(testContext(), pid, "same")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID, "live rows win over deleted ones")

	byPath, err := s.FindFileByPath(testContext(), pid, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, live.ID, byPath.ID)

	old.IsDeleted = false
	assert.ErrorIs(t, s.PutFile(testContext(), old), provider.ErrConflict, "undeleting must respect the live holder")
}

// Some backends allow two files with the same name in one folder.
func (suite *StoreTestSuite) testFilesSharingPath(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	first := NewFile(t, s, pid, nil, "dup.txt", "A")
	second := NewFile(t, s, pid, nil, "dup.txt", "B")
	require.NotEqual(t, first.ID, second.ID)

	byPath, err := s.FindFileByPath(testContext(), pid, "/dup.txt")
	require.NoError(t, err)
	assert.Contains(t, []string{first.ID, second.ID}, byPath.ID)

	require.NoError(t, s.DeleteFile(testContext(), first.ID))
	byPath, err = s.FindFileByPath(testContext(), pid, "/dup.txt")
	require.NoError(t, err)
	assert.Equal(t, second.ID, byPath.ID)
}

func (suite *StoreTestSuite) testNodeTypesSeparate(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	NewFolder(t, s, pid, nil, "x", "shared-id")
	NewFile(t, s, pid, nil, "x", "shared-id")

	_, err := s.FindFileByPath(testContext(), pid, "/x/")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.FindFolderByPath(testContext(), pid, "/x")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	file, err := s.FindFileByRemoteID(testContext(), pid, "shared-id")
	require.NoError(t, err)
	assert.Equal(t, "/x", file.VirtualPath)
	folder, err := s.FindFolderByRemoteID(testContext(), pid, "shared-id")
	require.NoError(t, err)
	assert.Equal(t, "/x/", folder.VirtualPath)
}

func (suite *StoreTestSuite) testListFiles(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	folder := NewFolder(t, s, pid, nil, "docs", "r-docs")
	NewFile(t, s, pid, nil, "root.txt", "r-root")
	NewFile(t, s, pid, folder, "b.txt", "r-b")
	NewFile(t, s, pid, folder, "a.txt", "r-a")
	gone := NewFile(t, s, pid, folder, "c.txt", "r-c")
	gone.IsDeleted = true
	require.NoError(t, s.PutFile(testContext(), gone))

	files, err := s.ListFiles(testContext(), pid, folder.ID, false)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, "b.txt", files[1].Name)

	all, err := s.ListFiles(testContext(), pid, folder.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	root, err := s.ListFiles(testContext(), pid, "", false)
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "root.txt", root[0].Name)
}

func (suite *StoreTestSuite) testListProviderFiles(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	other := newProvider(t, s, "ws")
	folder := NewFolder(t, s, pid, nil, "docs", "r-docs")
	NewFile(t, s, pid, nil, "a", "1")
	NewFile(t, s, pid, folder, "b", "2")
	NewFile(t, s, other, nil, "c", "3")

	files, err := s.ListProviderFiles(testContext(), pid)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func (suite *StoreTestSuite) testDeleteFile(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFile(t, s, pid, nil, "a.txt", "r-a")

	require.NoError(t, s.DeleteFile(testContext(), f.ID))
	_, err := s.GetFile(testContext(), f.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.FindFileByPath(testContext(), pid, "/a.txt")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.ErrorIs(t, s.DeleteFile(testContext(), f.ID), provider.ErrNotFound)
}

func (suite *StoreTestSuite) testFileCopies(t *testing.T) {
	s := suite.NewStore(t)
	pid := newProvider(t, s, "ws")
	f := NewFile(t, s, pid, nil, "a.txt", "r-a")

	f.Name = "mutated after put"
	got, err := s.GetFile(testContext(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name)

	got.Name = "mutated after get"
	again, err := s.GetFile(testContext(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", again.Name)
}
