package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFileTests executes file operation tests.
func (suite *ProviderTestSuite) RunFileTests(t *testing.T) {
	t.Run("UploadDownload", suite.testUploadDownload)
	t.Run("UploadDownload_Empty", suite.testUploadDownloadEmpty)
	t.Run("GetFileMetadata", suite.testGetFileMetadata)
	t.Run("RenameFile", suite.testRenameFile)
	t.Run("CopyFile", suite.testCopyFile)
	t.Run("DeleteFile", suite.testDeleteFile)
	t.Run("Download_NotFound", suite.testDownloadNotFound)
	t.Run("Quota", suite.testQuota)
}

func (suite *ProviderTestSuite) testUploadDownload(t *testing.T) {
	p := suite.newProvider(t)
	folder := mustFolder(t, p, "", "files")
	data := testData(4096, 7)

	id := Upload(t, p, folder.RemoteID, "blob.bin", data)

	assert.Equal(t, data, Download(t, p, id))
}

func (suite *ProviderTestSuite) testUploadDownloadEmpty(t *testing.T) {
	p := suite.newProvider(t)

	id := Upload(t, p, "", "empty.txt", []byte{})

	assert.Empty(t, Download(t, p, id))
}

func (suite *ProviderTestSuite) testGetFileMetadata(t *testing.T) {
	p := suite.newProvider(t)
	id := Upload(t, p, "", "sized.txt", []byte("twelve bytes"))

	file, err := p.GetFileMetadata(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, "sized.txt", file.Name)
	assert.Equal(t, int64(12), file.Size)
}

func (suite *ProviderTestSuite) testRenameFile(t *testing.T) {
	p := suite.newProvider(t)
	id := Upload(t, p, "", "before.txt", []byte("content"))

	newName := "after.txt"
	require.NoError(t, p.Move(testContext(), id, nil, &newName))

	_, ok := FindFile(t, p, "", "before.txt")
	assert.False(t, ok)
	renamed, ok := FindFile(t, p, "", "after.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("content"), Download(t, p, renamed.RemoteID))
}

func (suite *ProviderTestSuite) testCopyFile(t *testing.T) {
	p := suite.newProvider(t)
	target := mustFolder(t, p, "", "copies")
	id := Upload(t, p, "", "original.txt", []byte("copy me"))

	targetID := target.RemoteID
	newName := "duplicate.txt"
	copyID, err := p.Copy(testContext(), id, &targetID, &newName)
	require.NoError(t, err)
	require.NotEmpty(t, copyID)

	assert.Equal(t, []byte("copy me"), Download(t, p, copyID))
	assert.Equal(t, []byte("copy me"), Download(t, p, id), "source must be untouched")
}

func (suite *ProviderTestSuite) testDeleteFile(t *testing.T) {
	p := suite.newProvider(t)
	id := Upload(t, p, "", "gone.txt", []byte("x"))

	require.NoError(t, p.Delete(testContext(), id, false))

	_, ok := FindFile(t, p, "", "gone.txt")
	assert.False(t, ok)
}

func (suite *ProviderTestSuite) testDownloadNotFound(t *testing.T) {
	p := suite.newProvider(t)
	ref := Upload(t, p, "", "ref.txt", []byte("x"))
	require.NoError(t, p.Delete(testContext(), ref, false))

	rc, err := p.DownloadFile(testContext(), ref)
	if err == nil {
		_ = rc.Close()
	}
	require.Error(t, err)

	var pe *provider.ProviderError
	assert.True(t, errors.As(err, &pe), "adapter errors must be wrapped as ProviderError, got %T", err)
}

func (suite *ProviderTestSuite) testQuota(t *testing.T) {
	p := suite.newProvider(t)
	Upload(t, p, "", "q1.txt", testData(100, 1))
	Upload(t, p, "", "q2.txt", testData(50, 2))

	q, err := p.GetQuota(testContext())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.Used, int64(150))
	if q.Total != nil {
		require.NotNil(t, q.Available)
	}
}
