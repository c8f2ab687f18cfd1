package testing

import (
	"bytes"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMultipartTests executes chunked upload tests. Adapters without the
// capability are skipped.
func (suite *ProviderTestSuite) RunMultipartTests(t *testing.T) {
	t.Run("Multipart_Complete", suite.testMultipartComplete)
	t.Run("Multipart_Abort", suite.testMultipartAbort)
}

func (suite *ProviderTestSuite) chunked(t *testing.T, p provider.StorageProvider) provider.ChunkedUploader {
	t.Helper()
	caps := provider.Capabilities(p)
	if caps.Chunked == nil {
		t.Skip("adapter does not support chunked uploads")
	}
	return caps.Chunked
}

func (suite *ProviderTestSuite) testMultipartComplete(t *testing.T) {
	p := suite.newProvider(t)
	up := suite.chunked(t, p)
	ctx := testContext()

	first := testData(suite.partSize(), 1)
	second := testData(suite.partSize()/2+1, 9)
	total := int64(len(first) + len(second))

	session, err := up.InitiateMultipart(ctx, provider.UploadRequest{
		Name:     "chunked.bin",
		MimeType: "application/octet-stream",
		Size:     total,
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.UploadID)

	p1, err := up.UploadPart(ctx, session, 1, bytes.NewReader(first), int64(len(first)))
	require.NoError(t, err)
	p2, err := up.UploadPart(ctx, session, 2, bytes.NewReader(second), int64(len(second)))
	require.NoError(t, err)

	// Parts are handed over out of order; the adapter must sort them.
	remoteID, err := up.CompleteMultipart(ctx, session, []provider.Part{p2, p1})
	require.NoError(t, err)
	require.NotEmpty(t, remoteID)

	assert.Equal(t, append(append([]byte(nil), first...), second...), Download(t, p, remoteID))

	found, ok := FindFile(t, p, "", "chunked.bin")
	require.True(t, ok)
	assert.Equal(t, total, found.Size)
}

func (suite *ProviderTestSuite) testMultipartAbort(t *testing.T) {
	p := suite.newProvider(t)
	up := suite.chunked(t, p)
	ctx := testContext()

	data := testData(suite.partSize(), 3)
	session, err := up.InitiateMultipart(ctx, provider.UploadRequest{
		Name: "aborted.bin",
		Size: int64(len(data)) * 2,
	})
	require.NoError(t, err)

	_, err = up.UploadPart(ctx, session, 1, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	require.NoError(t, up.AbortMultipart(ctx, session))

	_, ok := FindFile(t, p, "", "aborted.bin")
	assert.False(t, ok, "aborted upload must not leave a file behind")
}
