package testing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/stretchr/testify/require"
)

// ProviderTestSuite checks the StorageProvider contract independent of the
// backend, so every adapter (memory, local disk, S3 against Localstack, ...)
// runs the same expectations.
//
// Usage:
//
//	func TestLocalProvider(t *testing.T) {
//	    suite := &providertesting.ProviderTestSuite{
//	        NewProvider: func(t *testing.T) provider.StorageProvider {
//	            return newInitializedAdapter(t)
//	        },
//	    }
//	    suite.Run(t)
//	}
type ProviderTestSuite struct {
	// NewProvider returns an initialized adapter over an empty remote tree.
	// Each test gets its own instance; the suite calls Cleanup.
	NewProvider func(t *testing.T) provider.StorageProvider

	// PartSize is the chunk size used by the multipart tests. Backends with a
	// minimum part size (S3: 5 MiB) must set it. Default 1 KiB.
	PartSize int
}

// Run executes all tests in the suite.
func (suite *ProviderTestSuite) Run(t *testing.T) {
	t.Run("Folders", suite.RunFolderTests)
	t.Run("Files", suite.RunFileTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("Multipart", suite.RunMultipartTests)
}

func (suite *ProviderTestSuite) newProvider(t *testing.T) provider.StorageProvider {
	t.Helper()
	p := suite.NewProvider(t)
	t.Cleanup(func() { _ = p.Cleanup() })
	return p
}

func (suite *ProviderTestSuite) partSize() int {
	if suite.PartSize > 0 {
		return suite.PartSize
	}
	return 1024
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// Upload stores data as name inside parentID through RequestUpload, following
// the direct path when the adapter offers one, and returns the final remote id.
func Upload(t *testing.T, p provider.StorageProvider, parentID, name string, data []byte) string {
	t.Helper()
	ctx := testContext()

	ticket, err := p.RequestUpload(ctx, provider.UploadRequest{
		Name:     name,
		MimeType: "text/plain",
		Size:     int64(len(data)),
		ParentID: parentID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ticket.FileID)

	if ticket.UseDirectUpload {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, bytes.NewReader(data))
		require.NoError(t, err)
		req.ContentLength = int64(len(data))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Less(t, resp.StatusCode, 300, "direct upload failed with status %d", resp.StatusCode)
		return ticket.FileID
	}

	newID, err := p.UploadFile(ctx, ticket.FileID, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	if newID != "" {
		return newID
	}
	return ticket.FileID
}

// Download reads the full content of remoteID.
func Download(t *testing.T, p provider.StorageProvider, remoteID string) []byte {
	t.Helper()
	rc, err := p.DownloadFile(testContext(), remoteID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// ListAll drains every page of folderID.
func ListAll(t *testing.T, p provider.StorageProvider, folderID string, limit int) provider.ListResult {
	t.Helper()
	var all provider.ListResult
	token := ""
	for i := 0; ; i++ {
		require.Less(t, i, 10000, "listing did not terminate")
		page, err := p.List(testContext(), provider.ListRequest{FolderID: folderID, PageToken: token, Limit: limit})
		require.NoError(t, err)
		all.Files = append(all.Files, page.Files...)
		all.Folders = append(all.Folders, page.Folders...)
		if page.NextPageToken == "" {
			return all
		}
		token = page.NextPageToken
	}
}

// FindFile returns the file named name directly inside folderID.
func FindFile(t *testing.T, p provider.StorageProvider, folderID, name string) (provider.RemoteFile, bool) {
	t.Helper()
	for _, f := range ListAll(t, p, folderID, 0).Files {
		if f.Name == name {
			return f, true
		}
	}
	return provider.RemoteFile{}, false
}

// FindFolder returns the folder named name directly inside folderID.
func FindFolder(t *testing.T, p provider.StorageProvider, folderID, name string) (provider.RemoteFolder, bool) {
	t.Helper()
	for _, f := range ListAll(t, p, folderID, 0).Folders {
		if f.Name == name {
			return f, true
		}
	}
	return provider.RemoteFolder{}, false
}

func testData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i%251)
	}
	return data
}
