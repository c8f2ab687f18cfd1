package local

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	providertesting "github.com/marmos91/dittovfs/pkg/provider/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) (*Provider, string) {
	t.Helper()
	root := t.TempDir()
	p := New()
	require.NoError(t, p.Initialize(context.Background(), map[string]any{"root_path": root}))
	return p, root
}

func TestLocalProvider(t *testing.T) {
	suite := &providertesting.ProviderTestSuite{
		NewProvider: func(t *testing.T) provider.StorageProvider {
			p, _ := newProvider(t)
			return p
		},
	}
	suite.Run(t)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingRoot", func(t *testing.T) {
		err := New().Initialize(ctx, map[string]any{})
		var cfgErr *provider.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "root_path", cfgErr.Field)
	})

	t.Run("RootIsFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		err := New().Initialize(ctx, map[string]any{"root_path": file})
		assert.ErrorIs(t, err, provider.ErrConfiguration)
	})

	t.Run("CreateRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b")
		p := New()
		require.NoError(t, p.Initialize(ctx, map[string]any{"root_path": root, "create_root": "true"}))
		assert.True(t, p.TestConnection(ctx))
		assert.DirExists(t, root)
	})
}

func TestUninitialized(t *testing.T) {
	p := New()
	assert.False(t, p.TestConnection(context.Background()))
	_, err := p.List(context.Background(), provider.ListRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestRejectsPathEscape(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	_, err := p.DownloadFile(ctx, "../etc/passwd")
	assert.Equal(t, http.StatusBadRequest, provider.StatusCode(err))

	_, err = p.List(ctx, provider.ListRequest{FolderID: "a/../../"})
	assert.Equal(t, http.StatusBadRequest, provider.StatusCode(err))
}

func TestDeleteRootForbidden(t *testing.T) {
	p, root := newProvider(t)
	err := p.Delete(context.Background(), "", true)
	assert.Equal(t, http.StatusForbidden, provider.StatusCode(err))
	assert.DirExists(t, root)
}

func TestMoveConflict(t *testing.T) {
	p, _ := newProvider(t)
	a := providertesting.Upload(t, p, "", "a.txt", []byte("a"))
	providertesting.Upload(t, p, "", "b.txt", []byte("b"))

	name := "b.txt"
	err := p.Move(context.Background(), a, nil, &name)
	assert.ErrorIs(t, err, provider.ErrConflict)
	assert.Equal(t, []byte("b"), providertesting.Download(t, p, "b.txt"))
}

func TestCopyFolderIntoItself(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()
	folder, err := p.CreateFolder(ctx, "docs", "")
	require.NoError(t, err)
	child, err := p.CreateFolder(ctx, "inner", folder.RemoteID)
	require.NoError(t, err)

	_, err = p.Copy(ctx, folder.RemoteID, &child.RemoteID, nil)
	assert.Equal(t, http.StatusConflict, provider.StatusCode(err))
}

func TestCopyFolderRecursive(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()
	src, err := p.CreateFolder(ctx, "src", "")
	require.NoError(t, err)
	nested, err := p.CreateFolder(ctx, "nested", src.RemoteID)
	require.NoError(t, err)
	providertesting.Upload(t, p, nested.RemoteID, "deep.txt", []byte("deep"))

	name := "dst"
	id, err := p.Copy(ctx, src.RemoteID, nil, &name)
	require.NoError(t, err)
	assert.Equal(t, "dst/", id)
	assert.Equal(t, []byte("deep"), providertesting.Download(t, p, "dst/nested/deep.txt"))
}

func TestUploadsDirHidden(t *testing.T) {
	p, root := newProvider(t)
	ctx := context.Background()

	s, err := p.InitiateMultipart(ctx, provider.UploadRequest{Name: "big.bin", Size: 8})
	require.NoError(t, err)
	_, err = p.UploadPart(ctx, s, 1, bytes.NewReader([]byte("12345678")), 8)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, uploadsDir, s.UploadID))

	page, err := p.List(ctx, provider.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Folders)

	q, err := p.GetQuota(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.Used)
	assert.Nil(t, q.Total)

	require.NoError(t, p.AbortMultipart(ctx, s))
	assert.NoDirExists(t, filepath.Join(root, uploadsDir, s.UploadID))
	require.NoError(t, p.AbortMultipart(ctx, s), "abort must be idempotent")
}

func TestCompleteMultipart_PartOrder(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	s, err := p.InitiateMultipart(ctx, provider.UploadRequest{Name: "ordered.txt"})
	require.NoError(t, err)
	p2, err := p.UploadPart(ctx, s, 2, bytes.NewReader([]byte("world")), 5)
	require.NoError(t, err)
	p1, err := p.UploadPart(ctx, s, 1, bytes.NewReader([]byte("hello ")), 6)
	require.NoError(t, err)

	id, err := p.CompleteMultipart(ctx, s, []provider.Part{p2, p1})
	require.NoError(t, err)
	assert.Equal(t, "ordered.txt", id)
	assert.Equal(t, []byte("hello world"), providertesting.Download(t, p, id))
}

func TestUploadPart_UnknownSession(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.UploadPart(context.Background(), &provider.UploadSession{UploadID: "../../x"}, 1, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "", folderID(""))
	assert.Equal(t, "a/b/", folderID("/a/b"))
	assert.Equal(t, "a/", parentOf("a/b.txt"))
	assert.Equal(t, "", parentOf("a/"))
	assert.Equal(t, "b", baseName("a/b/"))
}
