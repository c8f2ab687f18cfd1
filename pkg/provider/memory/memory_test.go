package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	providertesting "github.com/marmos91/dittovfs/pkg/provider/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProvider(t *testing.T) {
	suite := &providertesting.ProviderTestSuite{
		NewProvider: func(t *testing.T) provider.StorageProvider {
			p := New(NewBackend(), provider.AuthNone)
			require.NoError(t, p.Initialize(context.Background(), nil))
			return p
		},
	}
	suite.Run(t)
}

func TestMemoryProvider_PendingAuthGuard(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	p := New(b, provider.AuthOAuthPoll)
	require.NoError(t, p.Initialize(ctx, map[string]any{}))

	assert.False(t, p.TestConnection(ctx))

	_, err := p.List(ctx, provider.ListRequest{})
	assert.ErrorIs(t, err, provider.ErrNotAuthorized)

	_, err = p.GetQuota(ctx)
	assert.ErrorIs(t, err, provider.ErrNotAuthorized)

	_, err = p.UploadFile(ctx, "m-1", nil, 0)
	assert.ErrorIs(t, err, provider.ErrNotAuthorized)

	assert.Zero(t, b.Calls("list"), "pending adapters must not reach the backend")
}

func TestMemoryProvider_PageSizeCap(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(WithPageSize(2))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		b.AddFile("", name, []byte(name))
	}

	p := New(b, provider.AuthNone)
	require.NoError(t, p.Initialize(ctx, nil))

	page, err := p.List(ctx, provider.ListRequest{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page.Files, 2)
	assert.Equal(t, "2", page.NextPageToken)

	all := providertesting.ListAll(t, p, "", 100)
	assert.Len(t, all.Files, 5)
}

func TestMemoryProvider_FailOn(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	folder := b.AddFolder("", "broken")
	boom := errors.New("boom")
	b.FailOn("list:"+folder, boom)

	p := New(b, provider.AuthNone)
	require.NoError(t, p.Initialize(ctx, nil))

	_, err := p.List(ctx, provider.ListRequest{})
	require.NoError(t, err, "scoped failures must only affect their remote id")

	_, err = p.List(ctx, provider.ListRequest{FolderID: folder})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "list", pe.Op)

	b.FailOn("list:"+folder, nil)
	_, err = p.List(ctx, provider.ListRequest{FolderID: folder})
	assert.NoError(t, err)
}

func TestBackend_Reissue(t *testing.T) {
	b := NewBackend()
	folder := b.AddFolder("", "docs")
	file := b.AddFile(folder, "x.txt", []byte("x"))

	newFolder := b.Reissue(folder)
	assert.NotEqual(t, folder, newFolder)
	assert.False(t, b.Exists(folder))
	assert.True(t, b.Exists(newFolder))

	p := New(b, provider.AuthNone)
	require.NoError(t, p.Initialize(context.Background(), nil))
	f, ok := providertesting.FindFile(t, p, newFolder, "x.txt")
	require.True(t, ok, "children must follow the reissued parent")
	assert.Equal(t, file, f.RemoteID)
}

func TestMemoryProvider_DirectURLs(t *testing.T) {
	ctx := context.Background()
	p := New(NewBackend(WithDirectURLs()), provider.AuthNone)
	require.NoError(t, p.Initialize(ctx, nil))

	ticket, err := p.RequestUpload(ctx, provider.UploadRequest{Name: "x"})
	require.NoError(t, err)
	assert.True(t, ticket.UseDirectUpload)

	dl, err := p.RequestDownload(ctx, ticket.FileID)
	require.NoError(t, err)
	assert.True(t, dl.UseDirectDownload)
	assert.Contains(t, dl.DownloadURL, ticket.FileID)
}

func TestPollFlow(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	entry := Entry(b, provider.AuthOAuthPoll)
	require.NotNil(t, entry.Poll)

	start, err := entry.Poll.StartLogin(ctx, map[string]any{})
	require.NoError(t, err)
	assert.NotEmpty(t, start.LoginURL)

	cfg, err := entry.Poll.Poll(ctx, start.Config)
	require.NoError(t, err)
	assert.Nil(t, cfg, "poll before approval must report not-yet")

	b.Authorize("abc")

	cfg, err = entry.Poll.Poll(ctx, start.Config)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "tok-abc", cfg["token"])
	_, hasLogin := cfg["login_id"]
	assert.False(t, hasLogin, "poll coordinates must be cleared on success")
}
