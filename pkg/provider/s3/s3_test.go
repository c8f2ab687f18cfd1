package s3

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() map[string]any {
	return map[string]any{
		"bucket":            "test-bucket",
		"region":            "us-east-1",
		"endpoint":          "http://localhost:9000",
		"access_key_id":     "AKIDEXAMPLE",
		"secret_access_key": "secret",
		"prefix":            "dittovfs",
	}
}

func initialized(t *testing.T) *Provider {
	t.Helper()
	p := New()
	require.NoError(t, p.Initialize(context.Background(), validConfig()))
	return p
}

func TestInitialize_MissingRequiredField(t *testing.T) {
	cfg := validConfig()
	delete(cfg, "bucket")

	err := New().Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrConfiguration)

	var cfgErr *provider.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bucket", cfgErr.Field)
}

func TestInitialize_InvalidEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg["endpoint"] = "not a url"

	err := New().Initialize(context.Background(), cfg)
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestInitialize_Defaults(t *testing.T) {
	p := initialized(t)

	assert.Equal(t, "test-bucket", p.bucket)
	assert.Equal(t, "dittovfs/", p.prefix)
	assert.Equal(t, "15m0s", p.expiry.String())
}

func TestUninitialized(t *testing.T) {
	p := New()
	ctx := context.Background()

	assert.False(t, p.TestConnection(ctx))

	_, err := p.List(ctx, provider.ListRequest{})
	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "list", pe.Op)

	_, err = p.GetQuota(ctx)
	assert.Error(t, err)
}

func TestKeyHelpers(t *testing.T) {
	p := initialized(t)

	t.Run("FolderPrefix", func(t *testing.T) {
		assert.Equal(t, "dittovfs/", p.folderPrefix(""))
		assert.Equal(t, "dittovfs/docs/", p.folderPrefix("dittovfs/docs/"))
		assert.Equal(t, "dittovfs/docs/", p.folderPrefix("dittovfs/docs"))
	})

	t.Run("ParentOf", func(t *testing.T) {
		assert.Equal(t, "", p.parentOf("dittovfs/a.txt"))
		assert.Equal(t, "", p.parentOf("dittovfs/docs/"))
		assert.Equal(t, "dittovfs/docs/", p.parentOf("dittovfs/docs/a.txt"))
		assert.Equal(t, "dittovfs/docs/", p.parentOf("dittovfs/docs/sub/"))
	})

	t.Run("BaseName", func(t *testing.T) {
		assert.Equal(t, "a.txt", baseName("dittovfs/docs/a.txt"))
		assert.Equal(t, "docs", baseName("dittovfs/docs/"))
	})

	t.Run("InScope", func(t *testing.T) {
		assert.True(t, p.inScope("dittovfs/docs/a.txt"))
		assert.True(t, p.inScope(p.folderPrefix("")))
		assert.False(t, p.inScope("other/a.txt"))
		assert.False(t, p.inScope("dittovfs-old/a.txt"))
	})

	t.Run("NormalizePrefix", func(t *testing.T) {
		assert.Equal(t, "", normalizePrefix(""))
		assert.Equal(t, "a/b/", normalizePrefix("/a/b"))
	})
}

func TestDelete_OutsidePrefix(t *testing.T) {
	p := initialized(t)
	ctx := context.Background()

	assert.ErrorIs(t, p.Delete(ctx, "other/", true), provider.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, "other/a.txt", false), provider.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, "", false), provider.ErrNotFound)
}

func TestRequestUpload_Presigns(t *testing.T) {
	p := initialized(t)

	ticket, err := p.RequestUpload(context.Background(), provider.UploadRequest{
		Name:     "report.pdf",
		ParentID: "dittovfs/docs/",
		Size:     42,
	})
	require.NoError(t, err)

	assert.True(t, ticket.UseDirectUpload)
	assert.Equal(t, "dittovfs/docs/report.pdf", ticket.FileID)

	u, err := url.Parse(ticket.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/test-bucket/dittovfs/docs/report.pdf", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestRequestUpload_SanitizesName(t *testing.T) {
	p := initialized(t)

	ticket, err := p.RequestUpload(context.Background(), provider.UploadRequest{Name: "a/b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "dittovfs/a-b.txt", ticket.FileID)
}

func TestRequestDownload_Presigns(t *testing.T) {
	p := initialized(t)

	ticket, err := p.RequestDownload(context.Background(), "dittovfs/a.txt")
	require.NoError(t, err)

	assert.True(t, ticket.UseDirectDownload)
	assert.True(t, strings.Contains(ticket.DownloadURL, "/test-bucket/dittovfs/a.txt"))
	assert.Contains(t, ticket.DownloadURL, "X-Amz-Expires=900")
}

func TestWrapErr(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, wrapErr("op", nil))
	})

	t.Run("ResponseStatus", func(t *testing.T) {
		resp := &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusForbidden}},
				Err:      errors.New("access denied"),
			},
			RequestID: "req-1",
		}

		err := wrapErr("list", resp)
		var pe *provider.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, http.StatusForbidden, pe.StatusCode)
		assert.Equal(t, "req-1", pe.Details["request_id"])
		assert.Equal(t, http.StatusForbidden, provider.StatusCode(err))
	})

	t.Run("NoSuchKeyIsNotFound", func(t *testing.T) {
		err := wrapErr("download", &types.NoSuchKey{})
		assert.ErrorIs(t, err, provider.ErrNotFound)

		var pe *provider.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "NoSuchKey", pe.Details["code"])
	})
}

func TestFlattenHeader(t *testing.T) {
	assert.Nil(t, flattenHeader(nil))

	h := http.Header{}
	h.Add("Host", "example.com")
	h.Add("X-Amz-Meta", "a")
	h.Add("X-Amz-Meta", "b")

	out := flattenHeader(h)
	assert.Equal(t, "example.com", out["Host"])
	assert.Equal(t, "a", out["X-Amz-Meta"])
}
