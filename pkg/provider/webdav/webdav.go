// Package webdav implements the storage provider contract over a Nextcloud /
// ownCloud style WebDAV server.
//
// Authorization uses the Nextcloud login flow v2: the lifecycle manager
// starts a login, the user approves it in a browser, and polling the login
// endpoint eventually yields a username and app password. Until then the
// adapter initializes in a pending state and every operation fails with
// provider.NotAuthorizedError.
//
// Remote ids are slash paths relative to the user's files root. Folder ids end
// with "/", file ids do not, and the root is "".
package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// Type is the registry type tag.
const Type = "webdav"

// Config is the decoded adapter configuration.
type Config struct {
	ServerURL   string `mapstructure:"server_url" validate:"required,url"`
	Username    string `mapstructure:"username"`
	AppPassword string `mapstructure:"app_password"`

	// RootPath scopes the adapter to a sub-tree of the user's files.
	RootPath  string `mapstructure:"root_path"`
	FilesPath string `mapstructure:"files_path"`
	ChunkPath string `mapstructure:"chunk_path"`

	// Poll coordinates of a started login flow.
	PollToken    string `mapstructure:"poll_token"`
	PollEndpoint string `mapstructure:"poll_endpoint" validate:"omitempty,url"`
	LoginURL     string `mapstructure:"login_url"`

	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

const (
	defaultRequestsPerSecond = 10
	defaultBurst             = 20
	defaultTimeout           = 60 * time.Second
)

var schema = provider.Schema{
	Type: Type,
	Fields: []provider.Field{
		{Name: "server_url", Required: true},
		{Name: "username", Credential: true},
		{Name: "app_password", Sensitive: true, Credential: true},
		{Name: "root_path", Default: ""},
		{Name: "files_path", Default: "remote.php/dav/files"},
		{Name: "chunk_path", Default: "remote.php/dav/uploads"},
		{Name: "poll_token", Sensitive: true, Credential: true},
		{Name: "poll_endpoint", Credential: true},
		{Name: "login_url", Credential: true},
		{Name: "requests_per_second", Default: defaultRequestsPerSecond},
		{Name: "burst", Default: defaultBurst},
		{Name: "timeout", Default: defaultTimeout.String()},
	},
}

// Schema returns the config schema.
func Schema() provider.Schema { return schema }

// Entry returns the registry entry for the WebDAV adapter.
func Entry() provider.Entry {
	return provider.Entry{
		Type:        Type,
		DisplayName: "Nextcloud / WebDAV",
		AuthType:    provider.AuthOAuthPoll,
		Schema:      schema,
		Factory:     func() provider.StorageProvider { return New() },
		Poll:        &loginFlow{client: loginClient},
	}
}

// newHTTPClient returns a client whose calls are paced by a token bucket.
func newHTTPClient(requestsPerSecond float64, burst int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: ratelimiter.New(requestsPerSecond, burst).Transport(nil),
	}
}

// Provider is the WebDAV adapter.
type Provider struct {
	client   *http.Client
	server   string
	filesURL *url.URL
	chunkURL *url.URL
	username string
	password string
	pending  bool
}

var (
	_ provider.StorageProvider     = (*Provider)(nil)
	_ provider.ChunkedUploader     = (*Provider)(nil)
	_ provider.AccountInfoProvider = (*Provider)(nil)
)

// New creates an uninitialized adapter.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() string { return Type }

// Initialize decodes config. Missing credentials leave the adapter pending
// rather than failing, since that is the normal state between connect and
// the end of the login flow.
func (p *Provider) Initialize(ctx context.Context, config map[string]any) error {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return err
	}

	server := strings.TrimSuffix(cfg.ServerURL, "/")
	p.server = server
	p.client = newHTTPClient(cfg.RequestsPerSecond, cfg.Burst, cfg.Timeout)

	if cfg.Username == "" || cfg.AppPassword == "" {
		p.pending = true
		logger.Debug("WebDAV provider for %s initialized pending authorization", server)
		return nil
	}

	filesURL, err := url.Parse(joinURL(server, cfg.FilesPath, cfg.Username, cfg.RootPath) + "/")
	if err != nil {
		return &provider.ConfigurationError{Type: Type, Field: "server_url", Message: err.Error()}
	}
	chunkURL, err := url.Parse(joinURL(server, cfg.ChunkPath, cfg.Username) + "/")
	if err != nil {
		return &provider.ConfigurationError{Type: Type, Field: "chunk_path", Message: err.Error()}
	}

	p.filesURL = filesURL
	p.chunkURL = chunkURL
	p.username = cfg.Username
	p.password = cfg.AppPassword
	p.pending = false

	logger.Debug("WebDAV provider initialized: server=%s, user=%s, root=%s", server, p.username, filesURL.Path)
	return nil
}

func (p *Provider) ready(op string) error {
	if p.client == nil {
		return &provider.ProviderError{Type: Type, Op: op, Message: "provider not initialized"}
	}
	if p.pending {
		return &provider.NotAuthorizedError{Type: Type}
	}
	return nil
}

// TestConnection issues a depth-0 PROPFIND on the root.
func (p *Provider) TestConnection(ctx context.Context) bool {
	if p.ready("test") != nil {
		return false
	}
	if _, err := p.propfind(ctx, "test", "", "0", propfindBasic); err != nil {
		logger.Debug("WebDAV connection test failed: %v", err)
		return false
	}
	return true
}

// Cleanup releases idle connections held by the client.
func (p *Provider) Cleanup() error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

// resolve returns the absolute URL of a remote id under the files root.
func (p *Provider) resolve(remoteID string) string {
	return resolveUnder(p.filesURL, remoteID)
}

func resolveUnder(base *url.URL, rel string) string {
	u := *base
	u.Path = base.Path + strings.TrimPrefix(rel, "/")
	u.RawPath = ""
	return u.String()
}

// relative maps a multistatus href back to a remote id. ok is false for
// hrefs outside the files root.
func (p *Provider) relative(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(u.Path, p.filesURL.Path) {
		return "", false
	}
	return strings.TrimPrefix(u.Path, p.filesURL.Path), true
}

// do sends an authenticated request and converts non-2xx responses into a
// *provider.ProviderError. The caller closes the returned body.
func (p *Provider) do(ctx context.Context, op, method, target string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, provider.Wrap(Type, op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, provider.Wrap(Type, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusErr(op, resp)
	}
	return resp, nil
}

// exec is do for requests whose response body is not needed.
func (p *Provider) exec(ctx context.Context, op, method, target string, body io.Reader, header http.Header) error {
	resp, err := p.do(ctx, op, method, target, body, header)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func statusErr(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		text = ""
	}
	return provider.StatusError(Type, op, resp.StatusCode, text)
}

func joinURL(base string, parts ...string) string {
	out := base
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		out += "/" + escapePath(part)
	}
	return out
}

// escapePath percent-encodes every segment of a slash path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func parentOf(remoteID string) string {
	trimmed := strings.TrimSuffix(remoteID, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

func baseName(remoteID string) string {
	trimmed := strings.TrimSuffix(remoteID, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

func folderID(id string) string {
	if id == "" || strings.HasSuffix(id, "/") {
		return id
	}
	return id + "/"
}

func errorf(op, format string, args ...any) error {
	return &provider.ProviderError{Type: Type, Op: op, Message: fmt.Sprintf(format, args...)}
}
