// Package gdrive implements the storage provider contract over the Google
// Drive v3 API.
//
// Authorization is a standard OAuth 2.0 redirect flow. The config carries the
// OAuth client credentials and, once the flow completes, the access and
// refresh tokens. An adapter initialized without tokens is pending: every
// operation fails with provider.NotAuthorizedError.
//
// Remote ids are Drive file ids. The root ("") maps to root_folder_id, which
// defaults to the "root" alias of My Drive.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/provider"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Type is the registry type tag.
const Type = "gdrive"

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"
	maxPageSize      = 1000
)

// fileFields is the partial response requested for every file resource.
const fileFields = "id,name,mimeType,parents,size,md5Checksum,modifiedTime"

// Config is the decoded adapter configuration.
type Config struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`

	// TokenExpiry is RFC 3339; empty means unknown.
	TokenExpiry  string `mapstructure:"token_expiry"`
	RootFolderID string `mapstructure:"root_folder_id" validate:"required"`

	// Endpoint, AuthURL and TokenURL override the Google endpoints, for
	// Drive-compatible gateways and tests.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	AuthURL  string `mapstructure:"auth_url" validate:"omitempty,url"`
	TokenURL string `mapstructure:"token_url" validate:"omitempty,url"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

var schema = provider.Schema{
	Type: Type,
	Fields: []provider.Field{
		{Name: "client_id", Required: true},
		{Name: "client_secret", Required: true, Sensitive: true},
		{Name: "access_token", Sensitive: true, Credential: true},
		{Name: "refresh_token", Sensitive: true, Credential: true},
		{Name: "token_expiry", Credential: true},
		{Name: "root_folder_id", Default: "root"},
		{Name: "endpoint"},
		{Name: "auth_url"},
		{Name: "token_url"},
		{Name: "requests_per_second", Default: 10},
		{Name: "burst", Default: 20},
	},
}

// Schema returns the config schema.
func Schema() provider.Schema { return schema }

// Entry returns the registry entry for the Drive adapter.
func Entry() provider.Entry {
	return provider.Entry{
		Type:        Type,
		DisplayName: "Google Drive",
		AuthType:    provider.AuthOAuthRedirect,
		Schema:      schema,
		Factory:     func() provider.StorageProvider { return New() },
		OAuth:       oauthFlow{},
	}
}

// Provider is the Drive adapter.
type Provider struct {
	service     *drive.Service
	httpClient  *http.Client
	uploadURL   string
	rootID      string
	pending     bool
	initialized bool
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

// Initialize decodes config and builds a Drive client whose transport
// refreshes the access token from the refresh token as needed.
func (p *Provider) Initialize(ctx context.Context, config map[string]any) error {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return err
	}

	p.rootID = cfg.RootFolderID
	p.initialized = true

	if cfg.AccessToken == "" && cfg.RefreshToken == "" {
		p.pending = true
		logger.Debug("Drive provider initialized pending authorization")
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	if cfg.TokenExpiry != "" {
		expiry, err := time.Parse(time.RFC3339, cfg.TokenExpiry)
		if err != nil {
			return &provider.ConfigurationError{Type: Type, Field: "token_expiry", Message: "must be an RFC 3339 timestamp"}
		}
		token.Expiry = expiry
	}

	// The token source outlives the Initialize call, so it must not inherit
	// its cancellation. The paced client becomes the base transport of both
	// token refreshes and API calls.
	paced := &http.Client{Transport: ratelimiter.New(cfg.RequestsPerSecond, cfg.Burst).Transport(nil)}
	clientCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, paced)
	p.httpClient = oauthConfig(cfg, "").Client(clientCtx, token)

	opts := []option.ClientOption{option.WithHTTPClient(p.httpClient)}
	p.uploadURL = defaultUploadURL
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return &provider.ConfigurationError{Type: Type, Field: "endpoint", Message: err.Error()}
		}
		u.Path = "/upload/drive/v3/files"
		p.uploadURL = u.String()
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return provider.Wrap(Type, "initialize", fmt.Errorf("failed to create Drive client: %w", err))
	}
	p.service = service
	p.pending = false

	logger.Debug("Drive provider initialized: root=%s", p.rootID)
	return nil
}

func (p *Provider) ready(op string) error {
	if !p.initialized {
		return &provider.ProviderError{Type: Type, Op: op, Message: "provider not initialized"}
	}
	if p.pending {
		return &provider.NotAuthorizedError{Type: Type}
	}
	return nil
}

// folder maps a folder remote id to a Drive id.
func (p *Provider) folder(id string) string {
	if id == "" {
		return p.rootID
	}
	return id
}

// TestConnection fetches the account's user resource.
func (p *Provider) TestConnection(ctx context.Context) bool {
	if p.ready("test") != nil {
		return false
	}
	if _, err := p.service.About.Get().Context(ctx).Fields("user").Do(); err != nil {
		logger.Debug("Drive connection test failed: %v", err)
		return false
	}
	return true
}

// GetQuota reads storageQuota. A zero limit means unlimited storage.
func (p *Provider) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := p.ready("quota"); err != nil {
		return provider.Quota{}, err
	}

	about, err := p.service.About.Get().Context(ctx).Fields("storageQuota").Do()
	if err != nil {
		return provider.Quota{}, wrapErr("quota", err)
	}
	if about.StorageQuota == nil {
		return provider.NewQuota(0, nil), nil
	}

	var total *int64
	if limit := about.StorageQuota.Limit; limit > 0 {
		total = &limit
	}
	return provider.NewQuota(about.StorageQuota.Usage, total), nil
}

func (p *Provider) GetAccountInfo(ctx context.Context) (provider.AccountInfo, error) {
	if err := p.ready("account"); err != nil {
		return provider.AccountInfo{}, err
	}

	about, err := p.service.About.Get().Context(ctx).Fields("user").Do()
	if err != nil {
		return provider.AccountInfo{}, wrapErr("account", err)
	}
	if about.User == nil {
		return provider.AccountInfo{}, nil
	}
	return provider.AccountInfo{Email: about.User.EmailAddress, Name: about.User.DisplayName}, nil
}

// Cleanup releases idle connections.
func (p *Provider) Cleanup() error {
	if p.httpClient != nil {
		p.httpClient.CloseIdleConnections()
	}
	return nil
}

// wrapErr converts Drive and token errors into a *provider.ProviderError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		pe := &provider.ProviderError{
			Type:       Type,
			Op:         op,
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Cause:      err,
		}
		if len(gerr.Errors) > 0 {
			pe.Details = map[string]any{"reason": gerr.Errors[0].Reason}
		}
		return pe
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		pe := &provider.ProviderError{Type: Type, Op: op, Message: "token refresh failed", Cause: err}
		if rerr.Response != nil {
			pe.StatusCode = rerr.Response.StatusCode
		}
		if rerr.ErrorCode != "" {
			pe.Details = map[string]any{"code": rerr.ErrorCode}
		}
		return pe
	}

	return provider.Wrap(Type, op, err)
}
