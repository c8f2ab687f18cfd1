package gdrive

import (
	"context"
	"time"

	"github.com/marmos91/dittovfs/pkg/provider"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// oauthConfig builds the OAuth client for cfg. callbackURL is only needed
// for the authorization and exchange steps.
func oauthConfig(cfg Config, callbackURL string) *oauth2.Config {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  callbackURL,
		Scopes:       []string{drive.DriveScope},
	}
}

// oauthFlow implements provider.OAuthFlow for Drive.
type oauthFlow struct{}

// AuthorizationURL requests offline access and forces the consent screen so
// that Google issues a refresh token on every authorization.
func (oauthFlow) AuthorizationURL(config map[string]any, callbackURL, state string) (string, error) {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return "", err
	}
	return oauthConfig(cfg, callbackURL).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades the authorization code for tokens. A response without a
// refresh token keeps the one already in config.
func (oauthFlow) Exchange(ctx context.Context, config map[string]any, code, callbackURL string) (map[string]any, error) {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return nil, err
	}

	token, err := oauthConfig(cfg, callbackURL).Exchange(ctx, code)
	if err != nil {
		return nil, wrapErr("exchange", err)
	}

	updates := map[string]any{"access_token": token.AccessToken}
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		updates["token_expiry"] = token.Expiry.UTC().Format(time.RFC3339)
	}
	return provider.Merge(config, updates), nil
}
