package webdav

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// loginFlow implements provider.PollFlow with the Nextcloud login flow v2.
type loginFlow struct {
	client *http.Client
}

type loginStartResponse struct {
	Poll struct {
		Token    string `json:"token"`
		Endpoint string `json:"endpoint"`
	} `json:"poll"`
	Login string `json:"login"`
}

type loginPollResponse struct {
	Server      string `json:"server"`
	LoginName   string `json:"loginName"`
	AppPassword string `json:"appPassword"`
}

// loginClient is shared by every login flow, so polls from many pending
// providers are paced together.
var loginClient = newHTTPClient(defaultRequestsPerSecond, defaultBurst, defaultTimeout)

func (f *loginFlow) httpClient() *http.Client {
	if f.client != nil {
		return f.client
	}
	return loginClient
}

// StartLogin opens a login flow and returns the browser URL along with the
// config extended with the poll coordinates.
func (f *loginFlow) StartLogin(ctx context.Context, config map[string]any) (provider.LoginStart, error) {
	server := strings.TrimSuffix(provider.String(config, "server_url"), "/")
	if server == "" {
		return provider.LoginStart{}, &provider.ConfigurationError{Type: Type, Field: "server_url", Message: "field is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/index.php/login/v2", nil)
	if err != nil {
		return provider.LoginStart{}, provider.Wrap(Type, "start_login", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return provider.LoginStart{}, provider.Wrap(Type, "start_login", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.LoginStart{}, statusErr("start_login", resp)
	}

	var body loginStartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.LoginStart{}, provider.Wrap(Type, "start_login", fmt.Errorf("failed to decode login response: %w", err))
	}
	if body.Poll.Token == "" || body.Poll.Endpoint == "" || body.Login == "" {
		return provider.LoginStart{}, &provider.ProviderError{Type: Type, Op: "start_login", Message: "incomplete login response"}
	}

	logger.Debug("WebDAV login flow started for %s", server)
	return provider.LoginStart{
		LoginURL: body.Login,
		Config: provider.Merge(config, map[string]any{
			"poll_token":    body.Poll.Token,
			"poll_endpoint": body.Poll.Endpoint,
			"login_url":     body.Login,
		}),
	}, nil
}

// Poll checks the login. The endpoint answers 404 until the user approves;
// that is reported as (nil, nil).
func (f *loginFlow) Poll(ctx context.Context, config map[string]any) (map[string]any, error) {
	token := provider.String(config, "poll_token")
	endpoint := provider.String(config, "poll_endpoint")
	if token == "" || endpoint == "" {
		return nil, &provider.ConfigurationError{Type: Type, Field: "poll_token", Message: "no login flow in progress"}
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, provider.Wrap(Type, "poll", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, provider.Wrap(Type, "poll", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, statusErr("poll", resp)
	}

	var body loginPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, provider.Wrap(Type, "poll", fmt.Errorf("failed to decode poll response: %w", err))
	}
	if body.LoginName == "" || body.AppPassword == "" {
		return nil, &provider.ProviderError{Type: Type, Op: "poll", Message: "incomplete credentials in poll response"}
	}

	server := body.Server
	if server == "" {
		server = provider.String(config, "server_url")
	}

	logger.Debug("WebDAV login flow completed for user %s", body.LoginName)
	return provider.Merge(config, map[string]any{
		"server_url":    server,
		"username":      body.LoginName,
		"app_password":  body.AppPassword,
		"poll_token":    nil,
		"poll_endpoint": nil,
		"login_url":     nil,
	}), nil
}
