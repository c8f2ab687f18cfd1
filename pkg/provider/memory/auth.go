package memory

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/pkg/provider"
)

type oauthFlow struct {
	backend *Backend
}

func (f *oauthFlow) AuthorizationURL(config map[string]any, callbackURL, state string) (string, error) {
	q := url.Values{}
	q.Set("redirect_uri", callbackURL)
	q.Set("state", state)
	return "memory://authorize?" + q.Encode(), nil
}

func (f *oauthFlow) Exchange(ctx context.Context, config map[string]any, code, callbackURL string) (map[string]any, error) {
	if err := f.backend.record("exchange", code); err != nil {
		return nil, provider.Wrap(Type, "exchange", err)
	}
	if code == "" {
		return nil, provider.StatusError(Type, "exchange", 400, "missing authorization code")
	}
	return provider.Merge(config, map[string]any{"token": "tok-" + code}), nil
}

type pollFlow struct {
	backend *Backend
}

func (f *pollFlow) StartLogin(ctx context.Context, config map[string]any) (provider.LoginStart, error) {
	if err := f.backend.record("start_login", ""); err != nil {
		return provider.LoginStart{}, provider.Wrap(Type, "start_login", err)
	}
	f.backend.mu.Lock()
	f.backend.loginDone = false
	f.backend.mu.Unlock()

	loginID := uuid.NewString()
	return provider.LoginStart{
		LoginURL: "memory://login/" + loginID,
		Config:   provider.Merge(config, map[string]any{"login_id": loginID}),
	}, nil
}

func (f *pollFlow) Poll(ctx context.Context, config map[string]any) (map[string]any, error) {
	if err := f.backend.record("poll", ""); err != nil {
		return nil, provider.Wrap(Type, "poll", err)
	}
	if provider.String(config, "login_id") == "" {
		return nil, provider.StatusError(Type, "poll", 400, "no login in progress")
	}

	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if !f.backend.loginDone {
		return nil, nil
	}
	f.backend.loginDone = false
	return provider.Merge(config, map[string]any{
		"token":    "tok-" + f.backend.loginCode,
		"login_id": nil,
	}), nil
}
