package lifecycle

import (
	"context"
	"fmt"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// InitiateRequest carries the context of an authorization attempt.
type InitiateRequest struct {
	// CallbackURL overrides the manager's default redirect URL.
	CallbackURL string

	// Origin tags where the flow started, e.g. the UI page to return to.
	Origin string
	UserID string
}

// AuthorizationStart is where to send the user next.
type AuthorizationStart struct {
	AuthorizationURL string
	State            string
}

// InitiateOAuth starts authorization of a pending provider.
//
// For redirect backends the returned URL points at the backend's consent page
// and carries the signed state. For poll backends the login is started, and
// the poll coordinates are sealed into the stored config so a later PollOAuth
// call can continue without server-side session state.
func (m *Manager) InitiateOAuth(ctx context.Context, providerID string, req InitiateRequest) (*AuthorizationStart, error) {
	rec, entry, err := m.load(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !entry.AuthType.NeedsAuthorization() {
		return nil, &provider.ConflictError{
			Kind:    "provider",
			Message: fmt.Sprintf("%s providers do not use OAuth", entry.Type),
		}
	}
	if err := transition(rec.AuthState, store.AuthPending); err != nil {
		return nil, err
	}

	state, err := m.signer.Sign(StateClaims{
		ProviderID: rec.ID,
		Origin:     req.Origin,
		UserID:     req.UserID,
	})
	if err != nil {
		return nil, err
	}

	config, err := m.decrypt(entry, rec)
	if err != nil {
		return nil, err
	}

	if entry.AuthType == provider.AuthOAuthPoll {
		start, err := entry.Poll.StartLogin(ctx, config)
		if err != nil {
			return nil, provider.Wrap(rec.Type, "start_login", err)
		}
		if err := m.seal(entry, rec, start.Config); err != nil {
			return nil, err
		}
		rec.AuthState = store.AuthPending
		if err := m.store.UpdateProvider(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save provider: %w", err)
		}
		logger.Info("Started login flow for provider %s", rec.ID)
		return &AuthorizationStart{AuthorizationURL: start.LoginURL, State: state}, nil
	}

	callbackURL := m.callback(req.CallbackURL)
	authURL, err := entry.OAuth.AuthorizationURL(config, callbackURL, state)
	if err != nil {
		return nil, provider.Wrap(rec.Type, "authorize", err)
	}
	logger.Info("Started OAuth flow for provider %s", rec.ID)
	return &AuthorizationStart{AuthorizationURL: authURL, State: state}, nil
}

// ParseState verifies an OAuth state token.
func (m *Manager) ParseState(state string) (*StateClaims, error) {
	return m.signer.Parse(state)
}

// HandleOAuthCallback exchanges an authorization code and activates the
// provider named by the state. Exchange failures are returned as
// *provider.ProviderError and are not retried.
//
// Parameters:
//   - ctx: Context for the token exchange and store writes
//   - state: Signed state token echoed back by the authorization server
//   - code: Authorization code to exchange
//   - callbackURL: Redirect URL used when the flow started; empty means the
//     manager default
//
// Returns:
//   - *store.Provider: The activated record
//   - error: ErrInvalidState for a bad or expired state, or the exchange or
//     check failure
func (m *Manager) HandleOAuthCallback(ctx context.Context, state, code, callbackURL string) (*store.Provider, error) {
	claims, err := m.ParseState(state)
	if err != nil {
		return nil, err
	}

	rec, entry, err := m.load(ctx, claims.ProviderID)
	if err != nil {
		return nil, err
	}
	if entry.OAuth == nil {
		return nil, &provider.ConflictError{
			Kind:    "provider",
			Message: fmt.Sprintf("%s providers do not use redirect OAuth", entry.Type),
		}
	}
	if err := transition(rec.AuthState, store.AuthActive); err != nil {
		return nil, err
	}

	config, err := m.decrypt(entry, rec)
	if err != nil {
		return nil, err
	}

	updated, err := entry.OAuth.Exchange(ctx, config, code, m.callback(callbackURL))
	if err != nil {
		return nil, provider.Wrap(rec.Type, "exchange", err)
	}
	return m.activate(ctx, rec, entry, updated, claims.UserID)
}

// PollOAuth checks a poll-based login.
//
// Returns:
//   - *store.Provider: The activated record, or nil while the user has not
//     finished. A 404 from the poll endpoint counts as not finished
//   - error: *provider.ConflictError when the provider does not use poll
//     authorization or is not pending
func (m *Manager) PollOAuth(ctx context.Context, providerID, userID string) (*store.Provider, error) {
	rec, entry, err := m.load(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if entry.Poll == nil {
		return nil, &provider.ConflictError{
			Kind:    "provider",
			Message: fmt.Sprintf("%s providers do not use poll authorization", entry.Type),
		}
	}
	if err := transition(rec.AuthState, store.AuthActive); err != nil {
		return nil, err
	}

	config, err := m.decrypt(entry, rec)
	if err != nil {
		return nil, err
	}

	updated, err := entry.Poll.Poll(ctx, config)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, provider.Wrap(rec.Type, "poll", err)
	}
	if updated == nil {
		return nil, nil
	}
	return m.activate(ctx, rec, entry, updated, userID)
}

func (m *Manager) callback(override string) string {
	if override != "" {
		return override
	}
	return m.callbackURL
}
