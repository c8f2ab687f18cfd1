package lifecycle

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/transfer"
)

// CallbackResponse is the body returned once a redirect authorization has
// been completed.
type CallbackResponse struct {
	ProviderID string `json:"provider_id"`
	AuthState  string `json:"auth_state"`
	Origin     string `json:"origin,omitempty"`
}

// CallbackHandler serves the OAuth redirect target. It expects the state and
// code query parameters set by the authorization server; an error parameter
// means the user declined.
func CallbackHandler(m *Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if denied := q.Get("error"); denied != "" {
			transfer.SendError(w, http.StatusBadRequest, "authorization denied: "+denied)
			return
		}

		state, code := q.Get("state"), q.Get("code")
		if state == "" || code == "" {
			transfer.SendError(w, http.StatusBadRequest, "state and code are required")
			return
		}

		claims, err := m.ParseState(state)
		if err != nil {
			transfer.SendError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := m.HandleOAuthCallback(r.Context(), state, code, "")
		if err != nil {
			status := transfer.StatusFor(err)
			if errors.Is(err, ErrInvalidState) {
				status = http.StatusBadRequest
			}
			logger.Warn("OAuth callback for provider %s failed: %v", claims.ProviderID, err)
			transfer.SendError(w, status, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(CallbackResponse{
			ProviderID: rec.ID,
			AuthState:  string(rec.AuthState),
			Origin:     claims.Origin,
		}); err != nil {
			logger.Debug("Failed to write callback response: %v", err)
		}
	})
}
