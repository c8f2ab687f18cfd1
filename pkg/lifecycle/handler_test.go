package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/provider/memory"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callback(h http.Handler, query url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallbackHandler(t *testing.T) {
	ctx := context.Background()

	pending := func(t *testing.T) (*harness, string, string) {
		h := newHarness(t, provider.AuthOAuthRedirect)
		rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		require.NoError(t, err)
		start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{Origin: "/settings"})
		require.NoError(t, err)
		return h, rec.ID, start.State
	}

	t.Run("Activates", func(t *testing.T) {
		h, id, state := pending(t)

		resp := callback(CallbackHandler(h.manager), url.Values{"state": {state}, "code": {"abc"}})
		require.Equal(t, http.StatusOK, resp.Code)

		var body CallbackResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, id, body.ProviderID)
		assert.Equal(t, string(store.AuthActive), body.AuthState)
		assert.Equal(t, "/settings", body.Origin)
	})

	t.Run("MissingParameters", func(t *testing.T) {
		h, _, state := pending(t)
		resp := callback(CallbackHandler(h.manager), url.Values{"state": {state}})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("UserDenied", func(t *testing.T) {
		h, id, state := pending(t)
		resp := callback(CallbackHandler(h.manager), url.Values{"state": {state}, "error": {"access_denied"}})
		assert.Equal(t, http.StatusBadRequest, resp.Code)

		stored, err := h.store.GetProvider(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.AuthPending, stored.AuthState)
	})

	t.Run("TamperedState", func(t *testing.T) {
		h, _, _ := pending(t)
		resp := callback(CallbackHandler(h.manager), url.Values{"state": {"forged"}, "code": {"abc"}})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("ExchangeFailureCarriesStatus", func(t *testing.T) {
		h, _, state := pending(t)
		h.backend.FailOn("exchange", provider.StatusError(memory.Type, "exchange", 401, "invalid_grant"))

		resp := callback(CallbackHandler(h.manager), url.Values{"state": {state}, "code": {"bad"}})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("ReplayIsConflict", func(t *testing.T) {
		h, _, state := pending(t)
		handler := CallbackHandler(h.manager)
		query := url.Values{"state": {state}, "code": {"abc"}}

		require.Equal(t, http.StatusOK, callback(handler, query).Code)
		assert.Equal(t, http.StatusConflict, callback(handler, query).Code)
	})
}
