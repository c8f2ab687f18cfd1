package lifecycle

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/credentials"
	"github.com/marmos91/dittovfs/pkg/jobs"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/provider/memory"
	"github.com/marmos91/dittovfs/pkg/store"
	memstore "github.com/marmos91/dittovfs/pkg/store/memory"
	"github.com/marmos91/dittovfs/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(job jobs.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "job-1", nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []syncer.SyncOptions
	ids   []string
}

func (r *fakeRunner) SyncProvider(ctx context.Context, providerID string, opts syncer.SyncOptions) (*store.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, providerID)
	r.calls = append(r.calls, opts)
	return nil, nil
}

type harness struct {
	store   store.Store
	backend *memory.Backend
	cipher  *credentials.AESCipher
	queue   *fakeQueue
	runner  *fakeRunner
	manager *Manager
}

func newHarness(t *testing.T, auth provider.AuthType, opts ...memory.Option) *harness {
	t.Helper()

	h := &harness{
		store:   memstore.NewMemoryStore(),
		backend: memory.NewBackend(opts...),
		queue:   &fakeQueue{},
		runner:  &fakeRunner{},
	}

	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(memory.Entry(h.backend, auth)))

	var err error
	h.cipher, err = credentials.NewAESCipher("test-secret", "test-salt-value")
	require.NoError(t, err)

	signer, err := NewStateSigner("state-secret", time.Minute)
	require.NoError(t, err)

	h.manager = NewManager(h.store, reg, h.cipher, signer,
		WithJobQueue(h.queue),
		WithCallbackURL("https://app.example.com/oauth/callback"),
	)
	h.manager.SetSyncRunner(h.runner)
	return h
}

func (h *harness) config(t *testing.T, rec *store.Provider) map[string]any {
	t.Helper()
	if rec.EncryptedConfig == "" {
		return map[string]any{}
	}
	cfg, err := h.cipher.Decrypt(rec.EncryptedConfig, memory.Schema().SensitiveFields())
	require.NoError(t, err)
	return cfg
}

func TestConnect_DirectAuth(t *testing.T) {
	h := newHarness(t, provider.AuthNone,
		memory.WithQuotaTotal(1000),
		memory.WithAccount("owner@example.com", "Owner"))
	h.backend.AddFile("", "a.txt", []byte("hello"))

	rec, err := h.manager.Connect(context.Background(), ConnectRequest{
		WorkspaceID: "ws",
		Type:        memory.Type,
		UserID:      "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, store.AuthActive, rec.AuthState)
	assert.True(t, rec.IsActive)
	assert.Equal(t, "In-memory", rec.Name, "display name is the default")
	assert.Equal(t, int64(5), rec.QuotaUsed)
	require.NotNil(t, rec.QuotaTotal)
	assert.Equal(t, int64(1000), *rec.QuotaTotal)
	assert.Equal(t, "owner@example.com", rec.AccountEmail)
	assert.Equal(t, "alice", rec.CreatedBy)

	stored, err := h.store.GetProvider(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AuthActive, stored.AuthState)

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, jobs.KindSyncProvider, h.queue.jobs[0].Kind)
	assert.Equal(t, rec.ID, h.queue.jobs[0].ProviderID)
	assert.Equal(t, "alice", h.queue.jobs[0].UserID)
	assert.Empty(t, h.runner.ids)

	assert.Equal(t, 1, h.backend.Cleanups(), "connect adapter released")
}

func TestConnect_QueueRefusalRunsInline(t *testing.T) {
	h := newHarness(t, provider.AuthNone)
	h.queue.err = jobs.ErrQueueFull

	rec, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type, UserID: "bob"})
	require.NoError(t, err)

	require.Equal(t, []string{rec.ID}, h.runner.ids)
	assert.True(t, h.runner.calls[0].Recursive)
	assert.Equal(t, "bob", h.runner.calls[0].UserID)
}

func TestConnect_CheckFailures(t *testing.T) {
	t.Run("ConnectionTest", func(t *testing.T) {
		h := newHarness(t, provider.AuthNone)
		h.backend.FailOn("test", errors.New("unreachable"))

		_, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		var pe *provider.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "test_connection", pe.Op)
		assertNoProviders(t, h)
	})

	t.Run("Quota", func(t *testing.T) {
		h := newHarness(t, provider.AuthNone)
		h.backend.FailOn("quota", errors.New("denied"))

		_, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		require.Error(t, err)
		assertNoProviders(t, h)
	})

	t.Run("AccountInfoIsOptional", func(t *testing.T) {
		h := newHarness(t, provider.AuthNone)
		h.backend.FailOn("account", errors.New("no profile"))

		rec, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		require.NoError(t, err)
		assert.Empty(t, rec.AccountEmail)
	})

	t.Run("UnknownType", func(t *testing.T) {
		h := newHarness(t, provider.AuthNone)
		_, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: "ftp"})
		assert.ErrorIs(t, err, provider.ErrNotFound)
	})
}

func assertNoProviders(t *testing.T, h *harness) {
	t.Helper()
	list, err := h.store.ListProviders(context.Background(), "ws")
	require.NoError(t, err)
	assert.Empty(t, list, "nothing persisted on failure")
	assert.Empty(t, h.queue.jobs)
}

func TestConnect_OAuthIsPending(t *testing.T) {
	h := newHarness(t, provider.AuthOAuthRedirect)

	rec, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type, Name: "Drive"})
	require.NoError(t, err)

	assert.Equal(t, store.AuthPending, rec.AuthState)
	assert.False(t, rec.IsActive)
	assert.Equal(t, "Drive", rec.Name)
	assert.Empty(t, h.queue.jobs, "no sync before authorization")
	assert.Zero(t, h.backend.Calls("quota"), "pending providers are not checked")
}

func TestOAuthRedirectFlow(t *testing.T) {
	h := newHarness(t, provider.AuthOAuthRedirect)
	ctx := context.Background()

	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)

	start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{Origin: "/settings", UserID: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, start.State)

	u, err := url.Parse(start.AuthorizationURL)
	require.NoError(t, err)
	assert.Equal(t, start.State, u.Query().Get("state"))
	assert.Equal(t, "https://app.example.com/oauth/callback", u.Query().Get("redirect_uri"))

	claims, err := h.manager.ParseState(start.State)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, claims.ProviderID)
	assert.Equal(t, "/settings", claims.Origin)

	activated, err := h.manager.HandleOAuthCallback(ctx, start.State, "abc", "")
	require.NoError(t, err)
	assert.Equal(t, store.AuthActive, activated.AuthState)
	assert.True(t, activated.IsActive)
	assert.Equal(t, "tok-abc", h.config(t, activated)["token"])

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, "alice", h.queue.jobs[0].UserID, "user comes from the state")

	t.Run("ReplayedStateIsRejected", func(t *testing.T) {
		_, err := h.manager.HandleOAuthCallback(ctx, start.State, "abc", "")
		assert.ErrorIs(t, err, provider.ErrConflict, "active providers cannot be re-activated")
	})
}

func TestHandleOAuthCallback_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("TamperedState", func(t *testing.T) {
		h := newHarness(t, provider.AuthOAuthRedirect)
		_, err := h.manager.HandleOAuthCallback(ctx, "not-a-token", "abc", "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("ExchangeFailureKeepsPending", func(t *testing.T) {
		h := newHarness(t, provider.AuthOAuthRedirect)
		rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		require.NoError(t, err)
		start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{})
		require.NoError(t, err)

		h.backend.FailOn("exchange", provider.StatusError(memory.Type, "exchange", 400, "invalid_grant"))
		_, err = h.manager.HandleOAuthCallback(ctx, start.State, "bad", "")

		var pe *provider.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 400, pe.StatusCode)

		stored, err := h.store.GetProvider(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, store.AuthPending, stored.AuthState)
		assert.Empty(t, h.queue.jobs)
	})

	t.Run("DeletedProvider", func(t *testing.T) {
		h := newHarness(t, provider.AuthOAuthRedirect)
		rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
		require.NoError(t, err)
		start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{})
		require.NoError(t, err)
		require.NoError(t, h.manager.Remove(ctx, rec.ID))

		_, err = h.manager.HandleOAuthCallback(ctx, start.State, "abc", "")
		assert.ErrorIs(t, err, provider.ErrNotFound)
	})
}

func TestInitiateOAuth_DirectAuthIsConflict(t *testing.T) {
	h := newHarness(t, provider.AuthNone)
	rec, err := h.manager.Connect(context.Background(), ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)

	_, err = h.manager.InitiateOAuth(context.Background(), rec.ID, InitiateRequest{})
	assert.ErrorIs(t, err, provider.ErrConflict)

	_, err = h.manager.Disconnect(context.Background(), rec.ID)
	assert.ErrorIs(t, err, provider.ErrConflict)
}

func TestOAuthPollFlow(t *testing.T) {
	h := newHarness(t, provider.AuthOAuthPoll)
	ctx := context.Background()

	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)

	start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{UserID: "carol"})
	require.NoError(t, err)
	assert.Contains(t, start.AuthorizationURL, "memory://login/")

	stored, err := h.store.GetProvider(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, h.config(t, stored)["login_id"], "poll coordinates are persisted")

	got, err := h.manager.PollOAuth(ctx, rec.ID, "carol")
	require.NoError(t, err)
	assert.Nil(t, got, "login not finished yet")

	h.backend.Authorize("xyz")
	got, err = h.manager.PollOAuth(ctx, rec.ID, "carol")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.AuthActive, got.AuthState)

	cfg := h.config(t, got)
	assert.Equal(t, "tok-xyz", cfg["token"])
	assert.NotContains(t, cfg, "login_id")

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, "carol", h.queue.jobs[0].UserID)
}

func TestPollOAuth_NotFoundMeansPending(t *testing.T) {
	h := newHarness(t, provider.AuthOAuthPoll)
	ctx := context.Background()

	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)
	_, err = h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{})
	require.NoError(t, err)

	h.backend.FailOn("poll", provider.StatusError(memory.Type, "poll", 404, ""))
	got, err := h.manager.PollOAuth(ctx, rec.ID, "")
	assert.NoError(t, err)
	assert.Nil(t, got)

	h.backend.FailOn("poll", provider.StatusError(memory.Type, "poll", 500, ""))
	_, err = h.manager.PollOAuth(ctx, rec.ID, "")
	assert.Equal(t, 500, provider.StatusCode(err))
}

func TestDisconnect_StripsCredentials(t *testing.T) {
	h := newHarness(t, provider.AuthOAuthRedirect)
	ctx := context.Background()

	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)
	start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{})
	require.NoError(t, err)
	_, err = h.manager.HandleOAuthCallback(ctx, start.State, "abc", "")
	require.NoError(t, err)

	got, err := h.manager.Disconnect(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AuthPending, got.AuthState)
	assert.False(t, got.IsActive)
	assert.NotContains(t, h.config(t, got), "token")

	adapter, done, err := h.manager.Acquire(ctx, rec.ID)
	require.NoError(t, err)
	defer done()
	_, err = adapter.GetQuota(ctx)
	assert.ErrorIs(t, err, provider.ErrNotAuthorized)

	t.Run("CanReauthorize", func(t *testing.T) {
		start, err := h.manager.InitiateOAuth(ctx, rec.ID, InitiateRequest{})
		require.NoError(t, err)
		got, err := h.manager.HandleOAuthCallback(ctx, start.State, "again", "")
		require.NoError(t, err)
		assert.Equal(t, store.AuthActive, got.AuthState)
	})
}

func TestAcquire_ReleasesOnce(t *testing.T) {
	h := newHarness(t, provider.AuthNone)
	ctx := context.Background()
	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)
	before := h.backend.Cleanups()

	adapter, done, err := h.manager.Acquire(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, adapter.TestConnection(ctx))

	done()
	done()
	assert.Equal(t, before+1, h.backend.Cleanups())

	_, _, err = h.manager.Acquire(ctx, "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestAcquire_InitializeFailureReleases(t *testing.T) {
	h := newHarness(t, provider.AuthNone)
	ctx := context.Background()
	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)
	before := h.backend.Cleanups()

	h.backend.FailOn("initialize", errors.New("bad config"))
	_, _, err = h.manager.Acquire(ctx, rec.ID)
	require.Error(t, err)
	assert.Equal(t, before+1, h.backend.Cleanups())
}

func TestRefreshQuota(t *testing.T) {
	h := newHarness(t, provider.AuthNone)
	ctx := context.Background()
	rec, err := h.manager.Connect(ctx, ConnectRequest{WorkspaceID: "ws", Type: memory.Type})
	require.NoError(t, err)
	assert.Zero(t, rec.QuotaUsed)

	h.backend.AddFile("", "big.bin", make([]byte, 64))
	got, err := h.manager.RefreshQuota(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(64), got.QuotaUsed)

	stored, err := h.store.GetProvider(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(64), stored.QuotaUsed)
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to store.AuthState
		ok       bool
	}{
		{"", store.AuthPending, true},
		{store.AuthDisconnected, store.AuthActive, true},
		{store.AuthPending, store.AuthPending, true},
		{store.AuthPending, store.AuthActive, true},
		{store.AuthActive, store.AuthPending, true},
		{store.AuthActive, store.AuthActive, false},
		{store.AuthPending, store.AuthDisconnected, false},
		{store.AuthActive, store.AuthDisconnected, false},
	}
	for _, tt := range tests {
		err := transition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, provider.ErrConflict, "%s -> %s", tt.from, tt.to)
		}
	}
}
