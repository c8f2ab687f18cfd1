// Package lifecycle connects providers and drives their auth state machine.
//
// States move disconnected -> pending_auth -> active for redirect and poll
// backends, and disconnected -> active directly for api_key and none
// backends. An active provider goes back to pending_auth only through an
// explicit Disconnect.
//
// The manager is also the only place adapters are built: every logical
// operation opens a fresh adapter from a fresh decrypt of the stored config
// and releases it with Cleanup exactly once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/credentials"
	"github.com/marmos91/dittovfs/pkg/jobs"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
	"github.com/marmos91/dittovfs/pkg/syncer"
)

// JobQueue dispatches background jobs.
type JobQueue interface {
	Enqueue(job jobs.Job) (string, error)
}

// SyncRunner runs a full provider sync in the calling goroutine.
type SyncRunner interface {
	SyncProvider(ctx context.Context, providerID string, opts syncer.SyncOptions) (*store.Provider, error)
}

// Manager owns provider connection state.
//
// Thread safety:
// Safe for concurrent use. The manager keeps no per-provider state in memory;
// every call reloads the record from the store, so two callers racing on the
// same provider are ordered by the store's writes.
type Manager struct {
	store    store.Store
	registry *provider.Registry
	cipher   credentials.Cipher
	signer   *StateSigner

	queue  JobQueue
	runner SyncRunner

	callbackURL string
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithJobQueue sets the transport used to schedule initial syncs.
func WithJobQueue(q JobQueue) Option {
	return func(m *Manager) { m.queue = q }
}

// WithCallbackURL sets the default redirect URL for OAuth flows.
func WithCallbackURL(u string) Option {
	return func(m *Manager) { m.callbackURL = u }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lifecycle manager.
//
// Parameters:
//   - s: Catalog store holding provider records
//   - reg: Registry resolving provider types to adapters
//   - cipher: Seals and opens the stored config blobs
//   - signer: Issues and verifies OAuth state tokens
//   - opts: Optional job queue, callback URL and clock
func NewManager(s store.Store, reg *provider.Registry, cipher credentials.Cipher, signer *StateSigner, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		registry: reg,
		cipher:   cipher,
		signer:   signer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSyncRunner sets the in-process fallback for initial syncs. The sync
// engine itself depends on the manager, hence a setter.
func (m *Manager) SetSyncRunner(r SyncRunner) {
	m.runner = r
}

// ConnectRequest describes a new provider.
type ConnectRequest struct {
	WorkspaceID string
	Type        string
	Name        string
	Config      map[string]any
	UserID      string
}

// Connect validates and persists a new provider.
//
// api_key and none backends are checked (connection, quota, account) and
// stored active, then their initial sync is scheduled. Redirect and poll
// backends are only validated and stored pending_auth.
//
// Parameters:
//   - ctx: Context for the adapter calls and store writes
//   - req: Workspace, owner, type, display name and raw config
//
// Returns:
//   - *store.Provider: The persisted record, active or pending_auth
//   - error: *provider.ConfigurationError for a bad config, the adapter's
//     error when a check fails, or a store error
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*store.Provider, error) {
	entry, err := m.registry.Lookup(req.Type)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = entry.DisplayName
	}
	config := entry.Schema.Normalize(req.Config)

	rec := &store.Provider{
		WorkspaceID: req.WorkspaceID,
		Type:        entry.Type,
		Name:        name,
		CreatedBy:   req.UserID,
		AuthState:   store.AuthDisconnected,
	}

	if entry.AuthType.NeedsAuthorization() {
		if err := m.validate(ctx, entry, config); err != nil {
			return nil, err
		}
		if err := transition(rec.AuthState, store.AuthPending); err != nil {
			return nil, err
		}
		if err := m.seal(entry, rec, config); err != nil {
			return nil, err
		}
		rec.AuthState = store.AuthPending
		if err := m.store.CreateProvider(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save provider: %w", err)
		}
		logger.Info("Provider %s (%s) created, pending authorization", rec.ID, rec.Type)
		return rec, nil
	}

	adapter := entry.Factory()
	defer release(adapter)

	if err := adapter.Initialize(ctx, config); err != nil {
		return nil, err
	}
	if !adapter.TestConnection(ctx) {
		return nil, &provider.ProviderError{Type: entry.Type, Op: "test_connection", Message: "connection test failed"}
	}
	if err := m.inspect(ctx, adapter, rec); err != nil {
		return nil, err
	}
	if err := transition(rec.AuthState, store.AuthActive); err != nil {
		return nil, err
	}
	if err := m.seal(entry, rec, config); err != nil {
		return nil, err
	}

	rec.AuthState = store.AuthActive
	rec.IsActive = true
	if err := m.store.CreateProvider(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	logger.Info("Provider %s (%s) connected", rec.ID, rec.Type)

	m.scheduleInitialSync(ctx, rec.ID, req.UserID)
	return rec, nil
}

// Remove deletes a provider together with its cached rows.
func (m *Manager) Remove(ctx context.Context, providerID string) error {
	if err := m.store.DeleteProvider(ctx, providerID); err != nil {
		return err
	}
	logger.Info("Provider %s removed", providerID)
	return nil
}

// Open builds and initializes a fresh adapter from rec. The caller must call
// Cleanup on it exactly once; prefer AcquireRecord.
func (m *Manager) Open(ctx context.Context, rec *store.Provider) (provider.StorageProvider, error) {
	entry, err := m.registry.Lookup(rec.Type)
	if err != nil {
		return nil, err
	}
	config, err := m.decrypt(entry, rec)
	if err != nil {
		return nil, err
	}

	adapter := entry.Factory()
	if err := adapter.Initialize(ctx, config); err != nil {
		release(adapter)
		return nil, err
	}
	return adapter, nil
}

// AcquireRecord opens an adapter for rec and returns it with a release func
// that runs Cleanup exactly once, however many times it is called.
//
// Returns:
//   - provider.StorageProvider: Initialized adapter
//   - func(): Release func, safe to call more than once
//   - error: Decrypt or Initialize failure; nothing needs releasing then
func (m *Manager) AcquireRecord(ctx context.Context, rec *store.Provider) (provider.StorageProvider, func(), error) {
	adapter, err := m.Open(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return adapter, sync.OnceFunc(func() { release(adapter) }), nil
}

// Acquire loads the provider record and opens an adapter for it.
func (m *Manager) Acquire(ctx context.Context, providerID string) (provider.StorageProvider, func(), error) {
	rec, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}
	return m.AcquireRecord(ctx, rec)
}

// Disconnect moves an active provider back to pending_auth and strips the
// credentials its auth flow produced. The provider must be re-authorized
// before it is usable again.
//
// Returns:
//   - *store.Provider: The updated record in pending_auth
//   - error: *provider.ConflictError for backends without an auth flow or
//     providers that are not active
func (m *Manager) Disconnect(ctx context.Context, providerID string) (*store.Provider, error) {
	rec, entry, err := m.load(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !entry.AuthType.NeedsAuthorization() {
		return nil, &provider.ConflictError{
			Kind:    "provider",
			Message: fmt.Sprintf("%s providers have no authorization to revoke", entry.Type),
		}
	}
	if err := transition(rec.AuthState, store.AuthPending); err != nil {
		return nil, err
	}

	config, err := m.decrypt(entry, rec)
	if err != nil {
		return nil, err
	}
	for _, field := range entry.Schema.CredentialFields() {
		delete(config, field)
	}
	if err := m.seal(entry, rec, config); err != nil {
		return nil, err
	}

	rec.AuthState = store.AuthPending
	rec.IsActive = false
	if err := m.store.UpdateProvider(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	logger.Info("Provider %s disconnected", rec.ID)
	return rec, nil
}

// RefreshQuota re-reads quota and account info of an active provider.
func (m *Manager) RefreshQuota(ctx context.Context, providerID string) (*store.Provider, error) {
	rec, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	adapter, done, err := m.AcquireRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := m.inspect(ctx, adapter, rec); err != nil {
		return nil, err
	}
	if err := m.store.UpdateProvider(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	return rec, nil
}

// activate finishes an authorization: it checks the backend with the new
// config, persists it sealed, flips the record to active and schedules the
// initial sync.
func (m *Manager) activate(ctx context.Context, rec *store.Provider, entry provider.Entry, config map[string]any, userID string) (*store.Provider, error) {
	if err := transition(rec.AuthState, store.AuthActive); err != nil {
		return nil, err
	}

	adapter := entry.Factory()
	defer release(adapter)

	if err := adapter.Initialize(ctx, config); err != nil {
		return nil, err
	}
	if err := m.inspect(ctx, adapter, rec); err != nil {
		return nil, err
	}
	if err := m.seal(entry, rec, config); err != nil {
		return nil, err
	}

	rec.AuthState = store.AuthActive
	rec.IsActive = true
	if err := m.store.UpdateProvider(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save provider: %w", err)
	}
	logger.Info("Provider %s (%s) authorized", rec.ID, rec.Type)

	m.scheduleInitialSync(ctx, rec.ID, userID)
	return rec, nil
}

// inspect copies quota and, when available, account info into rec. Quota
// failures are fatal; account info is display-only.
func (m *Manager) inspect(ctx context.Context, adapter provider.StorageProvider, rec *store.Provider) error {
	quota, err := adapter.GetQuota(ctx)
	if err != nil {
		return provider.Wrap(rec.Type, "quota", err)
	}
	rec.QuotaUsed = quota.Used
	rec.QuotaTotal = quota.Total

	if info := provider.Capabilities(adapter).AccountInfo; info != nil {
		account, err := info.GetAccountInfo(ctx)
		if err != nil {
			logger.Warn("Failed to read account info of provider %s: %v", rec.ID, err)
			return nil
		}
		rec.AccountEmail = account.Email
		rec.AccountName = account.Name
	}
	return nil
}

// scheduleInitialSync dispatches the first full sync, running it inline when
// the queue refuses it.
func (m *Manager) scheduleInitialSync(ctx context.Context, providerID, userID string) {
	if m.queue != nil {
		jobID, err := m.queue.Enqueue(jobs.Job{
			Kind:       jobs.KindSyncProvider,
			ProviderID: providerID,
			UserID:     userID,
		})
		if err == nil {
			logger.Debug("Scheduled initial sync %s for provider %s", jobID, providerID)
			return
		}
		logger.Warn("Failed to schedule initial sync for provider %s, running in-process: %v", providerID, err)
	}

	if m.runner == nil {
		logger.Warn("No sync runner configured, initial sync of provider %s skipped", providerID)
		return
	}

	opts := syncer.DefaultSyncOptions()
	opts.UserID = userID
	if _, err := m.runner.SyncProvider(ctx, providerID, opts); err != nil {
		logger.Error("Initial sync of provider %s failed: %v", providerID, err)
	}
}

// validate runs the adapter's Initialize against config without keeping the
// adapter, surfacing schema errors early for pending providers.
func (m *Manager) validate(ctx context.Context, entry provider.Entry, config map[string]any) error {
	adapter := entry.Factory()
	defer release(adapter)
	return adapter.Initialize(ctx, config)
}

func (m *Manager) load(ctx context.Context, providerID string) (*store.Provider, provider.Entry, error) {
	rec, err := m.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, provider.Entry{}, err
	}
	entry, err := m.registry.Lookup(rec.Type)
	if err != nil {
		return nil, provider.Entry{}, err
	}
	return rec, entry, nil
}

func (m *Manager) seal(entry provider.Entry, rec *store.Provider, config map[string]any) error {
	ciphertext, err := m.cipher.Encrypt(config, entry.Schema.SensitiveFields())
	if err != nil {
		return fmt.Errorf("failed to encrypt %s config: %w", entry.Type, err)
	}
	rec.EncryptedConfig = ciphertext
	return nil
}

func (m *Manager) decrypt(entry provider.Entry, rec *store.Provider) (map[string]any, error) {
	if rec.EncryptedConfig == "" {
		return map[string]any{}, nil
	}
	config, err := m.cipher.Decrypt(rec.EncryptedConfig, entry.Schema.SensitiveFields())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config of provider %s: %w", rec.ID, err)
	}
	return config, nil
}

func release(adapter provider.StorageProvider) {
	if err := adapter.Cleanup(); err != nil {
		logger.Warn("Adapter cleanup failed for %s: %v", adapter.Type(), err)
	}
}

// isNotFound reports whether err is a 404-class response.
func isNotFound(err error) bool {
	return errors.Is(err, provider.ErrNotFound)
}
