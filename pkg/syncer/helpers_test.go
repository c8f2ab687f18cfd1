package syncer

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/provider/memory"
	"github.com/marmos91/dittovfs/pkg/store"
	memstore "github.com/marmos91/dittovfs/pkg/store/memory"
	"github.com/stretchr/testify/require"
)

// memAcquirer opens in-memory adapters, one backend per provider id.
type memAcquirer struct {
	mu       sync.Mutex
	backends map[string]*memory.Backend
	opened   int
}

func newMemAcquirer() *memAcquirer {
	return &memAcquirer{backends: make(map[string]*memory.Backend)}
}

func (a *memAcquirer) add(providerID string, b *memory.Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backends[providerID] = b
}

func (a *memAcquirer) AcquireRecord(ctx context.Context, rec *store.Provider) (provider.StorageProvider, func(), error) {
	a.mu.Lock()
	b, ok := a.backends[rec.ID]
	a.opened++
	a.mu.Unlock()
	if !ok {
		return nil, nil, &provider.NotFoundError{Kind: "backend", ID: rec.ID}
	}

	p := memory.New(b, provider.AuthNone)
	if err := p.Initialize(ctx, nil); err != nil {
		return nil, nil, err
	}
	return p, sync.OnceFunc(func() { _ = p.Cleanup() }), nil
}

type recordingActivity struct {
	mu        sync.Mutex
	created   []Activity
	progress  []float64
	completed []Summary
	failed    []error
}

func (r *recordingActivity) Create(ctx context.Context, a Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a)
	return nil
}

func (r *recordingActivity) Update(ctx context.Context, jobID string, progress float64, processed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress)
	return nil
}

func (r *recordingActivity) Complete(ctx context.Context, jobID string, s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, s)
	return nil
}

func (r *recordingActivity) Fail(ctx context.Context, jobID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, cause)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(ctx context.Context, e AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type fixture struct {
	store    store.Store
	acquirer *memAcquirer
	activity *recordingActivity
	audit    *recordingAudit
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.NewMemoryStore(),
		acquirer: newMemAcquirer(),
		activity: &recordingActivity{},
		audit:    &recordingAudit{},
	}
	opts = append([]Option{WithActivitySink(f.activity), WithAuditSink(f.audit)}, opts...)
	f.engine = NewEngine(f.store, f.acquirer, opts...)
	return f
}

// addProvider registers an active provider backed by b.
func (f *fixture) addProvider(t *testing.T, name string, b *memory.Backend) *store.Provider {
	t.Helper()
	rec := &store.Provider{
		WorkspaceID: "ws",
		Type:        memory.Type,
		Name:        name,
		IsActive:    true,
		AuthState:   store.AuthActive,
	}
	require.NoError(t, f.store.CreateProvider(context.Background(), rec))
	f.acquirer.add(rec.ID, b)
	return rec
}

// snapshot maps every live row of a provider to "kind:remoteID" -> path@rowID.
func (f *fixture) snapshot(t *testing.T, providerID string) map[string]string {
	t.Helper()
	ctx := context.Background()
	out := make(map[string]string)

	stack := []string{""}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		folders, err := f.store.ListFolders(ctx, providerID, parent, false)
		require.NoError(t, err)
		for _, fo := range folders {
			out["folder:"+fo.RemoteID] = fo.VirtualPath + "@" + fo.ID
			stack = append(stack, fo.ID)
		}

		files, err := f.store.ListFiles(ctx, providerID, parent, false)
		require.NoError(t, err)
		for _, fi := range files {
			out["file:"+fi.RemoteID] = fi.VirtualPath + "@" + fi.ID
		}
	}
	return out
}

func (f *fixture) allFiles(t *testing.T, providerID string) []*store.File {
	t.Helper()
	files, err := f.store.ListProviderFiles(context.Background(), providerID)
	require.NoError(t, err)
	sort.SliceStable(files, func(i, j int) bool { return files[i].VirtualPath < files[j].VirtualPath })
	return files
}

func folderNames(folders []*store.Folder) []string {
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.Name)
	}
	return names
}

func fileNames(files []*store.File) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}
