package multipart

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// DefaultSessionTTL is how long an idle session survives before Sweep aborts
// it.
const DefaultSessionTTL = 24 * time.Hour

// Acquirer opens a fresh adapter for a provider. The release func runs
// Cleanup exactly once.
type Acquirer interface {
	Acquire(ctx context.Context, providerID string) (provider.StorageProvider, func(), error)
}

// Request describes the file being uploaded.
type Request struct {
	Name     string
	MimeType string
	Size     int64
	ParentID string
}

// Orchestrator runs the initiate / upload part / complete / abort protocol
// for adapters that support chunked uploads.
type Orchestrator struct {
	acquirer Acquirer
	sessions SessionStore
	ttl      time.Duration
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(s SessionStore) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithSessionTTL sets the idle timeout used by Sweep.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(acquirer Acquirer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		acquirer: acquirer,
		sessions: NewMemorySessionStore(),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initiate starts a chunked upload on providerID.
//
// Returns an error wrapping provider.ErrNotSupported when the adapter has no
// chunked upload capability.
func (o *Orchestrator) Initiate(ctx context.Context, providerID string, req Request) (*Session, error) {
	adapter, done, err := o.acquirer.Acquire(ctx, providerID)
	if err != nil {
		return nil, err
	}
	defer done()

	chunked := provider.Capabilities(adapter).Chunked
	if chunked == nil {
		return nil, fmt.Errorf("%s: chunked upload: %w", adapter.Type(), provider.ErrNotSupported)
	}

	upload, err := chunked.InitiateMultipart(ctx, provider.UploadRequest{
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		ParentID: req.ParentID,
	})
	if err != nil {
		return nil, provider.Wrap(adapter.Type(), "initiate_multipart", err)
	}

	now := o.now()
	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = now
	}
	s := &Session{
		ProviderID:   providerID,
		Upload:       upload,
		parts:        make(map[int]provider.Part),
		CreatedAt:    now,
		LastActivity: now,
	}
	o.sessions.Put(s)

	logger.Debug("Multipart upload %s started on provider %s for %q", upload.UploadID, providerID, req.Name)
	return s, nil
}

// UploadPart forwards one chunk. Re-uploading a part number replaces the
// previously recorded part.
//
// Parameters:
//   - uploadID: id returned by Initiate
//   - partNumber: 1-based part index
//   - r, size: the chunk bytes
//
// Thread safety: parts of one upload are forwarded one at a time; parts of
// different uploads run concurrently.
func (o *Orchestrator) UploadPart(ctx context.Context, uploadID string, partNumber int, r io.Reader, size int64) (provider.Part, error) {
	if partNumber < 1 {
		return provider.Part{}, &provider.ConfigurationError{
			Type:    "multipart",
			Field:   "part_number",
			Message: fmt.Sprintf("part number must be >= 1, got %d", partNumber),
		}
	}
	s, err := o.session(uploadID)
	if err != nil {
		return provider.Part{}, err
	}

	chunked, done, err := o.open(ctx, s)
	if err != nil {
		return provider.Part{}, err
	}
	defer done()

	s.upload.Lock()
	part, err := chunked.UploadPart(ctx, s.Upload, partNumber, r, size)
	s.upload.Unlock()
	if err != nil {
		return provider.Part{}, err
	}
	if part.PartNumber == 0 {
		part.PartNumber = partNumber
	}
	s.record(part, o.now())
	return part, nil
}

// Complete finalizes the upload and returns the remote id of the new file.
// parts may arrive in any order; when empty, the parts recorded by
// UploadPart are used. The session is removed whether or not the adapter
// call succeeds; on failure the remote upload is aborted first.
func (o *Orchestrator) Complete(ctx context.Context, uploadID string, parts []provider.Part) (string, error) {
	s, err := o.session(uploadID)
	if err != nil {
		return "", err
	}
	defer o.sessions.Delete(uploadID)

	chunked, done, err := o.open(ctx, s)
	if err != nil {
		return "", err
	}
	defer done()

	if len(parts) == 0 {
		parts = s.Parts()
	} else {
		byNumber := make(map[int]provider.Part, len(parts))
		for _, p := range parts {
			byNumber[p.PartNumber] = p
		}
		parts = sortedParts(byNumber)
	}
	if len(parts) == 0 {
		o.abortWith(ctx, chunked, s)
		return "", &provider.ConfigurationError{Type: "multipart", Field: "parts", Message: "no parts uploaded"}
	}

	s.upload.Lock()
	remoteID, err := chunked.CompleteMultipart(ctx, s.Upload, parts)
	s.upload.Unlock()
	if err != nil {
		o.abortWith(ctx, chunked, s)
		return "", err
	}
	logger.Debug("Multipart upload %s completed as %s (%d parts)", uploadID, remoteID, len(parts))
	return remoteID, nil
}

// Abort cancels an upload. It is best effort: adapter errors are logged and
// the session is always removed.
func (o *Orchestrator) Abort(ctx context.Context, uploadID string) {
	s, ok := o.sessions.Get(uploadID)
	if !ok {
		return
	}
	defer o.sessions.Delete(uploadID)
	o.abort(ctx, s)
}

// Sweep aborts every session idle for longer than the TTL and returns how
// many were evicted.
func (o *Orchestrator) Sweep(ctx context.Context, now time.Time) int {
	stale := o.sessions.IdleSince(now.Add(-o.ttl))
	for _, s := range stale {
		o.abort(ctx, s)
		o.sessions.Delete(s.ID())
	}
	if len(stale) > 0 {
		logger.Info("Swept %d stale multipart uploads", len(stale))
	}
	return len(stale)
}

// Len returns the number of in-flight sessions.
func (o *Orchestrator) Len() int {
	return o.sessions.Len()
}

func (o *Orchestrator) abort(ctx context.Context, s *Session) {
	chunked, done, err := o.open(ctx, s)
	if err != nil {
		logger.Warn("Failed to open provider %s to abort upload %s: %v", s.ProviderID, s.ID(), err)
		return
	}
	defer done()
	o.abortWith(ctx, chunked, s)
}

func (o *Orchestrator) abortWith(ctx context.Context, chunked provider.ChunkedUploader, s *Session) {
	s.upload.Lock()
	defer s.upload.Unlock()

	if err := chunked.AbortMultipart(ctx, s.Upload); err != nil {
		logger.Warn("Failed to abort upload %s on provider %s: %v", s.ID(), s.ProviderID, err)
	}
}

func (o *Orchestrator) session(uploadID string) (*Session, error) {
	s, ok := o.sessions.Get(uploadID)
	if !ok {
		return nil, &provider.NotFoundError{Kind: "upload", ID: uploadID}
	}
	return s, nil
}

// open acquires an adapter for the session's provider and resolves its
// chunked capability.
func (o *Orchestrator) open(ctx context.Context, s *Session) (provider.ChunkedUploader, func(), error) {
	adapter, done, err := o.acquirer.Acquire(ctx, s.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	chunked := provider.Capabilities(adapter).Chunked
	if chunked == nil {
		done()
		return nil, nil, fmt.Errorf("%s: chunked upload: %w", adapter.Type(), provider.ErrNotSupported)
	}
	return chunked, done, nil
}
