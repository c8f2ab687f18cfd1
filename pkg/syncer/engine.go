// Package syncer materializes remote provider trees into catalog rows.
//
// One traversal primitive, RefreshFolder, serves two entry points. Lazy warm
// (GetContents) refreshes a single empty scope right before answering a read.
// Full sync (SyncProvider) walks a whole provider depth-first, reporting
// progress to an activity sink and recording an audit entry at the end.
//
// Sync is idempotent and convergent rather than transactional: concurrent
// writes to the same provider are reconciled on the next pass by the upsert
// identity rules.
package syncer

import (
	"context"
	"time"

	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

const (
	// DefaultPageSize is the List page size requested from adapters.
	DefaultPageSize = 100

	// DefaultProgressInterval is how many processed files separate two
	// progress reports.
	DefaultProgressInterval = 10
)

// Acquirer opens adapters for provider records. The release func must run
// Cleanup exactly once.
type Acquirer interface {
	AcquireRecord(ctx context.Context, rec *store.Provider) (provider.StorageProvider, func(), error)
}

// Engine runs refreshes against the catalog store.
type Engine struct {
	store    store.Store
	acquirer Acquirer
	activity ActivitySink
	audit    AuditSink
	metrics  Metrics

	pageSize      int
	progressEvery int
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithActivitySink sets where job progress is reported.
func WithActivitySink(a ActivitySink) Option {
	return func(e *Engine) {
		if a != nil {
			e.activity = a
		}
	}
}

// WithAuditSink sets where completed and failed syncs are recorded.
func WithAuditSink(a AuditSink) Option {
	return func(e *Engine) {
		if a != nil {
			e.audit = a
		}
	}
}

// WithMetrics sets the metrics collector. nil keeps the no-op collector.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithPageSize sets the List page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithProgressInterval sets how often full syncs report progress.
func WithProgressInterval(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.progressEvery = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a sync engine. Activity and audit default to the logging
// sinks.
func NewEngine(s store.Store, acquirer Acquirer, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		acquirer:      acquirer,
		activity:      LogActivity{},
		audit:         LogAudit{},
		metrics:       nopMetrics{},
		pageSize:      DefaultPageSize,
		progressEvery: DefaultProgressInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
