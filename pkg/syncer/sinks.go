package syncer

import (
	"context"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
)

// Audit actions recorded by SyncProvider.
const (
	AuditSyncCompleted = "provider.sync.completed"
	AuditSyncFailed    = "provider.sync.failed"
)

// Activity is a tracked background job.
type Activity struct {
	JobID      string
	Kind       string
	ProviderID string
	UserID     string
	StartedAt  time.Time
}

// Summary is the outcome of a completed full sync.
type Summary struct {
	Processed int
	Folders   int
	Failed    int
	Pruned    int
	Duration  time.Duration
}

// ActivitySink tracks job progress. progress is in [0, 1].
type ActivitySink interface {
	Create(ctx context.Context, a Activity) error
	Update(ctx context.Context, jobID string, progress float64, processed int) error
	Complete(ctx context.Context, jobID string, s Summary) error
	Fail(ctx context.Context, jobID string, cause error) error
}

// AuditEntry is one structured audit record.
type AuditEntry struct {
	Action     string
	ProviderID string
	UserID     string
	Details    map[string]any
	At         time.Time
}

// AuditSink appends audit records.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// LogActivity reports job progress through the process logger.
type LogActivity struct{}

func (LogActivity) Create(ctx context.Context, a Activity) error {
	logger.Info("Job %s started: %s of provider %s", a.JobID, a.Kind, a.ProviderID)
	return nil
}

func (LogActivity) Update(ctx context.Context, jobID string, progress float64, processed int) error {
	logger.Debug("Job %s: %.0f%% (%d files)", jobID, progress*100, processed)
	return nil
}

func (LogActivity) Complete(ctx context.Context, jobID string, s Summary) error {
	logger.Info("Job %s completed: %d files, %d folders, %d pruned, %d skipped in %s",
		jobID, s.Processed, s.Folders, s.Pruned, s.Failed, s.Duration)
	return nil
}

func (LogActivity) Fail(ctx context.Context, jobID string, cause error) error {
	logger.Error("Job %s failed: %v", jobID, cause)
	return nil
}

// NopActivity discards job progress.
type NopActivity struct{}

func (NopActivity) Create(context.Context, Activity) error             { return nil }
func (NopActivity) Update(context.Context, string, float64, int) error { return nil }
func (NopActivity) Complete(context.Context, string, Summary) error    { return nil }
func (NopActivity) Fail(context.Context, string, error) error          { return nil }

// LogAudit writes audit entries to the process logger.
type LogAudit struct{}

func (LogAudit) Record(ctx context.Context, e AuditEntry) error {
	logger.Info("Audit %s provider=%s user=%s %v", e.Action, e.ProviderID, e.UserID, e.Details)
	return nil
}
