package syncer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
	"github.com/marmos91/dittovfs/pkg/store"
)

// ActivityKindSync is the activity kind of a full provider sync.
const ActivityKindSync = "provider.sync"

// SyncOptions controls a full sync.
type SyncOptions struct {
	// Recursive walks the whole tree. Without it only the root is refreshed.
	Recursive bool

	// PruneDeleted hard-deletes the provider's file rows that the walk did
	// not see. It is ignored for non-recursive or partial walks.
	PruneDeleted bool

	// JobID identifies the activity. A new one is generated when empty.
	JobID  string
	UserID string
}

// DefaultSyncOptions returns a recursive sync without pruning.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{Recursive: true}
}

// Progress maps a running file count onto [0, 0.95]. The total is unknown
// while walking, so the curve approaches but never reaches completion.
func Progress(processed int) float64 {
	if processed <= 0 {
		return 0
	}
	p := float64(processed) / float64(processed+20)
	if p > 0.95 {
		return 0.95
	}
	return p
}

// SyncProvider walks the whole tree of a provider, refreshing every cached
// row, then stores the new quota and sync time on the provider record.
//
// Failing to read the quota or to list the root fails the job; everything
// below the root is continue-on-error. The adapter is always released.
func (e *Engine) SyncProvider(ctx context.Context, providerID string, opts SyncOptions) (*store.Provider, error) {
	start := e.now()
	if opts.JobID == "" {
		opts.JobID = uuid.NewString()
	}

	e.reportCreate(ctx, Activity{
		JobID:      opts.JobID,
		Kind:       ActivityKindSync,
		ProviderID: providerID,
		UserID:     opts.UserID,
		StartedAt:  start,
	})

	providerType := ""
	fail := func(err error) (*store.Provider, error) {
		duration := e.now().Sub(start)
		e.metrics.ObserveSync(providerType, "error", duration)
		if ferr := e.activity.Fail(ctx, opts.JobID, err); ferr != nil {
			logger.Warn("Failed to record failure of job %s: %v", opts.JobID, ferr)
		}
		e.record(ctx, AuditEntry{
			Action:     AuditSyncFailed,
			ProviderID: providerID,
			UserID:     opts.UserID,
			Details: map[string]any{
				"jobId":      opts.JobID,
				"error":      err.Error(),
				"durationMs": duration.Milliseconds(),
			},
			At: e.now(),
		})
		return nil, err
	}

	rec, err := e.store.GetProvider(ctx, providerID)
	if err != nil {
		return fail(err)
	}
	providerType = rec.Type

	adapter, done, err := e.acquirer.AcquireRecord(ctx, rec)
	if err != nil {
		return fail(err)
	}
	defer done()

	quota, err := adapter.GetQuota(ctx)
	if err != nil {
		return fail(provider.Wrap(rec.Type, "quota", err))
	}

	onFile := func(processed int) {
		if processed%e.progressEvery == 0 {
			e.reportProgress(ctx, opts.JobID, Progress(processed), processed)
		}
	}

	res, err := e.RefreshFolder(ctx, adapter, rec, "", "", "/", RefreshOptions{
		Recursive: opts.Recursive,
		OnFile:    onFile,
	})
	if err != nil {
		return fail(err)
	}

	pruned := 0
	switch {
	case !opts.PruneDeleted:
	case !opts.Recursive:
		logger.Warn("Job %s: prune skipped, sync of provider %s was not recursive", opts.JobID, rec.ID)
	case !res.Complete():
		logger.Warn("Job %s: prune skipped, %d folders of provider %s could not be listed",
			opts.JobID, res.ListFailures, rec.ID)
	default:
		if pruned, err = e.pruneProviderFiles(ctx, rec.ID, res); err != nil {
			return fail(err)
		}
	}

	now := e.now()
	rec.QuotaUsed = quota.Used
	rec.QuotaTotal = quota.Total
	rec.LastSyncAt = &now
	if err := e.store.UpdateProvider(ctx, rec); err != nil {
		return fail(err)
	}

	summary := Summary{
		Processed: res.Files,
		Folders:   res.Folders,
		Failed:    res.Failed,
		Pruned:    pruned,
		Duration:  now.Sub(start),
	}
	e.reportProgress(ctx, opts.JobID, 1.0, res.Files)
	if err := e.activity.Complete(ctx, opts.JobID, summary); err != nil {
		logger.Warn("Failed to record completion of job %s: %v", opts.JobID, err)
	}
	e.record(ctx, AuditEntry{
		Action:     AuditSyncCompleted,
		ProviderID: rec.ID,
		UserID:     opts.UserID,
		Details: map[string]any{
			"jobId":          opts.JobID,
			"processedCount": res.Files,
			"foldersCount":   res.Folders,
			"failedCount":    res.Failed,
			"prunedCount":    pruned,
			"durationMs":     summary.Duration.Milliseconds(),
		},
		At: now,
	})
	e.metrics.ObserveSync(rec.Type, "success", summary.Duration)

	return rec, nil
}

// pruneProviderFiles hard-deletes every file row of the provider whose remote
// id the walk did not see.
func (e *Engine) pruneProviderFiles(ctx context.Context, providerID string, res *RefreshResult) (int, error) {
	files, err := e.store.ListProviderFiles(ctx, providerID)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, f := range files {
		if _, ok := res.SeenFiles[f.RemoteID]; ok {
			continue
		}
		if err := e.store.DeleteFile(ctx, f.ID); err != nil && !errors.Is(err, provider.ErrNotFound) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func (e *Engine) reportCreate(ctx context.Context, a Activity) {
	if err := e.activity.Create(ctx, a); err != nil {
		logger.Warn("Failed to create activity for job %s: %v", a.JobID, err)
	}
}

func (e *Engine) reportProgress(ctx context.Context, jobID string, progress float64, processed int) {
	if err := e.activity.Update(ctx, jobID, progress, processed); err != nil {
		logger.Warn("Failed to report progress of job %s: %v", jobID, err)
	}
}

func (e *Engine) record(ctx context.Context, entry AuditEntry) {
	if err := e.audit.Record(ctx, entry); err != nil {
		logger.Warn("Failed to record audit entry %s: %v", entry.Action, err)
	}
}
