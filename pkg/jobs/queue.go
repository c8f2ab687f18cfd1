// Package jobs is an in-process bounded queue for background sync jobs.
//
// It is the default dispatch transport of the lifecycle manager. Enqueue never
// blocks: when the buffer is full or the queue is stopped the caller gets an
// error and decides what to do, typically running the job inline.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/internal/logger"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("job queue is full")

	// ErrQueueClosed is returned by Enqueue after Stop, or before Start.
	ErrQueueClosed = errors.New("job queue is closed")
)

// Kind names what a job does.
type Kind string

const (
	// KindSyncProvider runs a full sync of one provider.
	KindSyncProvider Kind = "sync_provider"
)

// Job is one unit of background work.
type Job struct {
	ID         string
	Kind       Kind
	ProviderID string
	UserID     string

	// PruneDeleted is forwarded to the sync engine.
	PruneDeleted bool

	EnqueuedAt time.Time
}

// Handler executes a job. Returned errors are logged; the handler is expected
// to record failures in its own sinks.
type Handler func(ctx context.Context, job Job) error

// Queue dispatches jobs to a fixed pool of workers.
type Queue struct {
	handler Handler
	workers int

	mu      sync.RWMutex
	ch      chan Job
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates an idle queue; call Start to run it. workers and size
// default to 2 and 100.
func NewQueue(handler Handler, workers, size int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if size <= 0 {
		size = 100
	}
	return &Queue{
		handler: handler,
		workers: workers,
		ch:      make(chan Job, size),
	}
}

// Start launches the workers. Jobs run with a context derived from ctx. A
// stopped queue cannot be restarted.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.stopped {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	logger.Info("Job queue started with %d workers", q.workers)
}

// Enqueue adds job to the buffer, assigning an ID when empty, and returns the
// ID.
func (q *Queue) Enqueue(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return "", ErrQueueClosed
	}

	select {
	case q.ch <- job:
		logger.Debug("Enqueued job %s (%s) for provider %s", job.ID, job.Kind, job.ProviderID)
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Len returns the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Stop refuses new jobs and waits for the buffered ones to finish. When ctx
// expires first, running jobs are cancelled and Stop returns ctx.Err().
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.stopped = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		logger.Info("Job queue stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.ch {
		if ctx.Err() != nil {
			logger.Warn("Dropping job %s: queue cancelled", job.ID)
			continue
		}
		q.run(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job %s panicked: %v", job.ID, r)
		}
	}()

	start := time.Now()
	if err := q.handler(ctx, job); err != nil {
		logger.Error("Job %s (%s) for provider %s failed after %s: %v",
			job.ID, job.Kind, job.ProviderID, time.Since(start), err)
		return
	}
	logger.Debug("Job %s finished in %s", job.ID, time.Since(start))
}
