package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/rpattn/ngoreports/internal/repository"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentJobs bounds how many pipelines run at once.
const DefaultMaxConcurrentJobs = 4

// Runner executes one ingestion job to completion.
type Runner interface {
	Run(ctx context.Context, upload Upload, jobID string)
}

// Task is the handle of a dispatched job. Callers that only poll the job
// record may drop it.
type Task struct {
	JobID string
	done  chan struct{}
}

// Done is closed once the job's pipeline has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Dispatcher runs each job on its own goroutine, detached from the request
// that submitted it. Jobs beyond the concurrency limit wait, still pending.
type Dispatcher struct {
	runner Runner
	jobs   repository.JobRepository
	logger *slog.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	maxConcurrent int64
	logger        *slog.Logger
}

// WithMaxConcurrentJobs sets how many pipelines may run at once.
func WithMaxConcurrentJobs(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

// WithDispatcherLogger sets the logger used for panics and failures.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDispatcher returns a dispatcher that runs jobs with runner. jobs is used
// to record jobs whose pipeline panicked.
func NewDispatcher(runner Runner, jobs repository.JobRepository, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{
		maxConcurrent: DefaultMaxConcurrentJobs,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		runner: runner,
		jobs:   jobs,
		logger: cfg.logger.With("component", "dispatcher"),
		sem:    semaphore.NewWeighted(cfg.maxConcurrent),
		active: make(map[string]int),
	}
}

// Dispatch starts the job in the background and returns immediately.
func (d *Dispatcher) Dispatch(upload Upload, jobID string) *Task {
	task := &Task{JobID: jobID, done: make(chan struct{})}
	key := uploadKey(upload.Path)
	d.track(key, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(task.done)
		defer d.track(key, -1)

		ctx := context.Background()
		// Acquire only fails when ctx is done, which Background never is.
		_ = d.sem.Acquire(ctx, 1)
		defer d.sem.Release(1)

		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("panic while processing job", "job_id", jobID, "panic", rec)
				d.failJob(ctx, jobID, fmt.Errorf("panic: %v", rec))
			}
		}()
		d.runner.Run(ctx, upload, jobID)
	}()
	return task
}

// InFlight reports whether path is the upload of a job that is queued or
// running in this process.
func (d *Dispatcher) InFlight(path string) bool {
	if path == "" {
		return false
	}
	key := uploadKey(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[key] > 0
}

func (d *Dispatcher) track(key string, delta int) {
	if key == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[key] += delta
	if d.active[key] <= 0 {
		delete(d.active, key)
	}
}

func uploadKey(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Wait blocks until every dispatched job has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) failJob(ctx context.Context, jobID string, err error) {
	if markErr := d.jobs.MarkFailed(ctx, jobID, truncateError(err)); markErr != nil {
		d.logger.Error("failed to mark job failed", "job_id", jobID, "error", markErr, "cause", err)
	}
}
