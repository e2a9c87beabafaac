package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/riskwatch-backend/internal/data/repos"
	types "github.com/yungbote/riskwatch-backend/internal/domain"
	"github.com/yungbote/riskwatch-backend/internal/jobs/runtime"
	"github.com/yungbote/riskwatch-backend/internal/observability"
	"github.com/yungbote/riskwatch-backend/internal/platform/dbctx"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

var (
	ErrQueueFull     = errors.New("job queue full")
	ErrRunnerStopped = errors.New("job runner stopped")
)

type Options struct {
	Concurrency int
	QueueSize   int
	Metrics     *observability.Metrics
}

// Worker is an in-process task runner: submissions are recorded as job_run
// rows, buffered in a bounded queue and executed by a fixed pool of goroutines.
type Worker struct {
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	metrics  *observability.Metrics

	concurrency int
	queue       chan *types.JobRun

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewWorker(baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, opts Options) *Worker {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	size := opts.QueueSize
	if size < 1 {
		size = 256
	}
	return &Worker{
		log:         baseLog.With("component", "JobWorker"),
		repo:        repo,
		registry:    registry,
		metrics:     opts.Metrics,
		concurrency: concurrency,
		queue:       make(chan *types.JobRun, size),
	}
}

// Start launches the worker pool. Handlers run under a context derived from
// ctx that is cancelled only if Stop runs out of time.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.log.Info("Starting job worker pool", "concurrency", w.concurrency, "queue_size", cap(w.queue), "job_types", w.registry.Types())
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go w.runLoop(runCtx, workerID)
	}
}

// Submit records the task and queues it without blocking.
func (w *Worker) Submit(ctx context.Context, task runtime.Task) (*types.JobRun, error) {
	if task.JobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if _, ok := w.registry.Get(task.JobType); !ok {
		return nil, &missingHandlerError{JobType: task.JobType}
	}

	var payload datatypes.JSON
	if len(task.Payload) > 0 {
		b, err := json.Marshal(task.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payload = datatypes.JSON(b)
	}
	job := &types.JobRun{
		JobType:    task.JobType,
		EntityType: task.EntityType,
		EntityID:   task.EntityID,
		Reason:     task.Reason,
		Payload:    payload,
		Status:     types.JobStatusQueued,
	}
	if _, err := w.repo.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("record job_run: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.reject(ctx, job, ErrRunnerStopped)
		return job, ErrRunnerStopped
	}
	select {
	case w.queue <- job:
		w.log.Debug("Job queued", "job_id", job.ID, "job_type", job.JobType, "reason", job.Reason)
		return job, nil
	default:
		w.reject(ctx, job, ErrQueueFull)
		return job, ErrQueueFull
	}
}

func (w *Worker) reject(ctx context.Context, job *types.JobRun, cause error) {
	now := time.Now()
	job.Status = types.JobStatusFailed
	job.Error = cause.Error()
	job.FinishedAt = &now
	if err := w.repo.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, job.ID, map[string]interface{}{
		"status":      types.JobStatusFailed,
		"error":       cause.Error(),
		"finished_at": now,
	}); err != nil {
		w.log.Warn("Failed to record rejected job", "job_id", job.ID, "error", err)
	}
	w.log.Warn("Job rejected", "job_id", job.ID, "job_type", job.JobType, "error", cause)
	w.metrics.IncJobRun(ctx, job.JobType, "rejected")
}

// Stop closes the queue and waits for queued and in-flight jobs to finish.
// When ctx expires first, running handlers are cancelled and ctx.Err is returned.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info("Job worker pool drained")
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		w.log.Warn("Job worker pool stop timed out; in-flight jobs cancelled")
		return ctx.Err()
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	for job := range w.queue {
		w.execute(ctx, workerID, job)
	}
	w.log.Debug("Worker loop stopped", "worker_id", workerID)
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.JobRun) {
	start := time.Now()
	h, ok := w.registry.Get(job.JobType)
	jc := runtime.NewContext(ctx, job, w.repo, w.log.With("worker_id", workerID))

	if !ok {
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		w.metrics.IncJobRun(ctx, job.JobType, job.Status)
		return
	}

	job.Status = types.JobStatusRunning
	job.StartedAt = &start
	job.Attempts++
	if err := w.repo.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
		"status":     types.JobStatusRunning,
		"started_at": start,
		"attempts":   gorm.Expr("attempts + 1"),
	}); err != nil {
		w.log.Warn("Failed to mark job running", "job_id", job.ID, "error", err)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", errFromRecover(r))
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			jc.Fail("run", runErr)
			return
		}
		jc.Succeed(nil)
	}()

	w.metrics.IncJobRun(ctx, job.JobType, job.Status)
	w.log.Debug("Job finished",
		"worker_id", workerID,
		"job_id", job.ID,
		"job_type", job.JobType,
		"status", job.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
