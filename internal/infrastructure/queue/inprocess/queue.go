package inprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

var errQueueClosed = errors.New("analysis queue is shutting down")

type Options struct {
	Workers   int
	QueueSize int
	Observer  ports.JobObserver
	Logger    *slog.Logger
}

type job struct {
	task   domain.AnalysisTask
	handle *domain.JobHandle
}

// Queue runs analysis tasks on a bounded pool of workers inside the API
// process. Tasks outlive the request that dispatched them.
type Queue struct {
	runner   ports.AnalysisRunner
	observer ports.JobObserver
	logger   *slog.Logger
	workers  int

	ch     chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func New(runner ports.AnalysisRunner, opts Options) *Queue {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:   runner,
		observer: opts.Observer,
		logger:   logger,
		workers:  workers,
		ch:       make(chan job, size),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(i + 1)
	}
	return q
}

// Dispatch enqueues the task without blocking. A full queue is reported as a
// temporary failure so callers can shed load.
func (q *Queue) Dispatch(_ context.Context, task domain.AnalysisTask) (*domain.JobHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, domain.WrapError(domain.ErrTemporary, "dispatch analysis", errQueueClosed)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	handle := domain.NewJobHandle(task.DocumentID)
	select {
	case q.ch <- job{task: task, handle: handle}:
		q.logger.Debug("analysis_task_queued", "document_id", task.DocumentID, "depth", len(q.ch))
		return handle, nil
	default:
		q.logger.Warn("analysis_queue_full", "document_id", task.DocumentID, "capacity", cap(q.ch))
		return nil, domain.WrapError(domain.ErrTemporary, "dispatch analysis", fmt.Errorf("queue capacity %d reached", cap(q.ch)))
	}
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()
	for j := range q.ch {
		j.handle.Finish(q.run(j.task))
	}
	q.logger.Debug("analysis_worker_stopped", "worker_id", workerID)
}

func (q *Queue) run(task domain.AnalysisTask) (err error) {
	if q.observer != nil {
		q.observer.ObserveQueueLag(time.Since(task.EnqueuedAt))
		q.observer.JobStarted()
	}
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("analysis worker panic: %v", recovered)
			q.logger.Error("analysis_worker_panic", "document_id", task.DocumentID, "panic", recovered)
		}
		if q.observer != nil {
			q.observer.JobFinished(err, time.Since(start))
		}
	}()
	return q.runner.Run(q.ctx, task)
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When ctx
// expires first, running tasks are cancelled and ctx.Err is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("analysis_queue_drained", "workers", q.workers)
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("analysis_queue_shutdown_interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}
