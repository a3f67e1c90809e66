// Package scheduler runs jobs on a bounded in-process worker pool. Jobs
// queue FIFO up to a fixed capacity and each one executes under its own
// cancellable, deadline-bounded context.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docuvid/internal/models"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrShuttingDown = errors.New("scheduler is shutting down")
)

// RunFunc executes one job to completion. The context carries the
// per-job timeout and is cancelled by Cancel or shutdown. Jobs cancelled
// while still queued run under an already-dead context, so the pipeline
// records the terminal state without doing any work.
type RunFunc func(ctx context.Context, job *models.Job)

type item struct {
	job *models.Job
	ctx context.Context
}

type Scheduler struct {
	run     RunFunc
	queue   chan item
	workers int
	timeout time.Duration
	wg      sync.WaitGroup

	mu       sync.Mutex
	baseCtx  context.Context
	cancels  map[uuid.UUID]context.CancelFunc
	stopping bool
}

func New(workers, capacity int, timeout time.Duration, run RunFunc) *Scheduler {
	return &Scheduler{
		run:     run,
		queue:   make(chan item, capacity),
		workers: workers,
		timeout: timeout,
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers drain the queue until Shutdown
// closes it. Cancelling ctx aborts every queued and running job.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	log.Printf("[Scheduler] Started with %d workers, queue capacity %d", s.workers, cap(s.queue))
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for it := range s.queue {
		s.execute(it)
	}
}

func (s *Scheduler) execute(it item) {
	// The wall-clock ceiling covers execution only, not queue wait.
	jobCtx, cancel := context.WithTimeout(it.ctx, s.timeout)
	defer cancel()

	defer func() {
		s.mu.Lock()
		delete(s.cancels, it.job.ID)
		s.mu.Unlock()
	}()

	log.Printf("[Scheduler] Running job %s", it.job.ID)
	s.run(jobCtx, it.job)
}

// Submit enqueues a job. It never blocks: a full queue rejects the job
// so callers can surface backpressure instead of hiding it.
func (s *Scheduler) Submit(job *models.Job) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	select {
	case s.queue <- item{job: job, ctx: ctx}:
		return nil
	default:
		cancel()
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
		return ErrQueueFull
	}
}

// Cancel stops a job, whether queued or running. Returns false when the
// scheduler knows nothing about the job, which includes jobs that have
// already finished.
func (s *Scheduler) Cancel(jobID uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// Shutdown stops accepting jobs and waits for in-flight work, up to the
// context deadline. Queued jobs still run; callers wanting a fast stop
// cancel the context passed to Start.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[Scheduler] Drained and stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
