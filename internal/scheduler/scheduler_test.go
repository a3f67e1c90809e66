package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"docuvid/internal/models"
)

func newJob() *models.Job {
	return &models.Job{ID: uuid.New(), Status: models.JobStatusPending}
}

func TestFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uuid.UUID
	done := make(chan struct{}, 8)

	s := New(1, 8, time.Minute, func(ctx context.Context, job *models.Job) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		done <- struct{}{}
	})
	s.Start(context.Background())

	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		job := newJob()
		want = append(want, job.ID)
		if err := s.Submit(job); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected FIFO order, got %v want %v", order, want)
		}
	}
}

func TestConcurrencyBound(t *testing.T) {
	const workers = 2
	var running, peak int32
	release := make(chan struct{})
	done := make(chan struct{}, 8)

	s := New(workers, 8, time.Minute, func(ctx context.Context, job *models.Job) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		done <- struct{}{}
	})
	s.Start(context.Background())

	for i := 0; i < 6; i++ {
		if err := s.Submit(newJob()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 6; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&peak); got > workers {
		t.Errorf("expected at most %d concurrent jobs, saw %d", workers, got)
	}
}

func TestQueueFullRejection(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(1, 2, time.Minute, func(ctx context.Context, job *models.Job) {
		started <- struct{}{}
		<-release
	})
	s.Start(context.Background())
	defer close(release)

	// First job occupies the worker, the next two fill the queue.
	if err := s.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started
	for i := 0; i < 2; i++ {
		if err := s.Submit(newJob()); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	if err := s.Submit(newJob()); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan error, 1)

	s := New(1, 2, time.Minute, func(ctx context.Context, job *models.Job) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
	})
	s.Start(context.Background())

	job := newJob()
	if err := s.Submit(job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	if !s.Cancel(job.ID) {
		t.Fatal("Cancel should find the running job")
	}

	select {
	case err := <-stopped:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job did not observe cancellation")
	}
}

func TestCancelQueuedJob(t *testing.T) {
	release := make(chan struct{})
	ran := make(chan error, 2)

	s := New(1, 2, time.Minute, func(ctx context.Context, job *models.Job) {
		if job.Title == "blocker" {
			<-release
			return
		}
		ran <- ctx.Err()
	})
	s.Start(context.Background())

	blocker := newJob()
	blocker.Title = "blocker"
	if err := s.Submit(blocker); err != nil {
		t.Fatalf("Submit blocker failed: %v", err)
	}

	queued := newJob()
	if err := s.Submit(queued); err != nil {
		t.Fatalf("Submit queued failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if !s.Cancel(queued.ID) {
		t.Fatal("Cancel should find the queued job")
	}
	close(release)

	select {
	case err := <-ran:
		if err != context.Canceled {
			t.Errorf("queued job should run with dead context, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued job never reached the runner")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	s := New(1, 2, time.Minute, func(ctx context.Context, job *models.Job) {})
	s.Start(context.Background())
	if s.Cancel(uuid.New()) {
		t.Error("Cancel of unknown job should return false")
	}
}

func TestJobTimeout(t *testing.T) {
	timedOut := make(chan error, 1)
	s := New(1, 2, 30*time.Millisecond, func(ctx context.Context, job *models.Job) {
		<-ctx.Done()
		timedOut <- ctx.Err()
	})
	s.Start(context.Background())

	if err := s.Submit(newJob()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case err := <-timedOut:
		if err != context.DeadlineExceeded {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job never hit its deadline")
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	var count int32
	s := New(2, 8, time.Minute, func(ctx context.Context, job *models.Job) {
		atomic.AddInt32(&count, 1)
	})
	s.Start(context.Background())

	for i := 0; i < 4; i++ {
		if err := s.Submit(newJob()); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := atomic.LoadInt32(&count); got != 4 {
		t.Errorf("expected all 4 jobs to run before shutdown returned, got %d", got)
	}
	if err := s.Submit(newJob()); err != ErrShuttingDown {
		t.Errorf("expected ErrShuttingDown after Shutdown, got %v", err)
	}
}
