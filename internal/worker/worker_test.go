package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunAll(t *testing.T) {
	var processed atomic.Int64

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) {
			processed.Add(1)
		}
	}

	pool := NewPool(4)
	pool.Run(context.Background(), tasks)

	if processed.Load() != 20 {
		t.Errorf("expected 20 tasks processed, got %d", processed.Load())
	}
}

func TestPool_EmptyBatch(t *testing.T) {
	pool := NewPool(4)
	pool.Run(context.Background(), nil)
}

func TestPool_MoreWorkersThanTasks(t *testing.T) {
	var processed atomic.Int64

	tasks := []Task{
		func(ctx context.Context) { processed.Add(1) },
		func(ctx context.Context) { processed.Add(1) },
	}

	pool := NewPool(16)
	pool.Run(context.Background(), tasks)

	if processed.Load() != 2 {
		t.Errorf("expected 2 tasks processed, got %d", processed.Load())
	}
}

func TestPool_ZeroWorkersClamped(t *testing.T) {
	var processed atomic.Int64

	pool := NewPool(0)
	pool.Run(context.Background(), []Task{
		func(ctx context.Context) { processed.Add(1) },
	})

	if processed.Load() != 1 {
		t.Errorf("expected 1 task processed, got %d", processed.Load())
	}
}

func TestPool_CancelSkipsUndistributed(t *testing.T) {
	var processed atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())

	// The first task cancels the context; with one worker the remaining
	// slow tasks should mostly be skipped.
	tasks := make([]Task, 50)
	tasks[0] = func(ctx context.Context) {
		processed.Add(1)
		cancel()
	}
	for i := 1; i < len(tasks); i++ {
		tasks[i] = func(ctx context.Context) {
			processed.Add(1)
			time.Sleep(time.Millisecond)
		}
	}

	pool := NewPool(1)
	pool.Run(ctx, tasks)

	if n := processed.Load(); n == 50 {
		t.Errorf("expected some tasks skipped after cancel, all 50 ran")
	} else {
		t.Logf("processed %d of 50 tasks before cancel took effect", n)
	}
}

func TestPool_RunReturnsAfterAllFinish(t *testing.T) {
	var running atomic.Int64

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) {
			running.Add(1)
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}
	}

	pool := NewPool(3)
	pool.Run(context.Background(), tasks)

	if running.Load() != 0 {
		t.Errorf("Run returned with %d tasks still in flight", running.Load())
	}
}
