// Package worker runs batches of independent tasks across a bounded number of
// goroutines and waits for the whole batch to finish.
package worker

import (
	"context"
	"sync"
)

type Task func(ctx context.Context)

type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes all tasks and returns once every started task has finished.
// Tasks not yet picked up when ctx is cancelled are skipped; tasks already
// running observe the cancellation through their own ctx handling.
func (p *Pool) Run(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	n := p.workers
	if n > len(tasks) {
		n = len(tasks)
	}

	jobs := make(chan Task)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				task(ctx)
			}
		}()
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- task:
		}
	}

	close(jobs)
	wg.Wait()
}
