// Package pool provides the bounded worker pool that executes leaf downloads.
// Submissions block once the bound is reached, giving the tree walk natural
// backpressure, and task failures are collected rather than cancelling
// sibling tasks.
package pool

import (
	"context"
	goSync "sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs submitted tasks on background goroutines, with at most `size`
// tasks in flight at once.
type Pool struct {
	sem *semaphore.Weighted
	wg  goSync.WaitGroup

	mu   goSync.Mutex
	errs []error
}

// New creates a pool that runs at most size tasks concurrently.
func New(size int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Submit schedules a task, blocking until a worker slot is free. Task errors
// are recorded and returned from Wait; they never affect other tasks.
func (p *Pool) Submit(task func() error) {
	// Acquire can only fail when the context is cancellable.
	_ = p.sem.Acquire(context.Background(), 1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		if err := task(); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}()
}

// Wait blocks until every submitted task has finished and returns the errors
// they produced, in completion order.
func (p *Pool) Wait() []error {
	p.wg.Wait()
	return p.Errors()
}

// Errors returns a snapshot of the task errors recorded so far. It may be
// called while tasks are still running.
func (p *Pool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make([]error, len(p.errs))
	copy(errs, p.errs)
	return errs
}
