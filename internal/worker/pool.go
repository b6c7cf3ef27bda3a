// Package worker runs blocking outbound calls on a bounded set of goroutines
// and hands results back through futures.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned when a job is submitted after Stop.
var ErrStopped = errors.New("worker pool stopped")

// Pool bounds the number of concurrently running jobs. Submit waits for a
// free slot, so callers see back-pressure instead of unbounded goroutines.
type Pool struct {
	size int64
	sem  *semaphore.Weighted

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup

	// OnStart and OnDone, when set, observe job boundaries (metrics gauges).
	OnStart func()
	OnDone  func()
}

// NewPool creates a Pool running at most size jobs at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int {
	return int(p.size)
}

// Future is the pending result of a submitted job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the job finishes or ctx is done. When ctx ends first the
// job keeps running; its result can still be collected with Wait on a fresh
// context.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the job has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit schedules fn on p. It blocks until a slot is free or ctx is done.
// fn receives ctx and should honour its cancellation.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return nil, err
	}

	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		if p.OnStart != nil {
			p.OnStart()
		}
		if p.OnDone != nil {
			defer p.OnDone()
		}
		f.val, f.err = fn(ctx)
		close(f.done)
	}()
	return f, nil
}

// Stop rejects new jobs and waits for running ones to finish or ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
