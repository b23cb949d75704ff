// Package session implements the Session Manager (SPEC_FULL.md §4.4): it
// correlates inbound decoded frames to the request that originated them,
// owns the pending-request table, enforces per-destination FIFO, and
// completes the caller's future on a dedicated worker pool.
package session

import (
	"context"
	"sync"
)

type result[T any] struct {
	val T
	err error
}

// Future is a single-shot completion handle (SPEC_FULL.md §3: "a request
// has a single-shot completion: it resolves at most once"). It is safe to
// call Cancel concurrently with completion; whichever happens first wins,
// and the other is a no-op (testable property 1). It is also safe to call
// Await from more than one goroutine at once.
type Future[T any] struct {
	done      chan struct{}
	once      sync.Once
	cancel    func()
	mu        sync.Mutex
	cancelled bool
	completed bool
	res       result[T]
}

func newFuture[T any](cancel func()) (*Future[T], func(T, error)) {
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	complete := func(v T, err error) {
		f.once.Do(func() {
			f.mu.Lock()
			f.completed = true
			f.res = result[T]{val: v, err: err}
			f.mu.Unlock()
			close(f.done)
		})
	}
	return f, complete
}

// Await blocks until the future completes or ctx is done, whichever comes
// first. done is closed, never drained, so any number of concurrent Await
// callers observe the same completion without racing each other for it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		r := f.res
		f.mu.Unlock()
		return r.val, r.err
	case <-ctx.Done():
		// A caller giving up on Await must also give up the request itself:
		// otherwise the pendingEntry lingers in the Manager's table, still
		// retrying on its own timer, and a later request to the same
		// destination/kind queues FIFO behind one its caller already walked
		// away from.
		f.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel removes the pending entry backing this future (if it hasn't
// already completed) and resolves it with ErrCancelled. Calling Cancel
// after the future has already completed, or calling it twice, is a
// no-op (spec.md §8 property 1).
func (f *Future[T]) Cancel() {
	f.mu.Lock()
	skip := f.cancelled || f.completed
	f.cancelled = true
	f.mu.Unlock()
	if skip {
		return
	}
	if f.cancel != nil {
		f.cancel()
	}
}
