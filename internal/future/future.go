// Package future provides a single-assignment result that can be awaited
// with a context.
//
// A Future is completed exactly once through its Promise. Awaiting a
// Future never consumes it: any number of callers may Get the same value,
// and a caller whose context is cancelled may come back later and await
// the very same Future again.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAbandoned is the result of a Future rejected with a nil error, or
// of a Go function that panicked.
var ErrAbandoned = errors.New("future abandoned")

// Future is a read-only handle to a value that becomes available later.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Promise is the write side of a Future.
type Promise[T any] struct {
	f *Future[T]
}

// New returns an incomplete Promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{f: &Future[T]{done: make(chan struct{})}}
}

// Future returns the read side of p.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Resolve completes the Future with v.
// Returns false if the Future was already complete.
func (p *Promise[T]) Resolve(v T) bool {
	return p.f.complete(v, nil)
}

// Reject completes the Future with err.
// Returns false if the Future was already complete.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrAbandoned
	}
	var zero T
	return p.f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Value returns a Future already resolved with v.
func Value[T any](v T) *Future[T] {
	p := New[T]()
	p.Resolve(v)
	return p.Future()
}

// Failed returns a Future already rejected with err.
func Failed[T any](err error) *Future[T] {
	p := New[T]()
	p.Reject(err)
	return p.Future()
}

// Go runs fn on a new goroutine and resolves the Future with its result.
// ctx is passed to fn unchanged; cancelling it is fn's business. A panic in
// fn rejects the Future with ErrAbandoned.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	p := New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.Reject(fmt.Errorf("%w: panic: %v", ErrAbandoned, r))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p.Future()
}

// Done returns a channel closed when the Future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the Future has completed.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome of a completed Future.
// ok is false if the Future has not completed yet.
func (f *Future[T]) Result() (v T, ok bool, err error) {
	if !f.Ready() {
		return v, false, nil
	}
	return f.value, true, f.err
}

// Get blocks until the Future completes or ctx is done.
// A ctx error leaves the Future untouched so it can be awaited again.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
