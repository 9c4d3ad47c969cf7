package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
)

// ErrClosed is returned by Notify after the queue is closed.
var ErrClosed = errors.New("notify: queue closed")

// Request is one notification waiting for an answer.
type Request[E any] struct {
	Context effect.Context[E]
	promise *future.Promise[[]effect.Context[E]]
}

// Respond completes the request with further contexts.
// Returns false if the request was already answered.
func (r Request[E]) Respond(next ...effect.Context[E]) bool {
	return r.promise.Resolve(next)
}

// Fail completes the request with an error.
func (r Request[E]) Fail(err error) bool {
	return r.promise.Reject(err)
}

// Queue is a notifier answered from outside the engine. Notify enqueues a
// Request and returns its future at once; a responder takes requests with
// Next or TryNext and resolves them whenever it likes.
//
// Thread-safety: all methods are safe for concurrent use.
type Queue[E any] struct {
	mu       sync.Mutex
	requests []Request[E]
	closed   bool
	signal   chan struct{} // buffered, size 1
}

// NewQueue creates an empty queue.
func NewQueue[E any]() *Queue[E] {
	return &Queue[E]{
		requests: make([]Request[E], 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

func (q *Queue[E]) Notify(ctx context.Context, ec effect.Context[E]) (Response[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := future.New[[]effect.Context[E]]()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	q.requests = append(q.requests, Request[E]{Context: ec, promise: p})

	// Non-blocking signal: one pending wakeup is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return p.Future(), nil
}

// TryNext removes the oldest request without blocking.
func (q *Queue[E]) TryNext() (Request[E], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request[E]{}, false
	}
	r := q.requests[0]
	q.requests[0] = Request[E]{}
	q.requests = q.requests[1:]
	return r, true
}

// Next blocks until a request is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue[E]) Next(ctx context.Context) (Request[E], error) {
	for {
		if r, ok := q.TryNext(); ok {
			return r, nil
		}

		q.mu.Lock()
		if q.closed && len(q.requests) == 0 {
			q.mu.Unlock()
			return Request[E]{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Request[E]{}, ctx.Err()
		}
	}
}

// Len returns the number of unanswered requests not yet taken.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close stops accepting requests and wakes waiting responders.
// Requests already queued can still be taken. Safe to call twice.
func (q *Queue[E]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
