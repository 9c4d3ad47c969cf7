package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
)

// Observer inspects a context and may return further contexts.
type Observer[E any] interface {
	Observe(ctx context.Context, ec effect.Context[E]) ([]effect.Context[E], error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[E any] func(ctx context.Context, ec effect.Context[E]) ([]effect.Context[E], error)

func (f ObserverFunc[E]) Observe(ctx context.Context, ec effect.Context[E]) ([]effect.Context[E], error) {
	return f(ctx, ec)
}

// Mediator delivers each context to its observers in registration order
// and concatenates their answers. An observer error fails the returned
// future; observers after it are not consulted.
//
// Mediator answers synchronously: the returned future is already complete.
type Mediator[E any] struct {
	mu        sync.RWMutex
	observers []Observer[E]
}

// NewMediator returns a Mediator with the given observers.
func NewMediator[E any](observers ...Observer[E]) *Mediator[E] {
	return &Mediator[E]{observers: observers}
}

// Register appends an observer.
func (m *Mediator[E]) Register(o Observer[E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Mediator[E]) Notify(ctx context.Context, ec effect.Context[E]) (Response[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := m.collect(ctx, ec)
	if err != nil {
		return future.Failed[[]effect.Context[E]](err), nil
	}
	return future.Value(out), nil
}

func (m *Mediator[E]) collect(ctx context.Context, ec effect.Context[E]) ([]effect.Context[E], error) {
	m.mu.RLock()
	observers := append([]Observer[E](nil), m.observers...)
	m.mu.RUnlock()

	var out []effect.Context[E]
	for i, o := range observers {
		got, err := o.Observe(ctx, ec)
		if err != nil {
			return nil, fmt.Errorf("observer %d: %w", i, err)
		}
		out = append(out, got...)
	}
	return out, nil
}

// Async is a Mediator whose observers run on a separate goroutine.
// The future completes once every observer has answered.
type Async[E any] struct {
	*Mediator[E]
}

// NewAsync returns an Async mediator with the given observers.
func NewAsync[E any](observers ...Observer[E]) *Async[E] {
	return &Async[E]{Mediator: NewMediator(observers...)}
}

func (a *Async[E]) Notify(ctx context.Context, ec effect.Context[E]) (Response[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Observers must not be cut short by the caller giving up on the wait;
	// the caller may come back for the same future after resuming.
	return future.Go(context.WithoutCancel(ctx), func(ctx context.Context) ([]effect.Context[E], error) {
		return a.collect(ctx, ec)
	}), nil
}
