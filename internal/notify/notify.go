package notify

import (
	"context"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
	"github.com/roach88/applier/internal/ir"
)

// Response is what every notifier in this package resolves to.
type Response[E any] = *future.Future[[]effect.Context[E]]

// Func adapts a function to the notifier contract.
type Func[E any] func(ctx context.Context, ec effect.Context[E]) (Response[E], error)

func (f Func[E]) Notify(ctx context.Context, ec effect.Context[E]) (Response[E], error) {
	return f(ctx, ec)
}

// Passthrough answers a Start context with that same context as the only
// instruction and an End context with no further work.
type Passthrough[E any] struct{}

func (Passthrough[E]) Notify(_ context.Context, ec effect.Context[E]) (Response[E], error) {
	if ec.Message() == ir.Start {
		return future.Value([]effect.Context[E]{ec}), nil
	}
	return future.Value[[]effect.Context[E]](nil), nil
}
