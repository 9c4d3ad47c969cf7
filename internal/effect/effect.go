// Package effect defines the unit of work the engine applies and the
// immutable context that carries it through the phase cycle.
package effect

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted is returned by an effect that was interrupted while
// applying an element. The engine treats it exactly like cancellation of
// the caller's context at that element.
var ErrInterrupted = errors.New("effect interrupted")

// Effect applies a side effect to a single element.
//
// Resumption re-invokes the same effect on the element that failed, so an
// effect should tolerate being applied again to an element whose previous
// application returned an error.
type Effect[E any] interface {
	Apply(ctx context.Context, elem E) error
}

// Func adapts a plain function to Effect.
type Func[E any] func(ctx context.Context, elem E) error

func (f Func[E]) Apply(ctx context.Context, elem E) error {
	return f(ctx, elem)
}

type named[E any] struct {
	name string
	Effect[E]
}

func (n named[E]) Name() string { return n.name }

// Named attaches a stable name to an effect. Names appear in journals,
// traces and instruction digests.
func Named[E any](name string, eff Effect[E]) Effect[E] {
	return named[E]{name: name, Effect: eff}
}

// Name returns the effect's name, or its dynamic type when it has none.
func Name[E any](eff Effect[E]) string {
	if eff == nil {
		return "<nil>"
	}
	if n, ok := eff.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", eff)
}
