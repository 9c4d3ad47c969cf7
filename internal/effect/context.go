package effect

import (
	"fmt"
	"slices"

	"github.com/roach88/applier/internal/ir"
)

// Context pairs an input batch with the effect to apply to it and a
// lifecycle message. A Context is immutable: the batch is copied on
// construction and on every read.
type Context[E any] struct {
	input  []E
	effect Effect[E]
	msg    ir.Message
}

// New creates a context. The input slice is copied.
func New[E any](input []E, eff Effect[E], msg ir.Message) Context[E] {
	return Context[E]{input: slices.Clone(input), effect: eff, msg: msg}
}

// Start is shorthand for New(input, eff, ir.Start).
func Start[E any](input []E, eff Effect[E]) Context[E] {
	return New(input, eff, ir.Start)
}

// Input returns a copy of the batch.
func (c Context[E]) Input() []E {
	return slices.Clone(c.input)
}

// Len returns the number of elements in the batch.
func (c Context[E]) Len() int {
	return len(c.input)
}

// At returns element i. It panics if i is out of range.
func (c Context[E]) At(i int) E {
	return c.input[i]
}

func (c Context[E]) Effect() Effect[E] {
	return c.effect
}

func (c Context[E]) Message() ir.Message {
	return c.msg
}

// Completed returns the END record for this context: same batch and
// effect, message End.
func (c Context[E]) Completed() Context[E] {
	return Context[E]{input: c.input, effect: c.effect, msg: ir.End}
}

// Digest returns the content digest of the context. Elements must be
// convertible by ir.FromGo (strings, bools and integers).
func (c Context[E]) Digest() (string, error) {
	arr := make(ir.IRArray, len(c.input))
	for i, elem := range c.input {
		v, err := ir.FromGo(any(elem))
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		arr[i] = v
	}
	return ir.InstructionDigest(arr, Name(c.effect), c.msg)
}

func (c Context[E]) String() string {
	return fmt.Sprintf("%s%v via %s", c.msg, c.input, Name(c.effect))
}
