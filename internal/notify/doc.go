// Package notify provides Notifier implementations for the engine.
//
// A notifier receives every context the engine is about to act on (Start)
// or has just finished (End) and answers with a future list of further
// contexts. The engine only depends on the method shape
//
//	Notify(ctx, effect.Context[E]) (*future.Future[[]effect.Context[E]], error)
//
// so everything here plugs into engine.New directly.
//
// Implementations:
//   - Func adapts a function
//   - Passthrough runs the batch as given and asks for no follow-on work
//   - Mediator fans a context out to ordered observers
//   - Async is a Mediator that answers from a goroutine
//   - Queue hands each request to an external responder
package notify
