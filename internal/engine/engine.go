package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/sleep"
	"github.com/roach88/applier/internal/tree"
)

// Notifier intercepts every context the engine acts on. It answers with a
// future list of further contexts: instructions for a Start context,
// follow-on work for an End context. Zero contexts is a valid answer.
//
// An error from Notify means the context was not delivered; an error
// from the future means the observer failed. Both freeze the run.
type Notifier[E any] interface {
	Notify(ctx context.Context, ec effect.Context[E]) (Pending[E], error)
}

type config struct {
	maxSteps int
	sleeper  *sleep.Sleeper
	recorder multiRecorder
	tokens   RunTokenGenerator
	clock    Sequencer
}

// Option configures an Engine.
type Option func(*config)

// WithMaxSteps bounds the number of run nodes one Apply or ApplyFrom call
// starts. Default: DefaultMaxSteps. Values below 1 are ignored.
func WithMaxSteps(maxSteps int) Option {
	return func(c *config) {
		if maxSteps > 0 {
			c.maxSteps = maxSteps
		}
	}
}

// WithSleepController makes the engine pause whenever c asks for sleep.
func WithSleepController(c sleep.Controller) Option {
	return func(cfg *config) {
		cfg.sleeper = sleep.NewSleeper(c)
	}
}

// WithSleeper is WithSleepController with a preconfigured Sleeper, for
// tests that substitute the timer.
func WithSleeper(s *sleep.Sleeper) Option {
	return func(c *config) {
		c.sleeper = s
	}
}

// WithRecorder adds recorders that receive every run event.
func WithRecorder(recorders ...Recorder) Option {
	return func(c *config) {
		c.recorder = append(c.recorder, recorders...)
	}
}

// WithRunTokens sets the generator naming top-level runs.
// Default: UUIDv7Generator.
func WithRunTokens(g RunTokenGenerator) Option {
	return func(c *config) {
		c.tokens = g
	}
}

// WithClock sets the sequencer stamping events. Default: a fresh Clock.
func WithClock(s Sequencer) Option {
	return func(c *config) {
		c.clock = s
	}
}

// Engine applies effects to batches under the supervision of a Notifier.
//
// Every call runs synchronously on the caller's goroutine. Concurrency
// only comes from the notifier's futures and from the caller's context.
// A call either completes the whole tree or freezes at one point, stores
// a FailureContext and returns a *StoppedError carrying its id.
//
// Thread-safety: independent calls may run concurrently; they share only
// the Registry.
type Engine[E any] struct {
	notifier Notifier[E]
	registry *Registry[E]
	config
}

// New creates an Engine that owns a fresh Registry.
func New[E any](notifier Notifier[E], opts ...Option) *Engine[E] {
	return NewWithRegistry(notifier, NewRegistry[E](), opts...)
}

// NewWithRegistry creates an Engine storing failures in reg. Engines that
// share a registry can resume each other's failures.
func NewWithRegistry[E any](notifier Notifier[E], reg *Registry[E], opts ...Option) *Engine[E] {
	e := &Engine[E]{
		notifier: notifier,
		registry: reg,
		config: config{
			maxSteps: DefaultMaxSteps,
			tokens:   UUIDv7Generator{},
			clock:    NewClock(),
		},
	}
	for _, opt := range opts {
		opt(&e.config)
	}
	return e
}

// Registry returns the registry failures are stored in.
func (e *Engine[E]) Registry() *Registry[E] {
	return e.registry
}

// Apply applies eff to every element of input, driving the whole phase
// cycle from forward notification. input is not modified.
//
// On failure the returned error is a *StoppedError; its ID resumes the
// run through ApplyFrom.
func (e *Engine[E]) Apply(ctx context.Context, input []E, eff effect.Effect[E]) error {
	token := e.tokens.Generate()
	r := e.newRun(tree.New(token, effect.Start(input, eff)))

	slog.Info("run started", "run", token, "elements", len(input), "effect", effect.Name(eff))
	r.emit(ctx, r.event(EventRunStarted, tree.Root))

	err := r.drive(ctx, tree.Root, ForwardNotify{})
	return r.finish(ctx, err)
}

// ApplyFrom resumes the failure stored under id and then completes
// everything the frozen run had left undone.
//
// The failure is consumed only if it can be resumed. An unknown or
// consumed id, or a failure that no longer fits its tree, yields a
// *StaleResumptionError and leaves the registry untouched.
func (e *Engine[E]) ApplyFrom(ctx context.Context, id int64) error {
	var point ResumePoint[E]
	fc, found, err := e.registry.takeIf(id, func(fc FailureContext[E]) error {
		var err error
		point, err = e.validate(fc)
		return err
	})
	if !found {
		return e.stale(ctx, id, nil, "unknown or already consumed failure id")
	}
	if err != nil {
		return e.stale(ctx, id, fc.Process.Tree, err.Error())
	}
	return e.resume(ctx, id, fc, point)
}

// Resume continues a FailureContext obtained without the registry.
// A context resumes at most once; later attempts fail with
// StaleResumptionError.
func (e *Engine[E]) Resume(ctx context.Context, fc FailureContext[E]) error {
	point, err := e.validate(fc)
	if err != nil {
		return e.stale(ctx, 0, fc.Process.Tree, err.Error())
	}
	return e.resume(ctx, 0, fc, point)
}

func (e *Engine[E]) validate(fc FailureContext[E]) (ResumePoint[E], error) {
	point, err := fc.ResumePoint()
	if err != nil {
		return nil, err
	}
	if err := check(fc.Process.Tree, fc.Process.Node, point); err != nil {
		return nil, err
	}
	if !fc.Process.Tree.Claim(fc.Process.Epoch) {
		return nil, fmt.Errorf("failure context already resumed (epoch %d, tree at %d)", fc.Process.Epoch, fc.Process.Tree.Epoch())
	}
	return point, nil
}

func (e *Engine[E]) resume(ctx context.Context, id int64, fc FailureContext[E], point ResumePoint[E]) error {
	r := e.newRun(fc.Process.Tree)
	node := fc.Process.Node

	slog.Info("run resumed",
		"run", r.tree.Token(),
		"failure", id,
		"phase", fc.Phase,
		"node", node,
		"position", fc.Process.Position,
	)
	ev := r.event(EventResumed, node)
	ev.Phase = fc.Phase
	ev.FailureID = id
	ev.Code = fc.Code
	if len(fc.Process.Position) > 0 {
		ev.Instruction = fc.Process.Position[0]
	}
	if len(fc.Process.Position) > 1 {
		ev.Element = fc.Process.Position[1]
	}
	r.emit(ctx, ev)

	err := r.drive(ctx, node, point)
	if err == nil {
		err = r.unwind(ctx, node)
	}
	return r.finish(ctx, err)
}

func (e *Engine[E]) stale(ctx context.Context, id int64, t *Tree[E], reason string) error {
	slog.Warn("stale resumption", "failure", id, "reason", reason)
	err := &StaleResumptionError{ID: id, Reason: reason}

	ev := Event{
		Kind:        EventStaleResumption,
		Seq:         e.clock.Next(),
		Node:        -1,
		Instruction: -1,
		Element:     -1,
		FailureID:   id,
		Error:       reason,
	}
	if t != nil {
		ev.RunID = t.Token()
	}
	e.record(ctx, ev)
	return err
}

func (e *Engine[E]) record(ctx context.Context, ev Event) {
	if len(e.recorder) == 0 {
		return
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("recorder failed", "kind", ev.Kind, "seq", ev.Seq, "error", err)
	}
}
