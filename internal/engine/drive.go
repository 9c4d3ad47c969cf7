package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/tree"
)

var errNoEffect = errors.New("instruction has no effect")

// run is the state of one Apply, ApplyFrom or Resume call.
type run[E any] struct {
	*Engine[E]
	tree  *Tree[E]
	quota *QuotaEnforcer
}

func (e *Engine[E]) newRun(t *Tree[E]) *run[E] {
	return &run[E]{Engine: e, tree: t, quota: NewQuotaEnforcer(e.maxSteps)}
}

// drive runs node from point to the end of its cycle. Response nodes
// created along the way are driven recursively, in order, before the
// next instruction's retro notification.
//
// Errors are *StoppedError values from the node where the run froze and
// are returned unchanged by every enclosing drive.
func (r *run[E]) drive(ctx context.Context, node tree.NodeID, point ResumePoint[E]) error {
	if _, fresh := point.(ForwardNotify); fresh {
		if err := r.quota.Check(r.tree.Token()); err != nil {
			return r.freeze(ctx, node, point, CodeQuotaExceeded, err)
		}
	}

	start := point.Phase()
	first, firstElement := 0, 0
	var pending Pending[E]
	switch p := point.(type) {
	case ForwardRetrieve[E]:
		pending = p.Pending
	case Execute:
		first, firstElement = p.Instruction, p.Element
	case RetroNotify:
		first = p.Instruction
	case RetroRetrieve[E]:
		first, pending = p.Instruction, p.Pending
	}

	if start.Forward() {
		if pending == nil || failed(pending) {
			var err error
			pending, err = r.notify(ctx, node, r.tree.Data(node), ForwardNotify{})
			if err != nil {
				return err
			}
		}
		got, err := r.retrieve(ctx, node, ForwardRetrieve[E]{Pending: pending}, pending)
		if err != nil {
			return err
		}
		if len(got) == 0 {
			slog.Warn("notifier returned no instructions", "run", r.tree.Token(), "node", node)
		}
		for _, ec := range got {
			r.tree.Add(node, tree.KindInstruction, ec)
		}
	}

	instructions := r.tree.Children(node)
	if start <= ir.EffectExecution {
		for i := first; i < len(instructions); i++ {
			from := 0
			if start == ir.EffectExecution && i == first {
				from = firstElement
			}
			if err := r.execute(ctx, node, i, instructions[i], from); err != nil {
				return err
			}
		}
		first = 0
	}

	for i := first; i < len(instructions); i++ {
		var awaiting Pending[E]
		if start == ir.RetroRetrieval && i == first {
			awaiting = pending
		}
		if err := r.retro(ctx, node, i, instructions[i], awaiting); err != nil {
			return err
		}
	}
	return nil
}

// execute applies instruction i element by element from element from,
// then appends its End record.
func (r *run[E]) execute(ctx context.Context, node tree.NodeID, i int, instr tree.NodeID, from int) error {
	ec := r.tree.Data(instr)
	r.enter(ctx, node, Execute{Instruction: i, Element: from})

	eff := ec.Effect()
	for j := from; j < ec.Len(); j++ {
		at := Execute{Instruction: i, Element: j}
		if err := r.checkpoint(ctx, node, at); err != nil {
			return err
		}
		if eff == nil {
			return r.freeze(ctx, node, at, CodeEffectFailure, errNoEffect)
		}
		if err := eff.Apply(ctx, ec.At(j)); err != nil {
			return r.freeze(ctx, node, at, stopCode(ctx, err, CodeEffectFailure), err)
		}

		ev := r.event(EventElementApplied, node)
		ev.Phase = ir.EffectExecution
		ev.Instruction = i
		ev.Element = j
		r.emit(ctx, ev)
	}

	r.tree.Add(instr, tree.KindCompletion, ec.Completed())
	return nil
}

// retro reports completion of instruction i and drives the follow-on work
// the notifier answers with. A non-nil pending is awaited instead of
// notifying again.
func (r *run[E]) retro(ctx context.Context, node tree.NodeID, i int, instr tree.NodeID, pending Pending[E]) error {
	done, _ := r.tree.Child(instr, 0)

	if pending == nil || failed(pending) {
		var err error
		pending, err = r.notify(ctx, node, r.tree.Data(done), RetroNotify{Instruction: i})
		if err != nil {
			return err
		}
	}
	got, err := r.retrieve(ctx, node, RetroRetrieve[E]{Instruction: i, Pending: pending}, pending)
	if err != nil {
		return err
	}

	for _, ec := range got {
		r.tree.Add(done, tree.KindResponse, ec)
	}
	for k := 0; k < r.tree.NumChildren(done); k++ {
		child, _ := r.tree.Child(done, k)
		if err := r.drive(ctx, child, ForwardNotify{}); err != nil {
			return err
		}
	}
	return nil
}

// unwind finishes what was left undone above a node that just completed
// out of order: the response nodes after it under the same End record,
// then the parent run from its next retro notification, and so on up to
// the root. The run nodes it starts are the ones tree.Dive(n) yields after
// n, in the same order.
func (r *run[E]) unwind(ctx context.Context, n tree.NodeID) error {
	for r.tree.Kind(n) == tree.KindResponse {
		done, _ := r.tree.Parent(n)
		instr, _ := r.tree.Parent(done)
		parent, _ := r.tree.Parent(instr)

		for k := r.tree.Index(n) + 1; k < r.tree.NumChildren(done); k++ {
			sibling, _ := r.tree.Child(done, k)
			if err := r.drive(ctx, sibling, ForwardNotify{}); err != nil {
				return err
			}
		}
		if err := r.drive(ctx, parent, RetroNotify{Instruction: r.tree.Index(instr) + 1}); err != nil {
			return err
		}
		n = parent
	}
	return nil
}

// notify sends ec for a ForwardNotify or RetroNotify point.
func (r *run[E]) notify(ctx context.Context, node tree.NodeID, ec effect.Context[E], point ResumePoint[E]) (Pending[E], error) {
	if err := r.checkpoint(ctx, node, point); err != nil {
		return nil, err
	}
	r.enter(ctx, node, point)

	pending, err := r.notifier.Notify(ctx, ec)
	if err != nil {
		return nil, r.freeze(ctx, node, point, stopCode(ctx, err, CodeNotifierFailure), err)
	}
	if pending == nil {
		pending = future.Value[[]effect.Context[E]](nil)
	}
	return pending, nil
}

// retrieve awaits pending for a ForwardRetrieve or RetroRetrieve point.
func (r *run[E]) retrieve(ctx context.Context, node tree.NodeID, point ResumePoint[E], pending Pending[E]) ([]effect.Context[E], error) {
	if err := r.checkpoint(ctx, node, point); err != nil {
		return nil, err
	}
	r.enter(ctx, node, point)

	got, err := pending.Get(ctx)
	if err != nil {
		code := CodeNotifierFailure
		if ctx.Err() != nil && !failed(pending) {
			code = CodeCancelled
		}
		return nil, r.freeze(ctx, node, point, code, err)
	}
	return got, nil
}

// checkpoint sleeps while asked to and then freezes at point if ctx is
// done. Every suspension goes through here.
func (r *run[E]) checkpoint(ctx context.Context, node tree.NodeID, point ResumePoint[E]) error {
	if r.sleeper.Wait(ctx) {
		slog.Debug("woke from sleep", "run", r.tree.Token(), "node", node, "phase", point.Phase())
	}
	if err := ctx.Err(); err != nil {
		return r.freeze(ctx, node, point, CodeCancelled, err)
	}
	return nil
}

// freeze stores the failure and returns the error that carries its id.
func (r *run[E]) freeze(ctx context.Context, node tree.NodeID, point ResumePoint[E], code StopCode, cause error) error {
	fc := FailureContext[E]{
		Phase:   point.Phase(),
		Process: processAt(r.tree, node, point),
		Code:    code,
		Cause:   cause,
	}
	id := r.registry.Store(fc)

	attrs := []any{
		"run", r.tree.Token(),
		"failure", id,
		"phase", fc.Phase,
		"code", code,
		"node", node,
		"position", fc.Process.Position,
		"error", cause,
	}
	// Element types outside ir.FromGo have no digest.
	if digest, err := r.tree.Data(node).Digest(); err == nil {
		attrs = append(attrs, "context", digest)
	}
	slog.Warn("run frozen", attrs...)
	ev := r.event(EventFrozen, node)
	ev.Phase = fc.Phase
	ev.FailureID = id
	ev.Code = code
	ev.Error = cause.Error()
	if len(fc.Process.Position) > 0 {
		ev.Instruction = fc.Process.Position[0]
	}
	if len(fc.Process.Position) > 1 {
		ev.Element = fc.Process.Position[1]
	}
	r.emit(ctx, ev)

	return &StoppedError{ID: id, Phase: fc.Phase, Code: code, RunID: r.tree.Token(), Cause: cause}
}

// finish records the outcome of the call and passes err through.
func (r *run[E]) finish(ctx context.Context, err error) error {
	ev := r.event(EventRunFinished, tree.Root)
	outcome := "ok"
	var se *StoppedError
	if errors.As(err, &se) {
		ev.Phase = se.Phase
		ev.FailureID = se.ID
		ev.Code = se.Code
		ev.Error = se.Error()
		outcome = string(se.Code)
	}
	r.emit(ctx, ev)
	slog.Info("run finished", "run", r.tree.Token(), "outcome", outcome, "steps", r.quota.Current())
	return err
}

func (r *run[E]) enter(ctx context.Context, node tree.NodeID, point ResumePoint[E]) {
	ev := r.event(EventPhaseEntered, node)
	ev.Phase = point.Phase()
	switch p := point.(type) {
	case Execute:
		ev.Instruction = p.Instruction
	case RetroNotify:
		ev.Instruction = p.Instruction
	case RetroRetrieve[E]:
		ev.Instruction = p.Instruction
	}
	slog.Debug("phase entered", "run", r.tree.Token(), "node", node, "phase", ev.Phase, "instruction", ev.Instruction)
	r.emit(ctx, ev)
}

func (r *run[E]) event(kind EventKind, node tree.NodeID) Event {
	return Event{
		Kind:        kind,
		RunID:       r.tree.Token(),
		Node:        int(node),
		Depth:       r.tree.Depth(node),
		Instruction: -1,
		Element:     -1,
	}
}

func (r *run[E]) emit(ctx context.Context, ev Event) {
	ev.Seq = r.clock.Next()
	r.record(ctx, ev)
}

// stopCode classifies err. Interruption and the caller's own cancellation
// are CodeCancelled; anything else is fallback.
func stopCode(ctx context.Context, err error, fallback StopCode) StopCode {
	switch {
	case errors.Is(err, effect.ErrInterrupted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil:
		return CodeCancelled
	default:
		return fallback
	}
}
