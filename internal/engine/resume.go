package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/tree"
)

// Pending is a notification answer that may still be in flight.
type Pending[E any] = *future.Future[[]effect.Context[E]]

// Tree is the execution tree of one top-level run.
type Tree[E any] = tree.Tree[effect.Context[E]]

// ResumePoint says where inside a run node to continue, carrying exactly
// the state that position needs.
//
// Implemented by ForwardNotify, ForwardRetrieve, Execute, RetroNotify and
// RetroRetrieve.
type ResumePoint[E any] interface {
	Phase() ir.Phase
	resumePoint()
}

// ForwardNotify starts the node from the beginning.
type ForwardNotify struct{}

// ForwardRetrieve awaits the forward notification answer.
type ForwardRetrieve[E any] struct {
	Pending Pending[E]
}

// Execute applies the effect of instruction Instruction starting at
// element Element.
type Execute struct {
	Instruction int
	Element     int
}

// RetroNotify reports completion of instruction Instruction.
type RetroNotify struct {
	Instruction int
}

// RetroRetrieve awaits the retro notification answer for instruction
// Instruction.
type RetroRetrieve[E any] struct {
	Instruction int
	Pending     Pending[E]
}

func (ForwardNotify) Phase() ir.Phase      { return ir.ForwardNotification }
func (ForwardRetrieve[E]) Phase() ir.Phase { return ir.ForwardRetrieval }
func (Execute) Phase() ir.Phase            { return ir.EffectExecution }
func (RetroNotify) Phase() ir.Phase        { return ir.RetroNotification }
func (RetroRetrieve[E]) Phase() ir.Phase   { return ir.RetroRetrieval }

func (ForwardNotify) resumePoint()      {}
func (ForwardRetrieve[E]) resumePoint() {}
func (Execute) resumePoint()            {}
func (RetroNotify) resumePoint()        {}
func (RetroRetrieve[E]) resumePoint()   {}

// ProcessContext locates a frozen run: which node of which tree, the index
// position inside that node, and the answer being awaited, if any.
//
// Position is [] for the forward phases, [instruction, element] for effect
// execution and [instruction] for the retro phases. Epoch is the tree's
// epoch when the run froze; resuming claims it, so a context resumes once.
type ProcessContext[E any] struct {
	Tree     *Tree[E]
	Node     tree.NodeID
	Position []int
	Pending  Pending[E]
	Epoch    uint64
}

// FailureContext is a frozen run plus the reason it froze.
type FailureContext[E any] struct {
	Phase   ir.Phase
	Process ProcessContext[E]
	Code    StopCode
	Cause   error
}

func processAt[E any](t *Tree[E], node tree.NodeID, point ResumePoint[E]) ProcessContext[E] {
	pc := ProcessContext[E]{Tree: t, Node: node, Position: []int{}, Epoch: t.Epoch()}
	switch p := point.(type) {
	case ForwardRetrieve[E]:
		pc.Pending = p.Pending
	case Execute:
		pc.Position = []int{p.Instruction, p.Element}
	case RetroNotify:
		pc.Position = []int{p.Instruction}
	case RetroRetrieve[E]:
		pc.Position = []int{p.Instruction}
		pc.Pending = p.Pending
	}
	return pc
}

// ResumePoint rebuilds the point the context was frozen at. It fails if
// the position or pending answer does not have the shape the phase needs.
func (fc FailureContext[E]) ResumePoint() (ResumePoint[E], error) {
	pos, pending := fc.Process.Position, fc.Process.Pending
	want := map[ir.Phase]int{
		ir.ForwardNotification: 0,
		ir.ForwardRetrieval:    0,
		ir.EffectExecution:     2,
		ir.RetroNotification:   1,
		ir.RetroRetrieval:      1,
	}
	n, ok := want[fc.Phase]
	if !ok {
		return nil, fmt.Errorf("unknown phase %s", fc.Phase)
	}
	if len(pos) != n {
		return nil, fmt.Errorf("%s needs a position of length %d, got %v", fc.Phase, n, pos)
	}
	if slices.ContainsFunc(pos, func(i int) bool { return i < 0 }) {
		return nil, fmt.Errorf("negative position %v", pos)
	}
	needsPending := fc.Phase == ir.ForwardRetrieval || fc.Phase == ir.RetroRetrieval
	if needsPending != (pending != nil) {
		if needsPending {
			return nil, fmt.Errorf("%s needs a pending answer", fc.Phase)
		}
		return nil, fmt.Errorf("%s carries an unexpected pending answer", fc.Phase)
	}

	switch fc.Phase {
	case ir.ForwardNotification:
		return ForwardNotify{}, nil
	case ir.ForwardRetrieval:
		return ForwardRetrieve[E]{Pending: pending}, nil
	case ir.EffectExecution:
		return Execute{Instruction: pos[0], Element: pos[1]}, nil
	case ir.RetroNotification:
		return RetroNotify{Instruction: pos[0]}, nil
	default:
		return RetroRetrieve[E]{Instruction: pos[0], Pending: pending}, nil
	}
}

// check verifies that the point still fits the tree. Trees only grow, so
// a point that no longer fits was already resumed past. Points that leave
// no mark in the tree (a retro notification, an empty answer) are caught
// by the epoch claim instead.
func check[E any](t *Tree[E], node tree.NodeID, point ResumePoint[E]) error {
	if t == nil {
		return fmt.Errorf("no execution tree")
	}
	if !t.Has(node) {
		return fmt.Errorf("node %d does not exist", node)
	}
	if !t.Kind(node).Run() {
		return fmt.Errorf("node %d is a %s node, not a run", node, t.Kind(node))
	}

	instructions := t.NumChildren(node)
	instruction := func(i int) (tree.NodeID, error) {
		id, ok := t.Child(node, i)
		if !ok {
			return tree.None, fmt.Errorf("instruction %d out of range (%d instructions)", i, instructions)
		}
		return id, nil
	}

	switch p := point.(type) {
	case ForwardNotify, ForwardRetrieve[E]:
		if instructions > 0 {
			return fmt.Errorf("node %d already retrieved its instructions", node)
		}
	case Execute:
		id, err := instruction(p.Instruction)
		if err != nil {
			return err
		}
		if t.NumChildren(id) > 0 {
			return fmt.Errorf("instruction %d already completed", p.Instruction)
		}
		if n := t.Data(id).Len(); p.Element >= n {
			return fmt.Errorf("element %d out of range (%d elements)", p.Element, n)
		}
	case RetroNotify:
		id, err := instruction(p.Instruction)
		if err != nil {
			return err
		}
		if t.NumChildren(id) == 0 {
			return fmt.Errorf("instruction %d has not completed", p.Instruction)
		}
	case RetroRetrieve[E]:
		id, err := instruction(p.Instruction)
		if err != nil {
			return err
		}
		done, ok := t.Child(id, 0)
		if !ok {
			return fmt.Errorf("instruction %d has not completed", p.Instruction)
		}
		if t.NumChildren(done) > 0 {
			return fmt.Errorf("instruction %d already retrieved its responses", p.Instruction)
		}
	}
	return nil
}

// failed reports whether p completed with an error. Such an answer can
// never succeed, so resumption sends the notification again.
func failed[E any](p Pending[E]) bool {
	_, ok, err := p.Result()
	return ok && err != nil
}
