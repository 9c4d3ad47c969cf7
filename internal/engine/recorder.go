package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/applier/internal/ir"
)

// EventKind names something that happened during a run.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventPhaseEntered    EventKind = "phase_entered"
	EventElementApplied  EventKind = "element_applied"
	EventFrozen          EventKind = "frozen"
	EventResumed         EventKind = "resumed"
	EventStaleResumption EventKind = "stale_resumption"
	EventRunFinished     EventKind = "run_finished"
)

// Event is one observation of a run.
//
// Instruction and Element are -1 when they do not apply. FailureID is 0
// unless the event concerns a stored failure. Code and Error are set on
// frozen, stale_resumption and failed run_finished events.
type Event struct {
	Kind        EventKind
	Seq         int64
	RunID       string
	Node        int
	Depth       int
	Phase       ir.Phase
	Instruction int
	Element     int
	FailureID   int64
	Code        StopCode
	Error       string
}

// Recorder receives run events in order. Errors are logged and otherwise
// ignored; a broken recorder never stops a run.
//
// Record is called on the goroutine driving the run, with a context that
// is not cancelled when the run's context is.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// multiRecorder forwards each event to every recorder.
type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryRecorder keeps events in memory.
//
// Thread-safety: safe for concurrent use.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Kind returns the recorded events of one kind.
func (m *MemoryRecorder) Kind(kind EventKind) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Phases returns the phases entered, in order.
func (m *MemoryRecorder) Phases() []ir.Phase {
	var out []ir.Phase
	for _, ev := range m.Kind(EventPhaseEntered) {
		out = append(out, ev.Phase)
	}
	return out
}

// Reset drops all recorded events.
func (m *MemoryRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
