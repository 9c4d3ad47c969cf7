package harness

import "github.com/roach88/applier/internal/engine"

// TraceEvent is the stable projection of an engine event kept in traces.
// Error text is left out; codes and positions identify a stop.
type TraceEvent struct {
	Kind        string `json:"kind"`
	Seq         int64  `json:"seq"`
	Node        int    `json:"node"`
	Depth       int    `json:"depth"`
	Phase       string `json:"phase,omitempty"`
	Instruction int    `json:"instruction"`
	Element     int    `json:"element"`
	FailureID   int64  `json:"failure_id,omitempty"`
	Code        string `json:"code,omitempty"`
}

func traceEvent(ev engine.Event) TraceEvent {
	te := TraceEvent{
		Kind:        string(ev.Kind),
		Seq:         ev.Seq,
		Node:        ev.Node,
		Depth:       ev.Depth,
		Instruction: ev.Instruction,
		Element:     ev.Element,
		FailureID:   ev.FailureID,
		Code:        string(ev.Code),
	}
	if ev.Phase.Valid() {
		te.Phase = ev.Phase.String()
	}
	return te
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Outcomes has one entry per step: "ok", "stale", or a stop code.
	Outcomes []string `json:"outcomes"`

	// Applied lists the elements the effect applied, in order.
	Applied []int `json:"applied"`

	// Log interleaves notifications ("START [1 2]") and applications
	// ("apply(1)") in the order they happened.
	Log []string `json:"log"`

	// Trace contains every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// OpenFailures counts failures left in the registry.
	OpenFailures int `json:"open_failures"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []string{},
		Applied:  []int{},
		Log:      []string{},
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
