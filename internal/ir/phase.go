package ir

import "fmt"

// Phase marks the points at which a run can stop.
//
// Phases execute strictly in order for every instruction:
//
//	ForwardNotification → ForwardRetrieval → EffectExecution → RetroNotification → RetroRetrieval
//
// RetroRetrieval has no successor. A new cycle starts by driving a nested
// run, never by wrapping the phase around.
type Phase int

const (
	// PhaseUnknown is the zero value and never entered.
	PhaseUnknown Phase = iota
	// ForwardNotification sends a Start context to the notifier.
	ForwardNotification
	// ForwardRetrieval awaits the notifier's instructions.
	ForwardRetrieval
	// EffectExecution applies the effect element by element.
	EffectExecution
	// RetroNotification sends an End context for a completed instruction.
	RetroNotification
	// RetroRetrieval awaits follow-on work for a completed instruction.
	RetroRetrieval
)

var phaseNames = map[Phase]string{
	PhaseUnknown:        "UNKNOWN",
	ForwardNotification: "FORWARD_NOTIFICATION",
	ForwardRetrieval:    "FORWARD_RETRIEVAL",
	EffectExecution:     "EFFECT_EXECUTION",
	RetroNotification:   "RETRO_NOTIFICATION",
	RetroRetrieval:      "RETRO_RETRIEVAL",
}

// Order returns the 1-based position of the phase in the cycle.
func (p Phase) Order() int {
	return int(p)
}

// Valid reports whether p is one of the five cycle phases.
func (p Phase) Valid() bool {
	return p >= ForwardNotification && p <= RetroRetrieval
}

// Next returns the following phase.
// Returns (PhaseUnknown, false) for RetroRetrieval and invalid phases.
func (p Phase) Next() (Phase, bool) {
	if !p.Valid() || p == RetroRetrieval {
		return PhaseUnknown, false
	}
	return p + 1, true
}

// Forward reports whether the phase happens before effect execution.
func (p Phase) Forward() bool {
	return p == ForwardNotification || p == ForwardRetrieval
}

// Retro reports whether the phase happens after effect execution.
func (p Phase) Retro() bool {
	return p == RetroNotification || p == RetroRetrieval
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s && p.Valid() {
			return p, nil
		}
	}
	return PhaseUnknown, fmt.Errorf("unknown phase %q", s)
}

// Phases returns the five cycle phases in order.
func Phases() []Phase {
	return []Phase{ForwardNotification, ForwardRetrieval, EffectExecution, RetroNotification, RetroRetrieval}
}

// Message tags an effect context with its lifecycle position.
type Message int

const (
	// Start marks an instruction about to be notified or executed.
	Start Message = iota + 1
	// End marks a completed instruction about to be notified retrospectively.
	End
)

func (m Message) String() string {
	switch m {
	case Start:
		return "START"
	case End:
		return "END"
	default:
		return fmt.Sprintf("Message(%d)", int(m))
	}
}
