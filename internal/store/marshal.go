package store

import (
	"fmt"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
)

// marshalPhase stores valid phases by name and everything else as ''.
func marshalPhase(p ir.Phase) string {
	if !p.Valid() {
		return ""
	}
	return p.String()
}

// unmarshalPhase parses a stored phase. '' is PhaseUnknown.
func unmarshalPhase(s string) (ir.Phase, error) {
	if s == "" {
		return ir.PhaseUnknown, nil
	}
	p, err := ir.ParsePhase(s)
	if err != nil {
		return ir.PhaseUnknown, fmt.Errorf("unmarshal phase: %w", err)
	}
	return p, nil
}

// outcomeOf returns the run outcome a run_finished event reports.
func outcomeOf(ev engine.Event) string {
	if ev.Code == "" {
		return OutcomeOK
	}
	return string(ev.Code)
}
