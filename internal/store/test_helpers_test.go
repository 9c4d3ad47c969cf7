package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
)

// createTestStore opens a fresh journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with no instruction or element.
func createTestEvent(kind engine.EventKind, runID string, seq int64) engine.Event {
	return engine.Event{
		Kind:        kind,
		Seq:         seq,
		RunID:       runID,
		Instruction: -1,
		Element:     -1,
	}
}

func createTestFrozen(runID string, seq, failureID int64, phase ir.Phase, code engine.StopCode) engine.Event {
	ev := createTestEvent(engine.EventFrozen, runID, seq)
	ev.FailureID = failureID
	ev.Phase = phase
	ev.Code = code
	ev.Error = "boom"
	return ev
}
