package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/applier/internal/engine"
)

// Record implements engine.Recorder. The event row and its effect on runs
// and failures are written in one transaction.
//
// Stale resumptions of unknown failures carry no run token; they are kept
// under run_id ''.
func (s *Store) Record(ctx context.Context, ev engine.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record %s: begin tx: %w", ev.Kind, err)
	}
	defer tx.Rollback()

	if err := s.writeEvent(ctx, tx, ev); err != nil {
		return fmt.Errorf("record %s: %w", ev.Kind, err)
	}

	switch ev.Kind {
	case engine.EventRunStarted:
		err = startRun(ctx, tx, ev)
	case engine.EventResumed:
		err = resumeRun(ctx, tx, ev)
	case engine.EventFrozen:
		err = writeFailure(ctx, tx, ev)
	case engine.EventRunFinished:
		err = finishRun(ctx, tx, ev)
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", ev.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record %s: commit: %w", ev.Kind, err)
	}
	return nil
}

func (s *Store) writeEvent(ctx context.Context, tx *sql.Tx, ev engine.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, run_id, seq, kind, node, depth, phase, instruction, element, failure_id, code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.newID(),
		ev.RunID,
		ev.Seq,
		string(ev.Kind),
		ev.Node,
		ev.Depth,
		marshalPhase(ev.Phase),
		ev.Instruction,
		ev.Element,
		ev.FailureID,
		string(ev.Code),
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func startRun(ctx context.Context, tx *sql.Tx, ev engine.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_seq)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, ev.RunID, ev.Seq)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// resumeRun reopens the run and consumes the failure being resumed. A run
// first seen through a resumption is created on the spot.
func resumeRun(ctx context.Context, tx *sql.Tx, ev engine.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_seq)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome = 'running',
			finished_seq = NULL,
			calls = calls + 1
	`, ev.RunID, ev.Seq)
	if err != nil {
		return fmt.Errorf("reopen run: %w", err)
	}

	if ev.FailureID == 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE failures
		SET status = 'consumed', consumed_seq = ?
		WHERE run_id = ? AND failure_id = ? AND status = 'open'
	`, ev.Seq, ev.RunID, ev.FailureID)
	if err != nil {
		return fmt.Errorf("consume failure: %w", err)
	}
	return nil
}

func writeFailure(ctx context.Context, tx *sql.Tx, ev engine.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_seq)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, ev.RunID, ev.Seq)
	if err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO failures
		(run_id, failure_id, seq, phase, code, node, instruction, element, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, failure_id) DO NOTHING
	`,
		ev.RunID,
		ev.FailureID,
		ev.Seq,
		marshalPhase(ev.Phase),
		string(ev.Code),
		ev.Node,
		ev.Instruction,
		ev.Element,
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

func finishRun(ctx context.Context, tx *sql.Tx, ev engine.Event) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET outcome = ?, finished_seq = ?
		WHERE run_id = ?
	`, outcomeOf(ev), ev.Seq, ev.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
