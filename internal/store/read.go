package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
)

// Run outcomes besides the engine's stop codes.
const (
	OutcomeRunning = "running"
	OutcomeOK      = "ok"
)

// Run is one row of the runs table.
type Run struct {
	ID          string
	StartedSeq  int64
	FinishedSeq int64 // 0 while running
	Outcome     string
	Calls       int
}

// Entry is a journaled event.
type Entry struct {
	ID string
	engine.Event
}

// Failure is one row of the failures table.
type Failure struct {
	RunID       string
	ID          int64
	Seq         int64
	Phase       ir.Phase
	Code        engine.StopCode
	Node        int
	Instruction int
	Element     int
	Error       string
	Consumed    bool
	ConsumedSeq int64
}

// Order selects how ReadRunEvents sorts a run's events.
type Order string

const (
	// OrderDive is execution order, which walks the tree depth-first.
	OrderDive Order = "dive"
	// OrderSweep groups events by tree depth, shallowest first.
	OrderSweep Order = "sweep"
)

// ParseOrder validates an order name.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderDive, OrderSweep:
		return Order(s), nil
	default:
		return "", fmt.Errorf("unknown order %q (want %s or %s)", s, OrderDive, OrderSweep)
	}
}

// ListRuns returns every journaled run ordered by start.
//
// Returns empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_seq, COALESCE(finished_seq, 0), outcome, calls
		FROM runs
		ORDER BY started_seq ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedSeq, &r.FinishedSeq, &r.Outcome, &r.Calls); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run, or sql.ErrNoRows wrapped if it was never journaled.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_seq, COALESCE(finished_seq, 0), outcome, calls
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&r.ID, &r.StartedSeq, &r.FinishedSeq, &r.Outcome, &r.Calls)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	return r, nil
}

// ReadRunEvents returns the events of one run.
// Ties are broken by id COLLATE BINARY so results are deterministic.
//
// Returns empty slice (not nil) if no events exist for the run.
func (s *Store) ReadRunEvents(ctx context.Context, runID string, order Order) ([]Entry, error) {
	orderBy := "seq ASC, id COLLATE BINARY ASC"
	if order == OrderSweep {
		orderBy = "depth ASC, " + orderBy
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, kind, node, depth, phase, instruction, element, failure_id, code, error
		FROM events
		WHERE run_id = ?
		ORDER BY `+orderBy, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// ListFailures returns journaled failures ordered by seq. With openOnly,
// failures already consumed by a resumption are skipped.
//
// Returns empty slice (not nil) if none match.
func (s *Store) ListFailures(ctx context.Context, openOnly bool) ([]Failure, error) {
	query := `
		SELECT run_id, failure_id, seq, phase, code, node, instruction, element, error, status, COALESCE(consumed_seq, 0)
		FROM failures
	`
	if openOnly {
		query += ` WHERE status = 'open'`
	}
	query += ` ORDER BY seq ASC, run_id COLLATE BINARY ASC, failure_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	failures := []Failure{}
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return failures, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e     Entry
		kind  string
		phase string
		code  string
	)
	err := rows.Scan(
		&e.ID,
		&e.RunID,
		&e.Seq,
		&kind,
		&e.Node,
		&e.Depth,
		&phase,
		&e.Instruction,
		&e.Element,
		&e.FailureID,
		&code,
		&e.Error,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan event: %w", err)
	}

	e.Kind = engine.EventKind(kind)
	e.Code = engine.StopCode(code)
	e.Phase, err = unmarshalPhase(phase)
	if err != nil {
		return Entry{}, fmt.Errorf("event %s: %w", e.ID, err)
	}
	return e, nil
}

func scanFailure(rows *sql.Rows) (Failure, error) {
	var (
		f      Failure
		phase  string
		code   string
		status string
	)
	err := rows.Scan(
		&f.RunID,
		&f.ID,
		&f.Seq,
		&phase,
		&code,
		&f.Node,
		&f.Instruction,
		&f.Element,
		&f.Error,
		&status,
		&f.ConsumedSeq,
	)
	if err != nil {
		return Failure{}, fmt.Errorf("scan failure: %w", err)
	}

	f.Code = engine.StopCode(code)
	f.Consumed = status == "consumed"
	f.Phase, err = unmarshalPhase(phase)
	if err != nil {
		return Failure{}, fmt.Errorf("failure %s/%d: %w", f.RunID, f.ID, err)
	}
	return f, nil
}
