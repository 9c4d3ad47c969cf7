package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Order    string // "dive" | "sweep"
}

// TraceEvent is one journaled event in the trace timeline.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Kind        string `json:"kind"`
	Node        int    `json:"node"`
	Depth       int    `json:"depth"`
	Phase       string `json:"phase,omitempty"`
	Instruction int    `json:"instruction"`
	Element     int    `json:"element"`
	FailureID   int64  `json:"failure_id,omitempty"`
	Code        string `json:"code,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RunSummary is one run in the run listing.
type RunSummary struct {
	RunID       string `json:"run_id"`
	StartedSeq  int64  `json:"started_seq"`
	FinishedSeq int64  `json:"finished_seq,omitempty"`
	Outcome     string `json:"outcome"`
	Calls       int    `json:"calls"`
}

// TraceResult holds the trace of a single run.
type TraceResult struct {
	Run      RunSummary   `json:"run"`
	Order    string       `json:"order"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Applied     int  `json:"applied"`
	Frozen      int  `json:"frozen"`
	Resumed     int  `json:"resumed"`
	MaxDepth    int  `json:"max_depth"`
	IsComplete  bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled runs and their events",
		Long: `Read a run journal written by "applier run --db".

Without --run, lists every journaled run. With --run, prints that run's
events. The dive order is execution order, which walks nested runs
depth-first; the sweep order groups events by tree depth.

Examples:
  applier trace --db ./journal.db
  applier trace --db ./journal.db --run 0190b2c4-...
  applier trace --db ./journal.db --run 0190b2c4-... --order sweep --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to trace (lists runs when empty)")
	cmd.Flags().StringVar(&opts.Order, "order", string(store.OrderDive), "event order (dive|sweep)")

	return cmd
}

// openJournal opens an existing journal. store.Open would create a fresh
// database at a mistyped path, so a missing file is a command error.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	order, err := store.ParseOrder(opts.Order)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --order", err)
	}

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		summaries := make([]RunSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, summarizeRun(r))
		}
		if formatter.JSON() {
			return formatter.Report(summaries, "", nil)
		}
		return outputRunsText(cmd.OutOrStdout(), summaries)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		if formatter.JSON() {
			return formatter.Report(TraceResult{
				Run:      RunSummary{RunID: opts.RunID},
				Order:    string(order),
				Timeline: []TraceEvent{},
			}, opts.RunID, nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for run: %s\n", opts.RunID)
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	entries, err := st.ReadRunEvents(ctx, opts.RunID, order)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Run:      summarizeRun(run),
		Order:    string(order),
		Timeline: buildTimeline(entries),
	}
	result.Stats = traceStats(result.Timeline, run)

	formatter.VerboseLog("read %d event(s) for run %s", len(entries), opts.RunID)
	if formatter.JSON() {
		return formatter.Report(result, opts.RunID, nil)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		RunID:       r.ID,
		StartedSeq:  r.StartedSeq,
		FinishedSeq: r.FinishedSeq,
		Outcome:     r.Outcome,
		Calls:       r.Calls,
	}
}

// buildTimeline converts journal entries to trace events.
func buildTimeline(entries []store.Entry) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(entries))
	for _, e := range entries {
		te := TraceEvent{
			Seq:         e.Seq,
			Kind:        string(e.Kind),
			Node:        e.Node,
			Depth:       e.Depth,
			Instruction: e.Instruction,
			Element:     e.Element,
			FailureID:   e.FailureID,
			Code:        string(e.Code),
			Error:       e.Error,
		}
		if e.Phase != ir.PhaseUnknown {
			te.Phase = e.Phase.String()
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func traceStats(timeline []TraceEvent, run store.Run) TraceStats {
	stats := TraceStats{
		TotalEvents: len(timeline),
		IsComplete:  run.Outcome == store.OutcomeOK,
	}
	for _, ev := range timeline {
		switch engine.EventKind(ev.Kind) {
		case engine.EventElementApplied:
			stats.Applied++
		case engine.EventFrozen:
			stats.Frozen++
		case engine.EventResumed:
			stats.Resumed++
		}
		if ev.Depth > stats.MaxDepth {
			stats.MaxDepth = ev.Depth
		}
	}
	return stats
}

func outputRunsText(w io.Writer, runs []RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs journaled.")
		return nil
	}
	fmt.Fprintln(w, "=== Runs ===")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %-16s calls=%d seq=%d..%s\n",
			r.RunID, r.Outcome, r.Calls, r.StartedSeq, finishedSeq(r.FinishedSeq))
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.RunID)
	fmt.Fprintf(w, "Outcome: %s (%d call(s))\n", result.Run.Outcome, result.Run.Calls)
	fmt.Fprintf(w, "Order: %s\n", result.Order)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Applied:      %d\n", result.Stats.Applied)
	fmt.Fprintf(w, "  Frozen:       %d\n", result.Stats.Frozen)
	fmt.Fprintf(w, "  Resumed:      %d\n", result.Stats.Resumed)
	fmt.Fprintf(w, "  Max Depth:    %d\n", result.Stats.MaxDepth)
	return nil
}

// formatTimelineEvent formats a single timeline event, indented by depth.
func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	indent := strings.Repeat("  ", ev.Depth)
	line := fmt.Sprintf("  [%d] %s%s", ev.Seq, indent, ev.Kind)

	switch engine.EventKind(ev.Kind) {
	case engine.EventPhaseEntered:
		line += " " + ev.Phase
		if ev.Instruction >= 0 {
			line += fmt.Sprintf(" instr=%d", ev.Instruction)
		}
	case engine.EventElementApplied:
		line += fmt.Sprintf(" instr=%d elem=%d", ev.Instruction, ev.Element)
	case engine.EventFrozen:
		line += fmt.Sprintf(" #%d %s at %s", ev.FailureID, ev.Code, ev.Phase)
	case engine.EventResumed:
		if ev.FailureID > 0 {
			line += fmt.Sprintf(" #%d", ev.FailureID)
		}
	case engine.EventStaleResumption, engine.EventRunFinished:
		if ev.Code != "" {
			line += " " + ev.Code
		}
	}
	fmt.Fprintln(w, line)

	if verbose {
		fmt.Fprintf(w, "       node=%d depth=%d\n", ev.Node, ev.Depth)
		if ev.Error != "" {
			fmt.Fprintf(w, "       error: %s\n", ev.Error)
		}
	}
}

func finishedSeq(seq int64) string {
	if seq == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", seq)
}
