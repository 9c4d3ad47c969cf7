package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// FailuresOptions holds flags for the failures command.
type FailuresOptions struct {
	*RootOptions
	Database string
	Open     bool
}

// FailureRecord is one journaled failure.
type FailureRecord struct {
	RunID       string `json:"run_id"`
	FailureID   int64  `json:"failure_id"`
	Seq         int64  `json:"seq"`
	Phase       string `json:"phase"`
	Code        string `json:"code"`
	Node        int    `json:"node"`
	Instruction int    `json:"instruction"`
	Element     int    `json:"element"`
	Error       string `json:"error,omitempty"`
	Consumed    bool   `json:"consumed"`
	ConsumedSeq int64  `json:"consumed_seq,omitempty"`
}

// NewFailuresCommand creates the failures command.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FailuresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List journaled failures",
		Long: `List the failure points recorded in a run journal.

A failure is consumed once a resumption has used it. --open shows only
failures that can still be resumed.

Examples:
  applier failures --db ./journal.db
  applier failures --db ./journal.db --open --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailures(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "only failures not yet resumed")

	return cmd
}

func runFailures(ctx context.Context, opts *FailuresOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	failures, err := st.ListFailures(ctx, opts.Open)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list failures", err)
	}

	records := make([]FailureRecord, 0, len(failures))
	for _, f := range failures {
		records = append(records, FailureRecord{
			RunID:       f.RunID,
			FailureID:   f.ID,
			Seq:         f.Seq,
			Phase:       f.Phase.String(),
			Code:        string(f.Code),
			Node:        f.Node,
			Instruction: f.Instruction,
			Element:     f.Element,
			Error:       f.Error,
			Consumed:    f.Consumed,
			ConsumedSeq: f.ConsumedSeq,
		})
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	formatter.VerboseLog("%d failure(s) journaled", len(records))
	if formatter.JSON() {
		return formatter.Report(records, "", nil)
	}
	outputFailuresText(cmd.OutOrStdout(), records, opts.Verbose)
	return nil
}

func outputFailuresText(w io.Writer, records []FailureRecord, verbose bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No failures.")
		return
	}
	for _, f := range records {
		status := "open"
		if f.Consumed {
			status = fmt.Sprintf("consumed@%d", f.ConsumedSeq)
		}
		fmt.Fprintf(w, "#%d %s %s at %s (run %s, %s)\n", f.FailureID, f.Code, status, f.Phase, f.RunID, positionOf(f))
		if verbose && f.Error != "" {
			fmt.Fprintf(w, "   error: %s\n", f.Error)
		}
	}
}

func positionOf(f FailureRecord) string {
	pos := fmt.Sprintf("node %d", f.Node)
	if f.Instruction >= 0 {
		pos += fmt.Sprintf(" instr %d", f.Instruction)
	}
	if f.Element >= 0 {
		pos += fmt.Sprintf(" elem %d", f.Element)
	}
	return pos
}
