package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/harness"
	"github.com/roach88/applier/internal/metrics"
	"github.com/roach88/applier/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Metrics  bool

	// TokenGenerator names runs of scenarios without a run_token.
	// If nil, defaults to UUIDv7Generator.
	TokenGenerator engine.RunTokenGenerator
}

// RunReport is the output of the run command.
type RunReport struct {
	Scenario     string   `json:"scenario"`
	RunToken     string   `json:"run_token"`
	Pass         bool     `json:"pass"`
	Outcomes     []string `json:"outcomes"`
	Applied      []int    `json:"applied"`
	OpenFailures int      `json:"open_failures"`
	Errors       []string `json:"errors,omitempty"`
	Metrics      []string `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Execute a scenario against the engine",
		Long: `Execute a scenario file against a fresh engine.

Each step of the scenario calls Apply or ApplyFrom. With --db every event
is journaled to SQLite so the run can be inspected with trace and failures.
Interrupting the command cancels the current call, which freezes the run.

Exit codes:
  0 - All step expectations and assertions held
  1 - Scenario failed
  2 - Command error (invalid paths, database not writable, etc.)

Examples:
  applier run ./scenarios/retry.yaml
  applier run ./scenarios/retry.yaml --db ./journal.db
  applier run ./scenarios/retry.yaml --metrics --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenarioFile(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print engine metrics after the run")

	return cmd
}

func runScenarioFile(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	scenario, err := harness.LoadScenario(opts.fs(), path)
	if err != nil {
		if exists, _ := afero.Exists(opts.fs(), path); !exists {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		_ = formatter.Error(ErrCodeInvalidScenario, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid scenario", err)
	}

	if scenario.RunToken == "" {
		gen := opts.TokenGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		scenario.RunToken = gen.Generate()
	}

	var recorders []engine.Recorder
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		recorders = append(recorders, st)
		formatter.VerboseLog("journaling to %s", opts.Database)
	}

	var collector *metrics.Collector
	if opts.Metrics {
		collector = metrics.NewCollector("applier")
		recorders = append(recorders, collector)
	}

	formatter.VerboseLog("running %s (%d steps, run %s)", scenario.Name, len(scenario.Steps), scenario.RunToken)
	result, err := harness.Run(ctx, scenario, recorders...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	report := RunReport{
		Scenario:     scenario.Name,
		RunToken:     scenario.RunToken,
		Pass:         result.Pass,
		Outcomes:     result.Outcomes,
		Applied:      result.Applied,
		OpenFailures: result.OpenFailures,
		Errors:       result.Errors,
	}
	if collector != nil {
		samples, err := collector.Snapshot()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
		for _, s := range samples {
			report.Metrics = append(report.Metrics, s.String())
		}
	}

	if formatter.JSON() {
		if err := formatter.Report(report, report.RunToken, failure(ErrCodeScenarioFailed, len(report.Errors), "check(s)")); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, report)
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", report.Scenario))
	}
	return nil
}

func outputRunText(f *OutputFormatter, report RunReport) {
	w := f.Writer

	f.Check(report.Pass, fmt.Sprintf("%s (run %s)", report.Scenario, report.RunToken))
	for i, outcome := range report.Outcomes {
		fmt.Fprintf(w, "  step %d: %s\n", i+1, outcome)
	}
	fmt.Fprintf(w, "  applied: %v\n", report.Applied)
	if report.OpenFailures > 0 {
		fmt.Fprintf(w, "  open failures: %d\n", report.OpenFailures)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
	if len(report.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics:")
		for _, m := range report.Metrics {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
}
