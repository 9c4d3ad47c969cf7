package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/applier/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Fs is where scenario and golden files are read and written.
	// Defaults to the OS filesystem.
	Fs afero.Fs
}

// fs returns the configured filesystem.
func (o *RootOptions) fs() afero.Fs {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	return o.Fs
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the applier CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithFs(afero.NewOsFs())
}

// NewRootCommandWithFs creates the root command reading files from fsys.
func NewRootCommandWithFs(fsys afero.Fs) *cobra.Command {
	opts := &RootOptions{Fs: fsys}

	cmd := &cobra.Command{
		Use:     "applier",
		Version: ir.EngineVersion,
		Short:   "applier - resumable effect application",
		Long: `Run, validate and inspect effect-application scenarios.

Every run drives the five-phase cycle (forward notification, forward
retrieval, effect execution, retro notification, retro retrieval) and can
be journaled to SQLite for later inspection.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewFailuresCommand(opts))

	return cmd
}

// configureLogging routes slog to w: debug under --verbose, warnings only
// otherwise.
func configureLogging(opts *RootOptions, w io.Writer) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
