package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/applier/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenario files without running them",
		Long: `Check scenario files against the CUE scenario schema and the
semantic rules the harness enforces, without executing anything.

Examples:
  applier validate ./scenarios/retry.yaml
  applier validate ./scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		if exists, _ := afero.Exists(opts.fs(), path); !exists {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", path), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario not found: %s", path))
		}

		fv := FileValidation{Path: path, Valid: true}
		scenario, err := harness.LoadScenario(opts.fs(), path)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		} else {
			fv.Name = scenario.Name
			formatter.VerboseLog("%s: %d steps, %d rules, %d faults",
				path, len(scenario.Steps), len(scenario.Rules), len(scenario.Faults))
		}
		result.Files = append(result.Files, fv)
	}

	invalid := 0
	for _, f := range result.Files {
		if !f.Valid {
			invalid++
		}
	}

	if formatter.JSON() {
		if err := formatter.Report(result, "", failure(ErrCodeInvalidScenario, invalid, "scenario(s)")); err != nil {
			return err
		}
	} else {
		for _, f := range result.Files {
			if f.Valid {
				formatter.Check(true, fmt.Sprintf("%s (%s)", f.Path, f.Name))
			} else {
				formatter.Check(false, f.Path, f.Error)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
