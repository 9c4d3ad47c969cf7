package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failed, run stopped, or file invalid
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// Error codes for CLI responses.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeNotFound        = "E005" // Path not found
	ErrCodeInvalidScenario = "E101" // Scenario fails schema or semantic checks
	ErrCodeScenarioFailed  = "E102" // A step expectation or assertion did not hold
	ErrCodeTestFailed      = "E103" // One or more scenarios failed under test
	ErrCodeDatabase        = "E201" // Journal could not be opened or read
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command writes under --format json.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // command payload
	Error   *CLIError `json:"error,omitempty"`    // set when Status is "error"
	TraceID string    `json:"trace_id,omitempty"` // run token of the reported run
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; defaults to Writer
	Verbose   bool
}

// newFormatter returns a formatter writing to cmd's streams.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether output is a CLIResponse.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Report writes a command payload as an indented CLIResponse. A non-nil
// failure marks the response as an error while still carrying data, so a
// failed run or test still shows what happened.
func (f *OutputFormatter) Report(data any, traceID string, failure *CLIError) error {
	response := CLIResponse{Status: "ok", Data: data, TraceID: traceID}
	if failure != nil {
		response.Status = "error"
		response.Error = failure
	}
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled. It goes to
// ErrWriter so it never corrupts JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Check writes a "✓ name" or "✗ name" line followed by indented detail
// lines, the shape shared by run, validate and test.
func (f *OutputFormatter) Check(pass bool, name string, details ...string) {
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	fmt.Fprintf(f.Writer, "%s %s\n", mark, name)
	for _, d := range details {
		fmt.Fprintf(f.Writer, "  %s\n", d)
	}
}

// failure builds the CLIError of a response, or nil when failed is zero.
func failure(code string, failed int, noun string) *CLIError {
	if failed == 0 {
		return nil
	}
	return &CLIError{Code: code, Message: fmt.Sprintf("%d %s failed", failed, noun)}
}
