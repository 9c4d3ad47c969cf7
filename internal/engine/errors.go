package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/applier/internal/ir"
)

// StopCode categorizes why a run stopped.
type StopCode string

const (
	// CodeCancelled: the caller's context ended at a suspension point, or
	// the effect reported effect.ErrInterrupted.
	CodeCancelled StopCode = "CANCELLED"

	// CodeNotifierFailure: the notifier refused a context or its future
	// completed with an error.
	CodeNotifierFailure StopCode = "NOTIFIER_FAILURE"

	// CodeEffectFailure: the effect returned an error for one element.
	CodeEffectFailure StopCode = "EFFECT_FAILURE"

	// CodeQuotaExceeded: the call drove more run nodes than allowed.
	CodeQuotaExceeded StopCode = "QUOTA_EXCEEDED"
)

// ErrStaleResumption matches every StaleResumptionError via errors.Is.
var ErrStaleResumption = errors.New("stale resumption")

// StoppedError is returned when a run freezes. The FailureContext has
// already been stored under ID when the caller sees the error; passing ID
// to ApplyFrom resumes exactly where the run stopped.
type StoppedError struct {
	// ID is the resumption token.
	ID int64

	// Phase is where the run froze.
	Phase ir.Phase

	// Code identifies the failure category.
	Code StopCode

	// RunID is the token of the top-level run that owns the tree.
	RunID string

	// Cause is the underlying error.
	Cause error
}

func (e *StoppedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: stopped at %s (failure=%d, run=%s)", e.Code, e.Phase, e.ID, e.RunID)
	}
	return fmt.Sprintf("%s: stopped at %s (failure=%d, run=%s): %v", e.Code, e.Phase, e.ID, e.RunID, e.Cause)
}

func (e *StoppedError) Unwrap() error {
	return e.Cause
}

// StaleResumptionError reports a resumption that cannot proceed: the id
// was never issued or was already consumed, or the FailureContext no
// longer matches its tree.
type StaleResumptionError struct {
	// ID is the failure id that was asked for; 0 when resuming a
	// FailureContext directly.
	ID     int64
	Reason string
}

func (e *StaleResumptionError) Error() string {
	return fmt.Sprintf("stale resumption %d: %s", e.ID, e.Reason)
}

func (e *StaleResumptionError) Is(target error) bool {
	return target == ErrStaleResumption
}

// IsStopped returns true if err is or wraps a StoppedError.
func IsStopped(err error) bool {
	var se *StoppedError
	return errors.As(err, &se)
}

// IsStale returns true if err is or wraps a StaleResumptionError.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleResumption)
}

// FailureID extracts the resumption token from err.
func FailureID(err error) (int64, bool) {
	var se *StoppedError
	if errors.As(err, &se) {
		return se.ID, true
	}
	return 0, false
}

// StopCodeOf returns the stop code carried by err, or "" if err did not
// come from a frozen run.
func StopCodeOf(err error) StopCode {
	var se *StoppedError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
