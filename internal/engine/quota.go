package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps bounds how many run nodes one Apply or ApplyFrom call
// may drive. Retro notification can keep returning work forever; the
// quota turns that into a resumable stop instead of a hang.
const DefaultMaxSteps = 1000

// QuotaEnforcer counts steps taken by a single call.
//
// Not thread-safe: each call owns its own enforcer.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps steps.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check records one step and fails once the limit is passed.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{RunID: runID, Steps: q.current, Limit: q.maxSteps}
	}
	return nil
}

func (q *QuotaEnforcer) Current() int {
	return q.current
}

func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is the cause of a QUOTA_EXCEEDED stop.
type StepsExceededError struct {
	RunID string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max steps quota: %d steps > %d limit",
		e.RunID, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
