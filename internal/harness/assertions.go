package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/applier/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes the call log to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Log      []string // Full call log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nCall log:\n")
		for i, entry := range e.Log {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, entry)
		}
	}

	return buf.String()
}

func evaluate(a Assertion, result *Result, rec *engine.MemoryRecorder) error {
	switch a.Type {
	case AssertApplied:
		return assertApplied(result, a)
	case AssertLogOrder:
		return assertLogOrder(result.Log, a)
	case AssertEventCount:
		return assertEventCount(rec, a, result.Log)
	case AssertOpenFailures:
		return assertOpenFailures(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertApplied checks the exact sequence of applied elements.
func assertApplied(result *Result, a Assertion) error {
	if slices.Equal(result.Applied, a.Values) {
		return nil
	}
	return &AssertionError{
		Type:     AssertApplied,
		Expected: fmt.Sprintf("applied %v", a.Values),
		Actual:   fmt.Sprintf("applied %v", result.Applied),
		Log:      result.Log,
	}
}

// assertLogOrder checks that entries occur in the log in order.
// Entries don't need to be consecutive.
func assertLogOrder(log []string, a Assertion) error {
	next := 0
	for _, entry := range log {
		if next < len(a.Entries) && entry == a.Entries[next] {
			next++
		}
	}
	if next == len(a.Entries) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogOrder,
		Expected: fmt.Sprintf("entries in order: %q", a.Entries),
		Actual:   fmt.Sprintf("%q not found after %d matched entries", a.Entries[next], next),
		Log:      log,
	}
}

// assertEventCount checks the number of recorded events of one kind.
func assertEventCount(rec *engine.MemoryRecorder, a Assertion, log []string) error {
	count := len(rec.Kind(engine.EventKind(a.Kind)))
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d %s events", count, a.Kind),
		Log:      log,
	}
}

func assertOpenFailures(result *Result, a Assertion) error {
	if result.OpenFailures == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOpenFailures,
		Expected: fmt.Sprintf("%d open failures", a.Count),
		Actual:   fmt.Sprintf("%d open failures", result.OpenFailures),
		Log:      result.Log,
	}
}
