package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/applier/internal/ir"
)

// TraceSnapshot captures a scenario execution for golden comparison.
type TraceSnapshot struct {
	ScenarioName string
	RunToken     string
	Outcomes     []string
	Applied      []int
	Log          []string
	Trace        []TraceEvent
}

// NewTraceSnapshot builds the snapshot of a result.
func NewTraceSnapshot(scenario *Scenario, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: scenario.Name,
		RunToken:     scenario.RunToken,
		Outcomes:     result.Outcomes,
		Applied:      result.Applied,
		Log:          result.Log,
		Trace:        result.Trace,
	}
}

// toCanonicalMap converts the snapshot to plain maps and slices, which is
// what ir.MarshalCanonical accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"kind":        ev.Kind,
			"seq":         ev.Seq,
			"node":        ev.Node,
			"depth":       ev.Depth,
			"instruction": ev.Instruction,
			"element":     ev.Element,
		}
		if ev.Phase != "" {
			m["phase"] = ev.Phase
		}
		if ev.FailureID != 0 {
			m["failure_id"] = ev.FailureID
		}
		if ev.Code != "" {
			m["code"] = ev.Code
		}
		trace[i] = m
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"outcomes":      anySlice(s.Outcomes),
		"applied":       s.Applied,
		"log":           anySlice(s.Log),
		"trace":         trace,
	}
	if s.RunToken != "" {
		out["run_token"] = s.RunToken
	}
	return out
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Canonical returns the snapshot as RFC 8785 canonical JSON.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// AssertGolden compares the result's snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// opts are applied after the defaults, so a test may redirect the fixture
// directory.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	snapshot := NewTraceSnapshot(scenario, result)
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
