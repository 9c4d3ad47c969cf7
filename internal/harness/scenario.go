package harness

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
)

// Scenario describes one engine test: the input batch, how the notifier
// answers, which elements fail, and the calls to make.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunToken is the token every run gets. Defaults to "test-run-default".
	RunToken string `yaml:"run_token,omitempty"`

	// MaxSteps overrides the engine's per-call step quota when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Input is the batch handed to Apply.
	Input []int `yaml:"input"`

	// Rules script the notifier. The first matching rule answers.
	Rules []Rule `yaml:"rules,omitempty"`

	// Faults make the effect fail once on an element.
	Faults []Fault `yaml:"faults,omitempty"`

	// Steps are executed in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the state after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Rule answers notifications of one kind.
type Rule struct {
	// On is "start" or "end".
	On string `yaml:"on"`

	// Input restricts the rule to contexts with exactly this batch.
	// Nil matches every batch.
	Input []int `yaml:"input,omitempty"`

	// Respond lists the batches to answer with. Each batch becomes a Start
	// context carrying the scenario's effect.
	Respond [][]int `yaml:"respond,omitempty"`

	// Fail makes Notify itself return an error.
	Fail string `yaml:"fail,omitempty"`

	// Reject makes the returned future fail.
	Reject string `yaml:"reject,omitempty"`

	// Times limits how often the rule answers. Zero means unlimited.
	Times int `yaml:"times,omitempty"`
}

// Fault makes the effect fail the next time it reaches Element.
type Fault struct {
	Element   int    `yaml:"element"`
	Error     string `yaml:"error,omitempty"`
	Interrupt bool   `yaml:"interrupt,omitempty"`
}

// Step is one engine call.
type Step struct {
	// Action is "apply" or "resume".
	Action string `yaml:"action"`

	// Failure is the id to resume. Zero resumes the latest failure.
	Failure int64 `yaml:"failure,omitempty"`

	// Expect checks the call's outcome. If nil, any outcome is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a call outcome.
type Expect struct {
	// Outcome is "ok", "stale", or a stop code.
	Outcome string `yaml:"outcome"`

	// Phase is the phase a stopped call froze at.
	Phase string `yaml:"phase,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Values are the elements expected to be applied (applied).
	Values []int `yaml:"values,omitempty"`

	// Entries are call log lines expected in order (log_order).
	Entries []string `yaml:"entries,omitempty"`

	// Kind is the event kind to count (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number (event_count, open_failures).
	Count int `yaml:"count,omitempty"`
}

// Step actions.
const (
	ActionApply  = "apply"
	ActionResume = "resume"
)

// Rule triggers.
const (
	OnStart = "start"
	OnEnd   = "end"
)

// Outcomes besides the engine's stop codes.
const (
	OutcomeOK    = "ok"
	OutcomeStale = "stale"
)

// Assertion type constants.
const (
	AssertApplied      = "applied"
	AssertLogOrder     = "log_order"
	AssertEventCount   = "event_count"
	AssertOpenFailures = "open_failures"
)

// LoadScenario reads a scenario file from fsys, checks it against the
// schema, and decodes it. Unknown fields are rejected.
func LoadScenario(fsys afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(path, data)
}

// ParseScenario validates and decodes scenario YAML. filename is used in
// error messages.
func ParseScenario(filename string, data []byte) (*Scenario, error) {
	if err := ValidateSchema(filename, data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, r := range s.Rules {
		if r.On != OnStart && r.On != OnEnd {
			return fmt.Errorf("rules[%d]: on must be %q or %q", i, OnStart, OnEnd)
		}
		set := 0
		if r.Respond != nil {
			set++
		}
		if r.Fail != "" {
			set++
		}
		if r.Reject != "" {
			set++
		}
		if set > 1 {
			return fmt.Errorf("rules[%d]: respond, fail and reject are exclusive", i)
		}
	}

	seen := make(map[int]bool)
	for i, f := range s.Faults {
		if seen[f.Element] {
			return fmt.Errorf("faults[%d]: element %d already has a fault", i, f.Element)
		}
		seen[f.Element] = true
		if (f.Error == "") == !f.Interrupt {
			return fmt.Errorf("faults[%d]: exactly one of error and interrupt is required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Action != ActionApply && step.Action != ActionResume {
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if step.Action == ActionApply && step.Failure != 0 {
			return fmt.Errorf("steps[%d]: failure is only valid for resume", i)
		}
		if step.Expect != nil && step.Expect.Phase != "" {
			if _, err := ir.ParsePhase(step.Expect.Phase); err != nil {
				return fmt.Errorf("steps[%d].expect: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertApplied:
		if a.Values == nil {
			return fmt.Errorf("assertions[%d]: values is required for applied", index)
		}
	case AssertLogOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for log_order", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if !knownEventKind(engine.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
	case AssertOpenFailures:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownEventKind(k engine.EventKind) bool {
	switch k {
	case engine.EventRunStarted,
		engine.EventPhaseEntered,
		engine.EventElementApplied,
		engine.EventFrozen,
		engine.EventResumed,
		engine.EventStaleResumption,
		engine.EventRunFinished:
		return true
	}
	return false
}
