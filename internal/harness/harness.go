package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/future"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/notify"
	"github.com/roach88/applier/internal/testutil"
)

// EffectName labels the scenario effect in the call log.
const EffectName = "apply"

// Run executes a scenario against a fresh engine and returns the result.
// recorders receive every event alongside the harness's own recorder.
//
// An error is returned only if the scenario cannot be executed at all;
// failed expectations are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, recorders ...engine.Recorder) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("nil scenario")
	}

	log := &testutil.CallLog{}
	probe := testutil.NewProbe[int](EffectName, log)
	for _, f := range scenario.Faults {
		err := effect.ErrInterrupted
		if !f.Interrupt {
			err = errors.New(f.Error)
		}
		probe.FailOnce(f.Element, err)
	}

	rec := &engine.MemoryRecorder{}
	opts := []engine.Option{
		engine.WithRecorder(append([]engine.Recorder{rec}, recorders...)...),
		engine.WithRunTokens(testutil.NewFixedRunToken(scenario.RunToken)),
		engine.WithClock(engine.NewClock()),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	eng := engine.New[int](newScriptedNotifier(scenario.Rules, probe, log), opts...)

	slog.Debug("scenario started", "scenario", scenario.Name, "steps", len(scenario.Steps))

	result := NewResult()
	var latest int64
	for i, step := range scenario.Steps {
		var err error
		switch step.Action {
		case ActionApply:
			err = eng.Apply(ctx, scenario.Input, probe)
		case ActionResume:
			id := step.Failure
			if id == 0 {
				id = latest
			}
			err = eng.ApplyFrom(ctx, id)
		default:
			return nil, fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}

		if id, ok := engine.FailureID(err); ok {
			latest = id
		}
		outcome := outcomeOf(err)
		result.Outcomes = append(result.Outcomes, outcome)

		if step.Expect != nil {
			checkStep(result, i, step.Expect, outcome, err)
		}
	}

	result.Applied = append(result.Applied, probe.Applied()...)
	result.Log = append(result.Log, log.Entries()...)
	for _, ev := range rec.Events() {
		result.Trace = append(result.Trace, traceEvent(ev))
	}
	result.OpenFailures = eng.Registry().Len()

	for _, a := range scenario.Assertions {
		if err := evaluate(a, result, rec); err != nil {
			result.AddError(err.Error())
		}
	}

	slog.Debug("scenario finished", "scenario", scenario.Name, "pass", result.Pass)
	return result, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case engine.IsStale(err):
		return OutcomeStale
	case engine.IsStopped(err):
		return string(engine.StopCodeOf(err))
	default:
		return err.Error()
	}
}

func checkStep(result *Result, i int, want *Expect, outcome string, err error) {
	if outcome != want.Outcome {
		result.AddError(fmt.Sprintf("steps[%d]: outcome %q, want %q (error: %v)", i, outcome, want.Outcome, err))
		return
	}
	if want.Phase == "" {
		return
	}
	var se *engine.StoppedError
	if !errors.As(err, &se) {
		result.AddError(fmt.Sprintf("steps[%d]: want phase %s but the call did not stop", i, want.Phase))
		return
	}
	if se.Phase.String() != want.Phase {
		result.AddError(fmt.Sprintf("steps[%d]: stopped at %s, want %s", i, se.Phase, want.Phase))
	}
}

// scriptedNotifier answers notifications from scenario rules. Contexts no
// rule claims go to a Mediator that echoes start contexts back as their
// own instruction and answers end contexts with nothing.
type scriptedNotifier struct {
	mediator *notify.Mediator[int]
	eff      effect.Effect[int]
	log      *testutil.CallLog

	mu    sync.Mutex
	rules []Rule
	used  []int
}

func newScriptedNotifier(rules []Rule, eff effect.Effect[int], log *testutil.CallLog) *scriptedNotifier {
	return &scriptedNotifier{
		mediator: notify.NewMediator[int](notify.ObserverFunc[int](echoStart)),
		eff:      eff,
		log:      log,
		rules:    rules,
		used:     make([]int, len(rules)),
	}
}

func echoStart(_ context.Context, ec effect.Context[int]) ([]effect.Context[int], error) {
	if ec.Message() == ir.Start {
		return []effect.Context[int]{ec}, nil
	}
	return nil, nil
}

func (n *scriptedNotifier) Notify(ctx context.Context, ec effect.Context[int]) (notify.Response[int], error) {
	n.log.Add("%s %v", ec.Message(), ec.Input())

	rule, ok := n.match(ec)
	switch {
	case !ok:
		return n.mediator.Notify(ctx, ec)
	case rule.Fail != "":
		return nil, errors.New(rule.Fail)
	case rule.Reject != "":
		return future.Failed[[]effect.Context[int]](errors.New(rule.Reject)), nil
	}

	out := make([]effect.Context[int], 0, len(rule.Respond))
	for _, batch := range rule.Respond {
		out = append(out, effect.Start(batch, n.eff))
	}
	return future.Value(out), nil
}

// match claims the first applicable rule.
func (n *scriptedNotifier) match(ec effect.Context[int]) (Rule, bool) {
	on := OnStart
	if ec.Message() == ir.End {
		on = OnEnd
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, r := range n.rules {
		if r.On != on {
			continue
		}
		if r.Input != nil && !slices.Equal(r.Input, ec.Input()) {
			continue
		}
		if r.Times > 0 && n.used[i] >= r.Times {
			continue
		}
		n.used[i]++
		return r, true
	}
	return Rule{}, false
}
