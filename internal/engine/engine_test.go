package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/notify"
	"github.com/roach88/applier/internal/testutil"
)

func TestApplySingleInstruction(t *testing.T) {
	log := &testutil.CallLog{}
	probe := testutil.NewProbe[int]("id", log)
	e, rec := newTestEngine(newScripted(log))

	require.NoError(t, e.Apply(context.Background(), []int{1, 2, 3}, probe))

	assert.Equal(t, []int{1, 2, 3}, probe.Applied())
	assert.Equal(t, []string{"START [1 2 3]", "id(1)", "id(2)", "id(3)", "END [1 2 3]"}, log.Entries())
	assert.Equal(t, 0, e.Registry().Len())

	finished := rec.Kind(EventRunFinished)
	require.Len(t, finished, 1)
	assert.Empty(t, finished[0].Code)
	assert.Equal(t, "run-test", finished[0].RunID)
}

func TestApplyPhaseOrder(t *testing.T) {
	e, rec := newTestEngine(notify.Passthrough[int]{})
	require.NoError(t, e.Apply(context.Background(), []int{1, 2, 3}, testutil.NewProbe[int]("id", nil)))

	assert.Equal(t, ir.Phases(), rec.Phases())
}

func TestApplyPhaseOrderPerInstruction(t *testing.T) {
	log := &testutil.CallLog{}
	n := newScripted(log)
	n.forward = func(ec effect.Context[int]) Pending[int] {
		return answer(
			effect.Start([]int{1}, ec.Effect()),
			effect.Start([]int{2}, ec.Effect()),
		)
	}
	e, rec := newTestEngine(n)
	require.NoError(t, e.Apply(context.Background(), []int{1, 2}, testutil.NewProbe[int]("id", log)))

	perInstruction := map[int][]ir.Phase{}
	var shared []ir.Phase
	for _, ev := range rec.Kind(EventPhaseEntered) {
		if ev.Instruction < 0 {
			shared = append(shared, ev.Phase)
			continue
		}
		perInstruction[ev.Instruction] = append(perInstruction[ev.Instruction], ev.Phase)
	}

	assert.Equal(t, []ir.Phase{ir.ForwardNotification, ir.ForwardRetrieval}, shared)
	for i := range 2 {
		got := append(append([]ir.Phase{}, shared...), perInstruction[i]...)
		assert.Equal(t, ir.Phases(), got, "instruction %d", i)
	}
}

func TestApplyRecursiveWorkCompletesBeforeNextRetro(t *testing.T) {
	log := &testutil.CallLog{}
	probe := testutil.NewProbe[int]("p", log)
	n := newScripted(log)
	n.forward = func(ec effect.Context[int]) Pending[int] {
		if ec.At(0) == 1 {
			return answer(
				effect.Start([]int{1, 2}, ec.Effect()),
				effect.Start([]int{3, 4}, ec.Effect()),
			)
		}
		return answer(ec)
	}
	n.retro = retroByFirst(map[int][]effect.Context[int]{
		1: {effect.Start[int]([]int{10}, probe)},
	})
	e, rec := newTestEngine(n)

	require.NoError(t, e.Apply(context.Background(), []int{1, 2, 3, 4}, probe))

	assert.Equal(t, []string{
		"START [1 2 3 4]",
		"p(1)", "p(2)", "p(3)", "p(4)",
		"END [1 2]",
		"START [10]",
		"p(10)",
		"END [10]",
		"END [3 4]",
	}, log.Entries())

	var depths []int
	for _, ev := range rec.Kind(EventElementApplied) {
		depths = append(depths, ev.Depth)
	}
	assert.Equal(t, []int{0, 0, 0, 0, 3}, depths, "response runs sit three levels below their parent")
}

func TestApplyZeroInstructionsIsNoOp(t *testing.T) {
	log := &testutil.CallLog{}
	n := newScripted(log)
	n.forward = func(effect.Context[int]) Pending[int] { return answer() }
	probe := testutil.NewProbe[int]("id", log)
	e, rec := newTestEngine(n)

	require.NoError(t, e.Apply(context.Background(), []int{1, 2}, probe))

	assert.Empty(t, probe.Applied())
	assert.Equal(t, []string{"START [1 2]"}, log.Entries())
	assert.Equal(t, []ir.Phase{ir.ForwardNotification, ir.ForwardRetrieval}, rec.Phases())
	assert.Equal(t, 0, n.count(ir.End))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := []int{3, 2, 1}
	e, _ := newTestEngine(notify.Passthrough[int]{})
	require.NoError(t, e.Apply(context.Background(), in, testutil.NewProbe[int]("id", nil)))
	assert.Equal(t, []int{3, 2, 1}, in)
}

func TestApplyNilNotifierAnswer(t *testing.T) {
	calls := 0
	n := notify.Func[int](func(_ context.Context, ec effect.Context[int]) (notify.Response[int], error) {
		calls++
		if ec.Message() == ir.Start {
			return answer(ec), nil
		}
		return nil, nil
	})
	e, _ := newTestEngine(n)
	require.NoError(t, e.Apply(context.Background(), []int{1}, testutil.NewProbe[int]("id", nil)))
	assert.Equal(t, 2, calls)
}

func TestApplyMissingEffectFreezes(t *testing.T) {
	e, _ := newTestEngine(notify.Passthrough[int]{})
	err := e.Apply(context.Background(), []int{1}, nil)

	se := stopped(t, err)
	assert.Equal(t, CodeEffectFailure, se.Code)
	assert.ErrorIs(t, err, errNoEffect)
}

func TestApplyWithMediator(t *testing.T) {
	log := &testutil.CallLog{}
	probe := testutil.NewProbe[int]("m", log)
	m := notify.NewMediator[int](notify.ObserverFunc[int](func(_ context.Context, ec effect.Context[int]) ([]effect.Context[int], error) {
		if ec.Message() == ir.Start {
			return []effect.Context[int]{ec}, nil
		}
		return nil, nil
	}))
	e, _ := newTestEngine(m)

	require.NoError(t, e.Apply(context.Background(), []int{5, 6}, probe))
	assert.Equal(t, []int{5, 6}, probe.Applied())
}

func TestApplyWithQueueResponder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := notify.NewQueue[int]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			req, err := q.Next(ctx)
			if err != nil {
				return
			}
			if req.Context.Message() == ir.Start {
				req.Respond(req.Context)
			} else {
				req.Respond()
			}
		}
	}()

	probe := testutil.NewProbe[int]("q", nil)
	e, _ := newTestEngine(q)
	require.NoError(t, e.Apply(ctx, []int{1, 2}, probe))
	assert.Equal(t, []int{1, 2}, probe.Applied())

	q.Close()
	<-done
}

func TestRecorderErrorsDoNotStopRun(t *testing.T) {
	failing := RecorderFunc(func(context.Context, Event) error { return errors.New("journal down") })
	e, rec := newTestEngine(notify.Passthrough[int]{}, WithRecorder(failing))

	require.NoError(t, e.Apply(context.Background(), []int{1}, testutil.NewProbe[int]("id", nil)))
	assert.NotEmpty(t, rec.Events(), "other recorders still receive events")
}

func TestEventSequenceIsMonotonic(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	e, rec := newTestEngine(notify.Passthrough[int]{}, WithClock(clock))
	require.NoError(t, e.Apply(context.Background(), []int{1, 2}, testutil.NewProbe[int]("id", nil)))

	events := rec.Events()
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, EventRunStarted, events[0].Kind)
	assert.Equal(t, EventRunFinished, events[len(events)-1].Kind)
}

func TestMaxStepsFreezesRunawayRetro(t *testing.T) {
	probe := testutil.NewProbe[int]("id", nil)
	n := newScripted(nil)
	n.retro = func(ec effect.Context[int]) Pending[int] {
		return answer(effect.Start[int]([]int{ec.At(0) + 1}, probe))
	}
	e, _ := newTestEngine(n, WithMaxSteps(3))

	err := e.Apply(context.Background(), []int{1}, probe)
	se := stopped(t, err)
	assert.Equal(t, CodeQuotaExceeded, se.Code)
	assert.Equal(t, ir.ForwardNotification, se.Phase)
	assert.True(t, IsStepsExceededError(err))
	assert.Equal(t, []int{1, 2, 3}, probe.Applied())

	err = e.ApplyFrom(context.Background(), se.ID)
	next := stopped(t, err)
	assert.Equal(t, CodeQuotaExceeded, next.Code, "each call gets a fresh budget")
	assert.Greater(t, next.ID, se.ID)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, probe.Applied())
}

func TestWithMaxStepsIgnoresNonPositive(t *testing.T) {
	e := New[int](notify.Passthrough[int]{}, WithMaxSteps(0))
	assert.Equal(t, DefaultMaxSteps, e.maxSteps)
}
