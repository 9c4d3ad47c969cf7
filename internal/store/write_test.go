package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/notify"
	"github.com/roach88/applier/internal/testutil"
)

func newJournaledEngine(t *testing.T, s *Store, token string) *engine.Engine[int] {
	t.Helper()
	return engine.New[int](notify.Passthrough[int]{},
		engine.WithRecorder(s),
		engine.WithRunTokens(testutil.NewFixedRunToken(token)),
	)
}

func TestRecord_SuccessfulRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := newJournaledEngine(t, s, "run-a")

	require.NoError(t, e.Apply(ctx, []int{1, 2}, testutil.NewProbe[int]("id", nil)))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, OutcomeOK, runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Calls)
	assert.Greater(t, runs[0].FinishedSeq, runs[0].StartedSeq)

	failures, err := s.ListFailures(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestRecord_FailureConsumedByResumption(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := newJournaledEngine(t, s, "run-b")

	probe := testutil.NewProbe[int]("id", nil)
	probe.FailOnce(2, errors.New("boom"))

	err := e.Apply(ctx, []int{1, 2}, probe)
	id, ok := engine.FailureID(err)
	require.True(t, ok)

	open, err := s.ListFailures(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	f := open[0]
	assert.Equal(t, "run-b", f.RunID)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, ir.EffectExecution, f.Phase)
	assert.Equal(t, engine.CodeEffectFailure, f.Code)
	assert.Equal(t, 0, f.Instruction)
	assert.Equal(t, 1, f.Element)
	assert.Contains(t, f.Error, "boom")
	assert.False(t, f.Consumed)

	run, err := s.ReadRun(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, string(engine.CodeEffectFailure), run.Outcome)

	require.NoError(t, e.ApplyFrom(ctx, id))

	open, err = s.ListFailures(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.ListFailures(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Consumed)
	assert.Greater(t, all[0].ConsumedSeq, all[0].Seq)

	run, err = s.ReadRun(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, run.Outcome)
	assert.Equal(t, 2, run.Calls)
}

func TestRecord_StaleResumptionWithoutRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := newJournaledEngine(t, s, "run-c")

	err := e.ApplyFrom(ctx, 42)
	require.True(t, engine.IsStale(err))

	entries, err := s.ReadRunEvents(ctx, "", OrderDive)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.EventStaleResumption, entries[0].Kind)
	assert.Equal(t, int64(42), entries[0].FailureID)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecord_DuplicateFailureIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, createTestEvent(engine.EventRunStarted, "r", 1)))
	ev := createTestFrozen("r", 2, 1, ir.ForwardRetrieval, engine.CodeNotifierFailure)
	require.NoError(t, s.Record(ctx, ev))
	require.NoError(t, s.Record(ctx, ev))

	failures, err := s.ListFailures(ctx, false)
	require.NoError(t, err)
	assert.Len(t, failures, 1)

	// both event rows are kept
	entries, err := s.ReadRunEvents(ctx, "r", OrderDive)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecord_ResumptionOfUnseenRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := createTestEvent(engine.EventResumed, "late", 7)
	ev.FailureID = 3
	require.NoError(t, s.Record(ctx, ev))

	run, err := s.ReadRun(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRunning, run.Outcome)
	assert.Equal(t, int64(7), run.StartedSeq)
}
