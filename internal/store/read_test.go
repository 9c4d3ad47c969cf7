package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/testutil"
)

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestListRuns_OrderedByStart(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, createTestEvent(engine.EventRunStarted, "b", 5)))
	require.NoError(t, s.Record(ctx, createTestEvent(engine.EventRunStarted, "a", 9)))
	require.NoError(t, s.Record(ctx, createTestEvent(engine.EventRunStarted, "c", 1)))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		assert.Equal(t, OutcomeRunning, r.Outcome)
		assert.Zero(t, r.FinishedSeq)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReadRunEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.ReadRunEvents(context.Background(), "nope", OrderDive)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestReadRunEvents_EngineRunInSeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := newJournaledEngine(t, s, "run-seq")

	require.NoError(t, e.Apply(ctx, []int{1, 2, 3}, testutil.NewProbe[int]("id", nil)))

	entries, err := s.ReadRunEvents(ctx, "run-seq", OrderDive)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	assert.Equal(t, engine.EventRunStarted, entries[0].Kind)
	assert.Equal(t, engine.EventRunFinished, entries[len(entries)-1].Kind)

	var phases []ir.Phase
	applied := 0
	for i, e := range entries {
		assert.NotEmpty(t, e.ID)
		if i > 0 {
			assert.Greater(t, e.Seq, entries[i-1].Seq)
		}
		switch e.Kind {
		case engine.EventPhaseEntered:
			phases = append(phases, e.Phase)
		case engine.EventElementApplied:
			assert.Equal(t, applied, e.Element)
			applied++
		}
	}
	assert.Equal(t, ir.Phases(), phases)
	assert.Equal(t, 3, applied)
}

func TestReadRunEvents_SweepGroupsByDepth(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, ev := range []struct {
		seq   int64
		depth int
	}{{1, 0}, {2, 3}, {3, 0}, {4, 3}, {5, 1}} {
		e := createTestEvent(engine.EventPhaseEntered, "r", ev.seq)
		e.Depth = ev.depth
		e.Phase = ir.ForwardNotification
		require.NoError(t, s.Record(ctx, e))
	}

	seqs := func(order Order) []int64 {
		entries, err := s.ReadRunEvents(ctx, "r", order)
		require.NoError(t, err)
		var out []int64
		for _, e := range entries {
			out = append(out, e.Seq)
		}
		return out
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs(OrderDive))
	assert.Equal(t, []int64{1, 3, 5, 2, 4}, seqs(OrderSweep))
}

func TestReadRunEvents_SameSeqOrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, createTestEvent(engine.EventPhaseEntered, "r", 1)))
	}

	entries, err := s.ReadRunEvents(ctx, "r", OrderDive)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID)
	}
}

func TestListFailures_OpenFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, createTestEvent(engine.EventRunStarted, "r", 1)))
	require.NoError(t, s.Record(ctx, createTestFrozen("r", 2, 1, ir.EffectExecution, engine.CodeEffectFailure)))
	require.NoError(t, s.Record(ctx, createTestFrozen("r", 3, 2, ir.ForwardNotification, engine.CodeQuotaExceeded)))

	resumed := createTestEvent(engine.EventResumed, "r", 4)
	resumed.FailureID = 1
	require.NoError(t, s.Record(ctx, resumed))

	all, err := s.ListFailures(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.True(t, all[0].Consumed)
	assert.Equal(t, int64(4), all[0].ConsumedSeq)

	open, err := s.ListFailures(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].ID)
	assert.Equal(t, engine.CodeQuotaExceeded, open[0].Code)
	assert.Equal(t, ir.ForwardNotification, open[0].Phase)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("sweep")
	require.NoError(t, err)
	assert.Equal(t, OrderSweep, o)

	_, err = ParseOrder("zigzag")
	assert.Error(t, err)
}
