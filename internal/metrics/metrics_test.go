package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/applier/internal/engine"
	"github.com/roach88/applier/internal/ir"
	"github.com/roach88/applier/internal/notify"
	apptest "github.com/roach88/applier/internal/testutil"
)

func TestCollectorCountsSuccessfulRun(t *testing.T) {
	c := NewCollector("test")
	e := engine.New[int](notify.Passthrough[int]{}, engine.WithRecorder(c))

	require.NoError(t, e.Apply(context.Background(), []int{1, 2, 3}, apptest.NewProbe[int]("id", nil)))

	assert.Equal(t, 3.0, testutil.ToFloat64(c.elements))
	for _, p := range ir.Phases() {
		assert.Equal(t, 1.0, testutil.ToFloat64(c.phases.WithLabelValues(p.String())), p.String())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.openFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestCollectorTracksFailuresAndResumption(t *testing.T) {
	c := NewCollector("test")
	probe := apptest.NewProbe[int]("id", nil)
	probe.FailOnce(2, errors.New("boom"))
	e := engine.New[int](notify.Passthrough[int]{}, engine.WithRecorder(c))

	err := e.Apply(context.Background(), []int{1, 2}, probe)
	id, ok := engine.FailureID(err)
	require.True(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("EFFECT_FAILURE", "EFFECT_EXECUTION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.openFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("EFFECT_FAILURE")))

	require.NoError(t, e.ApplyFrom(context.Background(), id))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resumptions))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.openFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.elements))

	assert.True(t, engine.IsStale(e.ApplyFrom(context.Background(), id)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stale))
}

func TestCollectorRunDuration(t *testing.T) {
	c := NewCollector("")
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Record(ctx, engine.Event{Kind: engine.EventRunStarted, RunID: "r"}))
	now = now.Add(250 * time.Millisecond)
	require.NoError(t, c.Record(ctx, engine.Event{Kind: engine.EventRunFinished, RunID: "r"}))

	// finishing an unknown run observes nothing
	require.NoError(t, c.Record(ctx, engine.Event{Kind: engine.EventRunFinished, RunID: "other"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestSnapshot(t *testing.T) {
	c := NewCollector("test")
	e := engine.New[int](notify.Passthrough[int]{}, engine.WithRecorder(c))
	require.NoError(t, e.Apply(context.Background(), []int{1}, apptest.NewProbe[int]("id", nil)))

	samples, err := c.Snapshot()
	require.NoError(t, err)

	byString := map[string]bool{}
	for _, s := range samples {
		byString[s.String()] = true
	}
	assert.True(t, byString["test_engine_elements_applied_total 1"])
	assert.True(t, byString[`test_engine_calls_total{outcome="ok"} 1`])
	assert.True(t, byString[`test_engine_call_duration_seconds{outcome="ok"} 1`])
	assert.True(t, byString[`test_engine_phases_entered_total{phase="EFFECT_EXECUTION"} 1`])
	for _, s := range samples {
		assert.NotZero(t, s.Value)
	}
}
