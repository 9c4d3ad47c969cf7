package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/ir"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var noop = effect.Func[int](func(context.Context, int) error { return nil })

func inputs(ecs []effect.Context[int]) [][]int {
	out := make([][]int, len(ecs))
	for i, ec := range ecs {
		out[i] = ec.Input()
	}
	return out
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	start := effect.Start([]int{1, 2}, noop)

	f, err := Passthrough[int]{}.Notify(ctx, start)
	require.NoError(t, err)
	got, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}}, inputs(got))

	f, err = Passthrough[int]{}.Notify(ctx, start.Completed())
	require.NoError(t, err)
	got, err = f.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMediatorConcatenatesInOrder(t *testing.T) {
	ctx := context.Background()
	first := ObserverFunc[int](func(_ context.Context, ec effect.Context[int]) ([]effect.Context[int], error) {
		return []effect.Context[int]{ec}, nil
	})
	m := NewMediator[int](first)
	m.Register(ObserverFunc[int](func(_ context.Context, ec effect.Context[int]) ([]effect.Context[int], error) {
		return []effect.Context[int]{effect.Start([]int{9}, ec.Effect())}, nil
	}))

	f, err := m.Notify(ctx, effect.Start([]int{1}, noop))
	require.NoError(t, err)
	assert.True(t, f.Ready(), "mediator answers synchronously")

	got, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1}, {9}}, inputs(got))
}

func TestMediatorObserverErrorFailsFuture(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	called := false
	m := NewMediator[int](
		ObserverFunc[int](func(context.Context, effect.Context[int]) ([]effect.Context[int], error) {
			return nil, boom
		}),
		ObserverFunc[int](func(context.Context, effect.Context[int]) ([]effect.Context[int], error) {
			called = true
			return nil, nil
		}),
	)

	f, err := m.Notify(ctx, effect.Start([]int{1}, noop))
	require.NoError(t, err, "observer errors surface through the future")
	_, err = f.Get(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "observer 0")
	assert.False(t, called)
}

func TestMediatorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMediator[int]().Notify(ctx, effect.Start([]int{1}, noop))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsync(t *testing.T) {
	release := make(chan struct{})
	a := NewAsync[int](ObserverFunc[int](func(_ context.Context, ec effect.Context[int]) ([]effect.Context[int], error) {
		<-release
		if ec.Message() == ir.End {
			return nil, nil
		}
		return []effect.Context[int]{ec}, nil
	}))

	callerCtx, cancel := context.WithCancel(context.Background())
	f, err := a.Notify(callerCtx, effect.Start([]int{3}, noop))
	require.NoError(t, err)
	assert.False(t, f.Ready())

	cancel()
	_, err = f.Get(callerCtx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	got, err := f.Get(context.Background())
	require.NoError(t, err, "the same future completes after the caller gave up once")
	assert.Equal(t, [][]int{{3}}, inputs(got))
}

func TestQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int]()

	f, err := q.Notify(ctx, effect.Start([]int{1, 2}, noop))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	req, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, req.Context.Input())
	assert.Equal(t, 0, q.Len())

	assert.True(t, req.Respond(req.Context))
	assert.False(t, req.Fail(errors.New("late")))

	got, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}}, inputs(got))
}

func TestQueueFail(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int]()
	f, err := q.Notify(ctx, effect.Start([]int{1}, noop))
	require.NoError(t, err)

	req, ok := q.TryNext()
	require.True(t, ok)
	boom := errors.New("rejected")
	req.Fail(boom)

	_, err = f.Get(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestQueueNextBlocksUntilNotify(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int]()

	got := make(chan []int, 1)
	go func() {
		req, err := q.Next(ctx)
		if err != nil {
			close(got)
			return
		}
		got <- req.Context.Input()
		req.Respond()
	}()

	time.Sleep(5 * time.Millisecond)
	f, err := q.Notify(ctx, effect.Start([]int{7}, noop))
	require.NoError(t, err)

	assert.Equal(t, []int{7}, <-got)
	resp, err := f.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestQueueClose(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int]()
	_, err := q.Notify(ctx, effect.Start([]int{1}, noop))
	require.NoError(t, err)

	q.Close()
	q.Close()

	_, err = q.Notify(ctx, effect.Start([]int{2}, noop))
	assert.ErrorIs(t, err, ErrClosed)

	req, err := q.Next(ctx)
	require.NoError(t, err, "queued requests survive Close")
	assert.Equal(t, []int{1}, req.Context.Input())

	_, err = q.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueNextContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := NewQueue[int]().Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
