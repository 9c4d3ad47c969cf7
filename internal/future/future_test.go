package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPromiseResolveOnce(t *testing.T) {
	p := New[int]()
	f := p.Future()
	assert.False(t, f.Ready())

	_, ok, _ := f.Result()
	assert.False(t, ok)

	assert.True(t, p.Resolve(7))
	assert.False(t, p.Resolve(8), "second completion is ignored")
	assert.False(t, p.Reject(errors.New("late")))

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, ok, err = f.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestPromiseRejectNil(t *testing.T) {
	p := New[string]()
	p.Reject(nil)
	_, err := p.Future().Get(context.Background())
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestValueAndFailed(t *testing.T) {
	v, err := Value([]int{1, 2}).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)

	boom := errors.New("boom")
	_, err = Failed[int](boom).Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGetCompletedIgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := Value(3).Get(ctx)
	require.NoError(t, err, "a completed future wins over a done context")
	assert.Equal(t, 3, v)
}

func TestGetCancelledThenAwaitAgain(t *testing.T) {
	p := New[int]()
	f := p.Future()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.Ready(), "cancellation does not complete the future")

	p.Resolve(42)
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGetDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New[int]().Future().Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGo(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (string, error) {
		return "done", nil
	})
	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	boom := errors.New("boom")
	f = Go(context.Background(), func(context.Context) (string, error) {
		return "", boom
	})
	_, err = f.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGoPanicRejectsWithErrAbandoned(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (int, error) {
		panic("observer exploded")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Get(ctx)
	require.ErrorIs(t, err, ErrAbandoned)
	assert.Contains(t, err.Error(), "observer exploded")
}

func TestConcurrentWaiters(t *testing.T) {
	p := New[int]()
	f := p.Future()

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := f.Get(context.Background())
			results[i] = v
		}()
	}
	p.Resolve(5)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 5, v)
	}
	<-f.Done()
}
