package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/applier/internal/effect"
	"github.com/roach88/applier/internal/future"
	"github.com/roach88/applier/internal/tree"
)

func TestResumePointRoundTrip(t *testing.T) {
	tr := tree.New("run", effect.Start[int]([]int{1}, nil))
	pending := future.New[[]effect.Context[int]]().Future()

	points := []ResumePoint[int]{
		ForwardNotify{},
		ForwardRetrieve[int]{Pending: pending},
		Execute{Instruction: 2, Element: 5},
		RetroNotify{Instruction: 1},
		RetroRetrieve[int]{Instruction: 3, Pending: pending},
	}
	for _, point := range points {
		t.Run(point.Phase().String(), func(t *testing.T) {
			fc := FailureContext[int]{Phase: point.Phase(), Process: processAt(tr, tree.Root, point)}
			got, err := fc.ResumePoint()
			require.NoError(t, err)
			assert.Equal(t, point, got)
		})
	}
}

func TestFailed(t *testing.T) {
	assert.False(t, failed(future.New[[]effect.Context[int]]().Future()))
	assert.False(t, failed(future.Value[[]effect.Context[int]](nil)))
	assert.True(t, failed(future.Failed[[]effect.Context[int]](assert.AnError)))
}
