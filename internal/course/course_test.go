package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopOf(t *testing.T) {
	assert.Equal(t, LoopFront, LoopOf(1))
	assert.Equal(t, LoopFront, LoopOf(9))
	assert.Equal(t, LoopBack, LoopOf(10))
	assert.Equal(t, LoopBack, LoopOf(18))
}

func TestNew_ValidatesTwoCycles(t *testing.T) {
	c := Default()
	require.NotNil(t, c)

	// Forward walk from each loop entry covers its nine holes.
	cur := Hole(1)
	for i := 0; i < 9; i++ {
		cur = c.NextHole(cur)
	}
	assert.Equal(t, Hole(1), cur)

	cur = Hole(10)
	for i := 0; i < 9; i++ {
		cur = c.NextHole(cur)
	}
	assert.Equal(t, Hole(10), cur)
}

func TestNew_RejectsBrokenMaps(t *testing.T) {
	base := Default().Segments()

	// Missing segment.
	_, err := New(base[:len(base)-1])
	assert.ErrorIs(t, err, ErrInvalidCourse)

	// Cross-loop segment.
	broken := append([]Segment(nil), base...)
	broken[8] = Segment{From: 9, To: 10, AvgMinutes: 2.0}
	_, err = New(broken)
	assert.ErrorIs(t, err, ErrInvalidCourse)

	// Non-positive travel time.
	broken = append([]Segment(nil), base...)
	broken[0] = Segment{From: 1, To: 2, AvgMinutes: 0}
	_, err = New(broken)
	assert.ErrorIs(t, err, ErrInvalidCourse)

	// Unknown hole.
	broken = append([]Segment(nil), base...)
	broken[0] = Segment{From: 1, To: 19, AvgMinutes: 2.0}
	_, err = New(broken)
	assert.ErrorIs(t, err, ErrUnknownHole)
}

func TestForwardHoleDistance(t *testing.T) {
	assert.Equal(t, 4, ForwardHoleDistance(1, 5))
	assert.Equal(t, 6, ForwardHoleDistance(5, 2)) // wraps 5->9->1->2
	assert.Equal(t, 0, ForwardHoleDistance(7, 7))
	assert.Equal(t, 4, ForwardHoleDistance(10, 14))
	assert.Equal(t, -1, ForwardHoleDistance(1, 14))
}

func TestMinHoleDistance(t *testing.T) {
	assert.Equal(t, 3, MinHoleDistance(1, 4))
	assert.Equal(t, 2, MinHoleDistance(1, 8)) // backwards 1->9->8
	assert.Equal(t, 4, MinHoleDistance(10, 14))
}

func TestPredictHole(t *testing.T) {
	// One hole per 15 minutes, wrapping within the loop.
	assert.Equal(t, Hole(5), PredictHole(5, 10, 15))
	assert.Equal(t, Hole(6), PredictHole(5, 15, 15))
	assert.Equal(t, Hole(7), PredictHole(5, 31, 15))
	assert.Equal(t, Hole(1), PredictHole(9, 15, 15))
	assert.Equal(t, Hole(10), PredictHole(18, 16, 15))
	assert.Equal(t, Hole(3), PredictHole(3, 0, 15))
}

func TestPredictVariance_GrowsWithETA(t *testing.T) {
	small := PredictVariance(5, 15)
	large := PredictVariance(30, 15)
	assert.Greater(t, large, small)
	assert.Zero(t, PredictVariance(0, 15))
}
