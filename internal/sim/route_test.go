package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside-dev/course-dispatch/internal/course"
)

func TestTravelRoute_InterpolatesForwardLeg(t *testing.T) {
	c := course.Default()
	r := &travelRoute{
		course: c,
		bucket: course.BucketAfternoon,
		points: []waypoint{
			{at: 0, loc: course.AtHole(1)},
			{at: 10, loc: course.AtHole(5), forwardOnly: true},
		},
	}

	loc, ok := r.locationAt(0)
	require.True(t, ok)
	assert.Equal(t, course.AtHole(1), loc)

	loc, ok = r.locationAt(10)
	require.True(t, ok)
	assert.Equal(t, course.AtHole(5), loc)

	// Midway the cart sits somewhere strictly inside the 1->5 stretch,
	// on a forward segment of the front loop.
	loc, ok = r.locationAt(5)
	require.True(t, ok)
	l, onCourse := loc.CurrentLoop()
	require.True(t, onCourse)
	assert.Equal(t, course.LoopFront, l)
	if loc.Mid {
		assert.Less(t, int(loc.From), int(loc.To))
		assert.GreaterOrEqual(t, loc.Fraction, 0.0)
		assert.LessOrEqual(t, loc.Fraction, 1.0)
	}
}

func TestTravelRoute_ClampsOutsideWindow(t *testing.T) {
	r := &travelRoute{
		course: course.Default(),
		bucket: course.BucketAfternoon,
		points: []waypoint{
			{at: 2, loc: course.AtHole(3)},
			{at: 6, loc: course.AtHole(4)},
		},
	}

	loc, ok := r.locationAt(0)
	require.True(t, ok)
	assert.Equal(t, course.AtHole(3), loc)

	loc, ok = r.locationAt(100)
	require.True(t, ok)
	assert.Equal(t, course.AtHole(4), loc)
}

func TestTravelRoute_ClubhouseLegSnaps(t *testing.T) {
	r := &travelRoute{
		course: course.Default(),
		bucket: course.BucketAfternoon,
		points: []waypoint{
			{at: 0, loc: course.AtClubhouse()},
			{at: 8, loc: course.AtHole(5)},
		},
	}
	loc, ok := r.locationAt(4)
	require.True(t, ok)
	assert.True(t, loc.Clubhouse)
}

func TestLegLocation_BackwardWalkStaysOnSegments(t *testing.T) {
	c := course.Default()
	// Staff walking from hole 1 backwards to hole 8 passes hole 9.
	loc := legLocation(c, course.AtHole(1), course.AtHole(8), 0.3, false, course.BucketAfternoon)
	if loc.Mid {
		// Positions report against the forward segment orientation.
		seg, ok := c.Segment(loc.From)
		require.True(t, ok)
		assert.Equal(t, seg.To, loc.To)
	}

	loc = legLocation(c, course.AtHole(1), course.AtHole(8), 1.0, false, course.BucketAfternoon)
	assert.Equal(t, course.AtHole(8), loc)
}
