package sim

import (
	"github.com/greenside-dev/course-dispatch/internal/course"
)

// waypoint is a timed position along a committed route.
type waypoint struct {
	at  float64
	loc course.Location
	// forwardOnly constrains the leg ending at this waypoint to forward
	// loop travel (carts).
	forwardOnly bool
}

// travelRoute is the position track the location ticker interpolates
// over for a busy asset.
type travelRoute struct {
	course *course.Course
	bucket course.TimeBucket
	points []waypoint
}

// locationAt interpolates the asset's position at simulated time t.
func (r *travelRoute) locationAt(t float64) (course.Location, bool) {
	if len(r.points) == 0 {
		return course.Location{}, false
	}
	if t <= r.points[0].at {
		return r.points[0].loc, true
	}
	last := r.points[len(r.points)-1]
	if t >= last.at {
		return last.loc, true
	}
	for i := 1; i < len(r.points); i++ {
		w1, w2 := r.points[i-1], r.points[i]
		if t > w2.at {
			continue
		}
		span := w2.at - w1.at
		if span <= 0 {
			return w2.loc, true
		}
		frac := (t - w1.at) / span
		return legLocation(r.course, w1.loc, w2.loc, frac, w2.forwardOnly, r.bucket), true
	}
	return last.loc, true
}

// legLocation positions a point fraction-of-the-way along one leg.
// Clubhouse-terminated legs snap to the start until arrival; hole-to-
// hole legs interpolate along the actual segment path so carts stay on
// their loop and never reverse.
func legLocation(c *course.Course, from, to course.Location, frac float64, forwardOnly bool, bucket course.TimeBucket) course.Location {
	if frac <= 0 {
		return from
	}
	if frac >= 1 {
		return to
	}
	if from.Clubhouse || to.Clubhouse || from.Mid || to.Mid {
		return from
	}
	a, b := from.Hole, to.Hole
	if a == b || course.LoopOf(a) != course.LoopOf(b) {
		return from
	}

	forward := true
	if !forwardOnly {
		fwd := c.ForwardCost(a, b, bucket)
		back := c.ForwardCost(b, a, bucket)
		forward = fwd <= back
	}

	if forward {
		total := c.ForwardCost(a, b, bucket)
		walked := frac * total
		cur := a
		for cur != b {
			seg, ok := c.Segment(cur)
			if !ok {
				return from
			}
			cost := c.ForwardCost(cur, seg.To, bucket)
			if walked <= cost {
				if cost <= 0 {
					return course.AtHole(seg.To)
				}
				return course.MidSegment(seg.From, seg.To, walked/cost)
			}
			walked -= cost
			cur = seg.To
		}
		return course.AtHole(b)
	}

	// Backward walk: traverse the b→a forward path in reverse.
	total := c.ForwardCost(b, a, bucket)
	walked := frac * total
	// Collect the forward path b→a, then step backwards along it.
	path := []course.Hole{b}
	cur := b
	for cur != a {
		seg, _ := c.Segment(cur)
		path = append(path, seg.To)
		cur = seg.To
	}
	// Walking from a toward b means consuming path segments from the end.
	for i := len(path) - 1; i > 0; i-- {
		segFrom, segTo := path[i-1], path[i]
		cost := c.ForwardCost(segFrom, segTo, bucket)
		if walked <= cost {
			if cost <= 0 {
				return course.AtHole(segFrom)
			}
			// On segment segFrom→segTo moving toward segFrom.
			return course.MidSegment(segFrom, segTo, 1-walked/cost)
		}
		walked -= cost
	}
	return course.AtHole(b)
}
