package course

import (
	"fmt"
	"math"
)

// segmentCost returns the traversal time for one segment after the
// time-of-day multiplier and the uphill surcharge for holes 10-15. The
// two factors combine additively before any random perturbation.
func segmentCost(s Segment, bucket TimeBucket) float64 {
	factor := bucket.TravelFactor()
	if s.To >= uphillFirst && s.To <= uphillLast {
		factor += uphillFactor
	}
	return s.AvgMinutes * factor
}

// forwardCost sums segment costs walking the loop forward from one hole
// to another. Both holes must be on the same loop.
func (c *Course) forwardCost(from, to Hole, bucket TimeBucket) float64 {
	total := 0.0
	cur := from
	for i := 0; i < 9 && cur != to; i++ {
		s := c.next[cur]
		total += segmentCost(s, bucket)
		cur = s.To
	}
	return total
}

// minWalkCost is the cheaper of the two directed traversals between two
// holes on the same loop. Walking against segment direction costs the
// same as walking it forward.
func (c *Course) minWalkCost(from, to Hole, bucket TimeBucket) float64 {
	return math.Min(c.forwardCost(from, to, bucket), c.forwardCost(to, from, bucket))
}

// ForwardCost sums segment costs walking the loop forward between two
// holes on the same loop.
func (c *Course) ForwardCost(from, to Hole, bucket TimeBucket) float64 {
	return c.forwardCost(from, to, bucket)
}

// MinWalk is the cheaper directed traversal between two holes on the
// same loop.
func (c *Course) MinWalk(from, to Hole, bucket TimeBucket) float64 {
	return c.minWalkCost(from, to, bucket)
}

// EntryCost is the clubhouse<->loop transfer time for a loop.
func (c *Course) EntryCost(loop Loop, bucket TimeBucket) float64 {
	return c.entryCost(loop, bucket)
}

// ClubhouseReturnCost is the travel time from a hole back to the
// clubhouse, used as the returning-cost proxy in scoring.
func (c *Course) ClubhouseReturnCost(h Hole, bucket TimeBucket) float64 {
	loop := LoopOf(h)
	return c.minWalkCost(h, EntryHole(loop), bucket) + c.entryCost(loop, bucket)
}

// StaffToClubhouse is the travel time from any staff location to the
// clubhouse.
func (c *Course) StaffToClubhouse(loc Location, bucket TimeBucket) float64 {
	if loc.Clubhouse {
		return 0
	}
	at := loc.Hole
	if loc.Mid {
		// Approximate from the segment tail; the residual is within one
		// segment of exact.
		at = loc.From
	}
	return c.ClubhouseReturnCost(at, bucket)
}

// EntryHole is the hole adjacent to the clubhouse for a loop.
func EntryHole(loop Loop) Hole {
	if loop == LoopFront {
		return FirstHole
	}
	return FirstBackHole
}

// entryCost is the clubhouse<->loop transfer time, priced as the segment
// entering the loop's first hole.
func (c *Course) entryCost(loop Loop, bucket TimeBucket) float64 {
	if loop == LoopFront {
		return segmentCost(c.next[LastFrontHole], bucket)
	}
	return segmentCost(c.next[LastHole], bucket)
}

// CartETA computes the forward-only travel time for a beverage cart from
// its location to the target hole. A target outside the cart's loop is
// ineligible and yields +Inf. Carts never reverse: a cart past the target
// traverses the remainder of its loop.
func (c *Course) CartETA(loc Location, target Hole, cartLoop Loop, bucket TimeBucket) (float64, error) {
	if !ValidHole(target) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownHole, target)
	}
	if LoopOf(target) != cartLoop {
		return math.Inf(1), nil
	}

	if loc.Clubhouse {
		entry := EntryHole(cartLoop)
		return c.entryCost(cartLoop, bucket) + c.forwardCost(entry, target, bucket), nil
	}

	if loc.Mid {
		if !ValidHole(loc.From) || !ValidHole(loc.To) {
			return 0, fmt.Errorf("%w: %s", ErrOffCourse, loc)
		}
		if LoopOf(loc.From) != cartLoop {
			return math.Inf(1), nil
		}
		seg := c.next[loc.From]
		residual := (1 - loc.Fraction) * segmentCost(seg, bucket)
		return residual + c.forwardCost(seg.To, target, bucket), nil
	}

	if !ValidHole(loc.Hole) {
		return 0, fmt.Errorf("%w: %s", ErrOffCourse, loc)
	}
	if LoopOf(loc.Hole) != cartLoop {
		return math.Inf(1), nil
	}
	return c.forwardCost(loc.Hole, target, bucket), nil
}

// StaffETA computes travel time for delivery staff, who may walk either
// direction on a loop and cross between loops through the clubhouse.
func (c *Course) StaffETA(loc Location, target Hole, bucket TimeBucket) (float64, error) {
	if !ValidHole(target) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownHole, target)
	}
	targetLoop := LoopOf(target)

	if loc.Clubhouse {
		entry := EntryHole(targetLoop)
		return c.entryCost(targetLoop, bucket) + c.minWalkCost(entry, target, bucket), nil
	}

	if loc.Mid {
		if !ValidHole(loc.From) {
			return 0, fmt.Errorf("%w: %s", ErrOffCourse, loc)
		}
		seg := c.next[loc.From]
		// Take the cheaper of finishing the segment or backtracking to
		// its tail, then walk from that hole.
		fwd := (1-loc.Fraction)*segmentCost(seg, bucket) + c.staffFromHole(seg.To, target, bucket)
		back := loc.Fraction*segmentCost(seg, bucket) + c.staffFromHole(loc.From, target, bucket)
		return math.Min(fwd, back), nil
	}

	if !ValidHole(loc.Hole) {
		return 0, fmt.Errorf("%w: %s", ErrOffCourse, loc)
	}
	return c.staffFromHole(loc.Hole, target, bucket), nil
}

// staffFromHole walks staff from a hole to the target, crossing through
// the clubhouse when the target sits on the other loop.
func (c *Course) staffFromHole(at, target Hole, bucket TimeBucket) float64 {
	if LoopOf(at) == LoopOf(target) {
		return c.minWalkCost(at, target, bucket)
	}
	fromLoop := LoopOf(at)
	toLoop := LoopOf(target)
	toClubhouse := c.minWalkCost(at, EntryHole(fromLoop), bucket) + c.entryCost(fromLoop, bucket)
	fromClubhouse := c.entryCost(toLoop, bucket) + c.minWalkCost(EntryHole(toLoop), target, bucket)
	return toClubhouse + fromClubhouse
}

// ForwardHoleDistance counts forward hops between two holes on the same
// loop.
func ForwardHoleDistance(from, to Hole) int {
	if LoopOf(from) != LoopOf(to) {
		return -1
	}
	start := int(EntryHole(LoopOf(from)))
	f := int(from) - start
	t := int(to) - start
	d := t - f
	if d < 0 {
		d += 9
	}
	return d
}

// MinHoleDistance counts hops between two holes on the same loop taking
// the shorter direction.
func MinHoleDistance(a, b Hole) int {
	d := ForwardHoleDistance(a, b)
	if d < 0 {
		return -1
	}
	if 9-d < d {
		return 9 - d
	}
	return d
}

// HopsToClubhouse counts holes between a location and the clubhouse,
// measured to the loop's entry hole. Used as the pickup-distance input to
// acceptance prediction.
func HopsToClubhouse(loc Location) int {
	if loc.Clubhouse {
		return 0
	}
	at := loc.Hole
	if loc.Mid {
		at = loc.From
	}
	return MinHoleDistance(at, EntryHole(LoopOf(at)))
}

// PredictHole returns the hole a golfer who ordered at start is expected
// to occupy after elapsed minutes, advancing one hole per paceMin minutes
// and wrapping within the loop.
func PredictHole(start Hole, elapsedMin, paceMin float64) Hole {
	if paceMin <= 0 || elapsedMin <= 0 {
		return start
	}
	advance := int(elapsedMin / paceMin)
	loopStart := int(EntryHole(LoopOf(start)))
	offset := (int(start) - loopStart + advance) % 9
	return Hole(loopStart + offset)
}

// PredictVariance returns the variance of the predicted drop-off hole
// under +/-20% player-pace uncertainty, treating the advance as uniform
// over the induced interval.
func PredictVariance(elapsedMin, paceMin float64) float64 {
	if paceMin <= 0 || elapsedMin <= 0 {
		return 0
	}
	hi := elapsedMin / (paceMin * 0.8)
	lo := elapsedMin / (paceMin * 1.2)
	width := hi - lo
	return width * width / 12.0
}
