package dispatch

import (
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// batchEpsilon: options whose final scores sit this close are treated as
// tied, and the smaller batch wins (fewer commitments).
const batchEpsilon = 0.01

// routePerturb is the +/-10% noise applied to a planned route, drawn
// from the replay-stable keyed RNG.
const routePerturb = 0.10

// stop pairs an order with the hole its drop currently targets.
type stop struct {
	order *orders.Order
	hole  course.Hole
}

// routePlan is a fully priced pickup-and-drop route for one asset.
type routePlan struct {
	PickupMin float64
	Drops     []Drop
	ReturnMin float64
	TotalMin  float64
	LastHole  course.Hole
}

func (r routePlan) offsetFor(id uuid.UUID) float64 {
	for _, d := range r.Drops {
		if d.OrderID == id {
			return d.OffsetMin
		}
	}
	return 0
}

// PredictedFor returns the hole the plan drops the order at.
func (r routePlan) PredictedFor(id uuid.UUID) course.Hole {
	for _, d := range r.Drops {
		if d.OrderID == id {
			return d.Hole
		}
	}
	return r.LastHole
}

func (r routePlan) orderIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(r.Drops))
	for i, d := range r.Drops {
		out[i] = d.OrderID
	}
	return out
}

// planRoute prices a pickup plus the batch's drops on one asset. Drops
// are visited in the order the asset encounters them on its forward loop
// (carts) or by a nearest-next sweep from the clubhouse (staff), never by
// order id. Returns false when the batch is infeasible for the asset:
// over capacity, zone mismatch, or drops spread wider than the adjacency
// threshold.
func (s *scorer) planRoute(view fleet.AssetView, stops []stop, bucket course.TimeBucket, rng *rand.Rand) (routePlan, bool) {
	p := s.deps.Params
	k := len(stops)
	if k == 0 || k > p.MaxBatchSize {
		return routePlan{}, false
	}
	for _, st := range stops {
		if !view.Serves(st.hole) {
			return routePlan{}, false
		}
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			a, b := stops[i].hole, stops[j].hole
			if course.LoopOf(a) != course.LoopOf(b) {
				return routePlan{}, false
			}
			if course.MinHoleDistance(a, b) > p.AdjacentHoleThreshold {
				return routePlan{}, false
			}
		}
	}

	c := s.deps.Course
	var pickup float64
	var drops []Drop
	var returnMin float64

	if view.Kind == fleet.KindBeverageCart {
		entry := course.EntryHole(view.Loop)
		eta, err := c.CartETA(view.Location, entry, view.Loop, bucket)
		if err != nil || math.IsInf(eta, 1) {
			return routePlan{}, false
		}
		pickup = eta

		ordered := append([]stop(nil), stops...)
		sort.SliceStable(ordered, func(i, j int) bool {
			di := course.ForwardHoleDistance(entry, ordered[i].hole)
			dj := course.ForwardHoleDistance(entry, ordered[j].hole)
			if di != dj {
				return di < dj
			}
			return ordered[i].order.ID.String() < ordered[j].order.ID.String()
		})

		cur := entry
		t := 0.0
		for i, st := range ordered {
			if i > 0 {
				t += p.BatchDeliveryPenaltyMin
			}
			t += c.ForwardCost(cur, st.hole, bucket)
			drops = append(drops, Drop{OrderID: st.order.ID, Hole: st.hole, OffsetMin: t})
			cur = st.hole
		}
	} else {
		pickup = c.StaffToClubhouse(view.Location, bucket)

		remaining := append([]stop(nil), stops...)
		t := 0.0
		atClubhouse := true
		var cur course.Hole
		for len(remaining) > 0 {
			best := 0
			bestCost := math.Inf(1)
			for i, st := range remaining {
				var cost float64
				if atClubhouse {
					loop := course.LoopOf(st.hole)
					cost = c.EntryCost(loop, bucket) + c.MinWalk(course.EntryHole(loop), st.hole, bucket)
				} else {
					cost = c.MinWalk(cur, st.hole, bucket)
				}
				if cost < bestCost-1e-12 ||
					(math.Abs(cost-bestCost) <= 1e-12 && remaining[i].order.ID.String() < remaining[best].order.ID.String()) {
					best = i
					bestCost = cost
				}
			}
			if len(drops) > 0 {
				t += p.BatchDeliveryPenaltyMin
			}
			t += bestCost
			st := remaining[best]
			drops = append(drops, Drop{OrderID: st.order.ID, Hole: st.hole, OffsetMin: t})
			cur = st.hole
			atClubhouse = false
			remaining = append(remaining[:best], remaining[best+1:]...)
		}
		returnMin = c.ClubhouseReturnCost(cur, bucket)
	}

	// Efficiency bonus compounds per extra order; noise comes from the
	// keyed RNG so the plan replays identically for the same snapshot.
	factor := math.Pow(p.BatchEfficiencyBonus, float64(k-1))
	noise := 1 - routePerturb + 2*routePerturb*rng.Float64()
	scale := factor * noise

	pickup *= scale
	for i := range drops {
		drops[i].OffsetMin *= scale
	}
	returnMin *= noise

	last := drops[len(drops)-1]
	return routePlan{
		PickupMin: pickup,
		Drops:     drops,
		ReturnMin: returnMin,
		TotalMin:  pickup + last.OffsetMin,
		LastHole:  last.Hole,
	}, true
}

// batchable filters the pending pool down to orders that could share a
// route with the dispatched order.
func (s *scorer) batchable(o *orders.Order, pending []*orders.Order) []*orders.Order {
	var out []*orders.Order
	for _, cand := range pending {
		if cand.ID == o.ID || cand.State != orders.StatePending {
			continue
		}
		if course.LoopOf(cand.TargetHole) != course.LoopOf(o.TargetHole) {
			continue
		}
		if course.MinHoleDistance(cand.TargetHole, o.TargetHole) > s.deps.Params.AdjacentHoleThreshold {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// combinations invokes fn with every subset of the pool of size 1..maxK,
// using a bit-mask walk; only the first 16 pool entries are considered.
func combinations(pool []*orders.Order, maxK int, fn func([]*orders.Order)) {
	n := len(pool)
	if n == 0 || maxK <= 0 {
		return
	}
	if n > 16 {
		n = 16
	}
	for mask := 1; mask < (1 << n); mask++ {
		if countBits(mask) > maxK {
			continue
		}
		combo := make([]*orders.Order, 0, maxK)
		for j := 0; j < n; j++ {
			if (mask>>j)&1 == 1 {
				combo = append(combo, pool[j])
			}
		}
		fn(combo)
	}
}

func countBits(n int) int {
	count := 0
	for n > 0 {
		count += n & 1
		n >>= 1
	}
	return count
}

// pickOption selects the argmin across single and batch options,
// preferring smaller batches when finals tie within batchEpsilon.
func pickOption(options []Candidate) (Candidate, bool) {
	if len(options) == 0 {
		return Candidate{}, false
	}
	minFinal := options[0].Score.Final
	for _, opt := range options[1:] {
		if opt.Score.Final < minFinal {
			minFinal = opt.Score.Final
		}
	}
	best := -1
	for i, opt := range options {
		if opt.Score.Final > minFinal+batchEpsilon {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		cur := options[best]
		if opt.BatchSize() < cur.BatchSize() ||
			(opt.BatchSize() == cur.BatchSize() && opt.Score.Final < cur.Score.Final) {
			best = i
		}
	}
	return options[best], true
}
