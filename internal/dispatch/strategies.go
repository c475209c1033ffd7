package dispatch

import (
	"github.com/google/uuid"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// rescoreFunc lets a built-in replace the default final score while
// keeping the shared breakdown. Lower remains better.
type rescoreFunc func(view fleet.AssetView, o *orders.Order, sc Score, keyed func() float64) float64

// policy is the shared chassis all built-in strategies ride on: the
// candidate pool, the planner, and the multi-factor scorer, with knobs
// for batching and final-score overrides.
type policy struct {
	scorer
	name              string
	batching          bool
	batchIncentivePer float64
	rescore           rescoreFunc
}

func (p *policy) Name() string { return p.name }

// Score evaluates one asset against an order batch.
func (p *policy) Score(view fleet.AssetView, batch []*orders.Order, snap fleet.Snapshot) (Score, bool) {
	cand, ok := p.eval(view, batch, snap)
	if !ok {
		return Score{}, false
	}
	return cand.Score, true
}

// eval runs the shared evaluation and applies the policy's rescoring.
func (p *policy) eval(view fleet.AssetView, batch []*orders.Order, snap fleet.Snapshot) (Candidate, bool) {
	adjust := p.batchIncentivePer * float64(len(batch)-1)
	cand, sc, ok := p.evaluate(view, batch, snap, adjust)
	if !ok {
		return Candidate{}, false
	}
	if p.rescore != nil {
		o := batch[0]
		keyed := func() float64 { return p.keyedRNG(view, o, snap.TakenAt).Float64() }
		cand.Score.Final = p.rescore(view, o, sc, keyed)
	}
	return cand, true
}

// Rank builds the ranked candidate list for the offer protocol. The open
// slice holds every order not yet picked up: pending orders feed batch
// enumeration, assigned-but-not-picked-up orders let a pre-pickup asset
// absorb a compatible new order into its existing route.
func (p *policy) Rank(o *orders.Order, open []*orders.Order, snap fleet.Snapshot) []Candidate {
	byID := make(map[uuid.UUID]*orders.Order, len(open))
	for _, ord := range open {
		byID[ord.ID] = ord
	}

	var ranked []Candidate
	for _, view := range p.pool(o, snap) {
		options := make([]Candidate, 0, 4)
		switch view.Status {
		case fleet.StatusEnRouteToPickup, fleet.StatusAtStore:
			// Merge candidacy: the only option is the combined route of
			// the asset's committed orders plus the new one.
			batch := []*orders.Order{o}
			missing := false
			for _, qid := range view.Queue {
				q, ok := byID[qid]
				if !ok {
					missing = true
					break
				}
				batch = append(batch, q)
			}
			if missing {
				continue
			}
			if cand, ok := p.eval(view, batch, snap); ok {
				options = append(options, cand)
			}
		default:
			if cand, ok := p.eval(view, []*orders.Order{o}, snap); ok {
				options = append(options, cand)
			}
			if p.batching && view.Status == fleet.StatusAvailable {
				extras := p.batchable(o, open)
				maxExtra := p.deps.Params.MaxBatchSize - 1
				combinations(extras, maxExtra, func(combo []*orders.Order) {
					batch := append([]*orders.Order{o}, combo...)
					if cand, ok := p.eval(view, batch, snap); ok {
						options = append(options, cand)
					}
				})
			}
		}
		if best, ok := pickOption(options); ok {
			ranked = append(ranked, best)
		}
	}
	sortCandidates(ranked)
	return ranked
}

// newCartPreference is the default strategy: full multi-factor scoring
// with batching enabled.
func newCartPreference(d Deps) Strategy {
	return &policy{scorer: newScorer(d), name: StrategyCartPreference, batching: true}
}

// newFastestETA ranks purely on predicted delivery time.
func newFastestETA(d Deps) Strategy {
	return &policy{
		scorer: newScorer(d),
		name:   StrategyFastestETA,
		rescore: func(_ fleet.AssetView, _ *orders.Order, sc Score, _ func() float64) float64 {
			return sc.ETAMin
		},
	}
}

// newZoneOptimal biases hard toward keeping carts on their own loop:
// an in-loop cart beats staff unless the staff ETA wins by a wide
// margin.
func newZoneOptimal(d Deps) Strategy {
	return &policy{
		scorer:   newScorer(d),
		name:     StrategyZoneOptimal,
		batching: true,
		rescore: func(view fleet.AssetView, _ *orders.Order, sc Score, _ func() float64) float64 {
			final := sc.Final
			if view.Kind == fleet.KindBeverageCart {
				// Pool membership already guarantees the loop matches.
				final -= 5.0
			}
			return final
		},
	}
}

// newBatchOrders is the aggressive batching variant: default scoring
// plus a per-extra-order incentive that tips close calls toward batches.
func newBatchOrders(d Deps) Strategy {
	return &policy{
		scorer:            newScorer(d),
		name:              StrategyBatchOrders,
		batching:          true,
		batchIncentivePer: -1.0,
	}
}

// newNearest is the hole-distance baseline.
func newNearest(d Deps) Strategy {
	return &policy{
		scorer: newScorer(d),
		name:   StrategyNearest,
		rescore: func(view fleet.AssetView, o *orders.Order, _ Score, _ func() float64) float64 {
			loc := view.Location
			if loc.Clubhouse {
				return float64(1 + course.MinHoleDistance(course.EntryHole(course.LoopOf(o.TargetHole)), o.TargetHole))
			}
			at := loc.Hole
			if loc.Mid {
				at = loc.From
			}
			if course.LoopOf(at) == course.LoopOf(o.TargetHole) {
				return float64(course.MinHoleDistance(at, o.TargetHole))
			}
			out := course.MinHoleDistance(at, course.EntryHole(course.LoopOf(at)))
			in := course.MinHoleDistance(course.EntryHole(course.LoopOf(o.TargetHole)), o.TargetHole)
			return float64(out + in + 2)
		},
	}
}

// newRandom is the seeded random baseline; draws come from the keyed RNG
// so a replayed snapshot ranks identically.
func newRandom(d Deps) Strategy {
	return &policy{
		scorer: newScorer(d),
		name:   StrategyRandom,
		rescore: func(_ fleet.AssetView, _ *orders.Order, _ Score, keyed func() float64) float64 {
			return keyed()
		},
	}
}

// newLoadBalanced spreads work: fewest queued orders, then fewest
// lifetime deliveries, then ETA.
func newLoadBalanced(d Deps) Strategy {
	return &policy{
		scorer: newScorer(d),
		name:   StrategyLoadBalanced,
		rescore: func(view fleet.AssetView, _ *orders.Order, sc Score, _ func() float64) float64 {
			return float64(view.ActiveOrders())*1000 + float64(view.Stats.Deliveries)*100 + sc.ETAMin
		},
	}
}
