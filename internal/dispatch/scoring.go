package dispatch

import (
	"hash/crc32"
	"math"
	"math/rand"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// Multi-factor scoring weights.
const (
	weightETA            = 1.0
	weightDistance       = 0.5
	weightAssetType      = 0.3
	weightPredictability = 0.2

	// cartWindowBias is the asset-type score for a cart whose ETA falls
	// inside the preference window.
	cartWindowBias = -1.0
)

// scorer holds the shared scoring machinery every built-in strategy
// composes. It never mutates the snapshot and never touches the engine
// RNG: perturbations are drawn from a keyed RNG derived per
// (asset, order, snapshot) so replaying a snapshot reproduces scores.
type scorer struct {
	deps Deps
	seed int64
}

func newScorer(deps Deps) scorer {
	return scorer{deps: deps, seed: deps.RNG.Int63()}
}

// keyedRNG derives the replay-stable RNG for one scoring evaluation.
func (s *scorer) keyedRNG(view fleet.AssetView, o *orders.Order, takenAt float64) *rand.Rand {
	h := crc32.NewIEEE()
	h.Write([]byte(view.ID))
	h.Write(o.ID[:])
	var buf [8]byte
	bits := math.Float64bits(takenAt)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	h.Write(buf[:])
	return rand.New(rand.NewSource(s.seed ^ int64(h.Sum32())))
}

// pool selects the candidate assets for an order: everything Available,
// assets still headed to pickup (their route can absorb a compatible
// order), and busy assets expected back within the soon-available
// window. Zone-ineligible carts never enter the pool.
func (s *scorer) pool(o *orders.Order, snap fleet.Snapshot) []fleet.AssetView {
	var out []fleet.AssetView
	for _, v := range snap.Assets {
		if !v.Serves(o.TargetHole) {
			continue
		}
		switch v.Status {
		case fleet.StatusAvailable, fleet.StatusEnRouteToPickup, fleet.StatusAtStore:
			out = append(out, v)
		case fleet.StatusOfferPending, fleet.StatusOffline:
			// Holding an offer or off shift: not a candidate.
		default:
			if v.BusyUntil > snap.TakenAt && v.BusyUntil-snap.TakenAt <= s.deps.Params.SoonAvailableMin {
				out = append(out, v)
			}
		}
	}
	return out
}

// multiFactorScore composes the default layered score over a planned
// route. The ETA term is the predicted delivery time of the final drop,
// the distance term proxies the return cost from the drop-off, the
// asset-type term biases carts inside the preference window, and the
// predictability term charges hole-prediction variance.
func (s *scorer) multiFactorScore(view fleet.AssetView, o *orders.Order, plan routePlan, batchAdjust float64) Score {
	p := s.deps.Params
	eta := plan.TotalMin
	bucket := o.Bucket

	distance := s.deps.Course.ClubhouseReturnCost(plan.LastHole, bucket)

	assetType := 0.0
	if view.Kind == fleet.KindBeverageCart && eta <= p.CartPreferenceWindowMin {
		assetType = cartWindowBias
	}

	variance := course.PredictVariance(eta, p.PlayerPaceMin)

	final := weightETA*eta +
		weightDistance*distance +
		weightAssetType*assetType +
		weightPredictability*variance +
		batchAdjust

	return Score{
		Final:          final,
		ETAMin:         eta,
		DistanceScore:  distance,
		AssetTypeScore: assetType,
		Predictability: variance,
		BatchAdjust:    batchAdjust,
		PredictedHole:  plan.PredictedFor(o.ID),
		Acceptance:     s.acceptance(view, o),
	}
}

func (s *scorer) acceptance(view fleet.AssetView, o *orders.Order) float64 {
	p, err := s.deps.Oracle.Acceptance(view, o)
	if err != nil {
		return 0.8
	}
	return p
}

// evaluate plans a route for the batch on the asset and scores it with
// the default multi-factor formula. The first stop list pass uses raw
// target holes; the second re-targets each drop at the hole the golfer
// is predicted to reach by its arrival.
func (s *scorer) evaluate(view fleet.AssetView, batch []*orders.Order, snap fleet.Snapshot, batchAdjust float64) (Candidate, Score, bool) {
	o := batch[0]
	rng := s.keyedRNG(view, o, snap.TakenAt)

	stops := make([]stop, len(batch))
	for i, b := range batch {
		stops[i] = stop{order: b, hole: b.TargetHole}
	}
	plan, ok := s.planRoute(view, stops, o.Bucket, rng)
	if !ok {
		return Candidate{}, Score{}, false
	}

	// Re-target drops at predicted golfer positions and re-plan once.
	retargeted := false
	for i := range stops {
		elapsed := plan.PickupMin + plan.offsetFor(stops[i].order.ID)
		predicted := course.PredictHole(stops[i].order.TargetHole, elapsed, s.deps.Params.PlayerPaceMin)
		if predicted != stops[i].hole {
			stops[i].hole = predicted
			retargeted = true
		}
	}
	if retargeted {
		replanned, ok := s.planRoute(view, stops, o.Bucket, rng)
		if ok {
			plan = replanned
		}
	}

	score := s.multiFactorScore(view, o, plan, batchAdjust)

	batchIDs := plan.orderIDs()
	return Candidate{
		AssetID:   view.ID,
		Batch:     batchIDs,
		Score:     score,
		PickupMin: plan.PickupMin,
		Drops:     plan.Drops,
		ReturnMin: plan.ReturnMin,
	}, score, true
}
