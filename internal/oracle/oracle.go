// Package oracle provides the layered predictive estimates dispatch runs
// on: order prep time, travel time, and offer acceptance probability.
// Every estimator is side-effect free; randomness comes only from the
// caller's explicit RNG so simulations replay bit-identically.
package oracle

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// HighValueThreshold is the order value above which candidates are
// slightly more willing to accept.
var HighValueThreshold = decimal.NewFromInt(50)

const (
	defaultPrepMin   = 10.0
	minPrepMin       = 1.0
	minTravelMin     = 0.5
	prepPerturbation = 0.20
	travelPerturb    = 0.10
)

// Oracle is the prediction surface dispatch consumes. Implementations
// must be pure given the RNG argument.
type Oracle interface {
	// PrepTime estimates preparation minutes for an item list.
	PrepTime(items []orders.Item, rng *rand.Rand) (float64, error)
	// TravelTime estimates travel minutes for an asset to reach a hole.
	// Returns +Inf for a zone-ineligible cart; callers treat +Inf as
	// ineligible, not as a failure.
	TravelTime(view fleet.AssetView, target course.Hole, bucket course.TimeBucket, rng *rand.Rand) (float64, error)
	// Acceptance estimates the probability the candidate accepts an
	// offer for the order.
	Acceptance(view fleet.AssetView, o *orders.Order) (float64, error)
}

// Model is the concrete predictor over a course map.
type Model struct {
	course *course.Course
}

// NewModel creates a predictor for the course.
func NewModel(c *course.Course) *Model {
	return &Model{course: c}
}

// PrepTime estimates prep minutes: 2 minutes per unit, scaled by the
// hardest item's complexity factor and a sqrt quantity-efficiency term,
// perturbed +/-20% and floored at one minute. Empty orders default to 10.
func (m *Model) PrepTime(items []orders.Item, rng *rand.Rand) (float64, error) {
	totalQty := 0
	maxFactor := 0.0
	for _, it := range items {
		totalQty += it.Quantity
		if f := it.Complexity.PrepFactor(); f > maxFactor {
			maxFactor = f
		}
	}
	if totalQty == 0 {
		return defaultPrepMin, nil
	}

	base := 2.0 * float64(totalQty)
	efficiency := math.Sqrt(float64(totalQty)) / float64(totalQty)
	prep := base * maxFactor * efficiency
	prep *= 1 - prepPerturbation + 2*prepPerturbation*rng.Float64()
	return math.Max(minPrepMin, prep), nil
}

// TravelTime estimates travel minutes from the asset's location to the
// target hole, perturbed +/-10% and floored at half a minute.
func (m *Model) TravelTime(view fleet.AssetView, target course.Hole, bucket course.TimeBucket, rng *rand.Rand) (float64, error) {
	var eta float64
	var err error
	if view.Kind == fleet.KindBeverageCart {
		eta, err = m.course.CartETA(view.Location, target, view.Loop, bucket)
	} else {
		eta, err = m.course.StaffETA(view.Location, target, bucket)
	}
	if err != nil {
		return 0, err
	}
	if math.IsInf(eta, 1) {
		return eta, nil
	}
	eta *= 1 - travelPerturb + 2*travelPerturb*rng.Float64()
	return math.Max(minTravelMin, eta), nil
}

// Acceptance starts at 0.80 and adjusts for pickup distance, current
// load, cart zone fit, and order value, clamped to [0.10, 1.00].
func (m *Model) Acceptance(view fleet.AssetView, o *orders.Order) (float64, error) {
	p := 0.80
	p -= 0.05 * float64(course.HopsToClubhouse(view.Location))
	p -= 0.10 * float64(view.ActiveOrders())

	if view.Kind == fleet.KindBeverageCart {
		if course.LoopOf(o.TargetHole) == view.Loop {
			p += 0.10
		} else {
			p -= 0.30
		}
	}
	if o.Value.GreaterThan(HighValueThreshold) {
		p += 0.05
	}

	return clamp(p, 0.10, 1.00), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
