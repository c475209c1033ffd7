// Package dispatch ranks candidate asset/order pairings, plans
// multi-order batches, and runs the offer protocol over the ranked list.
package dispatch

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// Strategy names selectable in scenario configuration.
const (
	StrategyFastestETA     = "FASTEST_ETA"
	StrategyCartPreference = "CART_PREFERENCE"
	StrategyZoneOptimal    = "ZONE_OPTIMAL"
	StrategyBatchOrders    = "BATCH_ORDERS"
	StrategyNearest        = "NEAREST"
	StrategyRandom         = "RANDOM"
	StrategyLoadBalanced   = "LOAD_BALANCED"
)

// scoreEpsilon treats final scores this close as tied for ranking.
const scoreEpsilon = 1e-9

// Params are the dispatch tunables. Zero value is not usable; start from
// DefaultParams.
type Params struct {
	MaxBatchSize            int
	AdjacentHoleThreshold   int
	BatchDeliveryPenaltyMin float64
	BatchEfficiencyBonus    float64
	CartPreferenceWindowMin float64
	SoonAvailableMin        float64
	OfferWindowMin          float64
	MaxRetries              int
	RetryBackoffMin         float64
	PlayerPaceMin           float64
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		MaxBatchSize:            3,
		AdjacentHoleThreshold:   2,
		BatchDeliveryPenaltyMin: 2.0,
		BatchEfficiencyBonus:    0.85,
		CartPreferenceWindowMin: 10.0,
		SoonAvailableMin:        3.0,
		OfferWindowMin:          0.25,
		MaxRetries:              3,
		RetryBackoffMin:         1.0,
		PlayerPaceMin:           15.0,
	}
}

// Score is the layered scoring breakdown for one candidate option.
// Lower final scores are better.
type Score struct {
	Final          float64     `json:"final_score"`
	ETAMin         float64     `json:"eta"`
	DistanceScore  float64     `json:"distance_score"`
	AssetTypeScore float64     `json:"asset_type_score"`
	Predictability float64     `json:"predictability_score"`
	BatchAdjust    float64     `json:"batch_adjustment"`
	PredictedHole  course.Hole `json:"predicted_hole"`
	Acceptance     float64     `json:"acceptance_prob"`
}

// Drop is one planned stop on a candidate's route. OffsetMin is measured
// from the moment the asset departs the pickup point.
type Drop struct {
	OrderID   uuid.UUID
	Hole      course.Hole
	OffsetMin float64
}

// Candidate is one ranked asset option, possibly covering a batch.
type Candidate struct {
	AssetID   string
	Batch     []uuid.UUID
	Score     Score
	PickupMin float64
	Drops     []Drop
	ReturnMin float64 // post-route return leg (staff only)
}

// BatchSize is the number of orders the candidate commits to.
func (c Candidate) BatchSize() int { return len(c.Batch) }

// DecisionKind classifies a dispatch decision.
type DecisionKind string

const (
	DecisionAssign      DecisionKind = "assign"
	DecisionDelay       DecisionKind = "delay"
	DecisionNoCandidate DecisionKind = "no_candidate"
)

// Decision is a strategy's answer for one order.
type Decision struct {
	Kind       DecisionKind
	Candidate  *Candidate
	RetryAfter float64
}

// Strategy is the pluggable dispatch policy. Implementations must treat
// the snapshot as read-only and must be pure given their RNG.
type Strategy interface {
	Name() string
	// Rank returns feasible candidates for the order ordered best first.
	// Pending holds the other open orders (unassigned, or assigned but not
	// yet picked up) the planner may batch or merge with.
	Rank(o *orders.Order, pending []*orders.Order, snap fleet.Snapshot) []Candidate
	// Score evaluates one asset against an order batch (len >= 1). The
	// boolean is false when the asset is ineligible.
	Score(view fleet.AssetView, batch []*orders.Order, snap fleet.Snapshot) (Score, bool)
}

// Deps are the borrowed collaborators a strategy works against.
type Deps struct {
	Course *course.Course
	Oracle oracle.Oracle
	Params Params
	RNG    *rand.Rand
	Logger *logrus.Logger
}

// factory builds a strategy from its dependencies.
type factory func(Deps) Strategy

var factories = map[string]factory{
	StrategyFastestETA:     func(d Deps) Strategy { return newFastestETA(d) },
	StrategyCartPreference: func(d Deps) Strategy { return newCartPreference(d) },
	StrategyZoneOptimal:    func(d Deps) Strategy { return newZoneOptimal(d) },
	StrategyBatchOrders:    func(d Deps) Strategy { return newBatchOrders(d) },
	StrategyNearest:        func(d Deps) Strategy { return newNearest(d) },
	StrategyRandom:         func(d Deps) Strategy { return newRandom(d) },
	StrategyLoadBalanced:   func(d Deps) Strategy { return newLoadBalanced(d) },
}

// New builds a named strategy. Names are case-insensitive.
func New(name string, deps Deps) (Strategy, error) {
	f, ok := factories[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, Names())
	}
	return f(deps), nil
}

// Names lists the registered strategy names.
func Names() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Choose wraps Rank into the single-decision surface upstream adapters
// use: the best candidate, a Delay when the best option is an asset that
// frees up shortly, or NoCandidate with the retry backoff.
func Choose(s Strategy, p Params, o *orders.Order, pending []*orders.Order, snap fleet.Snapshot) Decision {
	ranked := s.Rank(o, pending, snap)
	if len(ranked) == 0 {
		return Decision{Kind: DecisionNoCandidate, RetryAfter: p.RetryBackoffMin}
	}
	best := ranked[0]
	if view, ok := snap.Get(best.AssetID); ok && view.Status.Busy() && view.BusyUntil > snap.TakenAt {
		if view.Status != fleet.StatusEnRouteToPickup && view.Status != fleet.StatusAtStore {
			return Decision{Kind: DecisionDelay, Candidate: &best, RetryAfter: view.BusyUntil - snap.TakenAt}
		}
	}
	return Decision{Kind: DecisionAssign, Candidate: &best}
}

// sortCandidates orders candidates best first with deterministic
// tie-breaks: lower final score, then lower rejection risk (higher
// acceptance), then lower asset id.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		d := a.Score.Final - b.Score.Final
		if d < -scoreEpsilon {
			return true
		}
		if d > scoreEpsilon {
			return false
		}
		if a.Score.Acceptance != b.Score.Acceptance {
			return a.Score.Acceptance > b.Score.Acceptance
		}
		return a.AssetID < b.AssetID
	})
}
