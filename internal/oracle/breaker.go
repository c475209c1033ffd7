package oracle

import (
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// Fallback constants used when the prediction model is unavailable.
const (
	fallbackPrepMin    = 10.0
	fallbackMinPerHole = 1.5
	fallbackAcceptance = 0.8
)

// Guarded wraps an Oracle with circuit-breaker protection. When the
// breaker is open or a prediction call fails, deterministic fallbacks are
// served so dispatch keeps making progress.
type Guarded struct {
	inner   Oracle
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewGuarded wraps the oracle. Threshold is the request count the breaker
// samples before tripping on a 60% failure ratio.
func NewGuarded(inner Oracle, threshold int, timeout time.Duration, logger *logrus.Logger) *Guarded {
	settings := gobreaker.Settings{
		Name:        "prediction-oracle",
		MaxRequests: uint32(threshold),
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(threshold) && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	return &Guarded{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// PrepTime delegates to the model, falling back to the default prep time.
func (g *Guarded) PrepTime(items []orders.Item, rng *rand.Rand) (float64, error) {
	v, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.PrepTime(items, rng)
	})
	if err != nil {
		g.logger.WithError(err).Warn("Prep prediction unavailable, using fallback")
		return fallbackPrepMin, nil
	}
	return v.(float64), nil
}

// TravelTime delegates to the model, falling back to 1.5 minutes per hole
// of distance. Zone ineligibility still yields +Inf.
func (g *Guarded) TravelTime(view fleet.AssetView, target course.Hole, bucket course.TimeBucket, rng *rand.Rand) (float64, error) {
	v, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.TravelTime(view, target, bucket, rng)
	})
	if err != nil {
		if !course.ValidHole(target) {
			return 0, err
		}
		if !view.Serves(target) {
			return math.Inf(1), nil
		}
		g.logger.WithError(err).Warn("Travel prediction unavailable, using fallback")
		return fallbackMinPerHole * float64(fallbackHoleDistance(view.Location, target)), nil
	}
	return v.(float64), nil
}

// Acceptance delegates to the model, falling back to the base 0.8.
func (g *Guarded) Acceptance(view fleet.AssetView, o *orders.Order) (float64, error) {
	v, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Acceptance(view, o)
	})
	if err != nil {
		g.logger.WithError(err).Warn("Acceptance prediction unavailable, using fallback")
		return fallbackAcceptance, nil
	}
	return v.(float64), nil
}

// fallbackHoleDistance is a crude hop count usable when the model is
// down: same-loop minimum walk, cross-loop through the clubhouse.
func fallbackHoleDistance(loc course.Location, target course.Hole) int {
	if loc.Clubhouse {
		return 1 + course.MinHoleDistance(course.EntryHole(course.LoopOf(target)), target)
	}
	at := loc.Hole
	if loc.Mid {
		at = loc.From
	}
	if course.LoopOf(at) == course.LoopOf(target) {
		return course.MinHoleDistance(at, target)
	}
	out := course.MinHoleDistance(at, course.EntryHole(course.LoopOf(at)))
	in := course.MinHoleDistance(course.EntryHole(course.LoopOf(target)), target)
	return out + in + 2
}
