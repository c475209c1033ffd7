package oracle

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// failingOracle always errors, standing in for an unreachable model.
type failingOracle struct{}

func (failingOracle) PrepTime([]orders.Item, *rand.Rand) (float64, error) {
	return 0, errors.New("model offline")
}

func (failingOracle) TravelTime(fleet.AssetView, course.Hole, course.TimeBucket, *rand.Rand) (float64, error) {
	return 0, errors.New("model offline")
}

func (failingOracle) Acceptance(fleet.AssetView, *orders.Order) (float64, error) {
	return 0, errors.New("model offline")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestGuarded_FallsBackOnFailure(t *testing.T) {
	g := NewGuarded(failingOracle{}, 3, time.Second, testLogger())
	rng := rand.New(rand.NewSource(1))

	prep, err := g.PrepTime(nil, rng)
	require.NoError(t, err)
	assert.Equal(t, 10.0, prep)

	staff := fleet.AssetView{ID: "staff-1", Kind: fleet.KindDeliveryStaff, Location: course.AtHole(2)}
	eta, err := g.TravelTime(staff, 5, course.BucketAfternoon, rng)
	require.NoError(t, err)
	// 1.5 minutes per hole of distance: hole 2 -> 5 is three hops.
	assert.Equal(t, 4.5, eta)

	o, err := orders.New(uuid.New(), 5, nil, course.BucketAfternoon, 0)
	require.NoError(t, err)
	p, err := g.Acceptance(staff, o)
	require.NoError(t, err)
	assert.Equal(t, 0.8, p)
}

func TestGuarded_ZoneIneligibilityStillInf(t *testing.T) {
	g := NewGuarded(failingOracle{}, 3, time.Second, testLogger())
	cart := fleet.AssetView{ID: "cart-1", Kind: fleet.KindBeverageCart, Loop: course.LoopFront, Location: course.AtHole(2)}
	eta, err := g.TravelTime(cart, 14, course.BucketAfternoon, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, math.IsInf(eta, 1))
}

func TestGuarded_PassesThroughHealthyModel(t *testing.T) {
	g := NewGuarded(NewModel(course.Default()), 3, time.Second, testLogger())
	view := fleet.AssetView{ID: "cart-1", Kind: fleet.KindBeverageCart, Loop: course.LoopFront, Location: course.AtHole(1)}
	eta, err := g.TravelTime(view, 5, course.BucketAfternoon, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Greater(t, eta, 0.0)
	assert.False(t, math.IsInf(eta, 1))
}
