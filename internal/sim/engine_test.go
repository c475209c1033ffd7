package sim

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// scriptedOracle pins acceptance per asset while keeping the real
// travel model, so offer outcomes are forced without touching the RNG
// stream.
type scriptedOracle struct {
	model   *oracle.Model
	accept  map[string]float64
	prepMin float64
}

func newScriptedOracle(c *course.Course, accept map[string]float64) *scriptedOracle {
	return &scriptedOracle{model: oracle.NewModel(c), accept: accept, prepMin: 1.0}
}

func (s *scriptedOracle) PrepTime([]orders.Item, *rand.Rand) (float64, error) {
	return s.prepMin, nil
}

func (s *scriptedOracle) TravelTime(view fleet.AssetView, target course.Hole, bucket course.TimeBucket, rng *rand.Rand) (float64, error) {
	return s.model.TravelTime(view, target, bucket, rng)
}

func (s *scriptedOracle) Acceptance(view fleet.AssetView, _ *orders.Order) (float64, error) {
	if p, ok := s.accept[view.ID]; ok {
		return p, nil
	}
	return 1.0, nil
}

func testScenario(carts, staff int) Scenario {
	sc := DefaultScenario()
	sc.NumBeverageCarts = carts
	sc.NumDeliveryStaff = staff
	return sc
}

func placeTestOrder(t *testing.T, e *Engine, hole course.Hole) *orders.Order {
	t.Helper()
	id, err := uuid.NewRandomFromReader(e.rng)
	require.NoError(t, err)
	o, err := orders.New(id, hole, []orders.Item{
		{Name: "Turkey Club", Quantity: 1, Complexity: orders.ComplexityMedium, UnitPrice: decimal.NewFromFloat(12.5)},
	}, e.scenario.bucketAt(e.clock), e.clock)
	require.NoError(t, err)
	require.NoError(t, e.book.Place(o))
	e.metrics.RecordPlaced()
	return o
}

func drain(e *Engine) {
	for e.queue.Len() > 0 {
		if !e.step() {
			return
		}
	}
}

func TestSameHolePairBatchesOntoCart(t *testing.T) {
	var log bytes.Buffer
	sc := testScenario(1, 1)
	stub := newScriptedOracle(course.Default(), nil)
	e, err := New(sc, course.Default(), testLogger(), WithOracle(stub), WithEventLog(&log))
	require.NoError(t, err)

	// Park the staff on the back loop so the front cart is the clear
	// pick for both orders.
	require.NoError(t, e.registry.UpdateLocation("staff-1", course.AtHole(14)))

	o1 := placeTestOrder(t, e, 5)
	e.dispatchOrder(o1)
	require.Equal(t, orders.StateAssigned, o1.State)
	require.Equal(t, "cart-1", o1.AssetID)

	e.clock = 0.1
	o2 := placeTestOrder(t, e, 5)
	e.dispatchOrder(o2)
	require.Equal(t, orders.StateAssigned, o2.State)
	assert.Equal(t, "cart-1", o2.AssetID)

	assert.Len(t, o1.BatchMembers, 2)
	assert.Len(t, o2.BatchMembers, 2)
	assert.Equal(t, o1.BatchID, o2.BatchID)

	rt := e.active["cart-1"]
	require.NotNil(t, rt)
	require.Len(t, rt.drops, 2)
	for _, d := range rt.drops {
		assert.Equal(t, course.Hole(5), d.Hole)
	}
	lastDrop := rt.departAt + rt.drops[len(rt.drops)-1].OffsetMin

	drain(e)

	assert.Equal(t, orders.StateDelivered, o1.State)
	assert.Equal(t, orders.StateDelivered, o2.State)
	assert.True(t, o1.Batched())
	assert.True(t, o2.Batched())

	// One pickup, two drops, total route in the 8-minute ballpark.
	assert.InDelta(t, 8.0, lastDrop, 8.0*0.35)
	assert.Equal(t, 1, strings.Count(log.String(), "kind=ORDER_PICKED_UP order="+o1.ID.String()))
}

func TestZoneRejectLeavesOrderPending(t *testing.T) {
	var log bytes.Buffer
	sc := testScenario(1, 1)
	e, err := New(sc, course.Default(), testLogger(),
		WithOracle(newScriptedOracle(course.Default(), nil)), WithEventLog(&log))
	require.NoError(t, err)

	// Only cart-1 (front loop) is free; staff-1 is deep in a delivery.
	require.NoError(t, e.registry.SetStatus("staff-1", fleet.StatusEnRouteToCustomer))
	e.registry.SetBusyUntil("staff-1", 100)

	o := placeTestOrder(t, e, 14)
	e.dispatchOrder(o)

	assert.Equal(t, orders.StatePending, o.State)
	assert.Equal(t, 1, o.RetryCount)
	assert.Contains(t, log.String(), "kind=DISPATCH_NO_CANDIDATE")

	// The retry picks staff-1 up once it frees.
	require.NoError(t, e.registry.SetStatus("staff-1", fleet.StatusAvailable))
	drain(e)
	assert.Equal(t, orders.StateDelivered, o.State)
	assert.Equal(t, "staff-1", o.AssetID)
}

func TestDeclineCascadeMovesToSecondCandidate(t *testing.T) {
	var log bytes.Buffer
	sc := testScenario(0, 2)
	stub := newScriptedOracle(course.Default(), map[string]float64{
		"staff-1": 0.0, // always declines
		"staff-2": 1.0, // always accepts
	})
	e, err := New(sc, course.Default(), testLogger(), WithOracle(stub), WithEventLog(&log))
	require.NoError(t, err)

	// staff-2 starts far away so staff-1 ranks first.
	require.NoError(t, e.registry.UpdateLocation("staff-2", course.AtHole(14)))

	o := placeTestOrder(t, e, 5)
	e.dispatchOrder(o)

	// The offer to staff-1 is outstanding; its window must elapse.
	a1, _ := e.registry.Get("staff-1")
	assert.Equal(t, fleet.StatusOfferPending, a1.Status())

	drain(e)

	assert.Equal(t, orders.StateDelivered, o.State)
	assert.Equal(t, "staff-2", o.AssetID)
	assert.Equal(t, 1, strings.Count(log.String(), "kind=OFFER_TIMEOUT"))

	// The decliner is available again with nothing held against it.
	a1, _ = e.registry.Get("staff-1")
	assert.Equal(t, fleet.StatusAvailable, a1.Status())
	assert.Empty(t, a1.Queue())
}

func TestExhaustionMarksOrderUnassignable(t *testing.T) {
	var log bytes.Buffer
	sc := testScenario(0, 2)
	e, err := New(sc, course.Default(), testLogger(),
		WithOracle(newScriptedOracle(course.Default(), nil)), WithEventLog(&log))
	require.NoError(t, err)

	for _, id := range []string{"staff-1", "staff-2"} {
		require.NoError(t, e.registry.SetStatus(id, fleet.StatusEnRouteToCustomer))
		e.registry.SetBusyUntil(id, 1000)
	}

	o := placeTestOrder(t, e, 7)
	e.dispatchOrder(o)
	drain(e)

	assert.Equal(t, orders.StateUnassignable, o.State)
	assert.Equal(t, sc.Params.MaxRetries+1, o.RetryCount)
	assert.Contains(t, log.String(), "kind=ORDER_UNASSIGNABLE")
	assert.Equal(t, sc.Params.MaxRetries+1, strings.Count(log.String(), "kind=DISPATCH_NO_CANDIDATE"))

	report := e.Report()
	assert.Equal(t, 1.0, report.KPIs["unassignable_orders"])
}

func TestReproducibility(t *testing.T) {
	run := func() (string, map[string]float64) {
		var log bytes.Buffer
		sc := testScenario(2, 2)
		sc.DurationMin = 120
		sc.VolumeMultiplier = 2.0
		sc.Seed = 42
		e, err := New(sc, course.Default(), testLogger(), WithEventLog(&log))
		require.NoError(t, err)
		report, err := e.Run()
		require.NoError(t, err)
		return log.String(), report.KPIs
	}

	log1, kpis1 := run()
	log2, kpis2 := run()
	assert.Equal(t, log1, log2)
	assert.Equal(t, kpis1, kpis2)
	assert.NotEmpty(t, log1)
}

func TestRunInvariants(t *testing.T) {
	sc := testScenario(2, 2)
	sc.DurationMin = 180
	sc.Seed = 7
	e, err := New(sc, course.Default(), testLogger())
	require.NoError(t, err)
	report, err := e.Run()
	require.NoError(t, err)

	// Delivered orders progress monotonically through their milestones.
	batched := 0
	delivered := 0
	for _, o := range e.book.All() {
		if o.State != orders.StateDelivered {
			continue
		}
		delivered++
		require.NotNil(t, o.AssignedAt)
		require.NotNil(t, o.PickedUpAt)
		require.NotNil(t, o.DeliveredAt)
		assert.LessOrEqual(t, o.PlacedAt, *o.AssignedAt)
		assert.LessOrEqual(t, *o.AssignedAt, *o.PickedUpAt)
		assert.LessOrEqual(t, *o.PickedUpAt, *o.DeliveredAt)
		if o.Batched() {
			batched++
		}
	}
	require.Greater(t, delivered, 0)

	// batched_pct matches its definition and stays in range.
	expectedPct := float64(batched) / float64(delivered) * 100
	assert.InDelta(t, expectedPct, report.KPIs["batched_pct"], 1e-9)
	assert.LessOrEqual(t, report.KPIs["batched_pct"], 100.0)

	// Carts never leave their loops.
	for _, a := range e.registry.List() {
		if loop, ok := a.Loop(); ok {
			l, onCourse := a.Location().CurrentLoop()
			require.True(t, onCourse)
			assert.Equal(t, loop, l)
		}
	}

	// Tracked time accounts for the whole scenario within one tick.
	for _, a := range report.Assets {
		assert.InDelta(t, sc.DurationMin, a.ActiveMin+a.IdleMin, sc.LocationTickMin+1e-9)
	}
}

func TestArrivalsStopAtSimulationEnd(t *testing.T) {
	sc := testScenario(1, 1)
	sc.DurationMin = 60
	e, err := New(sc, course.Default(), testLogger())
	require.NoError(t, err)
	_, err = e.Run()
	require.NoError(t, err)

	for _, o := range e.book.All() {
		assert.Less(t, o.PlacedAt, sc.DurationMin)
	}
}

func TestMidRunReportDoesNotDisturbState(t *testing.T) {
	sc := testScenario(2, 2)
	sc.DurationMin = 90
	sc.Seed = 42

	var log1 bytes.Buffer
	e1, err := New(sc, course.Default(), testLogger(), WithEventLog(&log1))
	require.NoError(t, err)
	for i := 0; i < 200 && e1.step(); i++ {
		if i%50 == 0 {
			_ = e1.Report() // KPI reads mid-run must be side-effect free
		}
	}
	for e1.step() {
	}

	var log2 bytes.Buffer
	e2, err := New(sc, course.Default(), testLogger(), WithEventLog(&log2))
	require.NoError(t, err)
	for e2.step() {
	}

	assert.Equal(t, log2.String(), log1.String())
}

func TestOfferPendingIsExclusive(t *testing.T) {
	sc := testScenario(0, 1)
	stub := newScriptedOracle(course.Default(), map[string]float64{"staff-1": 0.0})
	e, err := New(sc, course.Default(), testLogger(), WithOracle(stub))
	require.NoError(t, err)

	o1 := placeTestOrder(t, e, 5)
	e.dispatchOrder(o1)
	a, _ := e.registry.Get("staff-1")
	require.Equal(t, fleet.StatusOfferPending, a.Status())

	// A second order dispatched while the offer is outstanding cannot
	// reach the same asset.
	o2 := placeTestOrder(t, e, 6)
	e.dispatchOrder(o2)
	assert.Equal(t, orders.StatePending, o2.State)
	assert.Equal(t, 1, o2.RetryCount)
}
