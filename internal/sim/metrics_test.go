package sim

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

func deliveredOrder(t *testing.T, placed, assigned, delivered float64, batched bool) *orders.Order {
	t.Helper()
	o, err := orders.New(uuid.New(), 5, nil, course.BucketMorning, placed)
	require.NoError(t, err)
	o.State = orders.StateDelivered
	o.AssignedAt = &assigned
	picked := assigned
	o.PickedUpAt = &picked
	o.DeliveredAt = &delivered
	if batched {
		o.BatchMembers = []uuid.UUID{o.ID, uuid.New()}
	}
	return o
}

func TestMetricsReport_KPIs(t *testing.T) {
	m := NewMetrics(25, 10)

	m.RecordPlaced()
	m.RecordPlaced()
	m.RecordPlaced()
	m.RecordDelivery(deliveredOrder(t, 0, 5, 20, true))   // wait 5, total 20, on time
	m.RecordDelivery(deliveredOrder(t, 10, 25, 40, false)) // wait 15, total 30, late
	m.RecordUndelivered(1)

	assets := []AssetSample{
		{AssetID: "cart-1", Type: fleet.KindBeverageCart, ActiveMin: 30, IdleMin: 30, Deliveries: 2},
		{AssetID: "staff-1", Type: fleet.KindDeliveryStaff, ActiveMin: 0, IdleMin: 60},
	}
	report := m.Report(assets, 60)

	assert.Equal(t, 3.0, report.KPIs["total_orders"])
	assert.Equal(t, 2.0, report.KPIs["delivered_orders"])
	assert.Equal(t, 1.0, report.KPIs["undelivered_orders"])

	assert.InDelta(t, 25.0, report.KPIs["delivery_time_avg"], 1e-9)
	assert.InDelta(t, 25.0, report.KPIs["delivery_time_median"], 1e-9)
	assert.InDelta(t, 10.0, report.KPIs["delivery_time_range"], 1e-9)
	assert.InDelta(t, 10.0, report.KPIs["wait_time_avg"], 1e-9)

	assert.InDelta(t, 50.0, report.KPIs["batched_pct"], 1e-9)
	assert.InDelta(t, 50.0, report.KPIs["on_time_delivery_pct"], 1e-9)
	assert.InDelta(t, 50.0, report.KPIs["on_time_wait_pct"], 1e-9)
	assert.InDelta(t, 2.0, report.KPIs["orders_per_hour"], 1e-9)

	assert.InDelta(t, 50.0, report.KPIs["utilization_cart-1"], 1e-9)
	assert.InDelta(t, 0.0, report.KPIs["utilization_staff-1"], 1e-9)
	assert.InDelta(t, 50.0, report.KPIs["utilization_beverage_cart"], 1e-9)
	assert.InDelta(t, 0.0, report.KPIs["utilization_delivery_staff"], 1e-9)
}

func TestMetricsReport_EmptyRun(t *testing.T) {
	m := NewMetrics(25, 10)
	report := m.Report(nil, 60)
	assert.Zero(t, report.KPIs["batched_pct"])
	assert.Zero(t, report.KPIs["delivery_time_avg"])
	assert.Zero(t, report.KPIs["orders_per_hour"])
}

func TestReportKeys_Sorted(t *testing.T) {
	m := NewMetrics(25, 10)
	report := m.Report(nil, 60)
	keys := report.Keys()
	require.NotEmpty(t, keys)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestRecordDelivery_IgnoresIncompleteOrders(t *testing.T) {
	m := NewMetrics(25, 10)
	o, err := orders.New(uuid.New(), 5, nil, course.BucketMorning, 0)
	require.NoError(t, err)
	m.RecordDelivery(o)
	report := m.Report(nil, 60)
	assert.Zero(t, report.KPIs["delivered_orders"])
}

func TestEventRecord_StableLineFormat(t *testing.T) {
	var buf bytes.Buffer
	Record{T: 12.5, Kind: RecordOfferMade, OrderID: "abc", AssetID: "cart-1", Detail: "score=1.00"}.WriteTo(&buf)
	assert.Equal(t, "t=12.50 kind=OFFER_MADE order=abc asset=cart-1 detail=score=1.00\n", buf.String())

	buf.Reset()
	Record{T: 0, Kind: RecordSimulationEnd}.WriteTo(&buf)
	assert.Equal(t, "t=0.00 kind=SIMULATION_END order=- asset=- detail=\n", buf.String())
}
