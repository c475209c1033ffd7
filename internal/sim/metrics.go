package sim

import (
	"fmt"
	"sort"

	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/orders"
	"github.com/greenside-dev/course-dispatch/pkg/stats"
)

// OrderSample is the per-order metrics record captured at delivery.
type OrderSample struct {
	OrderID   string  `json:"order_id"`
	Placed    float64 `json:"placed"`
	Assigned  float64 `json:"assigned"`
	Delivered float64 `json:"delivered"`
	Wait      float64 `json:"wait"`
	Total     float64 `json:"total"`
	Batched   bool    `json:"batched"`
}

// AssetSample is the per-asset metrics record captured at report time.
type AssetSample struct {
	AssetID     string     `json:"asset_id"`
	Type        fleet.Kind `json:"type"`
	ActiveMin   float64    `json:"active_time"`
	IdleMin     float64    `json:"idle_time"`
	Deliveries  int        `json:"deliveries"`
	DistanceMin float64    `json:"distance"`
}

// Utilization is active over total tracked time.
func (a AssetSample) Utilization() float64 {
	total := a.ActiveMin + a.IdleMin
	if total <= 0 {
		return 0
	}
	return a.ActiveMin / total
}

// Metrics accumulates samples over a run. Every KPI is a pure function
// of the samples, so reports can be taken mid-simulation without
// disturbing engine state.
type Metrics struct {
	targetDeliveryMin float64
	targetWaitMin     float64

	samples      []OrderSample
	totalOrders  int
	unassignable int
	undelivered  int
}

// NewMetrics creates an accumulator against the scenario's targets.
func NewMetrics(targetDeliveryMin, targetWaitMin float64) *Metrics {
	return &Metrics{
		targetDeliveryMin: targetDeliveryMin,
		targetWaitMin:     targetWaitMin,
	}
}

// RecordPlaced counts a placed order.
func (m *Metrics) RecordPlaced() { m.totalOrders++ }

// RecordUnassignable counts an order that exhausted its retries.
func (m *Metrics) RecordUnassignable() { m.unassignable++ }

// RecordUndelivered counts orders still open when the scenario ended.
func (m *Metrics) RecordUndelivered(n int) { m.undelivered += n }

// RecordDelivery captures the per-order sample for a delivered order.
func (m *Metrics) RecordDelivery(o *orders.Order) {
	if o.DeliveredAt == nil || o.AssignedAt == nil {
		return
	}
	m.samples = append(m.samples, OrderSample{
		OrderID:   o.ID.String(),
		Placed:    o.PlacedAt,
		Assigned:  *o.AssignedAt,
		Delivered: *o.DeliveredAt,
		Wait:      *o.AssignedAt - o.PlacedAt,
		Total:     *o.DeliveredAt - o.PlacedAt,
		Batched:   o.Batched(),
	})
}

// Report is the KPI summary plus the raw rows it derives from.
type Report struct {
	KPIs   map[string]float64 `json:"kpis"`
	Orders []OrderSample      `json:"orders"`
	Assets []AssetSample      `json:"assets"`
}

// Report computes every KPI from the accumulated samples and the fleet's
// usage counters.
func (m *Metrics) Report(assets []AssetSample, durationMin float64) Report {
	kpis := make(map[string]float64)

	totals := make([]float64, 0, len(m.samples))
	waits := make([]float64, 0, len(m.samples))
	batched := 0
	onTimeDelivery := 0
	onTimeWait := 0
	for _, s := range m.samples {
		totals = append(totals, s.Total)
		waits = append(waits, s.Wait)
		if s.Batched {
			batched++
		}
		if s.Total <= m.targetDeliveryMin {
			onTimeDelivery++
		}
		if s.Wait <= m.targetWaitMin {
			onTimeWait++
		}
	}

	delivered := len(m.samples)
	kpis["total_orders"] = float64(m.totalOrders)
	kpis["delivered_orders"] = float64(delivered)
	kpis["undelivered_orders"] = float64(m.undelivered)
	kpis["unassignable_orders"] = float64(m.unassignable)

	kpis["delivery_time_avg"] = stats.Mean(totals)
	kpis["delivery_time_median"] = stats.Median(totals)
	kpis["delivery_time_stdev"] = stats.StdDev(totals)
	kpis["delivery_time_range"] = stats.Range(totals)

	kpis["wait_time_avg"] = stats.Mean(waits)
	kpis["wait_time_median"] = stats.Median(waits)
	kpis["wait_time_stdev"] = stats.StdDev(waits)
	kpis["wait_time_range"] = stats.Range(waits)

	if durationMin > 0 {
		kpis["orders_per_hour"] = float64(delivered) / durationMin * 60.0
	} else {
		kpis["orders_per_hour"] = 0
	}

	if delivered > 0 {
		kpis["batched_pct"] = float64(batched) / float64(delivered) * 100.0
		kpis["on_time_delivery_pct"] = float64(onTimeDelivery) / float64(delivered) * 100.0
		kpis["on_time_wait_pct"] = float64(onTimeWait) / float64(delivered) * 100.0
	} else {
		kpis["batched_pct"] = 0
		kpis["on_time_delivery_pct"] = 0
		kpis["on_time_wait_pct"] = 0
	}

	// Per-asset and per-type utilization.
	typeActive := make(map[fleet.Kind]float64)
	typeTotal := make(map[fleet.Kind]float64)
	for _, a := range assets {
		kpis[fmt.Sprintf("utilization_%s", a.AssetID)] = a.Utilization() * 100.0
		typeActive[a.Type] += a.ActiveMin
		typeTotal[a.Type] += a.ActiveMin + a.IdleMin
	}
	for kind, total := range typeTotal {
		util := 0.0
		if total > 0 {
			util = typeActive[kind] / total
		}
		kpis[fmt.Sprintf("utilization_%s", kind)] = util * 100.0
	}

	rows := append([]OrderSample(nil), m.samples...)
	return Report{KPIs: kpis, Orders: rows, Assets: assets}
}

// Keys returns the report's KPI names sorted for stable output.
func (r Report) Keys() []string {
	keys := make([]string, 0, len(r.KPIs))
	for k := range r.KPIs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
