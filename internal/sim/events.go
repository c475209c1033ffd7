// Package sim drives the dispatch flow as a discrete-event simulation
// and aggregates the KPI metrics a scenario reports.
package sim

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// EventKind enumerates the scheduler's event types.
type EventKind string

const (
	EventOrderArrival     EventKind = "ORDER_ARRIVAL"
	EventOfferTimeout     EventKind = "OFFER_TIMEOUT"
	EventAssetArrived     EventKind = "ASSET_ARRIVED"
	EventDeliveryComplete EventKind = "DELIVERY_COMPLETE"
	EventLocationTick     EventKind = "LOCATION_TICK"
	EventSimulationEnd    EventKind = "SIMULATION_END"
)

// Waypoint tags for AssetArrived events.
const (
	WaypointStore  = "store"
	WaypointPickup = "pickup"
	WaypointReturn = "return"
)

// Event is one scheduled occurrence. Queue order is (At, Seq): ties at
// the same simulated time resolve in insertion order.
type Event struct {
	At   float64
	Kind EventKind
	Seq  int64

	OrderID  uuid.UUID
	AssetID  string
	Waypoint string
	TimerSeq int
	Detail   string
}

// eventQueue is the priority queue behind the scheduler.
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].At != q[j].At {
		return q[i].At < q[j].At
	}
	return q[i].Seq < q[j].Seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(*Event)) }

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

var _ heap.Interface = (*eventQueue)(nil)

// Record is one line of the scenario's event log, also fanned out to any
// attached sinks.
type Record struct {
	T       float64 `json:"t"`
	Kind    string  `json:"kind"`
	OrderID string  `json:"order_id,omitempty"`
	AssetID string  `json:"asset_id,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Log record kinds beyond the raw event kinds.
const (
	RecordOrderArrival     = "ORDER_ARRIVAL"
	RecordNoCandidate      = "DISPATCH_NO_CANDIDATE"
	RecordOfferMade        = "OFFER_MADE"
	RecordOfferAccepted    = "OFFER_ACCEPTED"
	RecordOfferTimeout     = "OFFER_TIMEOUT"
	RecordOrderAssigned    = "ORDER_ASSIGNED"
	RecordOrderPickedUp    = "ORDER_PICKED_UP"
	RecordDeliveryComplete = "DELIVERY_COMPLETE"
	RecordOrderRequeued    = "ORDER_REQUEUED"
	RecordUnassignable     = "ORDER_UNASSIGNABLE"
	RecordSimulationEnd    = "SIMULATION_END"
)

// WriteTo writes the record in the stable line format: fixed field
// order, "-" for absent ids.
func (r Record) WriteTo(w io.Writer) {
	orderID := r.OrderID
	if orderID == "" {
		orderID = "-"
	}
	assetID := r.AssetID
	if assetID == "" {
		assetID = "-"
	}
	fmt.Fprintf(w, "t=%.2f kind=%s order=%s asset=%s detail=%s\n", r.T, r.Kind, orderID, assetID, r.Detail)
}

// Sink receives records as they are produced, e.g. a websocket hub or a
// redis stream publisher.
type Sink interface {
	Publish(Record)
}
