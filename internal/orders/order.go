// Package orders holds the order model, its lifecycle state machine, and
// the in-memory order book.
package orders

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greenside-dev/course-dispatch/internal/course"
)

// Complexity classifies how involved an item is to prepare.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// PrepFactor returns the preparation-time multiplier for the complexity.
func (c Complexity) PrepFactor() float64 {
	switch c {
	case ComplexitySimple:
		return 0.8
	case ComplexityComplex:
		return 1.5
	default:
		return 1.0
	}
}

// Item is one line of an order.
type Item struct {
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Complexity Complexity      `json:"complexity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// State is an order's lifecycle state.
type State string

const (
	StatePending      State = "pending"
	StateOffered      State = "offered"
	StateAssigned     State = "assigned"
	StateInDelivery   State = "in_delivery"
	StateDelivered    State = "delivered"
	StateUnassignable State = "unassignable"
)

// stateRank orders states for the monotone-transition check.
var stateRank = map[State]int{
	StatePending:      0,
	StateOffered:      1,
	StateAssigned:     2,
	StateInDelivery:   3,
	StateDelivered:    4,
	StateUnassignable: 5,
}

// Order is an on-course food and beverage order. Timestamps are simulated
// minutes; nil means the milestone has not been reached.
type Order struct {
	ID         uuid.UUID         `json:"id"`
	TargetHole course.Hole       `json:"target_hole"`
	Items      []Item            `json:"items"`
	Value      decimal.Decimal   `json:"value"`
	Bucket     course.TimeBucket `json:"time_bucket"`

	State      State `json:"state"`
	RetryCount int   `json:"retry_count"`

	PlacedAt    float64   `json:"placed_at"`
	OfferedAt   []float64 `json:"offered_at,omitempty"`
	AssignedAt  *float64  `json:"assigned_at,omitempty"`
	PickedUpAt  *float64  `json:"picked_up_at,omitempty"`
	DeliveredAt *float64  `json:"delivered_at,omitempty"`

	// Assignment, set when the offer protocol commits.
	AssetID      string      `json:"asset_id,omitempty"`
	BatchID      string      `json:"batch_id,omitempty"`
	BatchMembers []uuid.UUID `json:"batch_members,omitempty"`
}

// New creates a pending order placed at the given simulated time. The
// order value is the sum of quantity-weighted unit prices.
func New(id uuid.UUID, target course.Hole, items []Item, bucket course.TimeBucket, placedAt float64) (*Order, error) {
	if !course.ValidHole(target) {
		return nil, fmt.Errorf("%w: %d", course.ErrUnknownHole, target)
	}
	return &Order{
		ID:         id,
		TargetHole: target,
		Items:      items,
		Value:      TotalValue(items),
		Bucket:     bucket,
		State:      StatePending,
		PlacedAt:   placedAt,
	}, nil
}

// TotalValue sums quantity-weighted unit prices across items.
func TotalValue(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// TotalQuantity sums item quantities.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Batched reports whether the order was delivered as part of a batch of
// two or more.
func (o *Order) Batched() bool {
	return len(o.BatchMembers) >= 2
}

// canTransition enforces monotone progress through the lifecycle. The one
// sanctioned regression is Offered→Pending when a full decline cascade
// returns the order to the pool.
func canTransition(from, to State) bool {
	if from == StateOffered && to == StatePending {
		return true
	}
	fr, ok1 := stateRank[from]
	tr, ok2 := stateRank[to]
	if !ok1 || !ok2 {
		return false
	}
	if from == StateDelivered || from == StateUnassignable {
		return false
	}
	// Unassignable is reachable only from the pending pool.
	if to == StateUnassignable {
		return from == StatePending
	}
	// Forward jumps are monotone: batch members committed straight from
	// the pending pool skip Offered.
	return tr > fr
}
