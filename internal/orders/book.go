package orders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownOrder      = errors.New("unknown order")
	ErrDuplicateOrder    = errors.New("order already placed")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// Book is the in-memory order store. It is single-writer: all mutation
// happens inside the owning engine's event handlers.
type Book struct {
	byID  map[uuid.UUID]*Order
	order []uuid.UUID
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{byID: make(map[uuid.UUID]*Order)}
}

// Place records a new order. The order must be in the pending state.
func (b *Book) Place(o *Order) error {
	if _, dup := b.byID[o.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	b.byID[o.ID] = o
	b.order = append(b.order, o.ID)
	return nil
}

// Get returns an order by id.
func (b *Book) Get(id uuid.UUID) (*Order, error) {
	o, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return o, nil
}

// SetState transitions an order and stamps the milestone timestamp for
// the state entered. Transitions must be monotone along the lifecycle;
// Offered→Pending is sanctioned for the decline cascade.
func (b *Book) SetState(id uuid.UUID, state State, now float64) error {
	o, err := b.Get(id)
	if err != nil {
		return err
	}
	if !canTransition(o.State, state) {
		return fmt.Errorf("%w: %s -> %s for order %s", ErrInvalidTransition, o.State, state, id)
	}
	o.State = state
	switch state {
	case StateOffered:
		o.OfferedAt = append(o.OfferedAt, now)
	case StateAssigned:
		t := now
		o.AssignedAt = &t
	case StateInDelivery:
		t := now
		o.PickedUpAt = &t
	case StateDelivered:
		t := now
		o.DeliveredAt = &t
	}
	return nil
}

// MarkOffered records an offer attempt: the order enters Offered on the
// first attempt and every attempt appends to the offer history.
func (b *Book) MarkOffered(id uuid.UUID, now float64) error {
	o, err := b.Get(id)
	if err != nil {
		return err
	}
	if o.State == StateOffered {
		o.OfferedAt = append(o.OfferedAt, now)
		return nil
	}
	return b.SetState(id, StateOffered, now)
}

// AttachAssignment records which asset and batch an order was committed
// to. Called by the offer protocol's commit step only.
func (b *Book) AttachAssignment(id uuid.UUID, assetID, batchID string, members []uuid.UUID) error {
	o, err := b.Get(id)
	if err != nil {
		return err
	}
	o.AssetID = assetID
	o.BatchID = batchID
	o.BatchMembers = append([]uuid.UUID(nil), members...)
	return nil
}

// ClearAssignment drops the assignment fields when an order returns to
// the pending pool.
func (b *Book) ClearAssignment(id uuid.UUID) error {
	o, err := b.Get(id)
	if err != nil {
		return err
	}
	o.AssetID = ""
	o.BatchID = ""
	o.BatchMembers = nil
	return nil
}

// Pending returns pending orders in placement order.
func (b *Book) Pending() []*Order {
	var out []*Order
	for _, id := range b.order {
		if o := b.byID[id]; o.State == StatePending {
			out = append(out, o)
		}
	}
	return out
}

// All returns every order in placement order.
func (b *Book) All() []*Order {
	out := make([]*Order, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out
}

// Len returns the number of orders in the book.
func (b *Book) Len() int {
	return len(b.order)
}
