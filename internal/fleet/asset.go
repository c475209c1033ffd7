// Package fleet models the delivery fleet: zone-restricted beverage
// carts, free-roaming delivery staff, and the in-memory registry that
// owns them.
package fleet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/greenside-dev/course-dispatch/internal/course"
)

// Kind discriminates the asset variants.
type Kind string

const (
	KindBeverageCart  Kind = "beverage_cart"
	KindDeliveryStaff Kind = "delivery_staff"
)

// Status is an asset's operational state.
type Status string

const (
	StatusAvailable         Status = "available"
	StatusOfferPending      Status = "offer_pending"
	StatusEnRouteToPickup   Status = "en_route_to_pickup"
	StatusAtStore           Status = "at_store"
	StatusEnRouteToCustomer Status = "en_route_to_customer"
	StatusReturning         Status = "returning"
	StatusOffline           Status = "offline"
)

// Busy reports whether the status represents active delivery work.
func (s Status) Busy() bool {
	switch s {
	case StatusEnRouteToPickup, StatusAtStore, StatusEnRouteToCustomer, StatusReturning:
		return true
	}
	return false
}

var (
	ErrZoneViolation = errors.New("cart asked to leave its loop")
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrOfferPending  = errors.New("asset already holds an outstanding offer")
)

// Stats accumulates per-asset usage counters over a scenario.
type Stats struct {
	ActiveMin   float64 `json:"active_min"`
	IdleMin     float64 `json:"idle_min"`
	Deliveries  int     `json:"deliveries"`
	DistanceMin float64 `json:"distance_min"`
}

// Asset is the shared surface of the two delivery variants. Mutators are
// unexported; all writes flow through the registry.
type Asset interface {
	ID() string
	Name() string
	Kind() Kind
	// Loop returns the zone restriction; ok is false for staff.
	Loop() (course.Loop, bool)
	// Serves reports whether the asset may deliver to the hole.
	Serves(h course.Hole) bool
	Status() Status
	Location() course.Location
	Queue() []uuid.UUID
	Stats() Stats

	setStatus(Status)
	setLocation(course.Location) error
	enqueue(uuid.UUID)
	dequeue(uuid.UUID) bool
	statsRef() *Stats
}

// baseAsset carries the fields both variants share.
type baseAsset struct {
	id     string
	name   string
	status Status
	loc    course.Location
	queue  []uuid.UUID
	stats  Stats
}

func (b *baseAsset) ID() string                { return b.id }
func (b *baseAsset) Name() string              { return b.name }
func (b *baseAsset) Status() Status            { return b.status }
func (b *baseAsset) Location() course.Location { return b.loc }
func (b *baseAsset) Stats() Stats              { return b.stats }
func (b *baseAsset) statsRef() *Stats          { return &b.stats }

func (b *baseAsset) Queue() []uuid.UUID {
	return append([]uuid.UUID(nil), b.queue...)
}

func (b *baseAsset) setStatus(s Status) { b.status = s }

func (b *baseAsset) enqueue(id uuid.UUID) { b.queue = append(b.queue, id) }

func (b *baseAsset) dequeue(id uuid.UUID) bool {
	for i, q := range b.queue {
		if q == id {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return true
		}
	}
	return false
}

// BeverageCart is a cart locked to one 9-hole loop and restricted to
// forward travel on it.
type BeverageCart struct {
	baseAsset
	loop course.Loop
}

// NewBeverageCart creates an available cart at a hole on its loop.
func NewBeverageCart(id, name string, loop course.Loop, at course.Hole) (*BeverageCart, error) {
	if course.LoopOf(at) != loop {
		return nil, fmt.Errorf("%w: cart %s starting at hole %d", ErrZoneViolation, id, at)
	}
	return &BeverageCart{
		baseAsset: baseAsset{id: id, name: name, status: StatusAvailable, loc: course.AtHole(at)},
		loop:      loop,
	}, nil
}

func (c *BeverageCart) Kind() Kind { return KindBeverageCart }

func (c *BeverageCart) Loop() (course.Loop, bool) { return c.loop, true }

func (c *BeverageCart) Serves(h course.Hole) bool {
	return course.ValidHole(h) && course.LoopOf(h) == c.loop
}

// setLocation rejects any position off the cart's loop.
func (c *BeverageCart) setLocation(loc course.Location) error {
	l, ok := loc.CurrentLoop()
	if !ok || l != c.loop {
		return fmt.Errorf("%w: cart %s to %s", ErrZoneViolation, c.id, loc)
	}
	c.loc = loc
	return nil
}

// DeliveryStaff can serve any hole and may stage at the clubhouse.
type DeliveryStaff struct {
	baseAsset
}

// NewDeliveryStaff creates available staff at the given location.
func NewDeliveryStaff(id, name string, at course.Location) *DeliveryStaff {
	return &DeliveryStaff{
		baseAsset: baseAsset{id: id, name: name, status: StatusAvailable, loc: at},
	}
}

func (s *DeliveryStaff) Kind() Kind { return KindDeliveryStaff }

func (s *DeliveryStaff) Loop() (course.Loop, bool) { return "", false }

func (s *DeliveryStaff) Serves(h course.Hole) bool { return course.ValidHole(h) }

func (s *DeliveryStaff) setLocation(loc course.Location) error {
	s.loc = loc
	return nil
}
