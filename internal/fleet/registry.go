package fleet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/greenside-dev/course-dispatch/internal/course"
)

// Registry is the in-memory asset store. Single-writer under the owning
// engine's scheduler step; readers take snapshots.
type Registry struct {
	byID  map[string]Asset
	order []string

	// busyUntil estimates when a busy asset frees up, for the
	// soon-available candidate pool.
	busyUntil map[string]float64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]Asset),
		busyUntil: make(map[string]float64),
	}
}

// Register adds an asset. Registration order is preserved and drives
// deterministic iteration.
func (r *Registry) Register(a Asset) error {
	if _, dup := r.byID[a.ID()]; dup {
		return fmt.Errorf("asset %s already registered", a.ID())
	}
	r.byID[a.ID()] = a
	r.order = append(r.order, a.ID())
	return nil
}

// Get returns an asset by id.
func (r *Registry) Get(id string) (Asset, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a, nil
}

// List returns all assets in registration order.
func (r *Registry) List() []Asset {
	out := make([]Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// UpdateLocation moves an asset. Carts reject positions off their loop.
func (r *Registry) UpdateLocation(id string, loc course.Location) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	return a.setLocation(loc)
}

// SetStatus transitions an asset's operational status.
func (r *Registry) SetStatus(id string, status Status) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.setStatus(status)
	return nil
}

// ArmOffer puts an asset into OfferPending. At most one outstanding offer
// per asset is allowed across the whole system; arming an asset that already
// holds an offer fails. Busy assets can be armed (pre-pickup merge offers).
func (r *Registry) ArmOffer(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if a.Status() == StatusOfferPending {
		return fmt.Errorf("%w: %s", ErrOfferPending, id)
	}
	a.setStatus(StatusOfferPending)
	return nil
}

// ClearOffer returns an OfferPending asset to Available. Declines carry
// no penalty; the asset re-enters the pool with unchanged rank inputs.
func (r *Registry) ClearOffer(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if a.Status() == StatusOfferPending {
		a.setStatus(StatusAvailable)
	}
	return nil
}

// EnqueueOrder appends an order to an asset's delivery queue. Only the
// offer protocol's commit step calls this.
func (r *Registry) EnqueueOrder(id string, orderID uuid.UUID) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.enqueue(orderID)
	return nil
}

// DequeueOrder removes an order from an asset's delivery queue.
func (r *Registry) DequeueOrder(id string, orderID uuid.UUID) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if !a.dequeue(orderID) {
		return fmt.Errorf("order %s not queued on asset %s", orderID, id)
	}
	return nil
}

// SetBusyUntil records when a busy asset is expected back.
func (r *Registry) SetBusyUntil(id string, at float64) {
	r.busyUntil[id] = at
}

// RecordTick accrues one location-tick worth of active or idle time.
func (r *Registry) RecordTick(id string, active bool, minutes float64) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	st := a.statsRef()
	if active {
		st.ActiveMin += minutes
	} else {
		st.IdleMin += minutes
	}
	return nil
}

// RecordTravel accrues travelled minutes.
func (r *Registry) RecordTravel(id string, minutes float64) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.statsRef().DistanceMin += minutes
	return nil
}

// RecordDelivery counts one completed drop.
func (r *Registry) RecordDelivery(id string) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	a.statsRef().Deliveries++
	return nil
}

// AssetView is a read-only copy of one asset for dispatch decisions.
type AssetView struct {
	ID        string
	Name      string
	Kind      Kind
	Loop      course.Loop // empty for staff
	Status    Status
	Location  course.Location
	Queue     []uuid.UUID
	BusyUntil float64
	Stats     Stats
}

// ActiveOrders is the number of orders currently queued on the asset.
func (v AssetView) ActiveOrders() int { return len(v.Queue) }

// Serves reports whether the asset may deliver to the hole.
func (v AssetView) Serves(h course.Hole) bool {
	if !course.ValidHole(h) {
		return false
	}
	if v.Kind == KindBeverageCart {
		return course.LoopOf(h) == v.Loop
	}
	return true
}

// Snapshot is an immutable fleet view captured at dispatch time.
// Strategies and the planner must not mutate registry state through it.
type Snapshot struct {
	TakenAt float64
	Assets  []AssetView
}

// Snapshot captures the current fleet state.
func (r *Registry) Snapshot(now float64) Snapshot {
	views := make([]AssetView, 0, len(r.order))
	for _, id := range r.order {
		a := r.byID[id]
		loop, _ := a.Loop()
		views = append(views, AssetView{
			ID:        a.ID(),
			Name:      a.Name(),
			Kind:      a.Kind(),
			Loop:      loop,
			Status:    a.Status(),
			Location:  a.Location(),
			Queue:     a.Queue(),
			BusyUntil: r.busyUntil[id],
			Stats:     a.Stats(),
		})
	}
	return Snapshot{TakenAt: now, Assets: views}
}

// Get returns the view for an asset id.
func (s Snapshot) Get(id string) (AssetView, bool) {
	for _, v := range s.Assets {
		if v.ID == id {
			return v, true
		}
	}
	return AssetView{}, false
}
