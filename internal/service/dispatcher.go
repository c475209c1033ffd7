// Package service runs the dispatch core against wall-clock time for
// the upstream HTTP/WebSocket adapters. Same state machine as the
// simulation engine; only the clock source and the offer timers differ.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/dispatch"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/orders"
	"github.com/greenside-dev/course-dispatch/internal/sim"
)

// pendingOffer is one outstanding wall-clock offer: a small deadline
// record checked by the ticker rather than a suspended task per offer.
type pendingOffer struct {
	run      *dispatch.OfferRun
	assetID  string
	prior    fleet.Status
	deadline time.Time
}

// Dispatcher owns the live registry and order book. All mutation is
// serialized behind one lock: the production analogue of the simulator's
// single-writer scheduler step.
type Dispatcher struct {
	mu sync.Mutex

	course   *course.Course
	registry *fleet.Registry
	book     *orders.Book
	strategy dispatch.Strategy
	params   dispatch.Params
	oracle   oracle.Oracle
	rng      *rand.Rand
	logger   *logrus.Logger

	start     time.Time
	startHour float64
	offers    map[uuid.UUID]*pendingOffer
	sinks     []sim.Sink
}

// New creates a dispatcher over an already-populated registry.
func New(c *course.Course, registry *fleet.Registry, strategy dispatch.Strategy, params dispatch.Params, orc oracle.Oracle, seed int64, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		course:    c,
		registry:  registry,
		book:      orders.NewBook(),
		strategy:  strategy,
		params:    params,
		oracle:    orc,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    logger,
		start:     time.Now(),
		startHour: float64(time.Now().Hour()),
		offers:    make(map[uuid.UUID]*pendingOffer),
	}
}

// AddSink attaches an event sink.
func (d *Dispatcher) AddSink(s sim.Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// now is wall-clock time expressed in minutes since service start, the
// same unit the core's timestamps use.
func (d *Dispatcher) now() float64 {
	return time.Since(d.start).Minutes()
}

func (d *Dispatcher) bucket() course.TimeBucket {
	hour := d.startHour + d.now()/60.0
	switch {
	case hour < 11:
		return course.BucketMorning
	case hour < 14:
		return course.BucketNoon
	default:
		return course.BucketAfternoon
	}
}

func (d *Dispatcher) record(kind string, orderID uuid.UUID, assetID, detail string) {
	rec := sim.Record{T: d.now(), Kind: kind, AssetID: assetID, Detail: detail}
	if orderID != uuid.Nil {
		rec.OrderID = orderID.String()
	}
	for _, s := range d.sinks {
		s.Publish(rec)
	}
}

// CreateOrder places a new pending order.
func (d *Dispatcher) CreateOrder(target course.Hole, items []orders.Item) (*orders.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := uuid.NewRandomFromReader(d.rng)
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	o, err := orders.New(id, target, items, d.bucket(), d.now())
	if err != nil {
		return nil, err
	}
	if err := d.book.Place(o); err != nil {
		return nil, err
	}
	d.record(sim.RecordOrderArrival, o.ID, "", fmt.Sprintf("hole=%d items=%d", o.TargetHole, len(o.Items)))
	return o, nil
}

// DispatchOrder ranks candidates and arms an offer to the best one. The
// offer is resolved by AcceptOffer/DeclineOffer from the asset's client,
// or by the deadline ticker.
func (d *Dispatcher) DispatchOrder(orderID uuid.UUID) (*dispatch.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, err := d.book.Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.State != orders.StatePending {
		return nil, fmt.Errorf("order %s is %s, not pending", orderID, o.State)
	}

	snap := d.registry.Snapshot(d.now())
	ranked := d.strategy.Rank(o, d.openOrders(orderID), snap)
	if len(ranked) == 0 {
		d.record(sim.RecordNoCandidate, orderID, "", "")
		return nil, d.finishCascade(o)
	}
	run := dispatch.NewOfferRun(orderID, ranked)
	return d.armNext(run, o)
}

// armNext walks the ranked list to the next live candidate and arms the
// offer, or finishes the cascade.
func (d *Dispatcher) armNext(run *dispatch.OfferRun, o *orders.Order) (*dispatch.Candidate, error) {
	for {
		cand, ok := run.Current()
		if !ok {
			return nil, d.finishCascade(o)
		}
		a, err := d.registry.Get(cand.AssetID)
		if err != nil || a.Status() != fleet.StatusAvailable {
			run.Advance()
			continue
		}
		prior := a.Status()
		if err := d.registry.ArmOffer(cand.AssetID); err != nil {
			run.Advance()
			continue
		}
		if err := d.book.MarkOffered(o.ID, d.now()); err != nil {
			d.logger.WithError(err).Error("Failed to mark order offered")
		}
		run.Offering()
		d.offers[o.ID] = &pendingOffer{
			run:      run,
			assetID:  cand.AssetID,
			prior:    prior,
			deadline: time.Now().Add(time.Duration(d.params.OfferWindowMin * float64(time.Minute))),
		}
		d.record(sim.RecordOfferMade, o.ID, cand.AssetID, fmt.Sprintf("score=%.2f", cand.Score.Final))
		c := cand
		return &c, nil
	}
}

// finishCascade requeues or gives up on an order whose list is spent.
func (d *Dispatcher) finishCascade(o *orders.Order) error {
	delete(d.offers, o.ID)
	if o.State == orders.StateOffered {
		if err := d.book.SetState(o.ID, orders.StatePending, d.now()); err != nil {
			return err
		}
		if err := d.book.ClearAssignment(o.ID); err != nil {
			return err
		}
	}
	o.RetryCount++
	if o.RetryCount > d.params.MaxRetries {
		if err := d.book.SetState(o.ID, orders.StateUnassignable, d.now()); err != nil {
			return err
		}
		d.record(sim.RecordUnassignable, o.ID, "", "")
		return dispatch.ErrOfferExhausted
	}
	d.record(sim.RecordOrderRequeued, o.ID, "", fmt.Sprintf("retry=%d", o.RetryCount))
	return dispatch.ErrNoCandidate
}

// AcceptOffer commits the outstanding offer for an order.
func (d *Dispatcher) AcceptOffer(orderID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	po, ok := d.offers[orderID]
	if !ok {
		return fmt.Errorf("no outstanding offer for order %s", orderID)
	}
	cand, ok := po.run.Current()
	if !ok {
		return fmt.Errorf("offer for order %s already resolved", orderID)
	}
	po.run.Accept()
	delete(d.offers, orderID)

	batchID := fmt.Sprintf("batch_%s", orderID.String()[:8])
	for _, id := range cand.Batch {
		member, err := d.book.Get(id)
		if err != nil {
			continue
		}
		if member.State != orders.StateAssigned {
			if err := d.book.SetState(id, orders.StateAssigned, d.now()); err != nil {
				d.logger.WithError(err).Error("Failed to assign order")
				continue
			}
		}
		if err := d.book.AttachAssignment(id, cand.AssetID, batchID, cand.Batch); err != nil {
			d.logger.WithError(err).Error("Failed to attach assignment")
		}
		if err := d.registry.EnqueueOrder(cand.AssetID, id); err != nil {
			d.logger.WithError(err).Error("Failed to enqueue order")
		}
		d.record(sim.RecordOrderAssigned, id, cand.AssetID, batchID)
	}
	if err := d.registry.SetStatus(cand.AssetID, fleet.StatusEnRouteToPickup); err != nil {
		return err
	}
	d.record(sim.RecordOfferAccepted, orderID, cand.AssetID, "")
	return nil
}

// DeclineOffer resolves the outstanding offer as declined and advances
// the cascade. Declines never count against the candidate's future rank.
func (d *Dispatcher) DeclineOffer(orderID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.declineLocked(orderID, "declined")
}

func (d *Dispatcher) declineLocked(orderID uuid.UUID, reason string) error {
	po, ok := d.offers[orderID]
	if !ok {
		return fmt.Errorf("no outstanding offer for order %s", orderID)
	}
	o, err := d.book.Get(orderID)
	if err != nil {
		return err
	}
	d.record(sim.RecordOfferTimeout, orderID, po.assetID, reason)
	if err := d.registry.SetStatus(po.assetID, po.prior); err != nil {
		d.logger.WithError(err).Error("Failed to restore asset status")
	}
	po.run.Advance()
	delete(d.offers, orderID)
	_, err = d.armNext(po.run, o)
	return err
}

// CompleteOrder marks an assigned order delivered and frees the asset
// when its queue drains.
func (d *Dispatcher) CompleteOrder(orderID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, err := d.book.Get(orderID)
	if err != nil {
		return err
	}
	if o.State != orders.StateAssigned && o.State != orders.StateInDelivery {
		return fmt.Errorf("order %s is %s, not deliverable", orderID, o.State)
	}
	if o.State == orders.StateAssigned {
		if err := d.book.SetState(orderID, orders.StateInDelivery, d.now()); err != nil {
			return err
		}
	}
	if err := d.book.SetState(orderID, orders.StateDelivered, d.now()); err != nil {
		return err
	}
	if o.AssetID != "" {
		if err := d.registry.DequeueOrder(o.AssetID, orderID); err != nil {
			d.logger.WithError(err).Warn("Order was not queued on its asset")
		}
		if err := d.registry.RecordDelivery(o.AssetID); err != nil {
			d.logger.WithError(err).Error("Failed to record delivery")
		}
		a, err := d.registry.Get(o.AssetID)
		if err == nil && len(a.Queue()) == 0 {
			if err := d.registry.SetStatus(o.AssetID, fleet.StatusAvailable); err != nil {
				d.logger.WithError(err).Error("Failed to free asset")
			}
		}
	}
	d.record(sim.RecordDeliveryComplete, orderID, o.AssetID, "")
	return nil
}

// UpdateAssetLocation moves an asset from a live position report.
func (d *Dispatcher) UpdateAssetLocation(assetID string, loc course.Location) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.UpdateLocation(assetID, loc)
}

// UpdateAssetStatus transitions an asset's operational status.
func (d *Dispatcher) UpdateAssetStatus(assetID string, status fleet.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.SetStatus(assetID, status)
}

// ListAssets returns a read-only fleet snapshot.
func (d *Dispatcher) ListAssets() fleet.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Snapshot(d.now())
}

// ListOrders returns every order in placement order.
func (d *Dispatcher) ListOrders() []*orders.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.book.All()
}

// GetOrder returns one order.
func (d *Dispatcher) GetOrder(orderID uuid.UUID) (*orders.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.book.Get(orderID)
}

// openOrders mirrors the engine's open pool for batching decisions.
func (d *Dispatcher) openOrders(exclude uuid.UUID) []*orders.Order {
	var out []*orders.Order
	for _, o := range d.book.All() {
		if o.ID == exclude {
			continue
		}
		switch o.State {
		case orders.StatePending:
			out = append(out, o)
		case orders.StateAssigned:
			if o.PickedUpAt == nil {
				out = append(out, o)
			}
		}
	}
	return out
}

// Run drives the offer-deadline ticker until the context is cancelled.
// One ticker serves every outstanding offer.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.expireOffers()
		}
	}
}

func (d *Dispatcher) expireOffers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var expired []uuid.UUID
	for id, po := range d.offers {
		if now.After(po.deadline) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		if err := d.declineLocked(id, "window_elapsed"); err != nil {
			d.logger.WithError(err).WithField("order_id", id).Debug("Offer cascade finished")
		}
	}
}
