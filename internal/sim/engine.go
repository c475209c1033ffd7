package sim

import (
	"container/heap"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/dispatch"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

// Scenario is the configuration record a run is built from.
type Scenario struct {
	DurationMin              float64
	OrderIntervalMin         float64
	OrderIntervalVarianceMin float64
	VolumeMultiplier         float64
	NumBeverageCarts         int
	NumDeliveryStaff         int
	Strategy                 string
	TargetDeliveryTimeMin    float64
	TargetWaitTimeMin        float64
	Seed                     int64
	DetailedLogging          bool

	// StartHour maps simulated minutes onto time-of-day buckets.
	StartHour       float64
	LocationTickMin float64

	Params dispatch.Params
}

// DefaultScenario returns the stock scenario configuration.
func DefaultScenario() Scenario {
	return Scenario{
		DurationMin:              240,
		OrderIntervalMin:         12,
		OrderIntervalVarianceMin: 4,
		VolumeMultiplier:         1.0,
		NumBeverageCarts:         2,
		NumDeliveryStaff:         2,
		Strategy:                 dispatch.StrategyCartPreference,
		TargetDeliveryTimeMin:    25,
		TargetWaitTimeMin:        10,
		Seed:                     42,
		StartHour:                9,
		LocationTickMin:          0.5,
		Params:                   dispatch.DefaultParams(),
	}
}

// Validate rejects scenario values the engine cannot run with.
func (s Scenario) Validate() error {
	if s.DurationMin <= 0 {
		return fmt.Errorf("simulation duration must be positive, got %v", s.DurationMin)
	}
	if s.OrderIntervalMin <= 0 {
		return fmt.Errorf("order interval must be positive, got %v", s.OrderIntervalMin)
	}
	if s.NumBeverageCarts < 0 || s.NumBeverageCarts > 2 {
		return fmt.Errorf("beverage carts must be in [0,2], got %d", s.NumBeverageCarts)
	}
	if s.NumDeliveryStaff < 0 {
		return fmt.Errorf("delivery staff must be >= 0, got %d", s.NumDeliveryStaff)
	}
	if s.LocationTickMin <= 0 {
		return fmt.Errorf("location tick must be positive, got %v", s.LocationTickMin)
	}
	return nil
}

// bucketAt maps a simulated clock value to its time-of-day bucket.
func (s Scenario) bucketAt(t float64) course.TimeBucket {
	hour := s.StartHour + t/60.0
	switch {
	case hour < 11:
		return course.BucketMorning
	case hour < 14:
		return course.BucketNoon
	default:
		return course.BucketAfternoon
	}
}

// activeRoute is the engine's record of one asset's committed route.
// Scheduled arrival and drop events carry the route sequence; a commit
// that re-plans the route bumps the sequence, superseding stale events.
type activeRoute struct {
	seq       int
	batch     []uuid.UUID
	drops     []dispatch.Drop
	pickupLoc course.Location
	departAt  float64
	pickedUp  bool
	returnMin float64
	travel    *travelRoute
}

// offerMeta tracks one order's live offer run.
type offerMeta struct {
	run          *dispatch.OfferRun
	assetID      string
	prior        fleet.Status
	offersMade   int
	earliestBusy float64
}

// Engine is the discrete-event simulator: it owns the clock, the event
// queue, the registry, and the order book for the scenario's lifetime.
type Engine struct {
	scenario Scenario
	course   *course.Course
	registry *fleet.Registry
	book     *orders.Book
	strategy dispatch.Strategy
	oracle   oracle.Oracle
	rng      *rand.Rand
	logger   *logrus.Logger

	clock float64
	queue eventQueue
	seq   int64
	ended bool

	offers  map[uuid.UUID]*offerMeta
	active  map[string]*activeRoute
	prepMin map[uuid.UUID]float64

	metrics  *Metrics
	catalog  []orders.CatalogEntry
	eventLog io.Writer
	sinks    []Sink
}

// Option customizes engine construction.
type Option func(*Engine)

// WithEventLog directs the line-oriented event log to w.
func WithEventLog(w io.Writer) Option {
	return func(e *Engine) { e.eventLog = w }
}

// WithSink attaches an event sink (websocket hub, redis publisher).
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithOracle replaces the prediction oracle, e.g. with a guarded one.
func WithOracle(o oracle.Oracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithCatalog replaces the item catalog the arrival generator draws from.
func WithCatalog(c []orders.CatalogEntry) Option {
	return func(e *Engine) { e.catalog = c }
}

// New builds an engine for the scenario: course, fleet, strategy, and
// oracle wired together around one seeded RNG.
func New(sc Scenario, c *course.Course, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = course.Default()
	}

	e := &Engine{
		scenario: sc,
		course:   c,
		registry: fleet.NewRegistry(),
		book:     orders.NewBook(),
		rng:      rand.New(rand.NewSource(sc.Seed)),
		logger:   logger,
		offers:   make(map[uuid.UUID]*offerMeta),
		active:   make(map[string]*activeRoute),
		prepMin:  make(map[uuid.UUID]float64),
		metrics:  NewMetrics(sc.TargetDeliveryTimeMin, sc.TargetWaitTimeMin),
		catalog:  orders.DefaultCatalog(),
	}
	e.oracle = oracle.NewModel(c)
	for _, opt := range opts {
		opt(e)
	}

	strat, err := dispatch.New(sc.Strategy, dispatch.Deps{
		Course: c,
		Oracle: e.oracle,
		Params: sc.Params,
		RNG:    e.rng,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	e.strategy = strat

	if err := e.buildFleet(); err != nil {
		return nil, err
	}
	return e, nil
}

// buildFleet registers the scenario's carts and staff at their staging
// positions: cart 1 on the front loop at hole 1, cart 2 on the back loop
// at hole 10, staff at the clubhouse.
func (e *Engine) buildFleet() error {
	cartStarts := []struct {
		loop course.Loop
		at   course.Hole
	}{
		{course.LoopFront, 1},
		{course.LoopBack, 10},
	}
	for i := 0; i < e.scenario.NumBeverageCarts; i++ {
		start := cartStarts[i]
		cart, err := fleet.NewBeverageCart(
			fmt.Sprintf("cart-%d", i+1),
			fmt.Sprintf("Beverage Cart %d", i+1),
			start.loop, start.at,
		)
		if err != nil {
			return err
		}
		if err := e.registry.Register(cart); err != nil {
			return err
		}
	}
	for i := 0; i < e.scenario.NumDeliveryStaff; i++ {
		staff := fleet.NewDeliveryStaff(
			fmt.Sprintf("staff-%d", i+1),
			fmt.Sprintf("Delivery Staff %d", i+1),
			course.AtClubhouse(),
		)
		if err := e.registry.Register(staff); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the fleet store to upstream adapters and tests.
func (e *Engine) Registry() *fleet.Registry { return e.registry }

// Book exposes the order book to upstream adapters and tests.
func (e *Engine) Book() *orders.Book { return e.book }

// Clock returns the current simulated time in minutes.
func (e *Engine) Clock() float64 { return e.clock }

// schedule pushes an event, stamping the insertion sequence that breaks
// same-time ties in FIFO order.
func (e *Engine) schedule(ev *Event) {
	e.seq++
	ev.Seq = e.seq
	heap.Push(&e.queue, ev)
}

// record emits one event-log line and fans it out to attached sinks.
func (e *Engine) record(kind string, orderID uuid.UUID, assetID, detail string) {
	rec := Record{T: e.clock, Kind: kind, AssetID: assetID, Detail: detail}
	if orderID != uuid.Nil {
		rec.OrderID = orderID.String()
	}
	if e.eventLog != nil {
		rec.WriteTo(e.eventLog)
	}
	for _, s := range e.sinks {
		s.Publish(rec)
	}
	if e.scenario.DetailedLogging && e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"t":        rec.T,
			"order_id": rec.OrderID,
			"asset_id": rec.AssetID,
			"detail":   rec.Detail,
		}).Debug(kind)
	}
}

// Run executes the scenario to completion and returns the KPI report.
func (e *Engine) Run() (Report, error) {
	e.schedule(&Event{At: e.scenario.DurationMin, Kind: EventSimulationEnd})
	e.schedule(&Event{At: e.scenario.LocationTickMin, Kind: EventLocationTick})
	e.schedule(&Event{At: e.nextArrivalDelay(), Kind: EventOrderArrival})

	for e.step() {
	}
	return e.Report(), nil
}

// step pops and handles the next event. Returns false once the run has
// ended or the queue is empty.
func (e *Engine) step() bool {
	if e.ended || e.queue.Len() == 0 {
		return false
	}
	ev := heap.Pop(&e.queue).(*Event)
	if ev.At > e.clock {
		e.clock = ev.At
	}
	switch ev.Kind {
	case EventOrderArrival:
		e.handleOrderArrival(ev)
	case EventOfferTimeout:
		e.handleOfferTimeout(ev)
	case EventAssetArrived:
		e.handleAssetArrived(ev)
	case EventDeliveryComplete:
		e.handleDeliveryComplete(ev)
	case EventLocationTick:
		e.handleLocationTick(ev)
	case EventSimulationEnd:
		e.handleSimulationEnd(ev)
	}
	return !e.ended
}

// nextArrivalDelay draws the Poisson-like inter-arrival gap.
func (e *Engine) nextArrivalDelay() float64 {
	sc := e.scenario
	gap := sc.OrderIntervalMin + (2*e.rng.Float64()-1)*sc.OrderIntervalVarianceMin
	if sc.VolumeMultiplier > 0 {
		gap /= sc.VolumeMultiplier
	}
	if gap < 0.25 {
		gap = 0.25
	}
	return gap
}

// handleOrderArrival covers both fresh arrivals and scheduled
// redispatches of an existing order.
func (e *Engine) handleOrderArrival(ev *Event) {
	if ev.OrderID != uuid.Nil {
		o, err := e.book.Get(ev.OrderID)
		if err != nil || o.State != orders.StatePending {
			return
		}
		e.dispatchOrder(o)
		return
	}

	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		e.logger.WithError(err).Error("Failed to generate order id")
		return
	}
	target := course.Hole(1 + e.rng.Intn(18))
	items := orders.RandomItems(e.catalog, e.rng)
	o, err := orders.New(id, target, items, e.scenario.bucketAt(e.clock), e.clock)
	if err != nil {
		e.logger.WithError(err).Error("Failed to create order")
		return
	}
	if err := e.book.Place(o); err != nil {
		e.logger.WithError(err).Error("Failed to place order")
		return
	}
	e.metrics.RecordPlaced()
	e.record(RecordOrderArrival, o.ID, "", fmt.Sprintf("hole=%d items=%d value=%s bucket=%s",
		o.TargetHole, len(o.Items), o.Value.StringFixed(2), o.Bucket))

	// Keep the arrival process going until the scenario ends.
	if next := e.clock + e.nextArrivalDelay(); next < e.scenario.DurationMin {
		e.schedule(&Event{At: next, Kind: EventOrderArrival})
	}

	e.dispatchOrder(o)
}

// openOrders lists orders a strategy may still fold into a route: the
// pending pool plus assigned orders not yet picked up.
func (e *Engine) openOrders(exclude uuid.UUID) []*orders.Order {
	var out []*orders.Order
	for _, o := range e.book.All() {
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

// dispatchOrder runs one dispatch decision: snapshot, rank, offer.
func (e *Engine) dispatchOrder(o *orders.Order) {
	snap := e.registry.Snapshot(e.clock)
	ranked := e.strategy.Rank(o, e.openOrders(o.ID), snap)
	if len(ranked) == 0 {
		e.record(RecordNoCandidate, o.ID, "", fmt.Sprintf("retry=%d", o.RetryCount))
		e.requeueOrder(o, "no_candidate")
		return
	}
	meta := &offerMeta{run: dispatch.NewOfferRun(o.ID, ranked)}
	e.offers[o.ID] = meta
	e.offerNext(meta)
}

// offerNext walks the ranked list: arm an offer on the next live
// candidate, or fall out to delay/requeue when the list is spent.
func (e *Engine) offerNext(meta *offerMeta) {
	o, err := e.book.Get(meta.run.OrderID)
	if err != nil {
		delete(e.offers, meta.run.OrderID)
		return
	}
	for {
		cand, ok := meta.run.Current()
		if !ok {
			break
		}
		a, err := e.registry.Get(cand.AssetID)
		if err != nil {
			meta.run.Advance()
			continue
		}
		switch st := a.Status(); {
		case st == fleet.StatusAvailable:
			e.armOffer(meta, cand, o)
			return
		case (st == fleet.StatusEnRouteToPickup || st == fleet.StatusAtStore) && e.canMerge(cand):
			e.armOffer(meta, cand, o)
			return
		case st.Busy():
			if view, ok := e.registry.Snapshot(e.clock).Get(cand.AssetID); ok && view.BusyUntil > e.clock {
				if meta.earliestBusy == 0 || view.BusyUntil < meta.earliestBusy {
					meta.earliestBusy = view.BusyUntil
				}
			}
			meta.run.Advance()
		default:
			meta.run.Advance()
		}
	}

	delete(e.offers, meta.run.OrderID)
	if meta.offersMade == 0 && meta.earliestBusy > e.clock {
		// Nothing to offer yet, but an asset frees up soon: revisit then
		// without burning a retry.
		e.record(RecordOrderRequeued, o.ID, "", fmt.Sprintf("delayed_until=%.2f", meta.earliestBusy))
		e.schedule(&Event{At: meta.earliestBusy, Kind: EventOrderArrival, OrderID: o.ID, Detail: "delayed"})
		return
	}
	e.requeueOrder(o, "offers_exhausted")
}

// canMerge reports whether the candidate's batch is exactly the asset's
// committed pre-pickup queue plus new work.
func (e *Engine) canMerge(cand dispatch.Candidate) bool {
	rt, ok := e.active[cand.AssetID]
	if !ok || rt.pickedUp {
		return false
	}
	members := make(map[uuid.UUID]bool, len(cand.Batch))
	for _, id := range cand.Batch {
		members[id] = true
	}
	for _, id := range rt.batch {
		if !members[id] {
			return false
		}
	}
	return true
}

// armOffer puts the candidate into OfferPending, samples the acceptance
// draw, and either commits or arms the offer-window timer.
func (e *Engine) armOffer(meta *offerMeta, cand dispatch.Candidate, o *orders.Order) {
	a, err := e.registry.Get(cand.AssetID)
	if err != nil {
		meta.run.Advance()
		e.offerNext(meta)
		return
	}
	meta.prior = a.Status()
	if err := e.registry.ArmOffer(cand.AssetID); err != nil {
		meta.run.Advance()
		e.offerNext(meta)
		return
	}
	meta.assetID = cand.AssetID
	meta.offersMade++
	if err := e.book.MarkOffered(o.ID, e.clock); err != nil {
		e.logger.WithError(err).Error("Failed to mark order offered")
	}

	view, _ := e.registry.Snapshot(e.clock).Get(cand.AssetID)
	p, err := e.oracle.Acceptance(view, o)
	if err != nil {
		p = 0.8
	}
	e.record(RecordOfferMade, o.ID, cand.AssetID, fmt.Sprintf("score=%.2f eta=%.2f p=%.2f batch=%d",
		cand.Score.Final, cand.Score.ETAMin, p, cand.BatchSize()))

	seq := meta.run.Offering()
	if dispatch.SampleAcceptance(p, e.rng) {
		meta.run.Accept()
		e.record(RecordOfferAccepted, o.ID, cand.AssetID, fmt.Sprintf("batch=%d", cand.BatchSize()))
		e.commit(meta, cand, o)
		return
	}
	// No response inside the window: the timeout event advances the
	// cascade with no extra idle gap.
	e.schedule(&Event{
		At:       e.clock + e.scenario.Params.OfferWindowMin,
		Kind:     EventOfferTimeout,
		OrderID:  o.ID,
		AssetID:  cand.AssetID,
		TimerSeq: seq,
	})
}

// handleOfferTimeout resolves an expired offer window. Stale sequences
// are superseded timers and are ignored.
func (e *Engine) handleOfferTimeout(ev *Event) {
	meta, ok := e.offers[ev.OrderID]
	if !ok || !meta.run.TimerValid(ev.TimerSeq) {
		return
	}
	e.record(RecordOfferTimeout, ev.OrderID, ev.AssetID, "window_elapsed")
	// The decline carries no penalty: the candidate returns to its prior
	// status with unchanged rank inputs.
	if err := e.registry.SetStatus(ev.AssetID, meta.prior); err != nil {
		e.logger.WithError(err).Error("Failed to restore asset status")
	}
	meta.run.Advance()
	e.offerNext(meta)
}

// requeueOrder returns an order to the pending pool and schedules the
// retry, or gives up after the retry cap.
func (e *Engine) requeueOrder(o *orders.Order, reason string) {
	if o.State == orders.StateOffered {
		if err := e.book.SetState(o.ID, orders.StatePending, e.clock); err != nil {
			e.logger.WithError(err).Error("Failed to requeue order")
		}
		if err := e.book.ClearAssignment(o.ID); err != nil {
			e.logger.WithError(err).Error("Failed to clear assignment")
		}
	}
	o.RetryCount++
	if o.RetryCount > e.scenario.Params.MaxRetries {
		if err := e.book.SetState(o.ID, orders.StateUnassignable, e.clock); err != nil {
			e.logger.WithError(err).Error("Failed to mark order unassignable")
		}
		e.metrics.RecordUnassignable()
		e.record(RecordUnassignable, o.ID, "", fmt.Sprintf("retries=%d reason=%s", o.RetryCount-1, reason))
		return
	}
	retryAt := e.clock + e.scenario.Params.RetryBackoffMin
	e.record(RecordOrderRequeued, o.ID, "", fmt.Sprintf("reason=%s retry=%d at=%.2f", reason, o.RetryCount, retryAt))
	e.schedule(&Event{At: retryAt, Kind: EventOrderArrival, OrderID: o.ID, Detail: reason})
}

// commit finalizes an accepted offer: assignment, statuses, queue, and
// the scheduled arrival/drop events for the planned route. Committing
// over an existing pre-pickup route supersedes its scheduled events.
func (e *Engine) commit(meta *offerMeta, cand dispatch.Candidate, o *orders.Order) {
	delete(e.offers, o.ID)

	routeSeq := 1
	if prev, ok := e.active[cand.AssetID]; ok {
		routeSeq = prev.seq + 1
	}

	// Prep estimates are drawn once per order, in drop-visit order.
	ready := 0.0
	for _, id := range cand.Batch {
		member, err := e.book.Get(id)
		if err != nil {
			continue
		}
		if _, done := e.prepMin[id]; !done {
			prep, perr := e.oracle.PrepTime(member.Items, e.rng)
			if perr != nil {
				prep = 10.0
			}
			e.prepMin[id] = prep
		}
		if r := member.PlacedAt + e.prepMin[id]; r > ready {
			ready = r
		}
	}

	storeArrival := e.clock + cand.PickupMin
	depart := math.Max(storeArrival, ready)
	batchID := fmt.Sprintf("batch_%s", o.ID.String()[:8])

	a, err := e.registry.Get(cand.AssetID)
	if err != nil {
		return
	}
	queued := make(map[uuid.UUID]bool)
	for _, id := range a.Queue() {
		queued[id] = true
	}

	if err := e.registry.SetStatus(cand.AssetID, fleet.StatusEnRouteToPickup); err != nil {
		e.logger.WithError(err).Error("Failed to set asset en route")
	}
	for _, id := range cand.Batch {
		member, merr := e.book.Get(id)
		if merr != nil {
			continue
		}
		if member.State != orders.StateAssigned {
			if err := e.book.SetState(id, orders.StateAssigned, e.clock); err != nil {
				e.logger.WithError(err).Error("Failed to assign order")
				continue
			}
		}
		if err := e.book.AttachAssignment(id, cand.AssetID, batchID, cand.Batch); err != nil {
			e.logger.WithError(err).Error("Failed to attach assignment")
		}
		if !queued[id] {
			if err := e.registry.EnqueueOrder(cand.AssetID, id); err != nil {
				e.logger.WithError(err).Error("Failed to enqueue order")
			}
		}
		e.record(RecordOrderAssigned, id, cand.AssetID, fmt.Sprintf("batch=%s size=%d", batchID, cand.BatchSize()))
	}

	// Pickup point: loop entry for carts, clubhouse for staff.
	pickupLoc := course.AtClubhouse()
	isCart := a.Kind() == fleet.KindBeverageCart
	if loop, ok := a.Loop(); ok {
		pickupLoc = course.AtHole(course.EntryHole(loop))
	}

	e.schedule(&Event{At: storeArrival, Kind: EventAssetArrived, AssetID: cand.AssetID, Waypoint: WaypointStore, TimerSeq: routeSeq})
	e.schedule(&Event{At: depart, Kind: EventAssetArrived, AssetID: cand.AssetID, Waypoint: WaypointPickup, TimerSeq: routeSeq, OrderID: o.ID})

	lastDropAt := depart
	points := []waypoint{
		{at: e.clock, loc: a.Location()},
		{at: storeArrival, loc: pickupLoc, forwardOnly: isCart},
		{at: depart, loc: pickupLoc},
	}
	for _, d := range cand.Drops {
		at := depart + d.OffsetMin
		e.schedule(&Event{At: at, Kind: EventDeliveryComplete, OrderID: d.OrderID, AssetID: cand.AssetID, TimerSeq: routeSeq})
		points = append(points, waypoint{at: at, loc: course.AtHole(d.Hole), forwardOnly: isCart})
		if at > lastDropAt {
			lastDropAt = at
		}
	}

	busyUntil := lastDropAt + cand.ReturnMin
	e.registry.SetBusyUntil(cand.AssetID, busyUntil)
	if !isCart && cand.ReturnMin > 0 {
		points = append(points, waypoint{at: busyUntil, loc: course.AtClubhouse()})
	}

	e.active[cand.AssetID] = &activeRoute{
		seq:       routeSeq,
		batch:     append([]uuid.UUID(nil), cand.Batch...),
		drops:     append([]dispatch.Drop(nil), cand.Drops...),
		pickupLoc: pickupLoc,
		departAt:  depart,
		returnMin: cand.ReturnMin,
		travel: &travelRoute{
			course: e.course,
			bucket: o.Bucket,
			points: points,
		},
	}
}

// handleAssetArrived advances an asset through its route waypoints.
func (e *Engine) handleAssetArrived(ev *Event) {
	rt, ok := e.active[ev.AssetID]
	if !ok || rt.seq != ev.TimerSeq {
		return
	}
	switch ev.Waypoint {
	case WaypointStore:
		if err := e.registry.SetStatus(ev.AssetID, fleet.StatusAtStore); err != nil {
			e.logger.WithError(err).Error("Failed to set asset at store")
		}
		if err := e.registry.UpdateLocation(ev.AssetID, rt.pickupLoc); err != nil {
			e.logger.WithError(err).Error("Failed to move asset to store")
		}
	case WaypointPickup:
		rt.pickedUp = true
		if err := e.registry.SetStatus(ev.AssetID, fleet.StatusEnRouteToCustomer); err != nil {
			e.logger.WithError(err).Error("Failed to set asset delivering")
		}
		for _, id := range rt.batch {
			if err := e.book.SetState(id, orders.StateInDelivery, e.clock); err != nil {
				e.logger.WithError(err).Error("Failed to mark order picked up")
				continue
			}
			e.record(RecordOrderPickedUp, id, ev.AssetID, "")
		}
	case WaypointReturn:
		if err := e.registry.SetStatus(ev.AssetID, fleet.StatusAvailable); err != nil {
			e.logger.WithError(err).Error("Failed to park asset")
		}
		if err := e.registry.UpdateLocation(ev.AssetID, course.AtClubhouse()); err != nil {
			e.logger.WithError(err).Error("Failed to return asset")
		}
		delete(e.active, ev.AssetID)
	}
}

// handleDeliveryComplete finishes one drop and, when the queue drains,
// releases the asset (carts park in place, staff head home).
func (e *Engine) handleDeliveryComplete(ev *Event) {
	rt, ok := e.active[ev.AssetID]
	if !ok || rt.seq != ev.TimerSeq {
		return
	}
	o, err := e.book.Get(ev.OrderID)
	if err != nil || o.State != orders.StateInDelivery {
		return
	}
	if err := e.book.SetState(ev.OrderID, orders.StateDelivered, e.clock); err != nil {
		e.logger.WithError(err).Error("Failed to mark order delivered")
		return
	}
	if err := e.registry.DequeueOrder(ev.AssetID, ev.OrderID); err != nil {
		e.logger.WithError(err).Error("Failed to dequeue order")
	}
	if err := e.registry.RecordDelivery(ev.AssetID); err != nil {
		e.logger.WithError(err).Error("Failed to record delivery")
	}
	for _, d := range rt.drops {
		if d.OrderID == ev.OrderID {
			if err := e.registry.UpdateLocation(ev.AssetID, course.AtHole(d.Hole)); err != nil {
				e.logger.WithError(err).Error("Failed to move asset to drop")
			}
			break
		}
	}
	e.metrics.RecordDelivery(o)
	e.record(RecordDeliveryComplete, ev.OrderID, ev.AssetID, fmt.Sprintf("total=%.2f batched=%t", *o.DeliveredAt-o.PlacedAt, o.Batched()))

	a, err := e.registry.Get(ev.AssetID)
	if err != nil || len(a.Queue()) > 0 {
		return
	}
	if a.Kind() == fleet.KindBeverageCart {
		// Carts keep roaming their loop; no clubhouse return.
		if err := e.registry.SetStatus(ev.AssetID, fleet.StatusAvailable); err != nil {
			e.logger.WithError(err).Error("Failed to free cart")
		}
		delete(e.active, ev.AssetID)
		return
	}
	if err := e.registry.SetStatus(ev.AssetID, fleet.StatusReturning); err != nil {
		e.logger.WithError(err).Error("Failed to set staff returning")
	}
	e.schedule(&Event{At: e.clock + rt.returnMin, Kind: EventAssetArrived, AssetID: ev.AssetID, Waypoint: WaypointReturn, TimerSeq: rt.seq})
}

// handleLocationTick advances busy assets along their routes and accrues
// the active/idle split every asset's utilization derives from.
func (e *Engine) handleLocationTick(ev *Event) {
	tick := e.scenario.LocationTickMin
	for _, a := range e.registry.List() {
		busy := a.Status().Busy()
		if err := e.registry.RecordTick(a.ID(), busy, tick); err != nil {
			continue
		}
		if busy && a.Status() != fleet.StatusAtStore {
			if err := e.registry.RecordTravel(a.ID(), tick); err != nil {
				e.logger.WithError(err).Error("Failed to record travel")
			}
		}
		rt, ok := e.active[a.ID()]
		if !ok {
			continue
		}
		if loc, ok := rt.travel.locationAt(e.clock); ok {
			if err := e.registry.UpdateLocation(a.ID(), loc); err != nil {
				e.logger.WithError(err).Error("Tick moved asset off course")
			}
		}
	}
	if next := e.clock + tick; next < e.scenario.DurationMin {
		e.schedule(&Event{At: next, Kind: EventLocationTick})
	}
}

// handleSimulationEnd stops the run. Deliveries scheduled before the end
// time have already resolved; everything still open is undelivered.
func (e *Engine) handleSimulationEnd(_ *Event) {
	e.ended = true
	undelivered := 0
	for _, o := range e.book.All() {
		if o.State != orders.StateDelivered {
			undelivered++
		}
	}
	e.metrics.RecordUndelivered(undelivered)
	e.record(RecordSimulationEnd, uuid.Nil, "", fmt.Sprintf("orders=%d undelivered=%d", e.book.Len(), undelivered))
}

// Report computes the KPI report. Safe to call mid-simulation.
func (e *Engine) Report() Report {
	assets := make([]AssetSample, 0)
	for _, a := range e.registry.List() {
		st := a.Stats()
		assets = append(assets, AssetSample{
			AssetID:     a.ID(),
			Type:        a.Kind(),
			ActiveMin:   st.ActiveMin,
			IdleMin:     st.IdleMin,
			Deliveries:  st.Deliveries,
			DistanceMin: st.DistanceMin,
		})
	}
	return e.metrics.Report(assets, e.scenario.DurationMin)
}
