package dispatch

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"
)

var (
	// ErrNoCandidate: dispatch found zero feasible assets. The order
	// stays pending and is retried.
	ErrNoCandidate = errors.New("no feasible candidate")
	// ErrOfferExhausted: the full ranked list declined within the retry
	// cap.
	ErrOfferExhausted = errors.New("offer list exhausted")
)

// OfferState tracks one order's walk down its ranked candidate list.
type OfferState string

const (
	OfferIdle      OfferState = "idle"
	OfferOffering  OfferState = "offering"
	OfferAccepted  OfferState = "accepted"
	OfferExhausted OfferState = "exhausted"
)

// OfferRun is the offer protocol's per-order record: a ranked candidate
// list, a cursor, and a timer sequence. Timer cancellation is by
// supersession: each armed window bumps the sequence, and a timeout
// event carrying a stale sequence is ignored.
type OfferRun struct {
	OrderID    uuid.UUID
	Candidates []Candidate

	idx   int
	seq   int
	state OfferState
}

// NewOfferRun starts a run over a ranked list.
func NewOfferRun(orderID uuid.UUID, candidates []Candidate) *OfferRun {
	return &OfferRun{OrderID: orderID, Candidates: candidates, state: OfferIdle}
}

// State returns the run's protocol state.
func (r *OfferRun) State() OfferState { return r.state }

// Current returns the candidate under offer, if any remain.
func (r *OfferRun) Current() (Candidate, bool) {
	if r.idx >= len(r.Candidates) {
		return Candidate{}, false
	}
	return r.Candidates[r.idx], true
}

// Offering marks the current candidate as holding the offer and arms a
// fresh timer sequence.
func (r *OfferRun) Offering() int {
	r.state = OfferOffering
	r.seq++
	return r.seq
}

// TimerValid reports whether a timeout event belongs to the live window.
func (r *OfferRun) TimerValid(seq int) bool {
	return r.state == OfferOffering && seq == r.seq
}

// Supersede invalidates any armed timer without advancing the cursor.
func (r *OfferRun) Supersede() {
	r.seq++
}

// Accept finishes the run with the current candidate committed.
func (r *OfferRun) Accept() {
	r.state = OfferAccepted
	r.seq++
}

// Advance moves past the current candidate after a decline or timeout.
func (r *OfferRun) Advance() {
	r.idx++
	r.seq++
	if r.idx >= len(r.Candidates) {
		r.state = OfferExhausted
	} else {
		r.state = OfferIdle
	}
}

// Exhausted reports whether every candidate has been tried.
func (r *OfferRun) Exhausted() bool {
	return r.idx >= len(r.Candidates)
}

// SampleAcceptance draws the Bernoulli acceptance decision for an offer
// from the engine RNG stream.
func SampleAcceptance(p float64, rng *rand.Rand) bool {
	return rng.Float64() < p
}
