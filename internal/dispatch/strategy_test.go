package dispatch

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/orders"
)

func testDeps(seed int64) Deps {
	c := course.Default()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return Deps{
		Course: c,
		Oracle: oracle.NewModel(c),
		Params: DefaultParams(),
		RNG:    rand.New(rand.NewSource(seed)),
		Logger: log,
	}
}

func newTestOrder(t *testing.T, hole course.Hole) *orders.Order {
	t.Helper()
	o, err := orders.New(uuid.New(), hole, []orders.Item{
		{Name: "Turkey Club", Quantity: 1, Complexity: orders.ComplexityMedium, UnitPrice: decimal.NewFromFloat(12.5)},
	}, course.BucketAfternoon, 0)
	require.NoError(t, err)
	return o
}

func cartView(id string, loop course.Loop, at course.Hole) fleet.AssetView {
	return fleet.AssetView{
		ID:       id,
		Kind:     fleet.KindBeverageCart,
		Loop:     loop,
		Status:   fleet.StatusAvailable,
		Location: course.AtHole(at),
	}
}

func staffView(id string) fleet.AssetView {
	return fleet.AssetView{
		ID:       id,
		Kind:     fleet.KindDeliveryStaff,
		Status:   fleet.StatusAvailable,
		Location: course.AtClubhouse(),
	}
}

func TestNew_KnownAndUnknownNames(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, testDeps(1))
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	_, err := New("TELEPORT", testDeps(1))
	assert.Error(t, err)
}

func TestNames_CoversAllBuiltins(t *testing.T) {
	assert.ElementsMatch(t, []string{
		StrategyFastestETA, StrategyCartPreference, StrategyZoneOptimal,
		StrategyBatchOrders, StrategyNearest, StrategyRandom, StrategyLoadBalanced,
	}, Names())
}

func TestScore_PurityOnReplayedSnapshot(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	o := newTestOrder(t, 5)
	snap := fleet.Snapshot{TakenAt: 3.0, Assets: []fleet.AssetView{cartView("cart-1", course.LoopFront, 2)}}

	first, ok := s.Score(snap.Assets[0], []*orders.Order{o}, snap)
	require.True(t, ok)
	second, ok := s.Score(snap.Assets[0], []*orders.Order{o}, snap)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestScore_ZoneIneligibleCart(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	o := newTestOrder(t, 14)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{cartView("cart-1", course.LoopFront, 2)}}
	_, ok := s.Score(snap.Assets[0], []*orders.Order{o}, snap)
	assert.False(t, ok)
}

func TestRank_CartPreferredInsideWindow(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	o := newTestOrder(t, 3)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{
		staffView("staff-1"),
		cartView("cart-1", course.LoopFront, 1),
	}}
	ranked := s.Rank(o, nil, snap)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "cart-1", ranked[0].AssetID)
}

func TestRank_ExcludesOfferPendingAndOffline(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	pending := cartView("cart-1", course.LoopFront, 1)
	pending.Status = fleet.StatusOfferPending
	offline := staffView("staff-1")
	offline.Status = fleet.StatusOffline

	o := newTestOrder(t, 3)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{pending, offline}}
	assert.Empty(t, s.Rank(o, nil, snap))
}

func TestRank_SoonAvailableJoinsPool(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	busy := staffView("staff-1")
	busy.Status = fleet.StatusEnRouteToCustomer
	busy.Location = course.AtHole(4)
	busy.BusyUntil = 12.0

	o := newTestOrder(t, 3)

	// Within the soon-available window.
	snap := fleet.Snapshot{TakenAt: 10.0, Assets: []fleet.AssetView{busy}}
	assert.NotEmpty(t, s.Rank(o, nil, snap))

	// Beyond it.
	snap.TakenAt = 2.0
	assert.Empty(t, s.Rank(o, nil, snap))
}

func TestRank_DeterministicOrdering(t *testing.T) {
	s, err := New(StrategyCartPreference, testDeps(42))
	require.NoError(t, err)

	// Two identical staff at the clubhouse. Whatever breaks the near-tie,
	// it must break it the same way run after run.
	o := newTestOrder(t, 5)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{staffView("staff-2"), staffView("staff-1")}}

	first := s.Rank(o, nil, snap)
	require.Len(t, first, 2)
	for i := 0; i < 5; i++ {
		ranked := s.Rank(o, nil, snap)
		require.Len(t, ranked, 2)
		assert.Equal(t, first[0].AssetID, ranked[0].AssetID)
		assert.Equal(t, first[1].AssetID, ranked[1].AssetID)
	}
}

func TestSortCandidates_TieBreaks(t *testing.T) {
	cands := []Candidate{
		{AssetID: "staff-2", Score: Score{Final: 5.0, Acceptance: 0.8}},
		{AssetID: "staff-1", Score: Score{Final: 5.0, Acceptance: 0.8}},
		{AssetID: "staff-3", Score: Score{Final: 5.0, Acceptance: 0.9}},
		{AssetID: "cart-1", Score: Score{Final: 4.0, Acceptance: 0.5}},
	}
	sortCandidates(cands)
	assert.Equal(t, "cart-1", cands[0].AssetID)  // lowest final wins
	assert.Equal(t, "staff-3", cands[1].AssetID) // tie: higher acceptance
	assert.Equal(t, "staff-1", cands[2].AssetID) // tie: lower id
	assert.Equal(t, "staff-2", cands[3].AssetID)
}

func TestChoose_NoCandidate(t *testing.T) {
	deps := testDeps(42)
	s, err := New(StrategyCartPreference, deps)
	require.NoError(t, err)

	o := newTestOrder(t, 14)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{cartView("cart-1", course.LoopFront, 1)}}
	d := Choose(s, deps.Params, o, nil, snap)
	assert.Equal(t, DecisionNoCandidate, d.Kind)
	assert.Equal(t, deps.Params.RetryBackoffMin, d.RetryAfter)
}

func TestChoose_AssignsBest(t *testing.T) {
	deps := testDeps(42)
	s, err := New(StrategyCartPreference, deps)
	require.NoError(t, err)

	o := newTestOrder(t, 3)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{cartView("cart-1", course.LoopFront, 1)}}
	d := Choose(s, deps.Params, o, nil, snap)
	require.Equal(t, DecisionAssign, d.Kind)
	assert.Equal(t, "cart-1", d.Candidate.AssetID)
}

func TestFastestETA_RanksByETAOnly(t *testing.T) {
	s, err := New(StrategyFastestETA, testDeps(42))
	require.NoError(t, err)

	o := newTestOrder(t, 2)
	near := cartView("cart-1", course.LoopFront, 1)
	far := cartView("cart-2", course.LoopFront, 5) // must wrap forward to 2
	// Both on the front loop; cart-2 far ahead of the hole.
	far.Loop = course.LoopFront
	snap := fleet.Snapshot{Assets: []fleet.AssetView{far, near}}

	ranked := s.Rank(o, nil, snap)
	require.Len(t, ranked, 2)
	assert.Equal(t, "cart-1", ranked[0].AssetID)
	assert.Equal(t, ranked[0].Score.Final, ranked[0].Score.ETAMin)
}

func TestLoadBalanced_PrefersLighterAsset(t *testing.T) {
	s, err := New(StrategyLoadBalanced, testDeps(42))
	require.NoError(t, err)

	light := staffView("staff-2")
	heavy := staffView("staff-1")
	heavy.Stats.Deliveries = 5

	o := newTestOrder(t, 5)
	snap := fleet.Snapshot{Assets: []fleet.AssetView{heavy, light}}
	ranked := s.Rank(o, nil, snap)
	require.Len(t, ranked, 2)
	assert.Equal(t, "staff-2", ranked[0].AssetID)
}

func TestRandom_DeterministicForSnapshot(t *testing.T) {
	s, err := New(StrategyRandom, testDeps(42))
	require.NoError(t, err)

	o := newTestOrder(t, 5)
	snap := fleet.Snapshot{TakenAt: 1.0, Assets: []fleet.AssetView{staffView("staff-1"), staffView("staff-2")}}

	first := s.Rank(o, nil, snap)
	second := s.Rank(o, nil, snap)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].AssetID, second[i].AssetID)
	}
}
