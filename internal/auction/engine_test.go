package auction

import (
	"sync"
	"testing"
	"time"

	"bidkeeper/internal/common"
	"bidkeeper/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store that records what the engine sends it
type fakeStore struct {
	mu           sync.Mutex
	points       map[string]int
	snapshot     *Snapshot
	tallies      map[string][]TallyEntry
	moved        []LotSpec
	failMove     bool
	failBalances bool
}

func newFakeStore(points map[string]int) *fakeStore {
	return &fakeStore{points: points, tallies: map[string][]TallyEntry{}}
}

func (s *fakeStore) GetMemberBalances() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBalances {
		return nil, assert.AnError
	}
	points := map[string]int{}
	for k, v := range s.points {
		points[k] = v
	}
	return points, nil
}

func (s *fakeStore) SubmitTally(stamp string, entries []TallyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[stamp] = append(s.tallies[stamp], entries...)
	return nil
}

func (s *fakeStore) MoveQueueItems(items []LotSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMove {
		return assert.AnError
	}
	s.moved = append(s.moved, items...)
	return nil
}

func (s *fakeStore) SaveSnapshot(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
	return nil
}

func (s *fakeStore) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

func (s *fakeStore) allTallies() []TallyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []TallyEntry{}
	for _, entries := range s.tallies {
		all = append(all, entries...)
	}
	return all
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxExtensions = 2
	return cfg
}

func newTestEngine(t *testing.T, points map[string]int) (*Engine, *common.ManualClock, *fakeStore) {
	t.Helper()
	clock := common.NewManualClock(time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC))
	store := newFakeStore(points)
	engine := NewEngine(testConfig(), clock, ledger.NewLedger(), store, NopNotifier{})
	return engine, clock, store
}

// fire advances the manual clock and runs whatever came due
func fire(engine *Engine, clock *common.ManualClock, d time.Duration) {
	clock.Advance(d)
	engine.timeline.FireDue()
}

// drainPersist runs the queued background store writes inline
func drainPersist(engine *Engine) {
	for {
		select {
		case job := <-engine.persistCh:
			job()
		default:
			return
		}
	}
}

// startLot runs a freshly started session up to the point where its
// first lot accepts bids
func startLot(t *testing.T, engine *Engine, clock *common.ManualClock) {
	t.Helper()
	require.NoError(t, engine.StartSession(false))
	fire(engine, clock, engine.cfg.LotGap)
	require.Equal(t, LotPreview, engine.lot.State)
	fire(engine, clock, engine.cfg.PreviewTime)
	require.Equal(t, LotActive, engine.lot.State)
}

// confirmBid drives a bid through the full propose/confirm handshake
func confirmBid(t *testing.T, engine *Engine, member string, amount int) {
	t.Helper()
	proposal, err := engine.ProposeBid(member, amount)
	require.NoError(t, err)
	require.NoError(t, engine.ConfirmBid(proposal.ID))
}

func available(t *testing.T, engine *Engine, member string) int {
	t.Helper()
	balance, err := engine.Ledger().Balance(member)
	require.NoError(t, err)
	return balance.Available()
}

func TestSessionNeedsQueuedLots(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]int{"Alice": 500})
	require.ErrorIs(t, engine.StartSession(false), ErrEmptyQueue)
}

func TestQueueAdministration(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)

	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	_, err = engine.EnqueueLot("Phoenix Plume", 200, 5*time.Minute, 3)
	require.NoError(t, err)
	assert.Len(t, engine.QueueItems(), 2)

	_, err = engine.RemoveQueued("dragon sword")
	require.NoError(t, err)
	assert.Len(t, engine.QueueItems(), 1)

	_, err = engine.RemoveQueued("Dragon Sword")
	require.Error(t, err)

	count, err := engine.ClearQueue()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnsoldLotReturnsToStore(t *testing.T) {
	engine, clock, store := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 2*time.Minute, 1)
	require.NoError(t, err)

	startLot(t, engine, clock)
	fire(engine, clock, 2*time.Minute)

	assert.Equal(t, SessionCooldown, engine.Status().State)
	drainPersist(engine)
	require.Len(t, store.moved, 1)
	assert.Equal(t, "Dragon Sword", store.moved[0].Name)
	assert.Empty(t, store.allTallies())
}

func TestHighestConfirmedBidWins(t *testing.T) {
	engine, clock, store := newTestEngine(t, map[string]int{"Alice": 500, "Bob": 300})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	assert.Equal(t, 350, available(t, engine, "Alice"))

	fire(engine, clock, 5*time.Second)
	confirmBid(t, engine, "Bob", 200)

	// Alice's points came back the moment Bob's bid committed
	assert.Equal(t, 500, available(t, engine, "Alice"))
	assert.Equal(t, 100, available(t, engine, "Bob"))

	fire(engine, clock, 5*time.Minute)
	drainPersist(engine)

	bob, err := engine.Ledger().Balance("Bob")
	require.NoError(t, err)
	assert.Equal(t, 200, bob.Consumed)
	assert.Equal(t, 0, bob.Locked)

	tally := store.allTallies()
	require.Len(t, tally, 1)
	assert.Equal(t, "Bob", tally[0].Winner)
	assert.Equal(t, 200, tally[0].Amount)
}

func TestSelfOverbidReservesOnlyTheDifference(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	fire(engine, clock, 5*time.Second)

	proposal, err := engine.ProposeBid("Alice", 220)
	require.NoError(t, err)
	assert.True(t, proposal.SelfOverbid)
	assert.Equal(t, 70, proposal.Increment)
	require.NoError(t, engine.ConfirmBid(proposal.ID))

	balance, err := engine.Ledger().Balance("Alice")
	require.NoError(t, err)
	assert.Equal(t, 220, balance.Locked)
	assert.Equal(t, 280, balance.Available())
}

func TestBatchLotTopBiddersWin(t *testing.T) {
	points := map[string]int{"A": 1000, "B": 1000, "C": 1000, "D": 1000, "E": 1000}
	engine, clock, _ := newTestEngine(t, points)
	_, err := engine.EnqueueLot("Phoenix Plume", 50, 10*time.Minute, 3)
	require.NoError(t, err)
	startLot(t, engine, clock)

	for _, bid := range []struct {
		member string
		amount int
	}{
		{"A", 100}, {"B", 120}, {"C", 150}, {"D", 200}, {"E", 250},
	} {
		confirmBid(t, engine, bid.member, bid.amount)
		fire(engine, clock, 5*time.Second)
	}

	fire(engine, clock, 10*time.Minute)

	// Top three pay, the other two get their locks back
	for member, want := range map[string]int{"E": 250, "D": 200, "C": 150} {
		balance, err := engine.Ledger().Balance(member)
		require.NoError(t, err)
		assert.Equal(t, want, balance.Consumed, member)
		assert.Equal(t, 0, balance.Locked, member)
	}
	for _, member := range []string{"A", "B"} {
		balance, err := engine.Ledger().Balance(member)
		require.NoError(t, err)
		assert.Equal(t, 0, balance.Consumed, member)
		assert.Equal(t, 0, balance.Locked, member)
		assert.Equal(t, 1000, balance.Available(), member)
	}
}

func TestLateBidsExtendUpToTheCap(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 10000, "Bob": 10000})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 2*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)
	deadline := engine.lot.Deadline

	// First bid well before the window: no extension
	confirmBid(t, engine, "Alice", 150)
	assert.Equal(t, deadline, engine.lot.Deadline)

	// Move inside the extension window
	fire(engine, clock, 90*time.Second)
	confirmBid(t, engine, "Bob", 200)
	assert.Equal(t, deadline.Add(60*time.Second), engine.lot.Deadline)
	assert.Equal(t, LotExtending, engine.lot.State)

	fire(engine, clock, 60*time.Second)
	confirmBid(t, engine, "Alice", 250)
	assert.Equal(t, 2, engine.lot.Extensions)

	// Cap reached: further late bids no longer move the deadline
	fire(engine, clock, 30*time.Second)
	capped := engine.lot.Deadline
	confirmBid(t, engine, "Bob", 300)
	assert.Equal(t, capped, engine.lot.Deadline)
}

func TestPauseFreezesTheCountdown(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 2*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	require.NoError(t, engine.Pause())
	_, err = engine.ProposeBid("Alice", 150)
	require.ErrorIs(t, err, ErrSessionPaused)

	// Way past the original deadline, nothing closes
	fire(engine, clock, 10*time.Minute)
	require.NotNil(t, engine.lot)
	assert.Equal(t, LotActive, engine.lot.State)

	require.NoError(t, engine.Resume())
	remaining := engine.lot.Deadline.Sub(clock.Now())
	assert.Equal(t, 2*time.Minute, remaining)

	fire(engine, clock, 2*time.Minute)
	assert.Nil(t, engine.lot)
}

func TestExtendCommand(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 2*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)
	deadline := engine.lot.Deadline

	require.NoError(t, engine.Extend(5))
	assert.Equal(t, deadline.Add(5*time.Minute), engine.lot.Deadline)

	// The old close event must not fire at the original deadline
	fire(engine, clock, 2*time.Minute)
	require.NotNil(t, engine.lot)

	fire(engine, clock, 5*time.Minute)
	assert.Nil(t, engine.lot)
}

func TestSkipRefusesLotWithBids(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	require.Error(t, engine.SkipLot())
	require.NotNil(t, engine.lot)
}

func TestCancelLotReleasesEveryLock(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500, "Bob": 300})
	_, err := engine.EnqueueLot("Phoenix Plume", 50, 5*time.Minute, 2)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 100)
	fire(engine, clock, 5*time.Second)
	confirmBid(t, engine, "Bob", 150)

	require.NoError(t, engine.CancelLot())
	assert.Equal(t, 500, available(t, engine, "Alice"))
	assert.Equal(t, 300, available(t, engine, "Bob"))
	assert.Empty(t, engine.Ledger().Locks())
}

func TestPausedSessionRefusesLotCommands(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	require.NoError(t, engine.Pause())

	// A frozen lot cannot be closed or discarded out from under the pause
	require.ErrorIs(t, engine.StopLot(), ErrSessionPaused)
	require.ErrorIs(t, engine.CancelLot(), ErrSessionPaused)
	require.ErrorIs(t, engine.SkipLot(), ErrSessionPaused)
	require.NotNil(t, engine.lot)
	assert.Equal(t, SessionPaused, engine.Status().State)
	assert.Equal(t, 350, available(t, engine, "Alice"))

	require.NoError(t, engine.Resume())
	require.NoError(t, engine.StopLot())
	assert.Nil(t, engine.lot)
}

func TestResubmitKeepsTheMatchingStamp(t *testing.T) {
	engine, clock, store := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)

	firstStamp := clock.Now().Format("01/02/06 15:04")
	startLot(t, engine, clock)
	confirmBid(t, engine, "Alice", 150)
	require.NoError(t, engine.EndSession())
	drainPersist(engine)
	require.Len(t, store.tallies[firstStamp], 1)

	// A fresh session with nothing sold yet: a resubmission must carry
	// the previous results under the previous stamp, not the new one
	clock.Advance(5 * time.Minute)
	secondStamp := clock.Now().Format("01/02/06 15:04")
	_, err = engine.EnqueueLot("Phoenix Plume", 50, 5*time.Minute, 1)
	require.NoError(t, err)
	require.NoError(t, engine.StartSession(true))

	count, err := engine.SubmitResults()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, store.tallies[firstStamp], 2)
	assert.Empty(t, store.tallies[secondStamp])
}

func TestSessionEndClearsRateLimitHistory(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	require.NoError(t, engine.EndSession())
	assert.Empty(t, engine.lastBidAt)

	// The next session starts with a clean slate, no stale rate limit
	_, err = engine.EnqueueLot("Phoenix Plume", 50, 5*time.Minute, 1)
	require.NoError(t, err)
	require.NoError(t, engine.StartSession(true))
	fire(engine, clock, engine.cfg.LotGap)
	fire(engine, clock, engine.cfg.PreviewTime)
	_, err = engine.ProposeBid("Alice", 50)
	require.NoError(t, err)
}

func TestCooldownBlocksTheNextSession(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 2*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)
	fire(engine, clock, 2*time.Minute)
	require.Equal(t, SessionCooldown, engine.Status().State)

	_, err = engine.EnqueueLot("Phoenix Plume", 50, 2*time.Minute, 1)
	require.NoError(t, err)
	require.ErrorIs(t, engine.StartSession(false), ErrCooldownActive)

	// The override exists for exactly this case
	require.NoError(t, engine.StartSession(true))
}

func TestEndSessionClosesCurrentLotWithoutAdvancing(t *testing.T) {
	engine, clock, store := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	_, err = engine.EnqueueLot("Phoenix Plume", 50, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	require.NoError(t, engine.EndSession())
	drainPersist(engine)

	assert.Equal(t, SessionCooldown, engine.Status().State)
	tally := store.allTallies()
	require.Len(t, tally, 1)
	assert.Equal(t, "Alice", tally[0].Winner)
	// The lot that never ran goes back to the store
	require.Len(t, store.moved, 1)
	assert.Equal(t, "Phoenix Plume", store.moved[0].Name)
}

func TestEmergencyOverrides(t *testing.T) {
	engine, clock, _ := newTestEngine(t, map[string]int{"Alice": 500})
	_, err := engine.EnqueueLot("Dragon Sword", 100, 5*time.Minute, 1)
	require.NoError(t, err)
	startLot(t, engine, clock)

	confirmBid(t, engine, "Alice", 150)
	fire(engine, clock, 5*time.Second)
	_, err = engine.ProposeBid("Alice", 200)
	require.NoError(t, err)

	assert.Equal(t, 1, engine.ForceClearPending())
	assert.Equal(t, 150, engine.ForceUnlockAll())
	assert.Empty(t, engine.Ledger().Locks())

	outcome, err := engine.ForceEndAuction()
	require.NoError(t, err)
	assert.Equal(t, "session force-ended", outcome)

	// Second call clears the cooldown, third has nothing left
	outcome, err = engine.ForceEndAuction()
	require.NoError(t, err)
	assert.Equal(t, "cooldown cleared", outcome)
	_, err = engine.ForceEndAuction()
	require.ErrorIs(t, err, ErrNoSession)
}
