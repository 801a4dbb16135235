package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bidkeeper/internal/common"
	"bidkeeper/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config carries every timing knob of the engine. Defaults mirror the
// values the guild has been running with.
type Config struct {
	PreviewTime     time.Duration // no bids accepted, lot on display
	ConfirmTimeout  time.Duration // proposer must react within this window
	BidRateLimit    time.Duration // min gap between proposals from one member
	ExtensionWindow time.Duration // commits this close to the deadline extend it
	ExtensionStep   time.Duration // how far one extension pushes the deadline
	MaxExtensions   int
	LotGap          time.Duration // quiet time between lots
	Cooldown        time.Duration // quiet time after a session ends
}

func DefaultConfig() Config {
	return Config{
		PreviewTime:     30 * time.Second,
		ConfirmTimeout:  10 * time.Second,
		BidRateLimit:    3 * time.Second,
		ExtensionWindow: 60 * time.Second,
		ExtensionStep:   60 * time.Second,
		MaxExtensions:   15,
		LotGap:          20 * time.Second,
		Cooldown:        10 * time.Minute,
	}
}

// Engine owns the whole auction state: the queue, the live lot, the
// pending confirmations and the session tally. Every entry point takes
// the engine mutex, so external callers see one serialized sequence of
// events regardless of which goroutine (chat handler, timeline, HTTP
// diagnostics) they arrive on.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	clock    common.Clock
	timeline *Timeline
	ledger   *ledger.Ledger
	store    Store
	notifier Notifier

	queue  Queue
	lot    *Lot
	// timeline handles belonging to the current lot; paused sessions
	// suspend exactly these
	lotEvents []uuid.UUID

	running       bool
	paused        bool
	pausedAt      time.Time
	sessionStamp  string
	tally         []TallyEntry
	lastTally     []TallyEntry
	lastStamp     string
	unsold        []LotSpec
	cooldownUntil time.Time

	pending   map[uuid.UUID]*Proposal
	lastBidAt map[string]time.Time

	persistCh chan func()
}

func NewEngine(cfg Config, clock common.Clock, ldg *ledger.Ledger, store Store, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		cfg:       cfg,
		clock:     clock,
		timeline:  NewTimeline(clock),
		ledger:    ldg,
		store:     store,
		notifier:  notifier,
		pending:   map[uuid.UUID]*Proposal{},
		lastBidAt: map[string]time.Time{},
		persistCh: make(chan func(), 16),
	}
}

// Ledger exposes the injected ledger for read paths (balance lookups)
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Run drives the timeline and the persistence worker until the context
// is cancelled
func (e *Engine) Run(ctx context.Context) {
	go e.timeline.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-e.persistCh:
				job()
			}
		}
	}()

	// Periodic autosave while a session runs, so a crash never loses
	// more than a minute of state even with no bid activity
	autosave := common.NewTimedExecutor(time.Minute, func() {
		e.mu.Lock()
		if e.running {
			e.saveSnapshotAsync()
		}
		e.mu.Unlock()
	})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				autosave.Execute()
			}
		}
	}()
}

// enqueuePersist hands a store write to the background worker. A full
// queue drops the write with a log line; in-memory state is already
// applied and must not wait for the store.
func (e *Engine) enqueuePersist(job func()) {
	select {
	case e.persistCh <- job:
	default:
		log.Warn().Msg("Persistence queue full, dropping write")
	}
}

// ---------------------------------------------------------------------------
// Queue administration (only while no session is running)

func (e *Engine) EnqueueLot(name string, startPrice int, duration time.Duration, quantity int) (LotSpec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return LotSpec{}, ErrSessionAlreadyRunning
	}
	if name == "" || startPrice < 0 || duration <= 0 {
		return LotSpec{}, fmt.Errorf("invalid lot parameters")
	}
	lot := NewLot(name, startPrice, duration, quantity)
	e.queue.Add(lot)
	log.Info().Msg(fmt.Sprintf("Queued lot %s (start %d, %s, x%d)", lot.Name, startPrice, duration, lot.Quantity))
	return lot.Spec(), nil
}

func (e *Engine) QueueItems() []LotSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Specs()
}

func (e *Engine) RemoveQueued(name string) (LotSpec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return LotSpec{}, ErrSessionAlreadyRunning
	}
	lot, ok := e.queue.Remove(name)
	if !ok {
		return LotSpec{}, fmt.Errorf("no queued lot named %q", name)
	}
	return lot.Spec(), nil
}

func (e *Engine) ClearQueue() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return 0, ErrSessionAlreadyRunning
	}
	return e.queue.Clear(), nil
}

// ---------------------------------------------------------------------------
// Session lifecycle

// StartSession pulls the first queued lot into preview. The member
// balances are fetched fresh from the store, so a failed fetch aborts
// the start with no state change.
func (e *Engine) StartSession(overrideCooldown bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrSessionAlreadyRunning
	}
	now := e.clock.Now()
	if !overrideCooldown && now.Before(e.cooldownUntil) {
		return fmt.Errorf("%w: %s remaining", ErrCooldownActive, e.cooldownUntil.Sub(now).Round(time.Second))
	}
	if e.queue.Len() == 0 {
		return ErrEmptyQueue
	}

	points, err := e.store.GetMemberBalances()
	if err != nil {
		return fmt.Errorf("could not load member balances: %w", err)
	}
	e.ledger.Load(points)

	e.running = true
	e.paused = false
	e.sessionStamp = now.Format("01/02/06 15:04")
	e.tally = nil
	e.unsold = nil

	log.Info().Msg(fmt.Sprintf("Session started with %d lots queued", e.queue.Len()))
	e.notifier.SessionStarted(e.queue.Len(), e.sessionStamp)

	e.timeline.Schedule(now.Add(e.cfg.LotGap), e.lockedAction(e.startNextLot))
	return nil
}

// lockedAction wraps an internal transition so the timeline can invoke
// it with the engine mutex held
func (e *Engine) lockedAction(fn func()) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		fn()
	}
}

func (e *Engine) startNextLot() {
	if !e.running {
		return
	}
	lot := e.queue.PopFront()
	if lot == nil {
		e.endSessionLocked()
		return
	}
	e.lot = lot
	lot.State = LotPreview

	now := e.clock.Now()
	e.lotEvents = nil
	e.trackLotEvent(e.timeline.Schedule(now.Add(e.cfg.PreviewTime), e.lockedAction(e.activateLot)))
	log.Info().Msg(fmt.Sprintf("Lot %s entering preview", lot.Name))
	e.notifier.LotPreview(lot.view(now), e.queue.Len(), e.cfg.PreviewTime)
}

func (e *Engine) trackLotEvent(id uuid.UUID) {
	e.lotEvents = append(e.lotEvents, id)
}

func (e *Engine) cancelLotEvents() {
	for _, id := range e.lotEvents {
		e.timeline.Cancel(id)
	}
	e.lotEvents = nil
}

func (e *Engine) activateLot() {
	if !e.running || e.lot == nil || e.lot.State != LotPreview {
		return
	}
	lot := e.lot
	lot.State = LotActive
	lot.CurrentBid = lot.StartPrice
	now := e.clock.Now()
	lot.Deadline = now.Add(lot.Duration)

	e.scheduleLotTimers()
	log.Info().Msg(fmt.Sprintf("Lot %s open for bidding until %s", lot.Name, lot.Deadline.Format(time.TimeOnly)))
	e.notifier.BiddingOpen(lot.view(now))
}

// scheduleLotTimers (re)creates the countdown events for the current
// lot: the staged announcements and the close itself. Called on
// activation and again after every deadline change.
func (e *Engine) scheduleLotTimers() {
	e.cancelLotEvents()
	lot := e.lot
	now := e.clock.Now()

	announce := func(offset time.Duration, notify func(LotView)) {
		at := lot.Deadline.Add(-offset)
		if !at.After(now) {
			return
		}
		e.trackLotEvent(e.timeline.Schedule(at, e.lockedAction(func() {
			if e.lot != lot || e.paused || (lot.State != LotActive && lot.State != LotExtending) {
				return
			}
			notify(lot.view(e.clock.Now()))
		})))
	}
	announce(60*time.Second, e.notifier.GoingOnce)
	announce(30*time.Second, e.notifier.GoingTwice)
	announce(10*time.Second, e.notifier.FinalCall)

	e.trackLotEvent(e.timeline.Schedule(lot.Deadline, e.lockedAction(func() {
		if e.lot != lot {
			return
		}
		e.closeLotLocked(true)
	})))
}

// closeLotLocked drives the current lot through CLOSING to FINALIZED:
// commits the winners, releases the losers, records the tally and, if
// advance is set, lines up the next lot or ends the session.
func (e *Engine) closeLotLocked(advance bool) {
	lot := e.lot
	if lot == nil {
		return
	}
	e.cancelLotEvents()
	e.cancelPendingLocked()
	lot.State = LotClosing
	now := e.clock.Now()

	if lot.HasBids() {
		won := lot.winners()
		entries := make([]TallyEntry, 0, len(won))
		committed := map[string]struct{}{}
		for _, w := range won {
			k := memberKey(w.member)
			if err := e.ledger.Commit(w.member, w.amount); err != nil {
				log.Error().Msg(fmt.Sprintf("Commit failed for %s on lot %s: %s", w.member, lot.Name, err))
				continue
			}
			committed[k] = struct{}{}
			entry := TallyEntry{Lot: lot.Name, Winner: w.member, Amount: w.amount, Timestamp: now}
			entries = append(entries, entry)
			e.tally = append(e.tally, entry)
		}
		// Losing bidders get their reservations back
		for k, amount := range lot.Locks {
			if _, ok := committed[k]; ok {
				continue
			}
			e.ledger.Release(k, amount)
		}
		lot.Locks = map[string]int{}
		lot.State = LotFinalized
		log.Info().Msg(fmt.Sprintf("Lot %s sold to %d winner(s)", lot.Name, len(entries)))
		e.notifier.LotSold(lot.view(now), entries)
	} else {
		lot.State = LotFinalized
		e.unsold = append(e.unsold, lot.Spec())
		log.Info().Msg(fmt.Sprintf("Lot %s closed with no bids", lot.Name))
		e.notifier.LotNoBids(lot.view(now))
	}

	e.lot = nil
	e.saveSnapshotAsync()

	if !advance {
		return
	}
	if e.queue.Len() > 0 {
		next := e.queue.Specs()[0]
		e.notifier.NextLotSoon(LotView{Name: next.Name, StartPrice: next.StartPrice, Quantity: next.Quantity, State: LotQueued}, e.cfg.LotGap)
		e.timeline.Schedule(now.Add(e.cfg.LotGap), e.lockedAction(e.startNextLot))
		return
	}
	e.endSessionLocked()
}

// endSessionLocked flushes the tally and any leftover lots to the
// store, then enters the cooldown. In-memory ledger mutations stay put
// whatever the store says.
func (e *Engine) endSessionLocked() {
	if !e.running {
		return
	}
	e.running = false
	e.paused = false
	now := e.clock.Now()

	leftovers := append(e.queue.Specs(), e.unsold...)
	e.queue.Clear()
	e.unsold = nil

	tally := make([]TallyEntry, len(e.tally))
	copy(tally, e.tally)
	stamp := e.sessionStamp
	e.lastTally = tally
	e.lastStamp = stamp
	e.tally = nil
	e.sessionStamp = ""
	e.lastBidAt = map[string]time.Time{}

	e.cooldownUntil = now.Add(e.cfg.Cooldown)
	log.Info().Msg(fmt.Sprintf("Session ended: %d lots sold, %d returned to store, cooldown until %s",
		len(tally), len(leftovers), e.cooldownUntil.Format(time.TimeOnly)))

	e.enqueuePersist(func() {
		if len(tally) > 0 {
			if err := e.store.SubmitTally(stamp, tally); err != nil {
				log.Error().Msg(fmt.Sprintf("Tally submission failed: %s", err))
			}
		}
		if len(leftovers) > 0 {
			if err := e.store.MoveQueueItems(leftovers); err != nil {
				log.Error().Msg(fmt.Sprintf("Could not return %d lots to the store: %s", len(leftovers), err))
			}
		}
		if err := e.store.SaveSnapshot(e.Snapshot()); err != nil {
			log.Error().Msg(fmt.Sprintf("Snapshot save failed: %s", err))
		}
	})
	e.notifier.SessionEnded(tally, len(leftovers))
}

// Pause freezes the current lot's countdown. Only the lot's own events
// are suspended; pending confirmations keep their human deadline.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNoSession
	}
	if e.paused {
		return fmt.Errorf("already paused")
	}
	e.paused = true
	e.pausedAt = e.clock.Now()
	e.timeline.Suspend(e.lotEvents...)
	log.Info().Msg("Session paused")
	return nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNoSession
	}
	if !e.paused {
		return fmt.Errorf("not paused")
	}
	e.paused = false
	gap := e.clock.Now().Sub(e.pausedAt)
	// The countdown stood still for the whole pause, so the lot's own
	// deadline moves by the same amount the suspended events did
	if e.lot != nil && !e.lot.Deadline.IsZero() {
		e.lot.Deadline = e.lot.Deadline.Add(gap)
	}
	e.timeline.Resume(e.lotEvents...)
	log.Info().Msg(fmt.Sprintf("Session resumed after %s", gap.Round(time.Second)))
	return nil
}

// StopLot forces the active lot straight to closing, as if the
// countdown had reached zero
func (e *Engine) StopLot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lot == nil || (e.lot.State != LotActive && e.lot.State != LotExtending) {
		return ErrNoActiveLot
	}
	if e.paused {
		return ErrSessionPaused
	}
	e.closeLotLocked(true)
	return nil
}

// Extend pushes the current lot's deadline forward by the given number
// of minutes, independent of the automatic extension rule
func (e *Engine) Extend(minutes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lot == nil || (e.lot.State != LotActive && e.lot.State != LotExtending) {
		return ErrNoActiveLot
	}
	if minutes <= 0 {
		return fmt.Errorf("extension must be a positive number of minutes")
	}
	// Extending a paused lot: account for the pause so far, then keep
	// counting the pause from here
	if e.paused {
		now := e.clock.Now()
		e.lot.Deadline = e.lot.Deadline.Add(now.Sub(e.pausedAt))
		e.pausedAt = now
	}
	e.lot.Deadline = e.lot.Deadline.Add(time.Duration(minutes) * time.Minute)
	wasPaused := e.paused
	e.scheduleLotTimers()
	if wasPaused {
		e.timeline.Suspend(e.lotEvents...)
	}
	log.Info().Msg(fmt.Sprintf("Lot %s extended by %dm", e.lot.Name, minutes))
	return nil
}

// CancelLot discards the active lot: every outstanding lock on it is
// released and no tally entry is written
func (e *Engine) CancelLot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lot := e.lot
	if lot == nil {
		return ErrNoActiveLot
	}
	// Discarding while paused would schedule a next lot that runs with
	// the session still reporting paused; resume first
	if e.paused {
		return ErrSessionPaused
	}
	e.cancelLotEvents()
	e.cancelPendingLocked()
	released := 0
	for k, amount := range lot.Locks {
		e.ledger.Release(k, amount)
		released++
	}
	lot.Locks = map[string]int{}
	lot.State = LotCancelled
	e.lot = nil
	log.Warn().Msg(fmt.Sprintf("Lot %s cancelled, %d locks released", lot.Name, released))
	e.notifier.LotCancelled(lot.view(e.clock.Now()), released)
	e.advanceAfterDiscard()
	return nil
}

// SkipLot discards the active lot without a tally entry. Only allowed
// while no bids exist; with bids, cancel is the honest operation.
func (e *Engine) SkipLot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lot := e.lot
	if lot == nil {
		return ErrNoActiveLot
	}
	if e.paused {
		return ErrSessionPaused
	}
	if lot.HasBids() {
		return fmt.Errorf("lot %s already has bids; cancel it instead", lot.Name)
	}
	e.cancelLotEvents()
	e.cancelPendingLocked()
	lot.State = LotSkipped
	e.lot = nil
	log.Info().Msg(fmt.Sprintf("Lot %s skipped", lot.Name))
	e.notifier.LotSkipped(lot.view(e.clock.Now()))
	e.advanceAfterDiscard()
	return nil
}

func (e *Engine) advanceAfterDiscard() {
	if e.queue.Len() == 0 {
		e.endSessionLocked()
		return
	}
	e.timeline.Schedule(e.clock.Now().Add(e.cfg.LotGap), e.lockedAction(e.startNextLot))
}

// EndSession closes the current lot as if its timer had expired, skips
// everything still queued, and submits the tally
func (e *Engine) EndSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNoSession
	}
	if e.lot != nil {
		e.closeLotLocked(false)
	}
	e.endSessionLocked()
	return nil
}

// SubmitResults pushes the most recent tally to the store again,
// synchronously. Escape hatch for when the async submission failed.
func (e *Engine) SubmitResults() (int, error) {
	e.mu.Lock()
	// The stamp must travel with the tally it belongs to: a running
	// session with nothing sold yet falls back to the previous
	// session's results AND its stamp
	tally := e.lastTally
	stamp := e.lastStamp
	if e.running && len(e.tally) > 0 {
		tally = make([]TallyEntry, len(e.tally))
		copy(tally, e.tally)
		stamp = e.sessionStamp
	}
	e.mu.Unlock()

	if len(tally) == 0 {
		return 0, fmt.Errorf("no results to submit")
	}
	if err := e.store.SubmitTally(stamp, tally); err != nil {
		return 0, err
	}
	return len(tally), nil
}
