package auction

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionRunning  SessionState = "running"
	SessionPaused   SessionState = "paused"
	SessionCooldown SessionState = "cooldown"
)

func (e *Engine) stateLocked(now time.Time) SessionState {
	switch {
	case e.running && e.paused:
		return SessionPaused
	case e.running:
		return SessionRunning
	case now.Before(e.cooldownUntil):
		return SessionCooldown
	default:
		return SessionIdle
	}
}

// Status is what a bidder asking "what is going on" gets back
type Status struct {
	State             SessionState  `json:"state"`
	Lot               *LotView      `json:"lot,omitempty"`
	QueueSize         int           `json:"queueSize"`
	SoldThisSession   int           `json:"soldThisSession"`
	CooldownRemaining time.Duration `json:"cooldownRemaining,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	status := Status{
		State:           e.stateLocked(now),
		QueueSize:       e.queue.Len(),
		SoldThisSession: len(e.tally),
	}
	if e.lot != nil {
		view := e.lot.view(now)
		status.Lot = &view
	}
	if status.State == SessionCooldown {
		status.CooldownRemaining = e.cooldownUntil.Sub(now)
	}
	return status
}

// Diagnostics is the emergency read-only snapshot: enough to judge
// whether the session state is corrupted without touching anything
type Diagnostics struct {
	State                SessionState  `json:"state"`
	QueueSize            int           `json:"queueSize"`
	LockCount            int           `json:"lockCount"`
	LockedPoints         int           `json:"lockedPoints"`
	PendingConfirmations int           `json:"pendingConfirmations"`
	ActiveLot            *LotView      `json:"activeLot,omitempty"`
	LedgerMembers        int           `json:"ledgerMembers"`
	TallySize            int           `json:"tallySize"`
	CooldownRemaining    time.Duration `json:"cooldownRemaining,omitempty"`
}

func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	locks := e.ledger.Locks()
	lockedPoints := 0
	for _, amount := range locks {
		lockedPoints += amount
	}
	diag := Diagnostics{
		State:                e.stateLocked(now),
		QueueSize:            e.queue.Len(),
		LockCount:            len(locks),
		LockedPoints:         lockedPoints,
		PendingConfirmations: len(e.pending),
		LedgerMembers:        e.ledger.Size(),
		TallySize:            len(e.tally),
	}
	if e.lot != nil {
		view := e.lot.view(now)
		diag.ActiveLot = &view
	}
	if now.Before(e.cooldownUntil) {
		diag.CooldownRemaining = e.cooldownUntil.Sub(now)
	}
	return diag
}

// ---------------------------------------------------------------------------
// Emergency overrides. These bypass the normal transitions; the chat
// surface gates each one behind an explicit confirmation prompt.

// ForceUnlockAll zeroes every lock in the ledger and forgets the lot's
// own lock bookkeeping. Recovery hatch for a corrupted session.
func (e *Engine) ForceUnlockAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelPendingLocked()
	if e.lot != nil {
		e.lot.Locks = map[string]int{}
	}
	cleared := e.ledger.ForceClear("")
	log.Warn().Msg(fmt.Sprintf("Force unlock: %d points freed", cleared))
	return cleared
}

// ForceClearPending drops every pending confirmation, releasing the
// reservations they held
func (e *Engine) ForceClearPending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := e.cancelPendingLocked()
	log.Warn().Msg(fmt.Sprintf("Force cleared %d pending confirmations", count))
	return count
}

// ForceEndAuction detects what is running and shuts it down: a live
// session is ended normally, a lingering cooldown is wiped
func (e *Engine) ForceEndAuction() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		if e.lot != nil {
			e.closeLotLocked(false)
		}
		e.endSessionLocked()
		return "session force-ended", nil
	}
	if e.clock.Now().Before(e.cooldownUntil) {
		e.cooldownUntil = time.Time{}
		return "cooldown cleared", nil
	}
	return "", fmt.Errorf("nothing to end: %w", ErrNoSession)
}

// ForceSync writes the current state to the store synchronously and
// reports the outcome instead of burying it in a background worker
func (e *Engine) ForceSync() error {
	return e.store.SaveSnapshot(e.Snapshot())
}

// ---------------------------------------------------------------------------
// Snapshot plumbing

// Snapshot captures the engine state in its durable shape
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Active:       e.running,
		Paused:       e.paused,
		SessionStamp: e.sessionStamp,
		Queue:        e.queue.Specs(),
		Locks:        e.ledger.Locks(),
		Tally:        append([]TallyEntry(nil), e.tally...),
		SavedAt:      e.clock.Now(),
	}
	if e.lot != nil {
		locks := make(map[string]int, len(e.lot.Locks))
		for k, v := range e.lot.Locks {
			locks[k] = v
		}
		snapshot.Lot = &LotSnapshot{
			LotSpec:       e.lot.Spec(),
			State:         e.lot.State,
			CurrentBid:    e.lot.CurrentBid,
			CurrentWinner: e.lot.CurrentWinner,
			Extensions:    e.lot.Extensions,
			Deadline:      e.lot.Deadline,
			Bids:          append([]Bid(nil), e.lot.Bids...),
			Locks:         locks,
		}
	}
	return snapshot
}

// saveSnapshotAsync captures the state now and writes it later.
// A failed write is logged and abandoned; it never rolls anything back.
func (e *Engine) saveSnapshotAsync() {
	snapshot := e.snapshotLocked()
	e.enqueuePersist(func() {
		if err := e.store.SaveSnapshot(snapshot); err != nil {
			log.Error().Msg(fmt.Sprintf("Snapshot save failed: %s", err))
		}
	})
}
