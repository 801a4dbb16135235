package auction

import (
	"errors"
	"fmt"
	"time"

	"bidkeeper/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Proposal is the ephemeral half-open state of a bid: the points are
// already reserved, the lot is not yet updated. Exactly one Confirm,
// Cancel or expiry consumes it.
type Proposal struct {
	ID          uuid.UUID
	Member      string
	Amount      int
	Increment   int // what Reserve actually took, after self-overbid credit
	SelfOverbid bool
	CreatedAt   time.Time
	ExpiresAt   time.Time

	lotID       uuid.UUID
	expiryEvent uuid.UUID
}

// ProposeBid validates a bid and reserves the incremental points.
// The caller owes the proposer a confirmation prompt; nothing on the
// lot changes until ConfirmBid.
func (e *Engine) ProposeBid(member string, amount int) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lot := e.lot
	if !e.running || lot == nil || (lot.State != LotActive && lot.State != LotExtending) {
		return Proposal{}, ErrNoActiveLot
	}
	if e.paused {
		return Proposal{}, ErrSessionPaused
	}
	if amount <= 0 {
		return Proposal{}, fmt.Errorf("%w: must be a positive whole number", ErrInvalidBidAmount)
	}
	if lot.HasBids() {
		if amount <= lot.CurrentBid {
			return Proposal{}, fmt.Errorf("%w: must beat the current %d", ErrInvalidBidAmount, lot.CurrentBid)
		}
	} else if amount < lot.StartPrice {
		return Proposal{}, fmt.Errorf("%w: below the starting price of %d", ErrInvalidBidAmount, lot.StartPrice)
	}

	now := e.clock.Now()
	k := memberKey(member)
	if last, ok := e.lastBidAt[k]; ok && now.Sub(last) < e.cfg.BidRateLimit {
		wait := e.cfg.BidRateLimit - now.Sub(last)
		return Proposal{}, fmt.Errorf("%w: wait %s", ErrRateLimited, wait.Round(time.Second))
	}
	for _, p := range e.pending {
		if memberKey(p.Member) == k {
			return Proposal{}, fmt.Errorf("%w: previous proposal still open", ErrRateLimited)
		}
	}

	// A member raising their own standing bid only reserves the
	// difference; the existing lock stays in place the whole time so
	// nobody can slide in between a release and a re-reserve
	existing := lot.Locks[k]
	increment := amount
	if existing > 0 {
		increment = amount - existing
	}
	if err := e.ledger.Reserve(member, increment); err != nil {
		if errors.Is(err, ledger.ErrInsufficientPoints) || errors.Is(err, ledger.ErrUnknownMember) {
			return Proposal{}, fmt.Errorf("%w: %d more needed", ledger.ErrInsufficientPoints, increment)
		}
		return Proposal{}, err
	}

	proposal := &Proposal{
		ID:          uuid.New(),
		Member:      member,
		Amount:      amount,
		Increment:   increment,
		SelfOverbid: existing > 0,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.cfg.ConfirmTimeout),
		lotID:       lot.ID,
	}
	id := proposal.ID
	proposal.expiryEvent = e.timeline.Schedule(proposal.ExpiresAt, func() {
		e.expireBid(id)
	})
	e.pending[id] = proposal
	e.lastBidAt[k] = now

	log.Info().Msg(fmt.Sprintf("Proposal from %s: %d on %s (reserved %d)", member, amount, lot.Name, increment))
	return *proposal, nil
}

// ConfirmBid commits a pending proposal: the lot's highest bid moves
// to the proposer and the previous winner's lock is released. The
// engine mutex serializes resolutions; the loser of a confirm race
// finds its proposal already consumed or its amount stale.
func (e *Engine) ConfirmBid(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return ErrConfirmationExpired
	}

	lot := e.lot
	if lot == nil || lot.ID != p.lotID || (lot.State != LotActive && lot.State != LotExtending) {
		e.dropProposalLocked(p)
		return ErrNoActiveLot
	}
	// A paused lot accepts no resolutions; the proposal stays pending
	// until resume or its own expiry, whichever comes first
	if e.paused {
		return ErrSessionPaused
	}
	// Someone else may have committed a higher bid while this proposal
	// waited for its confirmation
	if lot.HasBids() && p.Amount <= lot.CurrentBid {
		e.dropProposalLocked(p)
		return fmt.Errorf("%w: current bid is already %d", ErrInvalidBidAmount, lot.CurrentBid)
	}

	now := e.clock.Now()
	k := memberKey(p.Member)

	// For single-item lots the dethroned bidder gets their lock back
	// now, not at propose time, so their points were never exposed to
	// a counter-bid race
	if lot.Quantity == 1 && lot.CurrentWinner != "" {
		prevKey := memberKey(lot.CurrentWinner)
		if prevKey != k {
			if amount, held := lot.Locks[prevKey]; held {
				e.ledger.Release(lot.CurrentWinner, amount)
				delete(lot.Locks, prevKey)
				e.notifier.Outbid(lot.view(now), lot.CurrentWinner, p.Amount)
			}
		}
	}

	// The base lock this proposal was sized against can be gone by now:
	// a competing confirm releases the dethroned bidder's lock. Reserve
	// the shortfall so the winner's lock always covers the full amount.
	increment := p.Increment
	if held := lot.Locks[k]; held+increment < p.Amount {
		shortfall := p.Amount - held - increment
		if err := e.ledger.Reserve(p.Member, shortfall); err != nil {
			e.dropProposalLocked(p)
			return fmt.Errorf("%w: %d more needed", ledger.ErrInsufficientPoints, shortfall)
		}
		increment += shortfall
	}

	lot.Locks[k] += increment
	lot.CurrentBid = p.Amount
	lot.CurrentWinner = p.Member
	lot.Bids = append(lot.Bids, Bid{Member: p.Member, Amount: p.Amount, At: now})

	e.timeline.Cancel(p.expiryEvent)
	delete(e.pending, id)

	// Late commits buy everyone more time, up to the extension cap
	if !e.paused && lot.Deadline.Sub(now) < e.cfg.ExtensionWindow && lot.Extensions < e.cfg.MaxExtensions {
		lot.Deadline = lot.Deadline.Add(e.cfg.ExtensionStep)
		lot.Extensions++
		lot.State = LotExtending
		e.scheduleLotTimers()
		log.Info().Msg(fmt.Sprintf("Lot %s extended to %s (%d/%d)",
			lot.Name, lot.Deadline.Format(time.TimeOnly), lot.Extensions, e.cfg.MaxExtensions))
	}

	log.Info().Msg(fmt.Sprintf("Bid committed: %s at %d on %s", p.Member, p.Amount, lot.Name))
	e.notifier.NewHighBid(lot.view(now), p.Member, p.Amount)
	e.saveSnapshotAsync()
	return nil
}

// CancelBid releases the reservation of a pending proposal. Explicit
// cancel of an already-resolved proposal reports ErrConfirmationExpired
// so the caller can tell the difference; ledger-wise it is a no-op.
func (e *Engine) CancelBid(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return ErrConfirmationExpired
	}
	e.dropProposalLocked(p)
	log.Info().Msg(fmt.Sprintf("Proposal from %s for %d cancelled", p.Member, p.Amount))
	return nil
}

// expireBid is the deadline path. It must stay idempotent: the timeline
// event can fire after an explicit cancel already consumed the
// proposal, and that has to be a no-op.
func (e *Engine) expireBid(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[id]
	if !ok {
		return
	}
	e.dropProposalLocked(p)
	log.Info().Msg(fmt.Sprintf("Proposal from %s for %d expired unanswered", p.Member, p.Amount))
}

// dropProposalLocked undoes the reservation and forgets the proposal
func (e *Engine) dropProposalLocked(p *Proposal) {
	e.ledger.Release(p.Member, p.Increment)
	e.timeline.Cancel(p.expiryEvent)
	delete(e.pending, p.ID)
}

// cancelPendingLocked drops every pending proposal; used when the lot
// they belong to stops existing
func (e *Engine) cancelPendingLocked() int {
	count := 0
	for _, p := range e.pending {
		e.dropProposalLocked(p)
		count++
	}
	return count
}
