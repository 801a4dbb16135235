package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrInsufficientPoints = errors.New("insufficient points")
var ErrUnknownMember = errors.New("unknown member")

// Balance is the three-way split of a member's points.
// Awarded never decreases except through an administrative reset,
// Consumed only grows when a won lot is finalized, and Locked holds
// whatever is reserved against open bids.
type Balance struct {
	Awarded  int `json:"awarded"`
	Consumed int `json:"consumed"`
	Locked   int `json:"locked"`
}

func (b Balance) Available() int {
	return b.Awarded - b.Consumed - b.Locked
}

// Ledger is the authoritative bookkeeping for member points.
// Reserve, Release and Commit are the only mutators during a session;
// every lock created by Reserve must end in exactly one Release or Commit.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*Balance
}

func NewLedger() *Ledger {
	return &Ledger{balances: map[string]*Balance{}}
}

// Member names come from the chat surface with inconsistent casing,
// so every lookup goes through the same normalisation
func key(member string) string {
	return strings.ToLower(strings.TrimSpace(member))
}

// Load replaces the awarded totals with a fresh copy from the external
// store. Locked and consumed amounts of members still present are kept,
// since they belong to the running session, not to the store.
func (l *Ledger) Load(points map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make(map[string]*Balance, len(points))
	for member, awarded := range points {
		k := key(member)
		balance := &Balance{Awarded: awarded}
		if old, ok := l.balances[k]; ok {
			balance.Consumed = old.Consumed
			balance.Locked = old.Locked
		}
		fresh[k] = balance
	}
	l.balances = fresh
	log.Info().Msg(fmt.Sprintf("Ledger loaded with %d members", len(fresh)))
}

// Balance returns a copy of the member's balance
func (l *Ledger) Balance(member string) (Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key(member)]
	if !ok {
		return Balance{}, ErrUnknownMember
	}
	return *balance, nil
}

// Reserve moves amount from available to locked.
// Fails without any mutation if the member cannot cover it.
func (l *Ledger) Reserve(member string, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key(member)]
	if !ok {
		return ErrUnknownMember
	}
	if balance.Available() < amount {
		return ErrInsufficientPoints
	}
	balance.Locked += amount
	log.Debug().Msg(fmt.Sprintf("Reserved %d points for %s (locked now %d)", amount, member, balance.Locked))
	return nil
}

// Release moves amount from locked back to available.
// An underflow here means a protocol bug upstream; the ledger clamps
// to zero and logs instead of corrupting the balance.
func (l *Ledger) Release(member string, amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key(member)]
	if !ok {
		log.Error().Msg(fmt.Sprintf("Release for unknown member %s", member))
		return
	}
	if balance.Locked < amount {
		log.Error().Msg(fmt.Sprintf("Release of %d exceeds lock of %d for %s", amount, balance.Locked, member))
		balance.Locked = 0
		return
	}
	balance.Locked -= amount
	log.Debug().Msg(fmt.Sprintf("Released %d points for %s (locked now %d)", amount, member, balance.Locked))
}

// Commit moves amount from locked to consumed.
// Only called at lot finalization for the actual winner(s).
func (l *Ledger) Commit(member string, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[key(member)]
	if !ok {
		return ErrUnknownMember
	}
	if balance.Locked < amount {
		return fmt.Errorf("commit of %d exceeds lock of %d for %s", amount, balance.Locked, member)
	}
	balance.Locked -= amount
	balance.Consumed += amount
	log.Info().Msg(fmt.Sprintf("Committed %d points for %s (consumed now %d)", amount, member, balance.Consumed))
	return nil
}

// ForceClear zeroes the locked amount for one member, or for every
// member when the name is empty. Emergency use only; consumed and
// awarded are never touched.
func (l *Ledger) ForceClear(member string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cleared := 0
	if member != "" {
		if balance, ok := l.balances[key(member)]; ok && balance.Locked > 0 {
			cleared = balance.Locked
			balance.Locked = 0
		}
	} else {
		for _, balance := range l.balances {
			cleared += balance.Locked
			balance.Locked = 0
		}
	}
	if cleared > 0 {
		log.Warn().Msg(fmt.Sprintf("Force cleared %d locked points", cleared))
	}
	return cleared
}

// Locks returns the members currently holding locks and their amounts
func (l *Ledger) Locks() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	locks := map[string]int{}
	for member, balance := range l.balances {
		if balance.Locked > 0 {
			locks[member] = balance.Locked
		}
	}
	return locks
}

// RestoreLocks reinstates locks from a persisted snapshot during recovery
func (l *Ledger) RestoreLocks(locks map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for member, amount := range locks {
		if balance, ok := l.balances[key(member)]; ok {
			balance.Locked = amount
		}
	}
}

// Size returns the number of members known to the ledger
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.balances)
}
