package auction

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type LotState string

const (
	LotQueued    LotState = "queued"
	LotPreview   LotState = "preview"
	LotActive    LotState = "active"
	LotExtending LotState = "extending"
	LotClosing   LotState = "closing"
	LotFinalized LotState = "finalized"
	LotCancelled LotState = "cancelled"
	LotSkipped   LotState = "skipped"
)

// Bid is one committed (confirmed) bid on a lot
type Bid struct {
	Member string    `json:"member"`
	Amount int       `json:"amount"`
	At     time.Time `json:"at"`
}

// Lot is a single auctionable item. Locks tracks, per member, the
// points currently reserved against this lot; for single-item lots it
// only ever holds the current winner, for batch lots every confirmed
// bidder keeps a lock until the close decides winners and losers.
type Lot struct {
	ID            uuid.UUID
	Name          string
	StartPrice    int
	Duration      time.Duration
	Quantity      int
	State         LotState
	CurrentBid    int
	CurrentWinner string
	Bids          []Bid
	Locks         map[string]int
	Deadline      time.Time
	Extensions    int
}

func NewLot(name string, startPrice int, duration time.Duration, quantity int) *Lot {
	if quantity < 1 {
		quantity = 1
	}
	return &Lot{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		StartPrice: startPrice,
		Duration:   duration,
		Quantity:   quantity,
		State:      LotQueued,
		CurrentBid: startPrice,
		Locks:      map[string]int{},
	}
}

func (lot *Lot) HasBids() bool {
	return len(lot.Bids) > 0
}

func (lot *Lot) Spec() LotSpec {
	return LotSpec{
		Name:        lot.Name,
		StartPrice:  lot.StartPrice,
		DurationMin: int(lot.Duration / time.Minute),
		Quantity:    lot.Quantity,
	}
}

// memberKey normalises a member name the same way the ledger does,
// so lock bookkeeping survives inconsistent casing from the chat surface
func memberKey(member string) string {
	return strings.ToLower(strings.TrimSpace(member))
}

type winner struct {
	member string
	amount int
	at     time.Time
}

// winners returns the top-quantity distinct bidders by final confirmed
// amount, ties broken by who reached their amount first
func (lot *Lot) winners() []winner {
	best := map[string]*winner{}
	order := []string{}
	for _, bid := range lot.Bids {
		k := memberKey(bid.Member)
		if w, ok := best[k]; ok {
			if bid.Amount > w.amount {
				w.amount = bid.Amount
				w.at = bid.At
				w.member = bid.Member
			}
			continue
		}
		best[k] = &winner{member: bid.Member, amount: bid.Amount, at: bid.At}
		order = append(order, k)
	}

	ranked := make([]winner, 0, len(order))
	for _, k := range order {
		ranked = append(ranked, *best[k])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].amount != ranked[j].amount {
			return ranked[i].amount > ranked[j].amount
		}
		return ranked[i].at.Before(ranked[j].at)
	})

	if len(ranked) > lot.Quantity {
		ranked = ranked[:lot.Quantity]
	}
	return ranked
}

// LotView is the read-only shape of a lot handed to notifiers and
// diagnostics
type LotView struct {
	Name          string        `json:"name"`
	StartPrice    int           `json:"startPrice"`
	Quantity      int           `json:"quantity"`
	State         LotState      `json:"state"`
	CurrentBid    int           `json:"currentBid"`
	CurrentWinner string        `json:"currentWinner,omitempty"`
	Deadline      time.Time     `json:"deadline,omitempty"`
	Remaining     time.Duration `json:"-"`
	Extensions    int           `json:"extensions"`
	HasBids       bool          `json:"hasBids"`
}

func (lot *Lot) view(now time.Time) LotView {
	view := LotView{
		Name:          lot.Name,
		StartPrice:    lot.StartPrice,
		Quantity:      lot.Quantity,
		State:         lot.State,
		CurrentBid:    lot.CurrentBid,
		CurrentWinner: lot.CurrentWinner,
		Deadline:      lot.Deadline,
		Extensions:    lot.Extensions,
		HasBids:       lot.HasBids(),
	}
	if !lot.Deadline.IsZero() {
		view.Remaining = lot.Deadline.Sub(now)
	}
	return view
}

// TallyEntry is one finalized lot outcome, the unit the session tally
// and the external store both understand
type TallyEntry struct {
	Lot       string    `json:"item"`
	Winner    string    `json:"winner"`
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
