package auction

import "time"

// LotSpec is the durable description of a lot, the shape the external
// store keeps in its pending-items list
type LotSpec struct {
	Name        string `json:"name"`
	StartPrice  int    `json:"startPrice"`
	DurationMin int    `json:"duration"`
	Quantity    int    `json:"quantity"`
}

func (spec LotSpec) lot() *Lot {
	return NewLot(spec.Name, spec.StartPrice, time.Duration(spec.DurationMin)*time.Minute, spec.Quantity)
}

// LotSnapshot is the persisted state of the lot that was live when the
// snapshot was taken
type LotSnapshot struct {
	LotSpec
	State         LotState       `json:"state"`
	CurrentBid    int            `json:"currentBid"`
	CurrentWinner string         `json:"currentWinner,omitempty"`
	Extensions    int            `json:"extensions"`
	Deadline      time.Time      `json:"deadline"`
	Bids          []Bid          `json:"bids,omitempty"`
	Locks         map[string]int `json:"locks,omitempty"`
}

// Snapshot is the external store's copy of the session: written
// opportunistically while running, read exactly once at startup.
// It can trail the in-memory state; persistence is best effort.
type Snapshot struct {
	Active       bool           `json:"active"`
	Paused       bool           `json:"paused"`
	SessionStamp string         `json:"sessionStamp,omitempty"`
	Lot          *LotSnapshot   `json:"lot,omitempty"`
	Queue        []LotSpec      `json:"queue,omitempty"`
	Locks        map[string]int `json:"locks,omitempty"`
	Tally        []TallyEntry   `json:"tally,omitempty"`
	SavedAt      time.Time      `json:"savedAt"`
}

// Store is everything the engine needs from the external spreadsheet
// webhook. Implemented by internal/store; faked in tests.
type Store interface {
	LoadSnapshot() (*Snapshot, error)
	SaveSnapshot(snapshot Snapshot) error
	SubmitTally(stamp string, entries []TallyEntry) error
	MoveQueueItems(items []LotSpec) error
	GetMemberBalances() (map[string]int, error)
}
