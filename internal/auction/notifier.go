package auction

import "time"

// Notifier is the one-way channel from the engine to the chat surface.
// The engine announces what happened; the consumer decides how to
// render it. Nothing here may call back into the engine synchronously.
type Notifier interface {
	SessionStarted(queued int, stamp string)
	LotPreview(lot LotView, queueLeft int, previewFor time.Duration)
	BiddingOpen(lot LotView)
	GoingOnce(lot LotView)
	GoingTwice(lot LotView)
	FinalCall(lot LotView)
	NewHighBid(lot LotView, bidder string, amount int)
	Outbid(lot LotView, member string, newAmount int)
	LotSold(lot LotView, winners []TallyEntry)
	LotNoBids(lot LotView)
	LotCancelled(lot LotView, releasedLocks int)
	LotSkipped(lot LotView)
	NextLotSoon(next LotView, wait time.Duration)
	SessionEnded(tally []TallyEntry, movedToStore int)
	SessionRecovered(report RecoveryReport)
}

// NopNotifier satisfies Notifier without doing anything. Used by tests
// and as a fallback while the chat surface is not connected.
type NopNotifier struct{}

func (NopNotifier) SessionStarted(int, string)                {}
func (NopNotifier) LotPreview(LotView, int, time.Duration)    {}
func (NopNotifier) BiddingOpen(LotView)                       {}
func (NopNotifier) GoingOnce(LotView)                         {}
func (NopNotifier) GoingTwice(LotView)                        {}
func (NopNotifier) FinalCall(LotView)                         {}
func (NopNotifier) NewHighBid(LotView, string, int)           {}
func (NopNotifier) Outbid(LotView, string, int)               {}
func (NopNotifier) LotSold(LotView, []TallyEntry)             {}
func (NopNotifier) LotNoBids(LotView)                         {}
func (NopNotifier) LotCancelled(LotView, int)                 {}
func (NopNotifier) LotSkipped(LotView)                        {}
func (NopNotifier) NextLotSoon(LotView, time.Duration)        {}
func (NopNotifier) SessionEnded([]TallyEntry, int)            {}
func (NopNotifier) SessionRecovered(RecoveryReport)           {}
