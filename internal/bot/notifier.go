package bot

import (
	"time"

	"bidkeeper/internal/auction"

	"github.com/rs/zerolog/log"
)

// The bot is the engine's notifier: every announcement becomes a
// message in the auction channel. The engine calls these with its own
// mutex held, so they only push into the send channel and return.
var _ auction.Notifier = (*Bot)(nil)

func (bot *Bot) announce(response Response) {
	select {
	case bot.sendCh <- response:
	default:
		log.Warn().Msg("Announcement channel full, dropping message")
	}
}

func (bot *Bot) SessionStarted(queued int, stamp string) {
	bot.announce(SessionStartedMsg(queued, stamp))
}

func (bot *Bot) LotPreview(lot auction.LotView, queueLeft int, previewFor time.Duration) {
	bot.announce(LotPreviewMsg(lot, queueLeft, previewFor))
}

func (bot *Bot) BiddingOpen(lot auction.LotView) {
	bot.announce(BiddingOpenMsg(lot))
}

func (bot *Bot) GoingOnce(lot auction.LotView) {
	bot.announce(GoingOnceMsg(lot))
}

func (bot *Bot) GoingTwice(lot auction.LotView) {
	bot.announce(GoingTwiceMsg(lot))
}

func (bot *Bot) FinalCall(lot auction.LotView) {
	bot.announce(FinalCallMsg(lot))
}

func (bot *Bot) NewHighBid(lot auction.LotView, bidder string, amount int) {
	bot.announce(NewHighBidMsg(lot, bidder, amount))
}

func (bot *Bot) Outbid(lot auction.LotView, member string, newAmount int) {
	bot.announce(OutbidMsg(lot, member, newAmount))
}

func (bot *Bot) LotSold(lot auction.LotView, winners []auction.TallyEntry) {
	bot.announce(LotSoldMsg(lot, winners))
}

func (bot *Bot) LotNoBids(lot auction.LotView) {
	bot.announce(LotNoBidsMsg(lot))
}

func (bot *Bot) LotCancelled(lot auction.LotView, releasedLocks int) {
	bot.announce(LotCancelledMsg(lot, releasedLocks))
}

func (bot *Bot) LotSkipped(lot auction.LotView) {
	bot.announce(LotSkippedMsg(lot))
}

func (bot *Bot) NextLotSoon(next auction.LotView, wait time.Duration) {
	bot.announce(NextLotSoonMsg(next, wait))
}

func (bot *Bot) SessionEnded(tally []auction.TallyEntry, movedToStore int) {
	bot.announce(SessionEndedMsg(tally, movedToStore))
}

func (bot *Bot) SessionRecovered(report auction.RecoveryReport) {
	bot.announce(SessionRecoveredMsg(report))
}
