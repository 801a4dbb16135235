package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bidkeeper/internal/auction"
	"bidkeeper/internal/ledger"

	"github.com/bwmarrin/discordgo"
)

// Embed colors by mood
const colorGold int = 0xFFD700
const colorGreen int = 0x00FF00
const colorOrange int = 0xFFA500
const colorRed int = 0xFF0000
const colorBlue int = 0x4A90E2

func InputNotValid(errorMessage string) []Response {
	return []Response{ResponseString{fmt.Sprintf("Input not valid: \n> %s", errorMessage)}}
}

func NotAllowed() []Response {
	return []Response{ResponseString{"You need the auctioneer role for that command"}}
}

// EngineError turns the engine's sentinel errors into something a
// bidder can act on
func EngineError(err error) []Response {
	switch {
	case errors.Is(err, auction.ErrNoActiveLot):
		return []Response{ResponseString{"There is no item up for bidding right now"}}
	case errors.Is(err, auction.ErrSessionPaused):
		return []Response{ResponseString{"The auction is paused, hold your bids"}}
	case errors.Is(err, auction.ErrRateLimited):
		return []Response{ResponseString{fmt.Sprintf("Slow down: %s", err)}}
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return []Response{ResponseString{fmt.Sprintf("Not enough points: %s", err)}}
	case errors.Is(err, ledger.ErrUnknownMember):
		return []Response{ResponseString{"You are not on the points sheet, ask an officer"}}
	case errors.Is(err, auction.ErrInvalidBidAmount):
		return []Response{ResponseString{fmt.Sprintf("Bid rejected: %s", err)}}
	case errors.Is(err, auction.ErrConfirmationExpired):
		return []Response{ResponseString{"That confirmation is no longer open"}}
	case errors.Is(err, auction.ErrEmptyQueue):
		return []Response{ResponseString{"The queue is empty, add items first"}}
	case errors.Is(err, auction.ErrSessionAlreadyRunning):
		return []Response{ResponseString{"A session is already running"}}
	case errors.Is(err, auction.ErrCooldownActive):
		return []Response{ResponseString{fmt.Sprintf("Too soon after the last session: %s", err)}}
	case errors.Is(err, auction.ErrNoSession):
		return []Response{ResponseString{"No session is running"}}
	default:
		return []Response{ResponseString{fmt.Sprintf("Something went wrong: %s", err)}}
	}
}

// simple wraps an engine call that only returns an error: on failure the
// error is formatted through EngineError, on success the given message is
// sent as-is
func simple(err error, msg string) []Response {
	if err != nil {
		return EngineError(err)
	}
	return []Response{ResponseString{msg}}
}

func HelpMessage(admin bool) []Response {

	embed := discordgo.MessageEmbed{Title: "Commands available", Color: colorBlue}
	add := func(name string, value string) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: false})
	}
	add("`!bid <amount>`", "Bid on the current item, then confirm with the ✅ reaction")
	add("`!mypoints`", "Check your available, locked and spent points")
	add("`!bidstatus`", "Show the current item and time remaining")
	add("`!status`", "Show the session state and queue size")
	add("`!help`", "Print this message")
	if admin {
		add("`!additem <name> <startPrice> <duration> [quantity]`", "Add an item to the queue (duration in minutes)")
		add("`!queuelist`", "List the queued items")
		add("`!removeitem <name>` / `!clearqueue`", "Remove one queued item, or all of them")
		add("`!startauction` / `!startauctionnow`", "Start a session; `now` ignores the cooldown")
		add("`!pause` / `!resume`", "Freeze and unfreeze the current item")
		add("`!stop`", "Close the current item now and move on")
		add("`!extend <minutes>`", "Add time to the current item")
		add("`!cancelitem` / `!skipitem`", "Discard the current item; skip refuses if it has bids")
		add("`!forceend` / `!forcesubmit`", "End the whole session / resubmit the last results")
		add("`!forceunlock` / `!clearpending` / `!forceendauction` / `!forcesync` / `!diagnostics`", "Emergency overrides, each asks for confirmation")
	}
	return []Response{ResponseEmbed{embed}}
}

func MyPoints(member string, balance ledger.Balance) []Response {

	embed := discordgo.MessageEmbed{Title: fmt.Sprintf("Points for %s", member), Color: colorBlue}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Available", Value: fmt.Sprintf("%d", balance.Available()), Inline: true},
		&discordgo.MessageEmbedField{Name: "Locked", Value: fmt.Sprintf("%d", balance.Locked), Inline: true},
		&discordgo.MessageEmbedField{Name: "Spent", Value: fmt.Sprintf("%d", balance.Consumed), Inline: true},
	)
	return []Response{ResponseEmbed{embed}}
}

func StatusMessage(status auction.Status) []Response {

	embed := discordgo.MessageEmbed{Title: "Auction status", Color: colorBlue}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "State", Value: string(status.State), Inline: true},
		&discordgo.MessageEmbedField{Name: "Queued", Value: fmt.Sprintf("%d", status.QueueSize), Inline: true},
		&discordgo.MessageEmbedField{Name: "Sold this session", Value: fmt.Sprintf("%d", status.SoldThisSession), Inline: true},
	)
	if status.Lot != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Current item", Value: lotLine(*status.Lot), Inline: false,
		})
	}
	if status.CooldownRemaining > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Cooldown", Value: status.CooldownRemaining.Round(time.Second).String(), Inline: true,
		})
	}
	return []Response{ResponseEmbed{embed}}
}

func BidStatusMessage(status auction.Status) []Response {

	if status.Lot == nil {
		return []Response{ResponseString{"No item is up for bidding right now"}}
	}
	lot := *status.Lot
	embed := discordgo.MessageEmbed{Title: fmt.Sprintf("Bidding on %s", lot.Name), Color: colorGold}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Current bid", Value: currentBidLine(lot), Inline: true},
		&discordgo.MessageEmbedField{Name: "Time left", Value: remainingLine(lot), Inline: true},
	)
	if lot.Quantity > 1 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Quantity", Value: fmt.Sprintf("%d", lot.Quantity), Inline: true,
		})
	}
	return []Response{ResponseEmbed{embed}}
}

func DiagnosticsMessage(diag auction.Diagnostics) []Response {

	embed := discordgo.MessageEmbed{Title: "Diagnostics", Color: colorOrange}
	add := func(name string, value string) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: true})
	}
	add("State", string(diag.State))
	add("Queue", fmt.Sprintf("%d", diag.QueueSize))
	add("Locks", fmt.Sprintf("%d holding %d points", diag.LockCount, diag.LockedPoints))
	add("Pending confirmations", fmt.Sprintf("%d", diag.PendingConfirmations))
	add("Ledger members", fmt.Sprintf("%d", diag.LedgerMembers))
	add("Tally", fmt.Sprintf("%d entries", diag.TallySize))
	if diag.ActiveLot != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Active item", Value: lotLine(*diag.ActiveLot), Inline: false,
		})
	}
	if diag.CooldownRemaining > 0 {
		add("Cooldown", diag.CooldownRemaining.Round(time.Second).String())
	}
	return []Response{ResponseEmbed{embed}}
}

func QueueList(specs []auction.LotSpec) []Response {

	if len(specs) == 0 {
		return []Response{ResponseString{"The queue is empty"}}
	}
	embed := discordgo.MessageEmbed{Title: fmt.Sprintf("Queue (%d items)", len(specs)), Color: colorBlue}
	lines := []string{}
	for i, spec := range specs {
		line := fmt.Sprintf("%d. **%s**, starts at %d, %d min", i+1, spec.Name, spec.StartPrice, spec.DurationMin)
		if spec.Quantity > 1 {
			line += fmt.Sprintf(", x%d", spec.Quantity)
		}
		lines = append(lines, line)
	}
	embed.Description = strings.Join(lines, "\n")
	return []Response{ResponseEmbed{embed}}
}

func ItemQueued(spec auction.LotSpec, queueSize int) []Response {
	return []Response{ResponseString{fmt.Sprintf("**%s** queued at position %d", spec.Name, queueSize)}}
}

func ItemRemoved(name string, removed bool) []Response {
	if !removed {
		return []Response{ResponseString{fmt.Sprintf("No queued item named `%s`", name)}}
	}
	return []Response{ResponseString{fmt.Sprintf("**%s** removed from the queue", name)}}
}

func QueueCleared(count int) []Response {
	return []Response{ResponseString{fmt.Sprintf("Queue cleared, %d items dropped", count)}}
}

// ---------------------------------------------------------------------------
// Announcements pushed by the engine

func SessionStartedMsg(queued int, stamp string) Response {
	embed := discordgo.MessageEmbed{
		Title:       "Auction session started",
		Description: fmt.Sprintf("%d items on the block. Session %s. Good luck!", queued, stamp),
		Color:       colorGold,
	}
	return ResponseEmbed{embed}
}

func LotPreviewMsg(lot auction.LotView, queueLeft int, previewFor time.Duration) Response {
	embed := discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Up next: %s", lot.Name),
		Description: fmt.Sprintf("Starting price **%d**. Bidding opens in %s.", lot.StartPrice, previewFor.Round(time.Second)),
		Color:       colorBlue,
	}
	if lot.Quantity > 1 {
		embed.Description += fmt.Sprintf(" %d available, top %d bidders win.", lot.Quantity, lot.Quantity)
	}
	if queueLeft > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d more in the queue", queueLeft)}
	}
	return ResponseEmbed{embed}
}

func BiddingOpenMsg(lot auction.LotView) Response {
	embed := discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Bidding open: %s", lot.Name),
		Description: fmt.Sprintf("Starting at **%d**. `!bid <amount>` to bid. Closes in %s.", lot.StartPrice, lot.Remaining.Round(time.Second)),
		Color:       colorGold,
	}
	return ResponseEmbed{embed}
}

func GoingOnceMsg(lot auction.LotView) Response {
	return ResponseString{fmt.Sprintf("⏳ Going once on **%s**! %s", lot.Name, currentBidLine(lot))}
}

func GoingTwiceMsg(lot auction.LotView) Response {
	return ResponseString{fmt.Sprintf("⏳ Going twice on **%s**! %s", lot.Name, currentBidLine(lot))}
}

func FinalCallMsg(lot auction.LotView) Response {
	return ResponseString{fmt.Sprintf("🔔 Final call on **%s**! %s", lot.Name, currentBidLine(lot))}
}

func NewHighBidMsg(lot auction.LotView, bidder string, amount int) Response {
	embed := discordgo.MessageEmbed{
		Description: fmt.Sprintf("**%s** bids **%d** on %s. %s left.", bidder, amount, lot.Name, remainingLine(lot)),
		Color:       colorGold,
	}
	return ResponseEmbed{embed}
}

func OutbidMsg(lot auction.LotView, member string, newAmount int) Response {
	return ResponseString{fmt.Sprintf("%s, you have been outbid on **%s**: the bid is now %d. Your points are free again.", member, lot.Name, newAmount)}
}

func LotSoldMsg(lot auction.LotView, winners []auction.TallyEntry) Response {
	embed := discordgo.MessageEmbed{Title: fmt.Sprintf("Sold: %s", lot.Name), Color: colorGreen}
	lines := []string{}
	for _, entry := range winners {
		lines = append(lines, fmt.Sprintf("**%s** for **%d** points", entry.Winner, entry.Amount))
	}
	embed.Description = strings.Join(lines, "\n")
	return ResponseEmbed{embed}
}

func LotNoBidsMsg(lot auction.LotView) Response {
	embed := discordgo.MessageEmbed{
		Description: fmt.Sprintf("No bids on **%s**, it goes back to the shelf", lot.Name),
		Color:       colorOrange,
	}
	return ResponseEmbed{embed}
}

func LotCancelledMsg(lot auction.LotView, releasedLocks int) Response {
	text := fmt.Sprintf("**%s** cancelled", lot.Name)
	if releasedLocks > 0 {
		text += fmt.Sprintf(", %d locked points returned", releasedLocks)
	}
	return ResponseString{text}
}

func LotSkippedMsg(lot auction.LotView) Response {
	return ResponseString{fmt.Sprintf("**%s** skipped", lot.Name)}
}

func NextLotSoonMsg(next auction.LotView, wait time.Duration) Response {
	return ResponseString{fmt.Sprintf("Next up in %s: **%s**", wait.Round(time.Second), next.Name)}
}

func SessionEndedMsg(tally []auction.TallyEntry, movedToStore int) Response {
	embed := discordgo.MessageEmbed{Title: "Auction session ended", Color: colorGreen}
	if len(tally) == 0 {
		embed.Description = "Nothing sold this time"
	} else {
		lines := []string{}
		total := 0
		for _, entry := range tally {
			lines = append(lines, fmt.Sprintf("**%s** → %s (%d)", entry.Lot, entry.Winner, entry.Amount))
			total += entry.Amount
		}
		lines = append(lines, fmt.Sprintf("\n%d points spent in total", total))
		embed.Description = strings.Join(lines, "\n")
	}
	if movedToStore > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d unsold items returned to the sheet", movedToStore)}
	}
	return ResponseEmbed{embed}
}

func SessionRecoveredMsg(report auction.RecoveryReport) Response {
	embed := discordgo.MessageEmbed{Title: "Recovered from an unclean shutdown", Color: colorOrange}
	lines := []string{}
	for _, entry := range report.Finalized {
		lines = append(lines, fmt.Sprintf("Finalized **%s** for %s at %d", entry.Lot, entry.Winner, entry.Amount))
	}
	if report.Requeued > 0 {
		lines = append(lines, fmt.Sprintf("%d interrupted item put back in the queue", report.Requeued))
	}
	if report.MovedToStore > 0 {
		lines = append(lines, fmt.Sprintf("%d queued items returned to the sheet", report.MovedToStore))
	}
	embed.Description = strings.Join(lines, "\n")
	return ResponseEmbed{embed}
}

// ---------------------------------------------------------------------------
// Confirmation prompts

func BidPrompt(proposal auction.Proposal, lotName string) string {
	text := fmt.Sprintf("%s, confirm your bid of **%d** on **%s** with ✅ or cancel with ❌ (%s)",
		proposal.Member, proposal.Amount, lotName, promptDeadline(proposal.ExpiresAt.Sub(proposal.CreatedAt)))
	if proposal.SelfOverbid {
		text += fmt.Sprintf("\nRaising your own bid: only %d extra points reserved", proposal.Increment)
	}
	return text
}

func ActionPrompt(description string, timeout time.Duration) string {
	return fmt.Sprintf("⚠️ %s. Confirm with ✅ or cancel with ❌ (%s)", description, promptDeadline(timeout))
}

func promptDeadline(timeout time.Duration) string {
	return fmt.Sprintf("%s to decide", timeout.Round(time.Second))
}

func lotLine(lot auction.LotView) string {
	return fmt.Sprintf("**%s**, %s, %s left", lot.Name, currentBidLine(lot), lot.Remaining.Round(time.Second))
}

func currentBidLine(lot auction.LotView) string {
	if !lot.HasBids {
		return fmt.Sprintf("no bids yet, starts at %d", lot.StartPrice)
	}
	return fmt.Sprintf("%d by %s", lot.CurrentBid, lot.CurrentWinner)
}

func remainingLine(lot auction.LotView) string {
	if lot.Remaining <= 0 {
		return "closing"
	}
	return lot.Remaining.Round(time.Second).String()
}
