package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bidkeeper/internal/auction"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const emojiConfirm = "✅"
const emojiCancel = "❌"

// prompt is an open yes/no question attached to one message. Only the
// member it belongs to can answer it, by reacting on that message.
type prompt struct {
	userID  string
	confirm func() []Response
	cancel  func() []Response
}

type Bot struct {
	token          string
	channelID      string
	adminRole      string
	confirmTimeout time.Duration
	engine         *auction.Engine

	discord *discordgo.Session
	sendCh  chan Response

	mu      sync.Mutex
	prompts map[string]*prompt
}

func NewBot(token string, channelID string, adminRole string, confirmTimeout time.Duration, engine *auction.Engine) *Bot {
	return &Bot{
		token:          token,
		channelID:      channelID,
		adminRole:      adminRole,
		confirmTimeout: confirmTimeout,
		engine:         engine,
		sendCh:         make(chan Response, 64),
		prompts:        map[string]*prompt{},
	}
}

// SetEngine breaks the construction cycle: the engine wants the bot as
// its notifier, the bot wants the engine for its commands. Must be
// called before Run.
func (bot *Bot) SetEngine(engine *auction.Engine) {
	bot.engine = engine
}

// Run opens the discord session and blocks until the context is done
func (bot *Bot) Run(ctx context.Context) error {

	discord, err := discordgo.New("Bot " + bot.token)
	if err != nil {
		return fmt.Errorf("could not create discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	discord.AddHandler(bot.Receive)
	discord.AddHandler(bot.ReceiveReaction)

	if err := discord.Open(); err != nil {
		return fmt.Errorf("could not open discord session: %w", err)
	}
	defer discord.Close()
	bot.discord = discord

	// Announcements from the engine go out through one goroutine so
	// they keep their order
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case response := <-bot.sendCh:
				response.Send(bot.channelID, discord)
			}
		}
	}()

	log.Info().Msg("Bot is running")
	<-ctx.Done()
	return nil
}

func (bot *Bot) Receive(discord *discordgo.Session, message *discordgo.MessageCreate) {

	// Reject my own messages
	if message.Author.ID == discord.State.User.ID {
		return
	}
	// Ignore messages from private channels
	if message.GuildID == "" {
		bot.sendResponses(discord, message.ChannelID, []Response{ResponseString{"I only take commands in the guild server"}})
		return
	}

	parseResult := Parse(message.Content)
	if parseResult.parseid == PARSEID_NO_BOT_PREFIX {
		return
	}
	if parseResult.parseid != PARSEID_OK {
		log.Debug().Msg(fmt.Sprintf("Wrong input: '%s'. Reason: %s", message.Content, parseResult.errorMessage))
		bot.sendResponses(discord, message.ChannelID, InputNotValid(parseResult.errorMessage))
		return
	}

	log.Info().Msg(fmt.Sprintf("Command understood: %s", message.Content))
	if adminOnly[parseResult.command] && !bot.isAdmin(discord, message) {
		bot.sendResponses(discord, message.ChannelID, NotAllowed())
		return
	}

	var responses []Response
	switch parseResult.command {
	case COMMAND_BID:
		switch amount := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of bid amount %T", amount))
		case int:
			responses = bot.bid(discord, message, amount)
		}
	case COMMAND_MYPOINTS:
		responses = bot.myPoints(displayName(message))
	case COMMAND_BIDSTATUS:
		responses = BidStatusMessage(bot.engine.Status())
	case COMMAND_STATUS:
		responses = StatusMessage(bot.engine.Status())
	case COMMAND_HELP:
		responses = HelpMessage(bot.isAdmin(discord, message))
	case COMMAND_ADDITEM:
		switch spec := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of item spec %T", spec))
		case auction.LotSpec:
			responses = bot.addItem(spec)
		}
	case COMMAND_QUEUELIST:
		responses = QueueList(bot.engine.QueueItems())
	case COMMAND_REMOVEITEM:
		switch name := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of item name %T", name))
		case string:
			responses = bot.removeItem(name)
		}
	case COMMAND_CLEARQUEUE:
		responses = bot.promptAction(discord, message, "This drops every queued item", func() []Response {
			count, err := bot.engine.ClearQueue()
			if err != nil {
				return EngineError(err)
			}
			return QueueCleared(count)
		})
	case COMMAND_STARTAUCTION:
		responses = bot.startSession(false)
	case COMMAND_STARTAUCTIONNOW:
		responses = bot.startSession(true)
	case COMMAND_PAUSE:
		responses = simple(bot.engine.Pause(), "Session paused, the countdown is frozen")
	case COMMAND_RESUME:
		responses = simple(bot.engine.Resume(), "Session resumed")
	case COMMAND_STOP:
		responses = simple(bot.engine.StopLot(), "Closing the current item now")
	case COMMAND_EXTEND:
		switch minutes := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of extension %T", minutes))
		case int:
			responses = simple(bot.engine.Extend(minutes), fmt.Sprintf("Added %d minute(s) to the current item", minutes))
		}
	case COMMAND_CANCELITEM:
		responses = bot.promptAction(discord, message, "This discards the current item and all bids on it", func() []Response {
			return simple(bot.engine.CancelLot(), "Item cancelled")
		})
	case COMMAND_SKIPITEM:
		responses = simple(bot.engine.SkipLot(), "Item skipped")
	case COMMAND_FORCEEND:
		responses = bot.promptAction(discord, message, "This ends the whole session", func() []Response {
			return simple(bot.engine.EndSession(), "Session ended")
		})
	case COMMAND_FORCESUBMIT:
		responses = bot.forceSubmit()
	case COMMAND_FORCEUNLOCK:
		responses = bot.promptAction(discord, message, "This zeroes every point lock in the ledger", func() []Response {
			cleared := bot.engine.ForceUnlockAll()
			return []Response{ResponseString{fmt.Sprintf("Force unlock done, %d points freed", cleared)}}
		})
	case COMMAND_CLEARPENDING:
		responses = bot.promptAction(discord, message, "This drops every pending bid confirmation", func() []Response {
			count := bot.engine.ForceClearPending()
			return []Response{ResponseString{fmt.Sprintf("%d pending confirmations dropped", count)}}
		})
	case COMMAND_FORCEENDAUCTION:
		responses = bot.promptAction(discord, message, "This force-ends whatever is running, cooldown included", func() []Response {
			outcome, err := bot.engine.ForceEndAuction()
			if err != nil {
				return EngineError(err)
			}
			return []Response{ResponseString{outcome}}
		})
	case COMMAND_FORCESYNC:
		responses = simple(bot.engine.ForceSync(), "State written to the sheet")
	case COMMAND_DIAGNOSTICS:
		responses = DiagnosticsMessage(bot.engine.Diagnostics())
	default:
		panic(fmt.Sprintf("command %d is not one of the possible ones", parseResult.command))
	}
	bot.sendResponses(discord, message.ChannelID, responses)
}

// ReceiveReaction resolves open prompts. Reactions from anyone but the
// prompted member are ignored.
func (bot *Bot) ReceiveReaction(discord *discordgo.Session, reaction *discordgo.MessageReactionAdd) {

	if reaction.UserID == discord.State.User.ID {
		return
	}
	emoji := reaction.Emoji.Name
	if emoji != emojiConfirm && emoji != emojiCancel {
		return
	}

	bot.mu.Lock()
	p, ok := bot.prompts[reaction.MessageID]
	if !ok || p.userID != reaction.UserID {
		bot.mu.Unlock()
		return
	}
	delete(bot.prompts, reaction.MessageID)
	bot.mu.Unlock()

	var responses []Response
	if emoji == emojiConfirm {
		responses = p.confirm()
	} else {
		responses = p.cancel()
	}
	bot.sendResponses(discord, reaction.ChannelID, responses)
}

// ---------------------------------------------------------------------------
// Command handlers

func (bot *Bot) bid(discord *discordgo.Session, message *discordgo.MessageCreate, amount int) []Response {

	member := displayName(message)
	proposal, err := bot.engine.ProposeBid(member, amount)
	if err != nil {
		return EngineError(err)
	}

	lotName := ""
	if status := bot.engine.Status(); status.Lot != nil {
		lotName = status.Lot.Name
	}
	id := proposal.ID
	bot.sendPrompt(discord, message.ChannelID, message.Author.ID, BidPrompt(proposal, lotName),
		func() []Response {
			if err := bot.engine.ConfirmBid(id); err != nil {
				return EngineError(err)
			}
			return nil
		},
		func() []Response {
			if err := bot.engine.CancelBid(id); err != nil {
				return EngineError(err)
			}
			return []Response{ResponseString{fmt.Sprintf("%s, your bid is cancelled and your points are free", member)}}
		})
	return nil
}

func (bot *Bot) myPoints(member string) []Response {
	balance, err := bot.engine.Ledger().Balance(member)
	if err != nil {
		return EngineError(err)
	}
	return MyPoints(member, balance)
}

func (bot *Bot) addItem(spec auction.LotSpec) []Response {
	queued, err := bot.engine.EnqueueLot(spec.Name, spec.StartPrice, time.Duration(spec.DurationMin)*time.Minute, spec.Quantity)
	if err != nil {
		return EngineError(err)
	}
	return ItemQueued(queued, len(bot.engine.QueueItems()))
}

func (bot *Bot) removeItem(name string) []Response {
	if _, err := bot.engine.RemoveQueued(name); err != nil {
		if errors.Is(err, auction.ErrSessionAlreadyRunning) {
			return EngineError(err)
		}
		return ItemRemoved(name, false)
	}
	return ItemRemoved(name, true)
}

func (bot *Bot) startSession(overrideCooldown bool) []Response {
	if err := bot.engine.StartSession(overrideCooldown); err != nil {
		return EngineError(err)
	}
	// The engine announces the start in the auction channel
	return nil
}

func (bot *Bot) forceSubmit() []Response {
	count, err := bot.engine.SubmitResults()
	if err != nil {
		return EngineError(err)
	}
	return []Response{ResponseString{fmt.Sprintf("Resubmitted %d results to the sheet", count)}}
}

// ---------------------------------------------------------------------------
// Prompt plumbing

// promptAction guards a destructive admin command behind a reaction
// prompt with the same timeout bids get
func (bot *Bot) promptAction(discord *discordgo.Session, message *discordgo.MessageCreate, description string, action func() []Response) []Response {
	bot.sendPrompt(discord, message.ChannelID, message.Author.ID, ActionPrompt(description, bot.confirmTimeout),
		action,
		func() []Response {
			return []Response{ResponseString{"Nothing done"}}
		})
	return nil
}

func (bot *Bot) sendPrompt(discord *discordgo.Session, channelID string, userID string, text string, confirm func() []Response, cancel func() []Response) {

	sent, err := discord.ChannelMessageSend(channelID, text)
	if err != nil {
		log.Error().Msg(fmt.Sprintf("Could not send prompt: %s", err))
		return
	}
	for _, emoji := range []string{emojiConfirm, emojiCancel} {
		if err := discord.MessageReactionAdd(channelID, sent.ID, emoji); err != nil {
			log.Debug().Msg(fmt.Sprintf("Could not add reaction %s: %s", emoji, err))
		}
	}

	bot.mu.Lock()
	bot.prompts[sent.ID] = &prompt{userID: userID, confirm: confirm, cancel: cancel}
	bot.mu.Unlock()

	// No reaction within the window counts as a decline. For bids the
	// engine releases the reservation on its own; here we only forget
	// the prompt so a late reaction cannot resolve it anymore.
	time.AfterFunc(bot.confirmTimeout+time.Second, func() {
		bot.mu.Lock()
		defer bot.mu.Unlock()
		delete(bot.prompts, sent.ID)
	})
}

func (bot *Bot) sendResponses(discord *discordgo.Session, channelID string, responses []Response) {
	for _, response := range responses {
		response.Send(channelID, discord)
	}
}

// ---------------------------------------------------------------------------
// Helpers

var adminOnly = map[int]bool{
	COMMAND_ADDITEM:         true,
	COMMAND_QUEUELIST:       true,
	COMMAND_REMOVEITEM:      true,
	COMMAND_CLEARQUEUE:      true,
	COMMAND_STARTAUCTION:    true,
	COMMAND_STARTAUCTIONNOW: true,
	COMMAND_PAUSE:           true,
	COMMAND_RESUME:          true,
	COMMAND_STOP:            true,
	COMMAND_EXTEND:          true,
	COMMAND_CANCELITEM:      true,
	COMMAND_SKIPITEM:        true,
	COMMAND_FORCEEND:        true,
	COMMAND_FORCESUBMIT:     true,
	COMMAND_FORCEUNLOCK:     true,
	COMMAND_CLEARPENDING:    true,
	COMMAND_FORCEENDAUCTION: true,
	COMMAND_FORCESYNC:       true,
	COMMAND_DIAGNOSTICS:     true,
}

func (bot *Bot) isAdmin(discord *discordgo.Session, message *discordgo.MessageCreate) bool {
	if message.Member == nil {
		return false
	}
	for _, roleID := range message.Member.Roles {
		role, err := discord.State.Role(message.GuildID, roleID)
		if err != nil {
			continue
		}
		if role.Name == bot.adminRole || roleID == bot.adminRole {
			return true
		}
	}
	return false
}

// displayName prefers the server nickname, which is also the name the
// points sheet uses
func displayName(message *discordgo.MessageCreate) string {
	if message.Member != nil && message.Member.Nick != "" {
		return message.Member.Nick
	}
	return message.Author.Username
}
