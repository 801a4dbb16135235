package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bidkeeper/internal/auction"
	"bidkeeper/internal/bot"
	"bidkeeper/internal/common"
	"bidkeeper/internal/config"
	"bidkeeper/internal/health"
	"bidkeeper/internal/ledger"
	"bidkeeper/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if os.Getenv("BIDKEEPER_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Msg(fmt.Sprintf("Could not load configuration: %s", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire the pieces together
	storeClient := store.NewClient(cfg.StoreURL, cfg.StoreMinDelay)
	engineConfig := auction.Config{
		PreviewTime:     cfg.PreviewTime,
		ConfirmTimeout:  cfg.ConfirmTimeout,
		BidRateLimit:    cfg.BidRateLimit,
		ExtensionWindow: cfg.ExtensionWindow,
		ExtensionStep:   cfg.ExtensionStep,
		MaxExtensions:   cfg.MaxExtensions,
		LotGap:          cfg.LotGap,
		Cooldown:        cfg.Cooldown,
	}
	ledger := ledger.NewLedger()
	chatbot := bot.NewBot(cfg.DiscordToken, cfg.AuctionChannel, cfg.AdminRole, cfg.ConfirmTimeout, nil)
	engine := auction.NewEngine(engineConfig, common.NewSystemClock(), ledger, storeClient, chatbot)
	chatbot.SetEngine(engine)
	engine.Run(ctx)

	// Reconcile whatever a previous process left behind before taking
	// any new commands
	if _, err := engine.Recover(); err != nil {
		log.Fatal().Msg(fmt.Sprintf("Recovery failed: %s", err))
	}

	go func() {
		if err := health.NewServer(engine, cfg.HealthPort).Run(ctx); err != nil {
			log.Error().Msg(fmt.Sprintf("Health server failed: %s", err))
		}
	}()

	if err := chatbot.Run(ctx); err != nil {
		log.Fatal().Msg(fmt.Sprintf("Bot failed: %s", err))
	}
}
