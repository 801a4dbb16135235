package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config gathers everything the process reads from the environment.
// Timing knobs default to the values the guild has been running with
// and only need overriding in tests or staging.
type Config struct {
	DiscordToken   string
	AuctionChannel string
	AdminRole      string

	StoreURL      string
	StoreMinDelay time.Duration

	HealthPort int

	PreviewTime     time.Duration
	ConfirmTimeout  time.Duration
	BidRateLimit    time.Duration
	ExtensionWindow time.Duration
	ExtensionStep   time.Duration
	MaxExtensions   int
	LotGap          time.Duration
	Cooldown        time.Duration
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, reading the environment directly")
	}

	cfg := Config{
		DiscordToken:   os.Getenv("BIDKEEPER_DISCORD_TOKEN"),
		AuctionChannel: os.Getenv("BIDKEEPER_AUCTION_CHANNEL"),
		AdminRole:      getEnvOrDefault("BIDKEEPER_ADMIN_ROLE", "Auctioneer"),
		StoreURL:       os.Getenv("BIDKEEPER_STORE_URL"),
		StoreMinDelay:  seconds("BIDKEEPER_STORE_MIN_DELAY", 1),

		HealthPort: intOrDefault("BIDKEEPER_HEALTH_PORT", 8080),

		PreviewTime:     seconds("BIDKEEPER_PREVIEW_TIME", 30),
		ConfirmTimeout:  seconds("BIDKEEPER_CONFIRM_TIMEOUT", 10),
		BidRateLimit:    seconds("BIDKEEPER_BID_RATE_LIMIT", 3),
		ExtensionWindow: seconds("BIDKEEPER_EXTENSION_WINDOW", 60),
		ExtensionStep:   seconds("BIDKEEPER_EXTENSION_STEP", 60),
		MaxExtensions:   intOrDefault("BIDKEEPER_MAX_EXTENSIONS", 15),
		LotGap:          seconds("BIDKEEPER_LOT_GAP", 20),
		Cooldown:        seconds("BIDKEEPER_COOLDOWN", 600),
	}

	if cfg.DiscordToken == "" {
		return Config{}, fmt.Errorf("BIDKEEPER_DISCORD_TOKEN is not set")
	}
	if cfg.AuctionChannel == "" {
		return Config{}, fmt.Errorf("BIDKEEPER_AUCTION_CHANNEL is not set")
	}
	if cfg.StoreURL == "" {
		return Config{}, fmt.Errorf("BIDKEEPER_STORE_URL is not set")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Msg(fmt.Sprintf("Ignoring %s=%s: not a number", key, value))
		return defaultValue
	}
	return n
}

func seconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(intOrDefault(key, defaultSeconds)) * time.Second
}
