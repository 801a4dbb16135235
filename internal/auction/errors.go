package auction

import "errors"

var (
	ErrInvalidBidAmount      = errors.New("invalid bid amount")
	ErrRateLimited           = errors.New("rate limited")
	ErrNoActiveLot           = errors.New("no active lot")
	ErrEmptyQueue            = errors.New("queue is empty")
	ErrSessionAlreadyRunning = errors.New("session already running")
	ErrNoSession             = errors.New("no session running")
	ErrSessionPaused         = errors.New("session is paused")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrConfirmationExpired   = errors.New("confirmation expired")
)
