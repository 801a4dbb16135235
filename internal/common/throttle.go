package common

import (
	"sync"
	"time"
)

// Throttle enforces a minimum delay between consecutive operations.
// The external store tolerates only so many calls per second, so every
// request asks the throttle for permission and waits if necessary.
type Throttle struct {
	mu       sync.Mutex
	minDelay time.Duration
	last     time.Time
}

func NewThrottle(minDelay time.Duration) *Throttle {
	return &Throttle{minDelay: minDelay}
}

// Wait blocks until the minimum delay since the previous call has
// elapsed, then records the current time as the new reference point
func (t *Throttle) Wait() {
	t.mu.Lock()
	wait := t.minDelay - time.Since(t.last)
	if wait > 0 {
		// Reserve the slot before sleeping so concurrent callers
		// queue up behind each other instead of stampeding
		t.last = t.last.Add(t.minDelay)
		t.mu.Unlock()
		time.Sleep(wait)
		return
	}
	t.last = time.Now()
	t.mu.Unlock()
}
