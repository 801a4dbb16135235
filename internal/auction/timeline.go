package auction

import (
	"context"
	"sync"
	"time"

	"bidkeeper/internal/common"

	"github.com/google/uuid"
)

// timelineEvent is one schedulable action. A suspended event remembers
// how long it still had to run, so resuming is pure data mutation
// instead of cancelling and recreating platform timers.
type timelineEvent struct {
	id        uuid.UUID
	fireAt    time.Time
	action    func()
	suspended bool
	remaining time.Duration
}

// Timeline is the queue of pending timed actions that drives every lot
// and session transition. Pause, resume and extension all reduce to
// mutating fireAt, which keeps the time math testable with a manual
// clock. The handful of events alive at any moment makes a plain slice
// sufficient.
type Timeline struct {
	mu     sync.Mutex
	clock  common.Clock
	events []*timelineEvent
	wake   chan struct{}
}

func NewTimeline(clock common.Clock) *Timeline {
	return &Timeline{clock: clock, wake: make(chan struct{}, 1)}
}

func (tl *Timeline) notify() {
	select {
	case tl.wake <- struct{}{}:
	default:
	}
}

// Schedule registers an action to run at the given instant and returns
// its handle
func (tl *Timeline) Schedule(at time.Time, action func()) uuid.UUID {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	id := uuid.New()
	tl.events = append(tl.events, &timelineEvent{id: id, fireAt: at, action: action})
	tl.notify()
	return id
}

func (tl *Timeline) Cancel(id uuid.UUID) bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	for i, ev := range tl.events {
		if ev.id == id {
			tl.events = append(tl.events[:i], tl.events[i+1:]...)
			tl.notify()
			return true
		}
	}
	return false
}

// Suspend freezes the given events, remembering the time each one had
// left. Suspending an already suspended event is a no-op.
func (tl *Timeline) Suspend(ids ...uuid.UUID) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := tl.clock.Now()
	for _, ev := range tl.events {
		for _, id := range ids {
			if ev.id == id && !ev.suspended {
				ev.suspended = true
				ev.remaining = ev.fireAt.Sub(now)
				if ev.remaining < 0 {
					ev.remaining = 0
				}
			}
		}
	}
	tl.notify()
}

// Resume unfreezes the given events, rescheduling each one for its
// remembered remaining time from now
func (tl *Timeline) Resume(ids ...uuid.UUID) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	now := tl.clock.Now()
	for _, ev := range tl.events {
		for _, id := range ids {
			if ev.id == id && ev.suspended {
				ev.suspended = false
				ev.fireAt = now.Add(ev.remaining)
			}
		}
	}
	tl.notify()
}

func (tl *Timeline) Len() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.events)
}

// next returns the earliest pending deadline, ignoring suspended events
func (tl *Timeline) next() (time.Time, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	var earliest time.Time
	found := false
	for _, ev := range tl.events {
		if ev.suspended {
			continue
		}
		if !found || ev.fireAt.Before(earliest) {
			earliest = ev.fireAt
			found = true
		}
	}
	return earliest, found
}

// popDue removes and returns the due event with the earliest deadline,
// if any
func (tl *Timeline) popDue(now time.Time) *timelineEvent {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	index := -1
	for i, ev := range tl.events {
		if ev.suspended || ev.fireAt.After(now) {
			continue
		}
		if index == -1 || ev.fireAt.Before(tl.events[index].fireAt) {
			index = i
		}
	}
	if index == -1 {
		return nil
	}
	ev := tl.events[index]
	tl.events = append(tl.events[:index], tl.events[index+1:]...)
	return ev
}

// FireDue runs every event whose deadline has passed, strictly in
// deadline order. Actions run without the timeline lock held, so they
// are free to schedule or cancel further events.
func (tl *Timeline) FireDue() int {
	fired := 0
	for {
		ev := tl.popDue(tl.clock.Now())
		if ev == nil {
			return fired
		}
		ev.action()
		fired++
	}
}

// Run drives the timeline against the real clock until the context is
// cancelled. Tests skip Run entirely and call FireDue after advancing
// a manual clock.
func (tl *Timeline) Run(ctx context.Context) {
	for {
		tl.FireDue()

		var timerC <-chan time.Time
		var timer *time.Timer
		if deadline, ok := tl.next(); ok {
			wait := deadline.Sub(tl.clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-tl.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
