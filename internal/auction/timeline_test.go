package auction

import (
	"testing"
	"time"

	"bidkeeper/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireDueRunsInDeadlineOrder(t *testing.T) {
	clock := common.NewManualClock(time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC))
	timeline := NewTimeline(clock)

	fired := []string{}
	timeline.Schedule(clock.Now().Add(30*time.Second), func() { fired = append(fired, "b") })
	timeline.Schedule(clock.Now().Add(10*time.Second), func() { fired = append(fired, "a") })
	timeline.Schedule(clock.Now().Add(60*time.Second), func() { fired = append(fired, "c") })

	assert.Equal(t, 0, timeline.FireDue())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, timeline.FireDue())
	assert.Equal(t, []string{"a", "b"}, fired)

	clock.Advance(30 * time.Second)
	timeline.FireDue()
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, timeline.Len())
}

func TestCancelledEventNeverFires(t *testing.T) {
	clock := common.NewManualClock(time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC))
	timeline := NewTimeline(clock)

	fired := false
	id := timeline.Schedule(clock.Now().Add(time.Second), func() { fired = true })
	require.True(t, timeline.Cancel(id))
	require.False(t, timeline.Cancel(id))

	clock.Advance(time.Minute)
	timeline.FireDue()
	assert.False(t, fired)
}

func TestSuspendedEventKeepsItsRemainingTime(t *testing.T) {
	clock := common.NewManualClock(time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC))
	timeline := NewTimeline(clock)

	fired := false
	id := timeline.Schedule(clock.Now().Add(time.Minute), func() { fired = true })

	// 40 seconds in, 20 to go
	clock.Advance(40 * time.Second)
	timeline.Suspend(id)

	// Suspended events sit out any amount of time
	clock.Advance(time.Hour)
	timeline.FireDue()
	assert.False(t, fired)

	timeline.Resume(id)
	clock.Advance(19 * time.Second)
	timeline.FireDue()
	assert.False(t, fired)

	clock.Advance(time.Second)
	timeline.FireDue()
	assert.True(t, fired)
}

func TestActionsMayScheduleMoreEvents(t *testing.T) {
	clock := common.NewManualClock(time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC))
	timeline := NewTimeline(clock)

	chained := false
	timeline.Schedule(clock.Now().Add(time.Second), func() {
		timeline.Schedule(clock.Now(), func() { chained = true })
	})

	clock.Advance(time.Second)
	timeline.FireDue()
	assert.True(t, chained)
}
