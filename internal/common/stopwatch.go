package common

import (
	"time"
)

// This stopwatch keeps track of time. You can set a timeout for it,
// make it start counting time, and ask it if the timeout has been reached
type Stopwatch struct {
	Timeout   time.Duration
	startTime time.Time
	Running   bool
}

func NewStopwatch(timeout time.Duration) Stopwatch {
	return Stopwatch{Timeout: timeout}
}

func (s *Stopwatch) Start() {
	s.Running = true
	s.startTime = time.Now()
}

func (s *Stopwatch) Stop() {
	s.Running = false
}

// Stopped reports whether the timeout has been reached, together with
// the time elapsed since it was reached. A stopwatch that was never
// started counts as stopped.
func (s *Stopwatch) Stopped() (bool, time.Duration) {
	if !s.Running {
		return true, 0
	}
	elapsed := time.Since(s.startTime.Add(s.Timeout))
	return elapsed >= 0, elapsed
}
