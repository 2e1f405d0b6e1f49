// Package clock abstracts the game timer so capture offsets, playback
// progress, cooldowns and load timeouts can run on virtual time in tests.
package clock

import "time"

// Clock is the time source for everything that reads the game timer.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// After fires once d has elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
