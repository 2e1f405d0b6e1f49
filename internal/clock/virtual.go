package clock

import (
	"sync"
	"time"
)

// VirtualClock only moves when told to. Waiters registered through After
// fire during Advance or Set once their deadline is reached.
type VirtualClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.current.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward. Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.drainWaiters()
}

// Set jumps to t. Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.current) {
		panic("clock: cannot set time to the past")
	}
	c.current = t
	c.drainWaiters()
}

// Waiters returns the number of pending After channels.
func (c *VirtualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// drainWaiters must be called with c.mu held.
func (c *VirtualClock) drainWaiters() {
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.current) {
			w.ch <- c.current
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}
