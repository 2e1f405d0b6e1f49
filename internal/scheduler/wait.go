package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/RecM/recm/internal/clock"
)

// ErrTimeout is returned by WaitUntil when the condition never held.
var ErrTimeout = errors.New("timed out waiting for condition")

// WaitUntil polls cond every interval on clk until it holds, timeout elapses
// or ctx is done. cond is checked once more after the timeout is reached.
func WaitUntil(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, cond func() bool) error {
	start := clk.Now()
	for {
		if cond() {
			return nil
		}
		if clk.Since(start) >= timeout {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}
	}
}
