package ersatz

import (
	"context"
	"time"
)

const (
	// DefaultVerifyTimeout is used when a verification timeout is not given.
	DefaultVerifyTimeout = time.Second
	// DefaultPollInterval is the pause between predicate checks while waiting.
	DefaultPollInterval = 250 * time.Millisecond
)

// Waiter polls a predicate until it holds or a timeout elapses.
type Waiter struct {
	Interval time.Duration
}

// DefaultWaiter polls every DefaultPollInterval.
var DefaultWaiter = Waiter{Interval: DefaultPollInterval}

// AwaitTrue waits for pred using DefaultWaiter.
func AwaitTrue(pred func() bool, timeout time.Duration) bool {
	return DefaultWaiter.AwaitTrue(pred, timeout)
}

// AwaitTrue checks pred immediately and then once per interval until it
// returns true or timeout elapses. It never sleeps past the deadline.
func (w Waiter) AwaitTrue(pred func() bool, timeout time.Duration) bool {
	return w.AwaitTrueContext(context.Background(), pred, timeout)
}

// AwaitTrueContext is AwaitTrue bounded additionally by ctx. Cancellation is
// reported as an unsatisfied result, not an error.
func (w Waiter) AwaitTrueContext(ctx context.Context, pred func() bool, timeout time.Duration) bool {
	if pred() {
		return true
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	start := time.Now()
	for {
		remaining := timeout - time.Since(start)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if pred() {
			return true
		}
	}
}
