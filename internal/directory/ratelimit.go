package directory

import (
	"sync"
	"time"
)

// windowLimiter enforces a fixed-window request budget: at most limit
// requests per window, counted from the first request of the window. The
// directory API publishes a per-minute quota rather than a refill rate, so
// a fixed window models it more honestly than a token bucket would.
type windowLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time

	// now is swappable for tests
	now func() time.Time
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{limit: limit, window: window, now: time.Now}
}

// reserve records one request. It returns zero when the request can go out
// immediately, or the duration to wait until the current window expires.
func (l *windowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
	if l.count < l.limit {
		l.count++
		return 0
	}
	return l.windowStart.Add(l.window).Sub(now)
}

// remaining reports how many requests are left in the current window.
func (l *windowLimiter) remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || l.now().Sub(l.windowStart) >= l.window {
		return l.limit
	}
	return l.limit - l.count
}
