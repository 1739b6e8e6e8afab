package exchange

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig mirrors the OKX public REST limits: 20 requests per 2s
// window (we budget 18 to keep headroom) plus a minimum spacing between
// requests so the refresh loop cannot burst.
type RateLimiterConfig struct {
	WindowRequests int
	Window         time.Duration
	MinSpacing     time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		WindowRequests: 18,
		Window:         2 * time.Second,
		MinSpacing:     300 * time.Millisecond,
	}
}

// RateLimiter tracks the request budget over a sliding window. It is shared
// by every REST caller; the internal counters are the single serialization
// point for the whole budget.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastRequest time.Time

	timeNow func() time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, timeNow: time.Now}
}

// Reserve books one request and returns how long the caller must wait before
// issuing it. The returned delay is the larger of the window-budget wait and
// the minimum spacing wait.
func (l *RateLimiter) Reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
		l.windowStart = now
		l.count = 0
	}

	var wait time.Duration
	if l.count >= l.cfg.WindowRequests {
		wait = l.windowStart.Add(l.cfg.Window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		l.windowStart = now.Add(wait)
		l.count = 0
	}

	if !l.lastRequest.IsZero() {
		if spacing := l.lastRequest.Add(l.cfg.MinSpacing).Sub(now); spacing > wait {
			wait = spacing
		}
	}

	l.count++
	l.lastRequest = now.Add(wait)
	return wait
}

// Wait reserves a slot and sleeps out the delay, honouring ctx cancellation.
func (l *RateLimiter) Wait(ctx context.Context) error {
	d := l.Reserve()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
