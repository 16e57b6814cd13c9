package realtime

import (
	"sync"
	"time"
)

// RateLimiter caps how many envelopes Send may write per window. It keeps
// the times of the last limit sends in a ring; a send is refused while the
// oldest of them is still inside the window.
type RateLimiter struct {
	mu     sync.Mutex
	sent   []time.Time
	next   int
	limit  int
	window time.Duration
}

// NewRateLimiter falls back to the connection defaults for non-positive
// inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		sent:   make([]time.Time, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records a send at now and reports whether it fits the budget.
// Refused sends are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldest := r.sent[r.next]; !oldest.IsZero() && oldest.After(now.Add(-r.window)) {
		return false
	}
	r.sent[r.next] = now
	r.next = (r.next + 1) % r.limit
	return true
}
