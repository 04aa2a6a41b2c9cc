package risk

import (
	"sync"
	"time"
)

// window is how far back admitted timestamps remain valid for rate-limit
// purposes: 60 seconds, sliding, not fixed.
const window = 60 * time.Second

// RateLimiter is a per-symbol sliding-window token bucket: admission
// timestamps are recorded and pruned at query time against an injected
// Clock, rather than ticked on a fixed schedule — no global mutable state,
// one arena per symbol owned by the risk engine.
type RateLimiter struct {
	cap   int
	clock Clock

	mu   sync.Mutex
	hist map[string][]time.Time
}

// NewRateLimiter returns a limiter admitting up to cap intents per symbol
// in any trailing 60-second window, using clock as its time source.
func NewRateLimiter(cap int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &RateLimiter{cap: cap, clock: clock, hist: make(map[string][]time.Time)}
}

// Allow prunes stale timestamps for symbol, then admits and records the
// current call if under capacity. A call denied here leaves the window
// untouched; a call admitted here consumes a slot regardless of what a
// later risk step decides about the same intent.
func (r *RateLimiter) Allow(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-window)

	hist := r.hist[symbol]
	kept := hist[:0]
	for _, ts := range hist {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= r.cap {
		r.hist[symbol] = kept
		return false
	}

	r.hist[symbol] = append(kept, now)
	return true
}
