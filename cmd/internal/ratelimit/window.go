// Package ratelimit provides sliding-window limiters: a single-stream Window
// and a per-key Keyed limiter for per-IP throttling.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window limiter for one stream of events.
type Window struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewWindow constructs a Window. Non-positive inputs fall back to 60 events / minute.
func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" should be permitted.
func (r *Window) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trim(now)
	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}

// idle reports whether the window holds no events after trimming.
func (r *Window) idle(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trim(now)
	return len(r.events) == 0
}

func (r *Window) trim(now time.Time) {
	cut := now.Add(-r.window)
	dst := r.events[:0]
	for _, t := range r.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	r.events = dst
}
