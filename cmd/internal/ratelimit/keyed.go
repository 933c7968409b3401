package ratelimit

import (
	"sync"
	"time"
)

// Keyed keeps one Window per key (typically a client IP).
// Idle windows are swept so memory stays bounded by active keys.
type Keyed struct {
	mu      sync.Mutex
	windows map[string]*Window
	limit   int
	window  time.Duration

	lastSweep time.Time
}

// NewKeyed constructs a per-key limiter.
func NewKeyed(limit int, window time.Duration) *Keyed {
	w := NewWindow(limit, window)
	return &Keyed{
		windows: make(map[string]*Window),
		limit:   w.limit,
		window:  w.window,
	}
}

// Allow reports whether an event for key at time "now" should be permitted.
func (k *Keyed) Allow(key string, now time.Time) bool {
	k.mu.Lock()
	if now.Sub(k.lastSweep) >= k.window {
		k.sweepLocked(now)
	}
	w := k.windows[key]
	if w == nil {
		w = NewWindow(k.limit, k.window)
		k.windows[key] = w
	}
	k.mu.Unlock()

	return w.Allow(now)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.windows)
}

func (k *Keyed) sweepLocked(now time.Time) {
	for key, w := range k.windows {
		if w.idle(now) {
			delete(k.windows, key)
		}
	}
	k.lastSweep = now
}
