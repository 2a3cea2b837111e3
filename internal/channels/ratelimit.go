package channels

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of tracked senders to prevent memory
// exhaustion from rotating sender ids.
const maxTrackedKeys = 4096

type floodEntry struct {
	windowStart time.Time
	count       int
}

// FloodGuard counts messages per sender in a fixed window and rejects senders
// that exceed the limit. Safe for concurrent use.
type FloodGuard struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*floodEntry
	now     func() time.Time
}

// NewFloodGuard allows up to limit messages per key within window.
func NewFloodGuard(limit int, window time.Duration) *FloodGuard {
	return &FloodGuard{
		limit:   limit,
		window:  window,
		entries: make(map[string]*floodEntry),
		now:     time.Now,
	}
}

// Allow returns true if the key is within limits.
// Stale entries are pruned when the tracked key count reaches the cap.
func (r *FloodGuard) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= r.window {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &floodEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= r.limit
}
