package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen keys so redelivered messages are processed once.
// Entries expire after ttl; when maxSize is reached the oldest entry is evicted.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	seen    map[string]time.Time
	order   []string
	now     func() time.Time
}

// NewDedupeCache creates a cache with the given TTL and size cap.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &DedupeCache{
		ttl:     ttl,
		maxSize: maxSize,
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL, recording it if not.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	d.evictExpired(now)
	for len(d.seen) >= d.maxSize && len(d.order) > 0 {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}

	if _, ok := d.seen[key]; !ok {
		d.order = append(d.order, key)
	}
	d.seen[key] = now
	return false
}

// Len returns the number of tracked keys.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictExpired drops expired keys from the front of the insertion order.
func (d *DedupeCache) evictExpired(now time.Time) {
	i := 0
	for ; i < len(d.order); i++ {
		at, ok := d.seen[d.order[i]]
		if ok && now.Sub(at) < d.ttl {
			break
		}
		delete(d.seen, d.order[i])
	}
	d.order = d.order[i:]
}
