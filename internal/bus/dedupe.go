package bus

import (
	"sync"
	"time"
)

// DedupeCache is a short-window idempotency filter for inbound events.
// Webhook retries and double-taps deliver the same message id more than
// once; IsDuplicate returns true only within the freshness window, so this
// is best-effort at-most-once handling, not a durable guarantee.
type DedupeCache struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int
}

// NewDedupeCache creates a cache with the given freshness window and a hard
// cap on tracked entries (memory bound against id-rotating floods).
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &DedupeCache{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// IsDuplicate records the key and reports whether it was already seen
// within the freshness window.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	if len(d.seen) >= d.maxEntries {
		d.evictLocked(now)
	}
	d.seen[key] = now
	return false
}

// Sweep drops entries older than the freshness window. Called from the
// gateway's periodic tick.
func (d *DedupeCache) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0
	for k, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked entries.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evictLocked prunes stale entries, then hard-evicts arbitrary ones until
// under the cap. Caller holds the lock.
func (d *DedupeCache) evictLocked(now time.Time) {
	for k, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, k)
		}
	}
	for len(d.seen) >= d.maxEntries {
		for k := range d.seen {
			delete(d.seen, k)
			break
		}
	}
}
