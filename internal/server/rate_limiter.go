package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window per-key counter. Windows are tracked in
// memory only; restarting the process resets them, which is acceptable
// for webhook abuse protection.
type rateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	items  map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		items:  make(map[string]*rateLimitEntry),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.items[key]
	if entry == nil || now.Sub(entry.windowStart) > r.window {
		entry = &rateLimitEntry{windowStart: now}
		r.items[key] = entry
		r.evictExpired(now)
	}

	if entry.count >= r.limit {
		return false
	}

	entry.count++
	return true
}

// evictExpired drops windows that already elapsed so the map does not
// grow with one entry per client forever. Called under the lock.
func (r *rateLimiter) evictExpired(now time.Time) {
	for key, entry := range r.items {
		if now.Sub(entry.windowStart) > 2*r.window {
			delete(r.items, key)
		}
	}
}
