package http

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Fixed window per client key. Buckets live in a bounded LRU so a flood of
// distinct clients evicts the coldest ones instead of growing without limit.
// ══════════════════════════════════════════════════════════════════════════════

const defaultMaxClients = 10_000

type bucket struct {
	start time.Time
	count int
}

type rateLimiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration, maxClients int) *rateLimiter {
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, *bucket](maxClients)
	return &rateLimiter{
		buckets: cache,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one request for key and reports whether it fits the window.
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets.Get(key)
	if !ok || now.Sub(b.start) >= rl.window {
		rl.buckets.Add(key, &bucket{start: now, count: 1})
		return true
	}
	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

// RetryAfter returns how long key has to wait for the next window.
func (rl *rateLimiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets.Peek(key)
	if !ok {
		return 0
	}
	wait := rl.window - rl.now().Sub(b.start)
	if wait < 0 {
		return 0
	}
	return wait
}

// Tracked returns the number of clients currently held.
func (rl *rateLimiter) Tracked() int {
	return rl.buckets.Len()
}
