// Package ratelimit implements a per-client-IP token bucket used to gate
// new connections before the proxy spends a goroutine and a recv() on
// them. This supplements the base specification (which has no notion of
// rate limiting) and is disabled unless explicitly configured.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket allows burst traffic up to capacity while sustaining
// refillRate tokens/sec thereafter.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// TryConsume attempts to take n tokens, refilling first based on elapsed
// time. Returns false if insufficient tokens are available.
func (b *TokenBucket) TryConsume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

func (b *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	secs := int(elapsed / time.Second)
	add := secs * b.refillRate
	if add > 0 {
		b.tokens += add
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		// Advance by whole seconds only, so the fractional remainder
		// counts towards the next refill instead of being dropped.
		b.lastRefill = b.lastRefill.Add(time.Duration(secs) * time.Second)
	}
}

// Limiter buckets connections by client IP. A Limiter with capacity <= 0
// admits everything (used when rate limiting is configured off).
type Limiter struct {
	mu         sync.RWMutex
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate int
}

// New constructs a limiter. Passing capacity <= 0 yields a limiter whose
// Allow always returns true, so callers don't need a separate enabled
// check at every call site.
func New(capacity, refillRate int) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Allow reports whether the connection from clientIP may proceed,
// consuming one token from its bucket if so.
func (l *Limiter) Allow(clientIP string) bool {
	if l.capacity <= 0 {
		return true
	}
	return l.bucket(clientIP).TryConsume(1)
}

func (l *Limiter) bucket(clientIP string) *TokenBucket {
	l.mu.RLock()
	b, ok := l.buckets[clientIP]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[clientIP]; ok {
		return b
	}
	b = newTokenBucket(l.capacity, l.refillRate)
	l.buckets[clientIP] = b
	return b
}
