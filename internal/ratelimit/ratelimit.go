// Package ratelimit throttles socket handshakes per container id and local
// API calls per remote address.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket refills continuously at rate tokens per second up to capacity.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

func NewTokenBucket(rate, capacity int) *TokenBucket {
	return newBucket(rate, capacity, time.Now)
}

func newBucket(rate, capacity int, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		rate:       float64(rate),
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
	tb.lastUsed = now
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}

// Limits configures a Limiter. A zero rate disables that limit.
type Limits struct {
	GlobalHandshakes  int
	PerPeerHandshakes int
	PerIPRequests     int
	Burst             int
}

// Limiter keys handshake buckets by container id and request buckets by
// remote IP.
type Limiter struct {
	limits Limits
	now    func() time.Time
	global *TokenBucket

	mu         sync.Mutex
	handshakes map[string]*TokenBucket
	requests   map[string]*TokenBucket
}

func New(l Limits) *Limiter {
	return newLimiter(l, time.Now)
}

func newLimiter(l Limits, now func() time.Time) *Limiter {
	if l.Burst <= 0 {
		l.Burst = 1
	}
	rl := &Limiter{
		limits:     l,
		now:        now,
		handshakes: make(map[string]*TokenBucket),
		requests:   make(map[string]*TokenBucket),
	}
	if l.GlobalHandshakes > 0 {
		rl.global = newBucket(l.GlobalHandshakes, l.Burst, now)
	}
	return rl
}

func (rl *Limiter) AllowHandshake(peerID string) bool {
	if rl.global != nil && !rl.global.Allow() {
		return false
	}
	if rl.limits.PerPeerHandshakes <= 0 {
		return true
	}
	return rl.bucket(rl.handshakes, peerID, rl.limits.PerPeerHandshakes).Allow()
}

func (rl *Limiter) AllowRequest(remoteIP string) bool {
	if rl.limits.PerIPRequests <= 0 {
		return true
	}
	return rl.bucket(rl.requests, remoteIP, rl.limits.PerIPRequests).Allow()
}

func (rl *Limiter) bucket(m map[string]*TokenBucket, key string, rate int) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := m[key]
	if !ok {
		b = newBucket(rate, rl.limits.Burst, rl.now)
		m[key] = b
	}
	return b
}

// Cleanup drops buckets of peers that are not active and have not been used
// for idle. It returns the number removed.
func (rl *Limiter) Cleanup(active map[string]bool, idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, b := range rl.handshakes {
		if !active[key] && b.idleSince().Before(cutoff) {
			delete(rl.handshakes, key)
			n++
		}
	}
	for key, b := range rl.requests {
		if b.idleSince().Before(cutoff) {
			delete(rl.requests, key)
			n++
		}
	}
	return n
}
