// Package ratelimit keeps per-key token buckets in process memory.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy allows Capacity requests per Window, refilling continuously.
type Policy struct {
	Name     string
	Capacity int
	Window   time.Duration
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu      sync.Mutex
	policy  Policy
	limit   rate.Limit
	buckets map[string]*bucket
	now     func() time.Time
}

func New(policy Policy) *Limiter {
	if policy.Capacity <= 0 {
		policy.Capacity = 100
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}

	return &Limiter{
		policy:  policy,
		limit:   rate.Limit(float64(policy.Capacity) / policy.Window.Seconds()),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// TryConsume takes one token from the bucket for key, creating a full bucket
// on first use.
func (l *Limiter) TryConsume(key string) bool {
	allowed, _ := l.consume(key)
	return allowed
}

// Consume behaves like TryConsume and also reports how long until a token is
// available when the request is rejected.
func (l *Limiter) Consume(key string) (bool, time.Duration) {
	return l.consume(key)
}

func (l *Limiter) consume(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.policy.Capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if b.tokens.AllowN(now, 1) {
		return true, 0
	}

	missing := 1 - b.tokens.TokensAt(now)
	wait := time.Duration(math.Ceil(missing / float64(l.limit) * float64(time.Second)))
	if wait < time.Second {
		wait = time.Second
	}
	return false, wait
}

// Sweep drops buckets untouched for longer than idle and returns how many
// were removed. Idle is clamped to the policy window so a dropped bucket was
// already full.
func (l *Limiter) Sweep(idle time.Duration) int {
	if idle < l.policy.Window {
		idle = l.policy.Window
	}
	threshold := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RunSweeper sweeps every interval until ctx is done.
func RunSweeper(ctx context.Context, interval, idle time.Duration, onSweep func(removed int), limiters ...*Limiter) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, l := range limiters {
				removed += l.Sweep(idle)
			}
			if onSweep != nil && removed > 0 {
				onSweep(removed)
			}
		}
	}
}
