// Package ratelimit enforces the per-visitor fixed-window message quota.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is how many messages one visitor may send per window.
	DefaultLimit = 100
	// DefaultWindow is the fixed quota window.
	DefaultWindow = time.Hour
)

type bucket struct {
	count       int
	windowStart time.Time
}

// VisitorLimiter tracks fixed-window counters per org/visitor pair. State
// is process local; a restart resets all windows.
type VisitorLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewVisitorLimiter() *VisitorLimiter {
	return &VisitorLimiter{
		buckets: make(map[string]*bucket),
		limit:   DefaultLimit,
		window:  DefaultWindow,
		now:     time.Now,
	}
}

// NewVisitorLimiterWith overrides the limit and window (tests).
func NewVisitorLimiterWith(limit int, window time.Duration, now func() time.Time) *VisitorLimiter {
	l := NewVisitorLimiter()
	if limit > 0 {
		l.limit = limit
	}
	if window > 0 {
		l.window = window
	}
	if now != nil {
		l.now = now
	}
	return l
}

// Consume spends one unit of visitor quota. When the window is exhausted it
// returns false plus the time remaining until a fresh window opens.
func (l *VisitorLimiter) Consume(orgID, visitorID string) (bool, time.Duration) {
	key := orgID + ":" + visitorID
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true, 0
	}

	if b.count >= l.limit {
		retryAfter := l.window - now.Sub(b.windowStart)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	b.count++
	return true, 0
}
