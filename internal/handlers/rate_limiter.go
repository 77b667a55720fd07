package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter gates order placement per caller. Allow reports whether the
// caller identified by key may proceed.
type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts requests per key inside a rolling fixed window.
// Buckets reset lazily when their window elapses.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]windowBucket),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.resetAt) {
		l.buckets[key] = windowBucket{count: 1, resetAt: now.Add(l.window)}
		l.dropExpiredLocked(now)
		return true
	}

	if bucket.count >= l.limit {
		return false
	}
	bucket.count++
	l.buckets[key] = bucket
	return true
}

// dropExpiredLocked keeps the bucket map from growing with one-off callers.
func (l *fixedWindowLimiter) dropExpiredLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.After(bucket.resetAt) {
			delete(l.buckets, key)
		}
	}
}
