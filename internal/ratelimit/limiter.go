package ratelimit

import (
	"sync"
	"time"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
)

// bucket tracks request volume for one (client, route) pair within the
// current fixed window.
type bucket struct {
	count         int
	windowResetAt time.Time
}

// Limiter is a best-effort, in-process fixed-window rate limiter. It is
// deliberately local: a horizontally scaled deployment needs a shared
// backing store instead, which this service model does not require.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	window    time.Duration
	max       int
	routes    map[string]bool // allow-list of "METHOD:path" keys to throttle
	lastSweep time.Time
	nowFunc   func() time.Time
}

// New returns a limiter allowing max requests per window for each listed
// route. Routes not on the list are unthrottled.
func New(window time.Duration, max int, routeKeys []string) *Limiter {
	routes := make(map[string]bool, len(routeKeys))
	for _, r := range routeKeys {
		routes[r] = true
	}
	return &Limiter{
		buckets: map[string]*bucket{},
		window:  window,
		max:     max,
		routes:  routes,
		nowFunc: time.Now,
	}
}

// Check records one request and returns RateLimited once the client
// exceeds the window's budget for a throttled route.
func (l *Limiter) Check(clientKey, routeKey string) error {
	if !l.routes[routeKey] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.sweepLocked(now)

	key := clientKey + "|" + routeKey
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowResetAt) {
		l.buckets[key] = &bucket{count: 1, windowResetAt: now.Add(l.window)}
		return nil
	}

	b.count++
	if b.count > l.max {
		return apperr.RateLimited("too many requests, slow down")
	}
	return nil
}

// sweepLocked drops expired buckets, at most once per window, to bound
// memory. Caller holds the mutex.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) <= l.window {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if !now.Before(b.windowResetAt) {
			delete(l.buckets, key)
		}
	}
}
