package usecase

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// RateLimiter counts requests per key in fixed windows. Implementations must
// be safe for concurrent use. The process-local implementation below is not
// fleet-safe; a shared-counter implementation can be swapped in behind this
// interface without touching callers.
type RateLimiter interface {
	Check(key string, window time.Duration, max int) Decision
}

// RateLimitKey namespaces a limit key by scope, e.g. "user:u1" vs "board:b1".
func RateLimitKey(scope, id string) string {
	return fmt.Sprintf("%s:%s", scope, id)
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter is an in-memory fixed-window rate limiter. The first
// request for a key opens a window; requests beyond max within the window are
// denied with the seconds remaining until the window resets.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow

	// now is swappable for deterministic tests.
	now func() time.Time
}

var _ RateLimiter = (*FixedWindowLimiter)(nil)

func NewFixedWindowLimiter() *FixedWindowLimiter {
	return &FixedWindowLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// Check records one request against key and reports whether it is allowed.
func (l *FixedWindowLimiter) Check(key string, window time.Duration, max int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &fixedWindow{count: 1, resetAt: now.Add(window)}
		l.pruneLocked(now)
		return Decision{Allowed: true}
	}

	if w.count < max {
		w.count++
		return Decision{Allowed: true}
	}

	retryAfter := int(math.Ceil(w.resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Allowed: false, RetryAfterSeconds: retryAfter}
}

// pruneLocked drops expired windows so the map does not grow without bound.
// Called opportunistically when a new window opens; cheap relative to the
// request rate the limiter is guarding.
func (l *FixedWindowLimiter) pruneLocked(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
