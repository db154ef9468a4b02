package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowFirstRequestAllowed(t *testing.T) {
	l := NewFixedWindowLimiter()

	d := l.Check("user:u1", time.Minute, 1)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.RetryAfterSeconds)
}

func TestFixedWindowDeniesAtLimit(t *testing.T) {
	l := NewFixedWindowLimiter()

	assert.True(t, l.Check("user:u1", time.Minute, 1).Allowed)

	d := l.Check("user:u1", time.Minute, 1)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, d.RetryAfterSeconds, 60)
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	l := NewFixedWindowLimiter()

	assert.True(t, l.Check("user:u1", time.Minute, 1).Allowed)
	assert.False(t, l.Check("user:u1", time.Minute, 1).Allowed)
	assert.True(t, l.Check("board:b1", time.Minute, 1).Allowed)
}

func TestFixedWindowResetsAfterExpiry(t *testing.T) {
	l := NewFixedWindowLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Check("user:u1", time.Minute, 1).Allowed)
	assert.False(t, l.Check("user:u1", time.Minute, 1).Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, l.Check("user:u1", time.Minute, 1).Allowed)
}

func TestFixedWindowRetryAfterRoundsUp(t *testing.T) {
	l := NewFixedWindowLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Check("user:u1", time.Minute, 1)
	now = now.Add(59500 * time.Millisecond)

	d := l.Check("user:u1", time.Minute, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfterSeconds)
}

func TestFixedWindowCountsWithinWindow(t *testing.T) {
	l := NewFixedWindowLimiter()

	for i := 0; i < 30; i++ {
		assert.True(t, l.Check("user:u1", time.Minute, 30).Allowed, "request %d", i)
	}
	assert.False(t, l.Check("user:u1", time.Minute, 30).Allowed)
}

func TestFixedWindowPrunesExpiredEntries(t *testing.T) {
	l := NewFixedWindowLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 1100; i++ {
		l.Check(fmt.Sprintf("user:u%d", i), time.Minute, 1)
	}
	now = now.Add(2 * time.Minute)
	l.Check("user:fresh", time.Minute, 1)

	l.mu.Lock()
	size := len(l.windows)
	l.mu.Unlock()
	assert.LessOrEqual(t, size, 2)
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "user:u1", RateLimitKey("user", "u1"))
	assert.Equal(t, "board:b1", RateLimitKey("board", "b1"))
}
