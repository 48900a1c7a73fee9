package middleware

import (
	"testing"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: false}, quietLogger())
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("u1"))
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}, quietLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	assert.True(t, rl.Allow("u2"), "limits are per user")

	rl.Reset("u1")
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 1}, quietLogger())
	defer rl.Stop()

	rl.Allow("u1")
	rl.evictIdle(time.Now().Add(2 * time.Hour))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}
