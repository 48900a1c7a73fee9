package middleware

import (
	"sync"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(userID string) bool
	Reset(userID string)
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter implements per-user rate limiting
type UserRateLimiter struct {
	enabled         bool
	limiters        map[string]*userLimiter
	mu              sync.Mutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	done            chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *UserRateLimiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return &UserRateLimiter{enabled: false}
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	rl := &UserRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*userLimiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           burst,
		logger:          logger,
		cleanupInterval: 10 * time.Minute,
		idleTimeout:     time.Hour,
		done:            make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(userID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(userID).Allow()
	if !allowed {
		r.logger.WithField("user_id", userID).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(userID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

// Stop ends the background cleanup
func (r *UserRateLimiter) Stop() {
	if !r.enabled {
		return
	}
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *UserRateLimiter) getLimiter(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.limiters[userID]
	if !exists {
		// Rate per second = RPM / 60
		rps := float64(r.rpm) / 60.0
		entry = &userLimiter{limiter: rate.NewLimiter(rate.Limit(rps), r.burst)}
		r.limiters[userID] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

// cleanup removes limiters of users that have been idle for a while
func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *UserRateLimiter) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.limiters {
		if now.Sub(entry.lastSeen) > r.idleTimeout {
			delete(r.limiters, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("Evicted idle rate limiters")
	}
}
