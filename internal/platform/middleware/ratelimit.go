package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// RateLimitConfig tunes the per-actor token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is one actor's token balance. The owning limiter's mutex guards it.
type bucket struct {
	tokens float64
	last   time.Time
}

// limiter hands out tokens from per-key buckets that refill at a fixed rate.
type limiter struct {
	rate float64
	cap  float64

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		rate:    cfg.RequestsPerSecond,
		cap:     float64(cfg.BurstSize),
		buckets: make(map[string]*bucket),
	}
}

// allow takes one token for key, reporting whether one was available and,
// when not, how many whole seconds until the next token accrues.
func (l *limiter) allow(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cap, last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.cap {
		b.tokens = l.cap
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/l.rate) + 1
}

// prune drops buckets that have refilled to capacity; a full bucket holds
// no state worth keeping.
func (l *limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if b.tokens+now.Sub(b.last).Seconds()*l.rate >= l.cap {
			delete(l.buckets, key)
		}
	}
}

const limiterPruneEvery = 10 * time.Minute

// RateLimit throttles requests per actor. The bucket key is the
// authenticated caller plus client IP when a caller is known, the IP alone
// otherwise, so one noisy integration cannot starve the rest.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg)
	go func() {
		t := time.NewTicker(limiterPruneEvery)
		defer t.Stop()
		for range t.C {
			lim.prune(time.Now())
		}
	}()

	limitValue := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = uid + ":" + key
			}

			ok, retryAfter := lim.allow(key, time.Now())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitValue)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
