package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

const (
	overrideHeader       = "X-Break-Glass"
	overrideWindow       = time.Hour
	overrideMaxPerWindow = 10
	overridePruneEvery   = 5 * time.Minute
)

type bgCtxKey int

const (
	bgActiveKey bgCtxKey = iota
	bgReasonKey
)

// overrideLimiter counts break-glass requests per user over a rolling window.
type overrideLimiter struct {
	window time.Duration
	max    int

	mu     sync.Mutex
	byUser map[string][]time.Time
}

func newOverrideLimiter(window time.Duration, max int) *overrideLimiter {
	return &overrideLimiter{
		window: window,
		max:    max,
		byUser: make(map[string][]time.Time),
	}
}

// take records one request for userID if the user is still under the limit.
// Timestamps are appended in clock order, so expiry is a prefix cut.
func (l *overrideLimiter) take(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := trimWindow(l.byUser[userID], now.Add(-l.window))
	if len(live) >= l.max {
		l.byUser[userID] = live
		return false
	}
	l.byUser[userID] = append(live, now)
	return true
}

// prune discards users whose every recorded request has aged out.
func (l *overrideLimiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for userID, stamps := range l.byUser {
		live := trimWindow(stamps, cutoff)
		if len(live) == 0 {
			delete(l.byUser, userID)
			continue
		}
		l.byUser[userID] = live
	}
}

// trimWindow drops leading timestamps at or before cutoff.
func trimWindow(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// BreakGlass lets an emergency clinician reach registry data their role
// would not normally allow. A patient wheeled in unconscious still carries
// an implanted device; the treating physician needs its record, recall
// status, and service history immediately. Sending the X-Break-Glass header
// with a non-empty reason:
//
//   - requires an authenticated caller,
//   - is limited to 10 requests per user per rolling hour,
//   - grants the "admin" role for this request only,
//   - marks the request context so the audit trail records the override,
//   - emits a WARN log carrying the stated reason.
//
// Only /api/v1/* paths honor the header. Install after authentication.
func BreakGlass(logger zerolog.Logger) echo.MiddlewareFunc {
	lim := newOverrideLimiter(overrideWindow, overrideMaxPerWindow)
	go func() {
		t := time.NewTicker(overridePruneEvery)
		defer t.Stop()
		for range t.C {
			lim.prune(time.Now())
		}
	}()
	return breakGlassWith(logger, lim, time.Now)
}

// breakGlassWith takes an explicit limiter and clock so tests control time.
func breakGlassWith(logger zerolog.Logger, lim *overrideLimiter, clock func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !registryRequest(req.URL.Path) {
				return next(c)
			}
			reason := strings.TrimSpace(req.Header.Get(overrideHeader))
			if reason == "" {
				return next(c)
			}

			ctx := req.Context()
			userID := auth.UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "break-glass requires authentication")
			}
			if !lim.take(userID, clock()) {
				return echo.NewHTTPError(http.StatusTooManyRequests,
					"break-glass rate limit exceeded: maximum 10 requests per user per hour")
			}

			roles := auth.RolesFromContext(ctx)
			logger.Warn().
				Str("actor", userID).
				Strs("roles", roles).
				Str("reason", reason).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Msg("break_glass_override")

			ctx = context.WithValue(ctx, bgActiveKey, true)
			ctx = context.WithValue(ctx, bgReasonKey, reason)
			ctx = context.WithValue(ctx, auth.UserRolesKey, grantAdmin(roles))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// grantAdmin returns roles with "admin" added once. The append never writes
// into the caller's backing array.
func grantAdmin(roles []string) []string {
	for _, r := range roles {
		if r == "admin" {
			return roles
		}
	}
	return append(roles[:len(roles):len(roles)], "admin")
}

// IsBreakGlass reports whether the request context carries an active
// break-glass override.
func IsBreakGlass(ctx context.Context) bool {
	v, _ := ctx.Value(bgActiveKey).(bool)
	return v
}

// BreakGlassReason returns the reason stated in the override header, or ""
// when no override is active.
func BreakGlassReason(ctx context.Context) string {
	v, _ := ctx.Value(bgReasonKey).(string)
	return v
}
