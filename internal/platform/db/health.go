package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// healthPingTimeout bounds the probe so a wedged pool cannot hang the
// health endpoint.
const healthPingTimeout = 5 * time.Second

// poolCounters is a point-in-time view of the pgx pool.
type poolCounters struct {
	Open     int32  `json:"open"`
	Idle     int32  `json:"idle"`
	InUse    int32  `json:"in_use"`
	Max      int32  `json:"max"`
	Acquires int64  `json:"acquires"`
	WaitTime string `json:"acquire_wait"`
}

func snapshotPool(pool *pgxpool.Pool) *poolCounters {
	s := pool.Stat()
	return &poolCounters{
		Open:     s.TotalConns(),
		Idle:     s.IdleConns(),
		InUse:    s.AcquiredConns(),
		Max:      s.MaxConns(),
		Acquires: s.AcquireCount(),
		WaitTime: s.AcquireDuration().String(),
	}
}

// healthReport is the payload of the database health endpoint.
type healthReport struct {
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	PingLatency string        `json:"ping_latency"`
	Pool        *poolCounters `json:"pool"`
}

// HealthHandler serves the database health endpoint: a bounded ping plus a
// snapshot of the pool counters, with the observed ping latency.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		start := time.Now()
		pingErr := pool.Ping(ctx)

		report := healthReport{
			Status:      "healthy",
			PingLatency: time.Since(start).String(),
			Pool:        snapshotPool(pool),
		}
		if pingErr != nil {
			report.Status = "unhealthy"
			report.Error = pingErr.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
