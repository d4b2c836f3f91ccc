package telemetry

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// latencyBounds follow the prometheus client defaults, in seconds.
var latencyBounds = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// sizeBounds cover request and response bodies in bytes, stepping by powers
// of four from 256B to 16MB.
var sizeBounds = []float64{256, 1 << 10, 1 << 12, 1 << 14, 1 << 16, 1 << 18, 1 << 20, 1 << 22, 1 << 24}

// histogram buckets observations for Prometheus exposition. hits carries
// one slot per bound plus a final slot for values above every bound, so the
// exposition loop emits +Inf without a special case.
type histogram struct {
	mu     sync.Mutex
	bounds []float64
	hits   []int64
	n      int64
	total  float64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, hits: make([]int64, len(bounds)+1)}
}

// Observe records one value. Values equal to a bound land in that bound's
// bucket, matching the le semantics of the exposition format.
func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.n++
	h.total += v
	for i, b := range h.bounds {
		if v <= b {
			h.hits[i]++
			return
		}
	}
	h.hits[len(h.bounds)]++
}

// Count is the number of observations.
func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

// Sum is the running total of all observed values.
func (h *histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// snapshot returns cumulative bucket counts ending with the +Inf total,
// plus count and sum, all read under one lock.
func (h *histogram) snapshot() ([]int64, int64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.hits))
	var acc int64
	for i, c := range h.hits {
		acc += c
		cum[i] = acc
	}
	return cum, h.n, h.total
}

// MetricsMiddleware tracks request duration, body sizes, and the in-flight
// gauge.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enabled(p.cfg.Metrics) {
				return next(c)
			}
			p.addGauge(gaugeInFlight, 1)
			defer p.addGauge(gaugeInFlight, -1)

			start := time.Now()
			err := next(c)
			seconds := time.Since(start).Seconds()

			req := c.Request()
			p.latency.Observe(seconds)
			p.observeRequest(series{
				method: req.Method,
				route:  matchedRoute(c),
				code:   strconv.Itoa(c.Response().Status),
			}, seconds)

			if req.ContentLength > 0 {
				p.inBytes.Observe(float64(req.ContentLength))
			}
			if n := c.Response().Size; n > 0 {
				p.outBytes.Observe(float64(n))
			}
			return err
		}
	}
}
