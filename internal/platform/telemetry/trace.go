package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Outcome classifies a finished span.
type Outcome int

const (
	OutcomeUnset Outcome = iota
	OutcomeOK
	OutcomeError
)

// Span is one traced request, recorded after the handler returns.
type Span struct {
	TraceID string            `json:"trace_id"`
	SpanID  string            `json:"span_id"`
	Name    string            `json:"name"`
	Start   time.Time         `json:"start"`
	End     time.Time         `json:"end"`
	Outcome Outcome           `json:"outcome"`
	Attrs   map[string]string `json:"attrs"`
}

// Elapsed is the span's wall-clock duration.
func (s *Span) Elapsed() time.Duration { return s.End.Sub(s.Start) }

// JSON renders the span as one structured log line.
func (s *Span) JSON() string {
	out, _ := json.Marshal(s)
	return string(out)
}

// traceCapacity caps the retained span ring so a long-running server does
// not grow without bound.
const traceCapacity = 1024

// traceLog retains the newest spans in a fixed ring so an operator can pull
// recent request traces off a running server without a collector.
type traceLog struct {
	mu   sync.Mutex
	ring []*Span
	seen int
}

func newTraceLog() *traceLog {
	return &traceLog{ring: make([]*Span, traceCapacity)}
}

func (l *traceLog) add(s *Span) {
	l.mu.Lock()
	l.ring[l.seen%len(l.ring)] = s
	l.seen++
	l.mu.Unlock()
}

// tail returns the retained spans, oldest first.
func (l *traceLog) tail() []*Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := min(l.seen, len(l.ring))
	out := make([]*Span, 0, n)
	for i := l.seen - n; i < l.seen; i++ {
		out = append(out, l.ring[i%len(l.ring)])
	}
	return out
}

// TracingMiddleware records a span for every request that reaches the
// router.
func (p *Provider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !enabled(p.cfg.Tracing) {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			p.traces.add(buildSpan(c, start, time.Now()))
			return err
		}
	}
}

// buildSpan snapshots one finished request. A 4xx is the caller's fault and
// keeps OutcomeOK; only 5xx marks the span failed.
func buildSpan(c echo.Context, start, end time.Time) *Span {
	req := c.Request()
	route := matchedRoute(c)

	attrs := map[string]string{
		"http.method":      req.Method,
		"http.route":       route,
		"http.status_code": strconv.Itoa(c.Response().Status),
		"http.url":         req.URL.String(),
	}
	if res := pathResource(req.URL.Path); res != "" {
		attrs["registry.resource_type"] = res
	}
	if rid, _ := c.Get("request_id").(string); rid != "" {
		attrs["request.id"] = rid
	}

	outcome := OutcomeOK
	if c.Response().Status >= http.StatusInternalServerError {
		outcome = OutcomeError
	}

	traceID, spanID := newSpanID()
	return &Span{
		TraceID: traceID,
		SpanID:  spanID,
		Name:    req.Method + " " + route,
		Start:   start,
		End:     end,
		Outcome: outcome,
		Attrs:   attrs,
	}
}

// matchedRoute is the route pattern the router matched, or the raw path for
// requests that matched none.
func matchedRoute(c echo.Context) string {
	if route := c.Path(); route != "" {
		return route
	}
	return c.Request().URL.Path
}

// pathResource extracts the resource segment of an API path, the lowercase
// plural noun right after the version prefix.
func pathResource(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	seg, _, _ := strings.Cut(path[len(prefix):], "/")
	if seg == "" || seg[0] < 'a' || seg[0] > 'z' {
		return ""
	}
	return seg
}

// newSpanID draws both identifiers from one read: 16 bytes of trace id and
// 8 bytes of span id.
func newSpanID() (traceID, spanID string) {
	var raw [24]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:16]), hex.EncodeToString(raw[16:])
}
