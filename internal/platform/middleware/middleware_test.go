package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// newRequest builds an echo context for exercising middleware directly,
// with optional request mutations applied in order.
func newRequest(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// asUser stamps the acting identity onto the request context the way the
// auth middleware does.
func asUser(userID string, roles ...string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func withHeader(key, value string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set(key, value) }
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// logBuffer returns a logger writing JSON lines into the buffer.
func logBuffer() (zerolog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return zerolog.New(&buf), &buf
}

func TestRequestIDGenerated(t *testing.T) {
	c, rec := newRequest(http.MethodGet, "/api/v1/devices")

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if seen == "" {
		t.Error("no request_id on context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	c, rec := newRequest(http.MethodGet, "/api/v1/devices",
		withHeader(RequestIDHeader, "req-supplied"))

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if got := rec.Header().Get(RequestIDHeader); got != "req-supplied" {
		t.Errorf("response header = %q, want req-supplied", got)
	}
	if rid, _ := c.Get("request_id").(string); rid != "req-supplied" {
		t.Errorf("context request_id = %q, want req-supplied", rid)
	}
}

func TestLoggerEmitsRequestLine(t *testing.T) {
	logger, buf := logBuffer()
	c, _ := newRequest(http.MethodGet, "/api/v1/devices", asUser("MFG-ACME", "manufacturer"))
	c.Set("request_id", "req-1")

	h := Logger(logger)(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	line := buf.String()
	for _, want := range []string{
		`"method":"GET"`,
		`"path":"/api/v1/devices"`,
		`"status":200`,
		`"request_id":"req-1"`,
		`"actor":"MFG-ACME"`,
		`"message":"request"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestLoggerMarksErrors(t *testing.T) {
	logger, buf := logBuffer()
	c, _ := newRequest(http.MethodGet, "/api/v1/devices/9")

	h := Logger(logger)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	})
	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}

	line := buf.String()
	if !strings.Contains(line, `"level":"error"`) {
		t.Errorf("error request not logged at error level: %s", line)
	}
	if !strings.Contains(line, "device not found") {
		t.Errorf("log line missing the error: %s", line)
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	logger, buf := logBuffer()
	c, _ := newRequest(http.MethodGet, "/api/v1/implants")

	h := Recovery(logger)(func(c echo.Context) error {
		panic("nil map write")
	})
	err := h(c)
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("error type = %T, want *echo.HTTPError", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", httpErr.Code)
	}

	line := buf.String()
	if !strings.Contains(line, "panic recovered") || !strings.Contains(line, "nil map write") {
		t.Errorf("panic not logged: %s", line)
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	logger, buf := logBuffer()
	c, _ := newRequest(http.MethodGet, "/api/v1/implants")

	h := Recovery(logger)(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}
