package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit rejects request bodies over the given size with HTTP 413.
// defaultLimit applies everywhere except document uploads to
// POST /api/v1/vault/documents, which get documentLimit: scanned surgical
// notes and device spec sheets run far larger than API payloads.
//
// Sizes are strings like "512K", "1M", "10G"; a bare number means bytes.
func BodyLimit(defaultLimit, documentLimit string) echo.MiddlewareFunc {
	defaultBytes := parseSize(defaultLimit)
	documentBytes := parseSize(documentLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && strings.HasPrefix(req.URL.Path, "/api/v1/vault/documents") {
				limit = documentBytes
			}

			// A declared Content-Length over the limit fails fast.
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
			}

			// The declared length can lie or be absent; cap the actual read.
			req.Body = &cappedBody{rc: req.Body, left: limit}
			return next(c)
		}
	}
}

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// cappedBody wraps a request body and fails any read past the byte budget.
type cappedBody struct {
	rc      io.ReadCloser
	left    int64
	tripped bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.tripped {
		return 0, errBodyTooLarge
	}
	// Read one byte past the budget so an overrun is observable.
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.rc.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.tripped = true
		return 0, errBodyTooLarge
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.rc.Close() }

var sizeSuffixes = [...]struct {
	suffix string
	mult   int64
}{
	{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
	{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30},
}

// parseSize converts "512K", "1M", "2GB" to bytes. A bare number is bytes;
// anything unparseable falls back to 1 MB.
func parseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))

	var mult int64 = 1
	for _, u := range sizeSuffixes {
		if rest, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = rest, u.mult
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 1 << 20
	}
	return n * mult
}
