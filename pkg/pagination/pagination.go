// Package pagination implements the limit/offset paging contract shared by
// the registry's list endpoints: limit and offset arrive as query
// parameters, results go out in an envelope carrying the window, the total
// row count, and a has_more flag.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// DefaultLimit applies when the client sends no usable limit.
	DefaultLimit = 20

	// MaxLimit caps the page size a client may request.
	MaxLimit = 100
)

// Params is a validated page window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the request query string. Missing
// or malformed values fall back to the defaults, oversized limits clamp to
// MaxLimit, and negative offsets clamp to zero.
func FromContext(c echo.Context) Params {
	return Params{
		Limit:  clampLimit(c.QueryParam("limit")),
		Offset: clampOffset(c.QueryParam("offset")),
	}
}

func clampLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil || n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

func clampOffset(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Response is the envelope list endpoints return.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// NewResponse wraps one page of results. HasMore reports whether rows exist
// beyond this window.
func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
	}
}
