package auth

import "github.com/labstack/echo/v4"

// IsPublicPath reports whether path is an infrastructure endpoint that must
// stay reachable without credentials: health probes, the metrics scrape
// target, and the websocket upgrade.
func IsPublicPath(path string) bool {
	switch path {
	case "/health", "/health/db", "/metrics", "/ws":
		return true
	}
	return false
}

// AuthSkipper is the Skipper for JWTConfig and DevAuthMiddleware: it returns
// true when the request targets a public path. The matched route pattern is
// checked first; the raw URL path covers requests that never hit a route.
func AuthSkipper(c echo.Context) bool {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	return IsPublicPath(path)
}
