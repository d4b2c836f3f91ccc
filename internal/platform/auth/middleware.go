package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Claims are the token claims the server understands. The subject is the
// actor identity (manufacturer, surgeon, provider, technician or patient id)
// that state-changing operations are verified against.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HMAC validation for development and testing.
	SigningKey []byte
	// Skipper reports whether a request should bypass authentication.
	Skipper func(echo.Context) bool
}

// keyfunc resolves the validation key material once, at server start. HMAC
// wins when a signing key is set; otherwise keys come from the configured
// JWKS endpoint, discovered from the issuer when none is given.
func (cfg JWTConfig) keyfunc() jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		return func(*jwt.Token) (interface{}, error) {
			return cfg.SigningKey, nil
		}
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		if p, err := NewOIDCProvider(cfg.Issuer); err == nil {
			jwksURL = p.JWKSURI
		}
	}
	return keyfuncFromJWKS(jwksURL)
}

func (cfg JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

// JWTMiddleware validates bearer tokens and binds the authenticated
// identity to the request context. Key material and parser options are
// resolved up front, so the per-request cost is the parse alone.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keys := cfg.keyfunc()
	opts := cfg.parserOptions()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			raw, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, keys, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(
				bindIdentity(c.Request().Context(), claims.Subject, claims.Roles)))
			return next(c)
		}
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || token == "" || !strings.EqualFold(scheme, "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authorization header is not a bearer token")
	}
	return token, nil
}

// bindIdentity stores the actor and roles where handlers and downstream
// middleware look for them.
func bindIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

// DevActorHeader lets unauthenticated development requests impersonate any
// actor identity, so operations that verify the acting party can be
// exercised without minting tokens.
const DevActorHeader = "X-Actor-ID"

// DevAuthMiddleware stands in for JWTMiddleware during development. Every
// request runs as the admin "dev-user" unless the X-Actor-ID header names
// a different actor.
func DevAuthMiddleware(skipper ...func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(skipper) > 0 && skipper[0] != nil && skipper[0](c) {
				return next(c)
			}

			actor := c.Request().Header.Get(DevActorHeader)
			if actor == "" {
				actor = "dev-user"
			}

			c.SetRequest(c.Request().WithContext(
				bindIdentity(c.Request().Context(), actor, []string{"admin"})))
			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated actor id, or "" when the
// request carries no identity.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// RolesFromContext returns the roles granted to the authenticated actor.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
