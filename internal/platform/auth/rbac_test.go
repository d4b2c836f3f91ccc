package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func roleContext(roles []string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		held    []string
		wanted  []string
		allowed bool
	}{
		{"exact match", []string{"manufacturer"}, []string{"manufacturer"}, true},
		{"second of alternatives", []string{"provider"}, []string{"manufacturer", "provider"}, true},
		{"admin passes any gate", []string{"admin"}, []string{"manufacturer"}, true},
		{"unrelated role", []string{"billing"}, []string{"manufacturer", "provider"}, false},
		{"no identity bound", nil, []string{"manufacturer"}, false},
		{"empty role list", []string{}, []string{"manufacturer"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RequireRole(tc.wanted...)(pass)(roleContext(tc.held))
			if tc.allowed {
				if err != nil {
					t.Fatalf("request denied: %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
			}
			if httpErr.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", httpErr.Code)
			}
		})
	}
}

func TestRequireRoleNamesMissingRoles(t *testing.T) {
	err := RequireRole("manufacturer", "provider")(pass)(roleContext([]string{"billing"}))

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	msg, _ := httpErr.Message.(string)
	if msg != "required role: manufacturer or provider" {
		t.Errorf("message = %q", msg)
	}
}

func TestHoldsAny(t *testing.T) {
	cases := []struct {
		name   string
		held   []string
		wanted []string
		want   bool
	}{
		{"direct hit", []string{"surgeon"}, []string{"surgeon"}, true},
		{"admin with empty want list", []string{"admin"}, nil, true},
		{"nothing held", nil, []string{"surgeon"}, false},
		{"nothing wanted", []string{"surgeon"}, nil, false},
		{"overlap in the middle", []string{"billing", "provider"}, []string{"provider", "surgeon"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := holdsAny(tc.held, tc.wanted); got != tc.want {
				t.Errorf("holdsAny(%v, %v) = %v, want %v", tc.held, tc.wanted, got, tc.want)
			}
		})
	}
}
