package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func pageParams(t *testing.T, query string) Params {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/devices"+query, nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?limit=100", MaxLimit, 0},
		{"?limit=500", MaxLimit, 0},
		{"?limit=0", DefaultLimit, 0},
		{"?limit=-3", DefaultLimit, 0},
		{"?limit=abc", DefaultLimit, 0},
		{"?offset=-5", DefaultLimit, 0},
		{"?offset=abc", DefaultLimit, 0},
		{"?limit=1&offset=0", 1, 0},
	}
	for _, tc := range cases {
		p := pageParams(t, tc.query)
		if p.Limit != tc.limit || p.Offset != tc.offset {
			t.Errorf("FromContext(%q) = {%d %d}, want {%d %d}",
				tc.query, p.Limit, p.Offset, tc.limit, tc.offset)
		}
	}
}

func TestNewResponseEchoesWindow(t *testing.T) {
	items := []string{"DEV-1", "DEV-2", "DEV-3"}
	r := NewResponse(items, 10, Params{Limit: 3, Offset: 4})

	if r.Total != 10 {
		t.Errorf("Total = %d, want 10", r.Total)
	}
	if r.Limit != 3 || r.Offset != 4 {
		t.Errorf("window = {%d %d}, want {3 4}", r.Limit, r.Offset)
	}
	got, ok := r.Data.([]string)
	if !ok || len(got) != 3 {
		t.Fatalf("Data = %#v, want the three items back", r.Data)
	}
}

func TestNewResponseHasMore(t *testing.T) {
	cases := []struct {
		name  string
		total int
		p     Params
		want  bool
	}{
		{"first of many pages", 25, Params{Limit: 10, Offset: 0}, true},
		{"final full page", 25, Params{Limit: 10, Offset: 15}, false},
		{"final partial page", 25, Params{Limit: 10, Offset: 20}, false},
		{"offset past the end", 25, Params{Limit: 10, Offset: 30}, false},
		{"window equals total", 10, Params{Limit: 10, Offset: 0}, false},
		{"empty result set", 0, Params{Limit: 10, Offset: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResponse(nil, tc.total, tc.p)
			if r.HasMore != tc.want {
				t.Errorf("HasMore = %v, want %v", r.HasMore, tc.want)
			}
		})
	}
}
