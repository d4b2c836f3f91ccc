package prescription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func withActor(c echo.Context, actor string) echo.Context {
	ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, actor)
	c.SetRequest(c.Request().WithContext(ctx))
	return c
}

func TestHandler_PrescribeDevice(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"PAT-100","provider_id":"DR-HOUSE","device_type":"insulin-pump",` +
		`"device_id":12,"prescription_date":1685000000,"duration_days":90,` +
		`"instructions_hash":"` + testHash("instructions") + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := withActor(e.NewContext(req, rec), "DR-HOUSE")
	if err := h.PrescribeDevice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var result map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result["id"] != float64(1) {
		t.Errorf("id = %v, want 1", result["id"])
	}
	if result["duration_days"] != float64(90) {
		t.Errorf("duration_days = %v, want 90", result["duration_days"])
	}
}

func TestHandler_PrescribeDevice_Forbidden(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient_id":"PAT-100","provider_id":"DR-HOUSE","device_type":"insulin-pump",` +
		`"device_id":12,"instructions_hash":"` + testHash("instructions") + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := withActor(e.NewContext(req, rec), "DR-WILSON")
	err := h.PrescribeDevice(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_GetPrescription(t *testing.T) {
	h, e := newTestHandler()
	p := validPrescription()
	h.svc.PrescribeDevice(context.Background(), "DR-HOUSE", p)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.GetPrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPrescription_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("42")
	err := h.GetPrescription(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))
	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}
	for _, path := range []string{"POST:/api/v1/prescriptions", "GET:/api/v1/prescriptions/:id"} {
		if !routePaths[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}
