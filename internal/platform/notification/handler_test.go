package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type notifEnv struct {
	e     *echo.Echo
	m     *Manager
	email *gatewayRecorder
}

func newNotifEnv(t *testing.T) *notifEnv {
	t.Helper()
	m, email, _ := newTestManager()
	e := echo.New()
	NewHandler(m).RegisterRoutes(e.Group("/api/v1"))
	return &notifEnv{e: e, m: m, email: email}
}

func (env *notifEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSend(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/notifications/send",
		`{"channel":"email","to":"PAT-100","subject":"check-up","body":"please call"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var n Notice
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatalf("response: %v", err)
	}
	if n.ID == "" || n.Status != statusSent {
		t.Errorf("notice = %+v", n)
	}
	if env.email.count() != 1 {
		t.Errorf("gateway deliveries = %d", env.email.count())
	}
}

func TestHandlerSendRequiresRecipient(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/notifications/send",
		`{"channel":"email","body":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerSendFailureStillRecorded(t *testing.T) {
	env := newNotifEnv(t)
	env.email.fail = errors.New("relay down")

	rec := env.do(http.MethodPost, "/api/v1/notifications/send",
		`{"channel":"email","to":"PAT-100","body":"x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var n Notice
	json.Unmarshal(rec.Body.Bytes(), &n)
	if n.Status != statusFailed || n.Failure == "" {
		t.Errorf("failed send response = %+v", n)
	}
}

func TestHandlerSendTemplate(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/notifications/send-template",
		`{"template":"maintenance-due","to":"PAT-100","fields":{"device_type":"pacemaker","model":"CT-900","provider":"DR-HOUSE"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var n Notice
	json.Unmarshal(rec.Body.Bytes(), &n)
	if n.Template != "maintenance-due" {
		t.Errorf("template = %q", n.Template)
	}
	if !strings.Contains(n.Body, "pacemaker CT-900") {
		t.Errorf("body = %q", n.Body)
	}
}

func TestHandlerSendTemplateUnknown(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/notifications/send-template",
		`{"template":"nope","to":"PAT-100"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerTemplates(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/notifications/templates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []Template
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("response: %v", err)
	}
	if len(list) != len(builtinTemplates) {
		t.Errorf("templates = %d, want %d", len(list), len(builtinTemplates))
	}
}

func TestHandlerGet(t *testing.T) {
	env := newNotifEnv(t)
	n := &Notice{Channel: ChannelEmail, To: "PAT-100", Body: "b"}
	env.m.Send(context.Background(), n)

	rec := env.do(http.MethodGet, "/api/v1/notifications/"+n.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/v1/notifications/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestHandlerHistoryRequiresRecipient(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/notifications", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	env.m.Send(context.Background(), &Notice{Channel: ChannelEmail, To: "PAT-100", Body: "b"})
	rec = env.do(http.MethodGet, "/api/v1/notifications?recipient=PAT-100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []Notice
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("history = %d, want 1", len(list))
	}
}

func TestHandlerRetry(t *testing.T) {
	env := newNotifEnv(t)
	env.email.fail = errors.New("relay down")
	n := &Notice{Channel: ChannelEmail, To: "PAT-100", Body: "b"}
	env.m.Send(context.Background(), n)
	env.email.fail = nil

	rec := env.do(http.MethodPost, "/api/v1/notifications/"+n.ID+"/retry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got Notice
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != statusSent {
		t.Errorf("status after retry = %q", got.Status)
	}
}

func TestHandlerRetryGuards(t *testing.T) {
	env := newNotifEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/notifications/missing/retry", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	n := &Notice{Channel: ChannelEmail, To: "PAT-100", Body: "b"}
	env.m.Send(context.Background(), n)
	rec = env.do(http.MethodPost, "/api/v1/notifications/"+n.ID+"/retry", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("retry of sent notice status = %d, want 409", rec.Code)
	}
}

func TestHandlerStats(t *testing.T) {
	env := newNotifEnv(t)
	env.m.Send(context.Background(), &Notice{Channel: ChannelEmail, To: "a", Body: "b"})

	rec := env.do(http.MethodGet, "/api/v1/notifications/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats map[string]int
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats[statusSent] != 1 {
		t.Errorf("stats = %v", stats)
	}
}
