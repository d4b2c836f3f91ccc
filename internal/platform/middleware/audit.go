package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// registryRequest reports whether a path belongs to the registry API. Both
// the audit trail and the break-glass override key off this prefix.
func registryRequest(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

// AuditEntry is one recorded access to registry data: who touched what,
// from where, with what outcome.
type AuditEntry struct {
	Actor          string
	Roles          []string
	Resource       string
	Patient        string
	Action         string
	RemoteIP       string
	UserAgent      string
	Path           string
	Method         string
	Override       bool
	OverrideReason string
	At             time.Time
	RequestID      string
	Status         int
}

// AuditRecorder persists audit entries. Tests and alternative sinks supply
// their own implementation.
type AuditRecorder interface {
	Record(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) Record(entry AuditEntry) error { return f(entry) }

// Audit writes one audit entry per registry API request. Implant and
// prescription records tie devices to patients, so every read of them is
// protected health information access and must leave a trace.
//
// The entry goes to the recorder when one is given; a structured log line
// is emitted either way. Break-glass overrides, detected via the request
// context set by BreakGlass, are logged at WARN.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	var recorder AuditRecorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !registryRequest(c.Request().URL.Path) {
				return next(c)
			}

			// Run the handler first; the entry wants the response status.
			err := next(c)
			entry := newAuditEntry(c)

			if recorder != nil {
				if recErr := recorder.Record(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("audit entry not recorded")
				}
			}
			entry.log(logger)

			return err
		}
	}
}

// log emits the entry on the audit trail. Override accesses surface at
// WARN so they stand out when the stream is reviewed.
func (e AuditEntry) log(logger zerolog.Logger) {
	evt := logger.Info()
	if e.Override {
		evt = logger.Warn()
	}
	evt.
		Str("request_id", e.RequestID).
		Str("actor", e.Actor).
		Strs("roles", e.Roles).
		Str("resource", e.Resource).
		Str("patient_id", e.Patient).
		Str("action", e.Action).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("remote_ip", e.RemoteIP).
		Int("status", e.Status).
		Bool("break_glass", e.Override).
		Str("break_glass_reason", e.OverrideReason).
		Msg("registry_access")
}

// newAuditEntry assembles the entry for a finished request.
func newAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)
	return AuditEntry{
		Actor:          auth.UserIDFromContext(ctx),
		Roles:          auth.RolesFromContext(ctx),
		Resource:       resourceSegment(req.URL.Path),
		Patient:        patientSubject(c),
		Action:         actionForMethod(req.Method),
		RemoteIP:       c.RealIP(),
		UserAgent:      req.UserAgent(),
		Path:           req.URL.Path,
		Method:         req.Method,
		Override:       IsBreakGlass(ctx),
		OverrideReason: BreakGlassReason(ctx),
		At:             time.Now().UTC(),
		RequestID:      rid,
		Status:         c.Response().Status,
	}
}

// auditActions maps mutating HTTP methods to audit action codes. Anything
// unlisted counts as a read.
var auditActions = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

func actionForMethod(method string) string {
	if action, ok := auditActions[method]; ok {
		return action
	}
	return "read"
}

// resourceSegment extracts the first path segment after /api/v1/, the
// registry collection being touched ("devices", "implants", "recalls", ...).
func resourceSegment(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	seg, _, _ := strings.Cut(rest, "/")
	return seg
}

// patientSubject finds the patient a request is about, from a
// /patients/<id> path or the patient query parameter.
func patientSubject(c echo.Context) string {
	if rest, ok := strings.CutPrefix(c.Request().URL.Path, "/api/v1/patients/"); ok {
		if id, _, _ := strings.Cut(rest, "/"); id != "" {
			return id
		}
	}
	return c.QueryParam("patient")
}
