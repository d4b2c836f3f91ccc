package recall

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/storage"
	"github.com/medtrack/medtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/recalls", h.IssueRecall)
	api.GET("/recalls", h.ListRecalls)
	api.GET("/recalls/:id", h.GetRecall)
	api.POST("/recalls/:id/notifications", h.NotifyAffectedPatients)
	api.GET("/devices/:id/recalls", h.CheckDeviceRecalls)
}

type issueRequest struct {
	ManufacturerID     string   `json:"manufacturer_id"`
	DeviceIDs          []uint64 `json:"device_ids"`
	Reason             string   `json:"reason"`
	Severity           string   `json:"severity"`
	RecallDate         int64    `json:"recall_date"`
	ActionRequired     string   `json:"action_required"`
	ResolutionDeadline *int64   `json:"resolution_deadline"`
}

func (h *Handler) IssueRecall(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec := &Recall{
		DeviceIDs:          req.DeviceIDs,
		Reason:             req.Reason,
		Severity:           req.Severity,
		RecallDate:         req.RecallDate,
		ActionRequired:     req.ActionRequired,
		ResolutionDeadline: req.ResolutionDeadline,
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.IssueRecall(c.Request().Context(), actor, req.ManufacturerID, rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecall(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recall id")
	}
	rec, err := h.svc.GetRecall(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "recall not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecalls(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecalls(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type notifyRequest struct {
	NotificationDate int64 `json:"notification_date"`
}

func (h *Handler) NotifyAffectedPatients(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recall id")
	}
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	patients, err := h.svc.NotifyAffectedPatients(c.Request().Context(), actor, id, req.NotificationDate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recall_id":         id,
		"notification_date": req.NotificationDate,
		"notified_patients": patients,
		"count":             len(patients),
	})
}

func (h *Handler) CheckDeviceRecalls(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid device id")
	}
	items, err := h.svc.CheckDeviceRecalls(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrNotAuthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
