package maintenance

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/storage"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/implants/:id/maintenance", h.RecordMaintenance)
	api.GET("/implants/:id/maintenance", h.ListMaintenance)
}

type recordRequest struct {
	Date        int64  `json:"maintenance_date"`
	Type        string `json:"maintenance_type"`
	PerformedBy string `json:"performed_by"`
	NotesHash   string `json:"notes_hash"`
}

func (h *Handler) RecordMaintenance(c echo.Context) error {
	implantID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev := &Event{
		ImplantID:   implantID,
		Date:        req.Date,
		Type:        req.Type,
		PerformedBy: req.PerformedBy,
		NotesHash:   req.NotesHash,
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RecordMaintenance(c.Request().Context(), actor, ev); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthorized):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, storage.ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) ListMaintenance(c echo.Context) error {
	implantID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	items, err := h.svc.ListMaintenance(c.Request().Context(), implantID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "implant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
