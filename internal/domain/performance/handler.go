package performance

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
	api.POST("/implants/:id/performance", h.TrackPerformance)
	api.GET("/implants/:id/performance", h.ListPerformance)
}

type trackRequest struct {
	PatientID     string   `json:"patient_id"`
	DataHash      string   `json:"data_hash"`
	ReportedDate  int64    `json:"reported_date"`
	Complications []string `json:"complications"`
}

func (h *Handler) TrackPerformance(c echo.Context) error {
	implantID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	var req trackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rep := &Report{
		ImplantID:     implantID,
		PatientID:     req.PatientID,
		DataHash:      req.DataHash,
		ReportedDate:  req.ReportedDate,
		Complications: req.Complications,
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.TrackPerformance(c.Request().Context(), actor, rep); err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthorized):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, storage.ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) ListPerformance(c echo.Context) error {
	implantID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	items, err := h.svc.ListPerformance(c.Request().Context(), implantID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "implant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
