package implant

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
	api.POST("/implants", h.ImplantDevice)
	api.GET("/implants/:id", h.GetImplant)
	api.POST("/implants/:id/removal", h.RemoveImplant)
	api.GET("/patients/:patientId/implants", h.GetPatientImplants)
}

func (h *Handler) ImplantDevice(c echo.Context) error {
	var imp Implant
	if err := c.Bind(&imp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ImplantDevice(c.Request().Context(), actor, &imp); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, imp)
}

func (h *Handler) GetImplant(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	imp, err := h.svc.GetImplant(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "implant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, imp)
}

type removalRequest struct {
	ProviderID  string  `json:"provider_id"`
	RemovalDate int64   `json:"removal_date"`
	Reason      string  `json:"reason"`
	ExplantHash *string `json:"explant_hash"`
}

func (h *Handler) RemoveImplant(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid implant id")
	}
	var req removalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	imp, err := h.svc.RemoveImplant(c.Request().Context(), actor, req.ProviderID,
		id, req.RemovalDate, req.Reason, req.ExplantHash)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, imp)
}

func (h *Handler) GetPatientImplants(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active_only"))
	actor := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.GetPatientImplants(c.Request().Context(), actor, c.Param("patientId"), activeOnly)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
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
	case errors.Is(err, storage.ErrDeviceNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
