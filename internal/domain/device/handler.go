package device

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

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
	api.POST("/devices", h.RegisterDevice)
	api.GET("/devices", h.ListDevices)
	api.GET("/devices/:id", h.GetDevice)
}

func (h *Handler) RegisterDevice(c echo.Context) error {
	var dev Device
	if err := c.Bind(&dev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterDevice(c.Request().Context(), &dev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, dev)
}

func (h *Handler) GetDevice(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid device id")
	}
	dev, err := h.svc.GetDevice(c.Request().Context(), id)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, dev)
}

// ListDevices serves a registry page. The udi and lot_number query
// parameters narrow it to exact matches; both can repeat across
// registrations, so even a udi lookup stays a list.
func (h *Handler) ListDevices(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		UDI:       c.QueryParam("udi"),
		LotNumber: c.QueryParam("lot_number"),
	}
	items, total, err := h.svc.ListDevices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
