package webhook

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/pkg/pagination"
)

// Handler exposes endpoint management and the delivery log over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates a Handler for the given manager.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes binds the webhook management routes onto g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.register)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/test", h.ping)
	g.GET("/:id/deliveries", h.deliveries)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/deliveries/:id/retry", h.retry)
}

// storeError maps store failures onto HTTP statuses.
func storeError(err error) error {
	if errors.Is(err, ErrEndpointNotFound) || errors.Is(err, ErrDeliveryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// redacted returns a copy of ep without its signing secret. The secret is
// shown exactly once, in the registration response.
func redacted(ep *Endpoint) *Endpoint {
	cp := *ep
	cp.Secret = ""
	return &cp
}

// registration is the POST body for a new endpoint.
type registration struct {
	URL         string   `json:"url"`
	Secret      string   `json:"secret"`
	Description string   `json:"description"`
	Events      []string `json:"events"`
}

func (h *Handler) register(c echo.Context) error {
	var body registration
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ep, err := h.manager.Register(c.Request().Context(), body.URL, body.Secret, body.Description, body.Events)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ep)
}

func (h *Handler) list(c echo.Context) error {
	p := pagination.FromContext(c)
	eps, total, err := h.manager.store.ListEndpoints(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return storeError(err)
	}
	out := make([]*Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = redacted(ep)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, p))
}

func (h *Handler) get(c echo.Context) error {
	ep, err := h.manager.store.GetEndpoint(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, redacted(ep))
}

// endpointPatch carries partial updates. Nil means leave the field alone,
// so events can be replaced with an empty list.
type endpointPatch struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Status *string  `json:"status"`
}

func (h *Handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	ep, err := h.manager.store.GetEndpoint(ctx, c.Param("id"))
	if err != nil {
		return storeError(err)
	}

	var patch endpointPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if patch.URL != nil {
		if err := validateURL(*patch.URL); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		ep.URL = *patch.URL
	}
	if patch.Events != nil {
		ep.Events = patch.Events
	}
	if patch.Status != nil {
		switch *patch.Status {
		case endpointActive, endpointPaused:
			ep.Status = *patch.Status
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "status must be active or paused")
		}
	}

	if err := h.manager.store.UpdateEndpoint(ctx, ep); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, redacted(ep))
}

func (h *Handler) delete(c echo.Context) error {
	if err := h.manager.store.DeleteEndpoint(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ping(c echo.Context) error {
	d, err := h.manager.Ping(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) deliveries(c echo.Context) error {
	p := pagination.FromContext(c)
	log, total, err := h.manager.DeliveryLog(c.Request().Context(), c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(log, total, p))
}

func (h *Handler) pause(c echo.Context) error {
	if err := h.manager.Pause(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": endpointPaused})
}

func (h *Handler) resume(c echo.Context) error {
	if err := h.manager.Resume(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": endpointActive})
}

func (h *Handler) retry(c echo.Context) error {
	d, err := h.manager.Retry(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, d)
	case errors.Is(err, ErrDeliveryNotFound) || errors.Is(err, ErrEndpointNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		// Exhausted attempts and undecodable payloads are state errors,
		// not lookup failures.
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
}
