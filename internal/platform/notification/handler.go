package notification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes notice dispatch and history over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates a Handler for the given manager.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes binds the notification routes onto g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/notifications/send", h.send)
	g.POST("/notifications/send-template", h.sendTemplate)
	g.GET("/notifications/templates", h.templates)
	g.GET("/notifications/stats", h.stats)
	g.GET("/notifications/:id", h.get)
	g.GET("/notifications", h.history)
	g.POST("/notifications/:id/retry", h.retry)
}

type noticeRequest struct {
	Channel  Channel           `json:"channel"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Metadata map[string]string `json:"metadata"`
}

// send dispatches an ad-hoc notice. Delivery failures still answer 201:
// the notice was recorded and carries its status and failure.
func (h *Handler) send(c echo.Context) error {
	var req noticeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}

	n := &Notice{
		Channel:  req.Channel,
		To:       req.To,
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: req.Priority,
		Metadata: req.Metadata,
	}
	h.manager.Send(c.Request().Context(), n)
	return c.JSON(http.StatusCreated, n)
}

type templateRequest struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Fields   map[string]string `json:"fields"`
}

func (h *Handler) sendTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}

	n, err := h.manager.SendFromTemplate(c.Request().Context(), req.Template, req.Fields, req.To)
	if err != nil && n == nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) templates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Templates())
}

func (h *Handler) get(c echo.Context) error {
	n, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) history(c echo.Context) error {
	to := c.QueryParam("recipient")
	if to == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient is required")
	}
	list, err := h.manager.History(c.Request().Context(), to, 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

// retry re-dispatches a failed notice. A delivery that fails again still
// answers 200; the recorded state carries the new failure.
func (h *Handler) retry(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	err := h.manager.Retry(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	n, _ := h.manager.Get(ctx, id)
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
