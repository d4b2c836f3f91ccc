package vault

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/pkg/pagination"
)

// Handler exposes the vault over HTTP.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/vault/documents", h.upload)
	g.GET("/vault/documents", h.search)
	g.GET("/vault/documents/patient/:patientId", h.byPatient)
	g.GET("/vault/documents/hash/:hash", h.byHash)
	g.GET("/vault/documents/:id/metadata", h.metadata)
	g.GET("/vault/documents/:id", h.download)
	g.DELETE("/vault/documents/:id", h.remove)
}

// storeError maps store failures onto HTTP statuses; anything unrecognized
// is a 500.
func storeError(err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrInvalidCategory):
		status = http.StatusBadRequest
	case errors.Is(err, ErrInvalidContentType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	return echo.NewHTTPError(status, err.Error())
}

// sendDocument streams content to the client with a download disposition.
func sendDocument(c echo.Context, rc io.ReadCloser, meta *DocumentMetadata) error {
	defer rc.Close()
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "opening uploaded file")
	}
	defer src.Close()

	meta := DocumentMetadata{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Category:    c.FormValue("category"),
		PatientID:   c.FormValue("patient_id"),
		DeviceID:    c.FormValue("device_id"),
		CreatedBy:   c.FormValue("created_by"),
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	stored, err := h.store.Upload(c.Request().Context(), meta, src)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, stored)
}

func (h *Handler) download(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return sendDocument(c, rc, meta)
}

func (h *Handler) byHash(c echo.Context) error {
	rc, meta, err := h.store.GetByHash(c.Request().Context(), c.Param("hash"))
	if err != nil {
		return storeError(err)
	}
	return sendDocument(c, rc, meta)
}

func (h *Handler) metadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) remove(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) byPatient(c echo.Context) error {
	pg := pagination.FromContext(c)

	items, total, err := h.store.ListByPatient(c.Request().Context(),
		c.Param("patientId"), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return storeError(err)
	}
	if items == nil {
		items = []*DocumentMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := SearchParams{
		PatientID:   c.QueryParam("patient_id"),
		DeviceID:    c.QueryParam("device_id"),
		Category:    c.QueryParam("category"),
		ContentType: c.QueryParam("content_type"),
		FileName:    c.QueryParam("file_name"),
		Limit:       pg.Limit,
		Offset:      pg.Offset,
	}

	for q, dst := range map[string]**time.Time{
		"created_after":  &params.CreatedAfter,
		"created_before": &params.CreatedBefore,
	} {
		v := c.QueryParam(q)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, q+" must be an RFC 3339 timestamp")
		}
		*dst = &ts
	}

	items, total, err := h.store.Search(c.Request().Context(), params)
	if err != nil {
		return storeError(err)
	}
	if items == nil {
		items = []*DocumentMetadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
