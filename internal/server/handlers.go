// Package server provides the HTTP API over the weather data-access layer.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"weatherdesk/internal/core"
	"weatherdesk/internal/service"
)

// Service is what the handlers need from the service layer.
type Service interface {
	Lookup(ctx context.Context, name string) (*service.Result, error)
	Refresh(ctx context.Context) (*service.Result, error)
	History(ctx context.Context) (*service.HistoryView, error)
	Provider() core.Provider
}

// Handler holds the HTTP handlers
type Handler struct {
	svc Service
}

// NewHandler creates a new handler over svc
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ResolveCity handles GET /v1/cities?name=
func (h *Handler) ResolveCity(c echo.Context) error {
	city, err := h.svc.Provider().ResolveCity(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, city)
}

// CurrentConditions handles GET /v1/cities/:id/now
func (h *Handler) CurrentConditions(c echo.Context) error {
	now, err := h.svc.Provider().CurrentConditions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, now)
}

// Forecast handles GET /v1/cities/:id/forecast
func (h *Handler) Forecast(c echo.Context) error {
	days, err := h.svc.Provider().Forecast(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, days)
}

// LifeIndices handles GET /v1/cities/:id/indices
func (h *Handler) LifeIndices(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return handleError(c, core.NewInvalidInputError("city id is required"))
	}
	return c.JSON(http.StatusOK, h.svc.Provider().AllLifeIndices(c.Request().Context(), id))
}

// Lookup handles GET /v1/lookup?name=
func (h *Handler) Lookup(c echo.Context) error {
	res, err := h.svc.Lookup(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Refresh handles POST /v1/refresh
func (h *Handler) Refresh(c echo.Context) error {
	res, err := h.svc.Refresh(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// History handles GET /v1/history
func (h *Handler) History(c echo.Context) error {
	view, err := h.svc.History(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// handleError converts weather errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var weatherErr *core.WeatherError
	if errors.As(err, &weatherErr) {
		return c.JSON(weatherErr.HTTPStatusCode(), weatherErr.ToJSON())
	}

	slog.Error("unexpected handler error",
		"path", c.Request().URL.Path,
		"request_id", core.GetRequestID(c.Request().Context()),
		"error", err,
	)
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
