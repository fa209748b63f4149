package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atangai/atang/internal/backend"
)

type PingHandler struct {
	logger  *slog.Logger
	backend *backend.Client
}

func NewPingHandler(log *slog.Logger, client *backend.Client) *PingHandler {
	return &PingHandler{
		logger:  log.With(slog.String("handler", "ping")),
		backend: client,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health reports both this service and the backend collaborator.
func (h *PingHandler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok", "backend": "ok"}
	if _, err := h.backend.Health(c.Request().Context()); err != nil {
		h.logger.Warn("backend health check failed", slog.Any("error", err))
		status["backend"] = "unreachable"
	}
	return c.JSON(http.StatusOK, status)
}

func (h *PingHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
