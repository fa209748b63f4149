package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/atangai/atang/internal/backend"
)

// SearchHandler proxies the image-search endpoints to the backend.
type SearchHandler struct {
	logger  *slog.Logger
	backend *backend.Client
}

func NewSearchHandler(log *slog.Logger, client *backend.Client) *SearchHandler {
	return &SearchHandler{
		logger:  log.With(slog.String("handler", "search")),
		backend: client,
	}
}

func (h *SearchHandler) Register(e *echo.Echo) {
	e.GET("/search", h.Search)
	e.GET("/images", h.DefaultImages)
}

func (h *SearchHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, searchQueryNotice)
	}

	resp, err := h.backend.Search(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("search failed", slog.String("query", q), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "Gagal mencari gambar")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SearchHandler) DefaultImages(c echo.Context) error {
	resp, err := h.backend.DefaultImages(c.Request().Context())
	if err != nil {
		h.logger.Error("default images failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "Gagal memuat gambar")
	}
	return c.JSON(http.StatusOK, resp)
}
