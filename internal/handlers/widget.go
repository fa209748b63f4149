package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atangai/atang/internal/assistant"
	"github.com/atangai/atang/internal/assistant/flow"
	"github.com/atangai/atang/internal/attachment"
	"github.com/atangai/atang/internal/session"
)

// WidgetHandler exposes the widget session lifecycle: creation, transcript,
// persona selection, attachment handling and restart.
type WidgetHandler struct {
	logger *slog.Logger
	store  *session.Store
}

func NewWidgetHandler(log *slog.Logger, store *session.Store) *WidgetHandler {
	return &WidgetHandler{
		logger: log.With(slog.String("handler", "widget")),
		store:  store,
	}
}

func (h *WidgetHandler) Register(e *echo.Echo) {
	group := e.Group("/widget/sessions")
	group.POST("", h.Create)
	group.GET("/:id", h.Describe)
	group.GET("/:id/messages", h.Messages)
	group.POST("/:id/persona", h.ChoosePersona)
	group.POST("/:id/persona/change", h.ChangePersona)
	group.POST("/:id/select", h.SelectAttachment)
	group.POST("/:id/drop", h.Drop)
	group.POST("/:id/restart", h.Restart)
	group.DELETE("/:id", h.Close)
}

func (h *WidgetHandler) Create(c echo.Context) error {
	id, engine := h.store.Create()
	return c.JSON(http.StatusCreated, sessionResponse(id, engine))
}

func (h *WidgetHandler) Describe(c echo.Context) error {
	id := c.Param("id")
	engine, ok := h.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}
	return c.JSON(http.StatusOK, sessionResponse(id, engine))
}

func (h *WidgetHandler) Messages(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"messages": engine.Messages(),
	})
}

func (h *WidgetHandler) ChoosePersona(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}

	var req PersonaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidPersonaNotice)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidPersonaNotice)
	}

	persona, ok := assistant.ParsePersona(req.Persona)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, invalidPersonaNotice)
	}
	if err := engine.ChoosePersona(persona); err != nil {
		return personaError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"state":   engine.State(),
		"context": engine.Context(),
	})
}

func (h *WidgetHandler) ChangePersona(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}
	if err := engine.ChangePersona(); err != nil {
		return personaError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"state":    engine.State(),
		"personas": assistant.Personas(),
	})
}

func (h *WidgetHandler) SelectAttachment(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}

	var req SelectAttachmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Lampiran tidak valid")
	}
	if req.Attachment.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Lampiran tidak valid")
	}

	ack := engine.SelectAttachment(req.Attachment)
	return c.JSON(http.StatusOK, map[string]any{
		"message": ack,
		"context": engine.Context(),
	})
}

// Drop runs the normalizer over a drag/drop payload. An unrecognizable
// payload is silently ignored: no transcript message, no error body.
func (h *WidgetHandler) Drop(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}

	var payload attachment.DropPayload
	if err := c.Bind(&payload); err != nil {
		return c.NoContent(http.StatusNoContent)
	}

	res, ok := attachment.Normalize(payload)
	if !ok {
		h.logger.Debug("drop payload not recognized")
		return c.NoContent(http.StatusNoContent)
	}

	ack := engine.AttachDropped(res.Attachment, res.Acknowledgment())
	return c.JSON(http.StatusOK, map[string]any{
		"message": ack,
		"context": engine.Context(),
	})
}

func (h *WidgetHandler) Restart(c echo.Context) error {
	id := c.Param("id")
	engine, ok := h.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}
	engine.Restart()
	return c.JSON(http.StatusOK, sessionResponse(id, engine))
}

func (h *WidgetHandler) Close(c echo.Context) error {
	h.store.Remove(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func sessionResponse(id string, engine *flow.Engine) SessionResponse {
	return SessionResponse{
		SessionID: id,
		State:     engine.State(),
		Context:   engine.Context(),
		Messages:  engine.Messages(),
		Personas:  assistant.Personas(),
	}
}

func personaError(err error) error {
	switch {
	case errors.Is(err, flow.ErrInvalidPersona):
		return echo.NewHTTPError(http.StatusBadRequest, invalidPersonaNotice)
	case errors.Is(err, flow.ErrWrongState):
		return echo.NewHTTPError(http.StatusConflict, wrongStateNotice)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Terjadi kesalahan")
	}
}
