package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atangai/atang/internal/assistant/decode"
	"github.com/atangai/atang/internal/assistant/flow"
	"github.com/atangai/atang/internal/session"
)

// ChatHandler submits user input to a session. Turns the engine answers
// locally come back as JSON; chat turns stream decode steps as SSE.
type ChatHandler struct {
	logger *slog.Logger
	store  *session.Store
}

func NewChatHandler(log *slog.Logger, store *session.Store) *ChatHandler {
	return &ChatHandler{
		logger: log.With(slog.String("handler", "chat")),
		store:  store,
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/widget/sessions/:id/messages", h.Send)
}

func (h *ChatHandler) Send(c echo.Context) error {
	engine, ok := h.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, sessionUnknownNotice)
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, flow.EmptyInputNotice)
	}

	turn, err := engine.SubmitInput(req.Message)
	if err != nil {
		return submitError(err)
	}

	if turn.Kind != flow.TurnStream {
		return c.JSON(http.StatusOK, TurnResponse{
			Kind:     string(turn.Kind),
			State:    engine.State(),
			Messages: turn.Replies,
		})
	}

	return h.relayStream(c, turn.Stream)
}

// relayStream drives the backend stream and forwards each decode step as an
// SSE frame. Closing the widget must not abort the in-flight request, so
// the stream runs detached from the request context; a broken SSE
// connection only stops the relay, the engine still receives every step.
func (h *ChatHandler) relayStream(c echo.Context, stream *flow.StreamSession) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	writable := true
	emit := func(frame StreamFrame) {
		if !writable {
			return
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", data)); err != nil {
			writable = false
			return
		}
		writer.Flush()
		flusher.Flush()
	}

	ctx := context.WithoutCancel(c.Request().Context())
	err := stream.Run(ctx, func(step decode.Step) {
		emit(StreamFrame{VisibleText: step.VisibleText, Attachments: step.Attachments})
	})
	if err != nil {
		emit(StreamFrame{Error: flow.ApologyText})
	}

	if writable {
		writer.WriteString("data: [DONE]\n\n")
		writer.Flush()
		flusher.Flush()
	}
	return nil
}

func submitError(err error) error {
	switch {
	case errors.Is(err, flow.ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, flow.EmptyInputNotice)
	case errors.Is(err, flow.ErrPersonaRequired):
		return echo.NewHTTPError(http.StatusConflict, flow.PickPersonaNotice)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Terjadi kesalahan")
	}
}
