package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/atangai/atang/internal/assistant/decode"
	"github.com/atangai/atang/internal/assistant/flow"
	"github.com/atangai/atang/internal/session"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket frame types.
const (
	wsTypeHello    = "hello"
	wsTypeHelloAck = "hello_ack"
	wsTypeSend     = "send"
	wsTypeTurn     = "turn"
	wsTypeDelta    = "delta"
	wsTypeFinal    = "final"
	wsTypeError    = "error"
)

type wsInbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type wsOutbound struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Turn      *TurnResponse `json:"turn,omitempty"`
	Frame     *StreamFrame  `json:"frame,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// WSHandler is the WebSocket transport for the widget: the same engine
// operations as the HTTP API, with decode steps pushed as delta frames.
type WSHandler struct {
	logger   *slog.Logger
	store    *session.Store
	upgrader websocket.Upgrader
}

func NewWSHandler(log *slog.Logger, store *session.Store) *WSHandler {
	return &WSHandler{
		logger: log.With(slog.String("handler", "widget_ws")),
		store:  store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The widget is embedded on arbitrary school pages.
				return true
			},
		},
	}
}

func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/widget/ws", h.Handle)
}

// Handle upgrades the connection and serves one widget client. Reads and
// writes stay on this goroutine, so frames are naturally ordered.
func (h *WSHandler) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return err
	}
	defer conn.Close()

	var engine *flow.Engine
	var sessionID string

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return nil
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(conn, wsOutbound{Type: wsTypeError, Message: "pesan tidak dikenal"})
			continue
		}

		switch msg.Type {
		case wsTypeHello:
			sessionID, engine = h.bindSession(msg.SessionID)
			h.send(conn, wsOutbound{Type: wsTypeHelloAck, SessionID: sessionID})
		case wsTypeSend:
			if engine == nil {
				h.send(conn, wsOutbound{Type: wsTypeError, Message: "kirim hello dulu"})
				continue
			}
			h.handleSend(conn, sessionID, engine, msg.Message)
		default:
			h.send(conn, wsOutbound{Type: wsTypeError, Message: "pesan tidak dikenal"})
		}
	}
}

// bindSession resolves an existing session or creates a fresh one.
func (h *WSHandler) bindSession(id string) (string, *flow.Engine) {
	if id != "" {
		if engine, ok := h.store.Get(id); ok {
			return id, engine
		}
	}
	return h.store.Create()
}

func (h *WSHandler) handleSend(conn *websocket.Conn, sessionID string, engine *flow.Engine, text string) {
	turn, err := engine.SubmitInput(text)
	if err != nil {
		h.send(conn, wsOutbound{Type: wsTypeError, SessionID: sessionID, Message: submitNotice(err)})
		return
	}

	if turn.Kind != flow.TurnStream {
		h.send(conn, wsOutbound{
			Type:      wsTypeTurn,
			SessionID: sessionID,
			Turn: &TurnResponse{
				Kind:     string(turn.Kind),
				State:    engine.State(),
				Messages: turn.Replies,
			},
		})
		return
	}

	var last decode.Step
	streamErr := turn.Stream.Run(context.Background(), func(step decode.Step) {
		last = step
		h.send(conn, wsOutbound{
			Type:      wsTypeDelta,
			SessionID: sessionID,
			Frame:     &StreamFrame{VisibleText: step.VisibleText, Attachments: step.Attachments},
		})
	})
	if streamErr != nil {
		h.send(conn, wsOutbound{
			Type:      wsTypeError,
			SessionID: sessionID,
			Message:   flow.ApologyText,
		})
		return
	}
	h.send(conn, wsOutbound{
		Type:      wsTypeFinal,
		SessionID: sessionID,
		Frame:     &StreamFrame{VisibleText: last.VisibleText, Attachments: last.Attachments},
	})
}

func (h *WSHandler) send(conn *websocket.Conn, out wsOutbound) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(out); err != nil {
		h.logger.Warn("websocket write failed", slog.Any("error", err))
	}
}

func submitNotice(err error) string {
	switch err {
	case flow.ErrEmptyInput:
		return flow.EmptyInputNotice
	case flow.ErrPersonaRequired:
		return flow.PickPersonaNotice
	default:
		return "Terjadi kesalahan"
	}
}
