package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atangai/atang/internal/assistant"
	"github.com/atangai/atang/internal/assistant/flow"
	"github.com/atangai/atang/internal/session"
)

type stubStreamer struct {
	chunks []string
	err    error
}

func (s *stubStreamer) StreamChat(_ context.Context, _ assistant.ChatRequest, onChunk func(string)) error {
	for _, c := range s.chunks {
		onChunk(c)
	}
	return s.err
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWidgetFixture(streamer flow.Streamer) (*echo.Echo, *session.Store, *WidgetHandler) {
	e := newTestEcho()
	store := session.NewStore(testLogger(), streamer, time.Minute)
	h := NewWidgetHandler(testLogger(), store)
	h.Register(e)
	NewChatHandler(testLogger(), store).Register(e)
	return e, store, h
}

func doJSON(e *echo.Echo, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/widget/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func advanceToChatting(t *testing.T, e *echo.Echo, id string) {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/messages", `{"message":"Budi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/persona", `{"persona":"Profesor"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWidgetCreateSession(t *testing.T) {
	t.Parallel()

	e, _, _ := newWidgetFixture(&stubStreamer{})
	rec := doJSON(e, http.MethodPost, "/widget/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, assistant.StateAwaitingName, resp.State)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, flow.GreetingText, resp.Messages[0].Text)
	assert.Len(t, resp.Personas, 4)
}

func TestWidgetUnknownSession(t *testing.T) {
	t.Parallel()

	e, _, _ := newWidgetFixture(&stubStreamer{})
	rec := doJSON(e, http.MethodGet, "/widget/sessions/tidak-ada", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWidgetPersonaFlow(t *testing.T) {
	t.Parallel()

	e, _, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)

	// Persona selection before the name is rejected.
	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/persona", `{"persona":"Profesor"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/messages", `{"message":"Budi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/persona", `{"persona":"Bukan Persona"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/persona", `{"persona":"Kakak Pintar"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatting")

	rec = doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/persona/change", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "awaiting_persona")
}

func TestWidgetDropRecognized(t *testing.T) {
	t.Parallel()

	e, store, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)
	advanceToChatting(t, e, id)

	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/drop",
		`{"internal_json":"{\"type\":\"image\",\"url\":\"http://img/a.jpg\",\"prompt\":\"sawah\",\"clipScore\":0.5}"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Kita bahas gambar")

	engine, ok := store.Get(id)
	require.True(t, ok)
	require.NotNil(t, engine.Context().ActiveImage)
	assert.Equal(t, "http://img/a.jpg", engine.Context().ActiveImage.URL)
}

func TestWidgetDropUnrecognizedSilentlyIgnored(t *testing.T) {
	t.Parallel()

	e, store, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)
	advanceToChatting(t, e, id)

	engine, _ := store.Get(id)
	before := len(engine.Messages())

	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/drop", `{"html":"<p>tanpa gambar</p>"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, engine.Messages(), before)
	assert.Nil(t, engine.Context().ActiveImage)
}

func TestWidgetSelectAttachment(t *testing.T) {
	t.Parallel()

	e, store, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)
	advanceToChatting(t, e, id)

	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/select",
		`{"attachment":{"url":"http://img/b.jpg","prompt":"candi","clipScore":0.7}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	engine, _ := store.Get(id)
	require.NotNil(t, engine.Context().ActiveImage)
	assert.Equal(t, "candi", engine.Context().ActiveImage.Prompt)
}

func TestWidgetRestart(t *testing.T) {
	t.Parallel()

	e, store, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)
	advanceToChatting(t, e, id)

	rec := doJSON(e, http.MethodPost, "/widget/sessions/"+id+"/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)

	engine, _ := store.Get(id)
	assert.Equal(t, assistant.StateAwaitingName, engine.State())
	assert.Len(t, engine.Messages(), 1)
}

func TestWidgetClose(t *testing.T) {
	t.Parallel()

	e, store, _ := newWidgetFixture(&stubStreamer{})
	id := createSession(t, e)

	rec := doJSON(e, http.MethodDelete, "/widget/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := store.Get(id)
	assert.False(t, ok)
}
