package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeHandler struct {
	path string
	fn   echo.HandlerFunc
}

func (h *routeHandler) Register(e *echo.Echo) {
	e.GET(h.path, h.fn)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerRegistersHandlers(t *testing.T) {
	t.Parallel()

	srv := NewServer(":0", testLogger(), []Handler{
		&routeHandler{path: "/a", fn: func(c echo.Context) error {
			return c.String(http.StatusOK, "a")
		}},
		nil,
		&routeHandler{path: "/b", fn: func(c echo.Context) error {
			return c.String(http.StatusOK, "b")
		}},
	})

	for _, path := range []string{"/a", "/b"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerRecoversFromPanic(t *testing.T) {
	t.Parallel()

	srv := NewServer(":0", testLogger(), []Handler{
		&routeHandler{path: "/boom", fn: func(c echo.Context) error {
			panic("boom")
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerAllowsCrossOriginWidget(t *testing.T) {
	t.Parallel()

	srv := NewServer(":0", testLogger(), []Handler{
		&routeHandler{path: "/widget/sessions", fn: func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/widget/sessions", nil)
	req.Header.Set(echo.HeaderOrigin, "https://sekolah.example")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
