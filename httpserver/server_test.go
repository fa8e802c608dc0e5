package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, handler *Handler, admin *AdminHandler) *Server {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLogger(),
		EnablePprof:              true,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler, admin)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_HealthAndDrain(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	router := srv.getRouter()

	w := get(t, router, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)

	w = get(t, router, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, w.Body.String())
	assert.False(t, srv.IsReady())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/readyz").Code)

	w = get(t, router, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, w.Body.String())

	w = get(t, router, "/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
	assert.True(t, srv.IsReady())

	w = get(t, router, "/undrain")
	assert.JSONEq(t, `{"status":"already ready"}`, w.Body.String())
}

func TestServer_Pprof(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusOK, get(t, srv.getRouter(), "/debug/pprof/").Code)
}

func TestServer_NoAdminRoutesWithoutAdmin(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, srv.getRouter(), "/admin/status").Code)
}
