package echoapi

import (
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/malipo/core"
)

func Test_appHTTPErrorHandler_shutdownError(t *testing.T) {
	ts := setupServer(t)
	srv := ts.app.(*server)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ctx := srv.app.NewContext(req, rec)

	srv.app.HTTPErrorHandler(core.NewShutdownError("integrity error"), ctx)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	select {
	case sig := <-srv.ShutdownSignal():
		assert.Equal(t, syscall.SIGTERM, sig)
	default:
		t.Error("no shutdown signal raised")
	}

	// an ordinary server error must not trigger a shutdown
	rec = httptest.NewRecorder()
	ctx = srv.app.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	srv.app.HTTPErrorHandler(assert.AnError, ctx)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	select {
	case <-srv.ShutdownSignal():
		t.Error("unexpected shutdown signal")
	default:
	}
}
