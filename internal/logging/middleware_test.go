package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger))
	r.Get("/api/v1/objectives", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("Listing objectives")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/objectives", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "Listing objectives", entries[0]["message"])
	assert.Equal(t, "/api/v1/objectives", entries[0]["path"])
	assert.NotEmpty(t, entries[0]["request_id"])

	completed := entries[1]
	assert.Equal(t, "Request completed", completed["message"])
	assert.Equal(t, float64(http.StatusTeapot), completed["status"])
	assert.Equal(t, http.StatusText(http.StatusTeapot), completed["error"])
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("objective exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/minimize?debug=1", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "objective exploded", entries[0]["error"])
	assert.Equal(t, "debug=1", entries[0]["query"])
	assert.Contains(t, entries[0]["stack"], "runtime/debug")
}

func TestRecoveryPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(New(InfoLevel, &buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, buf.Len())
}
