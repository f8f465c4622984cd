package opsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reniec/internal/platform/logger"
)

func serveOps(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzAllChecksPass(t *testing.T) {
	s := New(":0", map[string]Check{
		"store":  func(context.Context) error { return nil },
		"rabbit": func(context.Context) error { return nil },
	}, logger.Discard())

	rec := serveOps(t, s, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthzFailingCheck(t *testing.T) {
	s := New(":0", map[string]Check{
		"store":  func(context.Context) error { return nil },
		"rabbit": func(context.Context) error { return errors.New("connection closed") },
	}, logger.Discard())

	rec := serveOps(t, s, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection closed", body["rabbit"])
	_, listed := body["store"]
	assert.False(t, listed, "healthy dependencies are not itemized")
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(":0", nil, logger.Discard())

	rec := serveOps(t, s, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", nil, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ops server did not stop")
	}
}
