package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
	"github.com/JakeFAU/tululu-archiver/internal/progress/sinks"
)

func newTestServer(t *testing.T) (*Server, *sinks.Tally, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	tally := sinks.NewTally()
	srv, err := NewServer(Options{Registry: reg, Progress: tally})
	require.NoError(t, err)
	return srv, tally, reg
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestServerProgressReflectsTally(t *testing.T) {
	t.Parallel()

	srv, tally, _ := newTestServer(t)
	runID := progress.UUIDToBytes(uuid.New())
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tally.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: ts, Stage: progress.StageRunStart},
		{RunID: runID, TS: ts, Stage: progress.StagePageStart, Page: 5},
		{RunID: runID, TS: ts, Stage: progress.StageBookArchived, Page: 5, URL: "https://tululu.org/b1/"},
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap sinks.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 5, snap.CurrentPage)
	assert.Equal(t, 1, snap.BooksSaved)
}

func TestServerMetricsExposeRegistry(t *testing.T) {
	t.Parallel()

	srv, _, reg := newTestServer(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "archiver_test_total 1")
	assert.Contains(t, body, `archiver_http_requests_total{code="200",method="GET"}`)
}

func TestServerStartAndShutdown(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	require.NoError(t, srv.Start())
	require.Error(t, srv.Start(), "second start must fail")

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestNewServerValidates(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Options{Progress: sinks.NewTally()})
	require.Error(t, err)
	_, err = NewServer(Options{Registry: prometheus.NewRegistry()})
	require.Error(t, err)

	idle, _, _ := newTestServer(t)
	require.NoError(t, idle.Shutdown(context.Background()))
	assert.Empty(t, idle.Addr())
}
