package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/engine"
	"github.com/JakeFAU/addrcrawl/internal/stats"
	"github.com/JakeFAU/addrcrawl/internal/storage/memory"
)

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(Config{}, nil, nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ready := NewServer(Config{}, nil, nil, func(context.Context) error { return nil }, nil)
	require.Equal(t, http.StatusOK, serve(t, ready, "/readyz").Code)

	notReady := NewServer(Config{}, nil, nil, func(context.Context) error { return errors.New("db down") }, nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(t, notReady, "/readyz").Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(Config{}, nil, nil, nil, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	live := &fakeLive{ok: true, stats: engine.LiveStats{
		RunID:   "run-1",
		Workers: 4,
		Running: true,
		Queued:  2,
		Elapsed: 1500 * time.Millisecond,
		Stats: stats.Snapshot{
			Sites:     10,
			Unique:    6,
			Completed: 7,
			InFlight:  3,
			Bytes:     900,
			Outcomes:  map[crawler.Outcome]int64{crawler.OutcomeDownloaded: 4},
		},
	}}
	rec := serve(t, NewServer(Config{}, live, nil, nil, nil), "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statsDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.True(t, body.Running)
	assert.Equal(t, int64(1500), body.ElapsedMS)
	assert.Equal(t, 2, body.Queued)
	assert.Equal(t, int64(3), body.InFlight)
	assert.Equal(t, int64(4), body.Outcomes[crawler.OutcomeDownloaded])
}

func TestServer_StatsUnavailable(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusServiceUnavailable,
		serve(t, NewServer(Config{}, nil, nil, nil, nil), "/v1/stats").Code)
	require.Equal(t, http.StatusNotFound,
		serve(t, NewServer(Config{}, &fakeLive{}, nil, nil, nil), "/v1/stats").Code)
}

func TestServer_RunsRoutes(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	res := crawler.Result{
		RunID:      "0190b6a4-0000-7000-8000-0000000000bb",
		Workers:    2,
		TotalSites: 3,
		StartedAt:  time.Unix(100, 0).UTC(),
		FinishedAt: time.Unix(110, 0).UTC(),
	}
	require.NoError(t, repo.StoreRun(context.Background(), res))
	s := NewServer(Config{}, nil, repo, nil, nil)

	rec := serve(t, s, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, res.RunID, list.Runs[0].ID)
	assert.Equal(t, int64(3), list.Runs[0].TotalSites)

	rec = serve(t, s, "/v1/runs/"+res.RunID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, "/v1/runs/"+res.RunID+"/sites")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sites":[]}`, rec.Body.String())

	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/runs/not-a-uuid").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(Config{APIKey: "secret"}, nil, nil, nil, zap.NewNop())

	require.Equal(t, http.StatusForbidden, serve(t, server, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(t, server, "/healthz?api_key=secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{}, nil, nil, nil, nil)
	require.NotEmpty(t, serve(t, s, "/healthz").Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "given")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "given", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

type fakeLive struct {
	stats engine.LiveStats
	ok    bool
}

func (f *fakeLive) Live() (engine.LiveStats, bool) { return f.stats, f.ok }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
