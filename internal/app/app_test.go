package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/addrcrawl/internal/config"
	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Crawl.Workers = 2
	cfg.Crawl.ReportIntervalSeconds = 0
	return cfg
}

func buildTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithRegistry(prometheus.NewRegistry()),
	}, opts...)
	a, err := Build(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return a
}

// writeInput writes lines that never reach the network: none of them parse
// as an absolute URL.
func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a url\n\nexample.com/no-scheme\n"), 0o600))
	return path
}

func TestCrawlRecordsRunHistory(t *testing.T) {
	t.Parallel()

	a := buildTestApp(t, testConfig(t))
	result, err := a.Crawl(context.Background(), writeInput(t))
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, int64(3), result.TotalSites)
	assert.Zero(t, result.TotalUniqueSites)
	assert.Equal(t, int64(3), result.Outcomes[crawler.OutcomeMalformed])
	assert.False(t, result.Canceled)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+result.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, result.RunID, run["id"])

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCrawlMissingInput(t *testing.T) {
	t.Parallel()

	a := buildTestApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err := a.Crawl(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.ErrorIs(t, err, crawler.ErrInputUnavailable)
}

func TestBuildLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "bodies")
	cfg.Progress.Enabled = false

	a := buildTestApp(t, cfg)
	require.NoError(t, a.Close(context.Background()))
	assert.DirExists(t, cfg.Storage.LocalDir)
}

func TestBuildFailsOnBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.DB.DSN = "::not a dsn::"

	_, err := Build(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegistry(prometheus.NewRegistry()),
	)
	require.ErrorContains(t, err, "postgres store init failed")
}

func TestServeRequiresListenAddress(t *testing.T) {
	t.Parallel()

	a := buildTestApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.ErrorContains(t, a.Serve(context.Background()), "server.listen")
}

func TestCrawlPublishesResult(t *testing.T) {
	t.Parallel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	dial := func() *grpc.ClientConn {
		conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	admin, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(dial()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(context.Background(), "crawl-results")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.PubSub.ProjectID = "test-project"
	cfg.PubSub.TopicName = "crawl-results"

	a := buildTestApp(t, cfg, WithPubSubOptions(option.WithGRPCConn(dial())))
	result, err := a.Crawl(context.Background(), writeInput(t))
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	assert.Equal(t, result.RunID, body["run_id"])
	assert.InDelta(t, 3.0, body["total_sites"], 1e-9)
}
