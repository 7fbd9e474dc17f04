package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

type countingFetcher struct {
	probes    atomic.Int64
	downloads atomic.Int64
}

func (f *countingFetcher) Probe(context.Context, string) (crawler.ProbeResult, error) {
	f.probes.Add(1)
	return crawler.ProbeResult{StatusCode: 200, ContentLength: 10}, nil
}

func (f *countingFetcher) Download(context.Context, string) ([]byte, error) {
	f.downloads.Add(1)
	return []byte("body"), nil
}

func TestWrapWithoutLimitReturnsNext(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	assert.Same(t, next, Wrap(next, Config{}))
}

func TestFetcherSpacesRequests(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, Config{RPS: 50, Burst: 1})

	ctx := context.Background()
	start := time.Now()
	for range 3 {
		_, err := f.Probe(ctx, "http://a.example/")
		require.NoError(t, err)
		_, err = f.Download(ctx, "http://a.example/")
		require.NoError(t, err)
	}

	// Six requests at 50 rps with a burst of one take at least five gaps.
	assert.GreaterOrEqual(t, time.Since(start), 5*Config{RPS: 50}.Interval()-5*time.Millisecond)
	assert.Equal(t, int64(3), next.probes.Load())
	assert.Equal(t, int64(3), next.downloads.Load())
}

func TestFetcherCanceledWait(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, Config{RPS: 0.001, Burst: 1})

	_, err := f.Probe(context.Background(), "http://a.example/")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Download(ctx, "http://a.example/")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, next.downloads.Load())
}

func TestConfigInterval(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Config{}.Interval())
	assert.Equal(t, 100*time.Millisecond, Config{RPS: 10}.Interval())
}
