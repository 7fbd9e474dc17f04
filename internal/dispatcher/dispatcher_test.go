package dispatcher

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/dedup"
	"github.com/JakeFAU/addrcrawl/internal/queue/memory"
	"github.com/JakeFAU/addrcrawl/internal/stats"
	"github.com/JakeFAU/addrcrawl/internal/worker"
)

func newPool(t *testing.T, q Queue, n int, counters *stats.Counters) []*worker.Worker {
	t.Helper()
	p := worker.NewProcessor(
		worker.Deps{Resolver: malformedOnlyResolver{}, Fetcher: noopFetcher{}},
		worker.Config{RunID: "0190b6a4-0000-7000-8000-000000000001"},
		dedup.NewAddressSet(),
		counters,
		zap.NewNop(),
	)
	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = worker.New(q, p, counters, zap.NewNop())
	}
	return workers
}

// TestDispatcherRunDrainsAfterClose ensures Run returns once the queue is closed and empty.
func TestDispatcherRunDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[string](4)
	counters := stats.NewCounters()
	dispatch := New(q, newPool(t, q, 3, counters))

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, dispatch.Enqueue(context.Background(), "bad line"))
	}
	dispatch.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after queue close")
	}
	assert.Equal(t, int64(20), counters.Completed.Load())
	assert.Equal(t, int64(20), counters.Outcome(crawler.OutcomeMalformed))
}

// TestDispatcherRunStopsOnCancel verifies idle workers exit when ctx ends.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[string](1)
	dispatch := New(q, newPool(t, q, 2, stats.NewCounters()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[string](1)
	dispatch := New(q, nil)
	dispatch.Close()

	err := dispatch.Enqueue(context.Background(), "http://a.example/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrQueueClosed))
	assert.Contains(t, err.Error(), "queue enqueue")
}

type malformedOnlyResolver struct{}

func (malformedOnlyResolver) Resolve(context.Context, string) ([]netip.Addr, error) {
	return nil, errors.New("unexpected resolve")
}

type noopFetcher struct{}

func (noopFetcher) Probe(context.Context, string) (crawler.ProbeResult, error) {
	return crawler.ProbeResult{}, errors.New("unexpected probe")
}

func (noopFetcher) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("unexpected download")
}
