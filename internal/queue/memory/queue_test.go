package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[string](1)
	result := make(chan string, 1)

	go func() {
		item, ok := q.Dequeue(context.Background())
		if ok {
			result <- item
		}
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), "http://a.example"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case got := <-result:
		if got != "http://a.example" {
			t.Fatalf("expected http://a.example, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](8)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	require.Equal(t, 8, q.Len())
	for i := 0; i < 8; i++ {
		got, ok := q.Dequeue(ctx)
		require.True(t, ok)
		require.Equal(t, i, got)
	}
}

func TestQueueBackpressureBlocksProducer(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(ctx, 3)
	}()

	select {
	case <-done:
		t.Fatal("enqueue on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	got, ok := q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, 1, got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after space freed")
	}
}

func TestQueueCloseDrainsThenReportsExhaustion(t *testing.T) {
	t.Parallel()

	q := NewQueue[string](3)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(ctx, "c"), crawler.ErrQueueClosed)

	got, ok := q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, "a", got)
	got, ok = q.Dequeue(ctx)
	require.True(t, ok)
	require.Equal(t, "b", got)
	_, ok = q.Dequeue(ctx)
	require.False(t, ok)
}

func TestQueueCloseEmptyReleasesConsumers(t *testing.T) {
	t.Parallel()

	q := NewQueue[string](1)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Dequeue(context.Background())
			assert.False(t, ok)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumers hung on closed empty queue")
	}
}

func TestQueueCloseUnblocksPendingEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](1)
	require.NoError(t, q.Enqueue(context.Background(), 1))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), 2)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, crawler.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release blocked enqueue")
	}
}

func TestQueueCancelation(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Dequeue(ctx)
	require.False(t, ok)

	require.NoError(t, q.Enqueue(context.Background(), 1))
	err := q.Enqueue(ctx, 2)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, "enqueue canceled: context canceled", err.Error())

	// A canceled consumer does not take buffered work.
	_, ok = q.Dequeue(ctx)
	require.False(t, ok)
	require.Equal(t, 1, q.Len())
}

func TestNewQueueMinimumCapacity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, NewQueue[int](0).Cap())
	require.Equal(t, 5, NewQueue[int](5).Cap())
}
