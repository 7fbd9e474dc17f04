package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/progress"
	"github.com/JakeFAU/addrcrawl/internal/storage/memory"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

// TestStoreSinkPersistsEvents ensures item events are collapsed per site before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now},
		{
			RunID:   runID,
			Stage:   progress.StageItemDone,
			Site:    "example.com",
			Outcome: crawler.OutcomeDownloaded,
			Unique:  true,
			Bytes:   100,
			TS:      now.Add(time.Second),
		},
		{
			RunID:   runID,
			Stage:   progress.StageItemDone,
			Site:    "example.com",
			Outcome: crawler.OutcomeDuplicate,
			TS:      now.Add(2 * time.Second),
		},
		{
			RunID:   runID,
			Stage:   progress.StageItemDone,
			Site:    "other.example",
			Outcome: crawler.OutcomeRejected,
			Unique:  true,
			TS:      now.Add(2 * time.Second),
		},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(3 * time.Second), Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	run, err := repo.GetRun(context.Background(), runUUID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)

	sites, err := repo.ListRunSites(context.Background(), runUUID, 10, 0)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	bySite := map[string]store.SiteStats{}
	for _, s := range sites {
		bySite[s.Site] = s
	}
	got := bySite["example.com"]
	assert.Equal(t, int64(2), got.Items)
	assert.Equal(t, int64(1), got.Unique)
	assert.Equal(t, int64(1), got.Downloaded)
	assert.Equal(t, int64(100), got.Bytes)
	assert.True(t, got.LastUpdate.Equal(now.Add(2*time.Second)))
	assert.Equal(t, int64(1), bySite["other.example"].Unique)
}

// TestStoreSinkCanceledRun marks the run canceled and keeps the note.
func TestStoreSinkCanceledRun(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunCanceled, TS: time.Now(), Note: "interrupted"},
	}))

	require.Len(t, repo.finishes, 1)
	assert.Equal(t, store.RunCanceled, repo.finishes[0].status)
	require.NotNil(t, repo.finishes[0].note)
	assert.Equal(t, "interrupted", *repo.finishes[0].note)
}

// TestStoreSinkFlushesSitesBeforeFinish keeps per-site rows ahead of the terminal status write.
func TestStoreSinkFlushesSitesBeforeFinish(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageItemDone, Site: "a.example", Outcome: crawler.OutcomeMalformed, TS: now},
		{RunID: runID, Stage: progress.StageRunDone, TS: now},
	}))

	assert.Equal(t, []string{"site", "finish"}, repo.calls)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeProgressRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "start run")

	err = sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageItemDone, Site: "a.example", Outcome: crawler.OutcomeDuplicate, TS: time.Now()},
	})
	require.ErrorContains(t, err, "upsert site stats")
}

// TestStoreSinkNilRepository is a no-op.
func TestStoreSinkNilRepository(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageRunStart}}))
	require.NoError(t, sink.Close(context.Background()))
}

type finishCall struct {
	status store.RunStatus
	note   *string
}

type fakeProgressRepo struct {
	mu       sync.Mutex
	fail     bool
	calls    []string
	finishes []finishCall
}

func (f *fakeProgressRepo) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New(call + " failed")
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeProgressRepo) StartRun(context.Context, uuid.UUID, time.Time) error {
	return f.record("start")
}

func (f *fakeProgressRepo) FinishRun(_ context.Context, _ uuid.UUID, _ time.Time, status store.RunStatus, note *string) error {
	if err := f.record("finish"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes = append(f.finishes, finishCall{status: status, note: note})
	return nil
}

func (f *fakeProgressRepo) UpsertSiteStats(context.Context, uuid.UUID, string, store.SiteDelta, time.Time) error {
	return f.record("site")
}

func (f *fakeProgressRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeProgressRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, nil
}

func (f *fakeProgressRepo) ListRunSites(context.Context, uuid.UUID, int, int) ([]store.SiteStats, error) {
	return nil, nil
}
