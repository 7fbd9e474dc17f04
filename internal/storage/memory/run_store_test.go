package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.StartRun(ctx, id, start))
	require.NoError(t, s.StartRun(ctx, id, start.Add(time.Hour)), "start is idempotent")

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)
	require.Equal(t, start, run.StartedAt)

	require.NoError(t, s.FinishRun(ctx, id, start.Add(time.Minute), store.RunSucceeded, nil))
	require.NoError(t, s.StoreRun(ctx, crawler.Result{
		RunID:            id.String(),
		Source:           "urls.txt",
		Workers:          4,
		TotalSites:       3,
		TotalUniqueSites: 1,
		StartedAt:        start,
		FinishedAt:       start.Add(time.Minute),
	}))

	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunSucceeded, run.Status)
	require.Equal(t, int64(3), run.TotalSites)
	require.Equal(t, "urls.txt", run.Source)
	require.NotNil(t, run.FinishedAt)
}

func TestRunStoreErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()

	_, err := s.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.FinishRun(ctx, uuid.New(), time.Now(), store.RunCanceled, nil), store.ErrNotFound)
	require.Error(t, s.StoreRun(ctx, crawler.Result{RunID: "bad"}))
}

func TestRunStoreListRunsFiltersAndPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Unix(1700000000, 0).UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, s.StartRun(ctx, id, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, s.FinishRun(ctx, ids[0], base, store.RunCanceled, nil))

	all, err := s.ListRuns(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].ID, "newest first")

	running := store.RunRunning
	filtered, err := s.ListRuns(ctx, &running, 1, 1)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, ids[1], filtered[0].ID)

	empty, err := s.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRunStoreSiteStatsAccumulate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	id := uuid.New()
	t0 := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.UpsertSiteStats(ctx, id, "a.example", store.SiteDelta{Items: 1, Unique: 1}, t0))
	require.NoError(t, s.UpsertSiteStats(ctx, id, "a.example", store.SiteDelta{Items: 1, Downloaded: 1, Bytes: 40}, t0.Add(time.Second)))
	require.NoError(t, s.UpsertSiteStats(ctx, id, "b.example", store.SiteDelta{Items: 1}, t0))

	sites, err := s.ListRunSites(ctx, id, 10, 0)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, store.SiteStats{
		RunID:      id,
		Site:       "a.example",
		LastUpdate: t0.Add(time.Second),
		Items:      2,
		Unique:     1,
		Downloaded: 1,
		Bytes:      40,
	}, sites[0])
}
