package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

// RunStore keeps runs and site stats in memory. It implements
// crawler.RunStore and store.ProgressRepository for single-process use.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	sites map[uuid.UUID]map[string]store.SiteStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		sites: make(map[uuid.UUID]map[string]store.SiteStats),
	}
}

// StoreRun records the final aggregate of a run.
func (s *RunStore) StoreRun(_ context.Context, result crawler.Result) error {
	id, err := uuid.Parse(result.RunID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	status := store.RunSucceeded
	if result.Canceled {
		status = store.RunCanceled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.runs[id]
	run.ID = id
	run.Source = result.Source
	run.Workers = result.Workers
	run.Status = status
	run.StartedAt = result.StartedAt
	run.FinishedAt = pointerTime(result.FinishedAt)
	run.TotalSites = result.TotalSites
	run.TotalUnique = result.TotalUniqueSites
	run.TotalResponsive = result.TotalResponsiveSites
	run.TotalUnfound = result.TotalUnfound
	run.TotalBytes = result.TotalBytesDownloaded
	s.runs[id] = run
	return nil
}

// StartRun inserts a running row unless the run is already known.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.Run{ID: runID, Status: store.RunRunning, StartedAt: startedAt}
	return nil
}

// FinishRun marks a known run terminal.
func (s *RunStore) FinishRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	note *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.FinishedAt = pointerTime(finishedAt)
	run.Note = note
	s.runs[runID] = run
	return nil
}

// UpsertSiteStats adds delta to the (run, site) aggregate.
func (s *RunStore) UpsertSiteStats(
	_ context.Context,
	runID uuid.UUID,
	site string,
	delta store.SiteDelta,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySite := s.sites[runID]
	if bySite == nil {
		bySite = make(map[string]store.SiteStats)
		s.sites[runID] = bySite
	}
	stat := bySite[site]
	stat.RunID = runID
	stat.Site = site
	stat.Items += delta.Items
	stat.Unique += delta.Unique
	stat.Downloaded += delta.Downloaded
	stat.Bytes += delta.Bytes
	if at.After(stat.LastUpdate) {
		stat.LastUpdate = at
	}
	bySite[site] = stat
	return nil
}

// GetRun returns one run or store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunSites returns per-site aggregates, most recently updated first.
func (s *RunStore) ListRunSites(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	s.mu.RLock()
	out := make([]store.SiteStats, 0, len(s.sites[runID]))
	for _, stat := range s.sites[runID] {
		out = append(out, stat)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].Site < out[j].Site
		}
		return out[i].LastUpdate.After(out[j].LastUpdate)
	})
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func pointerTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	ts := t
	return &ts
}
