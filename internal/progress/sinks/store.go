package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/progress"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

// StoreSink persists run lifecycle and per-site aggregates via a
// store.ProgressRepository. Item events are collapsed per (run, site) within a
// batch so each batch writes at most one row per site.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order: site deltas accumulated before a run's
// terminal event are flushed ahead of it. Repository errors are returned
// wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[siteKey]*siteDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunCanceled:
			if err := s.flush(ctx, pending); err != nil {
				return err
			}
			if err := s.finishRun(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageItemDone:
			recordItem(pending, runID, evt)
		}
	}
	return s.flush(ctx, pending)
}

func (s *StoreSink) finishRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSucceeded
	if evt.Stage == progress.StageRunCanceled {
		status = store.RunCanceled
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.FinishRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.logger.Debug("run finished", zap.Stringer("run_id", runID), zap.String("status", string(status)))
	return nil
}

func (s *StoreSink) flush(ctx context.Context, pending map[siteKey]*siteDelta) error {
	for key, delta := range pending {
		if !delta.SiteDelta.Empty() {
			if err := s.repo.UpsertSiteStats(ctx, key.runID, key.site, delta.SiteDelta, delta.at); err != nil {
				return fmt.Errorf("upsert site stats: %w", err)
			}
		}
		delete(pending, key)
	}
	return nil
}

func recordItem(pending map[siteKey]*siteDelta, runID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	key := siteKey{runID: runID, site: evt.Site}
	delta := pending[key]
	if delta == nil {
		delta = &siteDelta{}
		pending[key] = delta
	}
	delta.Items++
	if evt.Unique {
		delta.Unique++
	}
	if evt.Outcome == crawler.OutcomeDownloaded {
		delta.Downloaded++
	}
	delta.Bytes += evt.Bytes
	if delta.at.IsZero() || evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type siteKey struct {
	runID uuid.UUID
	site  string
}

type siteDelta struct {
	store.SiteDelta
	at time.Time
}
