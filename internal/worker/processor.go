package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/clock/system"
	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/dedup"
	"github.com/JakeFAU/addrcrawl/internal/progress"
	"github.com/JakeFAU/addrcrawl/internal/stats"
)

const archiveContentType = "application/octet-stream"

// Deps are the collaborators shared by every worker of a run. Resolver and
// Fetcher are required; the rest are optional.
type Deps struct {
	Resolver crawler.Resolver
	Fetcher  crawler.Fetcher
	// Archive receives downloaded bodies when set, keyed by Hasher digest.
	Archive crawler.BlobStore
	Hasher  crawler.Hasher
	Emitter progress.Emitter
	Clock   crawler.Clock
}

// Config controls item processing for one run.
type Config struct {
	RunID         string
	ByteCeiling   int64
	ArchivePrefix string
}

// Processor drives a single item through resolve, dedup, probe and download.
// It is shared by all workers of a run and safe for concurrent use.
type Processor struct {
	deps     Deps
	cfg      Config
	seen     *dedup.AddressSet
	counters *stats.Counters
	runID    [16]byte
	logger   *zap.Logger
}

// NewProcessor binds the run-scoped address set and counters.
func NewProcessor(
	deps Deps,
	cfg Config,
	seen *dedup.AddressSet,
	counters *stats.Counters,
	logger *zap.Logger,
) *Processor {
	if cfg.ByteCeiling <= 0 {
		cfg.ByteCeiling = crawler.DefaultByteCeiling
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		deps:     deps,
		cfg:      cfg,
		seen:     seen,
		counters: counters,
		logger:   logger,
	}
	if deps.Emitter != nil {
		id, err := progress.ParseRunID(cfg.RunID)
		if err != nil {
			logger.Warn("progress events disabled", zap.Error(err))
			p.deps.Emitter = nil
		} else {
			p.runID = id
		}
	}
	return p
}

// itemTrace collects what one item did, for the progress event.
type itemTrace struct {
	status int
	bytes  int64
	unique bool
}

// Process runs one item to its terminal outcome and records it. Per-item
// failures are converted into outcomes; nothing is returned to the caller
// except the outcome itself.
func (p *Processor) Process(ctx context.Context, raw string) crawler.Outcome {
	start := p.deps.Clock.Now()
	var trace itemTrace
	outcome := p.process(ctx, raw, &trace)
	p.counters.Record(outcome)
	p.emit(raw, outcome, trace, p.deps.Clock.Now().Sub(start))
	return outcome
}

func (p *Processor) process(ctx context.Context, raw string, trace *itemTrace) crawler.Outcome {
	u, err := crawler.ParseItem(raw)
	if err != nil {
		p.logger.Debug("malformed item", zap.String("item", raw), zap.Error(err))
		return crawler.OutcomeMalformed
	}
	target := u.String()

	addrs, err := p.deps.Resolver.Resolve(ctx, u.Hostname())
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return crawler.OutcomeCanceled
		case errors.Is(err, crawler.ErrHostUnresolved):
			p.counters.Unfound.Inc()
			return crawler.OutcomeUnresolved
		default:
			p.logger.Debug("resolve failed", zap.String("host", u.Hostname()), zap.Error(err))
			return crawler.OutcomeResolveFailed
		}
	}

	if !p.seen.Add(addrs...) {
		return crawler.OutcomeDuplicate
	}
	p.counters.Unique.Inc()
	trace.unique = true

	probe, err := p.deps.Fetcher.Probe(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.OutcomeCanceled
		}
		p.logger.Debug("probe failed", zap.String("url", target), zap.Error(err))
		return crawler.OutcomeRejected
	}
	trace.status = probe.StatusCode
	if !probe.OK() || probe.ContentLength > p.cfg.ByteCeiling {
		return crawler.OutcomeRejected
	}

	body, err := p.deps.Fetcher.Download(ctx, target)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return crawler.OutcomeCanceled
		case errors.Is(err, crawler.ErrBodyTooLarge):
			return crawler.OutcomeRejected
		default:
			p.logger.Debug("download failed", zap.String("url", target), zap.Error(err))
			return crawler.OutcomeDownloadFailed
		}
	}

	trace.bytes = int64(len(body))
	p.counters.Bytes.Add(trace.bytes)
	p.counters.Responses.Inc()
	p.archive(ctx, target, body)
	return crawler.OutcomeDownloaded
}

func (p *Processor) archive(ctx context.Context, target string, body []byte) {
	if p.deps.Archive == nil || p.deps.Hasher == nil {
		return
	}
	digest, err := p.deps.Hasher.Hash(body)
	if err != nil {
		p.logger.Warn("hash body failed", zap.String("url", target), zap.Error(err))
		return
	}
	uri, err := p.deps.Archive.PutObject(ctx, p.archivePath(digest), archiveContentType, bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("archive body failed", zap.String("url", target), zap.Error(err))
		return
	}
	p.logger.Debug("body archived", zap.String("url", target), zap.String("uri", uri))
}

func (p *Processor) archivePath(digest string) string {
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.bin", p.cfg.RunID, digest)
	}
	return fmt.Sprintf("%s/%s/%s.bin", prefix, p.cfg.RunID, digest)
}

func (p *Processor) emit(raw string, outcome crawler.Outcome, trace itemTrace, dur time.Duration) {
	if p.deps.Emitter == nil {
		return
	}
	if dur < 0 {
		dur = 0
	}
	p.deps.Emitter.Emit(progress.Event{
		RunID:       p.runID,
		TS:          p.deps.Clock.Now(),
		Stage:       progress.StageItemDone,
		Site:        crawler.Site(raw),
		URL:         strings.TrimSpace(raw),
		Outcome:     outcome,
		Unique:      trace.unique,
		Bytes:       trace.bytes,
		StatusClass: progress.ClassifyStatus(trace.status),
		Dur:         dur,
	})
}
