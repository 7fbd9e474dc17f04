// Package engine coordinates a crawl run: one producer feeding a bounded
// queue, a fixed worker pool draining it, and the aggregate result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/clock/system"
	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/dedup"
	"github.com/JakeFAU/addrcrawl/internal/dispatcher"
	"github.com/JakeFAU/addrcrawl/internal/progress"
	"github.com/JakeFAU/addrcrawl/internal/queue/memory"
	"github.com/JakeFAU/addrcrawl/internal/source"
	"github.com/JakeFAU/addrcrawl/internal/stats"
	"github.com/JakeFAU/addrcrawl/internal/worker"
)

const postRunTimeout = 10 * time.Second

// Source yields one item per Scan. *bufio.Scanner satisfies it.
type Source interface {
	Scan() bool
	Text() string
	Err() error
}

// Options tune a single run.
type Options struct {
	// Workers is the pool size; 1 processes items sequentially.
	Workers int
	// QueueCapacity defaults to Workers.
	QueueCapacity int
	// MaxItems caps the number of items fed; 0 means no cap.
	MaxItems    int
	ByteCeiling int64
	// ReportInterval is the stats line cadence; 0 disables the reporter.
	ReportInterval time.Duration
	// Source labels the input in the stored result.
	Source string
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.QueueCapacity < 1 {
		o.QueueCapacity = o.Workers
	}
	if o.MaxItems < 0 {
		o.MaxItems = 0
	}
	if o.ByteCeiling <= 0 {
		o.ByteCeiling = crawler.DefaultByteCeiling
	}
	return o
}

// Deps are the engine's collaborators. Resolver and Fetcher are required.
type Deps struct {
	Resolver  crawler.Resolver
	Fetcher   crawler.Fetcher
	Archive   crawler.BlobStore
	Hasher    crawler.Hasher
	RunStore  crawler.RunStore
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Emitter   progress.Emitter
}

// Config holds engine-wide settings that do not vary per run.
type Config struct {
	// Topic receives the result when a Publisher is configured.
	Topic         string
	ArchivePrefix string
}

// Engine runs crawls. All per-run state is allocated inside Crawl, so one
// Engine may run several crawls concurrently.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	live   atomic.Pointer[run]
}

// New validates deps and builds an Engine.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Engine, error) {
	if deps.Resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{deps: deps, cfg: cfg, logger: logger}, nil
}

// run is the state owned by one Crawl invocation.
type run struct {
	id        string
	progress  [16]byte
	workers   int
	startedAt time.Time
	counters  *stats.Counters
	queue     *memory.Queue[string]
	done      atomic.Bool
	elapsed   atomic.Int64
}

// CrawlFile opens path and crawls it. An unopenable file fails with
// crawler.ErrInputUnavailable before any worker starts.
func (e *Engine) CrawlFile(ctx context.Context, path string, opts Options) (crawler.Result, error) {
	lines, err := source.Open(path)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("crawl %s: %w", path, err)
	}
	defer func() {
		if cerr := lines.Close(); cerr != nil {
			e.logger.Warn("close input failed", zap.Error(cerr))
		}
	}()
	if opts.Source == "" {
		opts.Source = path
	}
	return e.Crawl(ctx, lines, opts)
}

// Crawl feeds every item from src through the worker pool and returns the
// aggregate once the pool has drained. Cancelling ctx stops the producer and
// the workers early; the partial aggregate is returned with Canceled set and
// a nil error.
func (e *Engine) Crawl(ctx context.Context, src Source, opts Options) (crawler.Result, error) {
	opts = opts.withDefaults()
	r, err := e.newRun(opts)
	if err != nil {
		return crawler.Result{}, err
	}
	e.live.Store(r)
	logger := e.logger.With(zap.String("run_id", r.id), zap.Int("workers", opts.Workers))
	logger.Info("crawl started", zap.String("source", opts.Source), zap.Int64("byte_ceiling", opts.ByteCeiling))

	seen := dedup.NewAddressSet()
	processor := worker.NewProcessor(
		worker.Deps{
			Resolver: e.deps.Resolver,
			Fetcher:  e.deps.Fetcher,
			Archive:  e.deps.Archive,
			Hasher:   e.deps.Hasher,
			Emitter:  e.deps.Emitter,
			Clock:    e.deps.Clock,
		},
		worker.Config{RunID: r.id, ByteCeiling: opts.ByteCeiling, ArchivePrefix: e.cfg.ArchivePrefix},
		seen,
		r.counters,
		logger.Named("worker"),
	)
	workers := make([]*worker.Worker, opts.Workers)
	for i := range workers {
		workers[i] = worker.New(r.queue, processor, r.counters, logger.Named("worker"))
	}
	pool := dispatcher.New(r.queue, workers)

	e.emitRun(r, progress.StageRunStart, 0)

	reportCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	if opts.ReportInterval > 0 {
		reporter := stats.NewReporter(r.counters, stats.ReporterConfig{
			Interval: opts.ReportInterval,
			QueueLen: r.queue.Len,
			Logger:   logger.Named("stats"),
		})
		go reporter.Run(reportCtx)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		pool.Run(ctx)
	}()

	e.produce(ctx, src, pool, r.counters, opts.MaxItems, logger)
	pool.Close()
	<-drained
	stopReporter()

	// Items still buffered after an early stop never reach a worker.
	leftover := 0
	for {
		if _, ok := r.queue.Dequeue(context.Background()); !ok {
			break
		}
		r.counters.Record(crawler.OutcomeCanceled)
		leftover++
	}
	result := e.assemble(r, opts, ctx.Err() != nil)
	r.elapsed.Store(int64(result.TotalTime))
	r.done.Store(true)
	if result.Canceled {
		e.emitRun(r, progress.StageRunCanceled, result.TotalTime)
		logger.Warn("crawl canceled", zap.Int("unprocessed", leftover))
	} else {
		e.emitRun(r, progress.StageRunDone, result.TotalTime)
	}
	logger.Info("crawl finished",
		zap.Int64("sites", result.TotalSites),
		zap.Int64("unique", result.TotalUniqueSites),
		zap.Int64("responsive", result.TotalResponsiveSites),
		zap.Int64("unfound", result.TotalUnfound),
		zap.Int64("bytes", result.TotalBytesDownloaded),
		zap.Duration("elapsed", result.TotalTime),
	)

	e.afterRun(ctx, result, logger)
	return result, nil
}

func (e *Engine) newRun(opts Options) (*run, error) {
	id, err := e.newRunID()
	if err != nil {
		return nil, err
	}
	r := &run{
		id:        id,
		workers:   opts.Workers,
		startedAt: e.deps.Clock.Now(),
		counters:  stats.NewCounters(),
		queue:     memory.NewQueue[string](opts.QueueCapacity),
	}
	if pid, err := progress.ParseRunID(id); err == nil {
		r.progress = pid
	} else if e.deps.Emitter != nil {
		e.logger.Warn("run id is not a uuid; progress events skipped", zap.String("run_id", id))
	}
	return r, nil
}

func (e *Engine) newRunID() (string, error) {
	if e.deps.IDs == nil {
		return uuid.NewString(), nil
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// produce feeds src into the pool until EOF, the item cap, or cancellation.
// A site is counted before it is queued so live snapshots never show more
// finished items than sites. An item whose enqueue is cut short by
// cancellation is recorded as canceled.
func (e *Engine) produce(
	ctx context.Context,
	src Source,
	pool *dispatcher.Dispatcher,
	counters *stats.Counters,
	maxItems int,
	logger *zap.Logger,
) {
	fed := 0
	for ctx.Err() == nil {
		if maxItems > 0 && fed >= maxItems {
			logger.Info("item cap reached", zap.Int("max_items", maxItems))
			break
		}
		if !src.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		counters.Sites.Inc()
		fed++
		if err := pool.Enqueue(ctx, src.Text()); err != nil {
			counters.Record(crawler.OutcomeCanceled)
			logger.Debug("producer stopped", zap.Error(err))
			break
		}
	}
	if err := src.Err(); err != nil {
		logger.Warn("input read stopped early", zap.Error(err))
	}
	if o, ok := src.(interface{ Oversized() int }); ok && o.Oversized() > 0 {
		logger.Warn("oversized input lines counted as malformed",
			zap.Int("lines", o.Oversized()),
			zap.Int("max_line_bytes", source.MaxLineBytes),
		)
	}
}

func (e *Engine) assemble(r *run, opts Options, canceled bool) crawler.Result {
	finished := e.deps.Clock.Now()
	snap := r.counters.Snapshot()
	elapsed := finished.Sub(r.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return crawler.Result{
		RunID:                r.id,
		Source:               opts.Source,
		Workers:              opts.Workers,
		TotalSites:           snap.Sites,
		TotalUniqueSites:     snap.Unique,
		TotalResponsiveSites: snap.Responses,
		TotalUnfound:         snap.Unfound,
		TotalBytesDownloaded: snap.Bytes,
		TotalTime:            elapsed,
		StartedAt:            r.startedAt,
		FinishedAt:           finished,
		Canceled:             canceled,
		Outcomes:             snap.Outcomes,
	}
}

// afterRun persists and announces the result. Failures are logged only; the
// caller still gets the result.
func (e *Engine) afterRun(ctx context.Context, result crawler.Result, logger *zap.Logger) {
	if e.deps.RunStore == nil && e.deps.Publisher == nil {
		return
	}
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postRunTimeout)
	defer cancel()
	if e.deps.RunStore != nil {
		if err := e.deps.RunStore.StoreRun(postCtx, result); err != nil {
			logger.Error("store run failed", zap.Error(err))
		}
	}
	if e.deps.Publisher != nil && e.cfg.Topic != "" {
		msgID, err := e.deps.Publisher.Publish(postCtx, e.cfg.Topic, result)
		if err != nil {
			logger.Error("publish result failed", zap.Error(err))
			return
		}
		logger.Debug("result published", zap.String("message_id", msgID))
	}
}

func (e *Engine) emitRun(r *run, stage progress.Stage, dur time.Duration) {
	if e.deps.Emitter == nil || r.progress == [16]byte{} {
		return
	}
	e.deps.Emitter.Emit(progress.Event{
		RunID: r.progress,
		TS:    e.deps.Clock.Now(),
		Stage: stage,
		Bytes: r.counters.Bytes.Load(),
		Dur:   dur,
	})
}
