// Package app builds the long-lived services behind the CLI: the crawl
// engine, its storage and notification backends, the progress hub and the
// observability server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/addrcrawl/internal/api"
	"github.com/JakeFAU/addrcrawl/internal/clock/system"
	"github.com/JakeFAU/addrcrawl/internal/config"
	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/engine"
	collyfetcher "github.com/JakeFAU/addrcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/addrcrawl/internal/hash/sha256"
	"github.com/JakeFAU/addrcrawl/internal/id/uuid"
	"github.com/JakeFAU/addrcrawl/internal/logging"
	"github.com/JakeFAU/addrcrawl/internal/metrics"
	"github.com/JakeFAU/addrcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/addrcrawl/internal/progress"
	progresssinks "github.com/JakeFAU/addrcrawl/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/addrcrawl/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/addrcrawl/internal/publisher/pubsub"
	"github.com/JakeFAU/addrcrawl/internal/resolver/dns"
	gcsstorage "github.com/JakeFAU/addrcrawl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/addrcrawl/internal/storage/local"
	memorystorage "github.com/JakeFAU/addrcrawl/internal/storage/memory"
	pgstore "github.com/JakeFAU/addrcrawl/internal/storage/postgres"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	engine      *engine.Engine
	apiServer   *api.Server
	progressHub *progress.Hub
	pgStore     *pgstore.Store
	gcs         *storage.Client
	pubsub      *pubsub.Client
	publisher   *gcppublisher.Publisher
}

// Option adjusts how Build wires the application.
type Option func(*buildOptions)

type buildOptions struct {
	logger     *zap.Logger
	registry   prometheus.Registerer
	pubsubOpts []option.ClientOption
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithRegistry registers the progress and live collectors on reg instead of
// the default registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// WithPubSubOptions passes client options to the Pub/Sub client, for example
// to point it at an emulator.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(o *buildOptions) { o.pubsubOpts = append(o.pubsubOpts, opts...) }
}

// Build creates the application's dependencies. On error every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (app *App, err error) {
	bo := buildOptions{registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&bo)
	}
	if bo.logger == nil {
		bo.logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(bo.logger)
	}

	app = &App{cfg: cfg, logger: bo.logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("workers", cfg.Crawl.Workers),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)

	archive, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := app.setupDatabase(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := app.setupPublisher(ctx, bo.pubsubOpts)
	if err != nil {
		return nil, err
	}

	emitter, err := app.setupProgress(ctx, repo, bo.registry)
	if err != nil {
		return nil, err
	}

	rateCfg := ratelimit.Config{RPS: cfg.Crawl.MaxRPS, Burst: cfg.Crawl.RPSBurst}
	if interval := rateCfg.Interval(); interval > 0 {
		app.logger.Info("request rate capped",
			zap.Float64("max_rps", rateCfg.RPS),
			zap.Int("burst", rateCfg.Burst),
			zap.Duration("interval", interval))
	}

	app.engine, err = engine.New(engine.Deps{
		Resolver: dns.New(dns.Config{Timeout: cfg.DNS.Timeout()}),
		Fetcher: ratelimit.Wrap(collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.HTTP.UserAgent,
			Timeout:     cfg.HTTP.Timeout(),
			ByteCeiling: cfg.Crawl.ByteCeiling,
		}), rateCfg),
		Archive:   archive,
		Hasher:    sha256.New(),
		RunStore:  repo,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Emitter:   emitter,
	}, engine.Config{
		Topic:         cfg.PubSub.TopicName,
		ArchivePrefix: cfg.Storage.Prefix,
	}, app.logger.Named("engine"))
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	metrics.Init()
	if err = metrics.RegisterLive(bo.registry, app.engine); err != nil {
		return nil, fmt.Errorf("register live metrics: %w", err)
	}

	var ready api.ReadinessCheck
	if app.pgStore != nil {
		ready = app.pgStore.Ping
	}
	app.apiServer = api.NewServer(api.Config{
		APIKey:         cfg.Server.APIKey,
		RequestTimeout: cfg.Server.RequestTimeout(),
	}, app.engine, repo, ready, app.logger.Named("api"))

	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler exposes the observability routes.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// CrawlOptions converts the crawl config into per-run engine options.
func (a *App) CrawlOptions() engine.Options {
	return engine.Options{
		Workers:        a.cfg.Crawl.Workers,
		QueueCapacity:  a.cfg.Crawl.QueueCapacity,
		MaxItems:       a.cfg.Crawl.MaxItems,
		ByteCeiling:    a.cfg.Crawl.ByteCeiling,
		ReportInterval: a.cfg.Crawl.ReportInterval(),
	}
}

// Crawl runs one crawl over the file at path. When server.listen is set the
// observability server runs for the duration of the crawl.
func (a *App) Crawl(ctx context.Context, path string) (crawler.Result, error) {
	if a.cfg.Server.Listen != "" {
		srv := a.newHTTPServer()
		go a.listen(srv, nil)
		defer a.shutdownServer(srv)
	}

	result, err := a.engine.CrawlFile(ctx, path, a.CrawlOptions())
	if err != nil {
		return crawler.Result{}, fmt.Errorf("crawl failed: %w", err)
	}
	return result, nil
}

// Serve runs the observability server until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Server.Listen == "" {
		return errors.New("server.listen must be set to serve")
	}
	srv := a.newHTTPServer()
	errCh := make(chan error, 1)
	go a.listen(srv, errCh)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
		a.shutdownServer(srv)
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.cfg.Server.Listen,
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) listen(srv *http.Server, errCh chan<- error) {
	a.logger.Info("http server started", zap.String("addr", srv.Addr))
	err := srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	a.logger.Error("http server error", zap.Error(err))
	if errCh != nil {
		errCh <- fmt.Errorf("http server: %w", err)
	}
}

func (a *App) shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
}

// Close flushes pending progress events and releases every backend.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("path", a.cfg.Storage.LocalDir))
		return blobs, nil
	case config.StorageMemory:
		a.logger.Info("using in-memory archive")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("body archive disabled")
		return nil, nil
	}
}

// runRepository is what both run stores provide.
type runRepository interface {
	crawler.RunStore
	store.ProgressRepository
}

func (a *App) setupDatabase(ctx context.Context) (runRepository, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database configured, keeping run history in memory")
		return memorystorage.NewRunStore(), nil
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pgStore = pg
	if a.cfg.DB.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
	}
	a.logger.Info("postgres run store initialized")
	return pg, nil
}

func (a *App) setupPublisher(ctx context.Context, opts []option.ClientOption) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsub = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupProgress(
	ctx context.Context,
	repo store.ProgressRepository,
	reg prometheus.Registerer,
) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewStoreSink(repo, a.logger.Named("progress_store")),
	}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchMaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.BatchMaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("sinks", len(sinkList)),
	)
	return a.progressHub, nil
}
