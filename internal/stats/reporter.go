package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// DefaultReportInterval matches the cadence of the periodic stats line.
const DefaultReportInterval = 2 * time.Second

// ReporterConfig controls the periodic stats reporter.
type ReporterConfig struct {
	Interval time.Duration
	// QueueLen reports buffered items; optional.
	QueueLen func() int
	Logger   *zap.Logger
}

// Reporter logs a stats line at a fixed interval. It only reads counters and
// never blocks workers.
type Reporter struct {
	counters *Counters
	cfg      ReporterConfig
	logger   *zap.Logger
}

// NewReporter creates a Reporter over counters.
func NewReporter(counters *Counters, cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReportInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{counters: counters, cfg: cfg, logger: logger}
}

// Run blocks, logging a snapshot every interval until ctx ends.
func (r *Reporter) Run(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(time.Since(start))
		}
	}
}

func (r *Reporter) report(elapsed time.Duration) {
	snap := r.counters.Snapshot()
	queued := 0
	if r.cfg.QueueLen != nil {
		queued = r.cfg.QueueLen()
	}
	r.logger.Info("stats",
		zap.Int64("running", snap.InFlight),
		zap.Int("queued", queued),
		zap.Duration("elapsed", elapsed),
		zap.Int64("popped", snap.Popped),
		zap.Int64("complete", snap.Completed),
		zap.Int64("unique", snap.Unique),
		zap.Int64("responses", snap.Responses),
		zap.Int64("downloads", snap.Outcomes[crawler.OutcomeDownloaded]),
		zap.Int64("unfound", snap.Unfound),
		zap.Int64("bytes", snap.Bytes),
	)
}
