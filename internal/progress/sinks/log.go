package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/progress"
)

// LogSink emits structured logs for debugging progress streams.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event at debug level; run milestones are logged at info.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Int64("bytes", evt.Bytes),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Stage != progress.StageItemDone {
			s.logger.Info("progress event", fields...)
			continue
		}
		fields = append(fields,
			zap.String("site", evt.Site),
			zap.String("url", evt.URL),
			zap.String("outcome", string(evt.Outcome)),
			zap.Bool("unique", evt.Unique),
			zap.String("status_class", string(evt.StatusClass)),
		)
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
