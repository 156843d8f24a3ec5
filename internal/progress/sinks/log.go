package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// LogSink logs the newest snapshot of each batch.
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

// Consume logs the last snapshot in the batch; earlier ones are superseded.
func (s *LogSink) Consume(_ context.Context, batch []progress.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	snap := batch[len(batch)-1]
	s.logger.Info("download progress",
		zap.String("run_id", snap.RunID.String()),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
		zap.Int64("processed", snap.Processed),
		zap.Int64("total", snap.Total),
		zap.Int64("remaining", snap.Remaining()),
		zap.Time("ts", snap.TS),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
