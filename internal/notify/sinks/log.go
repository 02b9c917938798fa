package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/notify"
)

// LogSink writes each notification as a structured log line.
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

// Consume logs each notification. Failures are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []notify.Notification) error {
	for _, n := range batch {
		fields := []zap.Field{
			zap.String("job_id", n.JobID),
			zap.String("kind", string(n.Kind)),
			zap.String("label", n.Label()),
			zap.Time("ts", n.TS),
		}
		if n.Detail != "" {
			fields = append(fields, zap.String("detail", n.Detail))
		}
		if n.Kind == notify.KindFailed {
			s.logger.Warn(n.Title, fields...)
			continue
		}
		s.logger.Info(n.Title, fields...)
	}
	return nil
}

// Close implements notify.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
