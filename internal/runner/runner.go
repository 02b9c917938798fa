// Package runner drives a single analysis from start to a terminal state,
// polling the backend on a fixed interval and streaming progress to a callback.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/logging"
	"github.com/JakeFAU/geo-report-client/internal/metrics"
	"github.com/JakeFAU/geo-report-client/internal/tracing"
)

const defaultPollInterval = time.Second

// ProgressFunc receives progress updates. It is only called when the backend
// reported both a progress value and a non-empty message.
type ProgressFunc func(progress float64, message string)

// Config tunes the poll loop.
type Config struct {
	// PollInterval is the delay before each status poll (default 1s).
	PollInterval time.Duration
	// MaxWait bounds the whole run. Zero polls until a terminal state.
	MaxWait time.Duration
	// TracerProvider records one span per run. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Runner runs analyses in the foreground.
type Runner struct {
	backend analysis.Backend
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New builds a Runner.
func New(backend analysis.Backend, cfg Config, logger *zap.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: backend, cfg: cfg, logger: logger, tracer: tracing.Tracer(cfg.TracerProvider)}
}

// Run starts analysisID and blocks until it completes, fails or ctx ends.
//
// Errors:
//   - *analysis.StartError when the start request fails; onProgress is never called.
//   - *analysis.StatusError on the first failed poll; no further polls are made.
//   - *analysis.FailedError when the backend reports the analysis failed.
//   - analysis.ErrWaitExceeded (wrapped) when MaxWait elapses.
//   - ctx.Err() (wrapped) when ctx is cancelled. The backend job is left running.
func (r *Runner) Run(ctx context.Context, analysisID string, onProgress ProgressFunc) (*analysis.Result, error) {
	ctx, span := r.tracer.Start(ctx, "analysis.run", trace.WithAttributes(attribute.String("analysis.id", analysisID)))
	defer span.End()

	result, polls, err := r.run(ctx, analysisID, onProgress)
	span.SetAttributes(attribute.Int("analysis.polls", polls))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (r *Runner) run(ctx context.Context, analysisID string, onProgress ProgressFunc) (*analysis.Result, int, error) {
	log := logging.ForAnalysis(r.logger, analysisID, metrics.ModeForeground)

	if r.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.cfg.MaxWait, analysis.ErrWaitExceeded)
		defer cancel()
	}

	if err := r.backend.StartAnalysis(ctx, analysisID); err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, 0, ctxErr
		}
		log.Warn("start analysis failed", zap.Error(err))
		return nil, 0, analysis.NewStartError(analysisID, err)
	}
	log.Info("analysis started")

	timer := time.NewTimer(r.cfg.PollInterval)
	defer timer.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped waiting for analysis", zap.Error(context.Cause(ctx)))
			return nil, polls, contextError(ctx)
		case <-timer.C:
		}
		polls++

		snap, err := r.backend.GetStatus(ctx, analysisID)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return nil, polls, ctxErr
			}
			metrics.ObservePoll(metrics.ModeForeground, pollOutcome(err))
			log.Warn("status check failed", zap.Int("poll", polls), zap.Error(err))
			return nil, polls, analysis.NewStatusError(analysisID, err)
		}
		status, err := analysis.MapStatus(snap.Status)
		if err != nil {
			metrics.ObservePoll(metrics.ModeForeground, metrics.OutcomeMalformed)
			log.Warn("unrecognized status", zap.String("status", string(snap.Status)))
			return nil, polls, analysis.NewStatusError(analysisID, fmt.Errorf("%w: %w", analysis.ErrMalformedResponse, err))
		}
		metrics.ObservePoll(metrics.ModeForeground, metrics.OutcomeOK)

		if onProgress != nil && snap.Progress != nil && snap.Message != nil && *snap.Message != "" {
			onProgress(*snap.Progress, *snap.Message)
		}

		switch {
		case status == analysis.StatusCompleted && snap.HasResult():
			result, err := snap.DecodeResult()
			if err != nil {
				metrics.ObservePoll(metrics.ModeForeground, metrics.OutcomeMalformed)
				return nil, polls, analysis.NewStatusError(analysisID, err)
			}
			if result.Unmatched != "" {
				log.Warn("result payload only partly decoded", zap.String("field", result.Unmatched))
			}
			metrics.ObserveJobFinished(metrics.ModeForeground, string(analysis.StatusCompleted))
			log.Info("analysis completed", zap.Int("polls", polls))
			return result, polls, nil
		case status == analysis.StatusFailed:
			msg := ""
			if snap.Message != nil {
				msg = *snap.Message
			}
			metrics.ObserveJobFinished(metrics.ModeForeground, string(analysis.StatusFailed))
			log.Warn("analysis failed", zap.String("message", msg), zap.Int("polls", polls))
			return nil, polls, analysis.NewFailedError(analysisID, msg)
		}

		timer.Reset(r.cfg.PollInterval)
	}
}

// contextError reports why ctx ended, preferring a configured cause such as
// analysis.ErrWaitExceeded.
func contextError(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, analysis.ErrWaitExceeded) {
		return fmt.Errorf("wait for analysis: %w", cause)
	}
	return fmt.Errorf("wait for analysis: %w", ctx.Err())
}

func pollOutcome(err error) string {
	if errors.Is(err, analysis.ErrMalformedResponse) {
		return metrics.OutcomeMalformed
	}
	return metrics.OutcomeError
}
