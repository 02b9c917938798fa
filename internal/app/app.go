// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/geo-report-client/internal/apiclient"
	"github.com/JakeFAU/geo-report-client/internal/config"
	"github.com/JakeFAU/geo-report-client/internal/notify"
	"github.com/JakeFAU/geo-report-client/internal/notify/sinks"
	"github.com/JakeFAU/geo-report-client/internal/runner"
	"github.com/JakeFAU/geo-report-client/internal/tracing"
	"github.com/JakeFAU/geo-report-client/internal/tracker"
)

// Version is reported as the service version on trace resources.
const Version = "0.1.0"

// Options customizes how NewApp wires its services.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Console receives notification toasts when notify.console is set (default os.Stdout).
	Console io.Writer
	// Colors enables ANSI colors in console toasts.
	Colors bool
	// Registerer receives notification collectors (default prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer
	// PubSubOptions are passed to the Pub/Sub client, e.g. to target an emulator.
	PubSubOptions []option.ClientOption
}

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	client *apiclient.Client
	hub    *notify.Hub
	pubsub *pubsub.Client
	tracer *sdktrace.TracerProvider
}

// NewApp builds the backend client and the notification hub with its sinks.
// It fails fast when an enabled sink cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	l.Info("Initializing application services...", zap.String("base_url", cfg.API.BaseURL))

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		var err error
		tp, err = tracing.Init(ctx, tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     Version,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	a := &App{cfg: cfg, logger: l, tracer: tp}
	initialized := false
	defer func() {
		if !initialized && tp != nil {
			_ = tp.Shutdown(context.Background())
		}
	}()

	a.client = apiclient.New(apiclient.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.APITimeout(),
		RetryCount:     cfg.API.RetryCount,
		RetryWait:      time.Duration(cfg.API.RetryWaitMs) * time.Millisecond,
		RetryMaxWait:   time.Duration(cfg.API.RetryMaxWaitMs) * time.Millisecond,
		UserAgent:      cfg.API.UserAgent,
		TracerProvider: a.tracerProvider(),
	}, l)

	sinkList := []notify.Sink{sinks.NewLogSink(l)}

	if cfg.Notify.Console {
		w := opts.Console
		if w == nil {
			w = os.Stdout
		}
		sinkList = append(sinkList, sinks.NewConsoleSink(w, opts.Colors))
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics sink: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if cfg.PubSub.Enabled {
		l.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		var topic *pubsub.Topic
		a.pubsub, topic, err = openTopic(ctx, cfg.PubSub, opts.PubSubOptions)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, sinks.NewPubSubSink(topic, l))
	}

	a.hub = notify.NewHub(notify.Config{
		BufferSize:     cfg.Notify.BufferSize,
		MaxBatchEvents: cfg.Notify.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.Notify.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.Notify.SinkTimeoutMs) * time.Millisecond,
		Logger:         l,
	}, sinkList...)

	l.Info("Application services initialized successfully.", zap.Int("sinks", len(sinkList)), zap.Bool("tracing", tp != nil))
	initialized = true
	return a, nil
}

// tracerProvider returns the app's provider, or nil so callers fall back to the global one.
func (a *App) tracerProvider() trace.TracerProvider {
	if a.tracer == nil {
		return nil
	}
	return a.tracer
}

func openTopic(ctx context.Context, cfg config.PubSubConfig, opts []option.ClientOption) (*pubsub.Client, *pubsub.Topic, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err == nil && !exists {
		err = fmt.Errorf("pubsub topic '%s' does not exist in project '%s'", cfg.TopicName, cfg.ProjectID)
	}
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to check pubsub topic: %w", err), client.Close())
	}
	return client, topic, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Client returns the backend API client.
func (a *App) Client() *apiclient.Client {
	return a.client
}

// Notifications returns the hub that fans notifications out to the sinks.
func (a *App) Notifications() *notify.Hub {
	return a.hub
}

// NewRunner returns a foreground runner using the configured poll interval and deadline.
func (a *App) NewRunner() *runner.Runner {
	return runner.New(a.client, runner.Config{
		PollInterval:   a.cfg.ForegroundInterval(),
		MaxWait:        a.cfg.ForegroundMaxWait(),
		TracerProvider: a.tracerProvider(),
	}, a.logger)
}

// NewTracker returns an idle background tracker that announces through the hub.
// Callers own the tracker and must Close it.
func (a *App) NewTracker() *tracker.Tracker {
	return tracker.New(a.client, a.hub, tracker.Config{
		PollInterval:       a.cfg.BackgroundInterval(),
		ExpireAfter:        a.cfg.ExpireAfter(),
		PollTimeout:        a.cfg.BackgroundPollTimeout(),
		MaxConcurrentPolls: a.cfg.Background.MaxConcurrentPolls,
		Logger:             a.logger,
		TracerProvider:     a.tracerProvider(),
	})
}

// Close flushes pending notifications and releases clients. Trackers built by
// NewTracker should be closed first so their final notifications are delivered.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down application services...")
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close notification hub: %w", err))
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	// Sync fails on terminals (ENOTTY); not worth reporting.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
