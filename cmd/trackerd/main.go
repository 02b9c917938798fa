// Package main hosts the tracker daemon: a long-running background tracker
// behind the local HTTP API.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and job endpoints. POST /v1/jobs tracks an
//     analysis (optionally starting it on the backend first); GET and DELETE inspect or drop tracked jobs.
//   - Tracker: a single internal/tracker.Tracker polls every non-terminal job on a fixed period while at least one
//     job is tracked and drops finished jobs after background.expire_after_seconds.
//   - Notifications: started/completed/failed notifications flow through the notify hub to log, console,
//     Prometheus and (optionally) Pub/Sub sinks.
//
// Run locally: go run ./cmd/trackerd -config config.yaml (or rely solely on GEOREPORT_* env overrides).
// The process drains on SIGINT/SIGTERM: the HTTP server stops, the tracker stops polling and pending
// notifications are flushed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/api"
	"github.com/JakeFAU/geo-report-client/internal/app"
	"github.com/JakeFAU/geo-report-client/internal/config"
	"github.com/JakeFAU/geo-report-client/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.NewApp(ctx, cfg, app.Options{Logger: logger.Named("app")})
	if err != nil {
		logger.Error("app init failed", zap.Error(err))
		os.Exit(1)
	}
	tracker := services.NewTracker()

	apiServer := api.NewServer(tracker, services.Client(), cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := tracker.Close(shutdownCtx); err != nil {
		logger.Error("tracker shutdown error", zap.Error(err))
	}
	if err := services.Close(shutdownCtx); err != nil {
		logger.Error("app shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
