package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/evvec/ps-tracker/internal/app"
	"github.com/evvec/ps-tracker/internal/config"
	"github.com/evvec/ps-tracker/internal/observability"
	"github.com/evvec/ps-tracker/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}

	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("bot starting",
		"env", cfg.AppEnv,
		"version", cfg.ServiceVersion,
		"refresh_hour", cfg.RefreshHour,
	)

	runErr := application.Run(ctx)

	if err := application.Close(); err != nil {
		logger.Error("close app", "error", err)
	}
	if err := stopProfiler(); err != nil {
		logger.Error("stop profiler", "error", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		logger.Error("shutdown tracing", "error", err)
	}

	if runErr != nil {
		logger.Error("bot stopped with error", "error", runErr)
		os.Exit(1)
	}

	logger.Info("bot stopped")
}
