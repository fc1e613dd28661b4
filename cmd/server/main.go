package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cardgate/internal/app"
	"cardgate/internal/platform/config"
	"cardgate/internal/platform/httpserver"
	"cardgate/internal/platform/logger"
	"cardgate/internal/platform/tracing"
)

// main loads configuration, builds the app and serves until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("trace flush failed", "error", err)
		}
	}()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Server.Addr, a.Router)
	return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
}
