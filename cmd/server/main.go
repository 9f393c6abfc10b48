// Command server runs the storefront session and cart service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/storefront/internal/app"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/pkg/logger"
)

const serviceName = "storefront"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("storefront exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run blocks until ctx is canceled or the server fails.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("storage", cfg.StorageDriver),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
