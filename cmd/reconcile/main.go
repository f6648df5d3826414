// Command reconcile runs a single booking reconciliation pass and exits.
// It uses the same wiring and settings as the scheduled job in the server.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/app"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/services"
	"github.com/tripdesk/booking-backend/internal/tracing"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize services: %v", err)
	}
	defer application.Close(context.Background())

	report, err := services.NewCronService(application.Saga, cfg.Reconcile, logger).RunNow(ctx)
	if err != nil {
		logger.WithError(err).Error("Reconciliation failed")
		application.Close(context.Background())
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
