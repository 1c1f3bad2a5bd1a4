package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/megaerp/catalog-image-sync/api"
	"github.com/megaerp/catalog-image-sync/internal/uploads"
	"github.com/megaerp/catalog-image-sync/pkg/config"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
	"github.com/megaerp/catalog-image-sync/pkg/pubsub"
)

const serviceName = "upload-producer"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

	producer, err := uploads.NewProducer(
		pubsubClient.ProcessingPublisher(),
		pubsubClient.NotificationSubscription(),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create producer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	opsServer := &http.Server{
		Addr: ":" + cfg.App.OpsPort,
		Handler: api.NewHandler(cfg, logg, registry,
			api.Dependency{Name: "pubsub", Pinger: pubsubClient},
		),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})

	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()

	logg.Info(ctx, "starting upload producer")
	if err := producer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "upload producer stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := multierr.Append(opsServer.Shutdown(shutdownCtx), pubsubClient.Close()); err != nil {
		logg.Error(ctx, "error during shutdown", err)
	}

	logg.Info(ctx, "upload producer shutting down gracefully")
}
