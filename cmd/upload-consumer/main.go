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
	"github.com/megaerp/catalog-image-sync/internal/catalog"
	"github.com/megaerp/catalog-image-sync/internal/uploads"
	"github.com/megaerp/catalog-image-sync/pkg/config"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
	"github.com/megaerp/catalog-image-sync/pkg/metrics"
	"github.com/megaerp/catalog-image-sync/pkg/pubsub"
	"github.com/megaerp/catalog-image-sync/pkg/storage/gcs"
)

const serviceName = "upload-consumer"

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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog client", err)
		os.Exit(1)
	}

	requeuer, err := uploads.NewRequeuer(
		pubsubClient.ProcessingPublisher(),
		pubsubClient.DeadLetterPublisher(),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create requeuer", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	consumer, err := uploads.NewConsumer(uploads.ConsumerParams{
		Catalog:      catalogClient,
		Store:        gcsClient,
		Queue:        requeuer,
		Subscription: pubsubClient.ProcessingSubscription(),
		Logger:       logg,
		Metrics:      pipelineMetrics,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consumer", err)
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.App.OpsPort,
		Handler: api.NewHandler(cfg, logg, registry,
			api.Dependency{Name: "pubsub", Pinger: pubsubClient},
			api.Dependency{Name: "gcs", Pinger: gcsClient},
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

	logg.Info(ctx, "starting upload consumer")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "upload consumer stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closeErr := multierr.Combine(
		opsServer.Shutdown(shutdownCtx),
		pubsubClient.Close(),
		gcsClient.Close(),
	)
	if closeErr != nil {
		logg.Error(ctx, "error during shutdown", closeErr)
	}

	logg.Info(ctx, "upload consumer shutting down gracefully")
}
