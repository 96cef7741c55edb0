package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/perkmint/perkmint-backend/internal/archive"
	"github.com/perkmint/perkmint-backend/pkg/bigquery"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/instance"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/metrics"
	"github.com/perkmint/perkmint-backend/pkg/outbox/idempotency"
	"github.com/perkmint/perkmint-backend/pkg/pubsub"
	"github.com/perkmint/perkmint-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "archiver"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "archiver"

	logg = logger.New(logger.Options{
		ServiceName: "archiver",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.ArchiveSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "archive subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.ArchiveIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	worker := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer, "archiver")

	consumer, err := archive.NewConsumer(
		subscription,
		bqClient,
		bqClient.SettlementEventsTable(),
		manager,
		worker,
		logg,
	)
	requireResource(ctx, logg, "settlement archive consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(runCtx, "settlement archiver ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "settlement archiver failed", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "settlement archiver shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
