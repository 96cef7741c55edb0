package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/perkmint/perkmint-backend/api/routes"
	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/internal/lottery"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	"github.com/perkmint/perkmint-backend/pkg/chain"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/db"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	"github.com/perkmint/perkmint-backend/pkg/migrate"
	"github.com/perkmint/perkmint-backend/pkg/outbox"
	"github.com/perkmint/perkmint-backend/pkg/redis"
	"github.com/perkmint/perkmint-backend/pkg/storage/ipfs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	chainClient, err := chain.NewClient(context.Background(), cfg.Chain, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap ledger client", err)
		os.Exit(1)
	}
	defer chainClient.Close()

	ipfsClient, err := ipfs.NewClient(context.Background(), cfg.IPFS, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap metadata store", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)

	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	voucherService, err := voucher.NewService(
		voucher.NewRepository(dbClient.DB()),
		auditService,
		chainClient,
		ipfsClient,
		dbClient,
		emitter,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create voucher service", err)
		os.Exit(1)
	}

	lotteryService, err := lottery.NewService(
		lottery.NewRepository(dbClient.DB()),
		auditService,
		dbClient,
		emitter,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create lottery service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, chainClient, voucherService, lotteryService, auditService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
