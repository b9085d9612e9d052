package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/ingest"
	"github.com/angelmondragon/shopfeed-backend/internal/notifications"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/angelmondragon/shopfeed-backend/pkg/instance"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/mailer"
	"github.com/angelmondragon/shopfeed-backend/pkg/metrics"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Instance:    instance.GetID("worker"),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
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

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register task handlers", err)
		os.Exit(1)
	}

	worker, err := tasks.NewWorker(tasks.WorkerParams{
		Config:     cfg.Tasks,
		Logger:     logg,
		Repository: tasks.NewRepository(dbClient.DB()),
		Registry:   registry,
		Metrics:    metrics.NewTaskMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create task worker", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
		Worker: worker,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workers":     cfg.Tasks.Workers,
	})
	logg.Info(ctx, "starting worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil {
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

// buildRegistry wires one handler per task kind.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*tasks.Registry, error) {
	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repository: catalogRepo,
		Cache:      redisClient,
		Config:     cfg.Catalog,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	ingestService, err := ingest.NewService(ingest.ServiceParams{
		DB:         dbClient,
		Repository: catalogRepo,
		Cache:      catalogService,
		Fetcher:    ingest.NewHTTPFetcher(cfg.Catalog.FetchTimeout, cfg.Catalog.MaxDocumentBytes),
		Leases:     redisClient,
		Config:     cfg.Catalog,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	notificationHandler, err := notifications.NewHandler(
		users.NewRepository(dbClient.DB()),
		mailer.New(cfg.Sendgrid, logg),
		logg,
	)
	if err != nil {
		return nil, err
	}

	registry := tasks.NewRegistry()
	if err := registry.Register(enums.TaskKindIngest, ingestService); err != nil {
		return nil, err
	}
	if err := registry.Register(enums.TaskKindExport, catalog.ExportHandler(catalogService)); err != nil {
		return nil, err
	}
	if err := registry.Register(enums.TaskKindNotify, notificationHandler); err != nil {
		return nil, err
	}
	return registry, nil
}
