package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopfeed-backend/internal/cron"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/instance"
	"github.com/angelmondragon/shopfeed-backend/pkg/lock"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/metrics"
	"github.com/angelmondragon/shopfeed-backend/pkg/migrate"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Instance:    instance.GetID(serviceName),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run owns every connection the scheduler needs and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWithLog(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWithLog(ctx, logg, "redis", redisClient.Close)

	service, err := newScheduler(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newScheduler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	cronLock, err := lock.NewRedisLock(redisClient, redisClient.LeaseKey(serviceName, env), 0)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	taskRetention, err := cron.NewTaskRetentionJob(logg, tasks.NewRepository(dbClient.DB()), cfg.Tasks.Retention)
	if err != nil {
		return nil, err
	}
	tokenCleanup, err := cron.NewConfirmationTokenCleanupJob(logg, users.NewRepository(dbClient.DB()), cfg.Tokens.ConfirmationTTL)
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(taskRetention, tokenCleanup)
	if err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cronLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
}

func closeWithLog(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
