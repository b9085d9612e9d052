package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopfeed-backend/api/controllers"
	"github.com/angelmondragon/shopfeed-backend/api/routes"
	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/notifications"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	"github.com/angelmondragon/shopfeed-backend/pkg/auth/session"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/instance"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/metrics"
	"github.com/angelmondragon/shopfeed-backend/pkg/migrate"
	"github.com/angelmondragon/shopfeed-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.GetID("api"),
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	gateway, err := tasks.NewGateway(tasks.GatewayParams{
		Repository: tasks.NewRepository(dbClient.DB()),
		Metrics:    metrics.NewTaskMetrics(prometheus.DefaultRegisterer),
		Retention:  cfg.Tasks.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create task gateway", err)
		os.Exit(1)
	}
	notifier, err := notifications.NewNotifier(gateway)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repository: catalog.NewRepository(dbClient.DB()),
		Cache:      redisClient,
		Config:     cfg.Catalog,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		DB:         dbClient,
		Repository: orders.NewRepository(dbClient.DB()),
		Notifier:   notifier,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	usersService, err := users.NewService(users.ServiceParams{
		DB:             dbClient,
		Repository:     users.NewRepository(dbClient.DB()),
		Sessions:       sessionManager,
		Resets:         redisClient,
		Notifier:       notifier,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		TokensConfig:   cfg.Tokens,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Sessions: sessionManager,
			Limiter:  redisClient,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Metrics:  promhttp.Handler(),
			Observer: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Catalog:  catalogService,
			Orders:   ordersService,
			Users:    usersService,
			Tasks:    gateway,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
