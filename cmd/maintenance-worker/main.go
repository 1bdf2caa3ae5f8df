package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/cron"
	"github.com/angelmondragon/pharmacy-backend/internal/notifications"
	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
	"github.com/angelmondragon/pharmacy-backend/pkg/migrate"
	"github.com/angelmondragon/pharmacy-backend/pkg/redis"
)

const serviceName = "maintenance-worker"

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	metricsAddr := flag.String("metrics-addr", "", "optional listen address for /metrics")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, cfg.App.Env, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Maintenance.LockTTL)
		if err != nil {
			logg.Error(ctx, "failed to create maintenance lock", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewNotificationRetentionJob(cron.NotificationRetentionJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Maintenance.NotificationRetention,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification retention job", err)
		os.Exit(1)
	}
	lowStockJob, err := cron.NewLowStockJob(cron.LowStockJobParams{
		Logger:  logg,
		Catalog: catalogService,
		Metrics: jobMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create low stock job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(retentionJob, lowStockJob),
		Lock:       lock,
		Metrics:    jobMetrics,
		Interval:   cfg.Maintenance.Interval,
		JobTimeout: cfg.Maintenance.JobTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create maintenance service", err)
		os.Exit(1)
	}

	if *once {
		report, err := service.RunOnce(ctx)
		if err == nil {
			err = report.Err
		}
		if err != nil {
			logg.Error(ctx, "maintenance cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(ctx, "starting maintenance worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "maintenance worker shutting down gracefully")
}
