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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/pharmacy-backend/api/routes"
	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/fulfillment"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/internal/notifications"
	"github.com/angelmondragon/pharmacy-backend/internal/orders"
	"github.com/angelmondragon/pharmacy-backend/internal/prescriptions"
	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/env"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
	"github.com/angelmondragon/pharmacy-backend/pkg/migrate"
	"github.com/angelmondragon/pharmacy-backend/pkg/pubsub"
	"github.com/angelmondragon/pharmacy-backend/pkg/redis"
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
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, cfg.App.Env, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; idempotency replay and rate limiting disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngineMetrics(registry)

	notificationRepo := notifications.NewRepository(dbClient.DB())
	storeSink, err := notifications.NewStoreSink(notificationRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notification store sink", err)
		os.Exit(1)
	}
	sinks := []notifications.Sink{storeSink}

	var pubsubSink *notifications.PubSubSink
	if cfg.Notifications.PubSubTopic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.Notifications.PubSubTopic, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		pubsubSink, err = notifications.NewPubSubSink(psClient.Publisher())
		if err != nil {
			logg.Error(ctx, "failed to create pubsub sink", err)
			os.Exit(1)
		}
		sinks = append(sinks, pubsubSink)
	}

	emitter := notifications.NewAsyncEmitter(notifications.EmitterOptions{
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
		Logger:    logg,
		Metrics:   engineMetrics,
	}, sinks...)

	ledger := inventory.NewLedger(logg)
	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}
	prescriptionsRepo := prescriptions.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	fulfillmentService, err := fulfillment.NewService(fulfillment.ServiceParams{
		Tx:            dbClient,
		Prescriptions: prescriptionsRepo,
		Orders:        ordersRepo,
		Catalog:       catalogService,
		Ledger:        ledger,
		Notifier:      emitter,
		Metrics:       engineMetrics,
		Logger:        logg,
		TxTimeout:     cfg.DB.TxTimeout,
		BusyRetries:   cfg.Fulfillment.BusyRetries,
		BusyBackoff:   cfg.Fulfillment.BusyBackoff,
	})
	if err != nil {
		logg.Error(ctx, "failed to create fulfillment service", err)
		os.Exit(1)
	}

	prescriptionsService, err := prescriptions.NewService(prescriptionsRepo, emitter, logg)
	if err != nil {
		logg.Error(ctx, "failed to create prescriptions service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Stock:     ledger,
		Notifier:  emitter,
		Metrics:   engineMetrics,
		Logger:    logg,
		TxTimeout: cfg.DB.TxTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	inventoryService, err := inventory.NewService(dbClient, ledger, logg, cfg.DB.TxTimeout)
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get(cfg.App.Port, "PORT")
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": dbClient.Dialect(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry,
			fulfillmentService,
			prescriptionsService,
			ordersService,
			inventoryService,
			catalogService,
			notificationsService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		logg.Error(ctx, "notification emitter did not drain", err)
	}
	if pubsubSink != nil {
		pubsubSink.Stop()
	}
	logg.Info(ctx, "api server shutting down gracefully")
}
