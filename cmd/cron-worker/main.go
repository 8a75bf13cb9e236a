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

	"github.com/lokrise/checkout/internal/checkout"
	"github.com/lokrise/checkout/internal/cron"
	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/db"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/migrate"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceKind, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeLogged(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeLogged(ctx, logg, "redis", redisClient.Close)

	reg := metrics.NewRegistry()
	backend, err := marketplace.New(cfg.Marketplace, marketplace.Options{
		Logger:  logg,
		Metrics: metrics.NewMarketplaceMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("marketplace client: %w", err)
	}

	jobMetrics := metrics.NewCronJobMetrics(reg)
	registry, err := buildJobs(cfg, logg, dbClient, backend, reg, jobMetrics)
	if err != nil {
		return fmt.Errorf("build jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(lockScope(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, ":"+cfg.App.Port, reg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func closeLogged(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}

func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	backend *marketplace.Client,
	reg *prometheus.Registry,
	jobMetrics *metrics.CronJobMetrics,
) (*cron.Registry, error) {
	initiator, err := checkout.NewInitiator(backend, 0, logg)
	if err != nil {
		return nil, err
	}
	expirer, err := checkout.NewExpirer(checkout.ExpirerParams{
		Tx:         dbClient,
		Repository: checkout.NewRepository(dbClient.DB()),
		Orders:     initiator,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:    metrics.NewCheckoutMetrics(reg),
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	abandoned, err := cron.NewAbandonedCheckoutJob(cron.AbandonedCheckoutJobParams{
		Logger:  logg,
		Expirer: expirer,
		Metrics: jobMetrics,
		After:   cfg.Checkout.AbandonAfter,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Metrics:    jobMetrics,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(abandoned, retention), nil
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
