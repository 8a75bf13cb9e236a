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

	"github.com/lokrise/checkout/api/routes"
	"github.com/lokrise/checkout/internal/barter"
	"github.com/lokrise/checkout/internal/cart"
	"github.com/lokrise/checkout/internal/checkout"
	"github.com/lokrise/checkout/internal/payments"
	"github.com/lokrise/checkout/internal/sellerboard"
	"github.com/lokrise/checkout/internal/wishlist"
	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/db"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/migrate"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/redis"
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

	registry := metrics.NewRegistry()
	services, err := buildServices(cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("HOSTNAME")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, redisClient, registry, services),
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
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
) (routes.Services, error) {
	backend, err := marketplace.New(cfg.Marketplace, marketplace.Options{
		Logger:  logg,
		Metrics: metrics.NewMarketplaceMetrics(registry),
	})
	if err != nil {
		return routes.Services{}, err
	}

	guests, err := cart.NewGuestStore(redisClient, cfg.Checkout.GuestCartTTL)
	if err != nil {
		return routes.Services{}, err
	}
	cartService, err := cart.NewService(cart.ServiceParams{
		Catalog:   backend,
		Account:   backend,
		Guests:    guests,
		MarkerTTL: cfg.Checkout.MigrationMarkerTTL,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		Backend: backend,
		Carts:   cartService,
		Logger:  logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	initiator, err := checkout.NewInitiator(backend, 0, logg)
	if err != nil {
		return routes.Services{}, err
	}
	card, err := payments.NewCardProcessor(backend, logg)
	if err != nil {
		return routes.Services{}, err
	}
	cod, err := payments.NewCODProcessor(backend, logg)
	if err != nil {
		return routes.Services{}, err
	}
	upi, err := payments.NewUPIProcessor(payments.UPIProcessorParams{
		Backend: backend,
		Store:   redisClient,
		TTL:     cfg.Checkout.UPISessionTTL,
		Logger:  logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	barterService, err := barter.NewService(barter.ServiceParams{
		Repository:    barter.NewRepository(dbClient.DB()),
		Backend:       backend,
		MaxPhotos:     cfg.Checkout.MaxBarterPhotos,
		MaxPhotoBytes: cfg.Checkout.MaxBarterPhotoBytes,
		Logger:        logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:         dbClient,
		Repository: checkout.NewRepository(dbClient.DB()),
		Carts:      cartService,
		Initiator:  initiator,
		Card:       card,
		COD:        cod,
		UPI:        upi,
		Barter:     barterService,
		Locks:      redisClient,
		LatchTTL:   cfg.Checkout.OrderCreationLock,
		Outbox:     events,
		Metrics:    metrics.NewCheckoutMetrics(registry),
		Logger:     logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	board, err := sellerboard.NewService(sellerboard.ServiceParams{
		Repository: sellerboard.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		Backend:    backend,
		Outbox:     events,
		Metrics:    metrics.NewBoardMetrics(registry),
		Logger:     logg,
		StaleAfter: cfg.Checkout.MutationStaleAfter,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Cart:     cartService,
		Wishlist: wishlistService,
		Checkout: checkoutService,
		Board:    board,
	}, nil
}
