package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/cartsync"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/guarantee"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/shopify"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/sweeper"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New("storefront", cfg.LogLevel)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx := context.Background()
	store, closeStore, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", slog.String("backend", cfg.StorageBackend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	breaker := circuitbreaker.New(circuitbreaker.Settings{Name: "shopify"}, log)
	shopifyClient := shopify.NewClient(shopify.Config{
		StoreDomain:     cfg.ShopifyStoreDomain,
		StorefrontToken: cfg.ShopifyStorefrontToken,
		APIVersion:      cfg.ShopifyAPIVersion,
		Timeout:         cfg.ShopifyTimeout,
	}, nil, breaker, log)

	sessions := session.NewManager(store, shopifyClient, session.Config{
		Cart: cart.Config{
			DefaultCurrency: cfg.DefaultCurrency,
			Sync: cartsync.Config{
				Debounce:       cfg.SyncDebounce,
				MaxRetries:     cfg.SyncMaxRetries,
				RetryBaseDelay: cfg.SyncRetryBaseDelay,
			},
		},
		Guarantee: guarantee.Config{TTL: cfg.GuaranteeTTL, Tick: cfg.GuaranteeTick},
		Sweeper:   sweeper.Config{Interval: cfg.CleanupInterval, InitialDelay: cfg.CleanupInitialDelay},
		IdleTTL:   cfg.SessionIdleTTL,
	}, log)
	defer sessions.Close()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(sessions, poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log)
		defer p.Close()
		go p.Run(runCtx)
		log.Info("order poller started", slog.String("topic", cfg.KafkaTopic))
	}

	router := h.NewRouter(
		h.NewCartHandler(sessions, cfg.RequestTimeout, log),
		h.NewGuaranteeHandler(sessions, cfg.RequestTimeout, log),
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", slog.String("port", cfg.HTTPPort), slog.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
	}

	log.Info("server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (cart.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, err
		}
		log.Info("redis ping succeeded", slog.String("addr", cfg.RedisAddr))
		return storage.NewRedisStorage(redisClient), func() { redisClient.Close() }, nil

	case config.BackendMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewMongoStorage(db)
		if err := store.CreateIndexes(ctx); err != nil {
			db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		log.Info("connected to mongodb", slog.String("db", cfg.MongoDBName))
		return store, func() { db.Client().Disconnect(context.Background()) }, nil

	default:
		log.Warn("using in-memory storage; carts are lost on restart")
		return storage.NewMemoryStorage(), func() {}, nil
	}
}
