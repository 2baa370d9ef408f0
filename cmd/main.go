package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/api"
	"github.com/daniyalizadpanahi/swiftorder/internal/config"
	"github.com/daniyalizadpanahi/swiftorder/internal/events"
	"github.com/daniyalizadpanahi/swiftorder/internal/idempotency"
	"github.com/daniyalizadpanahi/swiftorder/internal/metrics"
	"github.com/daniyalizadpanahi/swiftorder/internal/payment"
	"github.com/daniyalizadpanahi/swiftorder/internal/ratelimit"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository/memory"
	"github.com/daniyalizadpanahi/swiftorder/internal/service"
	"github.com/daniyalizadpanahi/swiftorder/migrations"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("mysql", cfg.DSN())
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info().Msgf("Connected to DB %s", cfg.DBName)
				return db, nil
			}
			db.Close()
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s (%s:%s)", i+1, cfg.DBName, cfg.DBHost, cfg.DBPort)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, fmt.Errorf("failed to connect to DB %s at %s:%s after retries: %w", cfg.DBName, cfg.DBHost, cfg.DBPort, err)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn().Msg("Using the in-memory store; data is lost on restart")
		return memory.NewStore(cfg.CheckoutLockTimeout), func() {}, nil
	}

	db, err := connectDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.AutoMigrate(ctx, db, 3); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return repository.NewMySQLStore(db, cfg.CheckoutLockTimeout), func() { db.Close() }, nil
}

// limiterStore prefers the shared Redis window; without Redis each instance
// limits on its own with a token bucket of the same average rate.
func limiterStore(cfg *config.Config, rdb *redis.Client) middleware.RateLimiterStore {
	if rdb != nil {
		return ratelimit.NewRedisStore(rdb, cfg.RateLimit, cfg.RateWindow)
	}
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.RateLimit) / cfg.RateWindow.Seconds()),
		Burst:     cfg.RateLimit,
		ExpiresIn: 3 * cfg.RateWindow,
	})
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	var cache *service.ProductCache
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = service.NewProductCache(rdb, cfg.ProductCacheTTL)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set; rate limits are per instance and idempotency keys are not remembered")
	}

	kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer kafkaWriter.Close()
	publisher := events.NewKafkaPublisher(kafkaWriter)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srvMetrics := metrics.NewServerMetrics(reg, "api")

	orderService := service.NewOrderService(store, publisher)
	handlers := api.Handlers{
		Cart:    api.NewCartHandler(service.NewCartService(store)),
		Order:   api.NewOrderHandler(service.NewCheckoutService(store, publisher, srvMetrics), orderService, idempotency.NewStore(rdb, cfg.IdempotencyTTL)),
		Catalog: api.NewCatalogHandler(service.NewCatalogService(store, cache)),
		Payment: api.NewPaymentHandler(service.NewPaymentService(orderService, payment.NewClient(cfg.Payment))),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(srvMetrics.Middleware())
	e.Use(middleware.RateLimiterWithConfig(ratelimit.NewConfig(limiterStore(cfg, rdb))))

	api.Register(e, cfg.JWTSecret, handlers)

	e.GET("/health", func(c echo.Context) error {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "ok",
			"service": "swiftorder",
			"time":    time.Now().Format(time.RFC3339),
		}
		if err := store.Ping(c.Request().Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
		return c.JSON(status, body)
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Listening on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("swiftorder stopped")
	}
}
