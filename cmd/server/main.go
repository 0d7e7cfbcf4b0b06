package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
	"github.com/rl1809/cart-checkout/internal/adapter/publisher"
	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == storage.DriverSQLite && !strings.HasPrefix(dsn, "file:") {
		dsn = storage.SQLiteDSN(dsn)
	}
	store, err := storage.Open(ctx, cfg.Database.Driver, dsn, storage.WithLockWait(cfg.Database.LockWaitTimeout))
	if err != nil {
		return err
	}
	defer store.Close()
	store.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	store.DB().SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
	store.DB().SetConnMaxLifetime(5 * time.Minute)
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	var (
		cache port.CartCache = storage.NopCartCache{}
		idem  port.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: 100,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the cache is optional; the breaker keeps a dead Redis off the request path
			logger.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
		cache = storage.NewBreakerCartCache(storage.NewRedisCartCache(rdb, cfg.Redis.CartTTL), 5, 30*time.Second)
		idem = storage.NewRedisIdempotencyStore(rdb, cfg.Checkout.IdempotencyTTL)
	}

	m := metrics.New()
	policy := service.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Checkout.MaxAttempts
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithRetryPolicy(policy),
		service.WithRecorder(m),
	}
	carts := service.NewCartService(store, cache, opts...)
	checkout := service.NewCheckoutService(store, cache, idem, opts...)
	orders := service.NewOrderService(store)
	catalog := service.NewCatalogService(store, opts...)

	if cfg.SeedFile != "" {
		products, err := storage.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := catalog.Seed(ctx, products); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	defer cancelPoll()
	if len(cfg.Kafka.Brokers) > 0 {
		writer := publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		poller := publisher.NewOutboxPoller(store.Repositories().Outbox, writer, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, m, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer poller.Close()
			poller.Run(pollCtx)
		}()
		logger.Info("outbox poller started", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	errCh := make(chan error, 2)
	resolver := handler.HeaderIdentity{}

	grpcHandler := handler.NewGRPCHandler(carts, checkout, orders, catalog, logger)
	grpcServer, healthServer := handler.NewGRPCServer(grpcHandler, resolver)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	httpHandler := handler.NewHTTPHandler(carts, checkout, orders, catalog, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(resolver, m),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.HTTPAddr != "" {
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", "error", runErr)
	}

	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	cancelPoll()
	wg.Wait()
	logger.Info("outbox poller stopped")

	return runErr
}
