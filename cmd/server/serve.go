package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
	"github.com/rl1809/cart-checkout/internal/adapter/messaging"
	"github.com/rl1809/cart-checkout/internal/adapter/payment"
	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/logger"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
	"github.com/rl1809/cart-checkout/internal/tracing"
)

const (
	serviceName    = "cart-checkout"
	healthInterval = 10 * time.Second
)

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	carts, closeCarts, err := openCartRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCarts()

	orders, closeOrders, err := openOrderRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeOrders()

	publisher, closePublisher := openPublisher(cfg, log)
	defer closePublisher()

	gateway := payment.NewHTTPGateway(cfg.Payment.Endpoint, cfg.Payment.Timeout)

	registry := service.NewSessionRegistry(carts, log, m)
	checkout := service.NewCheckoutService(gateway, orders, cfg.Payment.Currency, cfg.Checkout.QueueSize,
		otel.Tracer("checkout"), log, m)

	// Start worker pool
	var workers sync.WaitGroup
	for i := 0; i < cfg.Checkout.WorkerCount; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			checkout.RunNotificationWorker(id, publisher)
		}(i)
	}
	log.Info().Int("workers", cfg.Checkout.WorkerCount).Msg("started notification workers")

	grpcServer := grpc.NewServer()
	handler.RegisterCartServiceServer(grpcServer, handler.NewGRPCHandler(registry, checkout, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	checks := handler.HealthChecks{}
	if p, ok := carts.(handler.Pinger); ok {
		checks["redis"] = p
	}
	if p, ok := orders.(handler.Pinger); ok {
		checks["mysql"] = p
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(registry, checkout, log).WithHealthChecks(checks).Routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			checkout.Close()
			workers.Wait()
			return fmt.Errorf("listen grpc: %w", err)
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
			return grpcServer.Serve(lis)
		})
	}

	if cfg.HTTPAddr != "" {
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		registry.RunEviction(gctx, cfg.Checkout.SessionIdle, cfg.Checkout.EvictInterval)
		return nil
	})
	g.Go(func() error {
		checks.Watch(gctx, healthServer, handler.ServiceName, healthInterval, log)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		// in-flight confirmations may still be waiting on the payment endpoint
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Payment.Timeout+5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown")
		}
		log.Info().Msg("HTTP server stopped")

		healthServer.Shutdown()
		grpcServer.GracefulStop()
		log.Info().Msg("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Close notification queue and wait for workers
	checkout.Close()
	workers.Wait()
	log.Info().Msg("workers stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openCartRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (port.CartRepository, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Warn().Msg("no redis address configured, cart snapshots are kept in memory")
		return storage.NewMemoryCartAdapter(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	return storage.NewRedisAdapter(rdb, cfg.Redis.CartTTL), func() { rdb.Close() }, nil
}

func openOrderRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (port.OrderRepository, func(), error) {
	if cfg.MySQL.DSN == "" {
		log.Warn().Msg("no mysql dsn configured, orders are kept in memory")
		return storage.NewMemoryOrderAdapter(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	log.Info().Msg("connected to mysql")

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return adapter, func() { db.Close() }, nil
}

func openPublisher(cfg *config.Config, log zerolog.Logger) (port.NotificationPublisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return messaging.NewLogPublisher(log), func() {}
	}

	publisher := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing order events to kafka")
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka writer close")
		}
	}
}
