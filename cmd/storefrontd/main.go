package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookstore/services/storefront/internal/api"
	"github.com/bookstore/services/storefront/internal/auth"
	"github.com/bookstore/services/storefront/internal/cart"
	"github.com/bookstore/services/storefront/internal/clients"
	"github.com/bookstore/services/storefront/internal/config"
	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/events"
	grpcserver "github.com/bookstore/services/storefront/internal/grpc"
	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/bookstore/services/storefront/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Storefront service starting", zap.String("environment", cfg.Environment))

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.IsDevelopment() && os.Getenv("JWT_SECRET") == "" {
		log.Warn("JWT_SECRET not set, signing tokens with the development key")
	}

	// Connect to database
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	catalogRepo := repo.NewCatalogRepository(database, log)
	userRepo := repo.NewUserRepository(database, log)
	orderRepo := repo.NewOrderRepository(database, log)

	// Carts and revoked tokens live in Redis when configured
	var (
		carts    cart.Store    = cart.NewMemoryStore()
		denylist auth.Denylist = auth.NewMemoryDenylist()
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("Redis unavailable, keeping carts in memory", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
			carts = cart.NewRedisStore(rdb, cfg.CartTTL)
			denylist = auth.NewRedisDenylist(rdb)
			defer rdb.Close()
		}
	}

	// Connect to RabbitMQ
	log.Info("Connecting to RabbitMQ")
	var publisher events.Publisher
	amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
		publisher = events.NoopPublisher{}
	} else {
		publisher = amqpPublisher
	}
	defer publisher.Close()

	if cfg.ImageHostURL == "" {
		log.Warn("IMAGE_HOST_URL not set, profile picture upload disabled")
	}
	images := clients.NewImageClient(cfg.ImageHostURL, cfg.ImageHostAPIKey, cfg.ImageHostTimeout, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewServer(api.Deps{
		Catalog:            catalogRepo,
		Users:              userRepo,
		Orders:             orderRepo,
		Carts:              carts,
		Tokens:             auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, denylist),
		Images:             images,
		Publisher:          publisher,
		DB:                 database,
		Registry:           registry,
		Log:                log,
		AdminUsernames:     cfg.AdminUsernames,
		CORSOrigins:        cfg.CORSOrigins,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpcserver.NewServer(grpcserver.NewHealthServer(database, publisher, log), log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()
		server.WaitForEvents()
		return err
	})

	if err := group.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return
	}
	log.Info("Server stopped")
}
