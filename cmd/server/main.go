package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/internal/cache"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/router"
	"github.com/phonginreallife/enablement/services"
	"github.com/phonginreallife/enablement/store"
)

func main() {
	configPath := os.Getenv("ENABLEMENT_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := observability.NewLogger(config.App.Log.Level, config.App.Log.Format, os.Stdout)
	if config.App.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable (or config) is required")
	}
	if config.App.JWTSecret == "" {
		logger.Fatal("JWT_SECRET environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Set timezone to UTC for consistent time handling
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		logger.Warnf("Failed to set timezone to UTC: %v", err)
	}
	logger.Info("Connected to database successfully")

	var redisClient *redis.Client
	if config.App.RedisURL != "" {
		opts, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			logger.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("Redis unavailable, continuing without it: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	if config.App.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.NewGinRouter(router.Deps{
		Store:     store.NewPostgresStore(pg),
		Cache:     featureCache(redisClient, logger),
		Audit:     auditPublisher(redisClient, logger),
		Health:    observability.NewHealthChecker(pg, redisClient),
		Registry:  registry,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: config.App.JWTSecret,
		Quotas:    config.App.Quota.Defaults,
		MaxDepth:  config.App.Hierarchy.MaxDepth,
	})

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", config.App.Port).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
	logger.Info("API server stopped")
}

func featureCache(client *redis.Client, logger *logrus.Logger) cache.FeatureCache {
	switch config.App.Cache.Backend {
	case "none":
		return cache.Nop{}
	case "redis":
		if client != nil {
			return cache.NewRedisCache(client, config.App.Cache.TTL)
		}
		logger.Warn("cache.backend is redis but REDIS_URL is empty, using memory cache")
	}
	return cache.NewMemoryCache(config.App.Cache.Size, config.App.Cache.TTL)
}

func auditPublisher(client *redis.Client, logger *logrus.Logger) services.AuditPublisher {
	if !config.App.Audit.Enabled || client == nil {
		return services.NopAuditPublisher{}
	}
	return services.NewRedisAuditPublisher(client, config.App.Audit.Queue, logger)
}
