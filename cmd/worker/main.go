package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/workers"
)

func main() {
	logrus.Info("Starting workers...")

	// Load Config
	configPath := os.Getenv("ENABLEMENT_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := observability.NewLogger(config.App.Log.Level, config.App.Log.Format, os.Stdout)

	// Database connection
	if config.App.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable (or config) is required")
	}
	if config.App.RedisURL == "" {
		logger.Fatal("REDIS_URL environment variable (or config) is required")
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

	opts, err := redis.ParseURL(config.App.RedisURL)
	if err != nil {
		logger.Fatalf("Invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	auditWorker := workers.NewAuditWorker(pg, client, config.App.Audit.Queue, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := auditWorker.Run(ctx); err != nil {
			logger.WithError(err).Error("Audit worker exited")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()
	wg.Wait()
	logger.Info("Workers stopped")
}
