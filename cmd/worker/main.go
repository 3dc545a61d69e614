package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/membership-api/internal/cache"
	"github.com/benvon/membership-api/internal/config"
	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/invalidation"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/queue"
	"github.com/benvon/membership-api/internal/telemetry"
	"github.com/benvon/membership-api/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, FilePath: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName: "membership-worker",
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = telemetry.Shutdown(shutdownCtx, tp)
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	jobQueue, err := queue.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, 10, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_dependencies")

	viewCache := cache.NewViewCache(redisClient, cfg.ViewCacheTTL, zapLogger)
	// Billing writes invalidate like API writes. Consumed invalidations only purge, so
	// they never publish again.
	userRepo := database.NewUserRepository(db,
		database.WithNotifier(invalidation.Multi{viewCache, invalidation.NewQueuePublisher(jobQueue)}),
		database.WithLogger(zapLogger),
	)
	processor := workers.NewJobProcessor(userRepo, viewCache, jobQueue, zapLogger)

	msgs, errs, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx, msgs, errs)
	}()

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zapLogger.Info("worker_shutting_down")
	case <-done:
		zapLogger.Warn("worker_consumer_stopped")
	}
	cancel()
	<-done
	zapLogger.Info("worker_stopped")
}
