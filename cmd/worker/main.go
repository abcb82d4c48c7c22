package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/config"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/lock"
	"github.com/benvon/habitual/internal/logger"
	"github.com/benvon/habitual/internal/queue"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/benvon/habitual/internal/telemetry"
	"github.com/benvon/habitual/internal/workers"
	"go.uber.org/zap"
)

const (
	serviceName  = "habitual-worker"
	dlqInterval  = time.Hour
	dlqRetention = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Int("concurrency", cfg.DailyResetConcurrency),
		zap.Duration("dispatch_interval", cfg.DispatchInterval),
		zap.String("default_timezone", cfg.DefaultTimezone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(ctx, telemetry.Settings{
		Enabled:     cfg.OTELEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTELEndpoint,
	})
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
			}
		}()
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
	zapLogger.Info("connected_to_database")

	redisClient, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, queue.DefaultBackoff, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	userRepo := database.NewUserRepository(db)
	habitRepo := database.NewHabitRepository(db)
	historyRepo := database.NewHistoryRepository(db)
	taskRepo := database.NewTaskRepository(db)

	resolver := calendar.NewResolver(cfg.DefaultTimezone, zapLogger)
	locker := lock.NewLocker(redisClient, lock.DefaultTTL, zapLogger)
	orchestrator := scheduler.NewOrchestrator(userRepo, habitRepo, historyRepo, taskRepo, resolver, locker, cfg.DailyResetConcurrency, zapLogger)

	resetWorker := workers.NewDailyResetWorker(orchestrator, userRepo, jobQueue, resolver, zapLogger)
	dispatcher := workers.NewDispatcher(jobQueue, userRepo, resolver, redisClient, zapLogger)
	dlqGC := queue.NewGarbageCollector(jobQueue, dlqInterval, dlqRetention, zapLogger)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("worker_loop_stopped", zap.String("loop", name), zap.Error(err))
				// any dead loop stops the whole worker
				stop()
			}
		}()
	}

	run("daily_reset_consumer", func(ctx context.Context) error { return resetWorker.Run(ctx, cfg.RabbitMQPrefetch) })
	run("dispatcher", func(ctx context.Context) error { return dispatcher.Start(ctx, cfg.DispatchInterval) })
	run("dlq_gc", dlqGC.Start)

	zapLogger.Info("worker_started")
	<-ctx.Done()
	zapLogger.Info("worker_shutting_down")

	wg.Wait()
	zapLogger.Info("worker_stopped")
}
