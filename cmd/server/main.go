package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/config"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/handlers"
	"github.com/benvon/habitual/internal/lock"
	"github.com/benvon/habitual/internal/logger"
	"github.com/benvon/habitual/internal/middleware"
	"github.com/benvon/habitual/internal/queue"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/benvon/habitual/internal/services/oidc"
	"github.com/benvon/habitual/internal/telemetry"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "habitual-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("default_timezone", cfg.DefaultTimezone),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()

	shutdownTracer, err := telemetry.Init(ctx, telemetry.Settings{
		Enabled:     cfg.OTELEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTELEndpoint,
	})
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		shutdownTracer = nil
	}
	if shutdownTracer != nil {
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
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
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

	// The API never enqueues; the broker is only connected for the extended health check.
	var queueCheck handlers.CheckFunc
	if cfg.RabbitMQURL != "" {
		jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, queue.DefaultBackoff, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		queueCheck = jobQueue.HealthCheck
	}

	userRepo := database.NewUserRepository(db)
	habitRepo := database.NewHabitRepository(db)
	historyRepo := database.NewHistoryRepository(db)
	taskRepo := database.NewTaskRepository(db)

	resolver := calendar.NewResolver(cfg.DefaultTimezone, zapLogger)
	locker := lock.NewLocker(redisClient, lock.DefaultTTL, zapLogger)
	orchestrator := scheduler.NewOrchestrator(userRepo, habitRepo, historyRepo, taskRepo, resolver, locker, cfg.DailyResetConcurrency, zapLogger)
	toggler := scheduler.NewToggler(habitRepo, historyRepo, resolver, zapLogger)

	if cfg.JWKSURL == "" {
		zapLogger.Warn("jwks_url_not_configured_all_api_requests_will_be_rejected")
	}
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(oidc.DefaultJWKSTTL), cfg.JWKSURL, cfg.JWTIssuer)

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	healthChecker := handlers.NewHealthChecker(map[string]handlers.CheckFunc{
		"database": db.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"queue":    queueCheck,
	})
	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}
	cronHandler := handlers.NewCronHandler(orchestrator, cfg.CronSecret, zapLogger)
	if cfg.CronSecret == "" {
		zapLogger.Info("cron_trigger_disabled")
	}
	habitHandler := handlers.NewHabitHandler(habitRepo, toggler, resolver, zapLogger)
	recurrenceHandler := handlers.NewRecurrenceHandler(habitRepo, historyRepo, resolver, zapLogger)
	meHandler := handlers.NewMeHandler(resolver)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order: the first registered is outermost
	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.FrontendURL, zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	openAPIHandler.RegisterRoutes(r)
	r.HandleFunc("/internal/daily-reset", cronHandler.DailyReset).Methods(http.MethodPost)

	// Timeout stays off the cron route: a batch run is not bounded by the request timeout.
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	apiRouter.Use(rateLimitMW)
	apiRouter.Use(middleware.Auth(userRepo, verifier, zapLogger))

	apiRouter.HandleFunc("/me", meHandler.GetMe).Methods(http.MethodGet)
	habitHandler.RegisterRoutes(apiRouter.PathPrefix("/habits").Subrouter())
	recurrenceHandler.RegisterRoutes(apiRouter.PathPrefix("/recurrences").Subrouter())

	// preflight requests get their headers from the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
