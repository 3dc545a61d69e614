package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benvon/membership-api/internal/actions"
	"github.com/benvon/membership-api/internal/cache"
	"github.com/benvon/membership-api/internal/config"
	"github.com/benvon/membership-api/internal/database"
	"github.com/benvon/membership-api/internal/handlers"
	"github.com/benvon/membership-api/internal/invalidation"
	"github.com/benvon/membership-api/internal/logger"
	"github.com/benvon/membership-api/internal/middleware"
	"github.com/benvon/membership-api/internal/queue"
	"github.com/benvon/membership-api/internal/services/clerkauth"
	"github.com/benvon/membership-api/internal/services/oidc"
	"github.com/benvon/membership-api/internal/services/provisioning"
	"github.com/benvon/membership-api/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "membership-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, FilePath: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("auth_provider", cfg.AuthProvider),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, telemetry.Config{
			ServiceName: serviceName,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		}); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
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
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, 10, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	// Every user write purges the shared view cache, wakes in-process subscribers and
	// tells other processes through the queue.
	viewCache := cache.NewViewCache(redisClient, cfg.ViewCacheTTL, zapLogger)
	bus := invalidation.NewBus()
	userRepo := database.NewUserRepository(db,
		database.WithNotifier(invalidation.Multi{viewCache, bus, invalidation.NewQueuePublisher(jobQueue)}),
		database.WithLogger(zapLogger),
	)
	go logInvalidations(ctx, bus, zapLogger)

	reconciler := provisioning.NewReconciler(cache.NewReadThrough(userRepo, viewCache), zapLogger)
	userActions := actions.NewUserActions(userRepo, reconciler, zapLogger)
	gate := provisioning.Gate{SignupURL: cfg.SignupURL, PricingURL: cfg.PricingURL}

	var (
		authenticator middleware.Authenticator
		oidcProvider  *oidc.Provider
	)
	switch cfg.AuthProvider {
	case config.AuthProviderClerk:
		authenticator = clerkauth.New(cfg.ClerkSecretKey)
	default:
		oidcProvider = oidc.NewProvider(database.NewOIDCConfigRepository(db))
		authenticator = oidc.NewAuthenticator(oidcProvider, oidc.NewJWKSManager(ctx), cfg.OIDCProvider)
	}

	settingsRepo := database.NewSettingsRepository(db)
	corsReloader := middleware.NewCORSReloader(settingsRepo, cfg.FrontendURL, zapLogger, cfg.SettingsReloadInterval)
	limiterStore, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "membership_ratelimit"})
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	rateLimitReloader := middleware.NewRateLimitReloader(limiterStore, settingsRepo, cfg.DefaultRateLimit, zapLogger, cfg.SettingsReloadInterval)
	for _, rl := range []*middleware.Reloader{corsReloader, rateLimitReloader} {
		// A failure here is logged by Reload; the periodic loop retries.
		_ = rl.Reload(ctx)
	}
	rateLimitMW := rateLimitReloader.Middleware()

	webhookHandler, err := handlers.NewWebhookHandler(cfg.IdentityWebhookSecret, cfg.BillingWebhookSecret, userActions, jobQueue, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_webhook_handler", zap.Error(err))
	}
	authHandler := handlers.NewAuthHandler(oidcProvider, cfg.OIDCProvider, userActions, gate, zapLogger)
	userHandler := handlers.NewUserHandler(userActions)
	healthChecker := handlers.NewHealthChecker(map[string]handlers.CheckFunc{
		"database": db.HealthCheck,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"rabbitmq": jobQueue.HealthCheck,
	})

	r := mux.NewRouter()

	// Middleware registered first runs outermost.
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.Recover(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.VersionInfo).Methods(http.MethodGet)

	openAPIHandler, err := handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml"))
	if err != nil {
		zapLogger.Warn("openapi_document_unavailable", zap.Error(err))
	} else {
		openAPIHandler.RegisterRoutes(r)
	}

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	requireAuth := middleware.Auth(authenticator, reconciler, zapLogger)

	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	publicAuthRouter := authRouter.PathPrefix("").Subrouter()
	publicAuthRouter.Use(rateLimitMW)
	authHandler.RegisterPublicRoutes(publicAuthRouter)

	protectedAuthRouter := authRouter.PathPrefix("").Subrouter()
	protectedAuthRouter.Use(requireAuth)
	protectedAuthRouter.Use(rateLimitMW)
	authHandler.RegisterRoutes(protectedAuthRouter)

	proRouter := apiRouter.PathPrefix("/pro").Subrouter()
	proRouter.Use(requireAuth)
	proRouter.Use(rateLimitMW)
	proRouter.Use(middleware.RequireMembership(gate))
	proRouter.HandleFunc("/placeholder", handlers.ProPlaceholder).Methods(http.MethodGet)

	usersRouter := apiRouter.PathPrefix("/users").Subrouter()
	usersRouter.Use(rateLimitMW)
	usersRouter.Use(middleware.AdminToken(cfg.AdminAPIToken))
	userHandler.RegisterRoutes(usersRouter)

	webhooksRouter := apiRouter.PathPrefix("/webhooks").Subrouter()
	webhookHandler.RegisterRoutes(webhooksRouter)

	// Preflight requests are answered by the CORS middleware; this only gives them a route.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

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
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

// logInvalidations reports in-process invalidations until ctx is done.
func logInvalidations(ctx context.Context, bus *invalidation.Bus, log *zap.Logger) {
	events, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.Debug("user_views_invalidated",
				zap.String("identity", logger.SanitizeIdentity(ev.Identity)),
				zap.String("reason", string(ev.Reason)),
			)
		}
	}
}
