package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/erp/connector/docs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	connectorapp "github.com/erp/connector/internal/application/connector"
	webhookapp "github.com/erp/connector/internal/application/webhook"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/infrastructure/cache"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/event"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/marketplace"
	"github.com/erp/connector/internal/infrastructure/persistence"
	"github.com/erp/connector/internal/infrastructure/scheduler"
	"github.com/erp/connector/internal/infrastructure/storage"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/erp/connector/internal/interfaces/http/router"
)

//	@title			Marketplace Connector API
//	@version		1.0
//	@description	Connects tenant accounts to external marketplaces through OAuth2 consent or API keys
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/connector
//	@contact.email	support@erp.example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

const (
	serviceVersion = "1.0.0"

	// per tenant on the connector endpoint, per marketplace and client IP on webhooks
	tenantRateLimit  = 60
	webhookRateLimit = 600
	rateLimitWindow  = time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry: logs bridge first so the service logger can tee into it
	logExporter, err := telemetry.NewLogExporter(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logExporter.Enabled() {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		logCfg.Extra = []zapcore.Core{logExporter.Core(cfg.Telemetry.ServiceName, level)}
		if log, err = logger.New(logCfg); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketplace connector",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := meterProvider.Meter("github.com/erp/connector")

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Warn("Profiler not started", zap.Error(err))
	} else if cfg.Telemetry.ProfilingEnabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles not enabled", zap.Error(err))
		}
	}

	connectorMetrics, err := telemetry.NewConnectorMetrics(meter)
	if err != nil {
		log.Warn("Connector metrics disabled", zap.Error(err))
		connectorMetrics = nil
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	log.Info("Database connected successfully")

	cipher, err := persistence.NewCredentialCipher(cfg.Connector.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid credential encryption key", zap.Error(err))
	}
	integrationRepo := persistence.NewGormIntegrationRepository(db.DB, cipher)
	registrationRepo := persistence.NewGormWebhookRegistrationRepository(db.DB, cipher)
	markerRepo := persistence.NewGormSyncMarkerRepository(db.DB)

	// State, locks and delivery dedupe
	stores, err := cache.NewStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize connector stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing connector stores", zap.Error(err))
		}
	}()

	providers, err := marketplace.NewRegistry(cfg.Marketplaces, marketplace.WithMetrics(connectorMetrics))
	if err != nil {
		log.Fatal("Failed to build marketplace registry", zap.Error(err))
	}
	log.Info("Marketplaces configured", zap.Int("count", len(cfg.Marketplaces)))

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	auditHandler := event.NewAuditHandler(log)
	eventBus.Subscribe(auditHandler, auditHandler.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// The scheduler retries webhook provisioning through the registrar and
	// refreshes tokens through the backend; both are built after it.
	var (
		registrar *webhookapp.Registrar
		backend   *connectorapp.Service
	)
	executor := scheduler.NewConnectorExecutor(
		integrationRepo,
		scheduler.WebhookRegistrarFunc(func(ctx context.Context, i *integration.Integration) error {
			return registrar.Register(ctx, i)
		}),
		scheduler.TokenRefresherFunc(func(ctx context.Context, tenantID uuid.UUID, mp integration.Marketplace) error {
			_, err := backend.Refresh(ctx, tenantID, connectorapp.RefreshRequest{Marketplace: mp})
			return err
		}),
		log.Named("jobs"),
	)
	jobs := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:       cfg.Scheduler.Enabled,
		Workers:       cfg.Scheduler.Workers,
		QueueSize:     cfg.Scheduler.QueueSize,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    cfg.Scheduler.RetryDelay,
	}, executor, log.Named("scheduler"))

	var retries webhookapp.RetryQueue
	if cfg.Scheduler.Enabled {
		retries = jobs
	}
	registrar = webhookapp.NewRegistrar(webhookapp.Dependencies{
		Registrations: registrationRepo,
		Markers:       markerRepo,
		Providers:     providers,
		Retries:       retries,
		Events:        eventBus,
		Metrics:       connectorMetrics,
		Logger:        log.Named("webhook"),
	}, cfg.Connector.WebhookBaseURL())

	backend = connectorapp.NewService(connectorapp.Dependencies{
		Integrations: integrationRepo,
		Providers:    providers,
		States:       stores.State,
		Locker:       stores.Locker,
		Webhooks:     registrar,
		Events:       eventBus,
		Metrics:      connectorMetrics,
		Logger:       log.Named("connector"),
	}, connectorapp.Config{
		RedirectURL:     cfg.Connector.RedirectURL,
		StateTTL:        cfg.Connector.StateTTL,
		ProviderTimeout: cfg.Connector.ProviderTimeout,
	})

	if cfg.Scheduler.Enabled {
		if err := jobs.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer func() {
			if err := jobs.Stop(context.Background()); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()

		refreshTrigger := scheduler.NewRefreshTrigger(scheduler.RefreshTriggerConfig{
			Interval: cfg.Connector.RefreshSweepInterval,
			Ahead:    cfg.Connector.RefreshAhead,
		}, jobs, integrationRepo, log.Named("refresh"))
		if err := refreshTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start refresh trigger", zap.Error(err))
		}
		defer func() {
			if err := refreshTrigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping refresh trigger", zap.Error(err))
			}
		}()
	}

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	securityConfig := middleware.DefaultSecurityConfig()
	securityConfig.HSTSEnabled = cfg.IsProduction()

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.Enabled(),
		}),
		middleware.HTTPMetrics(meter),
		logger.GinMiddleware(log),
		middleware.SecureWithConfig(securityConfig),
		middleware.CORSWithConfig(corsConfig),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.SpanEnricher(),
	)

	tenantLimiter := middleware.NewRateLimiter(tenantRateLimit, rateLimitWindow)
	defer tenantLimiter.Close()
	webhookLimiter := middleware.NewRateLimiter(webhookRateLimit, rateLimitWindow)
	defer webhookLimiter.Close()

	jwtService := auth.NewJWTService(cfg.JWT)
	connectorHandler := handler.NewConnectorHandler(backend, providers)
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return db.Ping(ctx) },
		"redis":    stores.Ping,
	}

	var archive handler.PayloadArchive
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3Archive(cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create payload archive", zap.Error(err))
		}
		bucketCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s3Archive.EnsureBucket(bucketCtx); err != nil {
			log.Warn("Payload archive bucket unavailable", zap.Error(err))
		}
		cancel()
		archive = s3Archive
		checks["storage"] = s3Archive.Ping
		log.Info("Webhook payload archive enabled", zap.String("bucket", s3Archive.Bucket()))
	}

	webhookHandler := handler.NewWebhookHandler(handler.WebhookHandlerConfig{
		Registrations: registrar,
		Deliveries:    stores.Idempotency,
		Events:        eventBus,
		Metrics:       connectorMetrics,
		Archive:       archive,
		DedupTTL:      cfg.Connector.WebhookDedupTTL,
	})
	callbackHandler := handler.NewCallbackHandler()
	systemHandler := handler.NewSystemHandler(cfg.App.Name, serviceVersion, checks)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	systemRoutes := router.NewDomainGroup("system", "")
	systemRoutes.GET("/health", systemHandler.Health)
	systemRoutes.GET("/ready", systemHandler.Ready)

	oauthRoutes := router.NewDomainGroup("oauth", "/oauth")
	oauthRoutes.GET("/callback", callbackHandler.Callback)

	connectorRoutes := router.NewDomainGroup("connector", "/connector")
	connectorRoutes.Use(
		middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{Validator: jwtService, Logger: log}),
		middleware.RequireAnyPermissionWithConfig(middleware.PermissionConfig{Logger: log}, auth.PermissionConnect, auth.PermissionRead),
		middleware.RateLimitByKey(tenantLimiter, middleware.TenantRateLimitKey),
	)
	connectorRoutes.POST("", connectorHandler.Dispatch)

	webhookRoutes := router.NewDomainGroup("webhooks", "/webhooks")
	webhookRoutes.Use(middleware.RateLimitByKey(webhookLimiter, middleware.WebhookRateLimitKey))
	webhookRoutes.POST("/:marketplace/:id", webhookHandler.Receive)

	r.RegisterPublic(systemRoutes).
		RegisterPublic(oauthRoutes).
		Register(connectorRoutes).
		Register(webhookRoutes)

	if cfg.Swagger.Enabled {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		log.Info("Swagger UI enabled", zap.String("path", "/swagger/index.html"))
	}

	r.Setup()
	for _, route := range r.Routes() {
		log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			log.Warn("Error stopping profiler", zap.Error(err))
		}
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logExporter.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
