package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/voucher-export/internal/bootstrap"
	"github.com/erp/voucher-export/internal/infrastructure/auth"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/erp/voucher-export/internal/infrastructure/logger"
	"github.com/erp/voucher-export/internal/infrastructure/persistence"
	"github.com/erp/voucher-export/internal/infrastructure/telemetry"
	"github.com/erp/voucher-export/internal/interfaces/http/handler"
	"github.com/erp/voucher-export/internal/interfaces/http/middleware"
	"github.com/erp/voucher-export/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Local development keeps secrets in .env; a missing file is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.FromConfig(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := providers.BridgeLogger(baseLog)
	defer func() {
		_ = logger.Sync(log)
	}()

	profiler, err := telemetry.NewProfiler(cfg.Telemetry.Profiling, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	log.Info("Starting voucher export service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.Bool("telemetry", providers.IsEnabled()),
		zap.Bool("profiling", profiler.IsEnabled()),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.TracerProvider = providers.TracerProvider()
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	stack, err := bootstrap.NewExportStack(cfg, db.DB, providers, bootstrap.Pooled, log)
	if err != nil {
		log.Fatal("Failed to build export stack", zap.Error(err))
	}
	if err := stack.Start(ctx); err != nil {
		log.Fatal("Failed to start export workers", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	secureConfig := middleware.DefaultSecurityConfig()
	secureConfig.HSTSEnabled = cfg.App.Env == "production"
	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.Enabled = providers.IsEnabled()
	if cfg.Telemetry.ServiceName != "" {
		tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(tracingConfig),
		logger.GinMiddleware(log),
		middleware.SpanErrorMarker(),
		middleware.CORSWithConfig(corsConfig),
		middleware.SecureWithConfig(secureConfig),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	jwtService := auth.NewJWTService(cfg.JWT)
	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log

	systemHandler := handler.NewSystemHandler(version, map[string]handler.Pinger{
		"database": db,
	})
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithGroupMiddleware(
			middleware.JWTAuthMiddlewareWithConfig(jwtConfig),
			middleware.TracingAttributeInjector(),
		),
	)
	r.Register(systemHandler).
		Register(handler.NewExportHandler(stack.Exports, stack.Cancellations, middleware.PermissionConfig{Logger: log}))
	r.Setup()

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
	// running tasks fail as interrupted; queued ones stay pending for the next janitor sweep
	if err := stack.Stop(shutdownCtx); err != nil {
		log.Error("Export workers did not stop cleanly", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Profiler shutdown failed", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
