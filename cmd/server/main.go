package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	federationapp "github.com/xtravels/backend/internal/application/federation"
	masterdataapp "github.com/xtravels/backend/internal/application/masterdata"
	pricingapp "github.com/xtravels/backend/internal/application/pricing"
	sequenceapp "github.com/xtravels/backend/internal/application/sequence"
	travelapp "github.com/xtravels/backend/internal/application/travel"
	"github.com/xtravels/backend/internal/infrastructure/cache"
	"github.com/xtravels/backend/internal/infrastructure/config"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/persistence"
	"github.com/xtravels/backend/internal/infrastructure/persistence/models"
	"github.com/xtravels/backend/internal/infrastructure/remote"
	"github.com/xtravels/backend/internal/infrastructure/scheduler"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"github.com/xtravels/backend/internal/interfaces/http/handler"
	"github.com/xtravels/backend/internal/interfaces/http/middleware"
	"github.com/xtravels/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting xtravels backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signals, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = signals.Shutdown(context.Background()) }()
	log = signals.Bridge(log, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.NewGormLogger(log, gormLogLevel,
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh)))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	log.Info("Database connected",
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.DBName),
	)

	if cfg.Database.Driver == config.DriverSQLite {
		// postgres schemas are managed by cmd/migrate
		if err := db.DB.AutoMigrate(models.All()...); err != nil {
			return err
		}
	}

	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        db.System(),
	}, log).Register(db.DB); err != nil {
		return err
	}

	meter := signals.Meter(cfg.Telemetry.ServiceName)
	dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DBMetricsConfig{
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		return err
	}
	if err := dbMetrics.Register(ctx, db.DB); err != nil {
		return err
	}
	defer dbMetrics.Stop()

	metrics, err := telemetry.NewFederationMetrics(meter)
	if err != nil {
		return err
	}

	registry := schema.NewTravelRegistry()
	local := store.NewGormStore(db.DB, registry)

	locker, err := cache.NewScopeLockerFactory(cfg.Redis, cfg.Sequence, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		return err
	}
	checks := map[string]handler.Pinger{
		"database": db,
	}
	if redisLocker, ok := locker.(*cache.RedisScopeLocker); ok {
		defer func() { _ = redisLocker.Close() }()
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisLocker.GetClient().Ping(ctx).Err()
		})
	}

	source, err := remote.NewSource(cfg.Federation, registry, log)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	replicas := federationapp.NewCache(local, source, registry,
		federationapp.WithReadTimeout(cfg.Federation.ReadTimeout),
		federationapp.WithMaxDepth(cfg.Federation.MaxExpandDepth),
		federationapp.WithLogger(log),
		federationapp.WithMetrics(metrics),
	)
	engine := pricingapp.NewEngine(registry,
		pricingapp.WithMetrics(metrics),
		pricingapp.WithLogger(log),
	)
	allocator := sequenceapp.NewAllocator(locker,
		sequenceapp.WithLockWait(cfg.Sequence.LockWait),
		sequenceapp.WithMetrics(metrics),
		sequenceapp.WithLogger(log),
	)

	// Before handlers assign keys first; after handlers recompute totals
	// before newly referenced master data is replicated.
	dispatcher := event.NewDispatcher(log)
	sequenceapp.NewNumbering(allocator, log).Register(dispatcher)
	engine.Register(dispatcher)
	replicas.Register(dispatcher)

	masterData := persistence.NewGormMasterDataRepository(db.DB)
	executor := travelapp.NewExecutor(local, dispatcher, cfg.Sequence.MaxRetries, metrics, log)
	travelService := travelapp.NewService(
		persistence.NewGormTravelRepository(db.DB),
		masterData,
		executor,
		local,
		engine,
		log,
	)

	ginEngine, err := router.NewEngine(router.EngineConfig{
		Mode:           ginMode(cfg.App.Env),
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		CORS: middleware.CORSConfig{
			AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
			AllowMethods:  cfg.HTTP.CORSAllowMethods,
			AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders: []string{middleware.RequestIDHeader, "Content-Language"},
			MaxAge:        12 * time.Hour,
		},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		Locales:        cfg.HTTP.Locales,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.Handlers{
		Travel:    handler.NewTravelHandler(travelService),
		ValueHelp: handler.NewValueHelpHandler(masterdataapp.NewService(replicas, masterData)),
		Query:     handler.NewQueryHandler(local, registry),
		System:    handler.NewSystemHandler(cfg.App.Name, version, checks),
	}, log)
	if err != nil {
		return err
	}

	jobs := scheduler.NewScheduler(log)
	if cfg.Federation.InitialLoad || cfg.Federation.RefreshInterval > 0 {
		if err := jobs.Register(scheduler.Job{
			Name:       "federation.initial_load",
			Run:        replicas.InitialLoad,
			RunAtStart: cfg.Federation.InitialLoad,
			Interval:   cfg.Federation.RefreshInterval,
			MaxRetries: 3,
			RetryDelay: 30 * time.Second,
		}); err != nil {
			return err
		}
	}
	if err := jobs.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = jobs.Stop(stopCtx)
	}()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ginMode(env string) string {
	switch env {
	case "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
