package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/ledgerbook/backend/internal/infrastructure/event"
	"github.com/ledgerbook/backend/internal/infrastructure/lock"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/memory"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"github.com/ledgerbook/backend/internal/interfaces/http/handler"
	"github.com/ledgerbook/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
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

	ctx := context.Background()

	// Telemetry: traces, metrics, log export and continuous profiling
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown(log, "tracer provider", tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer shutdown(log, "meter provider", mp.Shutdown)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		Level:             cfg.Log.Level,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer shutdown(log, "logger provider", lp.Shutdown)
	log = lp.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.AuthUser,
		BasicAuthPassword: cfg.Profiling.AuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if cfg.Profiling.Enabled && cfg.Profiling.SpanProfiles {
		tp.EnableSpanProfiles()
	}

	// nil meter and nil ledgerMetrics mean metrics are off
	var meter metric.Meter
	var ledgerMetrics *telemetry.LedgerMetrics
	if mp.IsEnabled() {
		meter = mp.Meter("github.com/ledgerbook/backend")
		ledgerMetrics, err = telemetry.NewLedgerMetrics(meter)
		if err != nil {
			log.Fatal("Failed to create ledger metrics", zap.Error(err))
		}
	}

	log.Info("Starting Ledgerbook",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("database_driver", cfg.Database.Driver),
	)

	// Storage
	store, txm, pinger, closeStore := openStore(ctx, cfg, meter, log)
	defer closeStore()

	// Party locks and receipt sequences
	locker, receipts, closeLocker := openLocker(ctx, cfg, log)
	defer closeLocker()

	// Event bus with the audit trail subscriber
	eventBus := event.NewInMemoryEventBus(log, event.WithBusMetrics(ledgerMetrics))
	eventBus.Subscribe(event.NewAuditLogHandler(log, event.NewEventSerializer()))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	opts := []ledgerapp.Option{
		ledgerapp.WithEventPublisher(eventBus),
		ledgerapp.WithMetrics(ledgerMetrics),
		ledgerapp.WithFinancialYearStart(time.Month(cfg.Ledger.FYStartMonth)),
		ledgerapp.WithAutoApplyAdvance(cfg.Ledger.AutoApplyAdvance),
		ledgerapp.WithReceiptSequencer(receipts),
	}
	paymentService := ledgerapp.NewPaymentService(store, txm, locker, log, opts...)
	billService := ledgerapp.NewBillService(store, paymentService, log, opts...)
	reportService := ledgerapp.NewReportService(store, log, opts...)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, stopEngine, err := router.NewEngine(router.Options{
		Logger:         log,
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Telemetry.ServiceName,
		Tracing:        tp.IsEnabled(),
		Meter:          meter,
		Profiling:      profiler.IsEnabled(),
		RequestTimeout: cfg.HTTP.WriteTimeout,
	}, router.Handlers{
		Parties:  handler.NewPartyHandler(billService, paymentService, reportService),
		Bills:    handler.NewBillHandler(billService),
		Payments: handler.NewPaymentHandler(paymentService),
		Reports:  handler.NewReportHandler(reportService),
		System:   handler.NewSystemHandler(pinger, version),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}
	defer stopEngine()

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
		return
	}
	log.Info("Server exited gracefully")
}

// openStore returns the ledger store for the configured driver. The pinger
// is nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, meter metric.Meter, log *zap.Logger) (ledger.Store, ledger.TransactionManager, handler.Pinger, func()) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Ledger is kept in memory; data is lost on restart")
		s := memory.New()
		return s, s, nil, func() {}
	}

	dbCfg := telemetry.DefaultDBConfig()
	dbCfg.Tracing = cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing
	dbCfg.Metrics = meter != nil
	dbCfg.IncludeQueryVars = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.SlowQueryThreshold > 0 {
		dbCfg.SlowQueryThreshold = cfg.Telemetry.SlowQueryThreshold
	}
	if cfg.Database.Driver == config.DriverSQLite {
		dbCfg.DBSystem = "sqlite"
	}
	instrumentation, err := telemetry.NewDBInstrumentation(dbCfg, meter, log)
	if err != nil {
		log.Fatal("Failed to create database instrumentation", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(dbCfg.SlowQueryThreshold))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithPlugin(instrumentation),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver))

	if sqlDB, err := db.DB.DB(); err == nil {
		if err := instrumentation.ObservePool(sqlDB); err != nil {
			log.Warn("Failed to observe connection pool", zap.Error(err))
		}
	}

	// Postgres schemas are managed by cmd/migrate
	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(ctx); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	s := persistence.NewGormStore(db.DB)
	return s, s, db, func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}
}

// openLocker returns a redis-backed party locker and receipt sequencer when
// redis is enabled. Otherwise the locker is in-process and the sequencer is
// nil, leaving the services on their in-process default.
func openLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (ledgerapp.PartyLocker, ledgerapp.ReceiptSequencer, func()) {
	if !cfg.Redis.Enabled {
		return lock.NewLocalPartyLocker(cfg.Ledger.LockWait), nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
	}
	log.Info("Redis party locks enabled", zap.String("addr", cfg.Redis.Addr()))

	locker := lock.NewRedisPartyLocker(client, lock.RedisConfig{
		TTL:  cfg.Ledger.LockTTL,
		Wait: cfg.Ledger.LockWait,
	}, log)
	return locker, lock.NewRedisReceiptSequencer(client, "", 0), func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	if err := fn(context.Background()); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
