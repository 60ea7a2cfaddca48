package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls gorm instrumentation.
type DBConfig struct {
	Tracing            bool
	Metrics            bool
	DBSystem           string
	IncludeQueryVars   bool
	SlowQueryThreshold time.Duration
}

// DefaultDBConfig returns tracing and metrics on, query variables off.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Tracing:            true,
		Metrics:            true,
		DBSystem:           "postgresql",
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

type dbStartKey struct{}

// DBInstrumentation is a gorm plugin recording query counts, latency and
// slow queries, and optionally installing otelgorm spans.
type DBInstrumentation struct {
	config DBConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	meter          metric.Meter
}

// NewDBInstrumentation builds the plugin. A nil meter disables metrics.
func NewDBInstrumentation(cfg DBConfig, meter metric.Meter, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	d := &DBInstrumentation{config: cfg, logger: logger, meter: meter}
	if !cfg.Metrics || meter == nil {
		d.config.Metrics = false
		return d, nil
	}

	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total",
		"Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total",
		"Queries slower than the configured threshold", "{query}"); err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin.
func (d *DBInstrumentation) Name() string { return "ledger:db_instrumentation" }

// Initialize implements gorm.Plugin.
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.config.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(d.config.DBSystem)}
		if !d.config.IncludeQueryVars {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("failed to register otelgorm: %w", err)
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("ledger:before_"+h.op, d.before); err != nil {
			return err
		}
		op := h.op
		if err := h.after("ledger:after_"+op, func(tx *gorm.DB) { d.after(tx, op) }); err != nil {
			return err
		}
	}

	d.logger.Info("Database instrumentation registered",
		zap.Bool("tracing", d.config.Tracing),
		zap.Bool("metrics", d.config.Metrics),
		zap.Duration("slow_query_threshold", d.config.SlowQueryThreshold),
	)
	return nil
}

func (d *DBInstrumentation) before(tx *gorm.DB) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tx.Statement.Context = context.WithValue(ctx, dbStartKey{}, time.Now())
}

func (d *DBInstrumentation) after(tx *gorm.DB, op string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(dbStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	slow := elapsed > d.config.SlowQueryThreshold
	table := tx.Statement.Table
	if table == "" {
		table = "unknown"
	}

	if d.config.Metrics {
		opAttr := AttrDBOperation.String(strings.ToUpper(op))
		d.queryTotal.Inc(ctx, opAttr)
		d.queryDuration.RecordDuration(ctx, elapsed, opAttr)
		if slow {
			d.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
		}
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		RecordError(span, tx.Error)
	}
	if slow {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.String("db.table", table),
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
		))
	}
}

// ObservePool registers an observable gauge reporting sql.DB pool state
// on every collection.
func (d *DBInstrumentation) ObservePool(sqlDB *sql.DB) error {
	if !d.config.Metrics || sqlDB == nil {
		return nil
	}
	gauge, err := d.meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	_, err = d.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(gauge, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(gauge, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(gauge, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		return nil
	}, gauge)
	return err
}
