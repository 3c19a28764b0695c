package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans (dev only)
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // default "postgresql"
	TracerProvider  trace.TracerProvider
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus callbacks that annotate
// each query span with the table, the affected rows and a slow query flag.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBTracingConfig().SlowQueryThresh
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = DefaultDBTracingConfig().DBSystem
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(db *gorm.DB) { annotateSpan(db, cfg.SlowQueryThresh) }

	// annotations must run before otelgorm ends the span
	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("export_trace:before_create", before) },
		func() error { return cb.Query().Before("gorm:query").Register("export_trace:before_query", before) },
		func() error { return cb.Update().Before("gorm:update").Register("export_trace:before_update", before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("export_trace:before_delete", before) },
		func() error { return cb.Row().Before("gorm:row").Register("export_trace:before_row", before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("export_trace:before_raw", before) },
		func() error { return cb.Create().After("gorm:create").Before("otel:after:create").Register("export_trace:after_create", after) },
		func() error { return cb.Query().After("gorm:query").Before("otel:after:query").Register("export_trace:after_query", after) },
		func() error { return cb.Update().After("gorm:update").Before("otel:after:update").Register("export_trace:after_update", after) },
		func() error { return cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("export_trace:after_delete", after) },
		func() error { return cb.Row().After("gorm:row").Before("otel:after:row").Register("export_trace:after_row", after) },
		func() error { return cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("export_trace:after_raw", after) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

func annotateSpan(db *gorm.DB, slowThresh time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slowThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
