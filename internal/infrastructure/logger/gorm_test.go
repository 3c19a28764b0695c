package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_LogMode(t *testing.T) {
	gormLog := NewGormLogger(zap.NewNop(), gormlogger.Info)
	newLogger := gormLog.LogMode(gormlogger.Warn)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
	newGormLog, ok := newLogger.(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, newGormLog.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "UPDATE settlement_documents SET exported_at = $1", 1 }

	t.Run("logs errors with request id", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn)
		ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-7")

		gormLog.Trace(ctx, time.Now(), query, errors.New("deadlock detected"))

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, "SQL Error", entry.Message)
		assert.Equal(t, "req-7", entry.ContextMap()["request_id"])
	})

	t.Run("skips record not found", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn)

		gormLog.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)

		assert.Equal(t, 0, recorded.Len())
	})

	t.Run("warns on slow queries", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(time.Millisecond))

		gormLog.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
	})

	t.Run("truncates long statements", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Info, WithMaxSQLLength(6))

		gormLog.Trace(context.Background(), time.Now(), query, nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, "UPDATE...", recorded.All()[0].ContextMap()["sql"])
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gormLog := NewGormLogger(zap.New(core), gormlogger.Silent)

		gormLog.Trace(context.Background(), time.Now(), query, errors.New("boom"))

		assert.Equal(t, 0, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
