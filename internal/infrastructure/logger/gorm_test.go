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

func newObservedGorm(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGorm(gormlogger.Info)
	quiet, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Error, quiet.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")

	t.Run("error", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn)
		gl.Trace(ctx, time.Now(), query("INSERT INTO payments", 0), errors.New("duplicate key"))
		entries := recorded.FilterMessage("SQL Error").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn)
		gl.Trace(ctx, time.Now(), query("SELECT * FROM bills", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())
	})

	t.Run("slow", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))
		gl.Trace(ctx, time.Now().Add(-time.Second), query("SELECT * FROM payments", 3), nil)
		assert.Equal(t, 1, recorded.FilterMessage("Slow SQL").Len())
	})

	t.Run("info logs queries at debug", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info)
		gl.Trace(ctx, time.Now(), query("SELECT 1", 1), nil)
		entries := recorded.FilterMessage("SQL Query").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})

	t.Run("silent", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Silent)
		gl.Trace(ctx, time.Now(), query("SELECT 1", 1), errors.New("x"))
		assert.Zero(t, recorded.Len())
	})
}

func TestGormLogger_LevelMethods(t *testing.T) {
	gl, recorded := newObservedGorm(gormlogger.Warn)
	ctx := context.Background()
	gl.Info(ctx, "migrated %d tables", 4)
	gl.Warn(ctx, "pool at %d%%", 90)
	gl.Error(ctx, "lost connection to %s", "postgres")
	assert.Equal(t, 2, recorded.Len())
	assert.Equal(t, 1, recorded.FilterMessage("lost connection to postgres").Len())
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
