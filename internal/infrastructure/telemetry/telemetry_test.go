package telemetry

import (
	"context"
	"testing"

	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewProviders_Disabled(t *testing.T) {
	p, err := NewProviders(context.Background(), config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base), "no bridge without telemetry")

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProviders_EnabledWithoutCollector(t *testing.T) {
	// exporters connect lazily, so creation succeeds without a collector
	cfg := config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "127.0.0.1:1",
		SamplingRatio:     1,
		ServiceName:       "voucher-export-test",
		Insecure:          true,
	}
	p, err := NewProviders(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, p.IsEnabled())

	_, span := p.Tracer().Start(context.Background(), "sampled")
	assert.True(t, span.IsRecording())
	span.End()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := p.BridgeLogger(zap.New(core))
	logger.Info("bridged")
	logger.Debug("below level")
	assert.Equal(t, 1, logs.Len(), "the base core still receives entries")

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	cancel()
	_ = p.Shutdown(ctx)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestLevelFilterCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	filtered := &levelFilterCore{Core: core, minLevel: zapcore.WarnLevel}

	assert.False(t, filtered.Enabled(zapcore.InfoLevel))
	assert.True(t, filtered.Enabled(zapcore.ErrorLevel))

	logger := zap.New(filtered.With([]zapcore.Field{zap.String("task_id", "t-1")}))
	logger.Info("dropped")
	logger.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "t-1", entry.ContextMap()["task_id"])
}
