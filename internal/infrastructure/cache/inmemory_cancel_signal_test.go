package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryCancelSignal(t *testing.T) {
	signal := NewInMemoryCancelSignal(time.Hour)
	defer signal.Close()

	ctx := context.Background()
	taskID := uuid.New()

	requested, err := signal.IsRequested(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, signal.Request(ctx, taskID))
	requested, err = signal.IsRequested(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, requested)

	other, err := signal.IsRequested(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, other, "requests are per task")

	require.NoError(t, signal.Clear(ctx, taskID))
	requested, err = signal.IsRequested(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, requested)
}

func TestInMemoryCancelSignal_Expiry(t *testing.T) {
	signal := NewInMemoryCancelSignal(10 * time.Millisecond)
	defer signal.Close()

	ctx := context.Background()
	taskID := uuid.New()
	require.NoError(t, signal.Request(ctx, taskID))

	time.Sleep(20 * time.Millisecond)

	requested, err := signal.IsRequested(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, requested, "expired request should be ignored")

	signal.cleanup()
	assert.Zero(t, signal.Size())
}

func TestInMemoryCancelSignal_Concurrent(t *testing.T) {
	signal := NewInMemoryCancelSignal(time.Hour)
	defer signal.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			_ = signal.Request(ctx, id)
			_, _ = signal.IsRequested(ctx, id)
			_ = signal.Clear(ctx, id)
		}()
	}
	wg.Wait()
	assert.Zero(t, signal.Size())
}

func TestInMemoryCancelSignal_CloseTwice(t *testing.T) {
	signal := NewInMemoryCancelSignal(0)
	assert.NoError(t, signal.Close())
	assert.NoError(t, signal.Close())
}

func TestNewCancelSignal_Disabled(t *testing.T) {
	signal, err := NewCancelSignal(config.RedisConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	defer signal.Close()
	assert.IsType(t, &InMemoryCancelSignal{}, signal)
}

func TestNewCancelSignal_RedisUnavailable(t *testing.T) {
	_, err := NewCancelSignal(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
