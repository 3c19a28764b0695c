package cache

import (
	"fmt"
	"io"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"go.uber.org/zap"
)

// CancelSignalCloser is a cancel signal that owns resources
type CancelSignalCloser interface {
	export.CancelSignal
	io.Closer
}

// NewCancelSignal creates the cancel signal selected by configuration. When
// Redis is enabled it is required; a replica that silently fell back to
// memory would never see cancels addressed to it.
func NewCancelSignal(cfg config.RedisConfig, logger *zap.Logger) (CancelSignalCloser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("using in-memory cancel signal")
		return NewInMemoryCancelSignal(DefaultCancelTTL), nil
	}

	client, err := NewRedisClient(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cancel signal: %w", err)
	}
	logger.Info("using Redis cancel signal", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return NewRedisCancelSignal(client, cfg.KeyPrefix, DefaultCancelTTL), nil
}
