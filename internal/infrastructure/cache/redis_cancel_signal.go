// Package cache holds the short-lived shared state of the export runtime:
// cancellation requests addressed to running tasks.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultCancelTTL bounds how long an unconsumed cancel request is kept
const DefaultCancelTTL = 24 * time.Hour

// RedisCancelSignal implements export.CancelSignal using Redis so that a
// cancel received by one replica reaches the runner on another
type RedisCancelSignal struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCancelSignal creates a cancel signal on an existing Redis client
func NewRedisCancelSignal(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCancelSignal {
	if keyPrefix == "" {
		keyPrefix = "voucher-export:"
	}
	if ttl <= 0 {
		ttl = DefaultCancelTTL
	}
	return &RedisCancelSignal{
		client:    client,
		keyPrefix: keyPrefix + "cancel:",
		ttl:       ttl,
	}
}

// Request records a cancel request for the task
func (s *RedisCancelSignal) Request(ctx context.Context, taskID uuid.UUID) error {
	if err := s.client.Set(ctx, s.key(taskID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	return nil
}

// IsRequested reports whether a cancel request is pending for the task
func (s *RedisCancelSignal) IsRequested(ctx context.Context, taskID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(taskID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cancel request: %w", err)
	}
	return n > 0, nil
}

// Clear removes the cancel request for the task
func (s *RedisCancelSignal) Clear(ctx context.Context, taskID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cancel request: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisCancelSignal) Close() error {
	return s.client.Close()
}

func (s *RedisCancelSignal) key(taskID uuid.UUID) string {
	return s.keyPrefix + taskID.String()
}

// Ensure RedisCancelSignal implements export.CancelSignal
var _ export.CancelSignal = (*RedisCancelSignal)(nil)
