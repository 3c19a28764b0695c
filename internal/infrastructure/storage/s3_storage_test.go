package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ============================================================================
// Unit Tests (no external dependencies)
// ============================================================================

func testS3Config() *config.StorageConfig {
	return &config.StorageConfig{
		Driver:          "s3",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
	}
}

func TestNewS3ObjectStorage_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ObjectStorage(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		cfg := testS3Config()
		cfg.Bucket = ""
		_, err := NewS3ObjectStorage(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("access key without secret returns error", func(t *testing.T) {
		cfg := testS3Config()
		cfg.SecretAccessKey = ""
		_, err := NewS3ObjectStorage(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("secret without access key returns error", func(t *testing.T) {
		cfg := testS3Config()
		cfg.AccessKeyID = ""
		_, err := NewS3ObjectStorage(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("valid config creates storage", func(t *testing.T) {
		cfg := testS3Config()
		cfg.PresignExpiration = 30 * time.Minute
		storage, err := NewS3ObjectStorage(cfg)
		require.NoError(t, err)
		require.NotNil(t, storage)
		assert.Equal(t, "test-bucket", storage.GetBucket())
		assert.Equal(t, 30*time.Minute, storage.presignExpiration)
	})

	t.Run("endpoint without scheme gets https", func(t *testing.T) {
		cfg := testS3Config()
		cfg.Endpoint = "minio.internal:9000"
		storage, err := NewS3ObjectStorage(cfg)
		require.NoError(t, err)

		url, _, err := storage.GenerateDownloadURL(context.Background(), "k.dbf", time.Minute)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "https://minio.internal:9000/"))
	})

	t.Run("default presign expiration is 15 minutes", func(t *testing.T) {
		storage, err := NewS3ObjectStorage(testS3Config())
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, storage.presignExpiration)
	})
}

func TestS3ObjectStorageOptions(t *testing.T) {
	t.Run("WithLogger sets custom logger", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		storage, err := NewS3ObjectStorage(testS3Config(), WithLogger(logger))
		require.NoError(t, err)
		assert.Same(t, logger, storage.logger)
	})

	t.Run("WithLogger ignores nil", func(t *testing.T) {
		storage, err := NewS3ObjectStorage(testS3Config(), WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, storage.logger)
	})

	t.Run("WithPresignExpiration sets custom duration", func(t *testing.T) {
		storage, err := NewS3ObjectStorage(testS3Config(), WithPresignExpiration(1*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1*time.Hour, storage.presignExpiration)
	})
}

func TestS3ObjectStorage_GenerateDownloadURL(t *testing.T) {
	storage, err := NewS3ObjectStorage(testS3Config())
	require.NoError(t, err)

	t.Run("empty storage key returns error", func(t *testing.T) {
		url, _, err := storage.GenerateDownloadURL(context.Background(), "", 15*time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage key is required")
		assert.Empty(t, url)
	})

	t.Run("generates path style presigned URL", func(t *testing.T) {
		url, expiresAt, err := storage.GenerateDownloadURL(context.Background(), "exports/a/vouchers.dbf", 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(url, "http://localhost:9000/test-bucket/"))
		assert.Contains(t, url, "vouchers.dbf")
		assert.Contains(t, url, "X-Amz-Signature")
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
	})

	t.Run("uses default expiration when not provided", func(t *testing.T) {
		_, expiresAt, err := storage.GenerateDownloadURL(context.Background(), "exports/a/vouchers.dbf", 0)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)
	})
}

func TestS3ObjectStorage_EmptyKeyValidation(t *testing.T) {
	storage, err := NewS3ObjectStorage(testS3Config())
	require.NoError(t, err)
	ctx := context.Background()

	err = storage.Upload(ctx, "", []byte("test"), "text/plain")
	assert.ErrorContains(t, err, "storage key is required")

	err = storage.DeleteObject(ctx, "")
	assert.ErrorContains(t, err, "storage key is required")

	exists, err := storage.ObjectExists(ctx, "")
	assert.ErrorContains(t, err, "storage key is required")
	assert.False(t, exists)
}

func TestNewObjectStorage(t *testing.T) {
	t.Run("local driver", func(t *testing.T) {
		objects, err := NewObjectStorage(&config.StorageConfig{Driver: "local", LocalRoot: t.TempDir()}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &LocalObjectStorage{}, objects)
	})

	t.Run("s3 driver", func(t *testing.T) {
		objects, err := NewObjectStorage(testS3Config(), zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &S3ObjectStorage{}, objects)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewObjectStorage(&config.StorageConfig{Driver: "ftp"}, zap.NewNop())
		assert.ErrorContains(t, err, "unknown storage driver")
	})
}

// ============================================================================
// Integration Tests (require MinIO running)
// ============================================================================

// newIntegrationStorage skips unless STORAGE_INTEGRATION_ENDPOINT points at a
// MinIO or other S3-compatible server
func newIntegrationStorage(t *testing.T) *S3ObjectStorage {
	t.Helper()
	endpoint := os.Getenv("STORAGE_INTEGRATION_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test. Set STORAGE_INTEGRATION_ENDPOINT to enable.")
	}

	cfg := &config.StorageConfig{
		Bucket:          "voucher-export-test",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Endpoint:        endpoint,
		Region:          "us-east-1",
		UsePathStyle:    true,
	}
	storage, err := NewS3ObjectStorage(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBucket(context.Background()))
	return storage
}

func TestIntegration_UploadAndDelete(t *testing.T) {
	storage := newIntegrationStorage(t)
	ctx := context.Background()
	key := "integration-test/vouchers.dbf"

	require.NoError(t, storage.Upload(ctx, key, []byte("dbf"), "application/dbase"))

	exists, err := storage.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, storage.DeleteObject(ctx, key))

	exists, err = storage.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
