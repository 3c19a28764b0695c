// Package storage keeps produced export files in object storage and records
// their metadata so a caller can later be handed a download location.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ObjectStorage is the minimal blob store the export file store needs
type ObjectStorage interface {
	// Upload stores data under the key, replacing any existing object
	Upload(ctx context.Context, storageKey string, data []byte, contentType string) error

	// GenerateDownloadURL returns a URL the caller can fetch the object from.
	// A zero expiry means the URL does not expire.
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)

	// DeleteObject removes the object
	DeleteObject(ctx context.Context, storageKey string) error

	// ObjectExists reports whether the object is present
	ObjectExists(ctx context.Context, storageKey string) (bool, error)
}

// NewObjectStorage creates the object storage selected by cfg.Driver
func NewObjectStorage(cfg *config.StorageConfig, logger *zap.Logger) (ObjectStorage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3ObjectStorage(cfg, WithLogger(logger))
	case "local", "":
		return NewLocalObjectStorage(cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
