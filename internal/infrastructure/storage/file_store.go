package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ensure ExportFileStore implements export.FileStore
var _ export.FileStore = (*ExportFileStore)(nil)

// ExportFileStore uploads produced files to object storage and records their
// metadata. Objects are keyed prefix/tenant/yyyy/mm/file-id/name.
type ExportFileStore struct {
	objects ObjectStorage
	files   export.FileRepository
	prefix  string
	expiry  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportFileStore creates an export file store
func NewExportFileStore(
	objects ObjectStorage,
	files export.FileRepository,
	prefix string,
	expiry time.Duration,
	logger *zap.Logger,
) *ExportFileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportFileStore{
		objects: objects,
		files:   files,
		prefix:  strings.Trim(prefix, "/"),
		expiry:  expiry,
		logger:  logger,
		now:     time.Now,
	}
}

// Save uploads the file and records its metadata. If the metadata cannot be
// recorded the uploaded object is removed again.
func (s *ExportFileStore) Save(ctx context.Context, file export.StoredFile) (uuid.UUID, error) {
	if file.TenantID == uuid.Nil {
		return uuid.Nil, errors.New("tenant id is required")
	}
	name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return uuid.Nil, errors.New("file name is required")
	}

	now := s.now()
	sum := sha256.Sum256(file.Data)
	record := &export.ExportFile{
		ID:          uuid.New(),
		TenantID:    file.TenantID,
		CreatedBy:   file.CreatedBy,
		Name:        name,
		Remark:      file.Remark,
		ContentType: file.ContentType,
		Size:        int64(len(file.Data)),
		Checksum:    hex.EncodeToString(sum[:]),
		CreatedAt:   now,
	}
	record.StorageKey = s.storageKey(record.TenantID, record.ID, name, now)

	if err := s.objects.Upload(ctx, record.StorageKey, file.Data, file.ContentType); err != nil {
		return uuid.Nil, fmt.Errorf("upload export file: %w", err)
	}
	if err := s.files.Create(ctx, record); err != nil {
		if delErr := s.objects.DeleteObject(ctx, record.StorageKey); delErr != nil {
			s.logger.Warn("Failed to remove orphaned export file",
				zap.String("key", record.StorageKey),
				zap.Error(delErr),
			)
		}
		return uuid.Nil, fmt.Errorf("record export file: %w", err)
	}

	s.logger.Info("Export file stored",
		zap.String("file_id", record.ID.String()),
		zap.String("tenant_id", record.TenantID.String()),
		zap.String("name", name),
		zap.Int64("size", record.Size),
	)
	return record.ID, nil
}

// Locate returns where the file can be downloaded from
func (s *ExportFileStore) Locate(ctx context.Context, tenantID, fileID uuid.UUID) (*export.FileLocation, error) {
	file, err := s.files.FindByID(ctx, tenantID, fileID)
	if err != nil {
		return nil, err
	}

	url, expiresAt, err := s.objects.GenerateDownloadURL(ctx, file.StorageKey, s.expiry)
	if err != nil {
		return nil, err
	}

	loc := &export.FileLocation{
		FileID:      file.ID,
		Name:        file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		URL:         url,
	}
	if !expiresAt.IsZero() {
		loc.ExpiresAt = &expiresAt
	}
	return loc, nil
}

func (s *ExportFileStore) storageKey(tenantID, fileID uuid.UUID, name string, at time.Time) string {
	parts := []string{tenantID.String(), at.Format("2006/01"), fileID.String(), name}
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}
