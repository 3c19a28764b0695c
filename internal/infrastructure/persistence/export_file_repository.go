package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/erp/voucher-export/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormExportFileRepository implements export.FileRepository using GORM
type GormExportFileRepository struct {
	db *gorm.DB
}

// NewGormExportFileRepository creates a new GormExportFileRepository
func NewGormExportFileRepository(db *gorm.DB) *GormExportFileRepository {
	return &GormExportFileRepository{db: db}
}

// Ensure GormExportFileRepository implements the interface
var _ export.FileRepository = (*GormExportFileRepository)(nil)

// Create inserts the metadata of a stored file
func (r *GormExportFileRepository) Create(ctx context.Context, file *export.ExportFile) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(models.ExportFileModelFromDomain(file)).Error
}

// FindByID finds file metadata by ID within a tenant
func (r *GormExportFileRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*export.ExportFile, error) {
	var model models.ExportFileModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
