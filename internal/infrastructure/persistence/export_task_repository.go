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

// GormExportTaskRepository implements export.TaskRepository using GORM
type GormExportTaskRepository struct {
	db *gorm.DB
}

// NewGormExportTaskRepository creates a new GormExportTaskRepository
func NewGormExportTaskRepository(db *gorm.DB) *GormExportTaskRepository {
	return &GormExportTaskRepository{db: db}
}

// Ensure GormExportTaskRepository implements the interface
var _ export.TaskRepository = (*GormExportTaskRepository)(nil)

// FindByID finds a task by ID within a tenant
func (r *GormExportTaskRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*export.ExportTask, error) {
	var model models.ExportTaskModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindAll returns the tasks of a tenant with pagination and filtering, newest first
func (r *GormExportTaskRepository) FindAll(
	ctx context.Context,
	tenantID uuid.UUID,
	filter export.TaskFilter,
) (shared.Paginated[*export.ExportTask], error) {
	query := r.db.WithContext(ctx).Model(&models.ExportTaskModel{}).
		Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.TypeCode != nil {
		query = query.Where("type_code = ?", *filter.TypeCode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*export.ExportTask]{}, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var taskModels []models.ExportTaskModel
	if err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&taskModels).Error; err != nil {
		return shared.Paginated[*export.ExportTask]{}, err
	}

	tasks, err := toDomainTasks(taskModels)
	if err != nil {
		return shared.Paginated[*export.ExportTask]{}, err
	}
	return shared.NewPaginated(tasks, total, page, pageSize), nil
}

// FindPending finds pending tasks of every tenant, oldest first
func (r *GormExportTaskRepository) FindPending(ctx context.Context, limit int) ([]*export.ExportTask, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", export.TaskStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var taskModels []models.ExportTaskModel
	if err := query.Find(&taskModels).Error; err != nil {
		return nil, err
	}
	return toDomainTasks(taskModels)
}

// FindStale finds running tasks that have not saved progress since idleSince.
// Every SaveWithLock refreshes updated_at, so a long run that keeps flushing
// progress is never stale.
func (r *GormExportTaskRepository) FindStale(ctx context.Context, idleSince time.Time) ([]*export.ExportTask, error) {
	var taskModels []models.ExportTaskModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", export.TaskStatusRunning, idleSince).
		Order("updated_at ASC").
		Find(&taskModels).Error; err != nil {
		return nil, err
	}
	return toDomainTasks(taskModels)
}

// Create inserts a new task
func (r *GormExportTaskRepository) Create(ctx context.Context, task *export.ExportTask) error {
	model := models.ExportTaskModelFromDomain(task)
	return r.db.WithContext(ctx).Create(model).Error
}

// SaveWithLock updates the task only if its stored version still matches.
// On success the task version is incremented and UpdatedAt refreshed; on
// conflict both are left as they were.
func (r *GormExportTaskRepository) SaveWithLock(ctx context.Context, task *export.ExportTask) error {
	expected, touched := task.Version, task.UpdatedAt
	task.IncrementVersion()
	task.UpdatedAt = time.Now()
	model := models.ExportTaskModelFromDomain(task)

	result := r.db.WithContext(ctx).
		Model(&models.ExportTaskModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", task.TenantID, task.ID, expected).
		Select("*").
		Omit("id", "tenant_id", "created_by", "created_at").
		Updates(model)
	if result.Error != nil {
		task.Version, task.UpdatedAt = expected, touched
		return result.Error
	}
	if result.RowsAffected == 0 {
		task.Version, task.UpdatedAt = expected, touched
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func toDomainTasks(taskModels []models.ExportTaskModel) ([]*export.ExportTask, error) {
	tasks := make([]*export.ExportTask, len(taskModels))
	for i := range taskModels {
		task, err := taskModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		tasks[i] = task
	}
	return tasks, nil
}
