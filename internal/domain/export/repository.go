package export

import (
	"context"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
)

// TaskFilter defines the filters for querying export tasks
type TaskFilter struct {
	Status   *TaskStatus          // Filter by status
	TypeCode *settlement.TypeCode // Filter by document type
	Page     int
	PageSize int
}

// TaskRepository defines the interface for export task persistence
type TaskRepository interface {
	// FindByID finds a task by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ExportTask, error)

	// FindAll returns the tasks of a tenant, newest first
	FindAll(ctx context.Context, tenantID uuid.UUID, filter TaskFilter) (shared.Paginated[*ExportTask], error)

	// FindPending finds pending tasks of every tenant (for recovery after restart)
	FindPending(ctx context.Context, limit int) ([]*ExportTask, error)

	// FindStale finds running tasks whose last saved progress is older than idleSince
	FindStale(ctx context.Context, idleSince time.Time) ([]*ExportTask, error)

	// Create inserts a new task
	Create(ctx context.Context, task *ExportTask) error

	// SaveWithLock updates a task if its version is unchanged and increments the version
	SaveWithLock(ctx context.Context, task *ExportTask) error
}
