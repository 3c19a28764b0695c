package export

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExportFile is the metadata of a produced export file. The bytes live in
// object storage under StorageKey.
type ExportFile struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CreatedBy   uuid.UUID
	Name        string
	Remark      string
	ContentType string
	Size        int64
	Checksum    string // hex sha256 of the content
	StorageKey  string
	CreatedAt   time.Time
}

// FileRepository persists export file metadata
type FileRepository interface {
	Create(ctx context.Context, file *ExportFile) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ExportFile, error)
}
