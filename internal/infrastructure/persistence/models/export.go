package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/google/uuid"
)

// ExportTaskModel is the persistence model for the ExportTask aggregate
type ExportTaskModel struct {
	TenantAggregateModel
	TypeCode         settlement.TypeCode `gorm:"type:varchar(20);not null;index"`
	Conditions       string              `gorm:"type:text;not null;default:'{}'"`
	DisplayName      string              `gorm:"type:varchar(255);not null"`
	Remark           string              `gorm:"type:varchar(500)"`
	Format           export.Format       `gorm:"type:varchar(10);not null;default:'dbf'"`
	Reexport         bool                `gorm:"not null;default:false"`
	Status           export.TaskStatus   `gorm:"type:varchar(20);not null;default:'pending';index"`
	ExpectedCount    int64               `gorm:"not null;default:0"`
	ProcessedCount   int                 `gorm:"not null;default:0"`
	SucceededCount   int                 `gorm:"not null;default:0"`
	FailedCount      int                 `gorm:"not null;default:0"`
	EntryCount       int                 `gorm:"not null;default:0"`
	ErrorDetails     string              `gorm:"type:text;not null;default:'[]'"`
	FileID           *uuid.UUID          `gorm:"type:uuid"`
	FailureReason    string              `gorm:"type:text"`
	ActorPermissions string              `gorm:"type:text;not null;default:'[]'"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// TableName returns the table name for GORM
func (ExportTaskModel) TableName() string {
	return "export_tasks"
}

// ToDomain converts the persistence model to a domain ExportTask. A stored
// column that cannot be decoded is an error: a task must never run with its
// filter conditions silently dropped.
func (m *ExportTaskModel) ToDomain() (*export.ExportTask, error) {
	task := &export.ExportTask{
		TypeCode:       m.TypeCode,
		DisplayName:    m.DisplayName,
		Remark:         m.Remark,
		Format:         m.Format,
		Reexport:       m.Reexport,
		Status:         m.Status,
		ExpectedCount:  m.ExpectedCount,
		ProcessedCount: m.ProcessedCount,
		SucceededCount: m.SucceededCount,
		FailedCount:    m.FailedCount,
		EntryCount:     m.EntryCount,
		FileID:         m.FileID,
		FailureReason:  m.FailureReason,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		ErrorDetails:   make([]export.ErrorDetail, 0),
		Conditions:     make(map[string]string),
	}
	m.PopulateTenantAggregateRoot(&task.TenantAggregateRoot)

	if err := task.SetConditionsFromJSON(m.Conditions); err != nil {
		return nil, fmt.Errorf("export task %s: %w", m.ID, err)
	}
	if err := task.SetErrorDetailsFromJSON(m.ErrorDetails); err != nil {
		return nil, fmt.Errorf("export task %s: %w", m.ID, err)
	}
	if m.ActorPermissions != "" {
		var permissions []string
		if err := json.Unmarshal([]byte(m.ActorPermissions), &permissions); err != nil {
			return nil, fmt.Errorf("export task %s: failed to unmarshal actor permissions: %w", m.ID, err)
		}
		task.SetActorPermissions(permissions)
	}
	return task, nil
}

// FromDomain populates the persistence model from a domain ExportTask
func (m *ExportTaskModel) FromDomain(t *export.ExportTask) {
	m.FromDomainTenantAggregateRoot(t.TenantAggregateRoot)
	m.TypeCode = t.TypeCode
	m.DisplayName = t.DisplayName
	m.Remark = t.Remark
	m.Format = t.Format
	m.Reexport = t.Reexport
	m.Status = t.Status
	m.ExpectedCount = t.ExpectedCount
	m.ProcessedCount = t.ProcessedCount
	m.SucceededCount = t.SucceededCount
	m.FailedCount = t.FailedCount
	m.EntryCount = t.EntryCount
	m.FileID = t.FileID
	m.FailureReason = t.FailureReason
	m.StartedAt = t.StartedAt
	m.CompletedAt = t.CompletedAt

	if conditionsJSON, err := t.ConditionsJSON(); err == nil {
		m.Conditions = conditionsJSON
	} else {
		m.Conditions = "{}"
	}
	if errorJSON, err := t.ErrorDetailsJSON(); err == nil {
		m.ErrorDetails = errorJSON
	} else {
		m.ErrorDetails = "[]"
	}
	m.ActorPermissions = "[]"
	if len(t.ActorPermissions) > 0 {
		if b, err := json.Marshal(t.ActorPermissions); err == nil {
			m.ActorPermissions = string(b)
		}
	}
}

// ExportTaskModelFromDomain creates a new persistence model from a domain ExportTask
func ExportTaskModelFromDomain(t *export.ExportTask) *ExportTaskModel {
	m := &ExportTaskModel{}
	m.FromDomain(t)
	return m
}

// ExportFileModel records a produced export file and where its bytes live
type ExportFileModel struct {
	BaseModel
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid"`
	Name        string     `gorm:"type:varchar(255);not null"`
	Remark      string     `gorm:"type:varchar(500)"`
	ContentType string     `gorm:"type:varchar(100);not null"`
	Size        int64      `gorm:"not null;default:0"`
	Checksum    string     `gorm:"type:varchar(64)"`
	StorageKey  string     `gorm:"type:varchar(512);not null"`
}

// TableName returns the table name for GORM
func (ExportFileModel) TableName() string {
	return "export_files"
}

// ToDomain converts the persistence model to a domain ExportFile
func (m *ExportFileModel) ToDomain() *export.ExportFile {
	f := &export.ExportFile{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Name:        m.Name,
		Remark:      m.Remark,
		ContentType: m.ContentType,
		Size:        m.Size,
		Checksum:    m.Checksum,
		StorageKey:  m.StorageKey,
		CreatedAt:   m.CreatedAt,
	}
	if m.CreatedBy != nil {
		f.CreatedBy = *m.CreatedBy
	}
	return f
}

// ExportFileModelFromDomain creates a new persistence model from a domain ExportFile
func ExportFileModelFromDomain(f *export.ExportFile) *ExportFileModel {
	m := &ExportFileModel{
		BaseModel: BaseModel{
			ID:        f.ID,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.CreatedAt,
		},
		TenantID:    f.TenantID,
		Name:        f.Name,
		Remark:      f.Remark,
		ContentType: f.ContentType,
		Size:        f.Size,
		Checksum:    f.Checksum,
		StorageKey:  f.StorageKey,
	}
	if f.CreatedBy != uuid.Nil {
		createdBy := f.CreatedBy
		m.CreatedBy = &createdBy
	}
	return m
}

// MarkerReversalModel is the audit row written when an export marker is cleared
type MarkerReversalModel struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	DocumentID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	TypeCode           string     `gorm:"type:varchar(20);not null"`
	PreviousExportedAt *time.Time
	PreviousTaskID     *uuid.UUID `gorm:"type:uuid"`
	Reason             string     `gorm:"type:varchar(500)"`
	ReversedBy         uuid.UUID  `gorm:"type:uuid"`
	ReversedAt         time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarkerReversalModel) TableName() string {
	return "export_marker_reversals"
}
