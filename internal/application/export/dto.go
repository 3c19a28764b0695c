package exportapp

import (
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/google/uuid"
)

// SubmitExportCommand requests a new voucher export
type SubmitExportCommand struct {
	Actor       export.Actor
	TypeCode    string
	Conditions  map[string]string
	DisplayName string
	Remark      string
	Format      string
	Reexport    bool
}

// SubmitResult is returned once a task is accepted
type SubmitResult struct {
	TaskID        uuid.UUID         `json:"task_id"`
	ExpectedCount int64             `json:"expected_count"`
	Status        export.TaskStatus `json:"status"`
}

// TaskResponse is the status view of an export task
type TaskResponse struct {
	ID             uuid.UUID            `json:"id"`
	TypeCode       string               `json:"type_code"`
	DisplayName    string               `json:"display_name"`
	Remark         string               `json:"remark,omitempty"`
	Format         string               `json:"format"`
	Reexport       bool                 `json:"reexport"`
	Conditions     map[string]string    `json:"conditions"`
	Status         string               `json:"status"`
	ExpectedCount  int64                `json:"expected_count"`
	ProcessedCount int                  `json:"processed_count"`
	SucceededCount int                  `json:"succeeded_count"`
	FailedCount    int                  `json:"failed_count"`
	EntryCount     int                  `json:"entry_count"`
	Progress       float64              `json:"progress"`
	Errors         []export.ErrorDetail `json:"errors"`
	FileID         *uuid.UUID           `json:"file_id,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	CreatedBy      *uuid.UUID           `json:"created_by,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

// ToTaskResponse converts a domain task to its status view
func ToTaskResponse(t *export.ExportTask) *TaskResponse {
	if t == nil {
		return nil
	}
	errs := t.ErrorDetails
	if errs == nil {
		errs = []export.ErrorDetail{}
	}
	return &TaskResponse{
		ID:             t.ID,
		TypeCode:       t.TypeCode.String(),
		DisplayName:    t.DisplayName,
		Remark:         t.Remark,
		Format:         string(t.Format),
		Reexport:       t.Reexport,
		Conditions:     t.Conditions,
		Status:         string(t.Status),
		ExpectedCount:  t.ExpectedCount,
		ProcessedCount: t.ProcessedCount,
		SucceededCount: t.SucceededCount,
		FailedCount:    t.FailedCount,
		EntryCount:     t.EntryCount,
		Progress:       t.Progress(),
		Errors:         errs,
		FileID:         t.FileID,
		FailureReason:  t.FailureReason,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
		StartedAt:      t.StartedAt,
		CompletedAt:    t.CompletedAt,
	}
}

// TaskListQuery filters the task list
type TaskListQuery struct {
	Status   string
	TypeCode string
	Page     int
	PageSize int
}

// TaskListResponse is a page of tasks
type TaskListResponse struct {
	Tasks      []TaskResponse `json:"tasks"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// CancelExportCommand reverses the export markers of a window
type CancelExportCommand struct {
	Actor       export.Actor
	TypeCode    string
	WindowStart time.Time
	WindowEnd   time.Time
	ExtraFilter map[string]string
	Reason      string
}

// CancelFailure explains why one document kept its marker
type CancelFailure struct {
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	Code           string    `json:"code"`
	Reason         string    `json:"reason"`
}

// CancelExportResult reports the per-document outcome of a cancellation
type CancelExportResult struct {
	SuccessCount int             `json:"success_count"`
	FailedCount  int             `json:"failed_count"`
	FailedIDs    []uuid.UUID     `json:"failed_ids"`
	Failures     []CancelFailure `json:"failures"`
}
