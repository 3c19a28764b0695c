package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
)

// Format is the file format of an export
type Format string

const (
	FormatDBF  Format = "dbf"
	FormatXLSX Format = "xlsx"
)

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	return f == FormatDBF || f == FormatXLSX
}

// TaskStatus represents the status of an export task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsValid checks if the status is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// ErrorDetail is the failure of one document within a task
type ErrorDetail struct {
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	Code           string    `json:"code"`
	Message        string    `json:"message"`
}

// ExportTask tracks one asynchronous voucher export.
// Counts are mutated only by the runner that owns the task.
type ExportTask struct {
	shared.TenantAggregateRoot
	TypeCode       settlement.TypeCode `json:"type_code"`
	Conditions     map[string]string   `json:"conditions"`
	DisplayName    string              `json:"display_name"`
	Remark         string              `json:"remark"`
	Format         Format              `json:"format"`
	Reexport       bool                `json:"reexport"`
	Status         TaskStatus          `json:"status"`
	ExpectedCount  int64               `json:"expected_count"`
	ProcessedCount int                 `json:"processed_count"`
	SucceededCount int                 `json:"succeeded_count"`
	FailedCount    int                 `json:"failed_count"`
	EntryCount     int                 `json:"entry_count"`
	ErrorDetails   []ErrorDetail       `json:"error_details,omitempty"`
	FileID         *uuid.UUID          `json:"file_id,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`

	// permissions of the submitting user, re-checked per document by the runner
	ActorPermissions []string `json:"-"`
}

// NewExportTask creates a pending export task
func NewExportTask(
	tenantID uuid.UUID,
	createdBy uuid.UUID,
	typeCode settlement.TypeCode,
	conditions map[string]string,
	displayName string,
	remark string,
	format Format,
	reexport bool,
) (*ExportTask, error) {
	if !typeCode.IsValid() {
		return nil, shared.NewDomainError("INVALID_TYPE_CODE", fmt.Sprintf("Invalid type code: %s", typeCode))
	}
	if format == "" {
		format = FormatDBF
	}
	if !format.IsValid() {
		return nil, shared.NewDomainError("INVALID_FORMAT", fmt.Sprintf("Invalid export format: %s", format))
	}
	if displayName == "" {
		displayName = fmt.Sprintf("%s vouchers %s", typeCode, time.Now().Format("20060102150405"))
	}
	if conditions == nil {
		conditions = make(map[string]string)
	}

	return &ExportTask{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		TypeCode:            typeCode,
		Conditions:          conditions,
		DisplayName:         displayName,
		Remark:              remark,
		Format:              format,
		Reexport:            reexport,
		Status:              TaskStatusPending,
		ErrorDetails:        make([]ErrorDetail, 0),
	}, nil
}

// SetExpectedCount records the up-front estimate of matching documents
func (t *ExportTask) SetExpectedCount(count int64) error {
	if t.Status != TaskStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot set expected count in state: %s", t.Status))
	}
	if count < 0 {
		return shared.NewDomainError("INVALID_EXPECTED_COUNT", "Expected count cannot be negative")
	}
	t.ExpectedCount = count
	t.UpdatedAt = time.Now()
	return nil
}

// Start marks the task as picked up by a runner
func (t *ExportTask) Start() error {
	if t.Status != TaskStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start task from state: %s", t.Status))
	}
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.UpdatedAt = now
	return nil
}

// RecordSuccess counts one document whose entries were accumulated
func (t *ExportTask) RecordSuccess(entries int) {
	t.ProcessedCount++
	t.SucceededCount++
	t.EntryCount += entries
	t.UpdatedAt = time.Now()
}

// RecordFailure counts one document that was skipped with an error
func (t *ExportTask) RecordFailure(detail ErrorDetail) {
	t.ProcessedCount++
	t.FailedCount++
	t.ErrorDetails = append(t.ErrorDetails, detail)
	t.UpdatedAt = time.Now()
}

// Complete marks the task as completed with the produced file
func (t *ExportTask) Complete(fileID uuid.UUID) error {
	if t.Status != TaskStatusRunning {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete task from state: %s", t.Status))
	}
	t.Status = TaskStatusCompleted
	t.FileID = &fileID
	t.finish()
	t.AddDomainEvent(NewExportTaskCompletedEvent(t))
	return nil
}

// Fail marks the task as failed
func (t *ExportTask) Fail(reason string) error {
	if t.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail task from terminal state: %s", t.Status))
	}
	t.Status = TaskStatusFailed
	t.FailureReason = reason
	t.finish()
	t.AddDomainEvent(NewExportTaskFailedEvent(t))
	return nil
}

// Cancel marks the task as cancelled. A pending task may be cancelled before pick-up.
func (t *ExportTask) Cancel() error {
	if t.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel task from terminal state: %s", t.Status))
	}
	t.Status = TaskStatusCancelled
	t.finish()
	t.AddDomainEvent(NewExportTaskCancelledEvent(t))
	return nil
}

func (t *ExportTask) finish() {
	now := time.Now()
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// SetActorPermissions snapshots the permissions of the submitting user
func (t *ExportTask) SetActorPermissions(permissions []string) {
	t.ActorPermissions = append([]string(nil), permissions...)
}

// Actor returns the submitting user as seen by the runner
func (t *ExportTask) Actor() Actor {
	actor := Actor{TenantID: t.TenantID, Permissions: t.ActorPermissions}
	if t.CreatedBy != nil {
		actor.UserID = *t.CreatedBy
	}
	return actor
}

// IsTerminal returns true if the task can no longer change state
func (t *ExportTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// HasErrors returns true if any document failed
func (t *ExportTask) HasErrors() bool {
	return len(t.ErrorDetails) > 0
}

// FailedDocumentIDs returns the ids of the documents in the error list
func (t *ExportTask) FailedDocumentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(t.ErrorDetails))
	for i, d := range t.ErrorDetails {
		ids[i] = d.DocumentID
	}
	return ids
}

// Progress returns processed documents as a percentage of the expected count (0-100)
func (t *ExportTask) Progress() float64 {
	if t.Status == TaskStatusCompleted {
		return 100
	}
	if t.ExpectedCount == 0 {
		return 0
	}
	p := float64(t.ProcessedCount) / float64(t.ExpectedCount) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Duration returns how long the task has been running
func (t *ExportTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// ErrorDetailsJSON returns the error details as a JSON string
func (t *ExportTask) ErrorDetailsJSON() (string, error) {
	if len(t.ErrorDetails) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(t.ErrorDetails)
	if err != nil {
		return "", fmt.Errorf("failed to marshal error details: %w", err)
	}
	return string(data), nil
}

// SetErrorDetailsFromJSON parses error details from a JSON string
func (t *ExportTask) SetErrorDetailsFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		t.ErrorDetails = make([]ErrorDetail, 0)
		return nil
	}
	var details []ErrorDetail
	if err := json.Unmarshal([]byte(jsonStr), &details); err != nil {
		return fmt.Errorf("failed to unmarshal error details: %w", err)
	}
	t.ErrorDetails = details
	return nil
}

// ConditionsJSON returns the filter conditions as a JSON string
func (t *ExportTask) ConditionsJSON() (string, error) {
	if len(t.Conditions) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(t.Conditions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conditions: %w", err)
	}
	return string(data), nil
}

// SetConditionsFromJSON parses the filter conditions from a JSON string
func (t *ExportTask) SetConditionsFromJSON(jsonStr string) error {
	conditions := make(map[string]string)
	if jsonStr != "" {
		if err := json.Unmarshal([]byte(jsonStr), &conditions); err != nil {
			return fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
	}
	t.Conditions = conditions
	return nil
}
