package export

import (
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeExportTask = "ExportTask"

// Event type constants
const (
	EventTypeExportTaskCompleted = "ExportTaskCompleted"
	EventTypeExportTaskFailed    = "ExportTaskFailed"
	EventTypeExportTaskCancelled = "ExportTaskCancelled"
)

// TaskSummary carries the counts of a finished task
type TaskSummary struct {
	TaskID         uuid.UUID `json:"task_id"`
	TypeCode       string    `json:"type_code"`
	Format         Format    `json:"format"`
	ProcessedCount int       `json:"processed_count"`
	SucceededCount int       `json:"succeeded_count"`
	FailedCount    int       `json:"failed_count"`
	EntryCount     int       `json:"entry_count"`
	DurationMillis int64     `json:"duration_ms"`
}

func summaryOf(t *ExportTask) TaskSummary {
	return TaskSummary{
		TaskID:         t.ID,
		TypeCode:       t.TypeCode.String(),
		Format:         t.Format,
		ProcessedCount: t.ProcessedCount,
		SucceededCount: t.SucceededCount,
		FailedCount:    t.FailedCount,
		EntryCount:     t.EntryCount,
		DurationMillis: t.Duration().Milliseconds(),
	}
}

// ExportTaskCompletedEvent is raised when a task produced its file
type ExportTaskCompletedEvent struct {
	shared.BaseDomainEvent
	TaskSummary
	FileID uuid.UUID `json:"file_id"`
}

// NewExportTaskCompletedEvent creates a new ExportTaskCompletedEvent
func NewExportTaskCompletedEvent(t *ExportTask) *ExportTaskCompletedEvent {
	e := &ExportTaskCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeExportTaskCompleted, AggregateTypeExportTask, t.ID, t.TenantID),
		TaskSummary:     summaryOf(t),
	}
	if t.FileID != nil {
		e.FileID = *t.FileID
	}
	return e
}

// EventType returns the event type name
func (e *ExportTaskCompletedEvent) EventType() string {
	return EventTypeExportTaskCompleted
}

// ExportTaskFailedEvent is raised when a task failed on an infrastructure fault
type ExportTaskFailedEvent struct {
	shared.BaseDomainEvent
	TaskSummary
	Reason string `json:"reason"`
}

// NewExportTaskFailedEvent creates a new ExportTaskFailedEvent
func NewExportTaskFailedEvent(t *ExportTask) *ExportTaskFailedEvent {
	return &ExportTaskFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeExportTaskFailed, AggregateTypeExportTask, t.ID, t.TenantID),
		TaskSummary:     summaryOf(t),
		Reason:          t.FailureReason,
	}
}

// EventType returns the event type name
func (e *ExportTaskFailedEvent) EventType() string {
	return EventTypeExportTaskFailed
}

// ExportTaskCancelledEvent is raised when a task was cancelled
type ExportTaskCancelledEvent struct {
	shared.BaseDomainEvent
	TaskSummary
}

// NewExportTaskCancelledEvent creates a new ExportTaskCancelledEvent
func NewExportTaskCancelledEvent(t *ExportTask) *ExportTaskCancelledEvent {
	return &ExportTaskCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeExportTaskCancelled, AggregateTypeExportTask, t.ID, t.TenantID),
		TaskSummary:     summaryOf(t),
	}
}

// EventType returns the event type name
func (e *ExportTaskCancelledEvent) EventType() string {
	return EventTypeExportTaskCancelled
}
