package exportapp

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/shared"
	"go.uber.org/zap"
)

// TaskEventHandler records metrics and logs for finished export tasks
type TaskEventHandler struct {
	metrics Metrics
	logger  *zap.Logger
}

// NewTaskEventHandler creates a new handler for export task lifecycle events
func NewTaskEventHandler(metrics Metrics, logger *zap.Logger) *TaskEventHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &TaskEventHandler{metrics: metrics, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *TaskEventHandler) EventTypes() []string {
	return []string{
		export.EventTypeExportTaskCompleted,
		export.EventTypeExportTaskFailed,
		export.EventTypeExportTaskCancelled,
	}
}

// Handle processes an export task lifecycle event
func (h *TaskEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var (
		summary export.TaskSummary
		status  export.TaskStatus
		fields  []zap.Field
	)
	switch e := event.(type) {
	case *export.ExportTaskCompletedEvent:
		summary, status = e.TaskSummary, export.TaskStatusCompleted
		fields = append(fields, zap.String("file_id", e.FileID.String()))
	case *export.ExportTaskFailedEvent:
		summary, status = e.TaskSummary, export.TaskStatusFailed
		fields = append(fields, zap.String("reason", e.Reason))
	case *export.ExportTaskCancelledEvent:
		summary, status = e.TaskSummary, export.TaskStatusCancelled
	default:
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	h.metrics.TaskFinished(ctx, summary.TypeCode, string(status), time.Duration(summary.DurationMillis)*time.Millisecond)
	h.logger.Info("export task event",
		append([]zap.Field{
			zap.String("event_type", event.EventType()),
			zap.String("task_id", summary.TaskID.String()),
			zap.String("tenant_id", event.TenantID().String()),
			zap.String("type_code", summary.TypeCode),
			zap.Int("processed", summary.ProcessedCount),
			zap.Int("succeeded", summary.SucceededCount),
			zap.Int("failed", summary.FailedCount),
		}, fields...)...,
	)
	return nil
}
