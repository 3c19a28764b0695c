package exportapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher hands accepted tasks to a runner
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, taskID uuid.UUID) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, tenantID, taskID uuid.UUID) error

// Dispatch calls f
func (f DispatcherFunc) Dispatch(ctx context.Context, tenantID, taskID uuid.UUID) error {
	return f(ctx, tenantID, taskID)
}

// ExportService accepts export requests and answers task queries
type ExportService struct {
	tasks         export.TaskRepository
	documents     export.DocumentSource
	files         export.FileStore
	signals       export.CancelSignal
	dispatcher    Dispatcher
	events        shared.EventPublisher
	defaultFormat export.Format
	logger        *zap.Logger
}

// ExportServiceDeps holds the collaborators of an ExportService
type ExportServiceDeps struct {
	Tasks         export.TaskRepository
	Documents     export.DocumentSource
	Files         export.FileStore
	Signals       export.CancelSignal
	Dispatcher    Dispatcher
	Events        shared.EventPublisher
	DefaultFormat export.Format
	Logger        *zap.Logger
}

// NewExportService creates a new ExportService
func NewExportService(deps ExportServiceDeps) *ExportService {
	s := &ExportService{
		tasks:         deps.Tasks,
		documents:     deps.Documents,
		files:         deps.Files,
		signals:       deps.Signals,
		dispatcher:    deps.Dispatcher,
		events:        deps.Events,
		defaultFormat: deps.DefaultFormat,
		logger:        deps.Logger,
	}
	if s.defaultFormat == "" {
		s.defaultFormat = export.FormatDBF
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Submit validates the request, creates a pending task and dispatches it.
// Malformed requests are rejected with a ValidationError before any task exists.
func (s *ExportService) Submit(ctx context.Context, cmd SubmitExportCommand) (*SubmitResult, error) {
	typeCode, err := settlement.ParseTypeCode(cmd.TypeCode)
	if err != nil {
		return nil, export.NewValidationError("type_code", err.Error())
	}
	if len(cmd.Conditions) == 0 {
		return nil, export.NewValidationError("conditions", "at least one filter condition is required")
	}
	conditions, err := settlement.ParseConditions(cmd.Conditions)
	if err != nil {
		return nil, export.NewValidationError("conditions", err.Error())
	}
	format := export.Format(cmd.Format)
	if format == "" {
		format = s.defaultFormat
	}
	if !format.IsValid() {
		return nil, export.NewValidationError("format", fmt.Sprintf("unsupported format %q", cmd.Format))
	}

	task, err := export.NewExportTask(
		cmd.Actor.TenantID,
		cmd.Actor.UserID,
		typeCode,
		cmd.Conditions,
		cmd.DisplayName,
		cmd.Remark,
		format,
		cmd.Reexport,
	)
	if err != nil {
		return nil, err
	}
	task.SetActorPermissions(cmd.Actor.Permissions)

	count, err := s.documents.Count(ctx, settlement.DocumentQuery{
		TenantID:   cmd.Actor.TenantID,
		TypeCode:   typeCode,
		Conditions: conditions,
	})
	if err != nil {
		return nil, export.NewInfrastructureError("count documents", err)
	}
	if err := task.SetExpectedCount(count); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, export.NewInfrastructureError("create export task", err)
	}

	s.logger.Info("export task submitted",
		zap.String("task_id", task.ID.String()),
		zap.String("tenant_id", task.TenantID.String()),
		zap.String("type_code", typeCode.String()),
		zap.String("format", string(format)),
		zap.Int64("expected_count", count),
		zap.Bool("reexport", cmd.Reexport),
	)

	if err := s.dispatcher.Dispatch(ctx, task.TenantID, task.ID); err != nil {
		// the janitor re-dispatches pending tasks
		s.logger.Warn("export task left pending",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
	}

	return &SubmitResult{TaskID: task.ID, ExpectedCount: count, Status: task.Status}, nil
}

// GetTask returns the status of one task
func (s *ExportService) GetTask(ctx context.Context, tenantID, taskID uuid.UUID) (*TaskResponse, error) {
	task, err := s.tasks.FindByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	return ToTaskResponse(task), nil
}

// ListTasks returns a page of the tenant's tasks, newest first
func (s *ExportService) ListTasks(ctx context.Context, tenantID uuid.UUID, query TaskListQuery) (*TaskListResponse, error) {
	filter := export.TaskFilter{Page: query.Page, PageSize: query.PageSize}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if query.Status != "" {
		status := export.TaskStatus(query.Status)
		if !status.IsValid() {
			return nil, export.NewValidationError("status", fmt.Sprintf("unknown status %q", query.Status))
		}
		filter.Status = &status
	}
	if query.TypeCode != "" {
		typeCode, err := settlement.ParseTypeCode(query.TypeCode)
		if err != nil {
			return nil, export.NewValidationError("type_code", err.Error())
		}
		filter.TypeCode = &typeCode
	}

	page, err := s.tasks.FindAll(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	tasks := make([]TaskResponse, len(page.Items))
	for i, t := range page.Items {
		tasks[i] = *ToTaskResponse(t)
	}
	return &TaskListResponse{
		Tasks:      tasks,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}, nil
}

// CancelTask cancels a pending task directly and signals a running one.
// A running task stops after its in-flight document.
func (s *ExportService) CancelTask(ctx context.Context, actor export.Actor, taskID uuid.UUID) (*TaskResponse, error) {
	task, err := s.tasks.FindByID(ctx, actor.TenantID, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case export.TaskStatusPending:
		if err := task.Cancel(); err != nil {
			return nil, err
		}
		if err := s.tasks.SaveWithLock(ctx, task); err != nil {
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				return nil, err
			}
			// picked up meanwhile: fall back to the signal
			return s.signalRunning(ctx, actor, taskID)
		}
		s.publish(ctx, task)
		s.logger.Info("pending export task cancelled",
			zap.String("task_id", task.ID.String()),
			zap.String("user_id", actor.UserID.String()),
		)
		return ToTaskResponse(task), nil
	case export.TaskStatusRunning:
		return s.signalRunning(ctx, actor, taskID)
	default:
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel task in state: %s", task.Status))
	}
}

func (s *ExportService) signalRunning(ctx context.Context, actor export.Actor, taskID uuid.UUID) (*TaskResponse, error) {
	if err := s.signals.Request(ctx, taskID); err != nil {
		return nil, export.NewInfrastructureError("request cancellation", err)
	}
	s.logger.Info("cancellation requested for running export task",
		zap.String("task_id", taskID.String()),
		zap.String("user_id", actor.UserID.String()),
	)
	task, err := s.tasks.FindByID(ctx, actor.TenantID, taskID)
	if err != nil {
		return nil, err
	}
	return ToTaskResponse(task), nil
}

// FileLocation returns where the file of a completed task can be downloaded
func (s *ExportService) FileLocation(ctx context.Context, tenantID, taskID uuid.UUID) (*export.FileLocation, error) {
	task, err := s.tasks.FindByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != export.TaskStatusCompleted || task.FileID == nil {
		return nil, shared.NewDomainError("FILE_NOT_READY", fmt.Sprintf("Export task is %s and has no file", task.Status))
	}
	return s.files.Locate(ctx, tenantID, *task.FileID)
}

func (s *ExportService) publish(ctx context.Context, task *export.ExportTask) {
	events := task.GetDomainEvents()
	task.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish export task events", zap.Error(err))
	}
}
