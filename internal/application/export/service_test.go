package exportapp

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceFixture struct {
	actor      export.Actor
	tasks      *MockTaskRepository
	documents  *MockDocumentSource
	files      *MockFileStore
	signals    *MockCancelSignal
	dispatcher *MockDispatcher
	events     *recordingPublisher
	service    *ExportService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		actor: export.Actor{
			TenantID:    uuid.New(),
			UserID:      uuid.New(),
			Permissions: []string{string(export.ActionExport)},
		},
		tasks:      new(MockTaskRepository),
		documents:  new(MockDocumentSource),
		files:      new(MockFileStore),
		signals:    new(MockCancelSignal),
		dispatcher: new(MockDispatcher),
		events:     &recordingPublisher{},
	}
	f.service = NewExportService(ExportServiceDeps{
		Tasks:      f.tasks,
		Documents:  f.documents,
		Files:      f.files,
		Signals:    f.signals,
		Dispatcher: f.dispatcher,
		Events:     f.events,
		Logger:     zap.NewNop(),
	})
	return f
}

func (f *serviceFixture) newTask(t *testing.T) *export.ExportTask {
	t.Helper()
	task, err := export.NewExportTask(f.actor.TenantID, f.actor.UserID, settlement.TypeReceipt,
		map[string]string{"document_date": "2024-03-01,2024-03-31"}, "", "", export.FormatXLSX, false)
	require.NoError(t, err)
	return task
}

func validSubmit(actor export.Actor) SubmitExportCommand {
	return SubmitExportCommand{
		Actor:       actor,
		TypeCode:    "payment",
		Conditions:  map[string]string{"document_date": "2024-01-01,2024-01-31"},
		DisplayName: "January payments",
	}
}

func TestExportService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and dispatches a pending task", func(t *testing.T) {
		f := newServiceFixture()
		f.documents.On("Count", ctx, mock.MatchedBy(func(q settlement.DocumentQuery) bool {
			return q.TenantID == f.actor.TenantID && q.TypeCode == settlement.TypePayment && len(q.Conditions) == 1
		})).Return(int64(42), nil)
		var created *export.ExportTask
		f.tasks.On("Create", ctx, mock.AnythingOfType("*export.ExportTask")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*export.ExportTask) }).
			Return(nil)
		f.dispatcher.On("Dispatch", ctx, f.actor.TenantID, mock.AnythingOfType("uuid.UUID")).Return(nil)

		result, err := f.service.Submit(ctx, validSubmit(f.actor))

		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, created.ID, result.TaskID)
		assert.Equal(t, int64(42), result.ExpectedCount)
		assert.Equal(t, export.TaskStatusPending, result.Status)
		assert.Equal(t, export.FormatDBF, created.Format)
		assert.Equal(t, []string{string(export.ActionExport)}, created.ActorPermissions)
		assert.Equal(t, &f.actor.UserID, created.CreatedBy)
		f.dispatcher.AssertCalled(t, "Dispatch", ctx, f.actor.TenantID, created.ID)
	})

	t.Run("dispatch failure leaves the task pending", func(t *testing.T) {
		f := newServiceFixture()
		f.documents.On("Count", ctx, mock.Anything).Return(int64(3), nil)
		f.tasks.On("Create", ctx, mock.Anything).Return(nil)
		f.dispatcher.On("Dispatch", ctx, mock.Anything, mock.Anything).Return(errors.New("queue full"))

		result, err := f.service.Submit(ctx, validSubmit(f.actor))

		require.NoError(t, err)
		assert.Equal(t, export.TaskStatusPending, result.Status)
	})

	t.Run("rejects malformed requests before creating a task", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*SubmitExportCommand)
			field  string
		}{
			{"unknown type code", func(c *SubmitExportCommand) { c.TypeCode = "REFUND" }, "type_code"},
			{"no conditions", func(c *SubmitExportCommand) { c.Conditions = nil }, "conditions"},
			{"unknown field", func(c *SubmitExportCommand) { c.Conditions = map[string]string{"colour": "red"} }, "conditions"},
			{"bad date", func(c *SubmitExportCommand) { c.Conditions = map[string]string{"document_date": "yesterday"} }, "conditions"},
			{"unknown format", func(c *SubmitExportCommand) { c.Format = "csv" }, "format"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newServiceFixture()
				cmd := validSubmit(f.actor)
				tc.mutate(&cmd)

				_, err := f.service.Submit(ctx, cmd)

				var validationErr *export.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tc.field, validationErr.Field)
				f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("count failure is an infrastructure error", func(t *testing.T) {
		f := newServiceFixture()
		f.documents.On("Count", ctx, mock.Anything).Return(int64(0), errors.New("timeout"))

		_, err := f.service.Submit(ctx, validSubmit(f.actor))

		assert.Equal(t, export.CodeInfrastructureFailure, export.CodeOf(err))
		f.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestExportService_ListTasks(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	task := f.newTask(t)
	status := export.TaskStatusPending
	typeCode := settlement.TypeReceipt
	f.tasks.On("FindAll", ctx, f.actor.TenantID, export.TaskFilter{
		Status:   &status,
		TypeCode: &typeCode,
		Page:     1,
		PageSize: 20,
	}).Return(shared.NewPaginated([]*export.ExportTask{task}, 1, 1, 20), nil)

	resp, err := f.service.ListTasks(ctx, f.actor.TenantID, TaskListQuery{Status: "pending", TypeCode: "receipt"})

	require.NoError(t, err)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, task.ID, resp.Tasks[0].ID)
	assert.Equal(t, "RECEIPT", resp.Tasks[0].TypeCode)
	assert.NotNil(t, resp.Tasks[0].Errors)
	assert.Equal(t, 1, resp.TotalPages)

	_, err = f.service.ListTasks(ctx, f.actor.TenantID, TaskListQuery{Status: "paused"})
	var validationErr *export.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "status", validationErr.Field)
}

func TestExportService_CancelTask(t *testing.T) {
	ctx := context.Background()

	t.Run("pending task is cancelled directly", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil)
		f.tasks.On("SaveWithLock", ctx, task).Return(nil)

		resp, err := f.service.CancelTask(ctx, f.actor, task.ID)

		require.NoError(t, err)
		assert.Equal(t, string(export.TaskStatusCancelled), resp.Status)
		require.Len(t, f.events.events, 1)
		assert.Equal(t, export.EventTypeExportTaskCancelled, f.events.events[0].EventType())
		f.signals.AssertNotCalled(t, "Request", mock.Anything, mock.Anything)
	})

	t.Run("pending task picked up meanwhile is signalled", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		running := f.newTask(t)
		running.ID = task.ID
		require.NoError(t, running.Start())
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil).Once()
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(running, nil).Once()
		f.tasks.On("SaveWithLock", ctx, task).Return(shared.ErrConcurrencyConflict)
		f.signals.On("Request", ctx, task.ID).Return(nil)

		resp, err := f.service.CancelTask(ctx, f.actor, task.ID)

		require.NoError(t, err)
		assert.Equal(t, string(export.TaskStatusRunning), resp.Status)
		f.signals.AssertExpectations(t)
		assert.Empty(t, f.events.events)
	})

	t.Run("running task is signalled", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		require.NoError(t, task.Start())
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil)
		f.signals.On("Request", ctx, task.ID).Return(nil)

		resp, err := f.service.CancelTask(ctx, f.actor, task.ID)

		require.NoError(t, err)
		assert.Equal(t, string(export.TaskStatusRunning), resp.Status)
		f.tasks.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("terminal task cannot be cancelled", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		require.NoError(t, task.Start())
		require.NoError(t, task.Complete(uuid.New()))
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil)

		_, err := f.service.CancelTask(ctx, f.actor, task.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("missing task", func(t *testing.T) {
		f := newServiceFixture()
		id := uuid.New()
		f.tasks.On("FindByID", ctx, f.actor.TenantID, id).Return(nil, shared.ErrNotFound)

		_, err := f.service.CancelTask(ctx, f.actor, id)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestExportService_FileLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("completed task", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		fileID := uuid.New()
		require.NoError(t, task.Start())
		require.NoError(t, task.Complete(fileID))
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil)
		want := &export.FileLocation{FileID: fileID, Name: "vouchers.xlsx", URL: "https://files.example.com/vouchers.xlsx"}
		f.files.On("Locate", ctx, f.actor.TenantID, fileID).Return(want, nil)

		got, err := f.service.FileLocation(ctx, f.actor.TenantID, task.ID)

		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("task without file", func(t *testing.T) {
		f := newServiceFixture()
		task := f.newTask(t)
		f.tasks.On("FindByID", ctx, f.actor.TenantID, task.ID).Return(task, nil)

		_, err := f.service.FileLocation(ctx, f.actor.TenantID, task.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "FILE_NOT_READY", domainErr.Code)
		f.files.AssertNotCalled(t, "Locate", mock.Anything, mock.Anything, mock.Anything)
	})
}
