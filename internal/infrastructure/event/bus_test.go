package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingHandler collects the events it receives
type recordingHandler struct {
	eventTypes []string
	err        error
	panicWith  any
	mu         sync.Mutex
	handled    []shared.DomainEvent
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func finishedTask(t *testing.T) *export.ExportTask {
	t.Helper()
	task := newExportTask(t)
	require.NoError(t, task.Start())
	require.NoError(t, task.Fail("storage unavailable"))
	return task
}

func newExportTask(t *testing.T) *export.ExportTask {
	t.Helper()
	task, err := export.NewExportTask(
		uuid.New(), uuid.New(), settlement.TypePayment,
		map[string]string{"document_date": "2024-01-01,2024-01-31"},
		"January payments", "", export.FormatDBF, false,
	)
	require.NoError(t, err)
	return task
}

// ==================== Publish ====================

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failed := newRecordingHandler(export.EventTypeExportTaskFailed)
	completed := newRecordingHandler(export.EventTypeExportTaskCompleted)
	bus.Subscribe(failed)
	bus.Subscribe(completed)

	task := finishedTask(t)
	require.NoError(t, bus.Publish(context.Background(), task.GetDomainEvents()...))

	require.Len(t, failed.received(), 1)
	event, ok := failed.received()[0].(*export.ExportTaskFailedEvent)
	require.True(t, ok)
	assert.Equal(t, task.ID, event.AggregateID())
	assert.Equal(t, "storage unavailable", event.Reason)
	assert.Empty(t, completed.received())
}

func TestInMemoryEventBus_Publish_WildcardAfterTyped(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	var order []string
	var mu sync.Mutex
	record := func(name string) shared.EventHandler {
		return &orderedHandler{name: name, order: &order, mu: &mu}
	}
	bus.Subscribe(record("wildcard"))
	bus.Subscribe(record("typed"), export.EventTypeExportTaskFailed)

	require.NoError(t, bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...))
	assert.Equal(t, []string{"typed", "wildcard"}, order)
}

type orderedHandler struct {
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (h *orderedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.order = append(*h.order, h.name)
	return nil
}

func (h *orderedHandler) EventTypes() []string { return nil }

func TestInMemoryEventBus_Publish_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	broken := newRecordingHandler(export.EventTypeExportTaskFailed)
	broken.err = errors.New("metrics backend down")
	healthy := newRecordingHandler(export.EventTypeExportTaskFailed)
	bus.Subscribe(broken)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...))

	assert.Len(t, broken.received(), 1)
	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, 1, logs.FilterMessage("Event handler failed").Len())
}

func TestInMemoryEventBus_Publish_RecoversPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	panicking := newRecordingHandler()
	panicking.panicWith = "boom"
	after := newRecordingHandler()
	bus.Subscribe(panicking)
	bus.Subscribe(after)

	assert.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...))
	})
	assert.Len(t, after.received(), 1)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "handler panicked: boom")
}

func TestInMemoryEventBus_Publish_NoHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	assert.NoError(t, bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...))
}

// ==================== Tracing ====================

func TestInMemoryEventBus_TracesHandlers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	bus := NewInMemoryEventBus(zap.NewNop(), WithBusTracer(tp.Tracer("test")))
	ok := newRecordingHandler()
	broken := newRecordingHandler()
	broken.err = errors.New("failed")
	bus.Subscribe(ok)
	bus.Subscribe(broken)

	require.NoError(t, bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "event.handle "+export.EventTypeExportTaskFailed, spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

// ==================== Lifecycle ====================

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newRecordingHandler()
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...)
	bus.Unsubscribe(handler)
	_ = bus.Publish(context.Background(), finishedTask(t).GetDomainEvents()...)

	assert.Len(t, handler.received(), 1)
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.False(t, bus.IsRunning())

	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.IsRunning())

	require.NoError(t, bus.Stop(context.Background()))
	assert.False(t, bus.IsRunning())
}
