package event

import (
	"testing"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_Register(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newRecordingHandler()

	registry.Register(handler, export.EventTypeExportTaskCompleted, export.EventTypeExportTaskFailed)

	assert.Len(t, registry.GetHandlers(export.EventTypeExportTaskCompleted), 1)
	assert.Len(t, registry.GetHandlers(export.EventTypeExportTaskFailed), 1)
	assert.Empty(t, registry.GetHandlers(export.EventTypeExportTaskCancelled))
}

func TestHandlerRegistry_Register_Duplicate(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newRecordingHandler()

	registry.Register(handler, export.EventTypeExportTaskFailed)
	registry.Register(handler, export.EventTypeExportTaskFailed)
	registry.Register(handler)
	registry.Register(handler)

	assert.Len(t, registry.GetHandlers(export.EventTypeExportTaskFailed), 2, "once typed, once wildcard")
	assert.Len(t, registry.GetAllHandlers(), 1)
}

func TestHandlerRegistry_Wildcard(t *testing.T) {
	registry := NewHandlerRegistry()
	typed := newRecordingHandler()
	wildcard := newRecordingHandler()

	registry.Register(typed, export.EventTypeExportTaskCompleted)
	registry.Register(wildcard)

	handlers := registry.GetHandlers(export.EventTypeExportTaskCompleted)
	assert.Len(t, handlers, 2)
	assert.Same(t, typed, handlers[0])
	assert.Same(t, wildcard, handlers[1])

	assert.Len(t, registry.GetHandlers("SomethingElse"), 1)
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	kept := newRecordingHandler()
	removed := newRecordingHandler()

	registry.Register(kept, export.EventTypeExportTaskFailed)
	registry.Register(removed, export.EventTypeExportTaskFailed, export.EventTypeExportTaskCancelled)
	registry.Register(removed)

	registry.Unregister(removed)

	assert.Len(t, registry.GetHandlers(export.EventTypeExportTaskFailed), 1)
	assert.Empty(t, registry.GetHandlers(export.EventTypeExportTaskCancelled))
	assert.Len(t, registry.GetAllHandlers(), 1)
}
