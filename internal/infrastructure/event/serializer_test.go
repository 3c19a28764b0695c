package event

import (
	"context"
	"testing"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewExportEventSerializer(t *testing.T) {
	s := NewExportEventSerializer()
	assert.Equal(t, []string{
		export.EventTypeExportTaskCancelled,
		export.EventTypeExportTaskCompleted,
		export.EventTypeExportTaskFailed,
	}, s.RegisteredTypes())
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewExportEventSerializer()
	task := finishedTask(t)
	original := task.GetDomainEvents()[0]

	data, err := s.Serialize(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reason":"storage unavailable"`)
	assert.Contains(t, string(data), `"type_code":"PAYMENT"`)

	decoded, err := s.Deserialize(export.EventTypeExportTaskFailed, data)
	require.NoError(t, err)
	failed, ok := decoded.(*export.ExportTaskFailedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), failed.EventID())
	assert.Equal(t, task.ID, failed.TaskID)
	assert.Equal(t, task.TenantID, failed.TenantID())
	assert.Equal(t, "storage unavailable", failed.Reason)
}

func TestEventSerializer_Deserialize_Errors(t *testing.T) {
	s := NewExportEventSerializer()

	_, err := s.Deserialize("Unknown", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = s.Deserialize(export.EventTypeExportTaskFailed, []byte(`{not json`))
	assert.ErrorContains(t, err, "failed to unmarshal event")
}

func TestEventJournal_Handle(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	journal := NewEventJournal(NewExportEventSerializer(), zap.New(core))
	assert.Nil(t, journal.EventTypes())

	task := finishedTask(t)
	require.NoError(t, journal.Handle(context.Background(), task.GetDomainEvents()[0]))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, export.EventTypeExportTaskFailed, fields["event_type"])
	assert.Equal(t, task.ID.String(), fields["aggregate_id"])
	assert.Contains(t, fields["payload"], "storage unavailable")
}
