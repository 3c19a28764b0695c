package event

import (
	"context"

	"github.com/erp/voucher-export/internal/domain/shared"
	"go.uber.org/zap"
)

// Ensure EventJournal implements EventHandler
var _ shared.EventHandler = (*EventJournal)(nil)

// EventJournal writes every published event to the log as a JSON payload,
// giving operators an audit trail of task outcomes.
type EventJournal struct {
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewEventJournal creates a journal handler
func NewEventJournal(serializer *EventSerializer, logger *zap.Logger) *EventJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventJournal{serializer: serializer, logger: logger}
}

// EventTypes subscribes the journal to all events
func (j *EventJournal) EventTypes() []string {
	return nil
}

// Handle logs the event payload
func (j *EventJournal) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := j.serializer.Serialize(event)
	if err != nil {
		return err
	}
	j.logger.Info("Domain event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
		zap.ByteString("payload", payload),
	)
	return nil
}
