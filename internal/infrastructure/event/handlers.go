package event

import (
	"context"

	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes every ledger event with its JSON payload to the
// audit logger
type AuditLogHandler struct {
	logger     *zap.Logger
	serializer *EventSerializer
}

// NewAuditLogHandler creates an audit handler writing to log
func NewAuditLogHandler(log *zap.Logger, serializer *EventSerializer) *AuditLogHandler {
	return &AuditLogHandler{logger: log.Named("audit"), serializer: serializer}
}

// EventTypes subscribes to all events
func (h *AuditLogHandler) EventTypes() []string { return nil }

// Handle logs the event. Events that fail to serialize are still logged
// without a payload.
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}
	payload, err := h.serializer.Serialize(event)
	if err != nil {
		fields = append(fields, zap.NamedError("payload_error", err))
	} else {
		fields = append(fields, zap.ByteString("payload", payload))
	}
	logger.Enrich(ctx, h.logger).Info("Ledger event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
