package events

import (
	"context"
	"log/slog"
)

// AuditHandler writes every authorization change to the log as one structured record.
func AuditHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		logger.InfoContext(ctx, "audit",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt(),
			"payload", event.Payload(),
		)
		return nil
	}
}

// SubscribeAudit registers AuditHandler for the authorization event types.
func SubscribeAudit(bus *EventBus, logger *slog.Logger) {
	h := AuditHandler(logger)
	for _, t := range []string{EventTypeOverrideChanged, EventTypeRoleAssigned, EventTypeReconciled} {
		bus.Subscribe(t, h)
	}
}
