package event

import (
	"context"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditHandler writes one structured log line per connector event.
// It is the default consumer of webhook deliveries and sync handoffs until
// a downstream synchronizer subscribes to them.
type AuditHandler struct {
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler
func NewAuditHandler(log *zap.Logger) *AuditHandler {
	return &AuditHandler{logger: log.Named("audit")}
}

// EventTypes returns nil so the handler receives every event
func (h *AuditHandler) EventTypes() []string {
	return nil
}

// Handle logs the event
func (h *AuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("integration_id", event.AggregateID().String()),
	}

	switch e := event.(type) {
	case *integration.IntegrationErroredEvent:
		fields = append(fields, zap.String("marketplace", string(e.Marketplace)), zap.String("reason", e.Reason))
	case *integration.WebhookReceivedEvent:
		fields = append(fields,
			zap.String("marketplace", string(e.Marketplace)),
			zap.String("delivery_id", e.DeliveryID),
			zap.String("topic", e.Topic),
			zap.Int("payload_bytes", len(e.Payload)),
		)
		if e.ArchiveKey != "" {
			fields = append(fields, zap.String("archive_key", e.ArchiveKey))
		}
	case *integration.SyncRequestedEvent:
		fields = append(fields, zap.String("marketplace", string(e.Marketplace)), zap.String("marker_id", e.MarkerID.String()))
	}

	logger.WithTraceContext(ctx, h.logger).Info("Connector event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditHandler)(nil)
