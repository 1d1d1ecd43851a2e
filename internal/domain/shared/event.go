package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact about one tenant's marketplace integration
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the integration the event concerns
	AggregateID() uuid.UUID
	TenantID() uuid.UUID
}

// EventHeader is embedded by concrete events
type EventHeader struct {
	ID          uuid.UUID `json:"event_id"`
	Type        string    `json:"event_type"`
	At          time.Time `json:"occurred_at"`
	Integration uuid.UUID `json:"integration_id"`
	Tenant      uuid.UUID `json:"tenant_id"`
}

// NewEventHeader stamps a new event of eventType
func NewEventHeader(eventType string, integrationID, tenantID uuid.UUID) EventHeader {
	return EventHeader{
		ID:          uuid.New(),
		Type:        eventType,
		At:          time.Now(),
		Integration: integrationID,
		Tenant:      tenantID,
	}
}

func (h *EventHeader) EventID() uuid.UUID     { return h.ID }
func (h *EventHeader) EventType() string      { return h.Type }
func (h *EventHeader) OccurredAt() time.Time  { return h.At }
func (h *EventHeader) AggregateID() uuid.UUID { return h.Integration }
func (h *EventHeader) TenantID() uuid.UUID    { return h.Tenant }
