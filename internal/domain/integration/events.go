package integration

import (
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types published by the integration context
const (
	EventTypeIntegrationActivated      = "integration.activated"
	EventTypeIntegrationTokenRefreshed = "integration.token_refreshed"
	EventTypeIntegrationErrored        = "integration.errored"
	EventTypeIntegrationDisconnected   = "integration.disconnected"
	EventTypeWebhookRegistered         = "integration.webhook_registered"
	EventTypeSyncRequested             = "integration.sync_requested"
	EventTypeWebhookReceived           = "integration.webhook_received"
)

// IntegrationActivatedEvent is raised when an integration becomes active
type IntegrationActivatedEvent struct {
	shared.EventHeader
	Marketplace Marketplace `json:"marketplace"`
	AuthType    AuthType    `json:"auth_type"`
}

// NewIntegrationActivatedEvent creates an IntegrationActivatedEvent
func NewIntegrationActivatedEvent(i *Integration) *IntegrationActivatedEvent {
	return &IntegrationActivatedEvent{
		EventHeader: shared.NewEventHeader(EventTypeIntegrationActivated, i.ID, i.TenantID),
		Marketplace:     i.Marketplace,
		AuthType:        i.AuthType,
	}
}

// IntegrationTokenRefreshedEvent is raised after a successful token refresh
type IntegrationTokenRefreshedEvent struct {
	shared.EventHeader
	Marketplace Marketplace `json:"marketplace"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

// NewIntegrationTokenRefreshedEvent creates an IntegrationTokenRefreshedEvent
func NewIntegrationTokenRefreshedEvent(i *Integration) *IntegrationTokenRefreshedEvent {
	return &IntegrationTokenRefreshedEvent{
		EventHeader: shared.NewEventHeader(EventTypeIntegrationTokenRefreshed, i.ID, i.TenantID),
		Marketplace:     i.Marketplace,
		ExpiresAt:       i.Credentials.ExpiresAt,
	}
}

// IntegrationErroredEvent is raised when stored credentials stop working
type IntegrationErroredEvent struct {
	shared.EventHeader
	Marketplace Marketplace `json:"marketplace"`
	Reason      string      `json:"reason"`
}

// NewIntegrationErroredEvent creates an IntegrationErroredEvent
func NewIntegrationErroredEvent(i *Integration, reason string) *IntegrationErroredEvent {
	return &IntegrationErroredEvent{
		EventHeader: shared.NewEventHeader(EventTypeIntegrationErrored, i.ID, i.TenantID),
		Marketplace:     i.Marketplace,
		Reason:          reason,
	}
}

// IntegrationDisconnectedEvent is raised when the tenant unlinks a marketplace
type IntegrationDisconnectedEvent struct {
	shared.EventHeader
	Marketplace Marketplace `json:"marketplace"`
}

// NewIntegrationDisconnectedEvent creates an IntegrationDisconnectedEvent
func NewIntegrationDisconnectedEvent(i *Integration) *IntegrationDisconnectedEvent {
	return &IntegrationDisconnectedEvent{
		EventHeader: shared.NewEventHeader(EventTypeIntegrationDisconnected, i.ID, i.TenantID),
		Marketplace:     i.Marketplace,
	}
}

// WebhookRegisteredEvent is raised once the inbound endpoint exists
type WebhookRegisteredEvent struct {
	shared.EventHeader
	Marketplace    Marketplace `json:"marketplace"`
	RegistrationID uuid.UUID   `json:"registration_id"`
	EndpointURL    string      `json:"endpoint_url"`
}

// NewWebhookRegisteredEvent creates a WebhookRegisteredEvent
func NewWebhookRegisteredEvent(tenantID uuid.UUID, reg *WebhookRegistration) *WebhookRegisteredEvent {
	return &WebhookRegisteredEvent{
		EventHeader: shared.NewEventHeader(EventTypeWebhookRegistered, reg.IntegrationID, tenantID),
		Marketplace:     reg.Marketplace,
		RegistrationID:  reg.ID,
		EndpointURL:     reg.EndpointURL,
	}
}

// SyncRequestedEvent hands an activated integration over to initial synchronization
type SyncRequestedEvent struct {
	shared.EventHeader
	Marketplace Marketplace `json:"marketplace"`
	MarkerID    uuid.UUID   `json:"marker_id"`
}

// NewSyncRequestedEvent creates a SyncRequestedEvent
func NewSyncRequestedEvent(marker *SyncMarker) *SyncRequestedEvent {
	return &SyncRequestedEvent{
		EventHeader: shared.NewEventHeader(EventTypeSyncRequested, marker.IntegrationID, marker.TenantID),
		Marketplace:     marker.Marketplace,
		MarkerID:        marker.ID,
	}
}

// WebhookReceivedEvent carries an inbound marketplace notification to downstream consumers
type WebhookReceivedEvent struct {
	shared.EventHeader
	Marketplace    Marketplace `json:"marketplace"`
	RegistrationID uuid.UUID   `json:"registration_id"`
	DeliveryID     string      `json:"delivery_id,omitempty"`
	Topic          string      `json:"topic,omitempty"`
	Payload        []byte      `json:"payload"`
	// ArchiveKey locates the archived raw body when payload archiving is on
	ArchiveKey string `json:"archive_key,omitempty"`
}

// NewWebhookReceivedEvent creates a WebhookReceivedEvent
func NewWebhookReceivedEvent(reg *WebhookRegistration, deliveryID, topic string, payload []byte) *WebhookReceivedEvent {
	return &WebhookReceivedEvent{
		EventHeader: shared.NewEventHeader(EventTypeWebhookReceived, reg.IntegrationID, reg.TenantID),
		Marketplace:     reg.Marketplace,
		RegistrationID:  reg.ID,
		DeliveryID:      deliveryID,
		Topic:           topic,
		Payload:         payload,
	}
}
