package models

import (
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// IntegrationModel is the persistence model for the Integration aggregate.
// There is at most one row per (tenant_id, marketplace).
type IntegrationModel struct {
	TenantRecord
	Marketplace     string     `gorm:"type:varchar(32);not null"`
	AuthType        string     `gorm:"type:varchar(16);not null"`
	Status          string     `gorm:"type:varchar(16);not null;index"`
	Credentials     []byte     `gorm:"column:credentials"`
	TokenExpiresAt  *time.Time `gorm:"index"`
	ChannelID       string     `gorm:"type:varchar(64)"`
	LastError       string     `gorm:"type:text"`
	LastValidatedAt *time.Time
	SyncInterval    int64      `gorm:"not null;default:0"` // seconds
	AutoSync        bool       `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "marketplace_integrations"
}

// ToDomain converts the model to a domain Integration. Credentials are set by the caller.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	i := &integration.Integration{
		Marketplace: integration.Marketplace(m.Marketplace),
		AuthType:    integration.AuthType(m.AuthType),
		Status:      integration.Status(m.Status),
		Config: integration.SyncConfig{
			SyncInterval: time.Duration(m.SyncInterval) * time.Second,
			AutoSync:     m.AutoSync,
		},
		ChannelID:       m.ChannelID,
		LastError:       m.LastError,
		LastValidatedAt: m.LastValidatedAt,
	}
	i.TenantAggregateRoot = m.root()
	return i
}

// IntegrationModelFromDomain builds a model from the aggregate and its sealed credentials
func IntegrationModelFromDomain(i *integration.Integration, sealed []byte) *IntegrationModel {
	m := &IntegrationModel{
		Marketplace:     string(i.Marketplace),
		AuthType:        string(i.AuthType),
		Status:          string(i.Status),
		Credentials:     sealed,
		TokenExpiresAt:  i.Credentials.ExpiresAt,
		ChannelID:       i.ChannelID,
		LastError:       i.LastError,
		LastValidatedAt: i.LastValidatedAt,
		SyncInterval:    int64(i.Config.SyncInterval / time.Second),
		AutoSync:        i.Config.AutoSync,
	}
	m.TenantRecord = tenantRecordOf(i.TenantAggregateRoot)
	return m
}

// WebhookRegistrationModel is the persistence model for WebhookRegistration
type WebhookRegistrationModel struct {
	Record
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Marketplace   string    `gorm:"type:varchar(32);not null"`
	EndpointURL   string    `gorm:"type:text;not null"`
	Secret        []byte    `gorm:"not null"`
	RemoteID      string    `gorm:"type:varchar(128)"`
}

// TableName returns the table name for GORM
func (WebhookRegistrationModel) TableName() string {
	return "webhook_registrations"
}

// ToDomain converts the model to a domain WebhookRegistration. Secret is set by the caller.
func (m *WebhookRegistrationModel) ToDomain() *integration.WebhookRegistration {
	return &integration.WebhookRegistration{
		BaseEntity:    m.entity(),
		TenantID:      m.TenantID,
		IntegrationID: m.IntegrationID,
		Marketplace:   integration.Marketplace(m.Marketplace),
		EndpointURL:   m.EndpointURL,
		RemoteID:      m.RemoteID,
	}
}

// WebhookRegistrationModelFromDomain builds a model from the entity and its sealed secret
func WebhookRegistrationModelFromDomain(w *integration.WebhookRegistration, sealed []byte) *WebhookRegistrationModel {
	m := &WebhookRegistrationModel{
		TenantID:      w.TenantID,
		IntegrationID: w.IntegrationID,
		Marketplace:   string(w.Marketplace),
		EndpointURL:   w.EndpointURL,
		Secret:        sealed,
		RemoteID:      w.RemoteID,
	}
	m.Record = recordOf(w.BaseEntity)
	return m
}

// SyncMarkerModel is the persistence model for SyncMarker
type SyncMarkerModel struct {
	Record
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;index"`
	Marketplace   string    `gorm:"type:varchar(32);not null"`
	Status        string    `gorm:"type:varchar(16);not null"`
}

// TableName returns the table name for GORM
func (SyncMarkerModel) TableName() string {
	return "sync_markers"
}

// ToDomain converts the model to a domain SyncMarker
func (m *SyncMarkerModel) ToDomain() *integration.SyncMarker {
	return &integration.SyncMarker{
		BaseEntity:    m.entity(),
		TenantID:      m.TenantID,
		IntegrationID: m.IntegrationID,
		Marketplace:   integration.Marketplace(m.Marketplace),
		Status:        integration.SyncMarkerStatus(m.Status),
	}
}

// SyncMarkerModelFromDomain builds a model from a domain SyncMarker
func SyncMarkerModelFromDomain(s *integration.SyncMarker) *SyncMarkerModel {
	m := &SyncMarkerModel{
		TenantID:      s.TenantID,
		IntegrationID: s.IntegrationID,
		Marketplace:   string(s.Marketplace),
		Status:        string(s.Status),
	}
	m.Record = recordOf(s.BaseEntity)
	return m
}
