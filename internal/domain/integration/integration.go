package integration

import (
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the lifecycle state of an integration
type Status string

const (
	// StatusPending means a connection attempt started but no credentials are confirmed
	StatusPending Status = "pending"
	// StatusActive means credentials are confirmed and usable
	StatusActive Status = "active"
	// StatusError means the stored credentials stopped working; re-authentication required
	StatusError Status = "error"
	// StatusDisconnected means the tenant unlinked the marketplace
	StatusDisconnected Status = "disconnected"
)

// IsValid returns true if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusError, StatusDisconnected:
		return true
	default:
		return false
	}
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// SyncConfig
// ---------------------------------------------------------------------------

// SyncConfig controls the marketplace synchronization that runs after connection
type SyncConfig struct {
	SyncInterval time.Duration
	AutoSync     bool
}

// DefaultSyncConfig returns the sync settings applied to new integrations
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SyncInterval: 15 * time.Minute,
		AutoSync:     true,
	}
}

// ---------------------------------------------------------------------------
// Integration Aggregate
// ---------------------------------------------------------------------------

// Integration is a tenant's persisted connection to one marketplace.
// There is at most one Integration per (tenant, marketplace); reconnecting
// reuses the same record.
type Integration struct {
	shared.TenantAggregateRoot

	Marketplace Marketplace
	AuthType    AuthType
	Status      Status
	Credentials Credentials
	Config      SyncConfig
	// ChannelID links the integration to an ERP sales channel, if any
	ChannelID string
	// LastError is the message of the last classified failure
	LastError       string
	LastValidatedAt *time.Time
}

// NewIntegration creates a pending integration
func NewIntegration(tenantID uuid.UUID, marketplace Marketplace, authType AuthType) (*Integration, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenantID
	}
	if !marketplace.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if !authType.IsValid() {
		return nil, ErrInvalidAuthType
	}
	return &Integration{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Marketplace:         marketplace,
		AuthType:            authType,
		Status:              StatusPending,
		Config:              DefaultSyncConfig(),
	}, nil
}

// IsActive returns true if the integration holds usable credentials
func (i *Integration) IsActive() bool {
	return i.Status == StatusActive
}

// Activate stores confirmed credentials and marks the integration active.
// An integration is never active with credentials incomplete for its auth type.
func (i *Integration) Activate(creds Credentials) error {
	if !creds.ValidFor(i.AuthType) {
		return ErrInvalidCredentials
	}
	i.Credentials = creds
	i.Status = StatusActive
	i.LastError = ""
	i.Touch()
	i.Raise(NewIntegrationActivatedEvent(i))
	return nil
}

// UpdateTokens replaces the OAuth tokens after a refresh
func (i *Integration) UpdateTokens(fresh Credentials) error {
	if i.AuthType != AuthTypeOAuth {
		return ErrNotOAuth
	}
	if i.Status == StatusDisconnected || i.Status == StatusPending {
		return ErrInvalidStatusTransition
	}
	merged := i.Credentials.Merge(fresh)
	if !merged.ValidFor(i.AuthType) {
		return ErrInvalidCredentials
	}
	i.Credentials = merged
	i.Status = StatusActive
	i.LastError = ""
	i.Touch()
	i.Raise(NewIntegrationTokenRefreshedEvent(i))
	return nil
}

// MarkError flags the stored credentials as no longer working.
// Credentials are kept so that a later refresh or revocation can still use them.
func (i *Integration) MarkError(reason string) error {
	if i.Status == StatusDisconnected {
		return ErrInvalidStatusTransition
	}
	i.Status = StatusError
	i.LastError = reason
	i.Touch()
	i.Raise(NewIntegrationErroredEvent(i, reason))
	return nil
}

// MarkValidated records a successful credential check
func (i *Integration) MarkValidated(at time.Time) {
	i.LastValidatedAt = &at
	i.Touch()
}

// Disconnect wipes the credentials. It always succeeds.
func (i *Integration) Disconnect() {
	i.Credentials = Credentials{}
	i.Status = StatusDisconnected
	i.LastError = ""
	i.Touch()
	i.Raise(NewIntegrationDisconnectedEvent(i))
}

// SwitchAuthType changes how the marketplace authenticates, for example after
// its configuration moved from api keys to oauth. Only inactive integrations
// may switch; stored credentials are dropped and the integration is pending again.
func (i *Integration) SwitchAuthType(authType AuthType) error {
	if !authType.IsValid() {
		return ErrInvalidAuthType
	}
	if i.AuthType == authType {
		return nil
	}
	if i.Status == StatusActive {
		return ErrInvalidStatusTransition
	}
	i.AuthType = authType
	i.Credentials = Credentials{}
	i.Status = StatusPending
	i.Touch()
	return nil
}

// AttachChannel links the integration to an ERP sales channel
func (i *Integration) AttachChannel(channelID string) {
	if channelID == "" {
		return
	}
	i.ChannelID = channelID
	i.Touch()
}

// UpdateSyncConfig changes the post-connection sync settings
func (i *Integration) UpdateSyncConfig(cfg SyncConfig) {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncConfig().SyncInterval
	}
	i.Config = cfg
	i.Touch()
}

// CheckInvariants validates the aggregate before it is persisted
func (i *Integration) CheckInvariants() error {
	if i.TenantID == uuid.Nil {
		return ErrInvalidTenantID
	}
	if !i.Marketplace.IsValid() {
		return ErrInvalidMarketplace
	}
	if !i.AuthType.IsValid() {
		return ErrInvalidAuthType
	}
	if !i.Status.IsValid() {
		return ErrInvalidStatusTransition
	}
	if i.Status == StatusActive && !i.Credentials.ValidFor(i.AuthType) {
		return ErrInvalidCredentials
	}
	if i.Status == StatusDisconnected && !i.Credentials.IsEmpty() {
		return ErrInvalidCredentials
	}
	return nil
}
