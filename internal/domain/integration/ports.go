package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// IntegrationRepository persists integrations keyed by (tenant, marketplace)
type IntegrationRepository interface {
	// FindByMarketplace returns ErrIntegrationNotFound when the tenant never connected
	FindByMarketplace(ctx context.Context, tenantID uuid.UUID, marketplace Marketplace) (*Integration, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Integration, error)
	// FindExpiring lists active oauth integrations whose access token expires before the given time
	FindExpiring(ctx context.Context, before time.Time, limit int) ([]*Integration, error)
	// Save inserts or updates the integration
	Save(ctx context.Context, integration *Integration) error
}

// WebhookRegistrationRepository persists webhook registrations keyed by integration
type WebhookRegistrationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookRegistration, error)
	FindByIntegration(ctx context.Context, integrationID uuid.UUID) (*WebhookRegistration, error)
	Save(ctx context.Context, registration *WebhookRegistration) error
	DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error
}

// SyncMarkerRepository persists initial-sync handoff markers
type SyncMarkerRepository interface {
	Save(ctx context.Context, marker *SyncMarker) error
	FindLatestByIntegration(ctx context.Context, integrationID uuid.UUID) (*SyncMarker, error)
}

// ---------------------------------------------------------------------------
// Authorization attempts
// ---------------------------------------------------------------------------

// AuthorizationAttempt correlates an OAuth callback with the request that
// started it. It is never persisted in the relational store.
type AuthorizationAttempt struct {
	TenantID    uuid.UUID   `json:"tenant_id"`
	Marketplace Marketplace `json:"marketplace"`
	State       string      `json:"state"`
	RedirectURI string      `json:"redirect_uri"`
	ChannelID   string      `json:"channel_id,omitempty"`
	OpenedAt    time.Time   `json:"opened_at"`
}

// StateStore keeps outstanding authorization attempts. A state is single-use:
// Consume returns it at most once.
type StateStore interface {
	// Issue stores the attempt under its state; ErrStateConflict if the state exists
	Issue(ctx context.Context, attempt AuthorizationAttempt, ttl time.Duration) error
	// Consume atomically removes and returns the attempt; ErrStateNotFound if unknown, expired or used
	Consume(ctx context.Context, state string) (*AuthorizationAttempt, error)
}

// Locker serializes writes to one integration across concurrent handlers
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey is the lock key for a tenant's integration with a marketplace
func LockKey(tenantID uuid.UUID, marketplace Marketplace) string {
	return "integration:" + tenantID.String() + ":" + string(marketplace)
}

// ---------------------------------------------------------------------------
// Marketplace providers
// ---------------------------------------------------------------------------

// Profile describes the marketplace account behind a set of credentials
type Profile struct {
	AccountID string         `json:"account_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Provider is the port every marketplace adapter implements.
// Errors returned are *ConnectError values.
type Provider interface {
	Marketplace() Marketplace
	AuthType() AuthType
	// Validate confirms the credentials still authenticate
	Validate(ctx context.Context, creds Credentials) (*Profile, error)
	// Revoke invalidates the credentials at the marketplace, if supported
	Revoke(ctx context.Context, creds Credentials) error
}

// OAuthProvider is implemented by marketplaces using the authorization-code grant
type OAuthProvider interface {
	Provider
	AuthCodeURL(state, redirectURI string) string
	// Exchange trades a single-use code for tokens
	Exchange(ctx context.Context, code, redirectURI string) (Credentials, error)
	// Refresh trades the stored refresh token for a new access token
	Refresh(ctx context.Context, creds Credentials) (Credentials, error)
}

// WebhookSubscriber is implemented by providers that must be told where to
// deliver notifications.
type WebhookSubscriber interface {
	SubscribeWebhook(ctx context.Context, creds Credentials, endpointURL, secret string) (remoteID string, err error)
}

// ProviderRegistry resolves marketplace adapters from the configuration map
type ProviderRegistry interface {
	// Get returns ErrMarketplaceNotConfigured for unknown marketplaces
	Get(marketplace Marketplace) (Provider, error)
	List() []Marketplace
}
