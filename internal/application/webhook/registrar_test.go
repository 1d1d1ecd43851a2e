package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type memoryRegistrations struct {
	mu    sync.Mutex
	items map[uuid.UUID]integration.WebhookRegistration
	saves int
}

func newMemoryRegistrations() *memoryRegistrations {
	return &memoryRegistrations{items: map[uuid.UUID]integration.WebhookRegistration{}}
}

func (r *memoryRegistrations) FindByID(_ context.Context, id uuid.UUID) (*integration.WebhookRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.items[id]
	if !ok {
		return nil, integration.ErrWebhookRegistrationNotFound
	}
	return &reg, nil
}

func (r *memoryRegistrations) FindByIntegration(_ context.Context, integrationID uuid.UUID) (*integration.WebhookRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.items {
		if reg.IntegrationID == integrationID {
			return &reg, nil
		}
	}
	return nil, integration.ErrWebhookRegistrationNotFound
}

func (r *memoryRegistrations) Save(_ context.Context, reg *integration.WebhookRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[reg.ID] = *reg
	r.saves++
	return nil
}

func (r *memoryRegistrations) DeleteByIntegration(_ context.Context, integrationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reg := range r.items {
		if reg.IntegrationID == integrationID {
			delete(r.items, id)
		}
	}
	return nil
}

type memoryMarkers struct {
	mu      sync.Mutex
	markers []integration.SyncMarker
}

func (m *memoryMarkers) Save(_ context.Context, marker *integration.SyncMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.markers {
		if m.markers[idx].ID == marker.ID {
			m.markers[idx] = *marker
			return nil
		}
	}
	m.markers = append(m.markers, *marker)
	return nil
}

func (m *memoryMarkers) FindLatestByIntegration(_ context.Context, integrationID uuid.UUID) (*integration.SyncMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := len(m.markers) - 1; idx >= 0; idx-- {
		if m.markers[idx].IntegrationID == integrationID {
			marker := m.markers[idx]
			return &marker, nil
		}
	}
	return nil, integration.ErrSyncMarkerNotFound
}

type failingMarkers struct {
	err error
}

func (m failingMarkers) Save(context.Context, *integration.SyncMarker) error { return m.err }

func (m failingMarkers) FindLatestByIntegration(context.Context, uuid.UUID) (*integration.SyncMarker, error) {
	return nil, m.err
}

// subscribingProvider is a marketplace requiring remote webhook subscription
type subscribingProvider struct {
	mock.Mock
}

func (p *subscribingProvider) Marketplace() integration.Marketplace { return integration.MarketplaceShopify }
func (p *subscribingProvider) AuthType() integration.AuthType       { return integration.AuthTypeOAuth }

func (p *subscribingProvider) Validate(context.Context, integration.Credentials) (*integration.Profile, error) {
	return &integration.Profile{}, nil
}

func (p *subscribingProvider) Revoke(context.Context, integration.Credentials) error { return nil }

func (p *subscribingProvider) SubscribeWebhook(ctx context.Context, creds integration.Credentials, endpointURL, secret string) (string, error) {
	args := p.Called(ctx, creds, endpointURL, secret)
	return args.String(0), args.Error(1)
}

// plainProvider receives webhooks without remote subscription
type plainProvider struct{}

func (plainProvider) Marketplace() integration.Marketplace { return integration.MarketplaceTaobao }
func (plainProvider) AuthType() integration.AuthType       { return integration.AuthTypeAPIKey }

func (plainProvider) Validate(context.Context, integration.Credentials) (*integration.Profile, error) {
	return &integration.Profile{}, nil
}

func (plainProvider) Revoke(context.Context, integration.Credentials) error { return nil }

type staticRegistry map[integration.Marketplace]integration.Provider

func (r staticRegistry) Get(mp integration.Marketplace) (integration.Provider, error) {
	if p, ok := r[mp]; ok {
		return p, nil
	}
	return nil, integration.ErrMarketplaceNotConfigured
}

func (r staticRegistry) List() []integration.Marketplace { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

type MockRetryQueue struct {
	mock.Mock
}

func (m *MockRetryQueue) EnqueueProvision(ctx context.Context, tenantID, integrationID uuid.UUID, marketplace integration.Marketplace) error {
	args := m.Called(ctx, tenantID, integrationID, marketplace)
	return args.Error(0)
}

func activeIntegration(t *testing.T, mp integration.Marketplace) *integration.Integration {
	t.Helper()
	i, err := integration.NewIntegration(uuid.New(), mp, integration.AuthTypeOAuth)
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, i.Activate(integration.Credentials{AccessToken: "at", ExpiresAt: &exp}))
	return i
}

type fixture struct {
	registrar *Registrar
	regs      *memoryRegistrations
	markers   *memoryMarkers
	events    *recordingPublisher
	retries   *MockRetryQueue
	provider  *subscribingProvider
}

func newFixture() *fixture {
	f := &fixture{
		regs:     newMemoryRegistrations(),
		markers:  &memoryMarkers{},
		events:   &recordingPublisher{},
		retries:  new(MockRetryQueue),
		provider: new(subscribingProvider),
	}
	f.registrar = NewRegistrar(Dependencies{
		Registrations: f.regs,
		Markers:       f.markers,
		Providers: staticRegistry{
			integration.MarketplaceShopify: f.provider,
			integration.MarketplaceTaobao:  plainProvider{},
		},
		Retries: f.retries,
		Events:  f.events,
	}, "https://erp.example.com/api/v1/webhooks/")
	return f
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestRegistrar_Provision(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)

	require.NoError(t, f.registrar.Provision(context.Background(), i))

	reg, err := f.regs.FindByIntegration(context.Background(), i.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://erp.example.com/api/v1/webhooks/taobao/"+reg.ID.String(), reg.EndpointURL)
	assert.Len(t, reg.Secret, 64, "32 random bytes, hex encoded")
	assert.Empty(t, reg.RemoteID)

	marker, err := f.markers.FindLatestByIntegration(context.Background(), i.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.SyncMarkerDispatched, marker.Status)
	assert.Equal(t, 1, f.events.count(integration.EventTypeWebhookRegistered))
	assert.Equal(t, 1, f.events.count(integration.EventTypeSyncRequested))
	f.retries.AssertNotCalled(t, "EnqueueProvision", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistrar_Provision_IsIdempotent(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)

	require.NoError(t, f.registrar.Provision(context.Background(), i))
	require.NoError(t, f.registrar.Provision(context.Background(), i))

	assert.Len(t, f.regs.items, 1)
	assert.Len(t, f.markers.markers, 1)
	assert.Equal(t, 1, f.events.count(integration.EventTypeSyncRequested))
}

func TestRegistrar_Provision_RemoteSubscription(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceShopify)
	f.provider.On("SubscribeWebhook", mock.Anything, i.Credentials,
		mock.MatchedBy(func(endpoint string) bool { return strings.HasPrefix(endpoint, "https://erp.example.com/api/v1/webhooks/shopify/") }),
		mock.AnythingOfType("string"),
	).Return("sub-42", nil).Once()

	require.NoError(t, f.registrar.Provision(context.Background(), i))
	require.NoError(t, f.registrar.Provision(context.Background(), i))

	reg, err := f.regs.FindByIntegration(context.Background(), i.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub-42", reg.RemoteID)
	f.provider.AssertExpectations(t)
}

func TestRegistrar_Provision_FailureIsQueuedForRetry(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceShopify)
	f.provider.On("SubscribeWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", integration.NetworkFailure(integration.MarketplaceShopify, errors.New("connection refused"))).Once()
	f.retries.On("EnqueueProvision", mock.Anything, i.TenantID, i.ID, i.Marketplace).Return(nil).Once()

	err := f.registrar.Provision(context.Background(), i)
	assert.ErrorIs(t, err, integration.ErrNetworkFailure)
	assert.Equal(t, 0, f.events.count(integration.EventTypeSyncRequested), "no sync before the webhook exists")
	assert.Equal(t, 0, f.events.count(integration.EventTypeWebhookRegistered))
	f.retries.AssertExpectations(t)

	// the retry reuses the registration and completes the handoff
	f.provider.On("SubscribeWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("sub-1", nil).Once()
	require.NoError(t, f.registrar.Register(context.Background(), i))
	assert.Len(t, f.regs.items, 1)
	assert.Len(t, f.markers.markers, 1)
	assert.Equal(t, 1, f.events.count(integration.EventTypeWebhookRegistered))
	assert.Equal(t, 1, f.events.count(integration.EventTypeSyncRequested))

	require.NoError(t, f.registrar.Register(context.Background(), i))
	assert.Equal(t, 1, f.events.count(integration.EventTypeWebhookRegistered), "a complete registration is announced once")
	f.provider.AssertExpectations(t)
}

func TestRegistrar_Register_UnknownMarkerErrorIsReturned(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)
	require.NoError(t, f.registrar.Provision(context.Background(), i))

	f.registrar.markers = failingMarkers{err: integration.ErrIntegrationNotFound}
	err := f.registrar.Register(context.Background(), i)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
}

func TestRegistrar_Register_RequiresActiveIntegration(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)
	i.Disconnect()

	err := f.registrar.Register(context.Background(), i)
	assert.ErrorIs(t, err, integration.ErrInvalidStatusTransition)
	assert.Empty(t, f.regs.items)
}

func TestRegistrar_ReconnectRequestsNewSync(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)
	require.NoError(t, f.registrar.Provision(context.Background(), i))

	require.NoError(t, f.registrar.Remove(context.Background(), i))
	assert.Empty(t, f.regs.items)
	require.NoError(t, f.registrar.Remove(context.Background(), i))

	require.NoError(t, f.registrar.Provision(context.Background(), i))
	assert.Len(t, f.markers.markers, 2)
	assert.Equal(t, 2, f.events.count(integration.EventTypeSyncRequested))
}

func TestRegistrar_Lookup(t *testing.T) {
	f := newFixture()
	i := activeIntegration(t, integration.MarketplaceTaobao)
	require.NoError(t, f.registrar.Provision(context.Background(), i))
	reg, err := f.regs.FindByIntegration(context.Background(), i.ID)
	require.NoError(t, err)

	found, err := f.registrar.Lookup(context.Background(), integration.MarketplaceTaobao, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Secret, found.Secret)

	_, err = f.registrar.Lookup(context.Background(), integration.MarketplaceDouyin, reg.ID)
	assert.ErrorIs(t, err, integration.ErrWebhookRegistrationNotFound)

	_, err = f.registrar.Lookup(context.Background(), integration.MarketplaceTaobao, uuid.New())
	assert.ErrorIs(t, err, integration.ErrWebhookRegistrationNotFound)
}
