package connector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
)

// memoryIntegrationRepository stores copies so callers cannot mutate saved state
type memoryIntegrationRepository struct {
	mu    sync.Mutex
	items map[string]integration.Integration
	saves int
}

func newMemoryIntegrationRepository() *memoryIntegrationRepository {
	return &memoryIntegrationRepository{items: map[string]integration.Integration{}}
}

func repoKey(tenantID uuid.UUID, mp integration.Marketplace) string {
	return tenantID.String() + "/" + mp.String()
}

func (r *memoryIntegrationRepository) FindByMarketplace(_ context.Context, tenantID uuid.UUID, mp integration.Marketplace) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.items[repoKey(tenantID, mp)]
	if !ok {
		return nil, integration.ErrIntegrationNotFound
	}
	return &i, nil
}

func (r *memoryIntegrationRepository) FindByID(_ context.Context, tenantID, id uuid.UUID) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.items {
		if i.ID == id && i.TenantID == tenantID {
			return &i, nil
		}
	}
	return nil, integration.ErrIntegrationNotFound
}

func (r *memoryIntegrationRepository) FindExpiring(_ context.Context, before time.Time, limit int) ([]*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.Integration
	for _, i := range r.items {
		if i.IsActive() && i.AuthType == integration.AuthTypeOAuth &&
			i.Credentials.ExpiresAt != nil && i.Credentials.ExpiresAt.Before(before) && len(out) < limit {
			out = append(out, &i)
		}
	}
	return out, nil
}

func (r *memoryIntegrationRepository) Save(_ context.Context, i *integration.Integration) error {
	if err := i.CheckInvariants(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *i
	stored.PullEvents()
	r.items[repoKey(i.TenantID, i.Marketplace)] = stored
	r.saves++
	return nil
}

func (r *memoryIntegrationRepository) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// fakeProvider serves both auth types. Codes are single use.
type fakeProvider struct {
	marketplace integration.Marketplace
	authType    integration.AuthType

	mu          sync.Mutex
	codes       map[string]integration.Credentials
	exchanges   int
	exchangeErr error
	refreshes   int
	refreshErr  error
	refreshed   integration.Credentials
	validateErr error
	profile     *integration.Profile
	revokeErr   error
	revoked     int
}

func newOAuthProvider(mp integration.Marketplace) *fakeProvider {
	return &fakeProvider{
		marketplace: mp,
		authType:    integration.AuthTypeOAuth,
		codes:       map[string]integration.Credentials{},
		profile:     &integration.Profile{AccountID: "acct-1", Name: "Acme"},
	}
}

func newAPIKeyProvider(mp integration.Marketplace) *fakeProvider {
	p := newOAuthProvider(mp)
	p.authType = integration.AuthTypeAPIKey
	return p
}

func (p *fakeProvider) Marketplace() integration.Marketplace { return p.marketplace }
func (p *fakeProvider) AuthType() integration.AuthType       { return p.authType }

func (p *fakeProvider) AuthCodeURL(state, redirectURI string) string {
	return "https://provider.example.com/authorize?state=" + state + "&redirect_uri=" + redirectURI
}

func (p *fakeProvider) Exchange(_ context.Context, code, _ string) (integration.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchanges++
	if err := p.exchangeErr; err != nil {
		p.exchangeErr = nil
		return integration.Credentials{}, err
	}
	creds, ok := p.codes[code]
	if !ok {
		return integration.Credentials{}, integration.Rejected(p.marketplace, "invalid_grant", "code already used")
	}
	delete(p.codes, code)
	return creds, nil
}

func (p *fakeProvider) Refresh(context.Context, integration.Credentials) (integration.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	if p.refreshErr != nil {
		return integration.Credentials{}, p.refreshErr
	}
	return p.refreshed, nil
}

func (p *fakeProvider) Validate(context.Context, integration.Credentials) (*integration.Profile, error) {
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	return p.profile, nil
}

func (p *fakeProvider) Revoke(context.Context, integration.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked++
	return p.revokeErr
}

type fakeRegistry map[integration.Marketplace]integration.Provider

func (r fakeRegistry) Get(mp integration.Marketplace) (integration.Provider, error) {
	p, ok := r[mp]
	if !ok {
		return nil, integration.ErrMarketplaceNotConfigured
	}
	return p, nil
}

func (r fakeRegistry) List() []integration.Marketplace {
	out := make([]integration.Marketplace, 0, len(r))
	for mp := range r {
		out = append(out, mp)
	}
	return out
}

// MockWebhookProvisioner is a mock implementation of WebhookProvisioner
type MockWebhookProvisioner struct {
	mock.Mock
}

func (m *MockWebhookProvisioner) Provision(ctx context.Context, i *integration.Integration) error {
	args := m.Called(ctx, i)
	return args.Error(0)
}

func (m *MockWebhookProvisioner) Remove(ctx context.Context, i *integration.Integration) error {
	args := m.Called(ctx, i)
	return args.Error(0)
}

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

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}
