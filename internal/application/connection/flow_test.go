package connection

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/cache"
	"github.com/erp/connector/internal/infrastructure/marketplace"
	"github.com/erp/connector/internal/infrastructure/persistence"
)

const callbackURL = "https://erp.example.com/oauth/callback"

// consentProvider issues code "abc" once per consent and accepts it once
type consentProvider struct {
	marketplace integration.Marketplace
	authType    integration.AuthType

	mu     sync.Mutex
	issued map[string]bool
}

func (p *consentProvider) Marketplace() integration.Marketplace { return p.marketplace }
func (p *consentProvider) AuthType() integration.AuthType       { return p.authType }

func (p *consentProvider) AuthCodeURL(state, redirectURI string) string {
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}}
	return "https://provider.example.com/authorize?" + q.Encode()
}

func (p *consentProvider) consent(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued[code] = true
}

func (p *consentProvider) Exchange(_ context.Context, code, _ string) (integration.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.issued[code] {
		return integration.Credentials{}, integration.Rejected(p.marketplace, "invalid_grant", "code already used")
	}
	delete(p.issued, code)
	expires := time.Now().Add(time.Hour)
	return integration.Credentials{AccessToken: "at-" + code, RefreshToken: "rt-" + code, TokenType: "Bearer", ExpiresAt: &expires}, nil
}

func (p *consentProvider) Refresh(_ context.Context, creds integration.Credentials) (integration.Credentials, error) {
	return creds, nil
}

func (p *consentProvider) Validate(context.Context, integration.Credentials) (*integration.Profile, error) {
	return &integration.Profile{AccountID: "acct-1", Name: "Acme"}, nil
}

func (p *consentProvider) Revoke(context.Context, integration.Credentials) error { return nil }

// browser simulates the user: it consents and lets the provider redirect, or
// closes the window after a few polls
type browser struct {
	provider *consentProvider
	closes   bool

	mu        sync.Mutex
	windows   int
	lastState string
}

func (b *browser) Open(_ context.Context, address string, _ authwindow.Geometry) (authwindow.Window, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.windows++
	b.lastState = u.Query().Get("state")
	b.mu.Unlock()

	w := &consentWindow{userCloses: b.closes}
	if !b.closes {
		b.provider.consent("abc")
		w.redirect = u.Query().Get("redirect_uri") + "?code=abc&state=" + url.QueryEscape(u.Query().Get("state"))
	}
	return w, nil
}

type consentWindow struct {
	userCloses bool
	redirect   string

	mu     sync.Mutex
	polls  int
	closed bool
}

func (w *consentWindow) Location(context.Context) (*url.URL, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.polls++
	switch {
	case w.closed:
		return nil, authwindow.ErrWindowClosed
	case w.polls < 3:
		return nil, authwindow.ErrCrossOrigin
	case w.userCloses:
		w.closed = true
		return nil, authwindow.ErrWindowClosed
	}
	return url.Parse(w.redirect)
}

func (w *consentWindow) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type flowEnv struct {
	facade   *Facade
	client   *LocalClient
	browser  *browser
	repo     *persistence.GormIntegrationRepository
	tenantID uuid.UUID
}

func newFlowEnv(t *testing.T, userCloses bool) *flowEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))

	cipher, err := persistence.NewCredentialCipher("flow-test-encryption-key-32-bytes!!")
	require.NoError(t, err)
	repo := persistence.NewGormIntegrationRepository(db, cipher)

	providers, err := marketplace.NewRegistry(nil)
	require.NoError(t, err)
	shop := &consentProvider{marketplace: integration.MarketplaceShopify, authType: integration.AuthTypeOAuth, issued: map[string]bool{}}
	providers.Register(shop)
	providers.Register(&consentProvider{marketplace: integration.MarketplaceTaobao, authType: integration.AuthTypeAPIKey})

	states := cache.NewInMemoryStateStore()
	t.Cleanup(func() { _ = states.Close() })

	backend := connector.NewService(connector.Dependencies{
		Integrations: repo,
		Providers:    providers,
		States:       states,
		Locker:       cache.NewInMemoryLocker(),
	}, connector.Config{RedirectURL: callbackURL})

	b := &browser{provider: shop, closes: userCloses}
	windows, err := authwindow.NewController(b, authwindow.Config{
		RedirectURL:  callbackURL,
		PollInterval: time.Millisecond,
		Timeout:      time.Second,
	})
	require.NoError(t, err)

	tenantID := uuid.New()
	client := NewLocalClient(backend, providers, tenantID)
	return &flowEnv{
		facade:   NewFacade(client, windows),
		client:   client,
		browser:  b,
		repo:     repo,
		tenantID: tenantID,
	}
}

func TestFlow_APIKeyMarketplace(t *testing.T) {
	env := newFlowEnv(t, false)

	res, err := env.facade.Authenticate(context.Background(), integration.MarketplaceTaobao,
		map[string]string{"app_key": "key", "app_secret": "secret"}, "")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, integration.MarketplaceTaobao, res.Data.Marketplace)
	assert.Equal(t, integration.StatusActive, res.Data.Status)
	assert.Empty(t, res.AuthURL)
	assert.Zero(t, env.browser.windows)
}

func TestFlow_OAuthConsentThenReplay(t *testing.T) {
	env := newFlowEnv(t, false)
	ctx := context.Background()

	res, err := env.facade.Authenticate(ctx, integration.MarketplaceShopify, nil, "")
	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, res.Data.Status)
	assert.Equal(t, 1, env.browser.windows)

	stored, err := env.repo.FindByMarketplace(ctx, env.tenantID, integration.MarketplaceShopify)
	require.NoError(t, err)
	assert.Equal(t, "at-abc", stored.Credentials.AccessToken)

	// the same code and state submitted again are rejected and change nothing
	_, err = env.client.Call(ctx, connector.WireRequest{
		Action:      "process_callback",
		Marketplace: "shopify",
		Code:        "abc",
		State:       env.browser.lastState,
	})
	assert.ErrorIs(t, err, integration.ErrProviderRejected)

	status, err := env.facade.GetConnectionStatus(ctx, integration.MarketplaceShopify)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusActive, status.Data.Status)
	assert.True(t, status.IsValid())
}

func TestFlow_UserClosesWindow(t *testing.T) {
	env := newFlowEnv(t, true)
	ctx := context.Background()

	_, err := env.facade.Authenticate(ctx, integration.MarketplaceShopify, nil, "")
	assert.ErrorIs(t, err, integration.ErrUserCancelled)

	_, err = env.repo.FindByMarketplace(ctx, env.tenantID, integration.MarketplaceShopify)
	assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

	_, err = env.facade.GetConnectionStatus(ctx, integration.MarketplaceShopify)
	assert.ErrorIs(t, err, integration.ErrNotConnected)
}

func TestFlow_DisconnectWipesCredentials(t *testing.T) {
	env := newFlowEnv(t, false)
	ctx := context.Background()

	_, err := env.facade.Authenticate(ctx, integration.MarketplaceShopify, nil, "")
	require.NoError(t, err)

	res, err := env.facade.Disconnect(ctx, integration.MarketplaceShopify, "")
	require.NoError(t, err)
	assert.Equal(t, integration.StatusDisconnected, res.Data.Status)

	stored, err := env.repo.FindByMarketplace(ctx, env.tenantID, integration.MarketplaceShopify)
	require.NoError(t, err)
	assert.True(t, stored.Credentials.IsEmpty())
}
