package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockBackend is a mock implementation of connector.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) result(args mock.Arguments) (*connector.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Result), args.Error(1)
}

func (m *MockBackend) GetAuthURL(ctx context.Context, tenantID uuid.UUID, req connector.GetAuthURLRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) ConnectAPIKey(ctx context.Context, tenantID uuid.UUID, req connector.ConnectAPIKeyRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) ExchangeCode(ctx context.Context, tenantID uuid.UUID, req connector.ExchangeCodeRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) Refresh(ctx context.Context, tenantID uuid.UUID, req connector.RefreshRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) Validate(ctx context.Context, tenantID uuid.UUID, req connector.ValidateRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) Disconnect(ctx context.Context, tenantID uuid.UUID, req connector.DisconnectRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) Status(ctx context.Context, tenantID uuid.UUID, req connector.StatusRequest) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

func (m *MockBackend) Dispatch(ctx context.Context, tenantID uuid.UUID, req connector.Request) (*connector.Result, error) {
	return m.result(m.Called(ctx, tenantID, req))
}

type stubProvider struct {
	marketplace integration.Marketplace
	authType    integration.AuthType
}

func (p stubProvider) Marketplace() integration.Marketplace { return p.marketplace }
func (p stubProvider) AuthType() integration.AuthType       { return p.authType }
func (p stubProvider) Validate(context.Context, integration.Credentials) (*integration.Profile, error) {
	return &integration.Profile{}, nil
}
func (p stubProvider) Revoke(context.Context, integration.Credentials) error { return nil }

type stubRegistry map[integration.Marketplace]integration.Provider

func (r stubRegistry) Get(mp integration.Marketplace) (integration.Provider, error) {
	if p, ok := r[mp]; ok {
		return p, nil
	}
	return nil, integration.ErrMarketplaceNotConfigured
}

func (r stubRegistry) List() []integration.Marketplace {
	out := make([]integration.Marketplace, 0, len(r))
	for mp := range r {
		out = append(out, mp)
	}
	return out
}

func testRegistry() stubRegistry {
	return stubRegistry{
		integration.MarketplaceShopify: stubProvider{integration.MarketplaceShopify, integration.AuthTypeOAuth},
		integration.MarketplaceTaobao:  stubProvider{integration.MarketplaceTaobao, integration.AuthTypeAPIKey},
	}
}

// withClaims authenticates the request as tenantID with the given permissions
func withClaims(tenantID uuid.UUID, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTClaimsKey, &auth.Claims{TenantID: tenantID.String(), Permissions: permissions})
		c.Set(middleware.JWTTenantIDKey, tenantID.String())
		c.Next()
	}
}
