package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oauthCreds() Credentials {
	exp := time.Now().Add(time.Hour)
	return Credentials{AccessToken: "at-1", RefreshToken: "rt-1", TokenType: "Bearer", ExpiresAt: &exp}
}

func TestNewIntegration(t *testing.T) {
	tenantID := uuid.New()

	t.Run("Valid integration creation", func(t *testing.T) {
		i, err := NewIntegration(tenantID, MarketplaceShopify, AuthTypeOAuth)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, i.ID)
		assert.Equal(t, tenantID, i.TenantID)
		assert.Equal(t, StatusPending, i.Status)
		assert.True(t, i.Credentials.IsEmpty())
		assert.Equal(t, DefaultSyncConfig(), i.Config)
	})

	t.Run("Invalid tenant ID", func(t *testing.T) {
		_, err := NewIntegration(uuid.Nil, MarketplaceShopify, AuthTypeOAuth)
		assert.ErrorIs(t, err, ErrInvalidTenantID)
	})

	t.Run("Invalid marketplace", func(t *testing.T) {
		_, err := NewIntegration(tenantID, Marketplace("Not Valid!"), AuthTypeOAuth)
		assert.ErrorIs(t, err, ErrInvalidMarketplace)
	})

	t.Run("Invalid auth type", func(t *testing.T) {
		_, err := NewIntegration(tenantID, MarketplaceShopify, AuthType("password"))
		assert.ErrorIs(t, err, ErrInvalidAuthType)
	})
}

func TestIntegration_Activate(t *testing.T) {
	t.Run("OAuth with access token", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
		require.NoError(t, i.Activate(oauthCreds()))
		assert.True(t, i.IsActive())
		require.Len(t, i.PendingEvents(), 1)
		assert.Equal(t, EventTypeIntegrationActivated, i.PendingEvents()[0].EventType())
		assert.NoError(t, i.CheckInvariants())
	})

	t.Run("OAuth without access token is refused", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
		err := i.Activate(Credentials{RefreshToken: "rt"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, StatusPending, i.Status)
		assert.Empty(t, i.PendingEvents())
	})

	t.Run("API key with empty field is refused", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceTaobao, AuthTypeAPIKey)
		err := i.Activate(Credentials{APIKey: map[string]string{"app_key": "k", "app_secret": ""}})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("API key with all fields", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceTaobao, AuthTypeAPIKey)
		require.NoError(t, i.Activate(Credentials{APIKey: map[string]string{"app_key": "k", "app_secret": "s"}}))
		assert.True(t, i.IsActive())
	})
}

func TestIntegration_UpdateTokens(t *testing.T) {
	t.Run("Keeps refresh token when provider omits it", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
		require.NoError(t, i.Activate(oauthCreds()))

		require.NoError(t, i.UpdateTokens(Credentials{AccessToken: "at-2"}))
		assert.Equal(t, "at-2", i.Credentials.AccessToken)
		assert.Equal(t, "rt-1", i.Credentials.RefreshToken)
	})

	t.Run("Recovers from error status", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
		require.NoError(t, i.Activate(oauthCreds()))
		require.NoError(t, i.MarkError("expired"))

		require.NoError(t, i.UpdateTokens(Credentials{AccessToken: "at-2"}))
		assert.Equal(t, StatusActive, i.Status)
		assert.Empty(t, i.LastError)
	})

	t.Run("Refused for API key integrations", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceTaobao, AuthTypeAPIKey)
		assert.ErrorIs(t, i.UpdateTokens(Credentials{AccessToken: "x"}), ErrNotOAuth)
	})

	t.Run("Refused after disconnect", func(t *testing.T) {
		i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
		require.NoError(t, i.Activate(oauthCreds()))
		i.Disconnect()
		assert.ErrorIs(t, i.UpdateTokens(Credentials{AccessToken: "x"}), ErrInvalidStatusTransition)
	})
}

func TestIntegration_Disconnect(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
	require.NoError(t, i.Activate(oauthCreds()))
	i.PullEvents()

	i.Disconnect()

	assert.Equal(t, StatusDisconnected, i.Status)
	assert.True(t, i.Credentials.IsEmpty())
	assert.NoError(t, i.CheckInvariants())
	require.Len(t, i.PendingEvents(), 1)
	assert.Equal(t, EventTypeIntegrationDisconnected, i.PendingEvents()[0].EventType())
	assert.ErrorIs(t, i.MarkError("late failure"), ErrInvalidStatusTransition)
}

func TestIntegration_SwitchAuthType(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceTaobao, AuthTypeOAuth)
	require.NoError(t, i.Activate(oauthCreds()))
	assert.ErrorIs(t, i.SwitchAuthType(AuthTypeAPIKey), ErrInvalidStatusTransition)
	assert.NoError(t, i.SwitchAuthType(AuthTypeOAuth))

	i.Disconnect()
	require.NoError(t, i.SwitchAuthType(AuthTypeAPIKey))
	assert.Equal(t, AuthTypeAPIKey, i.AuthType)
	assert.Equal(t, StatusPending, i.Status)
	assert.NoError(t, i.Activate(Credentials{APIKey: map[string]string{"app_key": "k"}}))
}

func TestIntegration_CheckInvariants(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
	i.Status = StatusActive
	assert.ErrorIs(t, i.CheckInvariants(), ErrInvalidCredentials)

	i.Status = StatusDisconnected
	i.Credentials = oauthCreds()
	assert.ErrorIs(t, i.CheckInvariants(), ErrInvalidCredentials)
}

func TestCredentials_Expiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	soon := now.Add(2 * time.Minute)

	assert.True(t, Credentials{ExpiresAt: &past}.Expired(now))
	assert.False(t, Credentials{ExpiresAt: &soon}.Expired(now))
	assert.False(t, Credentials{}.Expired(now))
	assert.True(t, Credentials{ExpiresAt: &soon}.ExpiresWithin(5*time.Minute, now))
	assert.False(t, Credentials{ExpiresAt: &soon}.ExpiresWithin(time.Minute, now))
}

func TestParseMarketplace(t *testing.T) {
	m, err := ParseMarketplace("  Shopify ")
	require.NoError(t, err)
	assert.Equal(t, MarketplaceShopify, m)

	_, err = ParseMarketplace("")
	assert.ErrorIs(t, err, ErrInvalidMarketplace)

	assert.Equal(t, "Mercado Libre", Marketplace("mercado_libre").DisplayName())
	assert.Equal(t, "Taobao/Tmall", MarketplaceTaobao.DisplayName())
}
