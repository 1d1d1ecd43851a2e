package integration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookRegistration(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)

	reg, err := NewWebhookRegistration(i, "https://erp.example.com/api/v1/webhooks/", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, i.ID, reg.IntegrationID)
	assert.Equal(t, "https://erp.example.com/api/v1/webhooks/shopify/"+reg.ID.String(), reg.EndpointURL)

	_, err = NewWebhookRegistration(i, "not a url", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)

	_, err = NewWebhookRegistration(i, "https://erp.example.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestWebhookRegistration_VerifySignature(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
	reg, err := NewWebhookRegistration(i, "https://erp.example.com/hooks", "s3cret")
	require.NoError(t, err)

	body := []byte(`{"topic":"orders/create"}`)
	sig := reg.Sign(body)

	assert.True(t, reg.VerifySignature(body, sig))
	assert.True(t, reg.VerifySignature(body, "sha256="+sig))
	assert.False(t, reg.VerifySignature([]byte(`{}`), sig))
	assert.False(t, reg.VerifySignature(body, "zz"))
	assert.False(t, reg.VerifySignature(body, ""))
}

func TestNewSyncMarker(t *testing.T) {
	i, _ := NewIntegration(uuid.New(), MarketplaceShopify, AuthTypeOAuth)
	_, err := NewSyncMarker(i)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	require.NoError(t, i.Activate(Credentials{AccessToken: "at"}))
	m, err := NewSyncMarker(i)
	require.NoError(t, err)
	assert.Equal(t, SyncMarkerPending, m.Status)
	m.MarkDispatched()
	assert.Equal(t, SyncMarkerDispatched, m.Status)
}
