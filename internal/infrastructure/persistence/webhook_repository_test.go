package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormWebhookRegistrationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormWebhookRegistrationRepository(db, testCipher(t))
	ctx := context.Background()

	i := newActiveIntegration(t, uuid.New(), integration.MarketplaceShopify, time.Now().UTC().Add(time.Hour))
	reg, err := integration.NewWebhookRegistration(i, "https://connector.example.com/api/v1/webhooks", "s3cret")
	require.NoError(t, err)

	t.Run("save and find by id", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, reg))

		found, err := repo.FindByID(ctx, reg.ID)
		require.NoError(t, err)
		assert.Equal(t, reg.EndpointURL, found.EndpointURL)
		assert.Equal(t, "s3cret", found.Secret)
		assert.Equal(t, i.ID, found.IntegrationID)
	})

	t.Run("secret is sealed at rest", func(t *testing.T) {
		var raw models.WebhookRegistrationModel
		require.NoError(t, db.First(&raw, "id = ?", reg.ID).Error)
		assert.NotContains(t, string(raw.Secret), "s3cret")
	})

	t.Run("save again updates remote id", func(t *testing.T) {
		reg.SetRemoteID("sub-42")
		require.NoError(t, repo.Save(ctx, reg))

		found, err := repo.FindByIntegration(ctx, i.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub-42", found.RemoteID)
	})

	t.Run("delete by integration", func(t *testing.T) {
		require.NoError(t, repo.DeleteByIntegration(ctx, i.ID))

		_, err := repo.FindByIntegration(ctx, i.ID)
		assert.ErrorIs(t, err, integration.ErrWebhookRegistrationNotFound)
		_, err = repo.FindByID(ctx, reg.ID)
		assert.ErrorIs(t, err, integration.ErrWebhookRegistrationNotFound)
	})
}

func TestGormSyncMarkerRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSyncMarkerRepository(db)
	ctx := context.Background()

	i := newActiveIntegration(t, uuid.New(), integration.MarketplaceShopify, time.Now().UTC().Add(time.Hour))

	_, err := repo.FindLatestByIntegration(ctx, i.ID)
	assert.ErrorIs(t, err, integration.ErrSyncMarkerNotFound)
	assert.NotErrorIs(t, err, integration.ErrIntegrationNotFound)

	older, err := integration.NewSyncMarker(i)
	require.NoError(t, err)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, older))

	latest, err := integration.NewSyncMarker(i)
	require.NoError(t, err)
	latest.CreatedAt = time.Now().UTC()
	require.NoError(t, repo.Save(ctx, latest))

	latest.MarkDispatched()
	require.NoError(t, repo.Save(ctx, latest))

	found, err := repo.FindLatestByIntegration(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, found.ID)
	assert.Equal(t, integration.SyncMarkerDispatched, found.Status)
}
