//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/migration"
	"github.com/erp/connector/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a PostgreSQL container and applies the embedded migrations
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("connector_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func TestPostgres_IntegrationRoundTrip(t *testing.T) {
	db := newPostgresDB(t)
	repo := NewGormIntegrationRepository(db, testCipher(t))
	ctx := context.Background()
	tenantID := uuid.New()

	i := newActiveIntegration(t, tenantID, integration.MarketplaceShopify, time.Now().Add(30*time.Minute))
	require.NoError(t, repo.Save(ctx, i))

	found, err := repo.FindByMarketplace(ctx, tenantID, integration.MarketplaceShopify)
	require.NoError(t, err)
	assert.Equal(t, "access-shopify", found.Credentials.AccessToken)

	expiring, err := repo.FindExpiring(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, i.ID, expiring[0].ID)
}

func TestPostgres_OneIntegrationPerTenantMarketplace(t *testing.T) {
	db := newPostgresDB(t)
	repo := NewGormIntegrationRepository(db, testCipher(t))
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, repo.Save(ctx, newActiveIntegration(t, tenantID, integration.MarketplaceShopify, time.Now().Add(time.Hour))))
	err := repo.Save(ctx, newActiveIntegration(t, tenantID, integration.MarketplaceShopify, time.Now().Add(time.Hour)))
	assert.Error(t, err)
}

func TestPostgres_OptimisticLock(t *testing.T) {
	db := newPostgresDB(t)
	repo := NewGormIntegrationRepository(db, testCipher(t))
	ctx := context.Background()

	i := newActiveIntegration(t, uuid.New(), integration.MarketplaceShopify, time.Now().Add(time.Hour))
	require.NoError(t, repo.Save(ctx, i))

	stale, err := repo.FindByID(ctx, i.TenantID, i.ID)
	require.NoError(t, err)

	i.Disconnect()
	require.NoError(t, repo.Save(ctx, i))

	stale.Disconnect()
	assert.ErrorIs(t, repo.Save(ctx, stale), shared.ErrConcurrencyConflict)
}
