package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIntegrationRepository implements integration.IntegrationRepository using GORM.
// Credentials are sealed with the row ID as associated data.
type GormIntegrationRepository struct {
	db     *gorm.DB
	cipher CredentialCipher
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB, cipher CredentialCipher) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db, cipher: cipher}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormIntegrationRepository) WithTx(tx *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: tx, cipher: r.cipher}
}

// FindByMarketplace finds the tenant's integration with a marketplace
func (r *GormIntegrationRepository) FindByMarketplace(ctx context.Context, tenantID uuid.UUID, marketplace integration.Marketplace) (*integration.Integration, error) {
	var model models.IntegrationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND marketplace = ?", tenantID, string(marketplace)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindByID finds an integration by ID within a tenant
func (r *GormIntegrationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindExpiring lists active OAuth integrations of all tenants whose token expires before the given time
func (r *GormIntegrationRepository) FindExpiring(ctx context.Context, before time.Time, limit int) ([]*integration.Integration, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.IntegrationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND auth_type = ?", string(integration.StatusActive), string(integration.AuthTypeOAuth)).
		Where("token_expires_at IS NOT NULL AND token_expires_at < ?", before).
		Order("token_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*integration.Integration, 0, len(rows))
	for i := range rows {
		item, err := r.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

// Save inserts the integration or updates it with optimistic locking
func (r *GormIntegrationRepository) Save(ctx context.Context, i *integration.Integration) error {
	if err := i.CheckInvariants(); err != nil {
		return err
	}
	sealed, err := r.seal(i.ID, i.Credentials)
	if err != nil {
		return err
	}
	model := models.IntegrationModelFromDomain(i, sealed)
	currentVersion := i.Version

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.IntegrationModel{}).
			Where("id = ? AND version = ?", i.ID, currentVersion).
			Updates(map[string]any{
				"status":            model.Status,
				"credentials":       model.Credentials,
				"token_expires_at":  model.TokenExpiresAt,
				"channel_id":        model.ChannelID,
				"last_error":        model.LastError,
				"last_validated_at": model.LastValidatedAt,
				"sync_interval":     model.SyncInterval,
				"auto_sync":         model.AutoSync,
				"version":           currentVersion + 1,
				"updated_at":        model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			i.IncrementVersion()
			return nil
		}

		var count int64
		if err := tx.Model(&models.IntegrationModel{}).Where("id = ?", i.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrConcurrencyConflict
		}
		return tx.Create(model).Error
	})
}

func (r *GormIntegrationRepository) seal(id uuid.UUID, creds integration.Credentials) ([]byte, error) {
	if creds.IsEmpty() {
		return nil, nil
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	return r.cipher.Seal(plaintext, id[:])
}

func (r *GormIntegrationRepository) toDomain(model *models.IntegrationModel) (*integration.Integration, error) {
	i := model.ToDomain()
	if len(model.Credentials) == 0 {
		return i, nil
	}
	plaintext, err := r.cipher.Open(model.Credentials, model.ID[:])
	if err != nil {
		return nil, fmt.Errorf("integration %s: %w", model.ID, err)
	}
	if err := json.Unmarshal(plaintext, &i.Credentials); err != nil {
		return nil, fmt.Errorf("integration %s: failed to decode credentials: %w", model.ID, err)
	}
	return i, nil
}
