package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWebhookRegistrationRepository implements integration.WebhookRegistrationRepository using GORM
type GormWebhookRegistrationRepository struct {
	db     *gorm.DB
	cipher CredentialCipher
}

// NewGormWebhookRegistrationRepository creates a new GormWebhookRegistrationRepository
func NewGormWebhookRegistrationRepository(db *gorm.DB, cipher CredentialCipher) *GormWebhookRegistrationRepository {
	return &GormWebhookRegistrationRepository{db: db, cipher: cipher}
}

// FindByID finds a registration by ID. Inbound deliveries only carry the registration ID.
func (r *GormWebhookRegistrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookRegistration, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByIntegration finds the registration of an integration
func (r *GormWebhookRegistrationRepository) FindByIntegration(ctx context.Context, integrationID uuid.UUID) (*integration.WebhookRegistration, error) {
	return r.findOne(ctx, "integration_id = ?", integrationID)
}

// Save inserts or updates a registration
func (r *GormWebhookRegistrationRepository) Save(ctx context.Context, reg *integration.WebhookRegistration) error {
	sealed, err := r.cipher.Seal([]byte(reg.Secret), reg.ID[:])
	if err != nil {
		return err
	}
	model := models.WebhookRegistrationModelFromDomain(reg, sealed)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"endpoint_url", "secret", "remote_id", "updated_at"}),
		}).
		Create(model).Error
}

// DeleteByIntegration removes every registration of an integration
func (r *GormWebhookRegistrationRepository) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Delete(&models.WebhookRegistrationModel{}).Error
}

func (r *GormWebhookRegistrationRepository) findOne(ctx context.Context, query string, arg any) (*integration.WebhookRegistration, error) {
	var model models.WebhookRegistrationModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWebhookRegistrationNotFound
		}
		return nil, err
	}
	secret, err := r.cipher.Open(model.Secret, model.ID[:])
	if err != nil {
		return nil, fmt.Errorf("webhook registration %s: %w", model.ID, err)
	}
	reg := model.ToDomain()
	reg.Secret = string(secret)
	return reg, nil
}

// GormSyncMarkerRepository implements integration.SyncMarkerRepository using GORM
type GormSyncMarkerRepository struct {
	db *gorm.DB
}

// NewGormSyncMarkerRepository creates a new GormSyncMarkerRepository
func NewGormSyncMarkerRepository(db *gorm.DB) *GormSyncMarkerRepository {
	return &GormSyncMarkerRepository{db: db}
}

// Save inserts or updates a sync marker
func (r *GormSyncMarkerRepository) Save(ctx context.Context, marker *integration.SyncMarker) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(models.SyncMarkerModelFromDomain(marker)).Error
}

// FindLatestByIntegration returns the most recent marker of an integration
func (r *GormSyncMarkerRepository) FindLatestByIntegration(ctx context.Context, integrationID uuid.UUID) (*integration.SyncMarker, error) {
	var model models.SyncMarkerModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncMarkerNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
