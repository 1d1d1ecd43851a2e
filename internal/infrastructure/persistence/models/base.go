package models

import (
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// Record carries the identity and timestamps shared by every table
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func recordOf(e shared.BaseEntity) Record {
	return Record{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (r Record) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// TenantRecord adds the owning tenant and the optimistic-lock version
// of an aggregate root.
type TenantRecord struct {
	Record
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Version  int       `gorm:"not null;default:1"`
}

func tenantRecordOf(root shared.TenantAggregateRoot) TenantRecord {
	return TenantRecord{Record: recordOf(root.BaseEntity), TenantID: root.TenantID, Version: root.Version}
}

func (r TenantRecord) root() shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{BaseEntity: r.entity(), TenantID: r.TenantID, Version: r.Version}
}
