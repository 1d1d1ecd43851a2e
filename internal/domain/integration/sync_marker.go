package integration

import (
	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncMarkerStatus is the state of an initial-sync handoff
type SyncMarkerStatus string

const (
	SyncMarkerPending    SyncMarkerStatus = "pending"
	SyncMarkerDispatched SyncMarkerStatus = "dispatched"
)

// SyncMarker records that an integration is ready for its initial
// synchronization. The synchronization itself runs elsewhere.
type SyncMarker struct {
	shared.BaseEntity

	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Marketplace   Marketplace
	Status        SyncMarkerStatus
}

// NewSyncMarker creates a pending marker for an active integration
func NewSyncMarker(i *Integration) (*SyncMarker, error) {
	if i == nil || !i.IsActive() {
		return nil, ErrInvalidStatusTransition
	}
	return &SyncMarker{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      i.TenantID,
		IntegrationID: i.ID,
		Marketplace:   i.Marketplace,
		Status:        SyncMarkerPending,
	}, nil
}

// MarkDispatched records that the handoff event was published
func (m *SyncMarker) MarkDispatched() {
	m.Status = SyncMarkerDispatched
	m.Touch()
}
