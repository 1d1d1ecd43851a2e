package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and timestamps every stored record has
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity assigns a fresh ID and stamps both timestamps
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch bumps UpdatedAt to now
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}

// TenantAggregateRoot is a record owned by one tenant. Version is the
// optimistic lock counter checked on save; events raised by state changes
// wait in a buffer until the application layer pulls and publishes them.
type TenantAggregateRoot struct {
	BaseEntity
	TenantID uuid.UUID
	Version  int
	pending  []DomainEvent
}

// NewTenantAggregateRoot creates a version 1 aggregate for tenantID
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseEntity: NewBaseEntity(),
		TenantID:   tenantID,
		Version:    1,
	}
}

// IncrementVersion is called by repositories after a successful save
func (a *TenantAggregateRoot) IncrementVersion() {
	a.Version++
}

// Raise buffers an event for publication
func (a *TenantAggregateRoot) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the buffered events without clearing them
func (a *TenantAggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// PullEvents returns the buffered events and empties the buffer
func (a *TenantAggregateRoot) PullEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}
