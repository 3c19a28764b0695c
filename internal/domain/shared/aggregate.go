package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is implemented by settlement documents and export tasks
type AggregateRoot interface {
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

var _ AggregateRoot = (*TenantAggregateRoot)(nil)

// BaseEntity carries identity and timestamps
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BaseAggregateRoot adds the optimistic-lock version and pending events.
// Repositories compare Version on save and bump it on success.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent queues an event for publication after the next save
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops the pending events once they are published
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// TenantAggregateRoot scopes an aggregate to a tenant. CreatedBy is the
// owning user; export authorization compares it with the operator.
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// NewTenantAggregateRoot creates a fresh aggregate for tenantID
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	now := time.Now()
	return TenantAggregateRoot{
		BaseAggregateRoot: BaseAggregateRoot{
			BaseEntity: BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Version:    1,
		},
		TenantID: tenantID,
	}
}

// NewTenantAggregateRootWithCreator is NewTenantAggregateRoot owned by createdBy
func NewTenantAggregateRootWithCreator(tenantID, createdBy uuid.UUID) TenantAggregateRoot {
	root := NewTenantAggregateRoot(tenantID)
	root.CreatedBy = &createdBy
	return root
}
