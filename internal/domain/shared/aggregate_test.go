package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type pingEvent struct{ BaseDomainEvent }

func TestNewTenantAggregateRoot(t *testing.T) {
	tenantID, owner := uuid.New(), uuid.New()

	root := NewTenantAggregateRootWithCreator(tenantID, owner)

	assert.NotEqual(t, uuid.Nil, root.ID)
	assert.Equal(t, 1, root.GetVersion())
	assert.Equal(t, tenantID, root.TenantID)
	if assert.NotNil(t, root.CreatedBy) {
		assert.Equal(t, owner, *root.CreatedBy)
	}
	assert.Equal(t, root.CreatedAt, root.UpdatedAt)
	assert.Nil(t, NewTenantAggregateRoot(tenantID).CreatedBy)
}

func TestAggregateRoot_Events(t *testing.T) {
	root := NewTenantAggregateRoot(uuid.New())
	ev := &pingEvent{NewBaseDomainEvent("Ping", "Test", root.ID, root.TenantID)}

	root.AddDomainEvent(ev)
	root.IncrementVersion()

	assert.Equal(t, 2, root.GetVersion())
	if assert.Len(t, root.GetDomainEvents(), 1) {
		got := root.GetDomainEvents()[0]
		assert.Equal(t, "Ping", got.EventType())
		assert.Equal(t, root.ID, got.AggregateID())
		assert.Equal(t, root.TenantID, got.TenantID())
	}

	root.ClearDomainEvents()
	assert.Empty(t, root.GetDomainEvents())
}

func TestNewPaginated(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		pageSize int
		pages    int
	}{
		{"exact pages", 40, 20, 2},
		{"partial last page", 41, 20, 3},
		{"empty", 0, 20, 0},
		{"zero page size", 3, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaginated([]int{}, tt.total, 1, tt.pageSize)
			assert.Equal(t, tt.pages, p.TotalPages)
		})
	}
}
