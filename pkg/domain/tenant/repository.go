package tenant

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Repository defines persistence for tenants.
type Repository interface {
	// Create persists a new tenant.
	Create(ctx context.Context, t *Tenant) error

	// GetByID retrieves a tenant by ID.
	GetByID(ctx context.Context, id shared.ID) (*Tenant, error)

	// GetPlatformOwner retrieves the single platform-owner tenant.
	GetPlatformOwner(ctx context.Context) (*Tenant, error)

	// List returns all tenants, active first.
	List(ctx context.Context) ([]*Tenant, error)

	// Update persists changes to a tenant.
	Update(ctx context.Context, t *Tenant) error
}

// RelationshipRepository defines persistence for inter-tenant relationships.
type RelationshipRepository interface {
	// Create persists a new relationship.
	Create(ctx context.Context, r *Relationship) error

	// GetByID retrieves a relationship by ID.
	GetByID(ctx context.Context, id shared.ID) (*Relationship, error)

	// ListForTenant returns relationships where the tenant is a party.
	ListForTenant(ctx context.Context, tenantID shared.ID) ([]*Relationship, error)

	// Update persists changes to a relationship.
	Update(ctx context.Context, r *Relationship) error
}
