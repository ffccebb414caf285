package role

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Repository defines persistence for roles and their permission rows.
type Repository interface {
	// Create persists a role together with its permission rows in one
	// transaction. A duplicate active name returns ErrNameExists.
	Create(ctx context.Context, r *Role) error

	// GetByID retrieves a role by ID.
	GetByID(ctx context.Context, id shared.ID) (*Role, error)

	// GetActiveByName retrieves the tenant's active role with the name.
	GetActiveByName(ctx context.Context, tenantID shared.ID, name string) (*Role, error)

	// ListForTenant returns the tenant's roles.
	ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*Role, error)

	// Update persists role fields and replaces its permission rows
	// (delete-all-then-insert) in one transaction.
	Update(ctx context.Context, r *Role) error

	// CountActiveAssignments returns the number of active assignments
	// referencing the role.
	CountActiveAssignments(ctx context.Context, roleID shared.ID) (int, error)
}
