package assignment

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Repository defines persistence for assignments and overrides. The
// multi-row operations (create with overrides, override replacement,
// removal cascade) are single transactions.
type Repository interface {
	// CreateWithOverrides persists an assignment plus its override rows
	// atomically. A second active assignment for the same exact scope
	// tuple returns ErrDuplicateScope.
	CreateWithOverrides(ctx context.Context, a *Assignment, overrides []*Override) error

	// GetByID retrieves an assignment by ID.
	GetByID(ctx context.Context, id shared.ID) (*Assignment, error)

	// GetActiveByScope retrieves the single active assignment for the
	// exact scope tuple, or shared.ErrNotFound.
	GetActiveByScope(ctx context.Context, scope ScopeKey) (*Assignment, error)

	// ListForUser returns the user's assignments in a tenant.
	ListForUser(ctx context.Context, userID, tenantID shared.ID) ([]*Assignment, error)

	// ListForTenant returns the tenant's assignments.
	ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*Assignment, error)

	// UpdateWithOverrides persists assignment changes and, when
	// replaceOverrides is true, deactivates every active override of the
	// assignment's scope tuple before inserting the new set, all in one
	// transaction.
	UpdateWithOverrides(ctx context.Context, a *Assignment, replaceOverrides bool, overrides []*Override) error

	// DeactivateCascade deactivates the assignment and exactly the active
	// overrides sharing its scope tuple, in one transaction.
	DeactivateCascade(ctx context.Context, a *Assignment) error

	// ListActiveOverrides returns the active overrides of the user in the
	// tenant. Scope filtering happens in the resolver.
	ListActiveOverrides(ctx context.Context, userID, tenantID shared.ID) ([]*Override, error)

	// ListOverridesByScope returns the active overrides of the exact
	// scope tuple.
	ListOverridesByScope(ctx context.Context, scope ScopeKey) ([]*Override, error)
}
