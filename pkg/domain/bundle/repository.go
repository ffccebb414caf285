package bundle

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Repository defines persistence for bundles and their associations.
type Repository interface {
	// Create persists a bundle with its permission rows in one transaction.
	Create(ctx context.Context, b *Bundle) error

	// GetByID retrieves a bundle by ID.
	GetByID(ctx context.Context, id shared.ID) (*Bundle, error)

	// ListForTenant returns global bundles plus the tenant's own.
	ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*Bundle, error)

	// Update persists bundle fields and replaces its permission rows in
	// one transaction.
	Update(ctx context.Context, b *Bundle) error

	// Delete removes the bundle. Implementations soft-deactivate when the
	// bundle has active references and hard-delete otherwise.
	Delete(ctx context.Context, id shared.ID) error

	// CountActiveReferences returns active role attachments plus active
	// user assignments referencing the bundle.
	CountActiveReferences(ctx context.Context, bundleID shared.ID) (int, error)

	// === Role attachments ===

	// AttachToRole records a role attachment. Duplicates return
	// ErrAlreadyAttached.
	AttachToRole(ctx context.Context, att *RoleAttachment) error

	// DetachFromRole deactivates a role attachment.
	DetachFromRole(ctx context.Context, roleID, bundleID shared.ID) error

	// ListActiveForRole returns the bundles actively attached to a role.
	ListActiveForRole(ctx context.Context, roleID shared.ID) ([]*Bundle, error)

	// === User assignments ===

	// AssignToUser records a direct user bundle assignment. Duplicates in
	// the same scope return ErrAlreadyAssigned.
	AssignToUser(ctx context.Context, ua *UserAssignment) error

	// UnassignFromUser deactivates a user bundle assignment and returns
	// it so callers can invalidate the affected scope.
	UnassignFromUser(ctx context.Context, id shared.ID) (*UserAssignment, error)

	// ListActiveForUser returns active user assignments of the user in the
	// tenant, with each bundle loaded. Scope filtering happens in the
	// resolver, not here.
	ListActiveForUser(ctx context.Context, userID, tenantID shared.ID) ([]*UserAssignment, map[shared.ID]*Bundle, error)
}
