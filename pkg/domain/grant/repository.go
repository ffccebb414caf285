package grant

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// Repository defines persistence for tenant grants.
//
// RevokeCascade and ReplaceAll carry the cascade that keeps the
// grant-containment invariant true at rest: removed permissions are
// stripped from every role of the tenant inside the same transaction.
type Repository interface {
	// Grant records a permission grant. Granting an already-granted
	// permission returns shared.ErrConflict.
	Grant(ctx context.Context, g *TenantGrant) error

	// RevokeCascade deletes a grant and strips the permission from all of
	// the tenant's roles atomically. Revoking an absent grant returns
	// shared.ErrNotFound without side effects.
	RevokeCascade(ctx context.Context, tenantID shared.ID, key permission.Key) error

	// ReplaceAll diffs the tenant's grants against keys: missing grants
	// are added, surplus grants are revoked with the role cascade, all in
	// one transaction.
	ReplaceAll(ctx context.Context, tenantID shared.ID, keys []permission.Key, grantedBy shared.ID) error

	// ListForTenant returns every grant of the tenant.
	ListForTenant(ctx context.Context, tenantID shared.ID) ([]*TenantGrant, error)

	// GrantedSet returns the tenant's granted permission keys as a set.
	GrantedSet(ctx context.Context, tenantID shared.ID) (permission.Set, error)
}
