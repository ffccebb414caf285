// Package grant provides the tenant grant registry: the platform owner's
// allow-list of which permissions each tenant may use at all. Every
// permission held by a tenant's roles must appear in the tenant's grants.
package grant

import (
	"fmt"
	"strings"
	"time"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// TenantGrant records that a tenant may use one permission.
// Grants are hard-deleted on revoke; the revoke cascades the permission
// out of every role of the tenant in the same transaction.
type TenantGrant struct {
	tenantID   shared.ID
	permission permission.Key
	grantedBy  shared.ID
	grantedAt  time.Time
}

// New creates a grant of one permission to a tenant.
func New(tenantID shared.ID, key permission.Key, grantedBy shared.ID) *TenantGrant {
	return &TenantGrant{
		tenantID:   tenantID,
		permission: key,
		grantedBy:  grantedBy,
		grantedAt:  time.Now().UTC(),
	}
}

// Reconstruct recreates a grant from persistence.
func Reconstruct(tenantID shared.ID, key permission.Key, grantedBy shared.ID, grantedAt time.Time) *TenantGrant {
	return &TenantGrant{
		tenantID:   tenantID,
		permission: key,
		grantedBy:  grantedBy,
		grantedAt:  grantedAt,
	}
}

// TenantID returns the granted tenant.
func (g *TenantGrant) TenantID() shared.ID { return g.tenantID }

// Permission returns the granted permission key.
func (g *TenantGrant) Permission() permission.Key { return g.permission }

// GrantedBy returns the platform-owner user that created the grant.
func (g *TenantGrant) GrantedBy() shared.ID { return g.grantedBy }

// GrantedAt returns when the grant was created.
func (g *TenantGrant) GrantedAt() time.Time { return g.grantedAt }

// ConsistencyError reports role permissions that are not covered by the
// tenant's grant set. It carries the exact offending keys.
type ConsistencyError struct {
	TenantID shared.ID
	Missing  []permission.Key
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("permissions not granted to tenant %s: %s",
		e.TenantID, strings.Join(permission.ToStrings(e.Missing), ", "))
}

// Unwrap maps the error onto the consistency sentinel.
func (e *ConsistencyError) Unwrap() error {
	return shared.ErrConsistency
}
