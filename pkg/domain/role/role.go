// Package role provides tenant-owned roles: named sets of directly
// granted permissions. Role permissions are stored post-dependency-
// expansion and are always a subset of the owning tenant's grants.
package role

import (
	"errors"
	"time"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// Role is a named, tenant-owned permission set.
type Role struct {
	id          shared.ID
	tenantID    shared.ID
	name        string
	description string
	status      shared.Status
	permissions []permission.Key
	createdAt   time.Time
	updatedAt   time.Time
	createdBy   *shared.ID
}

// New creates a new active role. permissions must already be
// dependency-expanded by the caller.
func New(tenantID shared.ID, name, description string, permissions []permission.Key, createdBy *shared.ID) *Role {
	now := time.Now().UTC()
	return &Role{
		id:          shared.NewID(),
		tenantID:    tenantID,
		name:        name,
		description: description,
		status:      shared.StatusActive,
		permissions: permissions,
		createdAt:   now,
		updatedAt:   now,
		createdBy:   createdBy,
	}
}

// Reconstruct recreates a role from persistence.
func Reconstruct(
	id shared.ID,
	tenantID shared.ID,
	name string,
	description string,
	status shared.Status,
	permissions []permission.Key,
	createdAt time.Time,
	updatedAt time.Time,
	createdBy *shared.ID,
) *Role {
	return &Role{
		id:          id,
		tenantID:    tenantID,
		name:        name,
		description: description,
		status:      status,
		permissions: permissions,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		createdBy:   createdBy,
	}
}

// ID returns the role ID.
func (r *Role) ID() shared.ID { return r.id }

// TenantID returns the owning tenant.
func (r *Role) TenantID() shared.ID { return r.tenantID }

// Name returns the role name, unique among the tenant's active roles.
func (r *Role) Name() string { return r.name }

// Description returns the role description.
func (r *Role) Description() string { return r.description }

// Status returns the lifecycle status.
func (r *Role) Status() shared.Status { return r.status }

// Permissions returns the directly granted permission keys.
func (r *Role) Permissions() []permission.Key { return r.permissions }

// PermissionSet returns the direct grants as a set.
func (r *Role) PermissionSet() permission.Set {
	return permission.NewSet(r.permissions...)
}

// CreatedAt returns when the role was created.
func (r *Role) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns when the role was last updated.
func (r *Role) UpdatedAt() time.Time { return r.updatedAt }

// CreatedBy returns who created the role, if recorded.
func (r *Role) CreatedBy() *shared.ID { return r.createdBy }

// Rename changes the role name.
func (r *Role) Rename(name string) {
	r.name = name
	r.updatedAt = time.Now().UTC()
}

// Describe changes the role description.
func (r *Role) Describe(description string) {
	r.description = description
	r.updatedAt = time.Now().UTC()
}

// SetPermissions replaces the role's permission set. The caller supplies
// the already-expanded set; storage is a full replace, never a merge.
func (r *Role) SetPermissions(permissions []permission.Key) {
	r.permissions = permissions
	r.updatedAt = time.Now().UTC()
}

// Deactivate transitions the role to inactive. Only roles with zero
// active assignments may be deactivated; the service enforces that.
func (r *Role) Deactivate() {
	r.status = shared.StatusInactive
	r.updatedAt = time.Now().UTC()
}

// Errors
var (
	ErrNameExists = errors.New("role with this name already exists")
	ErrInUse      = errors.New("role has active assignments and cannot be deleted")
)
