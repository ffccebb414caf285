// Package bundle provides reusable permission bundles. A bundle is a
// named permission set, global or tenant-scoped, attachable to roles or
// assigned directly to users. Bundle contents are never copied into role
// or assignment rows; they merge at resolution time, so editing a bundle
// immediately changes the effective permissions of every consumer.
package bundle

import (
	"errors"
	"time"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// Bundle is a reusable, independently editable permission set.
type Bundle struct {
	id            shared.ID
	name          string
	description   string
	scopeTenantID *shared.ID // nil = global
	status        shared.Status
	permissions   []permission.Key
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a new active bundle. scopeTenantID nil makes it global.
func New(name, description string, scopeTenantID *shared.ID, permissions []permission.Key) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		id:            shared.NewID(),
		name:          name,
		description:   description,
		scopeTenantID: scopeTenantID,
		status:        shared.StatusActive,
		permissions:   permissions,
		createdAt:     now,
		updatedAt:     now,
	}
}

// Reconstruct recreates a bundle from persistence.
func Reconstruct(
	id shared.ID,
	name string,
	description string,
	scopeTenantID *shared.ID,
	status shared.Status,
	permissions []permission.Key,
	createdAt time.Time,
	updatedAt time.Time,
) *Bundle {
	return &Bundle{
		id:            id,
		name:          name,
		description:   description,
		scopeTenantID: scopeTenantID,
		status:        status,
		permissions:   permissions,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the bundle ID.
func (b *Bundle) ID() shared.ID { return b.id }

// Name returns the bundle name.
func (b *Bundle) Name() string { return b.name }

// Description returns the bundle description.
func (b *Bundle) Description() string { return b.description }

// ScopeTenantID returns the owning tenant, or nil for global bundles.
func (b *Bundle) ScopeTenantID() *shared.ID { return b.scopeTenantID }

// IsGlobal reports whether any tenant may use the bundle.
func (b *Bundle) IsGlobal() bool { return b.scopeTenantID == nil }

// Status returns the lifecycle status.
func (b *Bundle) Status() shared.Status { return b.status }

// Permissions returns the bundle's permission keys.
func (b *Bundle) Permissions() []permission.Key { return b.permissions }

// PermissionSet returns the bundle's permissions as a set.
func (b *Bundle) PermissionSet() permission.Set {
	return permission.NewSet(b.permissions...)
}

// CreatedAt returns when the bundle was created.
func (b *Bundle) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns when the bundle was last updated.
func (b *Bundle) UpdatedAt() time.Time { return b.updatedAt }

// UsableBy reports whether the tenant may attach or assign the bundle.
func (b *Bundle) UsableBy(tenantID shared.ID) bool {
	return b.scopeTenantID == nil || b.scopeTenantID.Equals(tenantID)
}

// Rename changes the bundle name.
func (b *Bundle) Rename(name string) {
	b.name = name
	b.updatedAt = time.Now().UTC()
}

// Describe changes the bundle description.
func (b *Bundle) Describe(description string) {
	b.description = description
	b.updatedAt = time.Now().UTC()
}

// SetPermissions replaces the bundle's permission keys.
func (b *Bundle) SetPermissions(permissions []permission.Key) {
	b.permissions = permissions
	b.updatedAt = time.Now().UTC()
}

// Deactivate transitions the bundle to inactive. Used when the bundle is
// still referenced; unreferenced bundles are hard-deleted instead.
func (b *Bundle) Deactivate() {
	b.status = shared.StatusInactive
	b.updatedAt = time.Now().UTC()
}

// RoleAttachment links a bundle to a role without materializing its
// permissions into role rows.
type RoleAttachment struct {
	RoleID     shared.ID
	BundleID   shared.ID
	Status     shared.Status
	AttachedAt time.Time
}

// NewRoleAttachment creates an active role attachment.
func NewRoleAttachment(roleID, bundleID shared.ID) *RoleAttachment {
	return &RoleAttachment{
		RoleID:     roleID,
		BundleID:   bundleID,
		Status:     shared.StatusActive,
		AttachedAt: time.Now().UTC(),
	}
}

// UserAssignment grants a bundle directly to a user, optionally scoped to
// one inter-tenant relationship. An unscoped assignment applies to every
// resolution request of the tenant; a scoped one only to requests naming
// exactly that relationship.
type UserAssignment struct {
	ID             shared.ID
	UserID         shared.ID
	TenantID       shared.ID
	BundleID       shared.ID
	RelationshipID *shared.ID
	Status         shared.Status
	AssignedAt     time.Time
}

// NewUserAssignment creates an active user bundle assignment.
func NewUserAssignment(userID, tenantID, bundleID shared.ID, relationshipID *shared.ID) *UserAssignment {
	return &UserAssignment{
		ID:             shared.NewID(),
		UserID:         userID,
		TenantID:       tenantID,
		BundleID:       bundleID,
		RelationshipID: relationshipID,
		Status:         shared.StatusActive,
		AssignedAt:     time.Now().UTC(),
	}
}

// MatchesScope reports whether the assignment applies to a resolution
// request for the given relationship scope. The bundle applies when it is
// unscoped or scoped to exactly the requested relationship.
func (a *UserAssignment) MatchesScope(relationshipID *shared.ID) bool {
	if a.RelationshipID == nil {
		return true
	}
	return relationshipID != nil && a.RelationshipID.Equals(*relationshipID)
}

// Errors
var (
	ErrNotUsableByTenant = errors.New("bundle is not usable by this tenant")
	ErrAlreadyAttached   = errors.New("bundle is already attached to this role")
	ErrAlreadyAssigned   = errors.New("bundle is already assigned to this user in this scope")
)
