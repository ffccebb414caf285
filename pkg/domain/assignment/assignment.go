// Package assignment provides user-to-role assignments and per-user
// permission overrides. An assignment binds a user to one role inside a
// tenant, optionally narrowed to one inter-tenant relationship; overrides
// layer explicit ALLOW/DENY exceptions on top.
package assignment

import (
	"errors"
	"time"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// ScopeKey is the (user, tenant, relationship) tuple that scopes
// assignments and overrides. Matching is exact: a nil relationship is its
// own scope, not a fallback for scoped requests.
type ScopeKey struct {
	UserID         shared.ID
	TenantID       shared.ID
	RelationshipID *shared.ID
}

// Matches reports whether two scope keys are the same exact tuple.
func (k ScopeKey) Matches(other ScopeKey) bool {
	if !k.UserID.Equals(other.UserID) || !k.TenantID.Equals(other.TenantID) {
		return false
	}
	if k.RelationshipID == nil {
		return other.RelationshipID == nil
	}
	return other.RelationshipID != nil && k.RelationshipID.Equals(*other.RelationshipID)
}

// Assignment links a user to a role within a tenant. At most one active
// assignment exists per exact scope tuple.
type Assignment struct {
	id             shared.ID
	userID         shared.ID
	tenantID       shared.ID
	roleID         shared.ID
	relationshipID *shared.ID
	status         shared.Status
	createdAt      time.Time
	updatedAt      time.Time
	createdBy      shared.ID
}

// New creates a new active assignment.
func New(userID, tenantID, roleID shared.ID, relationshipID *shared.ID, createdBy shared.ID) *Assignment {
	now := time.Now().UTC()
	return &Assignment{
		id:             shared.NewID(),
		userID:         userID,
		tenantID:       tenantID,
		roleID:         roleID,
		relationshipID: relationshipID,
		status:         shared.StatusActive,
		createdAt:      now,
		updatedAt:      now,
		createdBy:      createdBy,
	}
}

// Reconstruct recreates an assignment from persistence.
func Reconstruct(
	id shared.ID,
	userID shared.ID,
	tenantID shared.ID,
	roleID shared.ID,
	relationshipID *shared.ID,
	status shared.Status,
	createdAt time.Time,
	updatedAt time.Time,
	createdBy shared.ID,
) *Assignment {
	return &Assignment{
		id:             id,
		userID:         userID,
		tenantID:       tenantID,
		roleID:         roleID,
		relationshipID: relationshipID,
		status:         status,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		createdBy:      createdBy,
	}
}

// ID returns the assignment ID.
func (a *Assignment) ID() shared.ID { return a.id }

// UserID returns the assigned user.
func (a *Assignment) UserID() shared.ID { return a.userID }

// TenantID returns the tenant the user acts in.
func (a *Assignment) TenantID() shared.ID { return a.tenantID }

// RoleID returns the assigned role.
func (a *Assignment) RoleID() shared.ID { return a.roleID }

// RelationshipID returns the scoping relationship, or nil if unscoped.
func (a *Assignment) RelationshipID() *shared.ID { return a.relationshipID }

// Status returns the lifecycle status.
func (a *Assignment) Status() shared.Status { return a.status }

// CreatedAt returns when the assignment was created.
func (a *Assignment) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns when the assignment was last updated.
func (a *Assignment) UpdatedAt() time.Time { return a.updatedAt }

// CreatedBy returns the administrator that created the assignment.
func (a *Assignment) CreatedBy() shared.ID { return a.createdBy }

// Scope returns the assignment's exact scope tuple.
func (a *Assignment) Scope() ScopeKey {
	return ScopeKey{UserID: a.userID, TenantID: a.tenantID, RelationshipID: a.relationshipID}
}

// SetRole changes the assigned role.
func (a *Assignment) SetRole(roleID shared.ID) {
	a.roleID = roleID
	a.updatedAt = time.Now().UTC()
}

// Deactivate transitions the assignment to inactive. The repository
// cascades deactivation to the overrides sharing its scope tuple.
func (a *Assignment) Deactivate() {
	a.status = shared.StatusInactive
	a.updatedAt = time.Now().UTC()
}

// Errors
var (
	ErrDuplicateScope = errors.New("an active assignment already exists for this user, tenant and relationship")
)

// Effect is the direction of a permission override.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// String returns the string form of the effect.
func (e Effect) String() string {
	return string(e)
}

// ParseEffect parses a string into an Effect.
func ParseEffect(s string) (Effect, error) {
	switch Effect(s) {
	case EffectAllow, EffectDeny:
		return Effect(s), nil
	default:
		return "", errors.New("effect must be ALLOW or DENY")
	}
}

// Override is a per-user permission exception within one scope tuple.
// ALLOW overrides are stored raw, with no dependency expansion: they are
// exceptions, not grants of a capability tree.
type Override struct {
	id         shared.ID
	scope      ScopeKey
	permission permission.Key
	effect     Effect
	reason     string
	status     shared.Status
	createdAt  time.Time
	createdBy  shared.ID
}

// NewOverride creates a new active override.
func NewOverride(scope ScopeKey, key permission.Key, effect Effect, reason string, createdBy shared.ID) *Override {
	return &Override{
		id:         shared.NewID(),
		scope:      scope,
		permission: key,
		effect:     effect,
		reason:     reason,
		status:     shared.StatusActive,
		createdAt:  time.Now().UTC(),
		createdBy:  createdBy,
	}
}

// ReconstructOverride recreates an override from persistence.
func ReconstructOverride(
	id shared.ID,
	scope ScopeKey,
	key permission.Key,
	effect Effect,
	reason string,
	status shared.Status,
	createdAt time.Time,
	createdBy shared.ID,
) *Override {
	return &Override{
		id:         id,
		scope:      scope,
		permission: key,
		effect:     effect,
		reason:     reason,
		status:     status,
		createdAt:  createdAt,
		createdBy:  createdBy,
	}
}

// ID returns the override ID.
func (o *Override) ID() shared.ID { return o.id }

// Scope returns the exact scope tuple the override belongs to.
func (o *Override) Scope() ScopeKey { return o.scope }

// Permission returns the affected permission key.
func (o *Override) Permission() permission.Key { return o.permission }

// Effect returns ALLOW or DENY.
func (o *Override) Effect() Effect { return o.effect }

// Reason returns the human-entered justification.
func (o *Override) Reason() string { return o.reason }

// Status returns the lifecycle status.
func (o *Override) Status() shared.Status { return o.status }

// CreatedAt returns when the override was created.
func (o *Override) CreatedAt() time.Time { return o.createdAt }

// CreatedBy returns the administrator that wrote the override.
func (o *Override) CreatedBy() shared.ID { return o.createdBy }

// IsAllow reports whether the override grants the permission.
func (o *Override) IsAllow() bool { return o.effect == EffectAllow }

// IsDeny reports whether the override suppresses the permission.
func (o *Override) IsDeny() bool { return o.effect == EffectDeny }

// MatchesScope reports whether the override applies to a resolution
// request for the given relationship: it applies when unscoped or scoped
// to exactly the requested relationship.
func (o *Override) MatchesScope(relationshipID *shared.ID) bool {
	if o.scope.RelationshipID == nil {
		return true
	}
	return relationshipID != nil && o.scope.RelationshipID.Equals(*relationshipID)
}
