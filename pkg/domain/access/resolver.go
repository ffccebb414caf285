// Package access provides the pure permission resolution function: the
// read path that merges role permissions, role bundles, user bundles and
// per-user overrides into one effective permission set.
package access

import (
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// Resolver computes effective permission sets from already-loaded data.
// It performs no I/O and keeps no state, so it is safe to share and to
// call recursively (authority checks resolve the acting administrator
// through the same code path).
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Input carries everything the resolver needs for one request. The
// loading layer supplies the active assignment of the exact requested
// scope tuple (nil when none exists) and the unfiltered active bundles
// and overrides of the user in the tenant; the resolver applies the
// scope rules itself.
type Input struct {
	// RelationshipID is the requested scope, nil for unscoped.
	RelationshipID *shared.ID

	// Assignment is the single active assignment matching the exact
	// requested tuple, or nil.
	Assignment *assignment.Assignment

	// Role is the assignment's role; ignored when Assignment is nil.
	Role *role.Role

	// RoleBundles are the bundles actively attached to the role.
	RoleBundles []*bundle.Bundle

	// UserBundles are the user's active direct bundle assignments in the
	// tenant, with their bundles.
	UserBundles []*bundle.UserAssignment
	Bundles     map[shared.ID]*bundle.Bundle

	// Overrides are the user's active overrides in the tenant.
	Overrides []*assignment.Override
}

// Resolve merges the four permission sources into the effective set.
//
// Order is fixed: role permissions, then role-bundle and user-bundle
// permissions, then ALLOW overrides, then DENY overrides. DENY always
// wins regardless of the source or storage order of the permission it
// suppresses. ALLOW overrides are applied raw, without dependency
// expansion: overrides are exceptions, not capability grants.
//
// Without an assignment for the exact requested tuple the result is
// empty; a relationship-scoped assignment never answers an unscoped
// request and vice versa.
func (r *Resolver) Resolve(in Input) permission.Set {
	result := permission.NewSet()
	if in.Assignment == nil || !in.Assignment.Status().IsActive() {
		return result
	}

	if in.Role != nil && in.Role.Status().IsActive() {
		result.Union(in.Role.PermissionSet())
	}

	for _, b := range in.RoleBundles {
		if b.Status().IsActive() {
			result.Union(b.PermissionSet())
		}
	}

	for _, ua := range in.UserBundles {
		if !ua.Status.IsActive() || !ua.MatchesScope(in.RelationshipID) {
			continue
		}
		b := in.Bundles[ua.BundleID]
		if b != nil && b.Status().IsActive() {
			result.Union(b.PermissionSet())
		}
	}

	// ALLOW before DENY so a DENY suppresses the key no matter which
	// source contributed it.
	for _, o := range in.Overrides {
		if o.Status().IsActive() && o.IsAllow() && o.MatchesScope(in.RelationshipID) {
			result.Add(o.Permission())
		}
	}
	for _, o := range in.Overrides {
		if o.Status().IsActive() && o.IsDeny() && o.MatchesScope(in.RelationshipID) {
			result.Remove(o.Permission())
		}
	}

	return result
}

// HasPermission is the membership convenience for feature collaborators
// gating actions on a resolved set.
func HasPermission(set permission.Set, key permission.Key) bool {
	return set.Has(key)
}
