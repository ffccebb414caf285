package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
)

func testRole(tenantID shared.ID, perms ...permission.Key) *role.Role {
	return role.New(tenantID, "Viewer", "", perms, nil)
}

func testInput(tenantID, userID shared.ID, relationshipID *shared.ID, r *role.Role) Input {
	var a *assignment.Assignment
	if r != nil {
		a = assignment.New(userID, tenantID, r.ID(), relationshipID, shared.NewID())
	}
	return Input{
		RelationshipID: relationshipID,
		Assignment:     a,
		Role:           r,
		Bundles:        map[shared.ID]*bundle.Bundle{},
	}
}

func TestResolve_NoAssignment(t *testing.T) {
	r := NewResolver()

	got := r.Resolve(Input{})

	assert.Equal(t, 0, got.Len())
}

func TestResolve_RolePermissionsOnly(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView, permission.DealsCreate))
	got := r.Resolve(in)

	assert.ElementsMatch(t, []permission.Key{permission.DealsView, permission.DealsCreate}, got.Keys())
}

func TestResolve_RoleBundleMerge(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView))
	in.RoleBundles = []*bundle.Bundle{
		bundle.New("Reporting", "", nil, []permission.Key{permission.ReportsView, permission.ReportsExport}),
	}
	got := r.Resolve(in)

	assert.True(t, got.Has(permission.ReportsExport))
	assert.True(t, got.Has(permission.DealsView))
}

func TestResolve_InactiveRoleBundleIgnored(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()

	b := bundle.New("Reporting", "", nil, []permission.Key{permission.ReportsView})
	b.Deactivate()

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView))
	in.RoleBundles = []*bundle.Bundle{b}
	got := r.Resolve(in)

	assert.False(t, got.Has(permission.ReportsView))
}

func TestResolve_UserBundleScopeMatching(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	relID := shared.NewID()
	otherRelID := shared.NewID()

	b := bundle.New("Partner tools", "", &tenantID, []permission.Key{permission.PartnersView})

	tests := []struct {
		name        string
		bundleScope *shared.ID
		requested   *shared.ID
		want        bool
	}{
		{"unscoped bundle, unscoped request", nil, nil, true},
		{"unscoped bundle, scoped request", nil, &relID, true},
		{"scoped bundle, matching request", &relID, &relID, true},
		{"scoped bundle, unscoped request", &relID, nil, false},
		{"scoped bundle, different relationship", &relID, &otherRelID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ua := bundle.NewUserAssignment(userID, tenantID, b.ID(), tt.bundleScope)

			in := testInput(tenantID, userID, tt.requested, testRole(tenantID, permission.DealsView))
			in.UserBundles = []*bundle.UserAssignment{ua}
			in.Bundles = map[shared.ID]*bundle.Bundle{b.ID(): b}

			got := r.Resolve(in)
			assert.Equal(t, tt.want, got.Has(permission.PartnersView))
		})
	}
}

// Mirrors the unscoped-override scenario: role Viewer = {deals:view},
// ALLOW reports:export in the unscoped tuple.
func TestResolve_AllowOverrideAdds(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID}

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView))
	in.Overrides = []*assignment.Override{
		assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectAllow, "quarterly audit", shared.NewID()),
	}
	got := r.Resolve(in)

	assert.ElementsMatch(t, []permission.Key{permission.DealsView, permission.ReportsExport}, got.Keys())
}

func TestResolve_DenyWinsOverEverySource(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID}

	roleBundle := bundle.New("Deals", "", nil, []permission.Key{permission.DealsView})
	userBundle := bundle.New("Extra", "", nil, []permission.Key{permission.DealsView})
	ua := bundle.NewUserAssignment(userID, tenantID, userBundle.ID(), nil)

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView))
	in.RoleBundles = []*bundle.Bundle{roleBundle}
	in.UserBundles = []*bundle.UserAssignment{ua}
	in.Bundles = map[shared.ID]*bundle.Bundle{userBundle.ID(): userBundle}
	in.Overrides = []*assignment.Override{
		// Storage order must not matter: DENY first, ALLOW after.
		assignment.NewOverride(scope, permission.DealsView, assignment.EffectDeny, "offboarding", shared.NewID()),
		assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectAllow, "audit", shared.NewID()),
	}
	got := r.Resolve(in)

	assert.False(t, got.Has(permission.DealsView))
	assert.Equal(t, []permission.Key{permission.ReportsExport}, got.Keys())
}

func TestResolve_DenySuppressesMatchingAllow(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID}

	in := testInput(tenantID, userID, nil, testRole(tenantID))
	in.Overrides = []*assignment.Override{
		assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectAllow, "a", shared.NewID()),
		assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectDeny, "b", shared.NewID()),
	}
	got := r.Resolve(in)

	assert.Equal(t, 0, got.Len())
}

func TestResolve_AllowOverrideIsNotExpanded(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID}

	in := testInput(tenantID, userID, nil, testRole(tenantID))
	in.Overrides = []*assignment.Override{
		assignment.NewOverride(scope, permission.DealsApprove, assignment.EffectAllow, "exception", shared.NewID()),
	}
	got := r.Resolve(in)

	// Raw exception: prerequisites of deals:approve are not pulled in.
	assert.Equal(t, []permission.Key{permission.DealsApprove}, got.Keys())
}

func TestResolve_InactiveOverrideIgnored(t *testing.T) {
	r := NewResolver()
	tenantID, userID := shared.NewID(), shared.NewID()
	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID}

	deny := assignment.NewOverride(scope, permission.DealsView, assignment.EffectDeny, "old", shared.NewID())
	inactive := assignment.ReconstructOverride(
		deny.ID(), scope, permission.DealsView, assignment.EffectDeny, "old",
		shared.StatusInactive, deny.CreatedAt(), deny.CreatedBy(),
	)

	in := testInput(tenantID, userID, nil, testRole(tenantID, permission.DealsView))
	in.Overrides = []*assignment.Override{inactive}
	got := r.Resolve(in)

	assert.True(t, got.Has(permission.DealsView))
}

func TestHasPermission(t *testing.T) {
	set := permission.NewSet(permission.DealsView)

	assert.True(t, HasPermission(set, permission.DealsView))
	assert.False(t, HasPermission(set, permission.DealsApprove))
}
