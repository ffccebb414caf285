package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

type roleServiceFixture struct {
	svc            *RoleService
	grantSvc       *GrantService
	roleRepo       *fakeRoleRepo
	bundleRepo     *fakeBundleRepo
	assignmentRepo *fakeAssignmentRepo
	merchant       *tenant.Tenant
	adminID        shared.ID
}

func newRoleServiceFixture(t *testing.T) *roleServiceFixture {
	t.Helper()

	tenantRepo := newFakeTenantRepo()
	roleRepo := newFakeRoleRepo()
	grantRepo := newFakeGrantRepo(roleRepo)
	bundleRepo := newFakeBundleRepo()
	assignmentRepo := newFakeAssignmentRepo(roleRepo)

	merchant := tenant.New("Acme Merchants", tenant.KindMerchant)
	require.NoError(t, tenantRepo.Create(context.Background(), merchant))

	registry := permission.MustNewRegistry()
	log := logger.NewNop()

	grantSvc := NewGrantService(grantRepo, tenantRepo, registry, log)
	accessSvc := NewAccessService(assignmentRepo, roleRepo, bundleRepo, log)
	svc := NewRoleService(roleRepo, bundleRepo, grantSvc, accessSvc, registry, log)

	return &roleServiceFixture{
		svc:            svc,
		grantSvc:       grantSvc,
		roleRepo:       roleRepo,
		bundleRepo:     bundleRepo,
		assignmentRepo: assignmentRepo,
		merchant:       merchant,
		adminID:        shared.NewID(),
	}
}

func (f *roleServiceFixture) grant(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		_, err := f.grantSvc.Grant(context.Background(), GrantInput{
			TenantID:   f.merchant.ID().String(),
			Permission: key,
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)
	}
}

// giveAdminRole assigns the acting administrator a role holding the
// given permissions, so authority checks resolve a real set.
func (f *roleServiceFixture) giveAdminRole(t *testing.T, keys ...permission.Key) {
	t.Helper()
	r := role.New(f.merchant.ID(), "Admin", "", keys, nil)
	require.NoError(t, f.roleRepo.Create(context.Background(), r))
	a := assignment.New(f.adminID, f.merchant.ID(), r.ID(), nil, f.adminID)
	require.NoError(t, f.assignmentRepo.CreateWithOverrides(context.Background(), a, nil))
}

func TestRoleService_CreateRole(t *testing.T) {
	t.Run("dependency expansion auto-includes prerequisites", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view", "deals:create")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Buyer",
			Permissions: []string{"deals:create"},
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]permission.Key{permission.DealsView, permission.DealsCreate},
			r.Permissions())
	})

	t.Run("duplicate active name is a conflict", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		input := CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Buyer",
			Permissions: []string{"deals:view"},
		}
		_, err := f.svc.CreateRole(context.Background(), input, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.CreateRole(context.Background(), input, f.adminID.String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("expansion exceeding the grant set is a consistency break", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		_, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Buyer",
			Permissions: []string{"deals:create"},
		}, f.adminID.String(), AuditContext{})

		require.ErrorIs(t, err, shared.ErrConsistency)
		var cerr *grant.ConsistencyError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, []permission.Key{permission.DealsCreate}, cerr.Missing)
		assert.Empty(t, f.roleRepo.roles, "nothing may be persisted on rejection")
	})

	t.Run("acting admin lacking part of the expansion is forbidden with the exact subset", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view", "deals:create", "deals:review", "deals:approve")
		f.giveAdminRole(t, permission.DealsView, permission.DealsCreate)

		_, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Power",
			Permissions: []string{"deals:approve"},
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})

		require.ErrorIs(t, err, shared.ErrForbidden)
		var ferr *access.ForbiddenError
		require.ErrorAs(t, err, &ferr)
		assert.ElementsMatch(t,
			[]permission.Key{permission.DealsReview, permission.DealsApprove},
			ferr.Missing)

		_, lookupErr := f.roleRepo.GetActiveByName(context.Background(), f.merchant.ID(), "Power")
		assert.ErrorIs(t, lookupErr, shared.ErrNotFound, "no role persisted on rejection")
	})

	t.Run("no authority check without an acting admin", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view", "deals:review", "deals:approve")

		_, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Power",
			Permissions: []string{"deals:approve"},
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
	})
}

func TestRoleService_UpdateRole(t *testing.T) {
	t.Run("permission update replaces the stored set wholesale", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view", "deals:create", "reports:view", "reports:export")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Buyer",
			Permissions: []string{"deals:create"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		updated, err := f.svc.UpdateRole(context.Background(), r.ID().String(), UpdateRoleInput{
			Permissions: []string{"reports:export"},
		}, AuditContext{})
		require.NoError(t, err)

		assert.ElementsMatch(t,
			[]permission.Key{permission.ReportsView, permission.ReportsExport},
			updated.Permissions())
	})

	t.Run("renaming onto an existing active name is a conflict", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		_, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Buyer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		other, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		name := "Buyer"
		_, err = f.svc.UpdateRole(context.Background(), other.ID().String(), UpdateRoleInput{Name: &name}, AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("grant containment applies to updates", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.UpdateRole(context.Background(), r.ID().String(), UpdateRoleInput{
			Permissions: []string{"deals:create"},
		}, AuditContext{})
		require.ErrorIs(t, err, shared.ErrConsistency)

		stored, err := f.roleRepo.GetByID(context.Background(), r.ID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []permission.Key{permission.DealsView}, stored.Permissions())
	})
}

func TestRoleService_DeleteRole(t *testing.T) {
	t.Run("rejects deletion while active assignments exist", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		f.roleRepo.activeAssignments[r.ID()] = 2

		err = f.svc.DeleteRole(context.Background(), r.ID().String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("soft-deactivates an unreferenced role", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteRole(context.Background(), r.ID().String(), AuditContext{}))

		stored, err := f.roleRepo.GetByID(context.Background(), r.ID())
		require.NoError(t, err)
		assert.False(t, stored.Status().IsActive())
	})
}

func TestRoleService_Bundles(t *testing.T) {
	t.Run("attach rejects a bundle scoped to another tenant", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		otherTenant := shared.NewID()
		b := bundleForTenant(&otherTenant, permission.ReportsView)
		require.NoError(t, f.bundleRepo.Create(context.Background(), b))

		err = f.svc.AttachBundle(context.Background(), r.ID().String(), b.ID().String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("double attach is a conflict", func(t *testing.T) {
		f := newRoleServiceFixture(t)
		f.grant(t, "deals:view")

		r, err := f.svc.CreateRole(context.Background(), CreateRoleInput{
			TenantID:    f.merchant.ID().String(),
			Name:        "Viewer",
			Permissions: []string{"deals:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		b := bundleForTenant(nil, permission.ReportsView)
		require.NoError(t, f.bundleRepo.Create(context.Background(), b))

		require.NoError(t, f.svc.AttachBundle(context.Background(), r.ID().String(), b.ID().String(), AuditContext{}))
		err = f.svc.AttachBundle(context.Background(), r.ID().String(), b.ID().String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})
}
