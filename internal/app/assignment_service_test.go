package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

type assignmentServiceFixture struct {
	svc            *AssignmentService
	accessSvc      *AccessService
	roleRepo       *fakeRoleRepo
	bundleRepo     *fakeBundleRepo
	assignmentRepo *fakeAssignmentRepo
	relRepo        *fakeRelationshipRepo
	merchant       *tenant.Tenant
	supplier       *tenant.Tenant
	viewerRole     *role.Role
	adminID        shared.ID
	userID         shared.ID
}

func newAssignmentServiceFixture(t *testing.T) *assignmentServiceFixture {
	t.Helper()

	roleRepo := newFakeRoleRepo()
	bundleRepo := newFakeBundleRepo()
	assignmentRepo := newFakeAssignmentRepo(roleRepo)
	relRepo := newFakeRelationshipRepo()

	merchant := tenant.New("Acme Merchants", tenant.KindMerchant)
	supplier := tenant.New("Bolt Supply", tenant.KindSupplier)

	viewerRole := role.New(merchant.ID(), "Viewer", "", []permission.Key{permission.DealsView}, nil)
	require.NoError(t, roleRepo.Create(context.Background(), viewerRole))

	log := logger.NewNop()
	accessSvc := NewAccessService(assignmentRepo, roleRepo, bundleRepo, log)
	svc := NewAssignmentService(assignmentRepo, roleRepo, relRepo, accessSvc, log)

	return &assignmentServiceFixture{
		svc:            svc,
		accessSvc:      accessSvc,
		roleRepo:       roleRepo,
		bundleRepo:     bundleRepo,
		assignmentRepo: assignmentRepo,
		relRepo:        relRepo,
		merchant:       merchant,
		supplier:       supplier,
		viewerRole:     viewerRole,
		adminID:        shared.NewID(),
		userID:         shared.NewID(),
	}
}

// giveAdmin gives the acting administrator an unscoped assignment with
// the given permissions so authority checks resolve a real set.
func (f *assignmentServiceFixture) giveAdmin(t *testing.T, keys ...permission.Key) {
	t.Helper()
	r := role.New(f.merchant.ID(), "Admin", "", keys, nil)
	require.NoError(t, f.roleRepo.Create(context.Background(), r))
	a := assignment.New(f.adminID, f.merchant.ID(), r.ID(), nil, f.adminID)
	require.NoError(t, f.assignmentRepo.CreateWithOverrides(context.Background(), a, nil))
}

func (f *assignmentServiceFixture) relationship(t *testing.T) *tenant.Relationship {
	t.Helper()
	rel, err := tenant.NewRelationship(f.merchant.ID(), f.supplier.ID(), tenant.RelationshipSupply)
	require.NoError(t, err)
	require.NoError(t, f.relRepo.Create(context.Background(), rel))
	return rel
}

func TestAssignmentService_CreateAssignment(t *testing.T) {
	t.Run("creates an unscoped assignment", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)

		a, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
		assert.Nil(t, a.RelationshipID())
		assert.True(t, a.Status().IsActive())
	})

	t.Run("duplicate active scope tuple is a conflict", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)

		input := CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
		}
		_, err := f.svc.CreateAssignment(context.Background(), input, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.CreateAssignment(context.Background(), input, f.adminID.String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("scoped and unscoped tuples are distinct", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		rel := f.relationship(t)
		relID := rel.ID().String()

		_, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:         f.userID.String(),
			TenantID:       f.merchant.ID().String(),
			RoleID:         f.viewerRole.ID().String(),
			RelationshipID: &relID,
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)
	})

	t.Run("role of another tenant is rejected", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		foreign := role.New(f.supplier.ID(), "Viewer", "", []permission.Key{permission.DealsView}, nil)
		require.NoError(t, f.roleRepo.Create(context.Background(), foreign))

		_, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   foreign.ID().String(),
		}, f.adminID.String(), AuditContext{})

		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("relationship must involve the tenant", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		broker := tenant.New("Third Broker", tenant.KindBroker)
		rel, err := tenant.NewRelationship(f.supplier.ID(), broker.ID(), tenant.RelationshipBrokerage)
		require.NoError(t, err)
		require.NoError(t, f.relRepo.Create(context.Background(), rel))
		relID := rel.ID().String()

		_, err = f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:         f.userID.String(),
			TenantID:       f.merchant.ID().String(),
			RoleID:         f.viewerRole.ID().String(),
			RelationshipID: &relID,
		}, f.adminID.String(), AuditContext{})

		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("the whole candidate is authorized, overrides included", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		f.giveAdmin(t, permission.DealsView)

		_, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
			Overrides: []OverrideInput{
				{Permission: "reports:export", Effect: "ALLOW"},
			},
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})

		require.ErrorIs(t, err, shared.ErrForbidden)
		var ferr *access.ForbiddenError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, []permission.Key{permission.ReportsExport}, ferr.Missing)

		assignments, lerr := f.assignmentRepo.ListForUser(context.Background(), f.userID, f.merchant.ID())
		require.NoError(t, lerr)
		assert.Empty(t, assignments, "nothing persisted on rejection")
	})

	t.Run("admin holding the candidate succeeds", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		f.giveAdmin(t, permission.DealsView, permission.ReportsView, permission.ReportsExport)

		a, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
			Overrides: []OverrideInput{
				{Permission: "reports:export", Effect: "ALLOW", Reason: "quarterly audit"},
			},
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
		overrides, err := f.assignmentRepo.ListOverridesByScope(context.Background(), a.Scope())
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.Equal(t, permission.ReportsExport, overrides[0].Permission())
	})

	t.Run("DENY overrides need no authority", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		f.giveAdmin(t, permission.DealsView)

		_, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
			Overrides: []OverrideInput{
				{Permission: "deals:view", Effect: "DENY"},
			},
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
	})
}

func TestAssignmentService_UpdateAssignment(t *testing.T) {
	t.Run("override replacement discards the prior scope set wholesale", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)

		a, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
			Overrides: []OverrideInput{
				{Permission: "reports:export", Effect: "ALLOW"},
				{Permission: "deals:comment", Effect: "ALLOW"},
			},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		newOverrides := []OverrideInput{{Permission: "deals:close", Effect: "DENY"}}
		_, err = f.svc.UpdateAssignment(context.Background(), a.ID().String(), UpdateAssignmentInput{
			Overrides: &newOverrides,
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		active, err := f.assignmentRepo.ListOverridesByScope(context.Background(), a.Scope())
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, permission.DealsClose, active[0].Permission())
		assert.True(t, active[0].IsDeny())
	})

	t.Run("authority check runs against the new candidate", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		f.giveAdmin(t, permission.DealsView)

		power := role.New(f.merchant.ID(), "Power", "",
			[]permission.Key{permission.DealsView, permission.DealsReview, permission.DealsApprove}, nil)
		require.NoError(t, f.roleRepo.Create(context.Background(), power))

		a, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:      f.userID.String(),
			TenantID:    f.merchant.ID().String(),
			RoleID:      f.viewerRole.ID().String(),
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		powerID := power.ID().String()
		_, err = f.svc.UpdateAssignment(context.Background(), a.ID().String(), UpdateAssignmentInput{
			RoleID:      &powerID,
			ActingAdmin: f.adminID.String(),
		}, f.adminID.String(), AuditContext{})

		require.ErrorIs(t, err, shared.ErrForbidden)
		var ferr *access.ForbiddenError
		require.ErrorAs(t, err, &ferr)
		assert.ElementsMatch(t,
			[]permission.Key{permission.DealsReview, permission.DealsApprove},
			ferr.Missing)

		stored, err := f.assignmentRepo.GetByID(context.Background(), a.ID())
		require.NoError(t, err)
		assert.True(t, stored.RoleID().Equals(f.viewerRole.ID()), "role unchanged on rejection")
	})
}

func TestAssignmentService_RemoveAssignment(t *testing.T) {
	t.Run("cascade deactivates exactly the overrides of the same tuple", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)
		rel := f.relationship(t)
		relID := rel.ID().String()

		unscoped, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
			Overrides: []OverrideInput{
				{Permission: "reports:export", Effect: "ALLOW"},
			},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		scoped, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:         f.userID.String(),
			TenantID:       f.merchant.ID().String(),
			RoleID:         f.viewerRole.ID().String(),
			RelationshipID: &relID,
			Overrides: []OverrideInput{
				{Permission: "deals:comment", Effect: "ALLOW"},
			},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.RemoveAssignment(context.Background(), unscoped.ID().String(), AuditContext{}))

		gone, err := f.assignmentRepo.ListOverridesByScope(context.Background(), unscoped.Scope())
		require.NoError(t, err)
		assert.Empty(t, gone, "unscoped overrides deactivated")

		kept, err := f.assignmentRepo.ListOverridesByScope(context.Background(), scoped.Scope())
		require.NoError(t, err)
		assert.Len(t, kept, 1, "scoped overrides untouched")

		stored, err := f.assignmentRepo.GetByID(context.Background(), scoped.ID())
		require.NoError(t, err)
		assert.True(t, stored.Status().IsActive(), "scoped assignment untouched")
	})

	t.Run("removing twice is not found", func(t *testing.T) {
		f := newAssignmentServiceFixture(t)

		a, err := f.svc.CreateAssignment(context.Background(), CreateAssignmentInput{
			UserID:   f.userID.String(),
			TenantID: f.merchant.ID().String(),
			RoleID:   f.viewerRole.ID().String(),
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.RemoveAssignment(context.Background(), a.ID().String(), AuditContext{}))
		err = f.svc.RemoveAssignment(context.Background(), a.ID().String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
