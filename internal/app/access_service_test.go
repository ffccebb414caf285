package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

type accessServiceFixture struct {
	svc            *AccessService
	roleRepo       *fakeRoleRepo
	bundleRepo     *fakeBundleRepo
	assignmentRepo *fakeAssignmentRepo
	tenantID       shared.ID
	userID         shared.ID
	viewerRole     *role.Role
}

func newAccessServiceFixture(t *testing.T) *accessServiceFixture {
	t.Helper()

	roleRepo := newFakeRoleRepo()
	bundleRepo := newFakeBundleRepo()
	assignmentRepo := newFakeAssignmentRepo(roleRepo)

	tenantID := shared.NewID()
	viewerRole := role.New(tenantID, "Viewer", "", []permission.Key{permission.DealsView}, nil)
	require.NoError(t, roleRepo.Create(context.Background(), viewerRole))

	svc := NewAccessService(assignmentRepo, roleRepo, bundleRepo, logger.NewNop())

	return &accessServiceFixture{
		svc:            svc,
		roleRepo:       roleRepo,
		bundleRepo:     bundleRepo,
		assignmentRepo: assignmentRepo,
		tenantID:       tenantID,
		userID:         shared.NewID(),
		viewerRole:     viewerRole,
	}
}

func (f *accessServiceFixture) assign(t *testing.T, roleID shared.ID, relationshipID *shared.ID, overrides ...*assignment.Override) *assignment.Assignment {
	t.Helper()
	a := assignment.New(f.userID, f.tenantID, roleID, relationshipID, shared.NewID())
	require.NoError(t, f.assignmentRepo.CreateWithOverrides(context.Background(), a, overrides))
	return a
}

func (f *accessServiceFixture) resolve(t *testing.T, relationshipID *shared.ID) permission.Set {
	t.Helper()
	input := ResolveInput{UserID: f.userID.String(), TenantID: f.tenantID.String()}
	if relationshipID != nil {
		s := relationshipID.String()
		input.RelationshipID = &s
	}
	set, err := f.svc.Resolve(context.Background(), input)
	require.NoError(t, err)
	return set
}

func TestAccessService_Resolve(t *testing.T) {
	t.Run("no assignment for the exact tuple resolves empty", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		f.assign(t, f.viewerRole.ID(), nil)

		rel := shared.NewID()
		set := f.resolve(t, &rel)
		assert.Zero(t, set.Len(), "scoped request must not fall back to the unscoped assignment")
	})

	t.Run("ALLOW override adds a raw permission", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		scope := assignment.ScopeKey{UserID: f.userID, TenantID: f.tenantID}
		f.assign(t, f.viewerRole.ID(), nil,
			assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectAllow, "", shared.NewID()))

		set := f.resolve(t, nil)
		assert.ElementsMatch(t, []string{"deals:view", "reports:export"}, set.Strings())
		assert.False(t, set.Has(permission.ReportsView),
			"override ALLOW is raw, prerequisites are not pulled in")
	})

	t.Run("DENY wins over every source", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		scope := assignment.ScopeKey{UserID: f.userID, TenantID: f.tenantID}
		f.assign(t, f.viewerRole.ID(), nil,
			assignment.NewOverride(scope, permission.ReportsExport, assignment.EffectAllow, "", shared.NewID()),
			assignment.NewOverride(scope, permission.DealsView, assignment.EffectDeny, "", shared.NewID()))

		set := f.resolve(t, nil)
		assert.Equal(t, []string{"reports:export"}, set.Strings())
	})

	t.Run("role bundles merge at resolution time", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		f.assign(t, f.viewerRole.ID(), nil)

		b := bundleForTenant(nil, permission.ReportsView, permission.ReportsExport)
		require.NoError(t, f.bundleRepo.Create(context.Background(), b))
		require.NoError(t, f.bundleRepo.AttachToRole(context.Background(), bundle.NewRoleAttachment(f.viewerRole.ID(), b.ID())))

		set := f.resolve(t, nil)
		assert.ElementsMatch(t, []string{"deals:view", "reports:view", "reports:export"}, set.Strings())

		// Editing the bundle changes the next resolution without touching
		// the role.
		b.SetPermissions([]permission.Key{permission.ReportsView})
		require.NoError(t, f.bundleRepo.Update(context.Background(), b))

		set = f.resolve(t, nil)
		assert.ElementsMatch(t, []string{"deals:view", "reports:view"}, set.Strings())
	})

	t.Run("user bundles respect relationship scope", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		rel := shared.NewID()
		f.assign(t, f.viewerRole.ID(), nil)
		f.assign(t, f.viewerRole.ID(), &rel)

		b := bundleForTenant(nil, permission.PartnersView)
		require.NoError(t, f.bundleRepo.Create(context.Background(), b))
		require.NoError(t, f.bundleRepo.AssignToUser(context.Background(),
			bundle.NewUserAssignment(f.userID, f.tenantID, b.ID(), &rel)))

		unscoped := f.resolve(t, nil)
		assert.False(t, unscoped.Has(permission.PartnersView),
			"relationship-scoped bundle must not apply to unscoped requests")

		scoped := f.resolve(t, &rel)
		assert.True(t, scoped.Has(permission.PartnersView))
	})

	t.Run("an unscoped user bundle applies to scoped requests", func(t *testing.T) {
		f := newAccessServiceFixture(t)
		rel := shared.NewID()
		f.assign(t, f.viewerRole.ID(), &rel)

		b := bundleForTenant(nil, permission.PartnersView)
		require.NoError(t, f.bundleRepo.Create(context.Background(), b))
		require.NoError(t, f.bundleRepo.AssignToUser(context.Background(),
			bundle.NewUserAssignment(f.userID, f.tenantID, b.ID(), nil)))

		scoped := f.resolve(t, &rel)
		assert.True(t, scoped.Has(permission.PartnersView))
	})
}

func TestAccessService_HasPermission(t *testing.T) {
	f := newAccessServiceFixture(t)
	f.assign(t, f.viewerRole.ID(), nil)

	input := ResolveInput{UserID: f.userID.String(), TenantID: f.tenantID.String()}

	ok, err := f.svc.HasPermission(context.Background(), input, "deals:view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasPermission(context.Background(), input, "deals:approve")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.HasPermission(context.Background(), input, "nonsense")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
