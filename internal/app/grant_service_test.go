package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

type grantServiceFixture struct {
	svc        *GrantService
	tenantRepo *fakeTenantRepo
	roleRepo   *fakeRoleRepo
	grantRepo  *fakeGrantRepo
	merchant   *tenant.Tenant
	owner      *tenant.Tenant
	adminID    shared.ID
}

func newGrantServiceFixture(t *testing.T) *grantServiceFixture {
	t.Helper()

	tenantRepo := newFakeTenantRepo()
	roleRepo := newFakeRoleRepo()
	grantRepo := newFakeGrantRepo(roleRepo)

	merchant := tenant.New("Acme Merchants", tenant.KindMerchant)
	owner := tenant.New("DealGrid Platform", tenant.KindPlatformOwner)
	require.NoError(t, tenantRepo.Create(context.Background(), merchant))
	require.NoError(t, tenantRepo.Create(context.Background(), owner))

	svc := NewGrantService(grantRepo, tenantRepo, permission.MustNewRegistry(), logger.NewNop())

	return &grantServiceFixture{
		svc:        svc,
		tenantRepo: tenantRepo,
		roleRepo:   roleRepo,
		grantRepo:  grantRepo,
		merchant:   merchant,
		owner:      owner,
		adminID:    shared.NewID(),
	}
}

func (f *grantServiceFixture) grant(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		_, err := f.svc.Grant(context.Background(), GrantInput{
			TenantID:   f.merchant.ID().String(),
			Permission: key,
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)
	}
}

func TestGrantService_Grant(t *testing.T) {
	t.Run("grants a permission", func(t *testing.T) {
		f := newGrantServiceFixture(t)

		g, err := f.svc.Grant(context.Background(), GrantInput{
			TenantID:   f.merchant.ID().String(),
			Permission: "deals:view",
		}, f.adminID.String(), AuditContext{})

		require.NoError(t, err)
		assert.Equal(t, permission.DealsView, g.Permission())

		set, err := f.svc.GrantedSet(context.Background(), f.merchant.ID())
		require.NoError(t, err)
		assert.True(t, set.Has(permission.DealsView))
	})

	t.Run("duplicate grant is a conflict", func(t *testing.T) {
		f := newGrantServiceFixture(t)
		f.grant(t, "deals:view")

		_, err := f.svc.Grant(context.Background(), GrantInput{
			TenantID:   f.merchant.ID().String(),
			Permission: "deals:view",
		}, f.adminID.String(), AuditContext{})

		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("unknown permission is rejected", func(t *testing.T) {
		f := newGrantServiceFixture(t)

		_, err := f.svc.Grant(context.Background(), GrantInput{
			TenantID:   f.merchant.ID().String(),
			Permission: "deals:fabricate",
		}, f.adminID.String(), AuditContext{})

		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("platform owner grants are immutable", func(t *testing.T) {
		f := newGrantServiceFixture(t)

		_, err := f.svc.Grant(context.Background(), GrantInput{
			TenantID:   f.owner.ID().String(),
			Permission: "deals:view",
		}, f.adminID.String(), AuditContext{})

		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})
}

func TestGrantService_Revoke(t *testing.T) {
	t.Run("revoke strips the permission from the tenant's roles", func(t *testing.T) {
		f := newGrantServiceFixture(t)
		f.grant(t, "deals:view", "deals:create")

		buyer := role.New(f.merchant.ID(), "Buyer", "", []permission.Key{permission.DealsView, permission.DealsCreate}, nil)
		require.NoError(t, f.roleRepo.Create(context.Background(), buyer))

		err := f.svc.Revoke(context.Background(), f.merchant.ID().String(), "deals:create", AuditContext{})
		require.NoError(t, err)

		set, err := f.svc.GrantedSet(context.Background(), f.merchant.ID())
		require.NoError(t, err)
		assert.False(t, set.Has(permission.DealsCreate))

		stored, err := f.roleRepo.GetByID(context.Background(), buyer.ID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []permission.Key{permission.DealsView}, stored.Permissions())
	})

	t.Run("revoking an absent grant is not found and has no side effects", func(t *testing.T) {
		f := newGrantServiceFixture(t)
		f.grant(t, "deals:view")

		buyer := role.New(f.merchant.ID(), "Buyer", "", []permission.Key{permission.DealsView}, nil)
		require.NoError(t, f.roleRepo.Create(context.Background(), buyer))

		err := f.svc.Revoke(context.Background(), f.merchant.ID().String(), "deals:create", AuditContext{})
		assert.ErrorIs(t, err, shared.ErrNotFound)

		stored, err := f.roleRepo.GetByID(context.Background(), buyer.ID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []permission.Key{permission.DealsView}, stored.Permissions())
	})

	t.Run("platform owner revoke is rejected", func(t *testing.T) {
		f := newGrantServiceFixture(t)

		err := f.svc.Revoke(context.Background(), f.owner.ID().String(), "deals:view", AuditContext{})
		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})
}

func TestGrantService_ReplaceAll(t *testing.T) {
	t.Run("diffs additions and removals with the cascade", func(t *testing.T) {
		f := newGrantServiceFixture(t)
		f.grant(t, "deals:view", "deals:create")

		buyer := role.New(f.merchant.ID(), "Buyer", "", []permission.Key{permission.DealsView, permission.DealsCreate}, nil)
		require.NoError(t, f.roleRepo.Create(context.Background(), buyer))

		err := f.svc.ReplaceAll(context.Background(), ReplaceGrantsInput{
			TenantID:    f.merchant.ID().String(),
			Permissions: []string{"deals:view", "reports:view"},
		}, f.adminID.String(), AuditContext{})
		require.NoError(t, err)

		set, err := f.svc.GrantedSet(context.Background(), f.merchant.ID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"deals:view", "reports:view"}, set.Strings())

		stored, err := f.roleRepo.GetByID(context.Background(), buyer.ID())
		require.NoError(t, err)
		assert.ElementsMatch(t, []permission.Key{permission.DealsView}, stored.Permissions())
	})
}

func TestGrantService_GrantedSet(t *testing.T) {
	t.Run("platform owner implicitly holds every enabled permission", func(t *testing.T) {
		f := newGrantServiceFixture(t)

		set, err := f.svc.GrantedSet(context.Background(), f.owner.ID())
		require.NoError(t, err)

		registry := permission.MustNewRegistry()
		for _, key := range permission.AllKeys() {
			if registry.IsEnabled(key) {
				assert.True(t, set.Has(key), "expected platform owner to hold %s", key)
			}
		}
	})

	t.Run("regular tenant holds only explicit grants", func(t *testing.T) {
		f := newGrantServiceFixture(t)
		f.grant(t, "deals:view")

		set, err := f.svc.GrantedSet(context.Background(), f.merchant.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{"deals:view"}, set.Strings())
	})
}
