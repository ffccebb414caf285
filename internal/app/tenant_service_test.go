package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

type tenantServiceFixture struct {
	svc        *TenantService
	tenantRepo *fakeTenantRepo
	relRepo    *fakeRelationshipRepo
	auditRepo  *fakeAuditRepo
}

func newTenantServiceFixture(t *testing.T) *tenantServiceFixture {
	t.Helper()

	tenantRepo := newFakeTenantRepo()
	relRepo := newFakeRelationshipRepo()
	auditRepo := newFakeAuditRepo()
	log := logger.NewNop()

	svc := NewTenantService(tenantRepo, relRepo, log,
		WithTenantAuditService(NewAuditService(auditRepo, log)))

	return &tenantServiceFixture{
		svc:        svc,
		tenantRepo: tenantRepo,
		relRepo:    relRepo,
		auditRepo:  auditRepo,
	}
}

func TestTenantService_CreateTenant(t *testing.T) {
	t.Run("creates a merchant tenant and audits it", func(t *testing.T) {
		f := newTenantServiceFixture(t)

		created, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "Acme Merchants",
			Kind: "merchant",
		}, AuditContext{})

		require.NoError(t, err)
		assert.Equal(t, tenant.KindMerchant, created.Kind())
		assert.True(t, created.Status().IsActive())

		require.Len(t, f.auditRepo.entries, 1)
		assert.Equal(t, audit.ActionTenantCreated, f.auditRepo.entries[0].Action())
	})

	t.Run("a second platform owner is a conflict", func(t *testing.T) {
		f := newTenantServiceFixture(t)

		_, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "DealGrid Platform",
			Kind: "platform_owner",
		}, AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "Another Platform",
			Kind: "platform_owner",
		}, AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		f := newTenantServiceFixture(t)

		_, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "Acme",
			Kind: "wholesaler",
		}, AuditContext{})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestTenantService_DeactivateTenant(t *testing.T) {
	t.Run("platform owner cannot be deactivated", func(t *testing.T) {
		f := newTenantServiceFixture(t)

		owner, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "DealGrid Platform",
			Kind: "platform_owner",
		}, AuditContext{})
		require.NoError(t, err)

		err = f.svc.DeactivateTenant(context.Background(), owner.ID().String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("deactivates a regular tenant", func(t *testing.T) {
		f := newTenantServiceFixture(t)

		m, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{
			Name: "Acme Merchants",
			Kind: "merchant",
		}, AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.DeactivateTenant(context.Background(), m.ID().String(), AuditContext{}))

		stored, err := f.svc.GetTenant(context.Background(), m.ID().String())
		require.NoError(t, err)
		assert.False(t, stored.Status().IsActive())
	})
}

func TestTenantService_CreateRelationship(t *testing.T) {
	setup := func(t *testing.T) (*tenantServiceFixture, *tenant.Tenant, *tenant.Tenant) {
		f := newTenantServiceFixture(t)
		m, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{Name: "Acme Merchants", Kind: "merchant"}, AuditContext{})
		require.NoError(t, err)
		s, err := f.svc.CreateTenant(context.Background(), CreateTenantInput{Name: "Bolt Supply", Kind: "supplier"}, AuditContext{})
		require.NoError(t, err)
		return f, m, s
	}

	t.Run("links two active tenants", func(t *testing.T) {
		f, m, s := setup(t)

		rel, err := f.svc.CreateRelationship(context.Background(), CreateRelationshipInput{
			FromTenantID: s.ID().String(),
			ToTenantID:   m.ID().String(),
			Kind:         "supply",
		}, AuditContext{})

		require.NoError(t, err)
		assert.True(t, rel.Involves(m.ID()))
		assert.True(t, rel.Involves(s.ID()))
	})

	t.Run("self-link is rejected", func(t *testing.T) {
		f, m, _ := setup(t)

		_, err := f.svc.CreateRelationship(context.Background(), CreateRelationshipInput{
			FromTenantID: m.ID().String(),
			ToTenantID:   m.ID().String(),
			Kind:         "supply",
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("an inactive party is rejected", func(t *testing.T) {
		f, m, s := setup(t)
		require.NoError(t, f.svc.DeactivateTenant(context.Background(), s.ID().String(), AuditContext{}))

		_, err := f.svc.CreateRelationship(context.Background(), CreateRelationshipInput{
			FromTenantID: s.ID().String(),
			ToTenantID:   m.ID().String(),
			Kind:         "supply",
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("a missing party is not found", func(t *testing.T) {
		f, m, _ := setup(t)

		_, err := f.svc.CreateRelationship(context.Background(), CreateRelationshipInput{
			FromTenantID: shared.NewID().String(),
			ToTenantID:   m.ID().String(),
			Kind:         "supply",
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
