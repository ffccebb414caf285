package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

type bundleServiceFixture struct {
	svc        *BundleService
	bundleRepo *fakeBundleRepo
	relRepo    *fakeRelationshipRepo
	merchant   shared.ID
	supplier   shared.ID
}

func newBundleServiceFixture(t *testing.T) *bundleServiceFixture {
	t.Helper()

	bundleRepo := newFakeBundleRepo()
	relRepo := newFakeRelationshipRepo()
	svc := NewBundleService(bundleRepo, relRepo, permission.MustNewRegistry(), logger.NewNop())

	return &bundleServiceFixture{
		svc:        svc,
		bundleRepo: bundleRepo,
		relRepo:    relRepo,
		merchant:   shared.NewID(),
		supplier:   shared.NewID(),
	}
}

func TestBundleService_CreateBundle(t *testing.T) {
	t.Run("creates a global bundle with raw contents", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Reporting Pack",
			Permissions: []string{"reports:export"},
		}, AuditContext{})

		require.NoError(t, err)
		assert.True(t, b.IsGlobal())
		assert.Equal(t, []permission.Key{permission.ReportsExport}, b.Permissions(),
			"bundle contents are stored raw, without dependency expansion")
	})

	t.Run("creates a tenant-scoped bundle", func(t *testing.T) {
		f := newBundleServiceFixture(t)
		scope := f.merchant.String()

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:          "Merchant Pack",
			ScopeTenantID: &scope,
			Permissions:   []string{"deals:view"},
		}, AuditContext{})

		require.NoError(t, err)
		assert.False(t, b.IsGlobal())
		assert.True(t, b.UsableBy(f.merchant))
		assert.False(t, b.UsableBy(f.supplier))
	})

	t.Run("unknown permissions are rejected", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		_, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Bad Pack",
			Permissions: []string{"deals:invent"},
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestBundleService_DeleteBundle(t *testing.T) {
	t.Run("hard-deletes an unreferenced bundle", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Ephemeral",
			Permissions: []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteBundle(context.Background(), b.ID().String(), AuditContext{}))

		_, err = f.svc.GetBundle(context.Background(), b.ID().String())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("soft-deactivates a referenced bundle", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Referenced",
			Permissions: []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		roleID := shared.NewID()
		require.NoError(t, f.bundleRepo.AttachToRole(context.Background(), bundle.NewRoleAttachment(roleID, b.ID())))

		require.NoError(t, f.svc.DeleteBundle(context.Background(), b.ID().String(), AuditContext{}))

		stored, err := f.svc.GetBundle(context.Background(), b.ID().String())
		require.NoError(t, err)
		assert.False(t, stored.Status().IsActive())
	})
}

func TestBundleService_AssignToUser(t *testing.T) {
	t.Run("rejects a bundle scoped to another tenant", func(t *testing.T) {
		f := newBundleServiceFixture(t)
		scope := f.supplier.String()

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:          "Supplier Pack",
			ScopeTenantID: &scope,
			Permissions:   []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.AssignToUser(context.Background(), AssignBundleInput{
			UserID:   shared.NewID().String(),
			TenantID: f.merchant.String(),
			BundleID: b.ID().String(),
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("relationship scope must involve the tenant", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Global Pack",
			Permissions: []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		other := shared.NewID()
		rel, err := tenant.NewRelationship(f.supplier, other, tenant.RelationshipSupply)
		require.NoError(t, err)
		require.NoError(t, f.relRepo.Create(context.Background(), rel))
		relID := rel.ID().String()

		_, err = f.svc.AssignToUser(context.Background(), AssignBundleInput{
			UserID:         shared.NewID().String(),
			TenantID:       f.merchant.String(),
			BundleID:       b.ID().String(),
			RelationshipID: &relID,
		}, AuditContext{})

		assert.ErrorIs(t, err, shared.ErrBusinessRule)
	})

	t.Run("duplicate assignment in the same scope is a conflict", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Global Pack",
			Permissions: []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		input := AssignBundleInput{
			UserID:   shared.NewID().String(),
			TenantID: f.merchant.String(),
			BundleID: b.ID().String(),
		}
		_, err = f.svc.AssignToUser(context.Background(), input, AuditContext{})
		require.NoError(t, err)

		_, err = f.svc.AssignToUser(context.Background(), input, AuditContext{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("unassign deactivates and is idempotent in failure", func(t *testing.T) {
		f := newBundleServiceFixture(t)

		b, err := f.svc.CreateBundle(context.Background(), CreateBundleInput{
			Name:        "Global Pack",
			Permissions: []string{"deals:view"},
		}, AuditContext{})
		require.NoError(t, err)

		ua, err := f.svc.AssignToUser(context.Background(), AssignBundleInput{
			UserID:   shared.NewID().String(),
			TenantID: f.merchant.String(),
			BundleID: b.ID().String(),
		}, AuditContext{})
		require.NoError(t, err)

		require.NoError(t, f.svc.UnassignFromUser(context.Background(), ua.ID.String(), AuditContext{}))
		err = f.svc.UnassignFromUser(context.Background(), ua.ID.String(), AuditContext{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
