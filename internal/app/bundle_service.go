package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

// BundleService handles permission bundle operations. Bundle contents
// are stored raw and merged at resolution time, so every bundle edit is
// immediately visible to every role and user referencing it.
type BundleService struct {
	bundleRepo       bundle.Repository
	relationshipRepo tenant.RelationshipRepository
	registry         *permission.Registry
	auditService     *AuditService
	cacheSvc         *PermissionCacheService
	logger           *logger.Logger
}

// NewBundleService creates a new BundleService.
func NewBundleService(
	bundleRepo bundle.Repository,
	relationshipRepo tenant.RelationshipRepository,
	registry *permission.Registry,
	log *logger.Logger,
	opts ...BundleServiceOption,
) *BundleService {
	s := &BundleService{
		bundleRepo:       bundleRepo,
		relationshipRepo: relationshipRepo,
		registry:         registry,
		logger:           log.With("service", "bundle"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BundleServiceOption is a functional option for BundleService.
type BundleServiceOption func(*BundleService)

// WithBundleAuditService sets the audit service for BundleService.
func WithBundleAuditService(auditService *AuditService) BundleServiceOption {
	return func(s *BundleService) {
		s.auditService = auditService
	}
}

// WithBundleCacheService sets the permission cache for invalidation.
func WithBundleCacheService(cacheSvc *PermissionCacheService) BundleServiceOption {
	return func(s *BundleService) {
		s.cacheSvc = cacheSvc
	}
}

func (s *BundleService) logAudit(ctx context.Context, actx AuditContext, event AuditEvent) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogEvent(ctx, actx, event); err != nil {
		s.logger.Error("failed to log audit event", "error", err, "action", event.Action)
	}
}

// invalidateFor drops cached resolutions affected by a bundle change. A
// global bundle can be referenced from any tenant, so its edits flush
// everything.
func (s *BundleService) invalidateFor(ctx context.Context, b *bundle.Bundle, trigger string) {
	if b.IsGlobal() {
		s.cacheSvc.InvalidateAll(ctx, trigger)
		return
	}
	s.cacheSvc.InvalidateTenant(ctx, *b.ScopeTenantID(), trigger)
}

// CreateBundleInput represents the input for creating a bundle.
type CreateBundleInput struct {
	Name          string   `json:"name" validate:"required,min=2,max=100,entity_name"`
	Description   string   `json:"description" validate:"max=500"`
	ScopeTenantID *string  `json:"scope_tenant_id" validate:"omitempty,uuid"`
	Permissions   []string `json:"permissions" validate:"dive,permission_key"`
}

// CreateBundle creates a bundle, global when no scope tenant is given.
// Contents are stored exactly as supplied, without dependency expansion.
func (s *BundleService) CreateBundle(ctx context.Context, input CreateBundleInput, actx AuditContext) (*bundle.Bundle, error) {
	s.logger.Info("creating bundle", "name", input.Name)

	var scopeTenantID *shared.ID
	if input.ScopeTenantID != nil {
		id, err := shared.IDFromString(*input.ScopeTenantID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid scope tenant id format", shared.ErrValidation)
		}
		scopeTenantID = &id
	}

	keys, unknown := permission.FromStrings(input.Permissions)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
	}
	if invalid := s.registry.ValidateKeys(keys); len(invalid) > 0 {
		return nil, fmt.Errorf("%w: disabled permissions: %v", shared.ErrValidation, permission.ToStrings(invalid))
	}

	b := bundle.New(input.Name, input.Description, scopeTenantID, keys)
	if err := s.bundleRepo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info("bundle created", "id", b.ID().String(), "name", b.Name(), "global", b.IsGlobal())

	if scopeTenantID != nil {
		actx.TenantID = scopeTenantID.String()
	}
	event := NewSuccessEvent(audit.ActionBundleCreated, audit.ResourceBundle, b.ID().String()).
		WithMessage(fmt.Sprintf("Bundle %q created", b.Name())).
		WithMetadata("global", b.IsGlobal())
	s.logAudit(ctx, actx, event)

	return b, nil
}

// GetBundle retrieves a bundle by ID.
func (s *BundleService) GetBundle(ctx context.Context, bundleID string) (*bundle.Bundle, error) {
	id, err := shared.IDFromString(bundleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	return s.bundleRepo.GetByID(ctx, id)
}

// ListBundles returns the bundles usable by a tenant: global ones plus
// the tenant's own.
func (s *BundleService) ListBundles(ctx context.Context, tenantID string, activeOnly bool) ([]*bundle.Bundle, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.bundleRepo.ListForTenant(ctx, tid, activeOnly)
}

// UpdateBundleInput represents the input for updating a bundle.
type UpdateBundleInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100,entity_name"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,permission_key"`
}

// UpdateBundle updates a bundle in place. Everyone referencing the
// bundle sees the new contents on their next resolution.
func (s *BundleService) UpdateBundle(ctx context.Context, bundleID string, input UpdateBundleInput, actx AuditContext) (*bundle.Bundle, error) {
	id, err := shared.IDFromString(bundleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	b, err := s.bundleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Status().IsActive() {
		return nil, fmt.Errorf("%w: bundle %s is inactive", shared.ErrBusinessRule, bundleID)
	}

	if input.Name != nil {
		b.Rename(*input.Name)
	}
	if input.Description != nil {
		b.Describe(*input.Description)
	}
	if input.Permissions != nil {
		keys, unknown := permission.FromStrings(input.Permissions)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
		}
		if invalid := s.registry.ValidateKeys(keys); len(invalid) > 0 {
			return nil, fmt.Errorf("%w: disabled permissions: %v", shared.ErrValidation, permission.ToStrings(invalid))
		}
		b.SetPermissions(keys)
	}

	if err := s.bundleRepo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.invalidateFor(ctx, b, "bundle_update")
	s.logger.Info("bundle updated", "id", bundleID, "name", b.Name())

	if b.ScopeTenantID() != nil {
		actx.TenantID = b.ScopeTenantID().String()
	}
	event := NewSuccessEvent(audit.ActionBundleUpdated, audit.ResourceBundle, bundleID).
		WithMessage(fmt.Sprintf("Bundle %q updated", b.Name()))
	s.logAudit(ctx, actx, event)

	return b, nil
}

// DeleteBundle deletes a bundle: soft while active attachments or user
// assignments still reference it, hard otherwise.
func (s *BundleService) DeleteBundle(ctx context.Context, bundleID string, actx AuditContext) error {
	id, err := shared.IDFromString(bundleID)
	if err != nil {
		return fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	b, err := s.bundleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	refs, err := s.bundleRepo.CountActiveReferences(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count bundle references: %w", err)
	}

	if refs > 0 {
		b.Deactivate()
		if err := s.bundleRepo.Update(ctx, b); err != nil {
			return err
		}
	} else {
		if err := s.bundleRepo.Delete(ctx, id); err != nil {
			return err
		}
	}

	s.invalidateFor(ctx, b, "bundle_delete")
	s.logger.Info("bundle deleted", "id", bundleID, "name", b.Name(), "soft", refs > 0)

	if b.ScopeTenantID() != nil {
		actx.TenantID = b.ScopeTenantID().String()
	}
	event := NewSuccessEvent(audit.ActionBundleDeleted, audit.ResourceBundle, bundleID).
		WithMessage(fmt.Sprintf("Bundle %q deleted", b.Name())).
		WithMetadata("soft", refs > 0)
	s.logAudit(ctx, actx, event)

	return nil
}

// AssignBundleInput represents the input for assigning a bundle
// directly to a user.
type AssignBundleInput struct {
	UserID         string  `json:"user_id" validate:"required,uuid"`
	TenantID       string  `json:"-"`
	BundleID       string  `json:"bundle_id" validate:"required,uuid"`
	RelationshipID *string `json:"relationship_id" validate:"omitempty,uuid"`
}

// AssignToUser grants a bundle directly to a user, optionally narrowed
// to one relationship. Only the association is recorded.
func (s *BundleService) AssignToUser(ctx context.Context, input AssignBundleInput, actx AuditContext) (*bundle.UserAssignment, error) {
	userID, err := shared.IDFromString(input.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id format", shared.ErrValidation)
	}
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	bundleID, err := shared.IDFromString(input.BundleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	b, err := s.bundleRepo.GetByID(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if !b.Status().IsActive() {
		return nil, fmt.Errorf("%w: bundle %s is inactive", shared.ErrBusinessRule, input.BundleID)
	}
	if !b.UsableBy(tenantID) {
		return nil, fmt.Errorf("%w: bundle %q is scoped to another tenant", shared.ErrForbidden, b.Name())
	}

	var relationshipID *shared.ID
	if input.RelationshipID != nil {
		rid, err := shared.IDFromString(*input.RelationshipID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid relationship id format", shared.ErrValidation)
		}
		rel, err := s.relationshipRepo.GetByID(ctx, rid)
		if err != nil {
			return nil, err
		}
		if !rel.Involves(tenantID) {
			return nil, fmt.Errorf("%w: relationship does not involve tenant %s", shared.ErrBusinessRule, input.TenantID)
		}
		if !rel.Status().IsActive() {
			return nil, fmt.Errorf("%w: relationship %s is inactive", shared.ErrBusinessRule, *input.RelationshipID)
		}
		relationshipID = &rid
	}

	ua := bundle.NewUserAssignment(userID, tenantID, bundleID, relationshipID)
	if err := s.bundleRepo.AssignToUser(ctx, ua); err != nil {
		if errors.Is(err, bundle.ErrAlreadyAssigned) {
			return nil, fmt.Errorf("%w: bundle already assigned to user in this scope", shared.ErrConflict)
		}
		return nil, err
	}

	s.cacheSvc.InvalidateUser(ctx, tenantID, userID, "bundle_assign")
	s.logger.Info("bundle assigned to user",
		"bundle_id", input.BundleID,
		"user_id", input.UserID,
		"tenant_id", input.TenantID)

	actx.TenantID = input.TenantID
	event := NewSuccessEvent(audit.ActionBundleAssigned, audit.ResourceBundle, input.BundleID).
		WithMetadata("user_id", input.UserID)
	s.logAudit(ctx, actx, event)

	return ua, nil
}

// UnassignFromUser deactivates a user's direct bundle assignment.
func (s *BundleService) UnassignFromUser(ctx context.Context, assignmentID string, actx AuditContext) error {
	id, err := shared.IDFromString(assignmentID)
	if err != nil {
		return fmt.Errorf("%w: invalid assignment id format", shared.ErrValidation)
	}

	ua, err := s.bundleRepo.UnassignFromUser(ctx, id)
	if err != nil {
		return err
	}

	s.cacheSvc.InvalidateUser(ctx, ua.TenantID, ua.UserID, "bundle_unassign")
	s.logger.Info("bundle unassigned from user",
		"bundle_id", ua.BundleID.String(),
		"user_id", ua.UserID.String())

	actx.TenantID = ua.TenantID.String()
	event := NewSuccessEvent(audit.ActionBundleUnassigned, audit.ResourceBundle, ua.BundleID.String()).
		WithMetadata("user_id", ua.UserID.String())
	s.logAudit(ctx, actx, event)

	return nil
}
