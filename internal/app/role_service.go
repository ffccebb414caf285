package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealgrid/api/internal/metrics"
	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// RoleService handles role-related business operations. Every permission
// write runs the same gauntlet before anything is persisted: duplicate
// name, dependency expansion, grant containment, acting-admin authority.
type RoleService struct {
	roleRepo     role.Repository
	bundleRepo   bundle.Repository
	grantSvc     *GrantService
	accessSvc    *AccessService
	registry     *permission.Registry
	auditService *AuditService
	cacheSvc     *PermissionCacheService
	logger       *logger.Logger
}

// NewRoleService creates a new RoleService.
func NewRoleService(
	roleRepo role.Repository,
	bundleRepo bundle.Repository,
	grantSvc *GrantService,
	accessSvc *AccessService,
	registry *permission.Registry,
	log *logger.Logger,
	opts ...RoleServiceOption,
) *RoleService {
	s := &RoleService{
		roleRepo:   roleRepo,
		bundleRepo: bundleRepo,
		grantSvc:   grantSvc,
		accessSvc:  accessSvc,
		registry:   registry,
		logger:     log.With("service", "role"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoleServiceOption is a functional option for RoleService.
type RoleServiceOption func(*RoleService)

// WithRoleAuditService sets the audit service for RoleService.
func WithRoleAuditService(auditService *AuditService) RoleServiceOption {
	return func(s *RoleService) {
		s.auditService = auditService
	}
}

// WithRoleCacheService sets the permission cache for invalidation.
func WithRoleCacheService(cacheSvc *PermissionCacheService) RoleServiceOption {
	return func(s *RoleService) {
		s.cacheSvc = cacheSvc
	}
}

func (s *RoleService) logAudit(ctx context.Context, actx AuditContext, event AuditEvent) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogEvent(ctx, actx, event); err != nil {
		s.logger.Error("failed to log audit event", "error", err, "action", event.Action)
	}
}

// checkGrantContainment rejects expansions that exceed the tenant's
// grant set. The error names the exact uncovered keys.
func (s *RoleService) checkGrantContainment(ctx context.Context, tenantID shared.ID, expanded permission.Set) error {
	granted, err := s.grantSvc.GrantedSet(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant grants: %w", err)
	}

	if missing := expanded.Difference(granted); len(missing) > 0 {
		metrics.GrantViolations.WithLabelValues(tenantID.String()).Inc()
		return &grant.ConsistencyError{TenantID: tenantID, Missing: missing}
	}

	return nil
}

// checkAdminAuthority rejects candidates the acting administrator does
// not fully hold themselves; the error carries the exact forbidden keys.
// actingAdmin empty means a platform-level caller and skips the check.
func (s *RoleService) checkAdminAuthority(ctx context.Context, actingAdmin string, tenantID shared.ID, candidate permission.Set, operation string, actx AuditContext) error {
	if actingAdmin == "" {
		return nil
	}

	adminID, err := shared.IDFromString(actingAdmin)
	if err != nil {
		return fmt.Errorf("%w: invalid acting admin id format", shared.ErrValidation)
	}

	adminSet, err := s.accessSvc.ResolveScope(ctx, adminID, tenantID, nil)
	if err != nil {
		return fmt.Errorf("failed to resolve acting admin: %w", err)
	}

	if missing := candidate.Difference(adminSet); len(missing) > 0 {
		metrics.EscalationsDenied.WithLabelValues(tenantID.String(), operation).Inc()
		event := NewDeniedEvent(audit.ActionEscalationDenied, audit.ResourceRole, "").
			WithMessage(fmt.Sprintf("Administrator lacks: %v", permission.ToStrings(missing))).
			WithMetadata("operation", operation)
		s.logAudit(ctx, actx, event)
		return access.NewForbiddenError(adminID, missing)
	}

	return nil
}

// CreateRoleInput represents the input for creating a role.
type CreateRoleInput struct {
	TenantID    string   `json:"-"`
	Name        string   `json:"name" validate:"required,min=2,max=100,entity_name"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,permission_key"`
	ActingAdmin string   `json:"-"`
}

// CreateRole creates a role. The supplied permissions are dependency-
// expanded and the expanded set is what gets stored and checked.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput, createdBy string, actx AuditContext) (*role.Role, error) {
	s.logger.Info("creating role", "name", input.Name, "tenant_id", input.TenantID)

	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	var createdByID *shared.ID
	if createdBy != "" {
		id, err := shared.IDFromString(createdBy)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid created_by id format", shared.ErrValidation)
		}
		createdByID = &id
	}

	keys, unknown := permission.FromStrings(input.Permissions)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
	}

	// Duplicate active name check.
	_, err = s.roleRepo.GetActiveByName(ctx, tenantID, input.Name)
	if err == nil {
		return nil, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, input.Name)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}

	expanded := s.registry.Expand(keys)

	if err := s.checkGrantContainment(ctx, tenantID, expanded); err != nil {
		return nil, err
	}

	actx.TenantID = input.TenantID
	if err := s.checkAdminAuthority(ctx, input.ActingAdmin, tenantID, expanded, "role_create", actx); err != nil {
		return nil, err
	}

	r := role.New(tenantID, input.Name, input.Description, expanded.Keys(), createdByID)
	if err := s.roleRepo.Create(ctx, r); err != nil {
		if errors.Is(err, role.ErrNameExists) {
			return nil, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, input.Name)
		}
		return nil, err
	}

	s.cacheSvc.InvalidateTenant(ctx, tenantID, "role_create")
	s.logger.Info("role created", "id", r.ID().String(), "name", r.Name(), "permissions", expanded.Len())

	event := NewSuccessEvent(audit.ActionRoleCreated, audit.ResourceRole, r.ID().String()).
		WithMessage(fmt.Sprintf("Role %q created", r.Name())).
		WithMetadata("permission_count", expanded.Len())
	s.logAudit(ctx, actx, event)

	return r, nil
}

// GetRole retrieves a role by ID.
func (s *RoleService) GetRole(ctx context.Context, roleID string) (*role.Role, error) {
	id, err := shared.IDFromString(roleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}

	return s.roleRepo.GetByID(ctx, id)
}

// ListRoles returns the tenant's roles.
func (s *RoleService) ListRoles(ctx context.Context, tenantID string, activeOnly bool) ([]*role.Role, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.roleRepo.ListForTenant(ctx, tid, activeOnly)
}

// UpdateRoleInput represents the input for updating a role.
type UpdateRoleInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100,entity_name"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,permission_key"`
	ActingAdmin string   `json:"-"`
}

// UpdateRole updates a role. A permission change replaces the stored set
// wholesale with the new expansion; the old set never leaks through.
func (s *RoleService) UpdateRole(ctx context.Context, roleID string, input UpdateRoleInput, actx AuditContext) (*role.Role, error) {
	id, err := shared.IDFromString(roleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}

	r, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status().IsActive() {
		return nil, fmt.Errorf("%w: role %s is inactive", shared.ErrBusinessRule, roleID)
	}

	if input.Name != nil && *input.Name != r.Name() {
		_, err := s.roleRepo.GetActiveByName(ctx, r.TenantID(), *input.Name)
		if err == nil {
			return nil, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, *input.Name)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to check role name: %w", err)
		}
		r.Rename(*input.Name)
	}
	if input.Description != nil {
		r.Describe(*input.Description)
	}

	actx.TenantID = r.TenantID().String()

	if input.Permissions != nil {
		keys, unknown := permission.FromStrings(input.Permissions)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
		}

		expanded := s.registry.Expand(keys)

		if err := s.checkGrantContainment(ctx, r.TenantID(), expanded); err != nil {
			return nil, err
		}
		if err := s.checkAdminAuthority(ctx, input.ActingAdmin, r.TenantID(), expanded, "role_update", actx); err != nil {
			return nil, err
		}

		r.SetPermissions(expanded.Keys())
	}

	if err := s.roleRepo.Update(ctx, r); err != nil {
		if errors.Is(err, role.ErrNameExists) {
			return nil, fmt.Errorf("%w: role name already exists", shared.ErrConflict)
		}
		return nil, err
	}

	s.cacheSvc.InvalidateTenant(ctx, r.TenantID(), "role_update")
	s.logger.Info("role updated", "id", roleID, "name", r.Name())

	event := NewSuccessEvent(audit.ActionRoleUpdated, audit.ResourceRole, roleID).
		WithMessage(fmt.Sprintf("Role %q updated", r.Name()))
	s.logAudit(ctx, actx, event)

	return r, nil
}

// DeleteRole soft-deactivates a role. Roles with active assignments
// cannot be deleted.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string, actx AuditContext) error {
	id, err := shared.IDFromString(roleID)
	if err != nil {
		return fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}

	r, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.roleRepo.CountActiveAssignments(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count assignments: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: role has %d active assignments", shared.ErrBusinessRule, count)
	}

	r.Deactivate()
	if err := s.roleRepo.Update(ctx, r); err != nil {
		return err
	}

	s.cacheSvc.InvalidateTenant(ctx, r.TenantID(), "role_delete")
	s.logger.Info("role deactivated", "id", roleID, "name", r.Name())

	actx.TenantID = r.TenantID().String()
	event := NewSuccessEvent(audit.ActionRoleDeleted, audit.ResourceRole, roleID).
		WithMessage(fmt.Sprintf("Role %q deactivated", r.Name()))
	s.logAudit(ctx, actx, event)

	return nil
}

// AttachBundle attaches a bundle to a role. The bundle's contents are
// never copied; they merge at resolution time.
func (s *RoleService) AttachBundle(ctx context.Context, roleID, bundleID string, actx AuditContext) error {
	rid, err := shared.IDFromString(roleID)
	if err != nil {
		return fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}
	bid, err := shared.IDFromString(bundleID)
	if err != nil {
		return fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	r, err := s.roleRepo.GetByID(ctx, rid)
	if err != nil {
		return err
	}
	if !r.Status().IsActive() {
		return fmt.Errorf("%w: role %s is inactive", shared.ErrBusinessRule, roleID)
	}

	b, err := s.bundleRepo.GetByID(ctx, bid)
	if err != nil {
		return err
	}
	if !b.Status().IsActive() {
		return fmt.Errorf("%w: bundle %s is inactive", shared.ErrBusinessRule, bundleID)
	}
	if !b.UsableBy(r.TenantID()) {
		return fmt.Errorf("%w: bundle %q is scoped to another tenant", shared.ErrForbidden, b.Name())
	}

	if err := s.bundleRepo.AttachToRole(ctx, bundle.NewRoleAttachment(rid, bid)); err != nil {
		if errors.Is(err, bundle.ErrAlreadyAttached) {
			return fmt.Errorf("%w: bundle already attached to role", shared.ErrConflict)
		}
		return err
	}

	s.cacheSvc.InvalidateTenant(ctx, r.TenantID(), "bundle_attach")
	s.logger.Info("bundle attached to role", "role_id", roleID, "bundle_id", bundleID)

	actx.TenantID = r.TenantID().String()
	event := NewSuccessEvent(audit.ActionBundleAttached, audit.ResourceBundle, bundleID).
		WithMetadata("role_id", roleID)
	s.logAudit(ctx, actx, event)

	return nil
}

// DetachBundle detaches a bundle from a role.
func (s *RoleService) DetachBundle(ctx context.Context, roleID, bundleID string, actx AuditContext) error {
	rid, err := shared.IDFromString(roleID)
	if err != nil {
		return fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}
	bid, err := shared.IDFromString(bundleID)
	if err != nil {
		return fmt.Errorf("%w: invalid bundle id format", shared.ErrValidation)
	}

	r, err := s.roleRepo.GetByID(ctx, rid)
	if err != nil {
		return err
	}

	if err := s.bundleRepo.DetachFromRole(ctx, rid, bid); err != nil {
		return err
	}

	s.cacheSvc.InvalidateTenant(ctx, r.TenantID(), "bundle_detach")
	s.logger.Info("bundle detached from role", "role_id", roleID, "bundle_id", bundleID)

	actx.TenantID = r.TenantID().String()
	event := NewSuccessEvent(audit.ActionBundleDetached, audit.ResourceBundle, bundleID).
		WithMetadata("role_id", roleID)
	s.logAudit(ctx, actx, event)

	return nil
}
