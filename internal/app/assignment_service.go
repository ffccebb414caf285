package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealgrid/api/internal/metrics"
	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

// AssignmentService handles role assignments and per-user overrides.
// Every grant is authorized against the acting administrator's own
// resolved set: the whole candidate is checked, not just the delta,
// because assigning a role the admin does not fully hold is itself an
// escalation.
type AssignmentService struct {
	assignmentRepo   assignment.Repository
	roleRepo         role.Repository
	relationshipRepo tenant.RelationshipRepository
	accessSvc        *AccessService
	auditService     *AuditService
	cacheSvc         *PermissionCacheService
	logger           *logger.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(
	assignmentRepo assignment.Repository,
	roleRepo role.Repository,
	relationshipRepo tenant.RelationshipRepository,
	accessSvc *AccessService,
	log *logger.Logger,
	opts ...AssignmentServiceOption,
) *AssignmentService {
	s := &AssignmentService{
		assignmentRepo:   assignmentRepo,
		roleRepo:         roleRepo,
		relationshipRepo: relationshipRepo,
		accessSvc:        accessSvc,
		logger:           log.With("service", "assignment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignmentServiceOption is a functional option for AssignmentService.
type AssignmentServiceOption func(*AssignmentService)

// WithAssignmentAuditService sets the audit service for AssignmentService.
func WithAssignmentAuditService(auditService *AuditService) AssignmentServiceOption {
	return func(s *AssignmentService) {
		s.auditService = auditService
	}
}

// WithAssignmentCacheService sets the permission cache for invalidation.
func WithAssignmentCacheService(cacheSvc *PermissionCacheService) AssignmentServiceOption {
	return func(s *AssignmentService) {
		s.cacheSvc = cacheSvc
	}
}

func (s *AssignmentService) logAudit(ctx context.Context, actx AuditContext, event AuditEvent) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogEvent(ctx, actx, event); err != nil {
		s.logger.Error("failed to log audit event", "error", err, "action", event.Action)
	}
}

// OverrideInput represents one ALLOW/DENY exception in a request.
type OverrideInput struct {
	Permission string `json:"permission" validate:"required,permission_key"`
	Effect     string `json:"effect" validate:"required,override_effect"`
	Reason     string `json:"reason" validate:"max=500"`
}

// buildOverrides materializes override inputs for a scope. ALLOW keys
// are collected raw, without dependency expansion.
func buildOverrides(scope assignment.ScopeKey, inputs []OverrideInput, createdBy shared.ID) ([]*assignment.Override, []permission.Key, error) {
	overrides := make([]*assignment.Override, 0, len(inputs))
	var allowKeys []permission.Key

	for _, in := range inputs {
		key, ok := permission.Parse(in.Permission)
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, in.Permission)
		}
		effect, err := assignment.ParseEffect(in.Effect)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", shared.ErrValidation, err)
		}

		o := assignment.NewOverride(scope, key, effect, in.Reason, createdBy)
		overrides = append(overrides, o)
		if o.IsAllow() {
			allowKeys = append(allowKeys, key)
		}
	}

	return overrides, allowKeys, nil
}

// authorizeCandidate rejects the grant unless the acting administrator's
// own resolved set for the same scope covers the whole candidate. The
// error carries the exact forbidden keys.
func (s *AssignmentService) authorizeCandidate(ctx context.Context, actingAdmin string, tenantID shared.ID, relationshipID *shared.ID, candidate permission.Set, operation string, actx AuditContext) error {
	if actingAdmin == "" {
		return nil
	}

	adminID, err := shared.IDFromString(actingAdmin)
	if err != nil {
		return fmt.Errorf("%w: invalid acting admin id format", shared.ErrValidation)
	}

	adminSet, err := s.accessSvc.ResolveScope(ctx, adminID, tenantID, relationshipID)
	if err != nil {
		return fmt.Errorf("failed to resolve acting admin: %w", err)
	}

	if missing := candidate.Difference(adminSet); len(missing) > 0 {
		metrics.EscalationsDenied.WithLabelValues(tenantID.String(), operation).Inc()
		event := NewDeniedEvent(audit.ActionEscalationDenied, audit.ResourceAssignment, "").
			WithMessage(fmt.Sprintf("Administrator lacks: %v", permission.ToStrings(missing))).
			WithMetadata("operation", operation)
		s.logAudit(ctx, actx, event)
		return access.NewForbiddenError(adminID, missing)
	}

	return nil
}

// loadRoleForTenant loads a role and checks it is active and owned by
// the tenant.
func (s *AssignmentService) loadRoleForTenant(ctx context.Context, roleID, tenantID shared.ID) (*role.Role, error) {
	r, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !r.TenantID().Equals(tenantID) {
		return nil, fmt.Errorf("%w: role %s does not belong to tenant %s", shared.ErrBusinessRule, roleID, tenantID)
	}
	if !r.Status().IsActive() {
		return nil, fmt.Errorf("%w: role %s is inactive", shared.ErrBusinessRule, roleID)
	}
	return r, nil
}

// resolveRelationship validates an optional relationship scope: it must
// name an active relationship with the tenant as one of the two parties.
func (s *AssignmentService) resolveRelationship(ctx context.Context, relationshipID *string, tenantID shared.ID) (*shared.ID, error) {
	if relationshipID == nil {
		return nil, nil
	}

	rid, err := shared.IDFromString(*relationshipID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid relationship id format", shared.ErrValidation)
	}

	rel, err := s.relationshipRepo.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !rel.Involves(tenantID) {
		return nil, fmt.Errorf("%w: relationship does not involve tenant %s", shared.ErrBusinessRule, tenantID)
	}
	if !rel.Status().IsActive() {
		return nil, fmt.Errorf("%w: relationship %s is inactive", shared.ErrBusinessRule, rid)
	}

	return &rid, nil
}

// CreateAssignmentInput represents the input for creating an assignment.
type CreateAssignmentInput struct {
	UserID         string          `json:"user_id" validate:"required,uuid"`
	TenantID       string          `json:"-"`
	RoleID         string          `json:"role_id" validate:"required,uuid"`
	RelationshipID *string         `json:"relationship_id" validate:"omitempty,uuid"`
	Overrides      []OverrideInput `json:"overrides" validate:"dive"`
	ActingAdmin    string          `json:"-"`
}

// CreateAssignment assigns a role to a user in a tenant, optionally
// scoped to one relationship, with optional overrides, atomically.
func (s *AssignmentService) CreateAssignment(ctx context.Context, input CreateAssignmentInput, createdBy string, actx AuditContext) (*assignment.Assignment, error) {
	s.logger.Info("creating assignment",
		"user_id", input.UserID,
		"tenant_id", input.TenantID,
		"role_id", input.RoleID)

	userID, err := shared.IDFromString(input.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id format", shared.ErrValidation)
	}
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	roleID, err := shared.IDFromString(input.RoleID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
	}
	createdByID, err := shared.IDFromString(createdBy)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid created_by id format", shared.ErrValidation)
	}

	r, err := s.loadRoleForTenant(ctx, roleID, tenantID)
	if err != nil {
		return nil, err
	}

	relationshipID, err := s.resolveRelationship(ctx, input.RelationshipID, tenantID)
	if err != nil {
		return nil, err
	}

	a := assignment.New(userID, tenantID, roleID, relationshipID, createdByID)
	overrides, allowKeys, err := buildOverrides(a.Scope(), input.Overrides, createdByID)
	if err != nil {
		return nil, err
	}

	candidate := r.PermissionSet()
	for _, k := range allowKeys {
		candidate.Add(k)
	}

	actx.TenantID = input.TenantID
	if err := s.authorizeCandidate(ctx, input.ActingAdmin, tenantID, relationshipID, candidate, "assignment_create", actx); err != nil {
		return nil, err
	}

	if err := s.assignmentRepo.CreateWithOverrides(ctx, a, overrides); err != nil {
		if errors.Is(err, assignment.ErrDuplicateScope) {
			return nil, fmt.Errorf("%w: an active assignment already exists for this scope", shared.ErrConflict)
		}
		return nil, err
	}

	metrics.AssignmentChangesTotal.WithLabelValues(input.TenantID, "create").Inc()
	s.cacheSvc.InvalidateUser(ctx, tenantID, userID, "assignment_create")
	s.logger.Info("assignment created",
		"id", a.ID().String(),
		"user_id", input.UserID,
		"role", r.Name(),
		"overrides", len(overrides))

	event := NewSuccessEvent(audit.ActionAssignmentCreated, audit.ResourceAssignment, a.ID().String()).
		WithMessage(fmt.Sprintf("Role %q assigned", r.Name())).
		WithMetadata("user_id", input.UserID).
		WithMetadata("override_count", len(overrides))
	s.logAudit(ctx, actx, event)

	return a, nil
}

// GetAssignment retrieves an assignment by ID.
func (s *AssignmentService) GetAssignment(ctx context.Context, assignmentID string) (*assignment.Assignment, error) {
	id, err := shared.IDFromString(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid assignment id format", shared.ErrValidation)
	}

	return s.assignmentRepo.GetByID(ctx, id)
}

// ListAssignmentsForUser returns the user's assignments in a tenant.
func (s *AssignmentService) ListAssignmentsForUser(ctx context.Context, userID, tenantID string) ([]*assignment.Assignment, error) {
	uid, err := shared.IDFromString(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id format", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.assignmentRepo.ListForUser(ctx, uid, tid)
}

// ListAssignmentsForTenant returns the tenant's assignments.
func (s *AssignmentService) ListAssignmentsForTenant(ctx context.Context, tenantID string, activeOnly bool) ([]*assignment.Assignment, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.assignmentRepo.ListForTenant(ctx, tid, activeOnly)
}

// UpdateAssignmentInput represents the input for updating an assignment.
// A non-nil Overrides replaces every active override of the assignment's
// scope tuple, related or not.
type UpdateAssignmentInput struct {
	RoleID      *string          `json:"role_id" validate:"omitempty,uuid"`
	Overrides   *[]OverrideInput `json:"overrides" validate:"omitempty,dive"`
	ActingAdmin string           `json:"-"`
}

// UpdateAssignment changes an assignment's role and/or replaces its
// overrides. The authorization check runs against the new candidate set.
func (s *AssignmentService) UpdateAssignment(ctx context.Context, assignmentID string, input UpdateAssignmentInput, updatedBy string, actx AuditContext) (*assignment.Assignment, error) {
	id, err := shared.IDFromString(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid assignment id format", shared.ErrValidation)
	}
	updatedByID, err := shared.IDFromString(updatedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid updated_by id format", shared.ErrValidation)
	}

	a, err := s.assignmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status().IsActive() {
		return nil, fmt.Errorf("%w: assignment %s is inactive", shared.ErrBusinessRule, assignmentID)
	}

	roleID := a.RoleID()
	if input.RoleID != nil {
		rid, err := shared.IDFromString(*input.RoleID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid role id format", shared.ErrValidation)
		}
		roleID = rid
	}

	r, err := s.loadRoleForTenant(ctx, roleID, a.TenantID())
	if err != nil {
		return nil, err
	}

	var (
		overrides []*assignment.Override
		allowKeys []permission.Key
	)
	replaceOverrides := input.Overrides != nil
	if replaceOverrides {
		overrides, allowKeys, err = buildOverrides(a.Scope(), *input.Overrides, updatedByID)
		if err != nil {
			return nil, err
		}
	} else {
		existing, err := s.assignmentRepo.ListOverridesByScope(ctx, a.Scope())
		if err != nil {
			return nil, err
		}
		for _, o := range existing {
			if o.IsAllow() {
				allowKeys = append(allowKeys, o.Permission())
			}
		}
	}

	candidate := r.PermissionSet()
	for _, k := range allowKeys {
		candidate.Add(k)
	}

	actx.TenantID = a.TenantID().String()
	if err := s.authorizeCandidate(ctx, input.ActingAdmin, a.TenantID(), a.RelationshipID(), candidate, "assignment_update", actx); err != nil {
		return nil, err
	}

	a.SetRole(roleID)
	if err := s.assignmentRepo.UpdateWithOverrides(ctx, a, replaceOverrides, overrides); err != nil {
		return nil, err
	}

	metrics.AssignmentChangesTotal.WithLabelValues(a.TenantID().String(), "update").Inc()
	s.cacheSvc.InvalidateUser(ctx, a.TenantID(), a.UserID(), "assignment_update")
	s.logger.Info("assignment updated",
		"id", assignmentID,
		"role", r.Name(),
		"overrides_replaced", replaceOverrides)

	event := NewSuccessEvent(audit.ActionAssignmentUpdated, audit.ResourceAssignment, assignmentID).
		WithMessage(fmt.Sprintf("Assignment updated to role %q", r.Name())).
		WithMetadata("overrides_replaced", replaceOverrides)
	s.logAudit(ctx, actx, event)

	return a, nil
}

// RemoveAssignment deactivates an assignment and exactly the overrides
// sharing its scope tuple.
func (s *AssignmentService) RemoveAssignment(ctx context.Context, assignmentID string, actx AuditContext) error {
	id, err := shared.IDFromString(assignmentID)
	if err != nil {
		return fmt.Errorf("%w: invalid assignment id format", shared.ErrValidation)
	}

	a, err := s.assignmentRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.assignmentRepo.DeactivateCascade(ctx, a); err != nil {
		return err
	}

	metrics.AssignmentChangesTotal.WithLabelValues(a.TenantID().String(), "remove").Inc()
	s.cacheSvc.InvalidateUser(ctx, a.TenantID(), a.UserID(), "assignment_remove")
	s.logger.Info("assignment removed",
		"id", assignmentID,
		"user_id", a.UserID().String())

	actx.TenantID = a.TenantID().String()
	event := NewSuccessEvent(audit.ActionAssignmentRemoved, audit.ResourceAssignment, assignmentID).
		WithMessage("Assignment and scoped overrides deactivated").
		WithMetadata("user_id", a.UserID().String())
	s.logAudit(ctx, actx, event)

	return nil
}
