package app

import (
	"context"
	"fmt"

	"github.com/dealgrid/api/internal/metrics"
	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

// GrantService manages the tenant grant registry: the platform owner's
// allow-list of which catalog permissions each tenant may use.
type GrantService struct {
	grantRepo    grant.Repository
	tenantRepo   tenant.Repository
	registry     *permission.Registry
	auditService *AuditService
	cacheSvc     *PermissionCacheService
	logger       *logger.Logger
}

// NewGrantService creates a new GrantService.
func NewGrantService(
	grantRepo grant.Repository,
	tenantRepo tenant.Repository,
	registry *permission.Registry,
	log *logger.Logger,
	opts ...GrantServiceOption,
) *GrantService {
	s := &GrantService{
		grantRepo:  grantRepo,
		tenantRepo: tenantRepo,
		registry:   registry,
		logger:     log.With("service", "grant"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GrantServiceOption is a functional option for GrantService.
type GrantServiceOption func(*GrantService)

// WithGrantAuditService sets the audit service for GrantService.
func WithGrantAuditService(auditService *AuditService) GrantServiceOption {
	return func(s *GrantService) {
		s.auditService = auditService
	}
}

// WithGrantCacheService sets the permission cache for invalidation.
func WithGrantCacheService(cacheSvc *PermissionCacheService) GrantServiceOption {
	return func(s *GrantService) {
		s.cacheSvc = cacheSvc
	}
}

func (s *GrantService) logAudit(ctx context.Context, actx AuditContext, event AuditEvent) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogEvent(ctx, actx, event); err != nil {
		s.logger.Error("failed to log audit event", "error", err, "action", event.Action)
	}
}

// guardTenant loads the tenant and rejects grant mutations against the
// platform owner, whose grant set is implicit and immutable.
func (s *GrantService) guardTenant(ctx context.Context, tenantID shared.ID) (*tenant.Tenant, error) {
	t, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.IsPlatformOwner() {
		return nil, fmt.Errorf("%w: the platform owner's grants are implicit and cannot be modified", shared.ErrBusinessRule)
	}
	return t, nil
}

// GrantInput represents the input for granting one permission.
type GrantInput struct {
	TenantID   string `json:"-"`
	Permission string `json:"permission" validate:"required,permission_key"`
}

// Grant grants a permission to a tenant. Granting an already-granted
// permission is a conflict.
func (s *GrantService) Grant(ctx context.Context, input GrantInput, grantedBy string, actx AuditContext) (*grant.TenantGrant, error) {
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	grantedByID, err := shared.IDFromString(grantedBy)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid granted_by id format", shared.ErrValidation)
	}
	key, ok := permission.Parse(input.Permission)
	if !ok {
		return nil, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, input.Permission)
	}

	if _, err := s.guardTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	g := grant.New(tenantID, key, grantedByID)
	if err := s.grantRepo.Grant(ctx, g); err != nil {
		return nil, err
	}

	metrics.GrantChangesTotal.WithLabelValues(input.TenantID, "grant").Inc()
	s.cacheSvc.InvalidateTenant(ctx, tenantID, "grant")
	s.logger.Info("permission granted", "tenant_id", input.TenantID, "permission", input.Permission)

	actx.TenantID = input.TenantID
	event := NewSuccessEvent(audit.ActionGrantCreated, audit.ResourceGrant, input.Permission).
		WithMessage(fmt.Sprintf("Permission %s granted", key)).
		WithMetadata("permission", input.Permission)
	s.logAudit(ctx, actx, event)

	return g, nil
}

// Revoke revokes a permission from a tenant and strips it from every
// role of the tenant in the same transaction. Revoking an absent grant
// is NotFound and has no side effects.
func (s *GrantService) Revoke(ctx context.Context, tenantID, permissionKey string, actx AuditContext) error {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	key, ok := permission.Parse(permissionKey)
	if !ok {
		return fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, permissionKey)
	}

	if _, err := s.guardTenant(ctx, tid); err != nil {
		return err
	}

	if err := s.grantRepo.RevokeCascade(ctx, tid, key); err != nil {
		return err
	}

	metrics.GrantChangesTotal.WithLabelValues(tenantID, "revoke").Inc()
	metrics.RevokeCascadeStripped.Inc()
	s.cacheSvc.InvalidateTenant(ctx, tid, "revoke")
	s.logger.Info("permission revoked", "tenant_id", tenantID, "permission", permissionKey)

	actx.TenantID = tenantID
	event := NewSuccessEvent(audit.ActionGrantRevoked, audit.ResourceGrant, permissionKey).
		WithMessage(fmt.Sprintf("Permission %s revoked and stripped from roles", key)).
		WithMetadata("permission", permissionKey)
	s.logAudit(ctx, actx, event)

	return nil
}

// ReplaceGrantsInput represents the input for replacing a tenant's grants.
type ReplaceGrantsInput struct {
	TenantID    string   `json:"-"`
	Permissions []string `json:"permissions" validate:"dive,permission_key"`
}

// ReplaceAll replaces the tenant's grant set: missing grants are added,
// surplus grants are revoked with the role cascade, atomically.
func (s *GrantService) ReplaceAll(ctx context.Context, input ReplaceGrantsInput, grantedBy string, actx AuditContext) error {
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	grantedByID, err := shared.IDFromString(grantedBy)
	if err != nil {
		return fmt.Errorf("%w: invalid granted_by id format", shared.ErrValidation)
	}
	keys, unknown := permission.FromStrings(input.Permissions)
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
	}

	if _, err := s.guardTenant(ctx, tenantID); err != nil {
		return err
	}

	if err := s.grantRepo.ReplaceAll(ctx, tenantID, keys, grantedByID); err != nil {
		return err
	}

	metrics.GrantChangesTotal.WithLabelValues(input.TenantID, "replace").Inc()
	s.cacheSvc.InvalidateTenant(ctx, tenantID, "grant_replace")
	s.logger.Info("grants replaced", "tenant_id", input.TenantID, "count", len(keys))

	actx.TenantID = input.TenantID
	event := NewSuccessEvent(audit.ActionGrantReplaced, audit.ResourceGrant, input.TenantID).
		WithMessage("Tenant grant set replaced").
		WithMetadata("permission_count", len(keys))
	s.logAudit(ctx, actx, event)

	return nil
}

// ListGrants returns every grant of the tenant.
func (s *GrantService) ListGrants(ctx context.Context, tenantID string) ([]*grant.TenantGrant, error) {
	tid, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.grantRepo.ListForTenant(ctx, tid)
}

// GrantedSet returns the tenant's effective grant set. The platform
// owner implicitly holds every enabled catalog permission.
func (s *GrantService) GrantedSet(ctx context.Context, tenantID shared.ID) (permission.Set, error) {
	t, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if t.IsPlatformOwner() {
		set := permission.NewSet()
		for _, key := range permission.AllKeys() {
			if s.registry.IsEnabled(key) {
				set.Add(key)
			}
		}
		return set, nil
	}

	return s.grantRepo.GrantedSet(ctx, tenantID)
}
