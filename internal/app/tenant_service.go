package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
)

// TenantService handles tenant and relationship operations.
type TenantService struct {
	tenantRepo       tenant.Repository
	relationshipRepo tenant.RelationshipRepository
	auditService     *AuditService
	logger           *logger.Logger
}

// NewTenantService creates a new TenantService.
func NewTenantService(
	tenantRepo tenant.Repository,
	relationshipRepo tenant.RelationshipRepository,
	log *logger.Logger,
	opts ...TenantServiceOption,
) *TenantService {
	s := &TenantService{
		tenantRepo:       tenantRepo,
		relationshipRepo: relationshipRepo,
		logger:           log.With("service", "tenant"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TenantServiceOption is a functional option for TenantService.
type TenantServiceOption func(*TenantService)

// WithTenantAuditService sets the audit service for TenantService.
func WithTenantAuditService(auditService *AuditService) TenantServiceOption {
	return func(s *TenantService) {
		s.auditService = auditService
	}
}

func (s *TenantService) logAudit(ctx context.Context, actx AuditContext, event AuditEvent) {
	if s.auditService == nil {
		return
	}
	if err := s.auditService.LogEvent(ctx, actx, event); err != nil {
		s.logger.Error("failed to log audit event", "error", err, "action", event.Action)
	}
}

// CreateTenantInput represents the input for creating a tenant.
type CreateTenantInput struct {
	Name string `json:"name" validate:"required,min=2,max=100,entity_name"`
	Kind string `json:"kind" validate:"required,tenant_kind"`
}

// CreateTenant creates a new tenant. Only one platform-owner tenant may
// exist.
func (s *TenantService) CreateTenant(ctx context.Context, input CreateTenantInput, actx AuditContext) (*tenant.Tenant, error) {
	kind, err := tenant.ParseKind(input.Kind)
	if err != nil {
		return nil, err
	}

	if kind == tenant.KindPlatformOwner {
		_, err := s.tenantRepo.GetPlatformOwner(ctx)
		if err == nil {
			return nil, fmt.Errorf("%w: a platform owner tenant already exists", shared.ErrConflict)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to check platform owner: %w", err)
		}
	}

	t := tenant.New(input.Name, kind)
	if err := s.tenantRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tenant created", "id", t.ID().String(), "name", t.Name(), "kind", t.Kind().String())

	actx.TenantID = t.ID().String()
	event := NewSuccessEvent(audit.ActionTenantCreated, audit.ResourceTenant, t.ID().String()).
		WithMessage(fmt.Sprintf("Tenant %q created", t.Name())).
		WithMetadata("kind", t.Kind().String())
	s.logAudit(ctx, actx, event)

	return t, nil
}

// GetTenant retrieves a tenant by ID.
func (s *TenantService) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	id, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.tenantRepo.GetByID(ctx, id)
}

// ListTenants returns all tenants.
func (s *TenantService) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.tenantRepo.List(ctx)
}

// DeactivateTenant transitions a tenant to inactive. The platform owner
// cannot be deactivated.
func (s *TenantService) DeactivateTenant(ctx context.Context, tenantID string, actx AuditContext) error {
	id, err := shared.IDFromString(tenantID)
	if err != nil {
		return fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	t, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if t.IsPlatformOwner() {
		return fmt.Errorf("%w: the platform owner tenant cannot be deactivated", shared.ErrBusinessRule)
	}

	t.Deactivate()
	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("tenant deactivated", "id", t.ID().String(), "name", t.Name())

	actx.TenantID = tenantID
	event := NewSuccessEvent(audit.ActionTenantDeactivated, audit.ResourceTenant, tenantID).
		WithMessage(fmt.Sprintf("Tenant %q deactivated", t.Name()))
	s.logAudit(ctx, actx, event)

	return nil
}

// CreateRelationshipInput represents the input for creating a relationship.
type CreateRelationshipInput struct {
	FromTenantID string `json:"from_tenant_id" validate:"required,uuid"`
	ToTenantID   string `json:"to_tenant_id" validate:"required,uuid"`
	Kind         string `json:"kind" validate:"required,relationship_kind"`
}

// CreateRelationship creates a directed relationship between two tenants.
// Both tenants must exist and be active.
func (s *TenantService) CreateRelationship(ctx context.Context, input CreateRelationshipInput, actx AuditContext) (*tenant.Relationship, error) {
	fromID, err := shared.IDFromString(input.FromTenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid from_tenant_id format", shared.ErrValidation)
	}
	toID, err := shared.IDFromString(input.ToTenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid to_tenant_id format", shared.ErrValidation)
	}
	kind, err := tenant.ParseRelationshipKind(input.Kind)
	if err != nil {
		return nil, err
	}

	for _, id := range []shared.ID{fromID, toID} {
		t, err := s.tenantRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !t.Status().IsActive() {
			return nil, fmt.Errorf("%w: tenant %s is inactive", shared.ErrBusinessRule, id)
		}
	}

	rel, err := tenant.NewRelationship(fromID, toID, kind)
	if err != nil {
		return nil, err
	}

	if err := s.relationshipRepo.Create(ctx, rel); err != nil {
		return nil, err
	}

	s.logger.Info("relationship created",
		"id", rel.ID().String(),
		"from", input.FromTenantID,
		"to", input.ToTenantID,
		"kind", input.Kind,
	)

	actx.TenantID = input.FromTenantID
	event := NewSuccessEvent(audit.ActionRelationshipCreated, audit.ResourceRelationship, rel.ID().String()).
		WithMetadata("from_tenant_id", input.FromTenantID).
		WithMetadata("to_tenant_id", input.ToTenantID).
		WithMetadata("kind", input.Kind)
	s.logAudit(ctx, actx, event)

	return rel, nil
}

// GetRelationship retrieves a relationship by ID.
func (s *TenantService) GetRelationship(ctx context.Context, relationshipID string) (*tenant.Relationship, error) {
	id, err := shared.IDFromString(relationshipID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid relationship id format", shared.ErrValidation)
	}

	return s.relationshipRepo.GetByID(ctx, id)
}

// ListRelationships returns relationships where the tenant is a party.
func (s *TenantService) ListRelationships(ctx context.Context, tenantID string) ([]*tenant.Relationship, error) {
	id, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}

	return s.relationshipRepo.ListForTenant(ctx, id)
}

// DeactivateRelationship transitions a relationship to inactive.
// Assignments scoped to it stop resolving because their exact tuple can
// no longer be requested through a valid session.
func (s *TenantService) DeactivateRelationship(ctx context.Context, relationshipID string, actx AuditContext) error {
	id, err := shared.IDFromString(relationshipID)
	if err != nil {
		return fmt.Errorf("%w: invalid relationship id format", shared.ErrValidation)
	}

	rel, err := s.relationshipRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	rel.Deactivate()
	if err := s.relationshipRepo.Update(ctx, rel); err != nil {
		return err
	}

	s.logger.Info("relationship deactivated", "id", relationshipID)

	event := NewSuccessEvent(audit.ActionRelationshipDeactivated, audit.ResourceRelationship, relationshipID)
	s.logAudit(ctx, actx, event)

	return nil
}
