package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/internal/metrics"
	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// AccessService is the read path of the engine: it loads the data for a
// scope tuple, runs the pure resolver over it and caches the result.
// Every acting-administrator authority check in the write services goes
// through Resolve as well, so delegation authority and runtime access
// can never disagree.
type AccessService struct {
	assignmentRepo assignment.Repository
	roleRepo       role.Repository
	bundleRepo     bundle.Repository
	resolver       *access.Resolver
	cacheSvc       *PermissionCacheService
	logger         *logger.Logger
}

// NewAccessService creates a new AccessService.
func NewAccessService(
	assignmentRepo assignment.Repository,
	roleRepo role.Repository,
	bundleRepo bundle.Repository,
	log *logger.Logger,
	opts ...AccessServiceOption,
) *AccessService {
	s := &AccessService{
		assignmentRepo: assignmentRepo,
		roleRepo:       roleRepo,
		bundleRepo:     bundleRepo,
		resolver:       access.NewResolver(),
		logger:         log.With("service", "access"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessServiceOption is a functional option for AccessService.
type AccessServiceOption func(*AccessService)

// WithAccessCacheService sets the resolution cache.
func WithAccessCacheService(cacheSvc *PermissionCacheService) AccessServiceOption {
	return func(s *AccessService) {
		s.cacheSvc = cacheSvc
	}
}

// ResolveInput identifies the scope tuple to resolve.
type ResolveInput struct {
	UserID         string  `json:"user_id" validate:"required,uuid"`
	TenantID       string  `json:"tenant_id" validate:"required,uuid"`
	RelationshipID *string `json:"relationship_id" validate:"omitempty,uuid"`
}

// Resolve computes the effective permission set for the exact scope
// tuple. Results are cached per tuple; a cache failure falls back to the
// database silently.
func (s *AccessService) Resolve(ctx context.Context, input ResolveInput) (permission.Set, error) {
	userID, err := shared.IDFromString(input.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id format", shared.ErrValidation)
	}
	tenantID, err := shared.IDFromString(input.TenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id format", shared.ErrValidation)
	}
	var relationshipID *shared.ID
	if input.RelationshipID != nil {
		id, err := shared.IDFromString(*input.RelationshipID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid relationship id format", shared.ErrValidation)
		}
		relationshipID = &id
	}

	return s.resolveScope(ctx, userID, tenantID, relationshipID)
}

// ResolveScope is Resolve for callers that already hold parsed IDs
// (write services performing acting-admin authority checks).
func (s *AccessService) ResolveScope(ctx context.Context, userID, tenantID shared.ID, relationshipID *shared.ID) (permission.Set, error) {
	return s.resolveScope(ctx, userID, tenantID, relationshipID)
}

func (s *AccessService) resolveScope(ctx context.Context, userID, tenantID shared.ID, relationshipID *shared.ID) (permission.Set, error) {
	start := time.Now()

	if set, ok := s.cacheSvc.Get(ctx, tenantID, userID, relationshipID); ok {
		metrics.ResolutionsTotal.WithLabelValues(tenantID.String(), "cache").Inc()
		metrics.ResolutionDuration.WithLabelValues("cache").Observe(time.Since(start).Seconds())
		return set, nil
	}

	in, err := s.loadResolverInput(ctx, userID, tenantID, relationshipID)
	if err != nil {
		return nil, err
	}

	set := s.resolver.Resolve(in)

	s.cacheSvc.Set(ctx, tenantID, userID, relationshipID, set)
	metrics.ResolutionsTotal.WithLabelValues(tenantID.String(), "database").Inc()
	metrics.ResolutionDuration.WithLabelValues("database").Observe(time.Since(start).Seconds())

	return set, nil
}

// HasPermission reports whether the scope tuple resolves to a set that
// contains the permission key.
func (s *AccessService) HasPermission(ctx context.Context, input ResolveInput, key string) (bool, error) {
	parsed, ok := permission.Parse(key)
	if !ok {
		return false, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, key)
	}

	set, err := s.Resolve(ctx, input)
	if err != nil {
		return false, err
	}

	return access.HasPermission(set, parsed), nil
}

func (s *AccessService) loadResolverInput(ctx context.Context, userID, tenantID shared.ID, relationshipID *shared.ID) (access.Input, error) {
	in := access.Input{RelationshipID: relationshipID}

	scope := assignment.ScopeKey{UserID: userID, TenantID: tenantID, RelationshipID: relationshipID}
	a, err := s.assignmentRepo.GetActiveByScope(ctx, scope)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return in, fmt.Errorf("failed to load assignment: %w", err)
		}
		// No assignment for the exact tuple resolves to the empty set.
		return in, nil
	}
	in.Assignment = a

	r, err := s.roleRepo.GetByID(ctx, a.RoleID())
	if err != nil {
		return in, fmt.Errorf("failed to load role: %w", err)
	}
	in.Role = r

	roleBundles, err := s.bundleRepo.ListActiveForRole(ctx, a.RoleID())
	if err != nil {
		return in, fmt.Errorf("failed to load role bundles: %w", err)
	}
	in.RoleBundles = roleBundles

	userBundles, bundles, err := s.bundleRepo.ListActiveForUser(ctx, userID, tenantID)
	if err != nil {
		return in, fmt.Errorf("failed to load user bundles: %w", err)
	}
	in.UserBundles = userBundles
	in.Bundles = bundles

	overrides, err := s.assignmentRepo.ListActiveOverrides(ctx, userID, tenantID)
	if err != nil {
		return in, fmt.Errorf("failed to load overrides: %w", err)
	}
	in.Overrides = overrides

	return in, nil
}
