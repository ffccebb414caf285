package main

import (
	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/config"
	"github.com/dealgrid/api/internal/infra/redis"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/logger"
)

// Services holds all service instances.
type Services struct {
	Audit      *app.AuditService
	Catalog    *app.CatalogService
	Tenant     *app.TenantService
	Grant      *app.GrantService
	Role       *app.RoleService
	Bundle     *app.BundleService
	Assignment *app.AssignmentService
	Access     *app.AccessService
	PermCache  *app.PermissionCacheService
}

// ServiceDeps carries everything services need at construction time.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
}

// NewServices wires the application services. The mutation services
// share one audit service and, when caching is enabled, one permission
// cache so every permission-changing write invalidates the affected
// resolution entries.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos
	registry := permission.MustNewRegistry()

	s := &Services{}

	s.Audit = app.NewAuditService(repos.Audit, log)
	s.Catalog = app.NewCatalogService(registry, log)

	if cfg.Cache.Enabled {
		permCache, err := app.NewPermissionCacheService(deps.RedisClient, cfg.Cache.ResolutionTTL, log)
		if err != nil {
			return nil, err
		}
		s.PermCache = permCache
	}

	accessOpts := []app.AccessServiceOption{}
	grantOpts := []app.GrantServiceOption{app.WithGrantAuditService(s.Audit)}
	roleOpts := []app.RoleServiceOption{app.WithRoleAuditService(s.Audit)}
	bundleOpts := []app.BundleServiceOption{app.WithBundleAuditService(s.Audit)}
	assignmentOpts := []app.AssignmentServiceOption{app.WithAssignmentAuditService(s.Audit)}

	if s.PermCache != nil {
		accessOpts = append(accessOpts, app.WithAccessCacheService(s.PermCache))
		grantOpts = append(grantOpts, app.WithGrantCacheService(s.PermCache))
		roleOpts = append(roleOpts, app.WithRoleCacheService(s.PermCache))
		bundleOpts = append(bundleOpts, app.WithBundleCacheService(s.PermCache))
		assignmentOpts = append(assignmentOpts, app.WithAssignmentCacheService(s.PermCache))
	}

	s.Access = app.NewAccessService(repos.Assignment, repos.Role, repos.Bundle, log, accessOpts...)
	s.Tenant = app.NewTenantService(repos.Tenant, repos.Relationship, log, app.WithTenantAuditService(s.Audit))
	s.Grant = app.NewGrantService(repos.Grant, repos.Tenant, registry, log, grantOpts...)
	s.Role = app.NewRoleService(repos.Role, repos.Bundle, s.Grant, s.Access, registry, log, roleOpts...)
	s.Bundle = app.NewBundleService(repos.Bundle, repos.Relationship, registry, log, bundleOpts...)
	s.Assignment = app.NewAssignmentService(repos.Assignment, repos.Role, repos.Relationship, s.Access, log, assignmentOpts...)

	return s, nil
}
