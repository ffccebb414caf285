// Package routes registers all HTTP routes for the API.
package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealgrid/api/internal/app"
	infrahttp "github.com/dealgrid/api/internal/infra/http"
	"github.com/dealgrid/api/internal/infra/http/handler"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/jwt"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health     *handler.HealthHandler
	Catalog    *handler.CatalogHandler
	Tenant     *handler.TenantHandler
	Grant      *handler.GrantHandler
	Role       *handler.RoleHandler
	Bundle     *handler.BundleHandler
	Assignment *handler.AssignmentHandler
	Access     *handler.AccessHandler
	Audit      *handler.AuditHandler
}

// Deps holds the cross-cutting dependencies routes need: the token
// validator for authentication and the access service for route-level
// permission gates.
type Deps struct {
	JWT    *jwt.Generator
	Access *app.AccessService
}

// Register registers all application routes.
func Register(r Router, h Handlers, deps Deps) {
	// Public endpoints.
	r.GET("/health", h.Health.Health)
	r.GET("/healthz", h.Health.Health)
	r.GET("/ready", h.Health.Ready)
	r.GET("/metrics", promhttp.Handler().ServeHTTP)

	auth := middleware.Authenticate(deps.JWT)
	require := func(key permission.Key) Middleware {
		return middleware.Require(deps.Access, key)
	}

	r.Group("/api/v1", func(api Router) {
		// Permission catalog. Read-only and identical for every tenant.
		api.GET("/permissions", h.Catalog.List)
		api.POST("/permissions/expand", h.Catalog.Expand)

		// Self-service resolution for the calling session.
		api.GET("/access/permissions", h.Access.Me)
		api.POST("/access/check", h.Access.Check)
		api.POST("/access/resolve", h.Access.Resolve, require(permission.RolesView))

		// Platform administration: tenant lifecycle and grants.
		api.POST("/tenants", h.Tenant.Create, require(permission.TenantsManage))
		api.GET("/tenants", h.Tenant.List, require(permission.TenantsManage))
		api.GET("/tenants/{tenantId}", h.Tenant.Get)
		api.DELETE("/tenants/{tenantId}", h.Tenant.Deactivate, require(permission.TenantsManage))

		api.GET("/tenants/{tenantId}/grants", h.Grant.List, require(permission.GrantsManage))
		api.POST("/tenants/{tenantId}/grants", h.Grant.Grant, require(permission.GrantsManage))
		api.PUT("/tenants/{tenantId}/grants", h.Grant.Replace, require(permission.GrantsManage))
		api.DELETE("/tenants/{tenantId}/grants/{permission}", h.Grant.Revoke, require(permission.GrantsManage))

		// Inter-tenant relationships.
		api.POST("/relationships", h.Tenant.CreateRelationship, require(permission.PartnersManage))
		api.GET("/relationships/{relationshipId}", h.Tenant.GetRelationship, require(permission.PartnersView))
		api.DELETE("/relationships/{relationshipId}", h.Tenant.DeactivateRelationship, require(permission.PartnersManage))
		api.GET("/tenants/{tenantId}/relationships", h.Tenant.ListRelationships, require(permission.PartnersView))

		// Roles, scoped to the session tenant.
		api.GET("/roles", h.Role.List, require(permission.RolesView))
		api.POST("/roles", h.Role.Create, require(permission.RolesManage))
		api.GET("/roles/{roleId}", h.Role.Get, require(permission.RolesView))
		api.PATCH("/roles/{roleId}", h.Role.Update, require(permission.RolesManage))
		api.DELETE("/roles/{roleId}", h.Role.Delete, require(permission.RolesManage))
		api.POST("/roles/{roleId}/bundles/{bundleId}", h.Role.AttachBundle, require(permission.RolesManage))
		api.DELETE("/roles/{roleId}/bundles/{bundleId}", h.Role.DetachBundle, require(permission.RolesManage))

		// Bundles.
		api.GET("/bundles", h.Bundle.List, require(permission.BundlesView))
		api.POST("/bundles", h.Bundle.Create, require(permission.BundlesManage))
		api.GET("/bundles/{bundleId}", h.Bundle.Get, require(permission.BundlesView))
		api.PATCH("/bundles/{bundleId}", h.Bundle.Update, require(permission.BundlesManage))
		api.DELETE("/bundles/{bundleId}", h.Bundle.Delete, require(permission.BundlesManage))
		api.POST("/bundles/assignments", h.Bundle.AssignToUser, require(permission.BundlesManage))
		api.DELETE("/bundles/assignments/{assignmentId}", h.Bundle.UnassignFromUser, require(permission.BundlesManage))

		// Role assignments.
		api.GET("/assignments", h.Assignment.List, require(permission.RolesView))
		api.POST("/assignments", h.Assignment.Create, require(permission.RolesAssign))
		api.GET("/assignments/{assignmentId}", h.Assignment.Get, require(permission.RolesView))
		api.PATCH("/assignments/{assignmentId}", h.Assignment.Update, require(permission.RolesAssign))
		api.DELETE("/assignments/{assignmentId}", h.Assignment.Remove, require(permission.RolesAssign))

		// Audit trail.
		api.GET("/audit-logs", h.Audit.List)
	}, auth)
}
