package main

import (
	"github.com/dealgrid/api/internal/infra/http/handler"
	"github.com/dealgrid/api/internal/infra/http/routes"
	"github.com/dealgrid/api/internal/infra/postgres"
	"github.com/dealgrid/api/internal/infra/redis"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// HandlerDeps carries everything handlers need at construction time.
type HandlerDeps struct {
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svcs := deps.Services

	return routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(handler.PingerFunc(deps.DB.HealthCheck)),
			handler.WithRedis(deps.RedisClient),
		),
		Catalog:    handler.NewCatalogHandler(svcs.Catalog, v, log),
		Tenant:     handler.NewTenantHandler(svcs.Tenant, v, log),
		Grant:      handler.NewGrantHandler(svcs.Grant, v, log),
		Role:       handler.NewRoleHandler(svcs.Role, v, log),
		Bundle:     handler.NewBundleHandler(svcs.Bundle, v, log),
		Assignment: handler.NewAssignmentHandler(svcs.Assignment, v, log),
		Access:     handler.NewAccessHandler(svcs.Access, v, log),
		Audit:      handler.NewAuditHandler(svcs.Audit, log),
	}
}
