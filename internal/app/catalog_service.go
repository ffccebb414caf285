package app

import (
	"context"
	"fmt"

	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// CatalogService exposes the permission catalog and its dependency graph.
// The catalog is compiled in; this service only answers reads.
type CatalogService struct {
	registry *permission.Registry
	logger   *logger.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(registry *permission.Registry, log *logger.Logger) *CatalogService {
	return &CatalogService{
		registry: registry,
		logger:   log.With("service", "catalog"),
	}
}

// PermissionInfo describes one catalog entry with its prerequisites.
type PermissionInfo struct {
	Key      string   `json:"key"`
	Category string   `json:"category"`
	Enabled  bool     `json:"enabled"`
	Requires []string `json:"requires,omitempty"`
}

// ListCatalog returns every catalog entry with its direct prerequisites.
func (s *CatalogService) ListCatalog(_ context.Context) []PermissionInfo {
	defs := permission.Catalog()
	infos := make([]PermissionInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, PermissionInfo{
			Key:      def.Key.String(),
			Category: string(def.Category),
			Enabled:  def.Enabled,
			Requires: permission.ToStrings(s.registry.Requires(def.Key)),
		})
	}
	return infos
}

// Expand previews the dependency expansion of a set of keys without
// writing anything. Unknown keys are rejected.
func (s *CatalogService) Expand(_ context.Context, keys []string) ([]string, error) {
	parsed, unknown := permission.FromStrings(keys)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown permissions: %v", shared.ErrValidation, unknown)
	}

	return s.registry.Expand(parsed).Strings(), nil
}

// Registry returns the underlying dependency registry for the write
// services.
func (s *CatalogService) Registry() *permission.Registry {
	return s.registry
}
