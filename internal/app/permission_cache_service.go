package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/internal/infra/redis"
	"github.com/dealgrid/api/internal/metrics"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// PermissionCacheService caches resolved permission sets in Redis, keyed
// by the exact (tenant, user, relationship) scope tuple. Every mutation
// that can change effective permissions invalidates the affected keys;
// cache failures degrade to database resolution, never to an error.
type PermissionCacheService struct {
	cache  *redis.Cache[[]string]
	logger *logger.Logger
}

// NewPermissionCacheService creates a new PermissionCacheService.
func NewPermissionCacheService(client *redis.Client, ttl time.Duration, log *logger.Logger) (*PermissionCacheService, error) {
	cache, err := redis.NewCache[[]string](client, "perms", ttl)
	if err != nil {
		return nil, err
	}

	return &PermissionCacheService{
		cache:  cache,
		logger: log.With("service", "permission_cache"),
	}, nil
}

// scopeCacheKey builds the cache key for one scope tuple. The unscoped
// tuple uses "-" so it never collides with a relationship ID.
func scopeCacheKey(tenantID, userID shared.ID, relationshipID *shared.ID) string {
	rel := "-"
	if relationshipID != nil {
		rel = relationshipID.String()
	}
	return fmt.Sprintf("%s:%s:%s", tenantID, userID, rel)
}

// Get returns the cached resolved set for the scope tuple, or ok=false on
// miss or cache failure.
func (s *PermissionCacheService) Get(ctx context.Context, tenantID, userID shared.ID, relationshipID *shared.ID) (permission.Set, bool) {
	if s == nil {
		return nil, false
	}

	keys, err := s.cache.Get(ctx, scopeCacheKey(tenantID, userID, relationshipID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.Warn("permission cache read failed", "error", err)
		}
		return nil, false
	}

	parsed, unknown := permission.FromStrings(*keys)
	if len(unknown) > 0 {
		// Stale entry from an older catalog; treat as a miss.
		return nil, false
	}

	return permission.NewSet(parsed...), true
}

// Set stores the resolved set for the scope tuple.
func (s *PermissionCacheService) Set(ctx context.Context, tenantID, userID shared.ID, relationshipID *shared.ID, set permission.Set) {
	if s == nil {
		return
	}

	if err := s.cache.Set(ctx, scopeCacheKey(tenantID, userID, relationshipID), set.Strings()); err != nil {
		s.logger.Warn("permission cache write failed", "error", err)
	}
}

// InvalidateUser removes every cached scope of the user in the tenant.
// Called on assignment, override and user-bundle changes.
func (s *PermissionCacheService) InvalidateUser(ctx context.Context, tenantID, userID shared.ID, trigger string) {
	if s == nil {
		return
	}

	pattern := fmt.Sprintf("%s:%s:*", tenantID, userID)
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.Warn("permission cache invalidation failed",
			"tenant_id", tenantID.String(),
			"user_id", userID.String(),
			"error", err,
		)
		return
	}

	metrics.ResolutionCacheInvalidations.WithLabelValues(trigger).Inc()
	s.logger.Debug("permission cache invalidated for user",
		"tenant_id", tenantID.String(),
		"user_id", userID.String(),
		"trigger", trigger,
	)
}

// InvalidateTenant removes every cached scope of the tenant. Called on
// grant, role and bundle changes, which can affect any member.
func (s *PermissionCacheService) InvalidateTenant(ctx context.Context, tenantID shared.ID, trigger string) {
	if s == nil {
		return
	}

	pattern := fmt.Sprintf("%s:*", tenantID)
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.Warn("permission cache invalidation failed",
			"tenant_id", tenantID.String(),
			"error", err,
		)
		return
	}

	metrics.ResolutionCacheInvalidations.WithLabelValues(trigger).Inc()
	s.logger.Debug("permission cache invalidated for tenant",
		"tenant_id", tenantID.String(),
		"trigger", trigger,
	)
}

// InvalidateAll removes every cached resolution. Used when a global
// bundle changes, which can affect members of any tenant.
func (s *PermissionCacheService) InvalidateAll(ctx context.Context, trigger string) {
	if s == nil {
		return
	}

	if err := s.cache.DeletePattern(ctx, "*"); err != nil {
		s.logger.Warn("permission cache full invalidation failed", "error", err)
		return
	}

	metrics.ResolutionCacheInvalidations.WithLabelValues(trigger).Inc()
	s.logger.Debug("permission cache fully invalidated", "trigger", trigger)
}
