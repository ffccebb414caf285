package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/jwt"
	"github.com/dealgrid/api/pkg/logger"
)

// Auth-related context keys, shared with the logger package so request
// logs carry the user automatically.
const (
	UserIDKey                            = logger.ContextKeyUserID
	TenantIDKey       logger.ContextKey = "tenant_id"
	RelationshipIDKey logger.ContextKey = "relationship_id"
	ClaimsKey         logger.ContextKey = "jwt_claims"
)

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetTenantID extracts the session tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// GetRelationshipID extracts the session relationship scope from context.
// Nil means the session is unscoped.
func GetRelationshipID(ctx context.Context) *string {
	if relID, ok := ctx.Value(RelationshipIDKey).(string); ok && relID != "" {
		return &relID
	}
	return nil
}

// GetClaims extracts the full JWT claims from context.
func GetClaims(ctx context.Context) *jwt.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}

// Authenticate validates the bearer token and stores the session scope
// (user, tenant, optional relationship) in the request context.
func Authenticate(validator *jwt.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				RecordAuthFailure("missing_token")
				apierror.Unauthorized("Missing authorization token").WriteJSON(w)
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				switch {
				case errors.Is(err, jwt.ErrExpiredToken):
					RecordAuthFailure("expired_token")
					apierror.Unauthorized("Token has expired").WriteJSON(w)
				default:
					RecordAuthFailure("invalid_token")
					apierror.Unauthorized("Invalid token").WriteJSON(w)
				}
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, TenantIDKey, claims.TenantID)
			if claims.HasRelationship() {
				ctx = context.WithValue(ctx, RelationshipIDKey, claims.RelationshipID)
			}
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant ensures the session carries a tenant scope.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetTenantID(r.Context()) == "" {
				apierror.Forbidden("Tenant scope required").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require resolves the caller's effective permission set and rejects the
// request when the given key is not held. The resolution runs at the
// session's relationship scope.
func Require(accessSvc *app.AccessService, key permission.Key) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := GetUserID(ctx)
			tenantID := GetTenantID(ctx)
			if userID == "" || tenantID == "" {
				apierror.Unauthorized("Authentication required").WriteJSON(w)
				return
			}

			held, err := accessSvc.HasPermission(ctx, app.ResolveInput{
				UserID:         userID,
				TenantID:       tenantID,
				RelationshipID: GetRelationshipID(ctx),
			}, string(key))
			if err != nil {
				apierror.InternalError(err).WriteJSON(w)
				return
			}
			if !held {
				apierror.Forbidden("Insufficient permissions").
					WithDetails(map[string]any{"missing": []string{string(key)}}).
					WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
