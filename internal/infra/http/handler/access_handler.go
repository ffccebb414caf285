package handler

import (
	"net/http"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// AccessHandler exposes permission resolution and checks.
type AccessHandler struct {
	service   *app.AccessService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAccessHandler creates a new access handler.
func NewAccessHandler(svc *app.AccessService, v *validator.Validator, log *logger.Logger) *AccessHandler {
	return &AccessHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// ResolveResponse carries a resolved effective permission set.
type ResolveResponse struct {
	UserID         string   `json:"user_id"`
	TenantID       string   `json:"tenant_id"`
	RelationshipID *string  `json:"relationship_id,omitempty"`
	Permissions    []string `json:"permissions"`
}

// ResolveRequest resolves an arbitrary user's effective set within the
// session tenant.
type ResolveRequest struct {
	UserID         string  `json:"user_id" validate:"required,uuid"`
	RelationshipID *string `json:"relationship_id" validate:"omitempty,uuid"`
}

// CheckRequest asks whether the session's user holds one permission.
type CheckRequest struct {
	Permission string `json:"permission" validate:"required,permission_key"`
}

// CheckResponse carries the outcome of a permission check.
type CheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// Me handles GET /api/v1/access/permissions. It resolves the calling
// session's effective permission set at its own scope.
func (h *AccessHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tenantID := middleware.GetTenantID(ctx)
	if userID == "" || tenantID == "" {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	relationshipID := middleware.GetRelationshipID(ctx)
	set, err := h.service.Resolve(ctx, app.ResolveInput{
		UserID:         userID,
		TenantID:       tenantID,
		RelationshipID: relationshipID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Permissions", err)
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		UserID:         userID,
		TenantID:       tenantID,
		RelationshipID: relationshipID,
		Permissions:    set.Strings(),
	})
}

// Resolve handles POST /api/v1/access/resolve. Administrators use it to
// inspect another user's effective set within the session tenant.
func (h *AccessHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	var req ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	set, err := h.service.Resolve(r.Context(), app.ResolveInput{
		UserID:         req.UserID,
		TenantID:       tenantID,
		RelationshipID: req.RelationshipID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Permissions", err)
		return
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		UserID:         req.UserID,
		TenantID:       tenantID,
		RelationshipID: req.RelationshipID,
		Permissions:    set.Strings(),
	})
}

// Check handles POST /api/v1/access/check against the calling session.
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	tenantID := middleware.GetTenantID(ctx)
	if userID == "" || tenantID == "" {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	allowed, err := h.service.HasPermission(ctx, app.ResolveInput{
		UserID:         userID,
		TenantID:       tenantID,
		RelationshipID: middleware.GetRelationshipID(ctx),
	}, req.Permission)
	if err != nil {
		writeServiceError(w, h.logger, "Permissions", err)
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		Permission: req.Permission,
		Allowed:    allowed,
	})
}
