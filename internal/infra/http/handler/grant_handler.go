package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// GrantHandler handles tenant grant administration. These operations are
// reserved for the platform owner.
type GrantHandler struct {
	service   *app.GrantService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewGrantHandler creates a new grant handler.
func NewGrantHandler(svc *app.GrantService, v *validator.Validator, log *logger.Logger) *GrantHandler {
	return &GrantHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// GrantResponse represents a tenant grant in API responses.
type GrantResponse struct {
	TenantID   string    `json:"tenant_id"`
	Permission string    `json:"permission"`
	GrantedBy  string    `json:"granted_by"`
	GrantedAt  time.Time `json:"granted_at"`
}

func toGrantResponse(g *grant.TenantGrant) GrantResponse {
	return GrantResponse{
		TenantID:   g.TenantID().String(),
		Permission: string(g.Permission()),
		GrantedBy:  g.GrantedBy().String(),
		GrantedAt:  g.GrantedAt(),
	}
}

// GrantRequest represents the request to grant one permission.
type GrantRequest struct {
	Permission string `json:"permission" validate:"required,permission_key"`
}

// ReplaceGrantsRequest represents the request to replace the grant set.
type ReplaceGrantsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,permission_key"`
}

// List handles GET /api/v1/tenants/{tenantId}/grants
func (h *GrantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	grants, err := h.service.ListGrants(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "Grant", err)
		return
	}

	response := make([]GrantResponse, len(grants))
	for i, g := range grants {
		response[i] = toGrantResponse(g)
	}
	writeList(w, response, int64(len(response)))
}

// Grant handles POST /api/v1/tenants/{tenantId}/grants
func (h *GrantHandler) Grant(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	var req GrantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.GrantInput{
		TenantID:   tenantID,
		Permission: req.Permission,
	}

	grantedBy := middleware.GetUserID(r.Context())
	g, err := h.service.Grant(r.Context(), input, grantedBy, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Grant", err)
		return
	}

	writeJSON(w, http.StatusCreated, toGrantResponse(g))
}

// Revoke handles DELETE /api/v1/tenants/{tenantId}/grants/{permission}
// Revocation cascades: the permission is stripped from every role of the
// tenant atomically.
func (h *GrantHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	permissionKey := r.PathValue("permission")
	if tenantID == "" || permissionKey == "" {
		apierror.BadRequest("Tenant ID and permission are required").WriteJSON(w)
		return
	}

	if err := h.service.Revoke(r.Context(), tenantID, permissionKey, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Grant", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Replace handles PUT /api/v1/tenants/{tenantId}/grants
func (h *GrantHandler) Replace(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	var req ReplaceGrantsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.ReplaceGrantsInput{
		TenantID:    tenantID,
		Permissions: req.Permissions,
	}

	grantedBy := middleware.GetUserID(r.Context())
	if err := h.service.ReplaceAll(r.Context(), input, grantedBy, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Grant", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
