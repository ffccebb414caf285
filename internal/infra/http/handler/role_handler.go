package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// RoleHandler handles role HTTP requests. All routes operate within the
// session's tenant scope.
type RoleHandler struct {
	service   *app.RoleService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(svc *app.RoleService, v *validator.Validator, log *logger.Logger) *RoleHandler {
	return &RoleHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// RoleResponse represents a role in API responses. Permissions are the
// stored, dependency-expanded set.
type RoleResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRoleResponse(rl *role.Role) RoleResponse {
	perms := make([]string, 0, len(rl.Permissions()))
	for _, p := range rl.Permissions() {
		perms = append(perms, string(p))
	}
	return RoleResponse{
		ID:          rl.ID().String(),
		TenantID:    rl.TenantID().String(),
		Name:        rl.Name(),
		Description: rl.Description(),
		Permissions: perms,
		Status:      string(rl.Status()),
		CreatedAt:   rl.CreatedAt(),
		UpdatedAt:   rl.UpdatedAt(),
	}
}

// CreateRoleRequest represents the request to create a role.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=100,entity_name"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,permission_key"`
}

// UpdateRoleRequest represents the request to update a role. A non-nil
// permissions list replaces the stored set wholesale.
type UpdateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100,entity_name"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,permission_key"`
}

// Create handles POST /api/v1/roles
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	var req CreateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	input := app.CreateRoleInput{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		ActingAdmin: userID,
	}

	rl, err := h.service.CreateRole(r.Context(), input, userID, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Role", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoleResponse(rl))
}

// List handles GET /api/v1/roles
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	roles, err := h.service.ListRoles(r.Context(), tenantID, queryBool(r, "active_only", true))
	if err != nil {
		writeServiceError(w, h.logger, "Role", err)
		return
	}

	response := make([]RoleResponse, len(roles))
	for i, rl := range roles {
		response[i] = toRoleResponse(rl)
	}
	writeList(w, response, int64(len(response)))
}

// Get handles GET /api/v1/roles/{roleId}
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("roleId")
	if roleID == "" {
		apierror.BadRequest("Role ID is required").WriteJSON(w)
		return
	}

	rl, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		writeServiceError(w, h.logger, "Role", err)
		return
	}

	writeJSON(w, http.StatusOK, toRoleResponse(rl))
}

// Update handles PATCH /api/v1/roles/{roleId}
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("roleId")
	if roleID == "" {
		apierror.BadRequest("Role ID is required").WriteJSON(w)
		return
	}

	var req UpdateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.UpdateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		ActingAdmin: middleware.GetUserID(r.Context()),
	}

	rl, err := h.service.UpdateRole(r.Context(), roleID, input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Role", err)
		return
	}

	writeJSON(w, http.StatusOK, toRoleResponse(rl))
}

// Delete handles DELETE /api/v1/roles/{roleId}
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("roleId")
	if roleID == "" {
		apierror.BadRequest("Role ID is required").WriteJSON(w)
		return
	}

	if err := h.service.DeleteRole(r.Context(), roleID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Role", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachBundle handles POST /api/v1/roles/{roleId}/bundles/{bundleId}
func (h *RoleHandler) AttachBundle(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("roleId")
	bundleID := r.PathValue("bundleId")
	if roleID == "" || bundleID == "" {
		apierror.BadRequest("Role ID and bundle ID are required").WriteJSON(w)
		return
	}

	if err := h.service.AttachBundle(r.Context(), roleID, bundleID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DetachBundle handles DELETE /api/v1/roles/{roleId}/bundles/{bundleId}
func (h *RoleHandler) DetachBundle(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("roleId")
	bundleID := r.PathValue("bundleId")
	if roleID == "" || bundleID == "" {
		apierror.BadRequest("Role ID and bundle ID are required").WriteJSON(w)
		return
	}

	if err := h.service.DetachBundle(r.Context(), roleID, bundleID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
