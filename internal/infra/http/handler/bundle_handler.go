package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// BundleHandler handles bundle HTTP requests.
type BundleHandler struct {
	service   *app.BundleService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewBundleHandler creates a new bundle handler.
func NewBundleHandler(svc *app.BundleService, v *validator.Validator, log *logger.Logger) *BundleHandler {
	return &BundleHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// BundleResponse represents a bundle in API responses. Permissions are
// the raw stored keys; dependency expansion happens only at resolution.
type BundleResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ScopeTenantID *string   `json:"scope_tenant_id,omitempty"`
	Global        bool      `json:"global"`
	Permissions   []string  `json:"permissions"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BundleAssignmentResponse represents a user bundle assignment.
type BundleAssignmentResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TenantID       string    `json:"tenant_id"`
	BundleID       string    `json:"bundle_id"`
	RelationshipID *string   `json:"relationship_id,omitempty"`
	Status         string    `json:"status"`
	AssignedAt     time.Time `json:"assigned_at"`
}

func toBundleResponse(b *bundle.Bundle) BundleResponse {
	perms := make([]string, 0, len(b.Permissions()))
	for _, p := range b.Permissions() {
		perms = append(perms, string(p))
	}
	var scope *string
	if b.ScopeTenantID() != nil {
		s := b.ScopeTenantID().String()
		scope = &s
	}
	return BundleResponse{
		ID:            b.ID().String(),
		Name:          b.Name(),
		Description:   b.Description(),
		ScopeTenantID: scope,
		Global:        b.IsGlobal(),
		Permissions:   perms,
		Status:        string(b.Status()),
		CreatedAt:     b.CreatedAt(),
		UpdatedAt:     b.UpdatedAt(),
	}
}

func toBundleAssignmentResponse(a *bundle.UserAssignment) BundleAssignmentResponse {
	var relID *string
	if a.RelationshipID != nil {
		s := a.RelationshipID.String()
		relID = &s
	}
	return BundleAssignmentResponse{
		ID:             a.ID.String(),
		UserID:         a.UserID.String(),
		TenantID:       a.TenantID.String(),
		BundleID:       a.BundleID.String(),
		RelationshipID: relID,
		Status:         string(a.Status),
		AssignedAt:     a.AssignedAt,
	}
}

// CreateBundleRequest represents the request to create a bundle. Omitting
// scope_tenant_id creates a global bundle.
type CreateBundleRequest struct {
	Name          string   `json:"name" validate:"required,min=2,max=100,entity_name"`
	Description   string   `json:"description" validate:"max=500"`
	ScopeTenantID *string  `json:"scope_tenant_id" validate:"omitempty,uuid"`
	Permissions   []string `json:"permissions" validate:"dive,permission_key"`
}

// UpdateBundleRequest represents the request to update a bundle.
type UpdateBundleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100,entity_name"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,permission_key"`
}

// AssignBundleRequest represents the request to grant a bundle directly
// to a user.
type AssignBundleRequest struct {
	UserID         string  `json:"user_id" validate:"required,uuid"`
	BundleID       string  `json:"bundle_id" validate:"required,uuid"`
	RelationshipID *string `json:"relationship_id" validate:"omitempty,uuid"`
}

// Create handles POST /api/v1/bundles
func (h *BundleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.CreateBundleInput{
		Name:          req.Name,
		Description:   req.Description,
		ScopeTenantID: req.ScopeTenantID,
		Permissions:   req.Permissions,
	}

	b, err := h.service.CreateBundle(r.Context(), input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBundleResponse(b))
}

// List handles GET /api/v1/bundles. Returns global bundles plus the
// session tenant's own.
func (h *BundleHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	bundles, err := h.service.ListBundles(r.Context(), tenantID, queryBool(r, "active_only", true))
	if err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	response := make([]BundleResponse, len(bundles))
	for i, b := range bundles {
		response[i] = toBundleResponse(b)
	}
	writeList(w, response, int64(len(response)))
}

// Get handles GET /api/v1/bundles/{bundleId}
func (h *BundleHandler) Get(w http.ResponseWriter, r *http.Request) {
	bundleID := r.PathValue("bundleId")
	if bundleID == "" {
		apierror.BadRequest("Bundle ID is required").WriteJSON(w)
		return
	}

	b, err := h.service.GetBundle(r.Context(), bundleID)
	if err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	writeJSON(w, http.StatusOK, toBundleResponse(b))
}

// Update handles PATCH /api/v1/bundles/{bundleId}
func (h *BundleHandler) Update(w http.ResponseWriter, r *http.Request) {
	bundleID := r.PathValue("bundleId")
	if bundleID == "" {
		apierror.BadRequest("Bundle ID is required").WriteJSON(w)
		return
	}

	var req UpdateBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.UpdateBundleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	}

	b, err := h.service.UpdateBundle(r.Context(), bundleID, input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	writeJSON(w, http.StatusOK, toBundleResponse(b))
}

// Delete handles DELETE /api/v1/bundles/{bundleId}. A referenced bundle
// is deactivated instead of removed.
func (h *BundleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	bundleID := r.PathValue("bundleId")
	if bundleID == "" {
		apierror.BadRequest("Bundle ID is required").WriteJSON(w)
		return
	}

	if err := h.service.DeleteBundle(r.Context(), bundleID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Bundle", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignToUser handles POST /api/v1/bundles/assignments
func (h *BundleHandler) AssignToUser(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	var req AssignBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.AssignBundleInput{
		UserID:         req.UserID,
		TenantID:       tenantID,
		BundleID:       req.BundleID,
		RelationshipID: req.RelationshipID,
	}

	ua, err := h.service.AssignToUser(r.Context(), input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Bundle assignment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBundleAssignmentResponse(ua))
}

// UnassignFromUser handles DELETE /api/v1/bundles/assignments/{assignmentId}
func (h *BundleHandler) UnassignFromUser(w http.ResponseWriter, r *http.Request) {
	assignmentID := r.PathValue("assignmentId")
	if assignmentID == "" {
		apierror.BadRequest("Assignment ID is required").WriteJSON(w)
		return
	}

	if err := h.service.UnassignFromUser(r.Context(), assignmentID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Bundle assignment", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
