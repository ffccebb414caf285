package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/tenant"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// TenantHandler handles tenant and relationship HTTP requests.
type TenantHandler struct {
	service   *app.TenantService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewTenantHandler creates a new tenant handler.
func NewTenantHandler(svc *app.TenantService, v *validator.Validator, log *logger.Logger) *TenantHandler {
	return &TenantHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// TenantResponse represents a tenant in API responses.
type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RelationshipResponse represents a tenant relationship in API responses.
type RelationshipResponse struct {
	ID           string    `json:"id"`
	FromTenantID string    `json:"from_tenant_id"`
	ToTenantID   string    `json:"to_tenant_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toTenantResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID().String(),
		Name:      t.Name(),
		Kind:      t.Kind().String(),
		Status:    string(t.Status()),
		CreatedAt: t.CreatedAt(),
		UpdatedAt: t.UpdatedAt(),
	}
}

func toRelationshipResponse(rel *tenant.Relationship) RelationshipResponse {
	return RelationshipResponse{
		ID:           rel.ID().String(),
		FromTenantID: rel.FromTenantID().String(),
		ToTenantID:   rel.ToTenantID().String(),
		Kind:         rel.Kind().String(),
		Status:       string(rel.Status()),
		CreatedAt:    rel.CreatedAt(),
	}
}

// CreateTenantRequest represents the request to onboard a tenant.
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100,entity_name"`
	Kind string `json:"kind" validate:"required,tenant_kind"`
}

// Create handles POST /api/v1/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.CreateTenantInput{
		Name: req.Name,
		Kind: req.Kind,
	}

	t, err := h.service.CreateTenant(r.Context(), input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Tenant", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTenantResponse(t))
}

// List handles GET /api/v1/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Tenant", err)
		return
	}

	response := make([]TenantResponse, len(tenants))
	for i, t := range tenants {
		response[i] = toTenantResponse(t)
	}
	writeList(w, response, int64(len(response)))
}

// Get handles GET /api/v1/tenants/{tenantId}
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	t, err := h.service.GetTenant(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "Tenant", err)
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

// Deactivate handles DELETE /api/v1/tenants/{tenantId}
func (h *TenantHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	if err := h.service.DeactivateTenant(r.Context(), tenantID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Tenant", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateRelationshipRequest represents the request to link two tenants.
type CreateRelationshipRequest struct {
	FromTenantID string `json:"from_tenant_id" validate:"required,uuid"`
	ToTenantID   string `json:"to_tenant_id" validate:"required,uuid"`
	Kind         string `json:"kind" validate:"required,relationship_kind"`
}

// CreateRelationship handles POST /api/v1/relationships
func (h *TenantHandler) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req CreateRelationshipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	input := app.CreateRelationshipInput{
		FromTenantID: req.FromTenantID,
		ToTenantID:   req.ToTenantID,
		Kind:         req.Kind,
	}

	rel, err := h.service.CreateRelationship(r.Context(), input, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Relationship", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRelationshipResponse(rel))
}

// GetRelationship handles GET /api/v1/relationships/{relationshipId}
func (h *TenantHandler) GetRelationship(w http.ResponseWriter, r *http.Request) {
	relationshipID := r.PathValue("relationshipId")
	if relationshipID == "" {
		apierror.BadRequest("Relationship ID is required").WriteJSON(w)
		return
	}

	rel, err := h.service.GetRelationship(r.Context(), relationshipID)
	if err != nil {
		writeServiceError(w, h.logger, "Relationship", err)
		return
	}

	writeJSON(w, http.StatusOK, toRelationshipResponse(rel))
}

// ListRelationships handles GET /api/v1/tenants/{tenantId}/relationships
func (h *TenantHandler) ListRelationships(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")
	if tenantID == "" {
		apierror.BadRequest("Tenant ID is required").WriteJSON(w)
		return
	}

	rels, err := h.service.ListRelationships(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, h.logger, "Relationship", err)
		return
	}

	response := make([]RelationshipResponse, len(rels))
	for i, rel := range rels {
		response[i] = toRelationshipResponse(rel)
	}
	writeList(w, response, int64(len(response)))
}

// DeactivateRelationship handles DELETE /api/v1/relationships/{relationshipId}
func (h *TenantHandler) DeactivateRelationship(w http.ResponseWriter, r *http.Request) {
	relationshipID := r.PathValue("relationshipId")
	if relationshipID == "" {
		apierror.BadRequest("Relationship ID is required").WriteJSON(w)
		return
	}

	if err := h.service.DeactivateRelationship(r.Context(), relationshipID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Relationship", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
