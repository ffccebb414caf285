package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// AssignmentHandler handles role assignment HTTP requests.
type AssignmentHandler struct {
	service   *app.AssignmentService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(svc *app.AssignmentService, v *validator.Validator, log *logger.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// AssignmentResponse represents an assignment in API responses.
type AssignmentResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TenantID       string    `json:"tenant_id"`
	RoleID         string    `json:"role_id"`
	RelationshipID *string   `json:"relationship_id,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAssignmentResponse(a *assignment.Assignment) AssignmentResponse {
	var relID *string
	if a.RelationshipID() != nil {
		s := a.RelationshipID().String()
		relID = &s
	}
	return AssignmentResponse{
		ID:             a.ID().String(),
		UserID:         a.UserID().String(),
		TenantID:       a.TenantID().String(),
		RoleID:         a.RoleID().String(),
		RelationshipID: relID,
		Status:         string(a.Status()),
		CreatedAt:      a.CreatedAt(),
		UpdatedAt:      a.UpdatedAt(),
	}
}

// OverrideRequest represents a per-assignment permission override.
type OverrideRequest struct {
	Permission string `json:"permission" validate:"required,permission_key"`
	Effect     string `json:"effect" validate:"required,override_effect"`
	Reason     string `json:"reason" validate:"max=500"`
}

// CreateAssignmentRequest represents the request to assign a role.
type CreateAssignmentRequest struct {
	UserID         string            `json:"user_id" validate:"required,uuid"`
	RoleID         string            `json:"role_id" validate:"required,uuid"`
	RelationshipID *string           `json:"relationship_id" validate:"omitempty,uuid"`
	Overrides      []OverrideRequest `json:"overrides" validate:"dive"`
}

// UpdateAssignmentRequest represents the request to change an
// assignment's role or replace its overrides.
type UpdateAssignmentRequest struct {
	RoleID    *string            `json:"role_id" validate:"omitempty,uuid"`
	Overrides *[]OverrideRequest `json:"overrides" validate:"omitempty,dive"`
}

func toOverrideInputs(reqs []OverrideRequest) []app.OverrideInput {
	inputs := make([]app.OverrideInput, len(reqs))
	for i, o := range reqs {
		inputs[i] = app.OverrideInput{
			Permission: o.Permission,
			Effect:     o.Effect,
			Reason:     o.Reason,
		}
	}
	return inputs
}

// Create handles POST /api/v1/assignments. The acting administrator must
// already hold the whole candidate set at the assignment's scope.
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	var req CreateAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	input := app.CreateAssignmentInput{
		UserID:         req.UserID,
		TenantID:       tenantID,
		RoleID:         req.RoleID,
		RelationshipID: req.RelationshipID,
		Overrides:      toOverrideInputs(req.Overrides),
		ActingAdmin:    userID,
	}

	a, err := h.service.CreateAssignment(r.Context(), input, userID, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Assignment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAssignmentResponse(a))
}

// List handles GET /api/v1/assignments. With a user_id query parameter it
// lists that user's assignments in the session tenant.
func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		apierror.Forbidden("Tenant scope required").WriteJSON(w)
		return
	}

	var (
		assignments []*assignment.Assignment
		err         error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		assignments, err = h.service.ListAssignmentsForUser(r.Context(), userID, tenantID)
	} else {
		assignments, err = h.service.ListAssignmentsForTenant(r.Context(), tenantID, queryBool(r, "active_only", true))
	}
	if err != nil {
		writeServiceError(w, h.logger, "Assignment", err)
		return
	}

	response := make([]AssignmentResponse, len(assignments))
	for i, a := range assignments {
		response[i] = toAssignmentResponse(a)
	}
	writeList(w, response, int64(len(response)))
}

// Get handles GET /api/v1/assignments/{assignmentId}
func (h *AssignmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	assignmentID := r.PathValue("assignmentId")
	if assignmentID == "" {
		apierror.BadRequest("Assignment ID is required").WriteJSON(w)
		return
	}

	a, err := h.service.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		writeServiceError(w, h.logger, "Assignment", err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentResponse(a))
}

// Update handles PATCH /api/v1/assignments/{assignmentId}
func (h *AssignmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	assignmentID := r.PathValue("assignmentId")
	if assignmentID == "" {
		apierror.BadRequest("Assignment ID is required").WriteJSON(w)
		return
	}

	var req UpdateAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	input := app.UpdateAssignmentInput{
		RoleID:      req.RoleID,
		ActingAdmin: userID,
	}
	if req.Overrides != nil {
		inputs := toOverrideInputs(*req.Overrides)
		input.Overrides = &inputs
	}

	a, err := h.service.UpdateAssignment(r.Context(), assignmentID, input, userID, buildAuditContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "Assignment", err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentResponse(a))
}

// Remove handles DELETE /api/v1/assignments/{assignmentId}. Overrides in
// exactly the same scope are deactivated with the assignment.
func (h *AssignmentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	assignmentID := r.PathValue("assignmentId")
	if assignmentID == "" {
		apierror.BadRequest("Assignment ID is required").WriteJSON(w)
		return
	}

	if err := h.service.RemoveAssignment(r.Context(), assignmentID, buildAuditContext(r)); err != nil {
		writeServiceError(w, h.logger, "Assignment", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
