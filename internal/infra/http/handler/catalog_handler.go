package handler

import (
	"net/http"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// CatalogHandler serves the permission catalog.
type CatalogHandler struct {
	service   *app.CatalogService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(svc *app.CatalogService, v *validator.Validator, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		service:   svc,
		validator: v,
		logger:    log,
	}
}

// List handles GET /api/v1/permissions
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.service.ListCatalog(r.Context())
	writeList(w, entries, int64(len(entries)))
}

// ExpandRequest represents a dependency-expansion preview request.
type ExpandRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,dive,permission_key"`
}

// ExpandResponse carries the transitively closed permission set.
type ExpandResponse struct {
	Permissions []string `json:"permissions"`
	Expanded    []string `json:"expanded"`
}

// Expand handles POST /api/v1/permissions/expand. It previews the
// dependency closure without persisting anything.
func (h *CatalogHandler) Expand(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	expanded, err := h.service.Expand(r.Context(), req.Permissions)
	if err != nil {
		writeServiceError(w, h.logger, "Permission", err)
		return
	}

	writeJSON(w, http.StatusOK, ExpandResponse{
		Permissions: req.Permissions,
		Expanded:    expanded,
	})
}
