// Package handler implements the HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/internal/infra/http/middleware"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/access"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
	"github.com/dealgrid/api/pkg/validator"
)

// ListResponse is the standard envelope for list endpoints.
type ListResponse[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeList writes a list response envelope.
func writeList[T any](w http.ResponseWriter, data []T, total int64) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, http.StatusOK, ListResponse[T]{Data: data, Total: total})
}

// decodeJSON decodes the request body into v, reporting malformed bodies
// as a 400. Returns false when the response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return false
	}
	return true
}

// writeValidationError maps validator failures to a 422 with per-field
// details.
func writeValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// writeServiceError maps the engine's failure taxonomy onto HTTP
// responses. Forbidden and consistency failures carry the exact denied
// or ungranted permission keys so callers can see what was missing.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, resource string, err error) {
	var forbiddenErr *access.ForbiddenError
	var consistencyErr *grant.ConsistencyError

	switch {
	case errors.As(err, &forbiddenErr):
		apierror.Forbidden("Acting administrator lacks the requested permissions").
			WithDetails(map[string]any{"missing": keyStrings(forbiddenErr.Missing)}).
			WriteJSON(w)
	case errors.As(err, &consistencyErr):
		apierror.Consistency("Permissions exceed the tenant's grant",
			map[string]any{"missing": keyStrings(consistencyErr.Missing)}).
			WriteJSON(w)
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound(resource).WriteJSON(w)
	case errors.Is(err, shared.ErrConflict):
		apierror.Conflict(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrBusinessRule):
		apierror.BusinessRule(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation):
		apierror.BadRequest(trimSentinel(err)).WriteJSON(w)
	case errors.Is(err, shared.ErrForbidden):
		apierror.Forbidden("").WriteJSON(w)
	case errors.Is(err, shared.ErrUnauthorized):
		apierror.Unauthorized("").WriteJSON(w)
	default:
		log.Error("service error", "resource", resource, "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}

// trimSentinel strips the wrapped sentinel prefix from an error message.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx != -1 {
		msg = msg[idx+2:]
	}
	return msg
}

func keyStrings(keys []permission.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// buildAuditContext assembles the audit context from the HTTP request.
func buildAuditContext(r *http.Request) app.AuditContext {
	ctx := r.Context()
	return app.AuditContext{
		TenantID:  middleware.GetTenantID(ctx),
		ActorID:   middleware.GetUserID(ctx),
		ActorIP:   r.RemoteAddr,
		RequestID: middleware.GetRequestID(ctx),
	}
}

// queryBool parses a boolean query parameter with a default.
func queryBool(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return parsed
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
