package handler

import (
	"net/http"
	"time"

	"github.com/dealgrid/api/internal/app"
	"github.com/dealgrid/api/pkg/apierror"
	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// AuditHandler serves the audit trail.
type AuditHandler struct {
	service *app.AuditService
	logger  *logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(svc *app.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  log,
	}
}

// AuditEntryResponse represents an audit entry in API responses.
type AuditEntryResponse struct {
	ID           string         `json:"id"`
	TenantID     *string        `json:"tenant_id,omitempty"`
	ActorID      *string        `json:"actor_id,omitempty"`
	ActorIP      string         `json:"actor_ip,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Result       string         `json:"result"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

func toAuditEntryResponse(e *audit.Entry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:           e.ID().String(),
		ActorIP:      e.ActorIP(),
		Action:       string(e.Action()),
		ResourceType: string(e.ResourceType()),
		ResourceID:   e.ResourceID(),
		Result:       string(e.Result()),
		Message:      e.Message(),
		Metadata:     e.Metadata(),
		RequestID:    e.RequestID(),
		Timestamp:    e.Timestamp(),
	}
	if e.TenantID() != nil {
		s := e.TenantID().String()
		resp.TenantID = &s
	}
	if e.ActorID() != nil {
		s := e.ActorID().String()
		resp.ActorID = &s
	}
	return resp
}

// List handles GET /api/v1/audit-logs with tenant_id, actor_id, action,
// resource_type, from, to, limit and offset filters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	q := r.URL.Query()
	if raw := q.Get("tenant_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid tenant_id format").WriteJSON(w)
			return
		}
		filter.TenantID = &id
	}
	if raw := q.Get("actor_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid actor_id format").WriteJSON(w)
			return
		}
		filter.ActorID = &id
	}
	if raw := q.Get("action"); raw != "" {
		action := audit.Action(raw)
		filter.Action = &action
	}
	if raw := q.Get("resource_type"); raw != "" {
		resourceType := audit.ResourceType(raw)
		filter.ResourceType = &resourceType
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.BadRequest("Invalid from timestamp, expected RFC3339").WriteJSON(w)
			return
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.BadRequest("Invalid to timestamp, expected RFC3339").WriteJSON(w)
			return
		}
		filter.To = &to
	}

	entries, total, err := h.service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "Audit log", err)
		return
	}

	response := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		response[i] = toAuditEntryResponse(e)
	}
	writeList(w, response, total)
}
