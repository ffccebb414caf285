package app

import (
	"context"

	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/logger"
)

// AuditService handles audit logging operations.
type AuditService struct {
	auditRepo audit.Repository
	logger    *logger.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo audit.Repository, log *logger.Logger) *AuditService {
	return &AuditService{
		auditRepo: repo,
		logger:    log.With("service", "audit"),
	}
}

// AuditContext holds contextual information for audit logging.
type AuditContext struct {
	TenantID  string
	ActorID   string
	ActorIP   string
	RequestID string
}

// AuditEvent represents an audit event to log.
type AuditEvent struct {
	Action       audit.Action
	ResourceType audit.ResourceType
	ResourceID   string
	Result       audit.Result
	Message      string
	Metadata     map[string]any
}

// NewSuccessEvent creates a successful audit event.
func NewSuccessEvent(action audit.Action, resourceType audit.ResourceType, resourceID string) AuditEvent {
	return AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       audit.ResultSuccess,
	}
}

// NewDeniedEvent creates a denied audit event.
func NewDeniedEvent(action audit.Action, resourceType audit.ResourceType, resourceID string) AuditEvent {
	return AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       audit.ResultDenied,
	}
}

// WithMessage sets the event message.
func (e AuditEvent) WithMessage(msg string) AuditEvent {
	e.Message = msg
	return e
}

// WithMetadata adds one metadata key.
func (e AuditEvent) WithMetadata(key string, value any) AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// LogEvent creates and persists an audit log entry.
func (s *AuditService) LogEvent(ctx context.Context, actx AuditContext, event AuditEvent) error {
	entry, err := audit.NewEntry(event.Action, event.ResourceType, event.ResourceID, event.Result)
	if err != nil {
		s.logger.Error("failed to create audit entry", "error", err)
		return err
	}

	if actx.TenantID != "" {
		if tenantID, err := shared.IDFromString(actx.TenantID); err == nil {
			entry.WithTenant(tenantID)
		}
	}
	if actx.ActorID != "" {
		if actorID, err := shared.IDFromString(actx.ActorID); err == nil {
			entry.WithActor(actorID, actx.ActorIP)
		}
	}
	if actx.RequestID != "" {
		entry.WithRequestID(actx.RequestID)
	}
	if event.Message != "" {
		entry.WithMessage(event.Message)
	}
	for k, v := range event.Metadata {
		entry.WithMetadata(k, v)
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist audit entry",
			"error", err,
			"action", event.Action,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
		)
		return err
	}

	s.logger.Info("audit event",
		"action", string(event.Action),
		"resource_type", string(event.ResourceType),
		"resource_id", event.ResourceID,
		"result", string(event.Result),
		"tenant_id", actx.TenantID,
	)

	return nil
}

// ListAuditLogs returns audit entries matching the filter, newest first,
// plus the total count.
func (s *AuditService) ListAuditLogs(ctx context.Context, filter audit.Filter) ([]*audit.Entry, int64, error) {
	entries, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
