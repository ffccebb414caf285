// Package audit provides the audit trail for permission-engine mutations.
// Every grant, role, bundle and assignment change is recorded with its
// actor, outcome and affected resource.
package audit

import (
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Action represents the type of action performed.
type Action string

const (
	// Tenant actions
	ActionTenantCreated     Action = "tenant.created"
	ActionTenantDeactivated Action = "tenant.deactivated"

	// Relationship actions
	ActionRelationshipCreated     Action = "relationship.created"
	ActionRelationshipDeactivated Action = "relationship.deactivated"

	// Grant actions
	ActionGrantCreated  Action = "grant.created"
	ActionGrantRevoked  Action = "grant.revoked"
	ActionGrantReplaced Action = "grant.replaced"

	// Role actions
	ActionRoleCreated Action = "role.created"
	ActionRoleUpdated Action = "role.updated"
	ActionRoleDeleted Action = "role.deleted"

	// Bundle actions
	ActionBundleCreated    Action = "bundle.created"
	ActionBundleUpdated    Action = "bundle.updated"
	ActionBundleDeleted    Action = "bundle.deleted"
	ActionBundleAttached   Action = "bundle.attached_to_role"
	ActionBundleDetached   Action = "bundle.detached_from_role"
	ActionBundleAssigned   Action = "bundle.assigned_to_user"
	ActionBundleUnassigned Action = "bundle.unassigned_from_user"

	// Assignment actions
	ActionAssignmentCreated Action = "assignment.created"
	ActionAssignmentUpdated Action = "assignment.updated"
	ActionAssignmentRemoved Action = "assignment.removed"

	// Authorization outcomes worth an audit trail of their own
	ActionEscalationDenied Action = "authorization.escalation_denied"
)

// IsValid checks whether the action is known.
func (a Action) IsValid() bool {
	switch a {
	case ActionTenantCreated, ActionTenantDeactivated,
		ActionRelationshipCreated, ActionRelationshipDeactivated,
		ActionGrantCreated, ActionGrantRevoked, ActionGrantReplaced,
		ActionRoleCreated, ActionRoleUpdated, ActionRoleDeleted,
		ActionBundleCreated, ActionBundleUpdated, ActionBundleDeleted,
		ActionBundleAttached, ActionBundleDetached,
		ActionBundleAssigned, ActionBundleUnassigned,
		ActionAssignmentCreated, ActionAssignmentUpdated, ActionAssignmentRemoved,
		ActionEscalationDenied:
		return true
	}
	return false
}

// ResourceType classifies the affected resource.
type ResourceType string

const (
	ResourceTenant       ResourceType = "tenant"
	ResourceRelationship ResourceType = "relationship"
	ResourceGrant        ResourceType = "grant"
	ResourceRole         ResourceType = "role"
	ResourceBundle       ResourceType = "bundle"
	ResourceAssignment   ResourceType = "assignment"
)

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Entry is one audit trail record.
type Entry struct {
	id           shared.ID
	tenantID     *shared.ID
	actorID      *shared.ID
	actorIP      string
	action       Action
	resourceType ResourceType
	resourceID   string
	result       Result
	message      string
	metadata     map[string]any
	requestID    string
	timestamp    time.Time
}

// NewEntry creates an audit entry for an action on a resource.
func NewEntry(action Action, resourceType ResourceType, resourceID string, result Result) (*Entry, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid audit action %q", shared.ErrValidation, action)
	}
	return &Entry{
		id:           shared.NewID(),
		action:       action,
		resourceType: resourceType,
		resourceID:   resourceID,
		result:       result,
		metadata:     make(map[string]any),
		timestamp:    time.Now().UTC(),
	}, nil
}

// Reconstruct recreates an entry from persistence.
func Reconstruct(
	id shared.ID,
	tenantID *shared.ID,
	actorID *shared.ID,
	actorIP string,
	action Action,
	resourceType ResourceType,
	resourceID string,
	result Result,
	message string,
	metadata map[string]any,
	requestID string,
	timestamp time.Time,
) *Entry {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Entry{
		id:           id,
		tenantID:     tenantID,
		actorID:      actorID,
		actorIP:      actorIP,
		action:       action,
		resourceType: resourceType,
		resourceID:   resourceID,
		result:       result,
		message:      message,
		metadata:     metadata,
		requestID:    requestID,
		timestamp:    timestamp,
	}
}

// ID returns the entry ID.
func (e *Entry) ID() shared.ID { return e.id }

// TenantID returns the tenant context, if any.
func (e *Entry) TenantID() *shared.ID { return e.tenantID }

// ActorID returns the acting user, if known.
func (e *Entry) ActorID() *shared.ID { return e.actorID }

// ActorIP returns the actor's IP address.
func (e *Entry) ActorIP() string { return e.actorIP }

// Action returns the audited action.
func (e *Entry) Action() Action { return e.action }

// ResourceType returns the affected resource type.
func (e *Entry) ResourceType() ResourceType { return e.resourceType }

// ResourceID returns the affected resource ID.
func (e *Entry) ResourceID() string { return e.resourceID }

// Result returns the outcome.
func (e *Entry) Result() Result { return e.result }

// Message returns the human-readable description.
func (e *Entry) Message() string { return e.message }

// Metadata returns additional context.
func (e *Entry) Metadata() map[string]any { return e.metadata }

// RequestID returns the request tracing ID.
func (e *Entry) RequestID() string { return e.requestID }

// Timestamp returns when the entry was recorded.
func (e *Entry) Timestamp() time.Time { return e.timestamp }

// WithTenant sets the tenant context.
func (e *Entry) WithTenant(tenantID shared.ID) *Entry {
	e.tenantID = &tenantID
	return e
}

// WithActor sets the acting user and source IP.
func (e *Entry) WithActor(actorID shared.ID, ip string) *Entry {
	e.actorID = &actorID
	e.actorIP = ip
	return e
}

// WithMessage sets the human-readable description.
func (e *Entry) WithMessage(msg string) *Entry {
	e.message = msg
	return e
}

// WithMetadata adds one metadata key.
func (e *Entry) WithMetadata(key string, value any) *Entry {
	e.metadata[key] = value
	return e
}

// WithRequestID sets the request tracing ID.
func (e *Entry) WithRequestID(requestID string) *Entry {
	e.requestID = requestID
	return e
}
