package audit

import (
	"context"
	"time"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Filter narrows audit trail queries.
type Filter struct {
	TenantID     *shared.ID
	ActorID      *shared.ID
	Action       *Action
	ResourceType *ResourceType
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Repository defines persistence for the audit trail.
type Repository interface {
	// Create persists an audit entry.
	Create(ctx context.Context, e *Entry) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)
}
