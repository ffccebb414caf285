package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create persists an audit entry.
func (r *AuditRepository) Create(ctx context.Context, e *audit.Entry) error {
	query := `
		INSERT INTO audit_logs (id, tenant_id, actor_id, actor_ip, action, resource_type, resource_id, result, message, metadata, request_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	metadata, err := toJSONB(e.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		e.ID().String(),
		nullID(e.TenantID()),
		nullID(e.ActorID()),
		nullString(e.ActorIP()),
		string(e.Action()),
		string(e.ResourceType()),
		nullString(e.ResourceID()),
		string(e.Result()),
		nullString(e.Message()),
		metadata,
		nullString(e.RequestID()),
		e.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// List returns entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	query := `
		SELECT id, tenant_id, actor_id, actor_ip, action, resource_type, resource_id, result, message, metadata, request_id, timestamp
		FROM audit_logs
	`

	where, args := buildAuditFilter(filter)
	query += where
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Count returns the number of entries matching the filter.
func (r *AuditRepository) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_logs`

	where, args := buildAuditFilter(filter)
	query += where

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	return count, nil
}

func buildAuditFilter(filter audit.Filter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != nil {
		add("tenant_id = $%d", filter.TenantID.String())
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", filter.ActorID.String())
	}
	if filter.Action != nil {
		add("action = $%d", string(*filter.Action))
	}
	if filter.ResourceType != nil {
		add("resource_type = $%d", string(*filter.ResourceType))
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanAuditEntry(row rowScanner) (*audit.Entry, error) {
	var (
		id           string
		tenantID     sql.NullString
		actorID      sql.NullString
		actorIP      sql.NullString
		action       string
		resourceType string
		resourceID   sql.NullString
		result       string
		message      sql.NullString
		metadata     []byte
		requestID    sql.NullString
		timestamp    time.Time
	)

	if err := row.Scan(&id, &tenantID, &actorID, &actorIP, &action, &resourceType, &resourceID, &result, &message, &metadata, &requestID, &timestamp); err != nil {
		return nil, err
	}

	entryID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid audit entry id %q: %w", id, err)
	}

	return audit.Reconstruct(
		entryID,
		parseNullID(tenantID),
		parseNullID(actorID),
		nullStringValue(actorIP),
		audit.Action(action),
		audit.ResourceType(resourceType),
		nullStringValue(resourceID),
		audit.Result(result),
		nullStringValue(message),
		fromJSONB(metadata),
		nullStringValue(requestID),
		timestamp,
	), nil
}
