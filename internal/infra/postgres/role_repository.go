package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// RoleRepository implements role.Repository using PostgreSQL.
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create persists a role together with its permission rows.
func (r *RoleRepository) Create(ctx context.Context, ro *role.Role) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO roles (id, tenant_id, name, description, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.ExecContext(ctx, query,
			ro.ID().String(),
			ro.TenantID().String(),
			ro.Name(),
			nullString(ro.Description()),
			ro.Status().String(),
			nullID(ro.CreatedBy()),
			ro.CreatedAt(),
			ro.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return role.ErrNameExists
			}
			return fmt.Errorf("failed to create role: %w", err)
		}

		return insertPermissionsBatch(ctx, tx, "role_permissions", "role_id", ro.ID().String(), ro.Permissions())
	})
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id shared.ID) (*role.Role, error) {
	query := `
		SELECT id, tenant_id, name, description, status, created_by, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	ro, err := r.scanRole(ctx, r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return ro, nil
}

// GetActiveByName retrieves the tenant's active role with the given name.
func (r *RoleRepository) GetActiveByName(ctx context.Context, tenantID shared.ID, name string) (*role.Role, error) {
	query := `
		SELECT id, tenant_id, name, description, status, created_by, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 AND name = $2 AND status = 'active'
	`

	ro, err := r.scanRole(ctx, r.db.QueryRowContext(ctx, query, tenantID.String(), name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}

	return ro, nil
}

// ListForTenant returns the tenant's roles.
func (r *RoleRepository) ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*role.Role, error) {
	query := `
		SELECT id, tenant_id, name, description, status, created_by, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*role.Role
	for rows.Next() {
		ro, err := r.scanRole(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, ro)
	}

	return roles, rows.Err()
}

// Update persists role fields and replaces its permission rows.
// The permission rows are deleted and re-inserted so the stored set is a
// full replacement, never a merge with what was there before.
func (r *RoleRepository) Update(ctx context.Context, ro *role.Role) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE roles
			SET name = $2, description = $3, status = $4, updated_at = $5
			WHERE id = $1
		`

		result, err := tx.ExecContext(ctx, query,
			ro.ID().String(),
			ro.Name(),
			nullString(ro.Description()),
			ro.Status().String(),
			ro.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return role.ErrNameExists
			}
			return fmt.Errorf("failed to update role: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: role %s", shared.ErrNotFound, ro.ID())
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM role_permissions WHERE role_id = $1`, ro.ID().String(),
		); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		return insertPermissionsBatch(ctx, tx, "role_permissions", "role_id", ro.ID().String(), ro.Permissions())
	})
}

// CountActiveAssignments returns the number of active assignments
// referencing the role.
func (r *RoleRepository) CountActiveAssignments(ctx context.Context, roleID shared.ID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE role_id = $1 AND status = 'active'`,
		roleID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	return count, nil
}

func (r *RoleRepository) scanRole(ctx context.Context, row rowScanner) (*role.Role, error) {
	var (
		id          string
		tenantID    string
		name        string
		description sql.NullString
		status      string
		createdBy   sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := row.Scan(&id, &tenantID, &name, &description, &status, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	roleID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id %q: %w", id, err)
	}
	roleTenantID, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	roleStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	permRows, err := r.db.QueryContext(ctx,
		`SELECT permission FROM role_permissions WHERE role_id = $1 ORDER BY permission`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	permissions, err := permissionsFromRows(permRows)
	if err != nil {
		return nil, err
	}

	return role.Reconstruct(
		roleID, roleTenantID, name, nullStringValue(description), roleStatus,
		permissions, createdAt, updatedAt, parseNullID(createdBy),
	), nil
}
