package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// BundleRepository implements bundle.Repository using PostgreSQL.
type BundleRepository struct {
	db *DB
}

// NewBundleRepository creates a new BundleRepository.
func NewBundleRepository(db *DB) *BundleRepository {
	return &BundleRepository{db: db}
}

// Create persists a bundle with its permission rows.
func (r *BundleRepository) Create(ctx context.Context, b *bundle.Bundle) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO bundles (id, name, description, scope_tenant_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.ExecContext(ctx, query,
			b.ID().String(),
			b.Name(),
			nullString(b.Description()),
			nullID(b.ScopeTenantID()),
			b.Status().String(),
			b.CreatedAt(),
			b.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: bundle %q already exists in this scope", shared.ErrConflict, b.Name())
			}
			return fmt.Errorf("failed to create bundle: %w", err)
		}

		return insertPermissionsBatch(ctx, tx, "bundle_permissions", "bundle_id", b.ID().String(), b.Permissions())
	})
}

// GetByID retrieves a bundle by its ID.
func (r *BundleRepository) GetByID(ctx context.Context, id shared.ID) (*bundle.Bundle, error) {
	query := `
		SELECT id, name, description, scope_tenant_id, status, created_at, updated_at
		FROM bundles
		WHERE id = $1
	`

	b, err := r.scanBundle(ctx, r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: bundle %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}

	return b, nil
}

// ListForTenant returns global bundles plus the tenant's own.
func (r *BundleRepository) ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*bundle.Bundle, error) {
	query := `
		SELECT id, name, description, scope_tenant_id, status, created_at, updated_at
		FROM bundles
		WHERE (scope_tenant_id IS NULL OR scope_tenant_id = $1)
	`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY scope_tenant_id NULLS FIRST, name`

	rows, err := r.db.QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	defer rows.Close()

	var bundles []*bundle.Bundle
	for rows.Next() {
		b, err := r.scanBundle(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}

	return bundles, rows.Err()
}

// Update persists bundle fields and replaces its permission rows.
func (r *BundleRepository) Update(ctx context.Context, b *bundle.Bundle) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE bundles
			SET name = $2, description = $3, status = $4, updated_at = $5
			WHERE id = $1
		`

		result, err := tx.ExecContext(ctx, query,
			b.ID().String(),
			b.Name(),
			nullString(b.Description()),
			b.Status().String(),
			b.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to update bundle: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: bundle %s", shared.ErrNotFound, b.ID())
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bundle_permissions WHERE bundle_id = $1`, b.ID().String(),
		); err != nil {
			return fmt.Errorf("failed to clear bundle permissions: %w", err)
		}

		return insertPermissionsBatch(ctx, tx, "bundle_permissions", "bundle_id", b.ID().String(), b.Permissions())
	})
}

// Delete hard-deletes the bundle and its permission rows. Callers decide
// between hard delete and soft deactivation based on active references.
func (r *BundleRepository) Delete(ctx context.Context, id shared.ID) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bundle_permissions WHERE bundle_id = $1`, id.String(),
		); err != nil {
			return fmt.Errorf("failed to delete bundle permissions: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE id = $1`, id.String())
		if err != nil {
			return fmt.Errorf("failed to delete bundle: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: bundle %s", shared.ErrNotFound, id)
		}

		return nil
	})
}

// CountActiveReferences returns active role attachments plus active user
// assignments referencing the bundle.
func (r *BundleRepository) CountActiveReferences(ctx context.Context, bundleID shared.ID) (int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM role_bundles WHERE bundle_id = $1 AND status = 'active') +
			(SELECT COUNT(*) FROM user_bundles WHERE bundle_id = $1 AND status = 'active')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, bundleID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bundle references: %w", err)
	}

	return count, nil
}

// AttachToRole records a role attachment.
func (r *BundleRepository) AttachToRole(ctx context.Context, att *bundle.RoleAttachment) error {
	query := `
		INSERT INTO role_bundles (role_id, bundle_id, status, attached_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		att.RoleID.String(),
		att.BundleID.String(),
		att.Status.String(),
		att.AttachedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return bundle.ErrAlreadyAttached
		}
		return fmt.Errorf("failed to attach bundle to role: %w", err)
	}

	return nil
}

// DetachFromRole deactivates a role attachment.
func (r *BundleRepository) DetachFromRole(ctx context.Context, roleID, bundleID shared.ID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE role_bundles SET status = 'inactive' WHERE role_id = $1 AND bundle_id = $2 AND status = 'active'`,
		roleID.String(), bundleID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to detach bundle from role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: bundle %s is not attached to role %s", shared.ErrNotFound, bundleID, roleID)
	}

	return nil
}

// ListActiveForRole returns the bundles actively attached to a role.
func (r *BundleRepository) ListActiveForRole(ctx context.Context, roleID shared.ID) ([]*bundle.Bundle, error) {
	query := `
		SELECT b.id, b.name, b.description, b.scope_tenant_id, b.status, b.created_at, b.updated_at
		FROM bundles b
		JOIN role_bundles rb ON rb.bundle_id = b.id
		WHERE rb.role_id = $1 AND rb.status = 'active'
		ORDER BY b.name
	`

	rows, err := r.db.QueryContext(ctx, query, roleID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list role bundles: %w", err)
	}
	defer rows.Close()

	var bundles []*bundle.Bundle
	for rows.Next() {
		b, err := r.scanBundle(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}

	return bundles, rows.Err()
}

// AssignToUser records a direct user bundle assignment.
func (r *BundleRepository) AssignToUser(ctx context.Context, ua *bundle.UserAssignment) error {
	query := `
		INSERT INTO user_bundles (id, user_id, tenant_id, bundle_id, relationship_id, status, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		ua.ID.String(),
		ua.UserID.String(),
		ua.TenantID.String(),
		ua.BundleID.String(),
		nullID(ua.RelationshipID),
		ua.Status.String(),
		ua.AssignedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return bundle.ErrAlreadyAssigned
		}
		return fmt.Errorf("failed to assign bundle to user: %w", err)
	}

	return nil
}

// UnassignFromUser deactivates a user bundle assignment and returns the
// deactivated row.
func (r *BundleRepository) UnassignFromUser(ctx context.Context, id shared.ID) (*bundle.UserAssignment, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE user_bundles SET status = 'inactive'
		 WHERE id = $1 AND status = 'active'
		 RETURNING id, user_id, tenant_id, bundle_id, relationship_id, status, assigned_at`,
		id.String(),
	)

	ua, err := scanUserAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user bundle assignment %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to unassign bundle: %w", err)
	}

	return ua, nil
}

// ListActiveForUser returns active user assignments of the user in the
// tenant, with each referenced bundle loaded.
func (r *BundleRepository) ListActiveForUser(ctx context.Context, userID, tenantID shared.ID) ([]*bundle.UserAssignment, map[shared.ID]*bundle.Bundle, error) {
	query := `
		SELECT id, user_id, tenant_id, bundle_id, relationship_id, status, assigned_at
		FROM user_bundles
		WHERE user_id = $1 AND tenant_id = $2 AND status = 'active'
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String(), tenantID.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list user bundles: %w", err)
	}
	defer rows.Close()

	var assignments []*bundle.UserAssignment
	for rows.Next() {
		ua, err := scanUserAssignment(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan user bundle: %w", err)
		}
		assignments = append(assignments, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	bundles := make(map[shared.ID]*bundle.Bundle, len(assignments))
	for _, ua := range assignments {
		if _, ok := bundles[ua.BundleID]; ok {
			continue
		}
		b, err := r.GetByID(ctx, ua.BundleID)
		if err != nil {
			return nil, nil, err
		}
		bundles[ua.BundleID] = b
	}

	return assignments, bundles, nil
}

func (r *BundleRepository) scanBundle(ctx context.Context, row rowScanner) (*bundle.Bundle, error) {
	var (
		id            string
		name          string
		description   sql.NullString
		scopeTenantID sql.NullString
		status        string
		createdAt     time.Time
		updatedAt     time.Time
	)

	if err := row.Scan(&id, &name, &description, &scopeTenantID, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	bundleID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid bundle id %q: %w", id, err)
	}
	bundleStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	permRows, err := r.db.QueryContext(ctx,
		`SELECT permission FROM bundle_permissions WHERE bundle_id = $1 ORDER BY permission`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundle permissions: %w", err)
	}
	permissions, err := permissionsFromRows(permRows)
	if err != nil {
		return nil, err
	}

	return bundle.Reconstruct(
		bundleID, name, nullStringValue(description), parseNullID(scopeTenantID),
		bundleStatus, permissions, createdAt, updatedAt,
	), nil
}

func scanUserAssignment(row rowScanner) (*bundle.UserAssignment, error) {
	var (
		id             string
		userID         string
		tenantID       string
		bundleID       string
		relationshipID sql.NullString
		status         string
		assignedAt     time.Time
	)

	if err := row.Scan(&id, &userID, &tenantID, &bundleID, &relationshipID, &status, &assignedAt); err != nil {
		return nil, err
	}

	uaID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user bundle id %q: %w", id, err)
	}
	uaUserID, err := shared.IDFromString(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	uaTenantID, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	uaBundleID, err := shared.IDFromString(bundleID)
	if err != nil {
		return nil, fmt.Errorf("invalid bundle id %q: %w", bundleID, err)
	}
	uaStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return &bundle.UserAssignment{
		ID:             uaID,
		UserID:         uaUserID,
		TenantID:       uaTenantID,
		BundleID:       uaBundleID,
		RelationshipID: parseNullID(relationshipID),
		Status:         uaStatus,
		AssignedAt:     assignedAt,
	}, nil
}
