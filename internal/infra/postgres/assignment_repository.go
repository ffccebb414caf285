package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// AssignmentRepository implements assignment.Repository using PostgreSQL.
//
// Scope tuples match exactly: NULL relationship_id is its own scope. The
// partial unique index on active assignments uses COALESCE so (user,
// tenant, NULL) and (user, tenant, rel) are distinct rows.
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// CreateWithOverrides persists an assignment plus its override rows atomically.
func (r *AssignmentRepository) CreateWithOverrides(ctx context.Context, a *assignment.Assignment, overrides []*assignment.Override) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO assignments (id, user_id, tenant_id, role_id, relationship_id, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		_, err := tx.ExecContext(ctx, query,
			a.ID().String(),
			a.UserID().String(),
			a.TenantID().String(),
			a.RoleID().String(),
			nullID(a.RelationshipID()),
			a.Status().String(),
			a.CreatedBy().String(),
			a.CreatedAt(),
			a.UpdatedAt(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return assignment.ErrDuplicateScope
			}
			return fmt.Errorf("failed to create assignment: %w", err)
		}

		return insertOverridesTx(ctx, tx, overrides)
	})
}

// GetByID retrieves an assignment by its ID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id shared.ID) (*assignment.Assignment, error) {
	query := assignmentSelect + ` WHERE id = $1`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: assignment %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return a, nil
}

// GetActiveByScope retrieves the single active assignment for the exact
// scope tuple.
func (r *AssignmentRepository) GetActiveByScope(ctx context.Context, scope assignment.ScopeKey) (*assignment.Assignment, error) {
	query := assignmentSelect + `
		WHERE user_id = $1 AND tenant_id = $2
		  AND relationship_id IS NOT DISTINCT FROM $3
		  AND status = 'active'
	`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query,
		scope.UserID.String(), scope.TenantID.String(), nullID(scope.RelationshipID),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active assignment for this scope", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get assignment by scope: %w", err)
	}

	return a, nil
}

// ListForUser returns the user's assignments in a tenant.
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID, tenantID shared.ID) ([]*assignment.Assignment, error) {
	query := assignmentSelect + `
		WHERE user_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
	`

	return r.queryAssignments(ctx, query, userID.String(), tenantID.String())
}

// ListForTenant returns the tenant's assignments.
func (r *AssignmentRepository) ListForTenant(ctx context.Context, tenantID shared.ID, activeOnly bool) ([]*assignment.Assignment, error) {
	query := assignmentSelect + ` WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at DESC`

	return r.queryAssignments(ctx, query, tenantID.String())
}

// UpdateWithOverrides persists assignment changes and optionally replaces
// the override set of the assignment's scope tuple.
func (r *AssignmentRepository) UpdateWithOverrides(ctx context.Context, a *assignment.Assignment, replaceOverrides bool, overrides []*assignment.Override) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE assignments
			SET role_id = $2, status = $3, updated_at = $4
			WHERE id = $1
		`

		result, err := tx.ExecContext(ctx, query,
			a.ID().String(),
			a.RoleID().String(),
			a.Status().String(),
			a.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to update assignment: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: assignment %s", shared.ErrNotFound, a.ID())
		}

		if !replaceOverrides {
			return nil
		}

		if err := deactivateScopeOverridesTx(ctx, tx, a.Scope()); err != nil {
			return err
		}

		return insertOverridesTx(ctx, tx, overrides)
	})
}

// DeactivateCascade deactivates the assignment and exactly the active
// overrides sharing its scope tuple.
func (r *AssignmentRepository) DeactivateCascade(ctx context.Context, a *assignment.Assignment) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = 'inactive', updated_at = $2 WHERE id = $1 AND status = 'active'`,
			a.ID().String(), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to deactivate assignment: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: active assignment %s", shared.ErrNotFound, a.ID())
		}

		return deactivateScopeOverridesTx(ctx, tx, a.Scope())
	})
}

// ListActiveOverrides returns the active overrides of the user in the tenant.
func (r *AssignmentRepository) ListActiveOverrides(ctx context.Context, userID, tenantID shared.ID) ([]*assignment.Override, error) {
	query := overrideSelect + `
		WHERE user_id = $1 AND tenant_id = $2 AND status = 'active'
		ORDER BY created_at
	`

	return r.queryOverrides(ctx, query, userID.String(), tenantID.String())
}

// ListOverridesByScope returns the active overrides of the exact scope tuple.
func (r *AssignmentRepository) ListOverridesByScope(ctx context.Context, scope assignment.ScopeKey) ([]*assignment.Override, error) {
	query := overrideSelect + `
		WHERE user_id = $1 AND tenant_id = $2
		  AND relationship_id IS NOT DISTINCT FROM $3
		  AND status = 'active'
		ORDER BY created_at
	`

	return r.queryOverrides(ctx, query,
		scope.UserID.String(), scope.TenantID.String(), nullID(scope.RelationshipID))
}

const assignmentSelect = `
	SELECT id, user_id, tenant_id, role_id, relationship_id, status, created_by, created_at, updated_at
	FROM assignments
`

const overrideSelect = `
	SELECT id, user_id, tenant_id, relationship_id, permission, effect, reason, status, created_by, created_at
	FROM permission_overrides
`

func (r *AssignmentRepository) queryAssignments(ctx context.Context, query string, args ...any) ([]*assignment.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

func (r *AssignmentRepository) queryOverrides(ctx context.Context, query string, args ...any) ([]*assignment.Override, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*assignment.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

func insertOverridesTx(ctx context.Context, tx *sql.Tx, overrides []*assignment.Override) error {
	if len(overrides) == 0 {
		return nil
	}

	query := `
		INSERT INTO permission_overrides (id, user_id, tenant_id, relationship_id, permission, effect, reason, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, o := range overrides {
		scope := o.Scope()
		_, err := tx.ExecContext(ctx, query,
			o.ID().String(),
			scope.UserID.String(),
			scope.TenantID.String(),
			nullID(scope.RelationshipID),
			o.Permission().String(),
			o.Effect().String(),
			nullString(o.Reason()),
			o.Status().String(),
			o.CreatedBy().String(),
			o.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert override: %w", err)
		}
	}

	return nil
}

func deactivateScopeOverridesTx(ctx context.Context, tx *sql.Tx, scope assignment.ScopeKey) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE permission_overrides
		 SET status = 'inactive'
		 WHERE user_id = $1 AND tenant_id = $2
		   AND relationship_id IS NOT DISTINCT FROM $3
		   AND status = 'active'`,
		scope.UserID.String(), scope.TenantID.String(), nullID(scope.RelationshipID),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate scope overrides: %w", err)
	}

	return nil
}

func scanAssignment(row rowScanner) (*assignment.Assignment, error) {
	var (
		id             string
		userID         string
		tenantID       string
		roleID         string
		relationshipID sql.NullString
		status         string
		createdBy      string
		createdAt      time.Time
		updatedAt      time.Time
	)

	if err := row.Scan(&id, &userID, &tenantID, &roleID, &relationshipID, &status, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	aID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid assignment id %q: %w", id, err)
	}
	aUserID, err := shared.IDFromString(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	aTenantID, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	aRoleID, err := shared.IDFromString(roleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id %q: %w", roleID, err)
	}
	aStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	aCreatedBy, err := shared.IDFromString(createdBy)
	if err != nil {
		return nil, fmt.Errorf("invalid created_by %q: %w", createdBy, err)
	}

	return assignment.Reconstruct(
		aID, aUserID, aTenantID, aRoleID, parseNullID(relationshipID),
		aStatus, createdAt, updatedAt, aCreatedBy,
	), nil
}

func scanOverride(row rowScanner) (*assignment.Override, error) {
	var (
		id             string
		userID         string
		tenantID       string
		relationshipID sql.NullString
		perm           string
		effect         string
		reason         sql.NullString
		status         string
		createdBy      string
		createdAt      time.Time
	)

	if err := row.Scan(&id, &userID, &tenantID, &relationshipID, &perm, &effect, &reason, &status, &createdBy, &createdAt); err != nil {
		return nil, err
	}

	oID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid override id %q: %w", id, err)
	}
	oUserID, err := shared.IDFromString(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	oTenantID, err := shared.IDFromString(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	key, ok := permission.Parse(perm)
	if !ok {
		return nil, fmt.Errorf("unknown permission %q in permission_overrides", perm)
	}
	oEffect, err := assignment.ParseEffect(effect)
	if err != nil {
		return nil, err
	}
	oStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	oCreatedBy, err := shared.IDFromString(createdBy)
	if err != nil {
		return nil, fmt.Errorf("invalid created_by %q: %w", createdBy, err)
	}

	scope := assignment.ScopeKey{
		UserID:         oUserID,
		TenantID:       oTenantID,
		RelationshipID: parseNullID(relationshipID),
	}

	return assignment.ReconstructOverride(
		oID, scope, key, oEffect, nullStringValue(reason), oStatus, createdAt, oCreatedBy,
	), nil
}
