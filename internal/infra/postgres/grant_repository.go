package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/shared"
)

// GrantRepository implements grant.Repository using PostgreSQL.
//
// Revoking a grant strips the permission from every role of the tenant
// inside the same transaction, so the grant-containment invariant holds
// at rest, not just at write-validation time.
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new GrantRepository.
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Grant records a permission grant for a tenant.
func (r *GrantRepository) Grant(ctx context.Context, g *grant.TenantGrant) error {
	query := `
		INSERT INTO tenant_grants (tenant_id, permission, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		g.TenantID().String(),
		g.Permission().String(),
		g.GrantedBy().String(),
		g.GrantedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: permission %s is already granted to tenant %s",
				shared.ErrConflict, g.Permission(), g.TenantID())
		}
		return fmt.Errorf("failed to create grant: %w", err)
	}

	return nil
}

// RevokeCascade deletes a grant and strips the permission from every role
// of the tenant in one transaction.
func (r *GrantRepository) RevokeCascade(ctx context.Context, tenantID shared.ID, key permission.Key) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return revokeCascadeTx(ctx, tx, tenantID, key)
	})
}

// ReplaceAll diffs the tenant's grants against keys: missing grants are
// inserted, surplus grants are revoked with the role cascade.
func (r *GrantRepository) ReplaceAll(ctx context.Context, tenantID shared.ID, keys []permission.Key, grantedBy shared.ID) error {
	desired := permission.NewSet(keys...)

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		current, err := grantedSetTx(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, key := range desired.Difference(current) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tenant_grants (tenant_id, permission, granted_by, granted_at) VALUES ($1, $2, $3, $4)`,
				tenantID.String(), key.String(), grantedBy.String(), now,
			)
			if err != nil {
				return fmt.Errorf("failed to add grant %s: %w", key, err)
			}
		}

		for _, key := range current.Difference(desired) {
			if err := revokeCascadeTx(ctx, tx, tenantID, key); err != nil {
				return err
			}
		}

		return nil
	})
}

// ListForTenant returns every grant of the tenant.
func (r *GrantRepository) ListForTenant(ctx context.Context, tenantID shared.ID) ([]*grant.TenantGrant, error) {
	query := `
		SELECT tenant_id, permission, granted_by, granted_at
		FROM tenant_grants
		WHERE tenant_id = $1
		ORDER BY permission
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*grant.TenantGrant
	for rows.Next() {
		var (
			tid       string
			perm      string
			grantedBy string
			grantedAt time.Time
		)
		if err := rows.Scan(&tid, &perm, &grantedBy, &grantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		gTenantID, err := shared.IDFromString(tid)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id %q: %w", tid, err)
		}
		key, ok := permission.Parse(perm)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q in tenant_grants", perm)
		}
		gGrantedBy, err := shared.IDFromString(grantedBy)
		if err != nil {
			return nil, fmt.Errorf("invalid granted_by %q: %w", grantedBy, err)
		}

		grants = append(grants, grant.Reconstruct(gTenantID, key, gGrantedBy, grantedAt))
	}

	return grants, rows.Err()
}

// GrantedSet returns the tenant's granted permission keys as a set.
func (r *GrantRepository) GrantedSet(ctx context.Context, tenantID shared.ID) (permission.Set, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT permission FROM tenant_grants WHERE tenant_id = $1`,
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	set := permission.NewSet()
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		key, ok := permission.Parse(perm)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q in tenant_grants", perm)
		}
		set.Add(key)
	}

	return set, rows.Err()
}

func grantedSetTx(ctx context.Context, tx *sql.Tx, tenantID shared.ID) (permission.Set, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT permission FROM tenant_grants WHERE tenant_id = $1`,
		tenantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	set := permission.NewSet()
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		key, ok := permission.Parse(perm)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q in tenant_grants", perm)
		}
		set.Add(key)
	}

	return set, rows.Err()
}

func revokeCascadeTx(ctx context.Context, tx *sql.Tx, tenantID shared.ID, key permission.Key) error {
	result, err := tx.ExecContext(ctx,
		`DELETE FROM tenant_grants WHERE tenant_id = $1 AND permission = $2`,
		tenantID.String(), key.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: permission %s is not granted to tenant %s",
			shared.ErrNotFound, key, tenantID)
	}

	// Strip the permission from every role of the tenant.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM role_permissions
		 WHERE permission = $2
		   AND role_id IN (SELECT id FROM roles WHERE tenant_id = $1)`,
		tenantID.String(), key.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to cascade revoke into roles: %w", err)
	}

	return nil
}

// permissionsFromRows collects permission keys from a single-column result.
func permissionsFromRows(rows *sql.Rows) ([]permission.Key, error) {
	defer rows.Close()

	var keys []permission.Key
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		key, ok := permission.Parse(perm)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q", perm)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// insertPermissionsBatch inserts permission rows for an owner via pq.Array.
func insertPermissionsBatch(ctx context.Context, tx *sql.Tx, table, ownerColumn, ownerID string, keys []permission.Key) error {
	if len(keys) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s, permission) SELECT $1, unnest($2::text[])`,
		table, ownerColumn,
	)
	if _, err := tx.ExecContext(ctx, query, ownerID, pq.Array(permission.ToStrings(keys))); err != nil {
		return fmt.Errorf("failed to insert permissions: %w", err)
	}

	return nil
}
