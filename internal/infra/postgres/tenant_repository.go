package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
)

// TenantRepository implements tenant.Repository using PostgreSQL.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create persists a new tenant.
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID().String(),
		t.Name(),
		t.Kind().String(),
		t.Status().String(),
		t.CreatedAt(),
		t.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tenant %s already exists", shared.ErrConflict, t.Name())
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by its ID.
func (r *TenantRepository) GetByID(ctx context.Context, id shared.ID) (*tenant.Tenant, error) {
	query := `
		SELECT id, name, kind, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	t, err := r.scanTenant(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: tenant %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return t, nil
}

// GetPlatformOwner retrieves the single platform-owner tenant.
func (r *TenantRepository) GetPlatformOwner(ctx context.Context) (*tenant.Tenant, error) {
	query := `
		SELECT id, name, kind, status, created_at, updated_at
		FROM tenants
		WHERE kind = $1
	`

	t, err := r.scanTenant(r.db.QueryRowContext(ctx, query, tenant.KindPlatformOwner.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: platform owner tenant", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get platform owner: %w", err)
	}

	return t, nil
}

// List returns all tenants, active first, then by name.
func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	query := `
		SELECT id, name, kind, status, created_at, updated_at
		FROM tenants
		ORDER BY status, name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

// Update persists changes to a tenant.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, status = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		t.ID().String(),
		t.Name(),
		t.Status().String(),
		t.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: tenant %s", shared.ErrNotFound, t.ID())
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TenantRepository) scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var (
		id        string
		name      string
		kind      string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&id, &name, &kind, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	tenantID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", id, err)
	}
	tenantKind, err := tenant.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	tenantStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return tenant.Reconstruct(tenantID, name, tenantKind, tenantStatus, createdAt, updatedAt), nil
}

// RelationshipRepository implements tenant.RelationshipRepository using PostgreSQL.
type RelationshipRepository struct {
	db *DB
}

// NewRelationshipRepository creates a new RelationshipRepository.
func NewRelationshipRepository(db *DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// Create persists a new relationship.
func (r *RelationshipRepository) Create(ctx context.Context, rel *tenant.Relationship) error {
	query := `
		INSERT INTO tenant_relationships (id, from_tenant_id, to_tenant_id, kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		rel.ID().String(),
		rel.FromTenantID().String(),
		rel.ToTenantID().String(),
		rel.Kind().String(),
		rel.Status().String(),
		rel.CreatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: relationship already exists", shared.ErrConflict)
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	return nil
}

// GetByID retrieves a relationship by its ID.
func (r *RelationshipRepository) GetByID(ctx context.Context, id shared.ID) (*tenant.Relationship, error) {
	query := `
		SELECT id, from_tenant_id, to_tenant_id, kind, status, created_at
		FROM tenant_relationships
		WHERE id = $1
	`

	rel, err := r.scanRelationship(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: relationship %s", shared.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}

	return rel, nil
}

// ListForTenant returns relationships where the tenant is a party.
func (r *RelationshipRepository) ListForTenant(ctx context.Context, tenantID shared.ID) ([]*tenant.Relationship, error) {
	query := `
		SELECT id, from_tenant_id, to_tenant_id, kind, status, created_at
		FROM tenant_relationships
		WHERE from_tenant_id = $1 OR to_tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var rels []*tenant.Relationship
	for rows.Next() {
		rel, err := r.scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}

	return rels, rows.Err()
}

// Update persists changes to a relationship.
func (r *RelationshipRepository) Update(ctx context.Context, rel *tenant.Relationship) error {
	query := `
		UPDATE tenant_relationships
		SET status = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, rel.ID().String(), rel.Status().String())
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: relationship %s", shared.ErrNotFound, rel.ID())
	}

	return nil
}

func (r *RelationshipRepository) scanRelationship(row rowScanner) (*tenant.Relationship, error) {
	var (
		id        string
		fromID    string
		toID      string
		kind      string
		status    string
		createdAt time.Time
	)

	if err := row.Scan(&id, &fromID, &toID, &kind, &status, &createdAt); err != nil {
		return nil, err
	}

	relID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid relationship id %q: %w", id, err)
	}
	fromTenantID, err := shared.IDFromString(fromID)
	if err != nil {
		return nil, fmt.Errorf("invalid from_tenant_id %q: %w", fromID, err)
	}
	toTenantID, err := shared.IDFromString(toID)
	if err != nil {
		return nil, fmt.Errorf("invalid to_tenant_id %q: %w", toID, err)
	}
	relKind, err := tenant.ParseRelationshipKind(kind)
	if err != nil {
		return nil, err
	}
	relStatus, err := shared.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	return tenant.ReconstructRelationship(relID, fromTenantID, toTenantID, relKind, relStatus, createdAt), nil
}
