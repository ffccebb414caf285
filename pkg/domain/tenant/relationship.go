package tenant

import (
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// RelationshipKind classifies a directed business link between tenants.
type RelationshipKind string

const (
	RelationshipSupply    RelationshipKind = "supply"
	RelationshipBrokerage RelationshipKind = "brokerage"
	RelationshipResale    RelationshipKind = "resale"
)

// String returns the string form of the relationship kind.
func (k RelationshipKind) String() string {
	return string(k)
}

// ParseRelationshipKind parses a string into a RelationshipKind.
func ParseRelationshipKind(s string) (RelationshipKind, error) {
	switch RelationshipKind(s) {
	case RelationshipSupply, RelationshipBrokerage, RelationshipResale:
		return RelationshipKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown relationship kind %q", shared.ErrValidation, s)
	}
}

// Relationship is a directed link between two tenants. It never holds
// permissions itself; assignments, overrides and user bundles may be
// scoped to it.
type Relationship struct {
	id           shared.ID
	fromTenantID shared.ID
	toTenantID   shared.ID
	kind         RelationshipKind
	status       shared.Status
	createdAt    time.Time
}

// NewRelationship creates an active relationship between two tenants.
func NewRelationship(fromTenantID, toTenantID shared.ID, kind RelationshipKind) (*Relationship, error) {
	if fromTenantID.Equals(toTenantID) {
		return nil, fmt.Errorf("%w: relationship must link two distinct tenants", shared.ErrValidation)
	}
	return &Relationship{
		id:           shared.NewID(),
		fromTenantID: fromTenantID,
		toTenantID:   toTenantID,
		kind:         kind,
		status:       shared.StatusActive,
		createdAt:    time.Now().UTC(),
	}, nil
}

// ReconstructRelationship recreates a relationship from persistence.
func ReconstructRelationship(id, fromTenantID, toTenantID shared.ID, kind RelationshipKind, status shared.Status, createdAt time.Time) *Relationship {
	return &Relationship{
		id:           id,
		fromTenantID: fromTenantID,
		toTenantID:   toTenantID,
		kind:         kind,
		status:       status,
		createdAt:    createdAt,
	}
}

// ID returns the relationship ID.
func (r *Relationship) ID() shared.ID { return r.id }

// FromTenantID returns the originating tenant.
func (r *Relationship) FromTenantID() shared.ID { return r.fromTenantID }

// ToTenantID returns the receiving tenant.
func (r *Relationship) ToTenantID() shared.ID { return r.toTenantID }

// Kind returns the relationship kind.
func (r *Relationship) Kind() RelationshipKind { return r.kind }

// Status returns the lifecycle status.
func (r *Relationship) Status() shared.Status { return r.status }

// CreatedAt returns when the relationship was created.
func (r *Relationship) CreatedAt() time.Time { return r.createdAt }

// Involves reports whether the tenant is one of the two parties.
func (r *Relationship) Involves(tenantID shared.ID) bool {
	return r.fromTenantID.Equals(tenantID) || r.toTenantID.Equals(tenantID)
}

// Deactivate transitions the relationship to inactive.
func (r *Relationship) Deactivate() {
	r.status = shared.StatusInactive
}
