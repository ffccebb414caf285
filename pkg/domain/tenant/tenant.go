// Package tenant provides the tenant and inter-tenant relationship
// entities. Tenants are the unit of permission grant scoping;
// relationships are directed B2B links used only as scoping keys.
package tenant

import (
	"fmt"
	"time"

	"github.com/dealgrid/api/pkg/domain/shared"
)

// Kind classifies a tenant's role on the platform.
type Kind string

const (
	KindPlatformOwner Kind = "platform_owner"
	KindMerchant      Kind = "merchant"
	KindSupplier      Kind = "supplier"
	KindBroker        Kind = "broker"
)

// String returns the string form of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind parses a string into a tenant Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPlatformOwner, KindMerchant, KindSupplier, KindBroker:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown tenant kind %q", shared.ErrValidation, s)
	}
}

// Tenant represents a company using the platform.
type Tenant struct {
	id        shared.ID
	name      string
	kind      Kind
	status    shared.Status
	createdAt time.Time
	updatedAt time.Time
}

// New creates a new active tenant.
func New(name string, kind Kind) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		id:        shared.NewID(),
		name:      name,
		kind:      kind,
		status:    shared.StatusActive,
		createdAt: now,
		updatedAt: now,
	}
}

// Reconstruct recreates a tenant from persistence.
func Reconstruct(id shared.ID, name string, kind Kind, status shared.Status, createdAt, updatedAt time.Time) *Tenant {
	return &Tenant{
		id:        id,
		name:      name,
		kind:      kind,
		status:    status,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the tenant ID.
func (t *Tenant) ID() shared.ID { return t.id }

// Name returns the tenant name.
func (t *Tenant) Name() string { return t.name }

// Kind returns the tenant kind.
func (t *Tenant) Kind() Kind { return t.kind }

// Status returns the lifecycle status.
func (t *Tenant) Status() shared.Status { return t.status }

// CreatedAt returns when the tenant was created.
func (t *Tenant) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns when the tenant was last updated.
func (t *Tenant) UpdatedAt() time.Time { return t.updatedAt }

// IsPlatformOwner reports whether this tenant operates the platform.
// The platform owner is exempt from grant checks and implicitly holds
// every catalog permission.
func (t *Tenant) IsPlatformOwner() bool {
	return t.kind == KindPlatformOwner
}

// Rename changes the tenant name.
func (t *Tenant) Rename(name string) {
	t.name = name
	t.updatedAt = time.Now().UTC()
}

// Deactivate transitions the tenant to inactive.
func (t *Tenant) Deactivate() {
	t.status = shared.StatusInactive
	t.updatedAt = time.Now().UTC()
}
