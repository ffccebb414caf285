// Package permission defines the engine's permission catalog and the
// static dependency graph between permissions.
//
// Permission naming convention follows hierarchical pattern:
//
//	{module}:{action}
//
// Examples:
//   - deals:approve (approve a negotiated deal)
//   - reports:export (export reporting data)
//
// For permissions with subfeatures:
//
//	{module}:{subfeature}:{action}
//
// Examples:
//   - team:roles:manage
//   - team:members:view
package permission

import "slices"

// Key identifies a single permission in the catalog.
type Key string

// String returns the string representation of the permission key.
func (k Key) String() string {
	return string(k)
}

// Category groups related permissions for display and catalog listing.
type Category string

const (
	CategoryDeals    Category = "deals"
	CategoryReports  Category = "reports"
	CategoryPartners Category = "partners"
	CategoryTeam     Category = "team"
	CategoryPlatform Category = "platform"
)

// =============================================================================
// DEALS MODULE
// =============================================================================

const (
	DealsView    Key = "deals:view"
	DealsCreate  Key = "deals:create"
	DealsEdit    Key = "deals:edit"
	DealsSubmit  Key = "deals:submit"
	DealsReview  Key = "deals:review"
	DealsApprove Key = "deals:approve"
	DealsClose   Key = "deals:close"
	DealsComment Key = "deals:comment"
)

// =============================================================================
// REPORTS MODULE
// =============================================================================

const (
	ReportsView   Key = "reports:view"
	ReportsExport Key = "reports:export"
)

// =============================================================================
// PARTNERS MODULE (inter-tenant relationships)
// =============================================================================

const (
	PartnersView   Key = "partners:view"
	PartnersManage Key = "partners:manage"
)

// =============================================================================
// TEAM MODULE (access administration inside a tenant)
// =============================================================================

const (
	MembersView   Key = "team:members:view"
	MembersManage Key = "team:members:manage"

	RolesView   Key = "team:roles:view"
	RolesManage Key = "team:roles:manage"
	RolesAssign Key = "team:roles:assign"

	BundlesView   Key = "team:bundles:view"
	BundlesManage Key = "team:bundles:manage"
)

// =============================================================================
// PLATFORM MODULE (platform-owner administration)
// =============================================================================

const (
	TenantsManage Key = "platform:tenants:manage"
	GrantsManage  Key = "platform:grants:manage"
	CatalogView   Key = "platform:catalog:view"
)

// Definition describes a catalog entry. Permissions are soft-disabled,
// never removed from the catalog.
type Definition struct {
	Key      Key
	Category Category
	Enabled  bool
}

// catalog is the full, ordered permission catalog.
var catalog = []Definition{
	{DealsView, CategoryDeals, true},
	{DealsCreate, CategoryDeals, true},
	{DealsEdit, CategoryDeals, true},
	{DealsSubmit, CategoryDeals, true},
	{DealsReview, CategoryDeals, true},
	{DealsApprove, CategoryDeals, true},
	{DealsClose, CategoryDeals, true},
	{DealsComment, CategoryDeals, true},

	{ReportsView, CategoryReports, true},
	{ReportsExport, CategoryReports, true},

	{PartnersView, CategoryPartners, true},
	{PartnersManage, CategoryPartners, true},

	{MembersView, CategoryTeam, true},
	{MembersManage, CategoryTeam, true},
	{RolesView, CategoryTeam, true},
	{RolesManage, CategoryTeam, true},
	{RolesAssign, CategoryTeam, true},
	{BundlesView, CategoryTeam, true},
	{BundlesManage, CategoryTeam, true},

	{TenantsManage, CategoryPlatform, true},
	{GrantsManage, CategoryPlatform, true},
	{CatalogView, CategoryPlatform, true},
}

// Catalog returns the full permission catalog.
func Catalog() []Definition {
	return slices.Clone(catalog)
}

// AllKeys returns every catalog key, enabled or not.
func AllKeys() []Key {
	keys := make([]Key, len(catalog))
	for i, d := range catalog {
		keys[i] = d.Key
	}
	return keys
}

// IsValid checks whether the key exists in the catalog.
func (k Key) IsValid() bool {
	return slices.ContainsFunc(catalog, func(d Definition) bool { return d.Key == k })
}

// Parse parses a string into a catalog Key.
func Parse(s string) (Key, bool) {
	k := Key(s)
	return k, k.IsValid()
}

// ToStrings converts keys to their string form.
func ToStrings(keys []Key) []string {
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = k.String()
	}
	return result
}

// FromStrings converts strings to keys, reporting any unknown entries.
func FromStrings(strs []string) ([]Key, []string) {
	keys := make([]Key, 0, len(strs))
	var unknown []string
	for _, s := range strs {
		if k, ok := Parse(s); ok {
			keys = append(keys, k)
		} else {
			unknown = append(unknown, s)
		}
	}
	return keys, unknown
}
