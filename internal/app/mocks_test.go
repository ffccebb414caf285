package app

import (
	"context"
	"fmt"

	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/audit"
	"github.com/dealgrid/api/pkg/domain/bundle"
	"github.com/dealgrid/api/pkg/domain/grant"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/role"
	"github.com/dealgrid/api/pkg/domain/shared"
	"github.com/dealgrid/api/pkg/domain/tenant"
)

// In-memory repository fakes. They implement the same contracts as the
// postgres repositories, including sentinel errors and the cascade
// semantics, so service tests exercise real flows without a database.

type fakeTenantRepo struct {
	tenants map[shared.ID]*tenant.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[shared.ID]*tenant.Tenant)}
}

func (r *fakeTenantRepo) Create(_ context.Context, t *tenant.Tenant) error {
	r.tenants[t.ID()] = t
	return nil
}

func (r *fakeTenantRepo) GetByID(_ context.Context, id shared.ID) (*tenant.Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s", shared.ErrNotFound, id)
	}
	return t, nil
}

func (r *fakeTenantRepo) GetPlatformOwner(_ context.Context) (*tenant.Tenant, error) {
	for _, t := range r.tenants {
		if t.IsPlatformOwner() {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: platform owner tenant", shared.ErrNotFound)
}

func (r *fakeTenantRepo) List(_ context.Context) ([]*tenant.Tenant, error) {
	out := make([]*tenant.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTenantRepo) Update(_ context.Context, t *tenant.Tenant) error {
	if _, ok := r.tenants[t.ID()]; !ok {
		return fmt.Errorf("%w: tenant %s", shared.ErrNotFound, t.ID())
	}
	r.tenants[t.ID()] = t
	return nil
}

type fakeRelationshipRepo struct {
	relationships map[shared.ID]*tenant.Relationship
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{relationships: make(map[shared.ID]*tenant.Relationship)}
}

func (r *fakeRelationshipRepo) Create(_ context.Context, rel *tenant.Relationship) error {
	r.relationships[rel.ID()] = rel
	return nil
}

func (r *fakeRelationshipRepo) GetByID(_ context.Context, id shared.ID) (*tenant.Relationship, error) {
	rel, ok := r.relationships[id]
	if !ok {
		return nil, fmt.Errorf("%w: relationship %s", shared.ErrNotFound, id)
	}
	return rel, nil
}

func (r *fakeRelationshipRepo) ListForTenant(_ context.Context, tenantID shared.ID) ([]*tenant.Relationship, error) {
	var out []*tenant.Relationship
	for _, rel := range r.relationships {
		if rel.Involves(tenantID) {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (r *fakeRelationshipRepo) Update(_ context.Context, rel *tenant.Relationship) error {
	if _, ok := r.relationships[rel.ID()]; !ok {
		return fmt.Errorf("%w: relationship %s", shared.ErrNotFound, rel.ID())
	}
	r.relationships[rel.ID()] = rel
	return nil
}

type fakeRoleRepo struct {
	roles             map[shared.ID]*role.Role
	activeAssignments map[shared.ID]int
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles:             make(map[shared.ID]*role.Role),
		activeAssignments: make(map[shared.ID]int),
	}
}

func (r *fakeRoleRepo) Create(_ context.Context, ro *role.Role) error {
	for _, existing := range r.roles {
		if existing.TenantID().Equals(ro.TenantID()) &&
			existing.Name() == ro.Name() &&
			existing.Status().IsActive() {
			return role.ErrNameExists
		}
	}
	r.roles[ro.ID()] = ro
	return nil
}

func (r *fakeRoleRepo) GetByID(_ context.Context, id shared.ID) (*role.Role, error) {
	ro, ok := r.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	return ro, nil
}

func (r *fakeRoleRepo) GetActiveByName(_ context.Context, tenantID shared.ID, name string) (*role.Role, error) {
	for _, ro := range r.roles {
		if ro.TenantID().Equals(tenantID) && ro.Name() == name && ro.Status().IsActive() {
			return ro, nil
		}
	}
	return nil, fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
}

func (r *fakeRoleRepo) ListForTenant(_ context.Context, tenantID shared.ID, activeOnly bool) ([]*role.Role, error) {
	var out []*role.Role
	for _, ro := range r.roles {
		if !ro.TenantID().Equals(tenantID) {
			continue
		}
		if activeOnly && !ro.Status().IsActive() {
			continue
		}
		out = append(out, ro)
	}
	return out, nil
}

func (r *fakeRoleRepo) Update(_ context.Context, ro *role.Role) error {
	if _, ok := r.roles[ro.ID()]; !ok {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, ro.ID())
	}
	r.roles[ro.ID()] = ro
	return nil
}

func (r *fakeRoleRepo) CountActiveAssignments(_ context.Context, roleID shared.ID) (int, error) {
	return r.activeAssignments[roleID], nil
}

// fakeGrantRepo holds a reference to the role repo so the revoke cascade
// strips permissions the same way the SQL implementation does.
type fakeGrantRepo struct {
	grants map[shared.ID]map[permission.Key]*grant.TenantGrant
	roles  *fakeRoleRepo
}

func newFakeGrantRepo(roles *fakeRoleRepo) *fakeGrantRepo {
	return &fakeGrantRepo{
		grants: make(map[shared.ID]map[permission.Key]*grant.TenantGrant),
		roles:  roles,
	}
}

func (r *fakeGrantRepo) Grant(_ context.Context, g *grant.TenantGrant) error {
	byTenant, ok := r.grants[g.TenantID()]
	if !ok {
		byTenant = make(map[permission.Key]*grant.TenantGrant)
		r.grants[g.TenantID()] = byTenant
	}
	if _, exists := byTenant[g.Permission()]; exists {
		return fmt.Errorf("%w: permission %s is already granted", shared.ErrConflict, g.Permission())
	}
	byTenant[g.Permission()] = g
	return nil
}

func (r *fakeGrantRepo) RevokeCascade(_ context.Context, tenantID shared.ID, key permission.Key) error {
	byTenant := r.grants[tenantID]
	if _, exists := byTenant[key]; !exists {
		return fmt.Errorf("%w: grant %s for tenant %s", shared.ErrNotFound, key, tenantID)
	}
	delete(byTenant, key)

	for _, ro := range r.roles.roles {
		if !ro.TenantID().Equals(tenantID) {
			continue
		}
		var kept []permission.Key
		for _, p := range ro.Permissions() {
			if p != key {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(ro.Permissions()) {
			ro.SetPermissions(kept)
		}
	}
	return nil
}

func (r *fakeGrantRepo) ReplaceAll(ctx context.Context, tenantID shared.ID, keys []permission.Key, grantedBy shared.ID) error {
	desired := permission.NewSet(keys...)
	current, _ := r.GrantedSet(ctx, tenantID)

	for _, key := range desired.Keys() {
		if !current.Has(key) {
			if err := r.Grant(ctx, grant.New(tenantID, key, grantedBy)); err != nil {
				return err
			}
		}
	}
	for _, key := range current.Difference(desired) {
		if err := r.RevokeCascade(ctx, tenantID, key); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeGrantRepo) ListForTenant(_ context.Context, tenantID shared.ID) ([]*grant.TenantGrant, error) {
	var out []*grant.TenantGrant
	for _, g := range r.grants[tenantID] {
		out = append(out, g)
	}
	return out, nil
}

func (r *fakeGrantRepo) GrantedSet(_ context.Context, tenantID shared.ID) (permission.Set, error) {
	set := permission.NewSet()
	for key := range r.grants[tenantID] {
		set.Add(key)
	}
	return set, nil
}

type fakeBundleRepo struct {
	bundles         map[shared.ID]*bundle.Bundle
	attachments     []*bundle.RoleAttachment
	userAssignments map[shared.ID]*bundle.UserAssignment
}

func newFakeBundleRepo() *fakeBundleRepo {
	return &fakeBundleRepo{
		bundles:         make(map[shared.ID]*bundle.Bundle),
		userAssignments: make(map[shared.ID]*bundle.UserAssignment),
	}
}

func (r *fakeBundleRepo) Create(_ context.Context, b *bundle.Bundle) error {
	r.bundles[b.ID()] = b
	return nil
}

func (r *fakeBundleRepo) GetByID(_ context.Context, id shared.ID) (*bundle.Bundle, error) {
	b, ok := r.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: bundle %s", shared.ErrNotFound, id)
	}
	return b, nil
}

func (r *fakeBundleRepo) ListForTenant(_ context.Context, tenantID shared.ID, activeOnly bool) ([]*bundle.Bundle, error) {
	var out []*bundle.Bundle
	for _, b := range r.bundles {
		if !b.UsableBy(tenantID) {
			continue
		}
		if activeOnly && !b.Status().IsActive() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *fakeBundleRepo) Update(_ context.Context, b *bundle.Bundle) error {
	if _, ok := r.bundles[b.ID()]; !ok {
		return fmt.Errorf("%w: bundle %s", shared.ErrNotFound, b.ID())
	}
	r.bundles[b.ID()] = b
	return nil
}

func (r *fakeBundleRepo) Delete(_ context.Context, id shared.ID) error {
	if _, ok := r.bundles[id]; !ok {
		return fmt.Errorf("%w: bundle %s", shared.ErrNotFound, id)
	}
	delete(r.bundles, id)
	return nil
}

func (r *fakeBundleRepo) CountActiveReferences(_ context.Context, bundleID shared.ID) (int, error) {
	count := 0
	for _, att := range r.attachments {
		if att.BundleID.Equals(bundleID) && att.Status.IsActive() {
			count++
		}
	}
	for _, ua := range r.userAssignments {
		if ua.BundleID.Equals(bundleID) && ua.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *fakeBundleRepo) AttachToRole(_ context.Context, att *bundle.RoleAttachment) error {
	for _, existing := range r.attachments {
		if existing.RoleID.Equals(att.RoleID) && existing.BundleID.Equals(att.BundleID) && existing.Status.IsActive() {
			return bundle.ErrAlreadyAttached
		}
	}
	r.attachments = append(r.attachments, att)
	return nil
}

func (r *fakeBundleRepo) DetachFromRole(_ context.Context, roleID, bundleID shared.ID) error {
	for _, att := range r.attachments {
		if att.RoleID.Equals(roleID) && att.BundleID.Equals(bundleID) && att.Status.IsActive() {
			att.Status = shared.StatusInactive
			return nil
		}
	}
	return fmt.Errorf("%w: bundle attachment", shared.ErrNotFound)
}

func (r *fakeBundleRepo) ListActiveForRole(_ context.Context, roleID shared.ID) ([]*bundle.Bundle, error) {
	var out []*bundle.Bundle
	for _, att := range r.attachments {
		if att.RoleID.Equals(roleID) && att.Status.IsActive() {
			if b, ok := r.bundles[att.BundleID]; ok {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (r *fakeBundleRepo) AssignToUser(_ context.Context, ua *bundle.UserAssignment) error {
	for _, existing := range r.userAssignments {
		if existing.UserID.Equals(ua.UserID) &&
			existing.TenantID.Equals(ua.TenantID) &&
			existing.BundleID.Equals(ua.BundleID) &&
			existing.Status.IsActive() &&
			sameScope(existing.RelationshipID, ua.RelationshipID) {
			return bundle.ErrAlreadyAssigned
		}
	}
	r.userAssignments[ua.ID] = ua
	return nil
}

func sameScope(a, b *shared.ID) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && a.Equals(*b)
}

func (r *fakeBundleRepo) UnassignFromUser(_ context.Context, id shared.ID) (*bundle.UserAssignment, error) {
	ua, ok := r.userAssignments[id]
	if !ok || !ua.Status.IsActive() {
		return nil, fmt.Errorf("%w: user bundle assignment %s", shared.ErrNotFound, id)
	}
	ua.Status = shared.StatusInactive
	return ua, nil
}

func (r *fakeBundleRepo) ListActiveForUser(_ context.Context, userID, tenantID shared.ID) ([]*bundle.UserAssignment, map[shared.ID]*bundle.Bundle, error) {
	var out []*bundle.UserAssignment
	bundles := make(map[shared.ID]*bundle.Bundle)
	for _, ua := range r.userAssignments {
		if ua.UserID.Equals(userID) && ua.TenantID.Equals(tenantID) && ua.Status.IsActive() {
			out = append(out, ua)
			if b, ok := r.bundles[ua.BundleID]; ok {
				bundles[ua.BundleID] = b
			}
		}
	}
	return out, bundles, nil
}

type fakeAssignmentRepo struct {
	assignments map[shared.ID]*assignment.Assignment
	overrides   []*assignment.Override
	roles       *fakeRoleRepo
}

func newFakeAssignmentRepo(roles *fakeRoleRepo) *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		assignments: make(map[shared.ID]*assignment.Assignment),
		roles:       roles,
	}
}

func (r *fakeAssignmentRepo) CreateWithOverrides(_ context.Context, a *assignment.Assignment, overrides []*assignment.Override) error {
	for _, existing := range r.assignments {
		if existing.Status().IsActive() && existing.Scope().Matches(a.Scope()) {
			return assignment.ErrDuplicateScope
		}
	}
	r.assignments[a.ID()] = a
	r.overrides = append(r.overrides, overrides...)
	if r.roles != nil {
		r.roles.activeAssignments[a.RoleID()]++
	}
	return nil
}

func (r *fakeAssignmentRepo) GetByID(_ context.Context, id shared.ID) (*assignment.Assignment, error) {
	a, ok := r.assignments[id]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s", shared.ErrNotFound, id)
	}
	return a, nil
}

func (r *fakeAssignmentRepo) GetActiveByScope(_ context.Context, scope assignment.ScopeKey) (*assignment.Assignment, error) {
	for _, a := range r.assignments {
		if a.Status().IsActive() && a.Scope().Matches(scope) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: assignment for scope", shared.ErrNotFound)
}

func (r *fakeAssignmentRepo) ListForUser(_ context.Context, userID, tenantID shared.ID) ([]*assignment.Assignment, error) {
	var out []*assignment.Assignment
	for _, a := range r.assignments {
		if a.UserID().Equals(userID) && a.TenantID().Equals(tenantID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) ListForTenant(_ context.Context, tenantID shared.ID, activeOnly bool) ([]*assignment.Assignment, error) {
	var out []*assignment.Assignment
	for _, a := range r.assignments {
		if !a.TenantID().Equals(tenantID) {
			continue
		}
		if activeOnly && !a.Status().IsActive() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAssignmentRepo) UpdateWithOverrides(_ context.Context, a *assignment.Assignment, replaceOverrides bool, overrides []*assignment.Override) error {
	if _, ok := r.assignments[a.ID()]; !ok {
		return fmt.Errorf("%w: assignment %s", shared.ErrNotFound, a.ID())
	}
	r.assignments[a.ID()] = a
	if replaceOverrides {
		r.deactivateScope(a.Scope())
		r.overrides = append(r.overrides, overrides...)
	}
	return nil
}

func (r *fakeAssignmentRepo) DeactivateCascade(_ context.Context, a *assignment.Assignment) error {
	stored, ok := r.assignments[a.ID()]
	if !ok || !stored.Status().IsActive() {
		return fmt.Errorf("%w: assignment %s", shared.ErrNotFound, a.ID())
	}
	stored.Deactivate()
	r.deactivateScope(stored.Scope())
	return nil
}

func (r *fakeAssignmentRepo) deactivateScope(scope assignment.ScopeKey) {
	for i, o := range r.overrides {
		if o.Status().IsActive() && o.Scope().Matches(scope) {
			r.overrides[i] = assignment.ReconstructOverride(
				o.ID(), o.Scope(), o.Permission(), o.Effect(), o.Reason(),
				shared.StatusInactive, o.CreatedAt(), o.CreatedBy(),
			)
		}
	}
}

func (r *fakeAssignmentRepo) ListActiveOverrides(_ context.Context, userID, tenantID shared.ID) ([]*assignment.Override, error) {
	var out []*assignment.Override
	for _, o := range r.overrides {
		if o.Status().IsActive() && o.Scope().UserID.Equals(userID) && o.Scope().TenantID.Equals(tenantID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) ListOverridesByScope(_ context.Context, scope assignment.ScopeKey) ([]*assignment.Override, error) {
	var out []*assignment.Override
	for _, o := range r.overrides {
		if o.Status().IsActive() && o.Scope().Matches(scope) {
			out = append(out, o)
		}
	}
	return out, nil
}

var (
	_ tenant.Repository             = (*fakeTenantRepo)(nil)
	_ tenant.RelationshipRepository = (*fakeRelationshipRepo)(nil)
	_ role.Repository               = (*fakeRoleRepo)(nil)
	_ grant.Repository              = (*fakeGrantRepo)(nil)
	_ bundle.Repository             = (*fakeBundleRepo)(nil)
	_ assignment.Repository         = (*fakeAssignmentRepo)(nil)
	_ audit.Repository              = (*fakeAuditRepo)(nil)
)

func bundleForTenant(scopeTenantID *shared.ID, keys ...permission.Key) *bundle.Bundle {
	return bundle.New("Reporting Pack", "", scopeTenantID, keys)
}

type fakeAuditRepo struct {
	entries []*audit.Entry
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Create(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, _ audit.Filter) ([]*audit.Entry, error) {
	return r.entries, nil
}

func (r *fakeAuditRepo) Count(_ context.Context, _ audit.Filter) (int64, error) {
	return int64(len(r.entries)), nil
}
