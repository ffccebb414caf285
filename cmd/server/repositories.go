package main

import (
	"github.com/dealgrid/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Tenant       *postgres.TenantRepository
	Relationship *postgres.RelationshipRepository
	Grant        *postgres.GrantRepository
	Role         *postgres.RoleRepository
	Bundle       *postgres.BundleRepository
	Assignment   *postgres.AssignmentRepository
	Audit        *postgres.AuditRepository
}

// NewRepositories creates all repositories backed by the given database.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Tenant:       postgres.NewTenantRepository(db),
		Relationship: postgres.NewRelationshipRepository(db),
		Grant:        postgres.NewGrantRepository(db),
		Role:         postgres.NewRoleRepository(db),
		Bundle:       postgres.NewBundleRepository(db),
		Assignment:   postgres.NewAssignmentRepository(db),
		Audit:        postgres.NewAuditRepository(db),
	}
}
