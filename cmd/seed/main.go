package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	dbURL := flag.String("db", "", "Database URL (or set DATABASE_URL env)")
	seedFile := flag.String("file", "migrations/seed/seed_data.sql", "Path to seed SQL file")
	clean := flag.Bool("clean", false, "Clean existing seed data before seeding")
	flag.Parse()

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		fmt.Println("Error: Database URL required. Use -db flag or set DATABASE_URL env")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("Error pinging database: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected to database")

	if *clean {
		if err := cleanDatabase(ctx, db); err != nil {
			fmt.Printf("Error cleaning database: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cleaned existing seed data")
	}

	seedPath, err := filepath.Abs(*seedFile)
	if err != nil {
		fmt.Printf("Error resolving seed file path: %v\n", err)
		os.Exit(1)
	}

	seedSQL, err := os.ReadFile(seedPath)
	if err != nil {
		fmt.Printf("Error reading seed file %s: %v\n", seedPath, err)
		os.Exit(1)
	}

	fmt.Printf("Executing seed file: %s\n", seedPath)
	if _, err := db.ExecContext(ctx, string(seedSQL)); err != nil {
		fmt.Printf("Error executing seed SQL: %v\n", err)
		os.Exit(1)
	}

	printSummary(ctx, db)
	fmt.Println("\nSeed completed successfully!")
}

// seedTenantIDs are the fixed tenant UUIDs used by the seed file. Deleting
// the tenants cascades through grants, roles, bundles, assignments and
// overrides via foreign keys, but each table is cleaned explicitly so a
// partially seeded database still comes out empty.
const seedTenantIDs = `{aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa,bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb,cccccccc-cccc-cccc-cccc-cccccccccccc}`

func cleanDatabase(ctx context.Context, db *sql.DB) error {
	cleanQueries := []string{
		`DELETE FROM permission_overrides WHERE tenant_id = ANY($1::uuid[])`,
		`DELETE FROM assignments WHERE tenant_id = ANY($1::uuid[])`,
		`DELETE FROM user_bundles WHERE tenant_id = ANY($1::uuid[])`,
		`DELETE FROM bundles WHERE scope_tenant_id = ANY($1::uuid[])`,
		`DELETE FROM roles WHERE tenant_id = ANY($1::uuid[])`,
		`DELETE FROM tenant_grants WHERE tenant_id = ANY($1::uuid[])`,
		`DELETE FROM tenant_relationships WHERE from_tenant_id = ANY($1::uuid[]) OR to_tenant_id = ANY($1::uuid[])`,
		`DELETE FROM tenants WHERE id = ANY($1::uuid[])`,
	}

	for _, query := range cleanQueries {
		if _, err := db.ExecContext(ctx, query, seedTenantIDs); err != nil {
			// Log but continue - some tables might not exist yet
			fmt.Printf("Warning: %v\n", err)
		}
	}
	return nil
}

func printSummary(ctx context.Context, db *sql.DB) {
	fmt.Println("\n=== Seed Data Summary ===")

	counts := []struct {
		table string
		query string
	}{
		{"Tenants", "SELECT COUNT(*) FROM tenants"},
		{"Relationships", "SELECT COUNT(*) FROM tenant_relationships"},
		{"Grants", "SELECT COUNT(*) FROM tenant_grants"},
		{"Roles", "SELECT COUNT(*) FROM roles"},
		{"Role Permissions", "SELECT COUNT(*) FROM role_permissions"},
		{"Bundles", "SELECT COUNT(*) FROM bundles"},
		{"Assignments", "SELECT COUNT(*) FROM assignments"},
		{"Overrides", "SELECT COUNT(*) FROM permission_overrides"},
	}

	for _, c := range counts {
		var count int
		if err := db.QueryRowContext(ctx, c.query).Scan(&count); err != nil {
			fmt.Printf("  %s: (error: %v)\n", c.table, err)
		} else {
			fmt.Printf("  %s: %d\n", c.table, count)
		}
	}
}
