package migrations

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "000002_grants.up.sql", "CREATE TABLE tenant_grants ();")
	writeFile(t, dir, "000001_tenants.up.sql", "CREATE TABLE tenants ();")
	writeFile(t, dir, "000001_tenants.down.sql", "DROP TABLE tenants;")
	writeFile(t, dir, "notes.txt", "not a migration")
	writeFile(t, dir, "invalid.up.sql", "missing version prefix")

	ups, err := LoadFromDir(dir, "up")
	require.NoError(t, err)
	require.Len(t, ups, 2)

	// Sorted by version regardless of file order.
	assert.Equal(t, "000001", ups[0].Version)
	assert.Equal(t, "tenants", ups[0].Name)
	assert.Equal(t, "000002", ups[1].Version)
	assert.Equal(t, "grants", ups[1].Name)

	downs, err := LoadFromDir(dir, "down")
	require.NoError(t, err)
	require.Len(t, downs, 1)
	assert.Equal(t, "000001", downs[0].Version)
}

func TestLoadFromDir_Empty(t *testing.T) {
	ups, err := LoadFromDir(t.TempDir(), "up")
	require.NoError(t, err)
	assert.Empty(t, ups)
}

func TestReadContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "000001_tenants.up.sql", "CREATE TABLE tenants ();")

	ups, err := LoadFromDir(dir, "up")
	require.NoError(t, err)
	require.Len(t, ups, 1)

	content, err := ReadContent(ups[0])
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE tenants ();", string(content))
}

// Roles may be created without an actor (seeded or system roles), so the
// schema must not force one.
func TestSchemaAllowsAnonymousRoleCreator(t *testing.T) {
	ups, err := LoadFromDir(filepath.Join("..", "..", "migrations"), "up")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	content, err := ReadContent(ups[0])
	require.NoError(t, err)

	block := regexp.MustCompile(`(?s)CREATE TABLE roles \(.*?\);`).FindString(string(content))
	require.NotEmpty(t, block, "roles table missing from initial migration")

	for _, line := range strings.Split(block, "\n") {
		if strings.Contains(line, "created_by") {
			assert.NotContains(t, line, "NOT NULL",
				"roles.created_by must stay nullable")
		}
	}
}

func TestMigrationString(t *testing.T) {
	m := Migration{Version: "000003", Name: "bundles", Direction: "up"}
	assert.Equal(t, "000003_bundles.up.sql", m.String())
}
