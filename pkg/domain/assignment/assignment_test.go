package assignment

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEffect(t *testing.T) {
	tests := []struct {
		input   string
		want    Effect
		wantErr bool
	}{
		{input: "ALLOW", want: EffectAllow},
		{input: "DENY", want: EffectDeny},
		{input: "allow", wantErr: true},
		{input: "deny", wantErr: true},
		{input: "", wantErr: true},
		{input: "BLOCK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEffect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The effect values the engine writes must be exactly the values the
// schema's CHECK constraint accepts, or every override INSERT fails at
// commit.
func TestEffectMatchesSchemaConstraint(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)

	m := regexp.MustCompile(`chk_override_effect CHECK \(effect IN \(([^)]+)\)\)`).FindSubmatch(data)
	require.NotNil(t, m, "override effect constraint missing from schema")

	var accepted []string
	for _, v := range regexp.MustCompile(`'([^']+)'`).FindAllStringSubmatch(string(m[1]), -1) {
		accepted = append(accepted, v[1])
	}
	assert.ElementsMatch(t, []string{string(EffectAllow), string(EffectDeny)}, accepted)

	for _, v := range accepted {
		_, err := ParseEffect(v)
		assert.NoError(t, err, "schema accepts %q but the engine cannot read it back", v)
	}
}

// Seeded override rows must round-trip through ParseEffect.
func TestSeedEffectsParse(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "seed", "seed_data.sql"))
	require.NoError(t, err)

	matches := regexp.MustCompile(`'((?i:allow|deny))'`).FindAllStringSubmatch(string(data), -1)
	require.NotEmpty(t, matches, "seed data carries no overrides")

	for _, m := range matches {
		_, err := ParseEffect(m[1])
		assert.NoError(t, err, "seeded effect %q cannot be read back by the engine", m[1])
	}
}
