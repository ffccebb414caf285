package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestNewRegistry_RejectsUnknownKeys(t *testing.T) {
	defs := []Definition{{Key: "a:x", Category: CategoryDeals, Enabled: true}}

	_, err := newRegistry(defs, map[Key][]Key{"a:x": {"a:missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown permission")

	_, err = newRegistry(defs, map[Key][]Key{"a:ghost": {"a:x"}})
	require.Error(t, err)
}

func TestNewRegistry_RejectsCycles(t *testing.T) {
	defs := []Definition{
		{Key: "a:x", Category: CategoryDeals, Enabled: true},
		{Key: "a:y", Category: CategoryDeals, Enabled: true},
		{Key: "a:z", Category: CategoryDeals, Enabled: true},
	}
	edges := map[Key][]Key{
		"a:x": {"a:y"},
		"a:y": {"a:z"},
		"a:z": {"a:x"},
	}

	_, err := newRegistry(defs, edges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestExpand_TransitiveClosure(t *testing.T) {
	r := MustNewRegistry()

	got := r.Expand([]Key{DealsApprove})

	assert.True(t, got.Has(DealsApprove))
	assert.True(t, got.Has(DealsReview))
	assert.True(t, got.Has(DealsView))
	assert.Equal(t, 3, got.Len())
}

func TestExpand_ChainedPrerequisites(t *testing.T) {
	r := MustNewRegistry()

	// deals:submit requires deals:edit which requires deals:view.
	got := r.Expand([]Key{DealsSubmit})

	assert.ElementsMatch(t, []Key{DealsSubmit, DealsEdit, DealsView}, got.Keys())
}

func TestExpand_Monotonic(t *testing.T) {
	r := MustNewRegistry()

	inputs := [][]Key{
		{},
		{DealsView},
		{DealsApprove, ReportsExport},
		AllKeys(),
	}
	for _, in := range inputs {
		got := r.Expand(in)
		for _, k := range in {
			assert.True(t, got.Has(k), "expand must contain input key %s", k)
		}
	}
}

func TestExpand_Idempotent(t *testing.T) {
	r := MustNewRegistry()

	once := r.Expand([]Key{DealsApprove, ReportsExport, RolesAssign})
	twice := r.ExpandSet(once)

	assert.ElementsMatch(t, once.Keys(), twice.Keys())
}

func TestExpand_NoPrerequisites(t *testing.T) {
	r := MustNewRegistry()

	got := r.Expand([]Key{DealsView})

	assert.Equal(t, []Key{DealsView}, got.Keys())
}

func TestValidateKeys(t *testing.T) {
	r := MustNewRegistry()

	assert.Empty(t, r.ValidateKeys([]Key{DealsView, ReportsExport}))
	assert.Equal(t, []Key{"bogus:key"}, r.ValidateKeys([]Key{DealsView, "bogus:key"}))
}
