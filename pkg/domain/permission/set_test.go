package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_SubsetOf(t *testing.T) {
	small := NewSet(DealsView, DealsCreate)
	big := NewSet(DealsView, DealsCreate, DealsReview)

	assert.True(t, small.SubsetOf(big))
	assert.False(t, big.SubsetOf(small))
	assert.True(t, NewSet().SubsetOf(small))
}

func TestSet_Difference(t *testing.T) {
	want := NewSet(DealsView, DealsReview, DealsApprove)
	held := NewSet(DealsView, DealsCreate)

	missing := want.Difference(held)

	assert.Equal(t, []Key{DealsApprove, DealsReview}, missing)
}

func TestSet_UnionAndClone(t *testing.T) {
	a := NewSet(DealsView)
	b := NewSet(ReportsView)

	c := a.Clone()
	c.Union(b)

	assert.Equal(t, 1, a.Len())
	assert.ElementsMatch(t, []Key{DealsView, ReportsView}, c.Keys())
}

func TestFromStrings(t *testing.T) {
	keys, unknown := FromStrings([]string{"deals:view", "nope", "reports:export"})

	assert.Equal(t, []Key{DealsView, ReportsExport}, keys)
	assert.Equal(t, []string{"nope"}, unknown)
}
