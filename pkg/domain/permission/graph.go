package permission

import (
	"fmt"
)

// requires is the static prerequisite graph: holding a key demands every
// key it maps to. Edges are direct prerequisites only; Expand computes
// the transitive closure.
var requires = map[Key][]Key{
	DealsCreate:  {DealsView},
	DealsEdit:    {DealsView},
	DealsSubmit:  {DealsEdit},
	DealsReview:  {DealsView},
	DealsApprove: {DealsView, DealsReview},
	DealsClose:   {DealsView},
	DealsComment: {DealsView},

	ReportsExport: {ReportsView},

	PartnersManage: {PartnersView},

	MembersManage: {MembersView},
	RolesManage:   {RolesView},
	RolesAssign:   {RolesView},
	BundlesManage: {BundlesView},
}

// Registry holds the catalog and its validated dependency graph.
// It is built once at startup and is read-only afterwards, so it is safe
// for concurrent use without locking.
type Registry struct {
	enabled  map[Key]bool
	requires map[Key][]Key
}

// NewRegistry builds the process-wide registry from the catalog and the
// requires graph. It fails if an edge references an unknown key or if
// the graph contains a cycle.
func NewRegistry() (*Registry, error) {
	return newRegistry(catalog, requires)
}

// MustNewRegistry builds the registry or panics. For use in main and tests
// where the static catalog is known to be well-formed.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

func newRegistry(defs []Definition, edges map[Key][]Key) (*Registry, error) {
	enabled := make(map[Key]bool, len(defs))
	for _, d := range defs {
		enabled[d.Key] = d.Enabled
	}

	for from, tos := range edges {
		if _, ok := enabled[from]; !ok {
			return nil, fmt.Errorf("dependency graph references unknown permission %q", from)
		}
		for _, to := range tos {
			if _, ok := enabled[to]; !ok {
				return nil, fmt.Errorf("permission %q requires unknown permission %q", from, to)
			}
		}
	}

	if cycle := findCycle(edges); cycle != nil {
		return nil, fmt.Errorf("dependency graph contains a cycle: %v", cycle)
	}

	return &Registry{enabled: enabled, requires: edges}, nil
}

// Expand returns the union of keys with the transitive closure of every
// prerequisite edge. It is monotonic (the input is always contained in
// the output) and idempotent.
func (r *Registry) Expand(keys []Key) Set {
	result := NewSet()
	for _, k := range keys {
		r.expandInto(k, result)
	}
	return result
}

// ExpandSet is Expand over an existing set.
func (r *Registry) ExpandSet(s Set) Set {
	result := NewSet()
	for k := range s {
		r.expandInto(k, result)
	}
	return result
}

func (r *Registry) expandInto(k Key, out Set) {
	if out.Has(k) {
		return
	}
	out.Add(k)
	for _, dep := range r.requires[k] {
		r.expandInto(dep, out)
	}
}

// Requires returns the direct prerequisites of a key.
func (r *Registry) Requires(k Key) []Key {
	return r.requires[k]
}

// IsEnabled reports whether the key is present and not soft-disabled.
func (r *Registry) IsEnabled(k Key) bool {
	return r.enabled[k]
}

// ValidateKeys checks that every key is known and enabled, returning the
// offending keys otherwise.
func (r *Registry) ValidateKeys(keys []Key) []Key {
	var bad []Key
	for _, k := range keys {
		if !r.enabled[k] {
			bad = append(bad, k)
		}
	}
	return bad
}

// findCycle runs a three-color DFS over the edge map. It returns a path
// witnessing a cycle, or nil if the graph is acyclic.
func findCycle(edges map[Key][]Key) []Key {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[Key]int, len(edges))

	var path []Key
	var visit func(Key) bool
	visit = func(k Key) bool {
		color[k] = gray
		path = append(path, k)
		for _, next := range edges[k] {
			switch color[next] {
			case gray:
				path = append(path, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[k] = black
		path = path[:len(path)-1]
		return false
	}

	for k := range edges {
		if color[k] == white {
			if visit(k) {
				return path
			}
		}
	}
	return nil
}
