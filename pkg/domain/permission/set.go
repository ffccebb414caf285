package permission

import (
	"slices"
	"strings"
)

// Set is an unordered collection of permission keys.
type Set map[Key]struct{}

// NewSet builds a set from the given keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a key into the set.
func (s Set) Add(k Key) {
	s[k] = struct{}{}
}

// Remove deletes a key from the set.
func (s Set) Remove(k Key) {
	delete(s, k)
}

// Has reports whether the set contains the key.
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Union adds every key of other into s.
func (s Set) Union(other Set) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// SubsetOf reports whether every key of s is contained in other.
func (s Set) SubsetOf(other Set) bool {
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// Difference returns the keys of s that are not in other, sorted.
func (s Set) Difference(other Set) []Key {
	var missing []Key
	for k := range s {
		if !other.Has(k) {
			missing = append(missing, k)
		}
	}
	slices.Sort(missing)
	return missing
}

// Keys returns the sorted keys of the set.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Strings returns the sorted string form of the set.
func (s Set) Strings() []string {
	return ToStrings(s.Keys())
}

// String renders the set for logs and error messages.
func (s Set) String() string {
	return strings.Join(s.Strings(), ",")
}

// Len returns the number of keys in the set.
func (s Set) Len() int {
	return len(s)
}
