package profile

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LevelSet is a set of level numbers. It encodes as a sorted JSON array.
type LevelSet map[int]struct{}

// NewLevelSet returns a set holding the given levels.
func NewLevelSet(levels ...int) LevelSet {
	s := make(LevelSet, len(levels))
	for _, l := range levels {
		s[l] = struct{}{}
	}
	return s
}

// Add inserts a level.
func (s LevelSet) Add(level int) {
	s[level] = struct{}{}
}

// Contains reports whether level is in the set.
func (s LevelSet) Contains(level int) bool {
	_, ok := s[level]
	return ok
}

// Len returns the number of levels in the set.
func (s LevelSet) Len() int {
	return len(s)
}

// Sorted returns the levels in ascending order.
func (s LevelSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy. Cloning a nil set yields an empty set.
func (s LevelSet) Clone() LevelSet {
	out := make(LevelSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same levels.
func (s LevelSet) Equal(other LevelSet) bool {
	if len(s) != len(other) {
		return false
	}
	for l := range s {
		if !other.Contains(l) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (s LevelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null decodes to an empty set.
func (s *LevelSet) UnmarshalJSON(data []byte) error {
	var levels []int
	if err := json.Unmarshal(data, &levels); err != nil {
		return fmt.Errorf("level set must be an array of integers: %w", err)
	}
	*s = NewLevelSet(levels...)
	return nil
}
