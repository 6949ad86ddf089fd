// Copyright 2026 go-polyhedral Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package poly implements the finite integer set and affine relation algebra
// that the scheduling and code-generation layers are built on: sparse sets of
// integer points grouped by named tuple space, affine forms over those
// spaces, and finite binary relations between points.
//
// Sets are sparse but explicit: every point is materialized, which keeps the
// operation set (union, intersect, subtract, subset, apply, single-valued)
// exact and trivially auditable. Iteration domains in this compiler are
// bounded loop nests, so the point counts stay small.
//
// All enumeration orders are deterministic. Points(), Sets(), Tuples() and
// PairsList() sort lexicographically, so identical inputs always produce
// identical downstream artifacts.
package poly

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Set is a finite collection of integer points inside a single named tuple
// space. The tuple name identifies the instance space (conventionally a
// statement identifier) and rank is the number of coordinates per point.
//
// The zero value is not usable; construct with NewSet or Box.
type Set struct {
	tuple string
	rank  int
	pts   map[string][]int64
}

// NewSet returns an empty set over the given tuple space.
func NewSet(tuple string, rank int) *Set {
	if rank < 0 {
		panic(fmt.Sprintf("poly: NewSet %s: negative rank %d", tuple, rank))
	}
	return &Set{tuple: tuple, rank: rank, pts: make(map[string][]int64)}
}

// Box returns the set of all points p with lo[d] <= p[d] < hi[d] in every
// dimension d. Any empty range yields an empty set. A zero-length box holds
// the single rank-0 point. lo and hi must have equal length.
func Box(tuple string, lo, hi []int64) *Set {
	if len(lo) != len(hi) {
		panic(fmt.Sprintf("poly: Box %s: lo rank %d != hi rank %d", tuple, len(lo), len(hi)))
	}
	s := NewSet(tuple, len(lo))
	for d := range lo {
		if lo[d] >= hi[d] {
			return s
		}
	}
	cur := slices.Clone(lo)
	for {
		s.Add(cur...)
		d := len(cur) - 1
		for ; d >= 0; d-- {
			cur[d]++
			if cur[d] < hi[d] {
				break
			}
			cur[d] = lo[d]
		}
		if d < 0 {
			return s
		}
	}
}

// Tuple returns the name of the set's tuple space.
func (s *Set) Tuple() string { return s.tuple }

// Rank returns the number of coordinates per point.
func (s *Set) Rank() int { return s.rank }

// Size returns the number of points in the set.
func (s *Set) Size() int { return len(s.pts) }

// IsEmpty reports whether the set holds no points.
func (s *Set) IsEmpty() bool { return len(s.pts) == 0 }

// Add inserts one point. The number of coordinates must match the set's
// rank.
func (s *Set) Add(coords ...int64) *Set {
	if len(coords) != s.rank {
		panic(fmt.Sprintf("poly: Add to %s: got %d coords, rank is %d", s.tuple, len(coords), s.rank))
	}
	s.pts[coordKey(coords)] = slices.Clone(coords)
	return s
}

// Contains reports whether the set holds the given point.
func (s *Set) Contains(coords ...int64) bool {
	if len(coords) != s.rank {
		return false
	}
	_, ok := s.pts[coordKey(coords)]
	return ok
}

// Points returns all points in lexicographic order. The returned slices are
// copies; callers may keep or modify them.
func (s *Set) Points() [][]int64 {
	out := make([][]int64, 0, len(s.pts))
	for _, p := range s.pts {
		out = append(out, slices.Clone(p))
	}
	slices.SortFunc(out, slices.Compare)
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	c := NewSet(s.tuple, s.rank)
	for k, p := range s.pts {
		c.pts[k] = slices.Clone(p)
	}
	return c
}

// Union returns a new set holding the points of s and o. Both sets must
// share the same tuple space.
func (s *Set) Union(o *Set) *Set {
	s.compat(o, "Union")
	out := s.Clone()
	for k, p := range o.pts {
		out.pts[k] = slices.Clone(p)
	}
	return out
}

// Intersect returns a new set holding the points present in both s and o.
func (s *Set) Intersect(o *Set) *Set {
	s.compat(o, "Intersect")
	out := NewSet(s.tuple, s.rank)
	for k, p := range s.pts {
		if _, ok := o.pts[k]; ok {
			out.pts[k] = slices.Clone(p)
		}
	}
	return out
}

// Subtract returns a new set holding the points of s not present in o.
func (s *Set) Subtract(o *Set) *Set {
	s.compat(o, "Subtract")
	out := NewSet(s.tuple, s.rank)
	for k, p := range s.pts {
		if _, ok := o.pts[k]; !ok {
			out.pts[k] = slices.Clone(p)
		}
	}
	return out
}

// IsSubset reports whether every point of s is also in o.
func (s *Set) IsSubset(o *Set) bool {
	if s.tuple != o.tuple || s.rank != o.rank {
		return false
	}
	for k := range s.pts {
		if _, ok := o.pts[k]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether s and o hold exactly the same points of the same
// tuple space.
func (s *Set) Equal(o *Set) bool {
	return len(s.pts) == len(o.pts) && s.IsSubset(o)
}

// String renders the set in braced point-list form, e.g. "{ S[0,0]; S[0,1] }".
func (s *Set) String() string {
	if s.IsEmpty() {
		return "{ }"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i, p := range s.Points() {
		if i > 0 {
			b.WriteString("; ")
		}
		writePoint(&b, s.tuple, p)
	}
	b.WriteString(" }")
	return b.String()
}

func (s *Set) compat(o *Set, op string) {
	if s.tuple != o.tuple || s.rank != o.rank {
		panic(fmt.Sprintf("poly: %s: incompatible spaces %s/%d and %s/%d",
			op, s.tuple, s.rank, o.tuple, o.rank))
	}
}

// UnionSet is a set of points spanning several tuple spaces, keyed by tuple
// name. Empty per-tuple sets are normalized away: a tuple is listed only
// while it holds at least one point.
type UnionSet struct {
	sets map[string]*Set
}

// NewUnionSet returns a union set holding copies of the given sets. Sets
// sharing a tuple name are merged; their ranks must agree.
func NewUnionSet(sets ...*Set) *UnionSet {
	u := &UnionSet{sets: make(map[string]*Set)}
	for _, s := range sets {
		u.Add(s)
	}
	return u
}

// Add merges a copy of s into u. Adding an empty set is a no-op.
func (u *UnionSet) Add(s *Set) *UnionSet {
	if s.IsEmpty() {
		return u
	}
	if have, ok := u.sets[s.tuple]; ok {
		u.sets[s.tuple] = have.Union(s)
		return u
	}
	u.sets[s.tuple] = s.Clone()
	return u
}

// Set returns a copy of the per-tuple set, or nil when the tuple is absent.
func (u *UnionSet) Set(tuple string) *Set {
	s, ok := u.sets[tuple]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Tuples returns the tuple names present in u, sorted.
func (u *UnionSet) Tuples() []string {
	out := make([]string, 0, len(u.sets))
	for t := range u.sets {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Sets returns copies of the per-tuple sets, sorted by tuple name.
func (u *UnionSet) Sets() []*Set {
	out := make([]*Set, 0, len(u.sets))
	for _, t := range u.Tuples() {
		out = append(out, u.sets[t].Clone())
	}
	return out
}

// NumPoints returns the total point count across all tuple spaces.
func (u *UnionSet) NumPoints() int {
	n := 0
	for _, s := range u.sets {
		n += s.Size()
	}
	return n
}

// IsEmpty reports whether u holds no points.
func (u *UnionSet) IsEmpty() bool { return len(u.sets) == 0 }

// ContainsPoint reports whether u holds the given point.
func (u *UnionSet) ContainsPoint(p Point) bool {
	s, ok := u.sets[p.Tuple]
	return ok && s.Contains(p.Coords...)
}

// Clone returns an independent copy of u.
func (u *UnionSet) Clone() *UnionSet {
	c := &UnionSet{sets: make(map[string]*Set, len(u.sets))}
	for t, s := range u.sets {
		c.sets[t] = s.Clone()
	}
	return c
}

// Union returns a new union set holding the points of u and o.
func (u *UnionSet) Union(o *UnionSet) *UnionSet {
	out := u.Clone()
	for _, s := range o.sets {
		out.Add(s)
	}
	return out
}

// Intersect returns a new union set holding the points present in both.
func (u *UnionSet) Intersect(o *UnionSet) *UnionSet {
	out := &UnionSet{sets: make(map[string]*Set)}
	for t, s := range u.sets {
		if os, ok := o.sets[t]; ok {
			if is := s.Intersect(os); !is.IsEmpty() {
				out.sets[t] = is
			}
		}
	}
	return out
}

// Subtract returns a new union set holding the points of u not in o.
func (u *UnionSet) Subtract(o *UnionSet) *UnionSet {
	out := &UnionSet{sets: make(map[string]*Set)}
	for t, s := range u.sets {
		os, ok := o.sets[t]
		if !ok {
			out.sets[t] = s.Clone()
			continue
		}
		if d := s.Subtract(os); !d.IsEmpty() {
			out.sets[t] = d
		}
	}
	return out
}

// IsSubset reports whether every point of u is also in o.
func (u *UnionSet) IsSubset(o *UnionSet) bool {
	for t, s := range u.sets {
		os, ok := o.sets[t]
		if !ok || !s.IsSubset(os) {
			return false
		}
	}
	return true
}

// Equal reports whether u and o hold exactly the same points.
func (u *UnionSet) Equal(o *UnionSet) bool {
	return len(u.sets) == len(o.sets) && u.IsSubset(o)
}

// String renders all points grouped by tuple, e.g. "{ A[0]; S[0,1] }".
func (u *UnionSet) String() string {
	if u.IsEmpty() {
		return "{ }"
	}
	var b strings.Builder
	b.WriteString("{ ")
	first := true
	for _, t := range u.Tuples() {
		for _, p := range u.sets[t].Points() {
			if !first {
				b.WriteString("; ")
			}
			first = false
			writePoint(&b, t, p)
		}
	}
	b.WriteString(" }")
	return b.String()
}

func coordKey(coords []int64) string {
	var b strings.Builder
	for i, c := range coords {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(c, 10))
	}
	return b.String()
}

func writePoint(b *strings.Builder, tuple string, coords []int64) {
	b.WriteString(tuple)
	b.WriteByte('[')
	b.WriteString(coordKey(coords))
	b.WriteByte(']')
}
