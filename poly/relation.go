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

package poly

import (
	"slices"
	"strings"
)

// Point is one element of a tuple space: a tuple name plus coordinates.
// Schedule-space points use the empty tuple name.
type Point struct {
	Tuple  string
	Coords []int64
}

// NewPoint returns a point holding a copy of the coordinates.
func NewPoint(tuple string, coords ...int64) Point {
	return Point{Tuple: tuple, Coords: slices.Clone(coords)}
}

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	return Point{Tuple: p.Tuple, Coords: slices.Clone(p.Coords)}
}

// Equal reports whether two points are the same element of the same space.
func (p Point) Equal(o Point) bool {
	return p.Tuple == o.Tuple && slices.Equal(p.Coords, o.Coords)
}

// String renders the point as "S[1,2]".
func (p Point) String() string {
	var b strings.Builder
	writePoint(&b, p.Tuple, p.Coords)
	return b.String()
}

func (p Point) key() string {
	return p.Tuple + "[" + coordKey(p.Coords) + "]"
}

func comparePoints(a, b Point) int {
	if c := strings.Compare(a.Tuple, b.Tuple); c != 0 {
		return c
	}
	return slices.Compare(a.Coords, b.Coords)
}

// Pair is one element of a Relation.
type Pair struct {
	Src, Dst Point
}

// Relation is a finite binary relation over points, possibly spanning
// several tuple spaces on either side.
type Relation struct {
	pairs map[string]Pair
}

// NewRelation returns an empty relation.
func NewRelation() *Relation {
	return &Relation{pairs: make(map[string]Pair)}
}

// Add inserts the pair src -> dst.
func (r *Relation) Add(src, dst Point) *Relation {
	p := Pair{Src: src.Clone(), Dst: dst.Clone()}
	r.pairs[p.Src.key()+"->"+p.Dst.key()] = p
	return r
}

// NumPairs returns the number of pairs.
func (r *Relation) NumPairs() int { return len(r.pairs) }

// IsEmpty reports whether the relation holds no pairs.
func (r *Relation) IsEmpty() bool { return len(r.pairs) == 0 }

// Contains reports whether the pair src -> dst is present.
func (r *Relation) Contains(src, dst Point) bool {
	_, ok := r.pairs[src.key()+"->"+dst.key()]
	return ok
}

// Clone returns an independent copy of the relation.
func (r *Relation) Clone() *Relation {
	c := NewRelation()
	for _, p := range r.pairs {
		c.Add(p.Src, p.Dst)
	}
	return c
}

// Union returns a new relation holding the pairs of r and o.
func (r *Relation) Union(o *Relation) *Relation {
	out := r.Clone()
	for _, p := range o.pairs {
		out.Add(p.Src, p.Dst)
	}
	return out
}

// IntersectDomain returns the pairs whose source lies in dom.
func (r *Relation) IntersectDomain(dom *UnionSet) *Relation {
	out := NewRelation()
	for _, p := range r.pairs {
		if dom.ContainsPoint(p.Src) {
			out.Add(p.Src, p.Dst)
		}
	}
	return out
}

// IntersectRange returns the pairs whose destination lies in ran.
func (r *Relation) IntersectRange(ran *UnionSet) *Relation {
	out := NewRelation()
	for _, p := range r.pairs {
		if ran.ContainsPoint(p.Dst) {
			out.Add(p.Src, p.Dst)
		}
	}
	return out
}

// ApplyDomain re-expresses the relation's sources through a schedule prefix:
// the result holds prefix(src) -> dst for every pair whose source tuple the
// prefix covers. Uncovered sources are dropped. Re-expressed sources live in
// the anonymous schedule space (empty tuple name), so sources from different
// statements coincide exactly when their schedule tuples do.
func (r *Relation) ApplyDomain(prefix MultiUnionAff) *Relation {
	out := NewRelation()
	for _, p := range r.pairs {
		v, ok := prefix.Eval(p.Src.Tuple, p.Src.Coords)
		if !ok {
			continue
		}
		out.Add(Point{Tuple: "", Coords: v}, p.Dst)
	}
	return out
}

// IsSingleValued reports whether every source maps to at most one
// destination.
func (r *Relation) IsSingleValued() bool {
	seen := make(map[string]string, len(r.pairs))
	for _, p := range r.pairs {
		sk, dk := p.Src.key(), p.Dst.key()
		if prev, ok := seen[sk]; ok {
			if prev != dk {
				return false
			}
			continue
		}
		seen[sk] = dk
	}
	return true
}

// IsInjective reports whether every destination is reached from at most one
// source.
func (r *Relation) IsInjective() bool {
	seen := make(map[string]string, len(r.pairs))
	for _, p := range r.pairs {
		sk, dk := p.Src.key(), p.Dst.key()
		if prev, ok := seen[dk]; ok {
			if prev != sk {
				return false
			}
			continue
		}
		seen[dk] = sk
	}
	return true
}

// Domain returns the union set of all sources.
func (r *Relation) Domain() *UnionSet {
	return r.collect(func(p Pair) Point { return p.Src })
}

// Range returns the union set of all destinations.
func (r *Relation) Range() *UnionSet {
	return r.collect(func(p Pair) Point { return p.Dst })
}

func (r *Relation) collect(side func(Pair) Point) *UnionSet {
	u := &UnionSet{sets: make(map[string]*Set)}
	for _, p := range r.pairs {
		pt := side(p)
		s, ok := u.sets[pt.Tuple]
		if !ok {
			s = NewSet(pt.Tuple, len(pt.Coords))
			u.sets[pt.Tuple] = s
		}
		s.Add(pt.Coords...)
	}
	return u
}

// PairsList returns all pairs sorted by source, then destination.
func (r *Relation) PairsList() []Pair {
	out := make([]Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, Pair{Src: p.Src.Clone(), Dst: p.Dst.Clone()})
	}
	slices.SortFunc(out, func(a, b Pair) int {
		if c := comparePoints(a.Src, b.Src); c != 0 {
			return c
		}
		return comparePoints(a.Dst, b.Dst)
	})
	return out
}

// String renders the relation as "{ S[0] -> A[0]; ... }".
func (r *Relation) String() string {
	if r.IsEmpty() {
		return "{ }"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i, p := range r.PairsList() {
		if i > 0 {
			b.WriteString("; ")
		}
		writePoint(&b, p.Src.Tuple, p.Src.Coords)
		b.WriteString(" -> ")
		writePoint(&b, p.Dst.Tuple, p.Dst.Coords)
	}
	b.WriteString(" }")
	return b.String()
}
