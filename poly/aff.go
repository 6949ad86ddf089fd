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
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Aff is an integer affine form over one instance space:
//
//	Coeffs[0]*d0 + Coeffs[1]*d1 + ... + Const
//
// where d0..d(r-1) are the coordinates of a rank-r point. Aff is a value
// type; constructors copy their inputs.
type Aff struct {
	Coeffs []int64
	Const  int64
}

// NewAff returns the affine form with the given coefficients and constant.
func NewAff(coeffs []int64, c int64) Aff {
	return Aff{Coeffs: slices.Clone(coeffs), Const: c}
}

// Dim returns the form selecting coordinate d of a rank-r point.
func Dim(rank, d int) Aff {
	if d < 0 || d >= rank {
		panic(fmt.Sprintf("poly: Dim: dimension %d out of range for rank %d", d, rank))
	}
	a := Aff{Coeffs: make([]int64, rank)}
	a.Coeffs[d] = 1
	return a
}

// ConstAff returns the constant form k over a rank-r space.
func ConstAff(rank int, k int64) Aff {
	return Aff{Coeffs: make([]int64, rank), Const: k}
}

// Rank returns the rank of the instance space the form is defined over.
func (a Aff) Rank() int { return len(a.Coeffs) }

// Eval evaluates the form at a point. The coordinate count must match the
// form's rank.
func (a Aff) Eval(coords []int64) int64 {
	if len(coords) != len(a.Coeffs) {
		panic(fmt.Sprintf("poly: Aff.Eval: got %d coords, rank is %d", len(coords), len(a.Coeffs)))
	}
	v := a.Const
	for i, c := range a.Coeffs {
		v += c * coords[i]
	}
	return v
}

// SingleDim reports whether the form depends on exactly one coordinate, and
// if so returns that dimension and its coefficient. Constant forms and forms
// mixing several coordinates return ok=false.
func (a Aff) SingleDim() (dim int, coeff int64, ok bool) {
	dim = -1
	for d, c := range a.Coeffs {
		if c == 0 {
			continue
		}
		if dim >= 0 {
			return 0, 0, false
		}
		dim, coeff = d, c
	}
	if dim < 0 {
		return 0, 0, false
	}
	return dim, coeff, true
}

// IsConstant reports whether the form ignores all coordinates.
func (a Aff) IsConstant() bool {
	for _, c := range a.Coeffs {
		if c != 0 {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two forms.
func (a Aff) Equal(b Aff) bool {
	return a.Const == b.Const && slices.Equal(a.Coeffs, b.Coeffs)
}

// String renders the form over symbolic dimensions d0..d(r-1), e.g.
// "2*d1 + 3".
func (a Aff) String() string {
	var b strings.Builder
	for d, c := range a.Coeffs {
		if c == 0 {
			continue
		}
		if b.Len() > 0 {
			if c > 0 {
				b.WriteString(" + ")
			} else {
				b.WriteString(" - ")
				c = -c
			}
		} else if c < 0 {
			b.WriteString("-")
			c = -c
		}
		if c != 1 {
			b.WriteString(strconv.FormatInt(c, 10))
			b.WriteString("*")
		}
		b.WriteString("d")
		b.WriteString(strconv.Itoa(d))
	}
	if b.Len() == 0 {
		return strconv.FormatInt(a.Const, 10)
	}
	if a.Const > 0 {
		b.WriteString(" + ")
		b.WriteString(strconv.FormatInt(a.Const, 10))
	} else if a.Const < 0 {
		b.WriteString(" - ")
		b.WriteString(strconv.FormatInt(-a.Const, 10))
	}
	return b.String()
}

// MultiAff maps a point to an integer tuple, one form per output dimension.
// All forms must share the input rank.
type MultiAff []Aff

// IdentityMultiAff returns the rank-r identity map.
func IdentityMultiAff(rank int) MultiAff {
	m := make(MultiAff, rank)
	for d := range m {
		m[d] = Dim(rank, d)
	}
	return m
}

// Eval evaluates every component form at the point.
func (m MultiAff) Eval(coords []int64) []int64 {
	out := make([]int64, len(m))
	for i, a := range m {
		out[i] = a.Eval(coords)
	}
	return out
}

// Clone returns an independent copy.
func (m MultiAff) Clone() MultiAff {
	out := make(MultiAff, len(m))
	for i, a := range m {
		out[i] = NewAff(a.Coeffs, a.Const)
	}
	return out
}

// Equal reports component-wise structural equality.
func (m MultiAff) Equal(o MultiAff) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if !m[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// UnionAff is one scalar schedule dimension expressed across tuple spaces:
// for each covered tuple, the affine form giving the dimension's value at an
// instance of that tuple.
type UnionAff map[string]Aff

// Eval evaluates the dimension at a point of the given tuple. ok is false
// when the tuple is not covered.
func (ua UnionAff) Eval(tuple string, coords []int64) (int64, bool) {
	a, ok := ua[tuple]
	if !ok {
		return 0, false
	}
	return a.Eval(coords), true
}

// Covers reports whether the dimension is defined for the tuple.
func (ua UnionAff) Covers(tuple string) bool {
	_, ok := ua[tuple]
	return ok
}

// Tuples returns the covered tuple names, sorted.
func (ua UnionAff) Tuples() []string {
	out := make([]string, 0, len(ua))
	for t := range ua {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy.
func (ua UnionAff) Clone() UnionAff {
	out := make(UnionAff, len(ua))
	for t, a := range ua {
		out[t] = NewAff(a.Coeffs, a.Const)
	}
	return out
}

// MultiUnionAff is an ordered list of schedule dimensions: a map from
// instance points to integer tuples of length Rank(). A schedule prefix is a
// MultiUnionAff collecting the band dimensions above a tree position,
// outermost first.
type MultiUnionAff []UnionAff

// Rank returns the length of the output tuple.
func (m MultiUnionAff) Rank() int { return len(m) }

// Eval maps a point of the given tuple to its schedule tuple. ok is false
// when any dimension does not cover the tuple; the zero-length prefix maps
// every point to the empty tuple.
func (m MultiUnionAff) Eval(tuple string, coords []int64) ([]int64, bool) {
	out := make([]int64, len(m))
	for i, ua := range m {
		v, ok := ua.Eval(tuple, coords)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Covers reports whether every dimension covers the tuple.
func (m MultiUnionAff) Covers(tuple string) bool {
	for _, ua := range m {
		if !ua.Covers(tuple) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (m MultiUnionAff) Clone() MultiUnionAff {
	out := make(MultiUnionAff, len(m))
	for i, ua := range m {
		out[i] = ua.Clone()
	}
	return out
}

// Extent describes the value set of an affine form over a finite domain.
// Min and Max are meaningful only when Count > 0. Dense reports that the
// value set is the full integer interval [Min, Max].
type Extent struct {
	Min, Max int64
	Count    int
	Dense    bool
}

// Size returns the interval length Max-Min+1, or 0 for an empty extent.
func (e Extent) Size() int64 {
	if e.Count == 0 {
		return 0
	}
	return e.Max - e.Min + 1
}

// ExtentOf computes the extent of one schedule dimension over a domain. It
// fails when the domain holds a tuple the dimension does not cover.
func ExtentOf(ua UnionAff, dom *UnionSet) (Extent, error) {
	seen := make(map[int64]struct{})
	var e Extent
	for _, s := range dom.Sets() {
		a, ok := ua[s.Tuple()]
		if !ok {
			return Extent{}, fmt.Errorf("extent: dimension does not cover tuple %q", s.Tuple())
		}
		for _, p := range s.Points() {
			v := a.Eval(p)
			if e.Count == 0 || v < e.Min {
				e.Min = v
			}
			if e.Count == 0 || v > e.Max {
				e.Max = v
			}
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				e.Count++
			}
		}
	}
	e.Dense = e.Count > 0 && int64(e.Count) == e.Max-e.Min+1
	return e, nil
}
