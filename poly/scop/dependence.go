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

package scop

import (
	"fmt"
	"slices"
	"strings"

	"modernc.org/mathutil"

	"github.com/ajroetker/go-polyhedral/poly"
)

// DepKind classifies a dependence by the access kinds at its endpoints.
type DepKind uint8

const (
	// DepFlow orders a write before a read of the same cell (RAW).
	DepFlow DepKind = iota
	// DepAnti orders a read before a write of the same cell (WAR).
	DepAnti
	// DepOutput orders two writes to the same cell (WAW).
	DepOutput
)

var depKindNames = [...]string{
	DepFlow:   "flow",
	DepAnti:   "anti",
	DepOutput: "output",
}

// String returns "flow", "anti" or "output".
func (k DepKind) String() string {
	if int(k) < len(depKindNames) {
		return depKindNames[k]
	}
	return fmt.Sprintf("DepKind(%d)", uint8(k))
}

// Dependence orders two statement instances that touch the same array cell,
// at least one of them writing. Src executes before Dst in the original
// program order; any schedule must preserve that order or separate the two
// with a barrier.
type Dependence struct {
	Src, Dst poly.Point
	Kind     DepKind
	Array    string
}

// String renders the dependence as "update[0,0] -> update[0,1] (flow on acc)".
func (d Dependence) String() string {
	return fmt.Sprintf("%v -> %v (%v on %s)", d.Src, d.Dst, d.Kind, d.Array)
}

// Dependences returns the dependence relation as bare instance pairs.
func (s *Scop) Dependences() *poly.Relation { return s.depRel.Clone() }

// DependenceList returns every dependence with its classification, sorted by
// source, destination, kind, array.
func (s *Scop) DependenceList() []Dependence { return slices.Clone(s.deps) }

// accessRef pairs an access with its statement and declaration position.
type accessRef struct {
	st  *Statement
	ord int
	acc Access
}

// computeDependences enumerates conflicting instance pairs exactly. The
// original program order is declaration-major, lexicographic-minor: each
// statement's loop nest runs to completion before the next statement's nest
// starts. Access pairs that the GCD feasibility test proves disjoint are
// skipped without enumeration.
func (s *Scop) computeDependences() {
	var refs []accessRef
	for ord, id := range s.order {
		st := s.stmts[id]
		for _, a := range st.Reads {
			refs = append(refs, accessRef{st: st, ord: ord, acc: a})
		}
		for _, a := range st.Writes {
			refs = append(refs, accessRef{st: st, ord: ord, acc: a})
		}
	}

	seen := make(map[string]struct{})
	s.depRel = poly.NewRelation()
	for i := range refs {
		for j := i; j < len(refs); j++ {
			a, b := refs[i], refs[j]
			if a.acc.Kind != AccessWrite && b.acc.Kind != AccessWrite {
				continue
			}
			if a.acc.Array != b.acc.Array {
				continue
			}
			if !mayConflict(a.acc, b.acc) {
				continue
			}
			s.conflictPairs(a, b, seen)
		}
	}

	slices.SortFunc(s.deps, compareDependences)
}

// conflictPairs enumerates instances of a and b touching the same cell and
// records each pair in original-program order.
func (s *Scop) conflictPairs(a, b accessRef, seen map[string]struct{}) {
	cells := make(map[string][][]int64)
	for _, x := range a.st.Domain.Points() {
		k := a.acc.Cell(x).String()
		cells[k] = append(cells[k], x)
	}
	for _, y := range b.st.Domain.Points() {
		k := b.acc.Cell(y).String()
		for _, x := range cells[k] {
			if a.st == b.st && slices.Equal(x, y) {
				continue
			}
			if execBefore(a.ord, x, b.ord, y) {
				s.addDependence(a, x, b, y, seen)
			} else {
				s.addDependence(b, y, a, x, seen)
			}
		}
	}
}

func (s *Scop) addDependence(e accessRef, ec []int64, l accessRef, lc []int64, seen map[string]struct{}) {
	var kind DepKind
	switch {
	case e.acc.Kind == AccessWrite && l.acc.Kind == AccessRead:
		kind = DepFlow
	case e.acc.Kind == AccessRead && l.acc.Kind == AccessWrite:
		kind = DepAnti
	default:
		kind = DepOutput
	}
	d := Dependence{
		Src:   poly.NewPoint(e.st.ID, ec...),
		Dst:   poly.NewPoint(l.st.ID, lc...),
		Kind:  kind,
		Array: e.acc.Array,
	}
	key := d.String()
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}
	s.deps = append(s.deps, d)
	s.depRel.Add(d.Src, d.Dst)
}

func execBefore(ordA int, a []int64, ordB int, b []int64) bool {
	if ordA != ordB {
		return ordA < ordB
	}
	return slices.Compare(a, b) < 0
}

func compareDependences(a, b Dependence) int {
	if c := comparePointsExec(a.Src, b.Src); c != 0 {
		return c
	}
	if c := comparePointsExec(a.Dst, b.Dst); c != 0 {
		return c
	}
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	return strings.Compare(a.Array, b.Array)
}

func comparePointsExec(a, b poly.Point) int {
	if c := strings.Compare(a.Tuple, b.Tuple); c != 0 {
		return c
	}
	return slices.Compare(a.Coords, b.Coords)
}

// mayConflict applies the GCD feasibility test per array dimension: the cell
// equation a(x) = b(y) has integer solutions only if gcd of all coefficients
// divides the constant difference. A false result proves the accesses
// disjoint; true means the exact enumeration must decide.
func mayConflict(a, b Access) bool {
	if len(a.Index) != len(b.Index) {
		return true
	}
	for d := range a.Index {
		g := int64(0)
		for _, c := range a.Index[d].Coeffs {
			g = gcd64(g, c)
		}
		for _, c := range b.Index[d].Coeffs {
			g = gcd64(g, c)
		}
		diff := b.Index[d].Const - a.Index[d].Const
		if g == 0 {
			if diff != 0 {
				return false
			}
			continue
		}
		if diff%g != 0 {
			return false
		}
	}
	return true
}

func gcd64(a, b int64) int64 {
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	if ua == 0 {
		return int64(ub)
	}
	if ub == 0 {
		return int64(ua)
	}
	return int64(mathutil.GCDUint64(ua, ub))
}

// ConcurrentAccumulationSafe reports whether distinct instances of a
// statement that share a scheduled point under prefix are free of conflicts
// on every array other than the statement's registered accumulator. A true
// result licenses accumulating directly into the target instead of staging
// through a private accumulator; co-scheduled instances execute sequentially
// on their resource, so accumulator-carried ordering is preserved there.
//
// Statements the prefix does not cover are conservatively unsafe. An unknown
// statement identifier is a fatal resolution failure.
func (s *Scop) ConcurrentAccumulationSafe(id string, domain *poly.UnionSet, prefix poly.MultiUnionAff) (bool, error) {
	st, ok := s.stmts[id]
	if !ok {
		return false, fmt.Errorf("scop: concurrent accumulation query: %w %q", ErrUnknownStatement, id)
	}
	if !prefix.Covers(id) {
		return false, nil
	}
	accArray := ""
	if s.IsReductionUpdate(id) {
		accArray = st.Target().Array
	}
	for _, d := range s.deps {
		if d.Src.Tuple != id || d.Dst.Tuple != id {
			continue
		}
		if d.Array == accArray {
			continue
		}
		if !domain.ContainsPoint(d.Src) || !domain.ContainsPoint(d.Dst) {
			continue
		}
		sv, _ := prefix.Eval(id, d.Src.Coords)
		dv, _ := prefix.Eval(id, d.Dst.Coords)
		if slices.Equal(sv, dv) {
			return false, nil
		}
	}
	return true, nil
}
