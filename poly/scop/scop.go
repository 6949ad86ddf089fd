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
	"errors"
	"fmt"
	"slices"

	"github.com/ajroetker/go-polyhedral/poly"
)

// ErrUnknownStatement reports a statement identifier that does not resolve
// against the Scop. Resolution failures signal an upstream bug, so callers
// treat wrapped instances of this error as fatal.
var ErrUnknownStatement = errors.New("unknown statement")

// Scop is the immutable static-control-part model: statements in declaration
// order, their combined iteration domain, the reduction-update registry, and
// the dependence relation computed at build time.
type Scop struct {
	stmts map[string]*Statement
	order []string

	params map[string]int64

	// reductions maps a registered update statement to its reduction
	// dimension indices, sorted.
	reductions map[string][]int

	domain *poly.UnionSet
	deps   []Dependence
	depRel *poly.Relation
	redRel *poly.Relation
}

// Builder accumulates statements and metadata and validates them into a
// Scop. Methods return the builder for chaining; all verification happens in
// Build.
type Builder struct {
	stmts      []*Statement
	reductions map[string][]string
	params     map[string]int64
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		reductions: make(map[string][]string),
		params:     make(map[string]int64),
	}
}

// AddStatement appends one statement in declaration order.
func (b *Builder) AddStatement(st Statement) *Builder {
	c := st
	c.Dims = slices.Clone(st.Dims)
	c.Reads = slices.Clone(st.Reads)
	c.Writes = slices.Clone(st.Writes)
	if st.Domain != nil {
		c.Domain = st.Domain.Clone()
	}
	b.stmts = append(b.stmts, &c)
	return b
}

// RegisterReduction marks a statement as a reduction update over the named
// instance dimensions. Registration is front-end metadata; whether the
// statement actually qualifies for specialized lowering is decided later by
// the reduction matcher.
func (b *Builder) RegisterReduction(stmtID string, dims ...string) *Builder {
	b.reductions[stmtID] = append(b.reductions[stmtID], dims...)
	return b
}

// DeclareParam binds a structure parameter to its concrete value for this
// compilation.
func (b *Builder) DeclareParam(name string, value int64) *Builder {
	b.params[name] = value
	return b
}

// Build validates the accumulated inputs, computes the dependence relation,
// and returns the immutable Scop.
func (b *Builder) Build() (*Scop, error) {
	s := &Scop{
		stmts:      make(map[string]*Statement, len(b.stmts)),
		params:     make(map[string]int64, len(b.params)),
		reductions: make(map[string][]int, len(b.reductions)),
		domain:     poly.NewUnionSet(),
	}
	for name, v := range b.params {
		if name == "" {
			return nil, fmt.Errorf("scop: empty parameter name")
		}
		s.params[name] = v
	}

	for _, st := range b.stmts {
		if err := validateStatement(st); err != nil {
			return nil, fmt.Errorf("scop: %w", err)
		}
		if _, dup := s.stmts[st.ID]; dup {
			return nil, fmt.Errorf("scop: duplicate statement %q", st.ID)
		}
		s.stmts[st.ID] = st
		s.order = append(s.order, st.ID)
		s.domain.Add(st.Domain)
	}

	for id, dims := range b.reductions {
		st, ok := s.stmts[id]
		if !ok {
			return nil, fmt.Errorf("scop: reduction registration: %w %q", ErrUnknownStatement, id)
		}
		if len(dims) == 0 {
			return nil, fmt.Errorf("scop: reduction registration for %q names no dimensions", id)
		}
		idx := make([]int, 0, len(dims))
		for _, d := range dims {
			di := st.DimIndex(d)
			if di < 0 {
				return nil, fmt.Errorf("scop: reduction registration for %q: unknown dimension %q", id, d)
			}
			if slices.Contains(idx, di) {
				return nil, fmt.Errorf("scop: reduction registration for %q: dimension %q repeated", id, d)
			}
			idx = append(idx, di)
		}
		slices.Sort(idx)
		s.reductions[id] = idx
	}

	s.computeDependences()
	s.computeReductionRelation()
	return s, nil
}

func validateStatement(st *Statement) error {
	if st.ID == "" {
		return fmt.Errorf("statement with empty identifier")
	}
	if st.Domain == nil {
		return fmt.Errorf("statement %q: nil domain", st.ID)
	}
	if st.Domain.Tuple() != st.ID {
		return fmt.Errorf("statement %q: domain tuple %q does not match", st.ID, st.Domain.Tuple())
	}
	if st.Domain.Rank() != len(st.Dims) {
		return fmt.Errorf("statement %q: %d dimension names for rank-%d domain",
			st.ID, len(st.Dims), st.Domain.Rank())
	}
	seen := make(map[string]struct{}, len(st.Dims))
	for _, d := range st.Dims {
		if d == "" {
			return fmt.Errorf("statement %q: empty dimension name", st.ID)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("statement %q: duplicate dimension %q", st.ID, d)
		}
		seen[d] = struct{}{}
	}
	if len(st.Writes) != 1 {
		return fmt.Errorf("statement %q: exactly one write access required, got %d", st.ID, len(st.Writes))
	}
	if st.Body.Expr == "" {
		return fmt.Errorf("statement %q: empty body expression", st.ID)
	}
	for _, a := range append(slices.Clone(st.Reads), st.Writes...) {
		if a.Array == "" {
			return fmt.Errorf("statement %q: access with empty array name", st.ID)
		}
		for dim, f := range a.Index {
			if f.Rank() != len(st.Dims) {
				return fmt.Errorf("statement %q: %s %s index dimension %d has rank %d, want %d",
					st.ID, a.Kind, a.Array, dim, f.Rank(), len(st.Dims))
			}
		}
	}
	return nil
}

// Domain returns the combined iteration domain.
func (s *Scop) Domain() *poly.UnionSet { return s.domain.Clone() }

// Statements returns the statements in declaration order. The returned
// statements are shared and must be treated as read-only.
func (s *Scop) Statements() []*Statement {
	out := make([]*Statement, len(s.order))
	for i, id := range s.order {
		out[i] = s.stmts[id]
	}
	return out
}

// Statement resolves an identifier.
func (s *Scop) Statement(id string) (*Statement, bool) {
	st, ok := s.stmts[id]
	return st, ok
}

// Params returns the declared structure parameters.
func (s *Scop) Params() map[string]int64 {
	out := make(map[string]int64, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// IsReductionUpdate reports whether the statement is registered as a
// reduction update.
func (s *Scop) IsReductionUpdate(id string) bool {
	_, ok := s.reductions[id]
	return ok
}

// ReductionDims returns the registered reduction dimension indices of a
// statement, sorted, or nil when the statement is not registered.
func (s *Scop) ReductionDims(id string) []int {
	return slices.Clone(s.reductions[id])
}

// Accumulator returns the write access a registered reduction update
// accumulates into.
func (s *Scop) Accumulator(id string) (Access, bool) {
	if !s.IsReductionUpdate(id) {
		return Access{}, false
	}
	return s.stmts[id].Target(), true
}

// Reductions returns the relation from registered update-statement instances
// to the accumulator cells they combine into.
func (s *Scop) Reductions() *poly.Relation { return s.redRel.Clone() }

func (s *Scop) computeReductionRelation() {
	s.redRel = poly.NewRelation()
	for id := range s.reductions {
		st := s.stmts[id]
		w := st.Target()
		for _, c := range st.Domain.Points() {
			s.redRel.Add(poly.Point{Tuple: id, Coords: c}, w.Cell(c))
		}
	}
}
