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

package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/go-polyhedral/poly"
)

// ErrInvariant tags every structural invariant violation raised by tree
// validation and mutators. These signal an upstream bug; compilation must
// stop when one surfaces.
var ErrInvariant = errors.New("schedule tree invariant violation")

// ErrFrozen reports a mutation attempt on a frozen tree.
var ErrFrozen = errors.New("schedule tree is frozen")

// Tree is a schedule tree with single ownership of its nodes. A fresh tree
// is the canonical identity schedule for its domain; mutators reshape it,
// Freeze validates and locks it for code generation.
//
// Trees returned by DetachSubtree are fragments: structurally valid
// subtrees without the Domain root, which only exist to be grafted back.
type Tree struct {
	root     *Node
	frozen   bool
	fragment bool
}

// New builds the canonical identity tree for a domain: a Domain root over
// per-statement identity bands, wrapped in an ordered Sequence of filters
// when the domain spans several statements. Sequence order follows the
// given tuple order; omitted tuples follow in sorted order. Rank-0
// statements contribute no band.
func New(domain *poly.UnionSet, order ...string) *Tree {
	t := &Tree{}
	t.root = &Node{kind: KindDomain, tree: t, domain: domain.Clone()}

	tuples := orderedTuples(domain, order)
	switch len(tuples) {
	case 0:
		return t
	case 1:
		if band := identityBand(t, domain.Set(tuples[0])); band != nil {
			attach(t.root, band)
		}
		return t
	}

	seq := &Node{kind: KindSequence, tree: t}
	attach(t.root, seq)
	for _, tuple := range tuples {
		set := domain.Set(tuple)
		f := &Node{kind: KindFilter, tree: t, domain: poly.NewUnionSet(set)}
		attach(seq, f)
		if band := identityBand(t, set); band != nil {
			attach(f, band)
		}
	}
	return t
}

func orderedTuples(domain *poly.UnionSet, order []string) []string {
	all := domain.Tuples()
	out := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, t := range order {
		if slices.Contains(all, t) {
			if _, dup := seen[t]; !dup {
				out = append(out, t)
				seen[t] = struct{}{}
			}
		}
	}
	for _, t := range all {
		if _, ok := seen[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func identityBand(t *Tree, set *poly.Set) *Node {
	rank := set.Rank()
	if rank == 0 {
		return nil
	}
	dims := make([]BandDim, rank)
	for d := range dims {
		dims[d] = BandDim{Expr: poly.UnionAff{set.Tuple(): poly.Dim(rank, d)}}
	}
	return &Node{kind: KindBand, tree: t, dims: dims}
}

func attach(parent, child *Node) {
	child.parent = parent
	parent.children = append(parent.children, child)
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// Frozen reports whether the tree has been locked by Freeze.
func (t *Tree) Frozen() bool { return t.frozen }

// IsFragment reports whether the tree is a detached subtree fragment.
func (t *Tree) IsFragment() bool { return t.fragment }

// Freeze validates the full tree and locks it read-only. Code generation
// accepts only frozen trees. Fragments cannot be frozen.
func (t *Tree) Freeze() error {
	if t.fragment {
		return fmt.Errorf("%w: cannot freeze a detached fragment", ErrInvariant)
	}
	if err := t.validate(); err != nil {
		return err
	}
	t.frozen = true
	return nil
}

// Ancestors returns the chain from the node's parent up to the root.
func (t *Tree) Ancestors(n *Node) []*Node {
	var out []*Node
	for p := n.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// Walk visits the subtree under n in preorder. Returning false from fn
// prunes the node's children.
func (t *Tree) Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		t.Walk(c, fn)
	}
}

// EffectiveDomain returns the statement instances active at n: the root
// domain narrowed by every Filter and widened by every Extension on the
// path from the root to n, including n's own payload.
func (t *Tree) EffectiveDomain(n *Node) *poly.UnionSet {
	var path []*Node
	for p := n; p != nil; p = p.parent {
		path = append(path, p)
	}
	slices.Reverse(path)

	dom := poly.NewUnionSet()
	for _, p := range path {
		switch p.kind {
		case KindDomain:
			dom = p.domain.Clone()
		case KindFilter:
			dom = dom.Intersect(p.domain)
		case KindExtension:
			dom = dom.Union(p.domain)
		}
	}
	return dom
}

// Prefix returns the schedule prefix active at n: the dimensions of every
// Band strictly above n, outermost first. The band's own dimensions are not
// part of its prefix.
func (t *Tree) Prefix(n *Node) poly.MultiUnionAff {
	var bands []*Node
	for p := n.parent; p != nil; p = p.parent {
		if p.kind == KindBand {
			bands = append(bands, p)
		}
	}
	slices.Reverse(bands)

	var prefix poly.MultiUnionAff
	for _, b := range bands {
		for _, d := range b.dims {
			prefix = append(prefix, d.Expr.Clone())
		}
	}
	return prefix
}

// String renders the tree as an indented outline, one node per line.
func (t *Tree) String() string {
	var b strings.Builder
	var rec func(n *Node, depth int)
	rec = func(n *Node, depth int) {
		for range depth {
			b.WriteString("  ")
		}
		b.WriteString(n.String())
		b.WriteString("\n")
		for _, c := range n.children {
			rec(c, depth+1)
		}
	}
	if t.root != nil {
		rec(t.root, 0)
	}
	return b.String()
}

// validate checks the full structural contract: single ownership and
// acyclicity, per-kind child rules, filter containment, and mapping
// resolution. It reports the first violation with the offending node.
func (t *Tree) validate() error {
	if t.root == nil {
		return fmt.Errorf("%w: nil root", ErrInvariant)
	}
	if !t.fragment && t.root.kind != KindDomain {
		return fmt.Errorf("%w: root is %v, want domain", ErrInvariant, t.root)
	}
	if t.root.parent != nil {
		return fmt.Errorf("%w: root has a parent", ErrInvariant)
	}
	seen := make(map[*Node]struct{})
	return t.validateNode(t.root, seen, make(map[string]*Node))
}

func (t *Tree) validateNode(n *Node, seen map[*Node]struct{}, bound map[string]*Node) error {
	if _, dup := seen[n]; dup {
		return fmt.Errorf("%w: node %v reachable twice", ErrInvariant, n)
	}
	seen[n] = struct{}{}
	if n.tree != t {
		return fmt.Errorf("%w: node %v owned by another tree", ErrInvariant, n)
	}
	if err := t.validateKind(n); err != nil {
		return err
	}

	if n.kind == KindMapping {
		if prev, dup := bound[n.resource]; dup {
			return fmt.Errorf("%w: resource %q bound twice on one path (%v and %v)",
				ErrInvariant, n.resource, prev, n)
		}
		bound[n.resource] = n
		if err := t.resolveMapping(n); err != nil {
			return err
		}
		defer delete(bound, n.resource)
	}

	for _, c := range n.children {
		if c.parent != n {
			return fmt.Errorf("%w: child %v does not point back to %v", ErrInvariant, c, n)
		}
		if err := t.validateNode(c, seen, bound); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) validateKind(n *Node) error {
	switch n.kind {
	case KindDomain:
		if n != t.root {
			return fmt.Errorf("%w: interior %v", ErrInvariant, n)
		}
		if n.domain == nil {
			return fmt.Errorf("%w: domain node without a domain", ErrInvariant)
		}
		if len(n.children) > 1 {
			return fmt.Errorf("%w: %v has %d children", ErrInvariant, n, len(n.children))
		}
	case KindBand:
		if len(n.children) > 1 {
			return fmt.Errorf("%w: %v has %d children", ErrInvariant, n, len(n.children))
		}
		eff := t.EffectiveDomain(n)
		for i, d := range n.dims {
			for _, tuple := range eff.Tuples() {
				if !d.Expr.Covers(tuple) {
					return fmt.Errorf("%w: %v dimension %d does not cover statement %q",
						ErrInvariant, n, i, tuple)
				}
			}
		}
	case KindFilter:
		if len(n.children) > 1 {
			return fmt.Errorf("%w: %v has %d children", ErrInvariant, n, len(n.children))
		}
		if n.domain == nil {
			return fmt.Errorf("%w: filter without a domain", ErrInvariant)
		}
		if n.parent == nil {
			return fmt.Errorf("%w: filter at root", ErrInvariant)
		}
		if !n.domain.IsSubset(t.EffectiveDomain(n.parent)) {
			return fmt.Errorf("%w: %v is not a subset of its parent's domain", ErrInvariant, n)
		}
	case KindSequence, KindSet:
		if len(n.children) == 0 {
			return fmt.Errorf("%w: empty %v", ErrInvariant, n)
		}
		for _, c := range n.children {
			if c.kind != KindFilter {
				return fmt.Errorf("%w: %v child is %v, want filter", ErrInvariant, n, c)
			}
		}
	case KindMapping:
		if n.resource == "" {
			return fmt.Errorf("%w: mapping without a resource", ErrInvariant)
		}
		if n.dim < 0 {
			return fmt.Errorf("%w: %v has negative dimension", ErrInvariant, n)
		}
		if len(n.children) != 1 {
			return fmt.Errorf("%w: %v has %d children, want 1", ErrInvariant, n, len(n.children))
		}
	case KindExtension, KindContext:
		if n.kind == KindExtension && n.domain == nil {
			return fmt.Errorf("%w: extension without a domain", ErrInvariant)
		}
		if len(n.children) != 1 {
			return fmt.Errorf("%w: %v has %d children, want 1", ErrInvariant, n, len(n.children))
		}
	}
	return nil
}

// resolveMapping checks that on every path below the mapping the first band
// reached has the bound dimension in range.
func (t *Tree) resolveMapping(m *Node) error {
	var firstBands []*Node
	var collect func(n *Node) error
	collect = func(n *Node) error {
		if n.kind == KindBand {
			firstBands = append(firstBands, n)
			return nil
		}
		if len(n.children) == 0 {
			return fmt.Errorf("%w: %v reaches a leaf without a band", ErrInvariant, m)
		}
		for _, c := range n.children {
			if err := collect(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range m.children {
		if err := collect(c); err != nil {
			return err
		}
	}
	for _, b := range firstBands {
		if m.dim >= len(b.dims) {
			return fmt.Errorf("%w: %v binds dimension %d of %v", ErrInvariant, m, m.dim, b)
		}
	}
	return nil
}
