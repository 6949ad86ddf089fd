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

// Package schedule implements the hierarchical schedule tree: the mutable
// structure expressing execution order and parallel-resource bindings that
// scheduling passes transform and code generation consumes.
//
// A Tree owns every node it contains; nodes are never shared between trees
// or parents. Mutators re-establish the structural invariants before
// returning. After Freeze the tree is read-only.
package schedule

import (
	"fmt"
	"strings"

	"github.com/ajroetker/go-polyhedral/poly"
)

// Kind discriminates schedule tree nodes.
type Kind uint8

const (
	// KindDomain is the root: it introduces the full iteration domain.
	KindDomain Kind = iota
	// KindBand holds an ordered list of schedule dimensions.
	KindBand
	// KindFilter restricts the subtree to a subset of the domain.
	KindFilter
	// KindSequence runs its children in order, each completing before the
	// next starts.
	KindSequence
	// KindSet runs its children in any order or interleaving.
	KindSet
	// KindMapping binds one band dimension to a parallel resource.
	KindMapping
	// KindExtension injects auxiliary statement instances into the subtree.
	KindExtension
	// KindContext binds structure parameters to concrete values.
	KindContext
)

var kindNames = [...]string{
	KindDomain:    "domain",
	KindBand:      "band",
	KindFilter:    "filter",
	KindSequence:  "sequence",
	KindSet:       "set",
	KindMapping:   "mapping",
	KindExtension: "extension",
	KindContext:   "context",
}

// String returns the node kind's lower-case name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// BandDim is one schedule dimension of a band: an affine form per covered
// statement plus the per-dimension scheduling flags.
type BandDim struct {
	// Expr gives the dimension's value for each covered statement tuple.
	Expr poly.UnionAff

	// Coincident marks the dimension as carrying no dependence, so its
	// iterations may execute in parallel.
	Coincident bool

	// Permutable marks the dimension as freely interchangeable with its
	// band neighbors.
	Permutable bool
}

func (d BandDim) clone() BandDim {
	return BandDim{Expr: d.Expr.Clone(), Coincident: d.Coincident, Permutable: d.Permutable}
}

// Node is one schedule tree node. Exactly one of the payload fields is
// meaningful, selected by the kind. Nodes are created and rearranged only
// through Tree methods; a node with no children is a leaf position.
type Node struct {
	kind     Kind
	parent   *Node
	children []*Node
	tree     *Tree

	// domain is the payload of Domain, Filter and Extension nodes.
	domain *poly.UnionSet
	// dims is the payload of Band nodes.
	dims []BandDim
	// resource and dim are the payload of Mapping nodes.
	resource string
	dim      int
	// params is the payload of Context nodes.
	params map[string]int64
}

// Kind returns the node's discriminant.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the owning parent, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// NumChildren returns the child count.
func (n *Node) NumChildren() int { return len(n.children) }

// Child returns the i-th child, or nil when out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Domain returns a copy of the payload of a Domain, Filter or Extension
// node, and nil for any other kind.
func (n *Node) Domain() *poly.UnionSet {
	if n.domain == nil {
		return nil
	}
	return n.domain.Clone()
}

// BandDims returns a copy of a band's dimensions, nil for other kinds.
func (n *Node) BandDims() []BandDim {
	if n.kind != KindBand {
		return nil
	}
	out := make([]BandDim, len(n.dims))
	for i, d := range n.dims {
		out[i] = d.clone()
	}
	return out
}

// NumBandDims returns a band's dimension count, 0 for other kinds.
func (n *Node) NumBandDims() int {
	if n.kind != KindBand {
		return 0
	}
	return len(n.dims)
}

// MappingResource returns the resource a Mapping node binds, "" otherwise.
func (n *Node) MappingResource() string { return n.resource }

// MappingDim returns the band dimension index a Mapping node binds.
func (n *Node) MappingDim() int { return n.dim }

// ContextParams returns a copy of a Context node's parameter bindings.
func (n *Node) ContextParams() map[string]int64 {
	if n.params == nil {
		return nil
	}
	out := make(map[string]int64, len(n.params))
	for k, v := range n.params {
		out[k] = v
	}
	return out
}

// String renders the node kind with a short payload summary, for
// diagnostics.
func (n *Node) String() string {
	switch n.kind {
	case KindDomain:
		return fmt.Sprintf("domain(%d points)", n.domain.NumPoints())
	case KindBand:
		return fmt.Sprintf("band(%d dims)", len(n.dims))
	case KindFilter:
		return fmt.Sprintf("filter(%s)", strings.Join(n.domain.Tuples(), ","))
	case KindMapping:
		return fmt.Sprintf("mapping(%s <- dim %d)", n.resource, n.dim)
	case KindExtension:
		return fmt.Sprintf("extension(%s)", strings.Join(n.domain.Tuples(), ","))
	case KindContext:
		return fmt.Sprintf("context(%d params)", len(n.params))
	default:
		return n.kind.String()
	}
}

func cloneDims(dims []BandDim) []BandDim {
	out := make([]BandDim, len(dims))
	for i, d := range dims {
		out[i] = d.clone()
	}
	return out
}

// cloneSubtree deep-copies a subtree for the given owner tree.
func cloneSubtree(n *Node, owner *Tree, parent *Node) *Node {
	c := &Node{
		kind:     n.kind,
		parent:   parent,
		tree:     owner,
		resource: n.resource,
		dim:      n.dim,
	}
	if n.domain != nil {
		c.domain = n.domain.Clone()
	}
	if n.dims != nil {
		c.dims = cloneDims(n.dims)
	}
	if n.params != nil {
		c.params = make(map[string]int64, len(n.params))
		for k, v := range n.params {
			c.params[k] = v
		}
	}
	c.children = make([]*Node, len(n.children))
	for i, ch := range n.children {
		c.children[i] = cloneSubtree(ch, owner, c)
	}
	return c
}
