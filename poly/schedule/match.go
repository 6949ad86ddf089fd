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

// Pattern describes a subtree shape for structural matching. Build patterns
// from the per-kind combinators plus Any and Leaf:
//
//	schedule.Sequence(schedule.Filter(schedule.Band()), schedule.Any())
//
// A kind combinator called without arguments matches a node of that kind
// with any children. With arguments, the node's children must match the
// argument patterns position by position; a Leaf argument also matches a
// missing child, so Band(Leaf()) matches a band at the bottom of the tree.
type Pattern struct {
	wildcard bool
	leaf     bool
	kind     Kind
	anyShape bool
	children []Pattern
}

// Any matches any single node, children ignored.
func Any() Pattern { return Pattern{wildcard: true} }

// Leaf matches a childless position: a node without children, or the
// absence of a child.
func Leaf() Pattern { return Pattern{leaf: true} }

func kindPattern(k Kind, children []Pattern) Pattern {
	return Pattern{kind: k, anyShape: len(children) == 0, children: children}
}

// Domain matches a domain node.
func Domain(children ...Pattern) Pattern { return kindPattern(KindDomain, children) }

// Band matches a band node.
func Band(children ...Pattern) Pattern { return kindPattern(KindBand, children) }

// Filter matches a filter node.
func Filter(children ...Pattern) Pattern { return kindPattern(KindFilter, children) }

// Sequence matches a sequence node.
func Sequence(children ...Pattern) Pattern { return kindPattern(KindSequence, children) }

// Set matches a set node.
func Set(children ...Pattern) Pattern { return kindPattern(KindSet, children) }

// Mapping matches a mapping node.
func Mapping(children ...Pattern) Pattern { return kindPattern(KindMapping, children) }

// Extension matches an extension node.
func Extension(children ...Pattern) Pattern { return kindPattern(KindExtension, children) }

// Context matches a context node.
func Context(children ...Pattern) Pattern { return kindPattern(KindContext, children) }

// Match reports whether the subtree rooted at n matches the pattern.
func Match(p Pattern, n *Node) bool {
	if n == nil {
		return p.leaf
	}
	if p.wildcard {
		return true
	}
	if p.leaf {
		return len(n.children) == 0
	}
	if n.kind != p.kind {
		return false
	}
	if p.anyShape {
		return true
	}
	if len(n.children) > len(p.children) {
		return false
	}
	for i, cp := range p.children {
		var c *Node
		if i < len(n.children) {
			c = n.children[i]
		}
		if !Match(cp, c) {
			return false
		}
	}
	return true
}

// FindAll returns every node in the tree whose subtree matches the pattern,
// in preorder.
func (t *Tree) FindAll(p Pattern) []*Node {
	var out []*Node
	t.Walk(t.root, func(n *Node) bool {
		if Match(p, n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindFirst returns the first node in preorder whose subtree matches the
// pattern.
func (t *Tree) FindFirst(p Pattern) (*Node, bool) {
	var found *Node
	t.Walk(t.root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if Match(p, n) {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}
