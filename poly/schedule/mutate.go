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
	"fmt"

	"github.com/ajroetker/go-polyhedral/poly"
)

// Mutators apply their edit, re-validate the whole tree, and undo the edit
// when validation fails, so a rejected mutation leaves the tree exactly as
// it was. All of them refuse frozen trees with ErrFrozen and foreign or nil
// nodes with ErrInvariant.

func (t *Tree) ensureMutable() error {
	if t.frozen {
		return ErrFrozen
	}
	return nil
}

func (t *Tree) owns(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvariant)
	}
	if n.tree != t {
		return fmt.Errorf("%w: node %v belongs to another tree", ErrInvariant, n)
	}
	return nil
}

// spliceAbove puts nn between n and its parent and returns the undo.
func spliceAbove(n, nn *Node) func() {
	p := n.parent
	for i, c := range p.children {
		if c == n {
			p.children[i] = nn
			break
		}
	}
	nn.parent = p
	nn.children = []*Node{n}
	n.parent = nn
	return func() {
		for i, c := range p.children {
			if c == nn {
				p.children[i] = n
				break
			}
		}
		n.parent = p
	}
}

func (t *Tree) insertAbove(n, nn *Node) (*Node, error) {
	if err := t.ensureMutable(); err != nil {
		return nil, err
	}
	if err := t.owns(n); err != nil {
		return nil, err
	}
	if n.parent == nil {
		return nil, fmt.Errorf("%w: cannot insert above the root", ErrInvariant)
	}
	undo := spliceAbove(n, nn)
	if err := t.validate(); err != nil {
		undo()
		return nil, err
	}
	return nn, nil
}

// InsertBandAbove inserts a band with the given dimensions between n and
// its parent and returns the new node.
func (t *Tree) InsertBandAbove(n *Node, dims []BandDim) (*Node, error) {
	return t.insertAbove(n, &Node{kind: KindBand, tree: t, dims: cloneDims(dims)})
}

// InsertBandBelow inserts a band between n and its children: the band
// adopts n's children and becomes n's only child.
func (t *Tree) InsertBandBelow(n *Node, dims []BandDim) (*Node, error) {
	if err := t.ensureMutable(); err != nil {
		return nil, err
	}
	if err := t.owns(n); err != nil {
		return nil, err
	}
	nn := &Node{kind: KindBand, tree: t, dims: cloneDims(dims)}
	old := n.children
	nn.children = old
	for _, c := range old {
		c.parent = nn
	}
	nn.parent = n
	n.children = []*Node{nn}
	if err := t.validate(); err != nil {
		n.children = old
		for _, c := range old {
			c.parent = n
		}
		return nil, err
	}
	return nn, nil
}

// InsertFilterAbove inserts a filter restricting n's subtree to the given
// instances.
func (t *Tree) InsertFilterAbove(n *Node, filter *poly.UnionSet) (*Node, error) {
	if filter == nil {
		return nil, fmt.Errorf("%w: nil filter domain", ErrInvariant)
	}
	return t.insertAbove(n, &Node{kind: KindFilter, tree: t, domain: filter.Clone()})
}

// InsertMappingAbove inserts a mapping binding dimension dim of the first
// band below to the named parallel resource.
func (t *Tree) InsertMappingAbove(n *Node, resource string, dim int) (*Node, error) {
	return t.insertAbove(n, &Node{kind: KindMapping, tree: t, resource: resource, dim: dim})
}

// InsertExtensionAbove inserts an extension adding the given auxiliary
// instances to n's subtree.
func (t *Tree) InsertExtensionAbove(n *Node, extra *poly.UnionSet) (*Node, error) {
	if extra == nil {
		return nil, fmt.Errorf("%w: nil extension domain", ErrInvariant)
	}
	return t.insertAbove(n, &Node{kind: KindExtension, tree: t, domain: extra.Clone()})
}

// InsertContextAbove inserts a context binding structure parameters to
// concrete values within n's subtree.
func (t *Tree) InsertContextAbove(n *Node, params map[string]int64) (*Node, error) {
	cp := make(map[string]int64, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return t.insertAbove(n, &Node{kind: KindContext, tree: t, params: cp})
}

// InsertSequenceAbove replaces the subtree at n with an ordered sequence of
// filters, one per part, each over its own copy of that subtree. It returns
// the sequence node.
func (t *Tree) InsertSequenceAbove(n *Node, parts ...*poly.UnionSet) (*Node, error) {
	return t.insertPartsAbove(n, KindSequence, parts)
}

// InsertSetAbove is InsertSequenceAbove without the ordering: the parts may
// execute in any order or interleaving, so code generation separates them
// with no barriers.
func (t *Tree) InsertSetAbove(n *Node, parts ...*poly.UnionSet) (*Node, error) {
	return t.insertPartsAbove(n, KindSet, parts)
}

func (t *Tree) insertPartsAbove(n *Node, kind Kind, parts []*poly.UnionSet) (*Node, error) {
	if err := t.ensureMutable(); err != nil {
		return nil, err
	}
	if err := t.owns(n); err != nil {
		return nil, err
	}
	if n.parent == nil {
		return nil, fmt.Errorf("%w: cannot insert above the root", ErrInvariant)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %v needs at least one part", ErrInvariant, kind)
	}
	seq := &Node{kind: kind, tree: t}
	for _, part := range parts {
		if part == nil {
			return nil, fmt.Errorf("%w: nil sequence part", ErrInvariant)
		}
		f := &Node{kind: KindFilter, tree: t, domain: part.Clone(), parent: seq}
		f.children = []*Node{cloneSubtree(n, t, f)}
		seq.children = append(seq.children, f)
	}
	p := n.parent
	at := -1
	for i, c := range p.children {
		if c == n {
			at = i
			break
		}
	}
	p.children[at] = seq
	seq.parent = p
	n.parent = nil
	if err := t.validate(); err != nil {
		p.children[at] = n
		n.parent = p
		return nil, err
	}
	return seq, nil
}

func setOwner(n *Node, owner *Tree) {
	n.tree = owner
	for _, c := range n.children {
		setOwner(c, owner)
	}
}

func detach(n *Node) (parent *Node, at int) {
	p := n.parent
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			n.parent = nil
			return p, i
		}
	}
	return p, -1
}

func reattach(p *Node, n *Node, at int) {
	p.children = append(p.children, nil)
	copy(p.children[at+1:], p.children[at:])
	p.children[at] = n
	n.parent = p
}

// DetachSubtree removes the subtree rooted at n and returns it as a
// fragment tree that can be grafted elsewhere. The root cannot be detached.
func (t *Tree) DetachSubtree(n *Node) (*Tree, error) {
	if err := t.ensureMutable(); err != nil {
		return nil, err
	}
	if err := t.owns(n); err != nil {
		return nil, err
	}
	if n.parent == nil {
		return nil, fmt.Errorf("%w: cannot detach the root", ErrInvariant)
	}
	p, at := detach(n)
	frag := &Tree{root: n, fragment: true}
	setOwner(n, frag)
	if err := t.validate(); err != nil {
		setOwner(n, t)
		reattach(p, n, at)
		return nil, err
	}
	return frag, nil
}

// GraftBelow inserts a fragment's subtree as child number at of parent. On
// success the fragment is consumed and must not be reused.
func (t *Tree) GraftBelow(parent *Node, frag *Tree, at int) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	if err := t.owns(parent); err != nil {
		return err
	}
	if frag == nil || !frag.fragment || frag.root == nil {
		return fmt.Errorf("%w: graft source is not a live fragment", ErrInvariant)
	}
	if at < 0 || at > len(parent.children) {
		return fmt.Errorf("%w: graft position %d out of range", ErrInvariant, at)
	}
	n := frag.root
	setOwner(n, t)
	reattach(parent, n, at)
	if err := t.validate(); err != nil {
		detach(n)
		setOwner(n, frag)
		return err
	}
	frag.root = nil
	return nil
}

// ReplaceSubtree swaps the subtree at n for a fragment's subtree. On
// success the fragment is consumed and the displaced subtree is returned as
// a new fragment.
func (t *Tree) ReplaceSubtree(n *Node, frag *Tree) (*Tree, error) {
	if err := t.ensureMutable(); err != nil {
		return nil, err
	}
	if err := t.owns(n); err != nil {
		return nil, err
	}
	if n.parent == nil {
		return nil, fmt.Errorf("%w: cannot replace the root", ErrInvariant)
	}
	if frag == nil || !frag.fragment || frag.root == nil {
		return nil, fmt.Errorf("%w: replacement source is not a live fragment", ErrInvariant)
	}
	p, at := detach(n)
	repl := frag.root
	setOwner(repl, t)
	reattach(p, repl, at)
	if err := t.validate(); err != nil {
		detach(repl)
		setOwner(repl, frag)
		reattach(p, n, at)
		return nil, err
	}
	frag.root = nil
	out := &Tree{root: n, fragment: true}
	setOwner(n, out)
	return out, nil
}

// RemoveSubtree deletes the subtree rooted at n. The root cannot be
// removed.
func (t *Tree) RemoveSubtree(n *Node) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	if err := t.owns(n); err != nil {
		return err
	}
	if n.parent == nil {
		return fmt.Errorf("%w: cannot remove the root", ErrInvariant)
	}
	p, at := detach(n)
	if err := t.validate(); err != nil {
		reattach(p, n, at)
		return err
	}
	setOwner(n, nil)
	return nil
}
