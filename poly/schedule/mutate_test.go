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
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ajroetker/go-polyhedral/poly"
)

func TestInsertFilterAbove(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)
	half := poly.NewUnionSet(poly.Box("update", []int64{0, 0}, []int64{2, 3}))
	f, err := tr.InsertFilterAbove(band, half)
	if err != nil {
		t.Fatalf("InsertFilterAbove: %v", err)
	}
	if tr.Root().Child(0) != f || f.Child(0) != band {
		t.Fatal("filter not spliced between root and band")
	}
	if got := tr.EffectiveDomain(band); !got.Equal(half) {
		t.Errorf("effective domain below filter = %v, want %v", got, half)
	}
}

func TestRejectedMutationLeavesTreeUnchanged(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)
	before := tr.String()

	outside := poly.NewUnionSet(poly.Box("update", []int64{0, 0}, []int64{9, 9}))
	if _, err := tr.InsertFilterAbove(band, outside); !errors.Is(err, ErrInvariant) {
		t.Fatalf("oversized filter: err = %v, want ErrInvariant", err)
	}
	if diff := cmp.Diff(before, tr.String()); diff != "" {
		t.Errorf("tree changed by rejected mutation (-before +after):\n%s", diff)
	}

	other := New(updateDomain())
	if _, err := tr.InsertBandAbove(other.Root().Child(0), nil); !errors.Is(err, ErrInvariant) {
		t.Fatalf("foreign node: err = %v, want ErrInvariant", err)
	}
	if _, err := tr.InsertFilterAbove(tr.Root(), updateDomain()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("insert above root: err = %v, want ErrInvariant", err)
	}
	if diff := cmp.Diff(before, tr.String()); diff != "" {
		t.Errorf("tree changed by rejected mutation (-before +after):\n%s", diff)
	}
}

func TestInsertSequenceAbove(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)
	lo := poly.NewUnionSet(poly.Box("update", []int64{0, 0}, []int64{2, 3}))
	hi := poly.NewUnionSet(poly.Box("update", []int64{2, 0}, []int64{4, 3}))

	seq, err := tr.InsertSequenceAbove(band, lo, hi)
	if err != nil {
		t.Fatalf("InsertSequenceAbove: %v", err)
	}
	if tr.Root().Child(0) != seq || seq.NumChildren() != 2 {
		t.Fatalf("sequence not in place: %v", tr)
	}
	for i, want := range []*poly.UnionSet{lo, hi} {
		f := seq.Child(i)
		if f.Kind() != KindFilter {
			t.Fatalf("child %d = %v, want filter", i, f)
		}
		if got := tr.EffectiveDomain(f); !got.Equal(want) {
			t.Errorf("part %d domain = %v, want %v", i, got, want)
		}
		if f.Child(0).NumBandDims() != 2 {
			t.Errorf("part %d lost its band copy", i)
		}
	}
	if err := tr.Freeze(); err != nil {
		t.Fatalf("Freeze after split: %v", err)
	}
}

func TestInsertSetAbove(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)
	lo := poly.NewUnionSet(poly.Box("update", []int64{0, 0}, []int64{2, 3}))
	hi := poly.NewUnionSet(poly.Box("update", []int64{2, 0}, []int64{4, 3}))

	set, err := tr.InsertSetAbove(band, lo, hi)
	if err != nil {
		t.Fatalf("InsertSetAbove: %v", err)
	}
	if set.Kind() != KindSet {
		t.Fatalf("node kind = %v, want set", set.Kind())
	}
	if tr.Root().Child(0) != set || set.NumChildren() != 2 {
		t.Fatalf("set not in place: %v", tr)
	}
	for i := 0; i < set.NumChildren(); i++ {
		if set.Child(i).Kind() != KindFilter {
			t.Fatalf("child %d = %v, want filter", i, set.Child(i))
		}
	}
	if _, err := tr.InsertSetAbove(set.Child(0)); !errors.Is(err, ErrInvariant) {
		t.Fatalf("empty set: err = %v, want ErrInvariant", err)
	}
	if err := tr.Freeze(); err != nil {
		t.Fatalf("Freeze after split: %v", err)
	}
}

func TestDetachGraftReorders(t *testing.T) {
	tr := New(twoStatementDomain())
	seq := tr.Root().Child(0)
	fInit := seq.Child(0)

	frag, err := tr.DetachSubtree(fInit)
	if err != nil {
		t.Fatalf("DetachSubtree: %v", err)
	}
	if seq.NumChildren() != 1 {
		t.Fatalf("sequence has %d children after detach, want 1", seq.NumChildren())
	}

	// A domain node cannot take a second child.
	if err := tr.GraftBelow(tr.Root(), frag, 1); !errors.Is(err, ErrInvariant) {
		t.Fatalf("graft below domain: err = %v, want ErrInvariant", err)
	}
	if frag.Root() == nil {
		t.Fatal("failed graft consumed the fragment")
	}

	if err := tr.GraftBelow(seq, frag, 1); err != nil {
		t.Fatalf("GraftBelow: %v", err)
	}
	want := "" +
		"domain(16 points)\n" +
		"  sequence\n" +
		"    filter(update)\n" +
		"      band(2 dims)\n" +
		"    filter(init)\n" +
		"      band(1 dims)\n"
	if diff := cmp.Diff(want, tr.String()); diff != "" {
		t.Errorf("reordered tree mismatch (-want +got):\n%s", diff)
	}
	if err := tr.GraftBelow(seq, frag, 0); !errors.Is(err, ErrInvariant) {
		t.Fatalf("reusing consumed fragment: err = %v, want ErrInvariant", err)
	}
}

func TestReplaceSubtree(t *testing.T) {
	donor := New(updateDomain())
	db := donor.Root().Child(0)
	reversed := []BandDim{
		{Expr: poly.UnionAff{"update": poly.Dim(2, 1)}},
		{Expr: poly.UnionAff{"update": poly.Dim(2, 0)}},
	}
	nb, err := donor.InsertBandAbove(db, reversed)
	if err != nil {
		t.Fatalf("InsertBandAbove: %v", err)
	}
	if err := donor.RemoveSubtree(db); err != nil {
		t.Fatalf("RemoveSubtree: %v", err)
	}
	frag, err := donor.DetachSubtree(nb)
	if err != nil {
		t.Fatalf("DetachSubtree: %v", err)
	}

	tr := New(updateDomain())
	old, err := tr.ReplaceSubtree(tr.Root().Child(0), frag)
	if err != nil {
		t.Fatalf("ReplaceSubtree: %v", err)
	}
	if !old.IsFragment() || old.Root().NumBandDims() != 2 {
		t.Fatalf("displaced subtree = %v", old.Root())
	}
	got := tr.Root().Child(0).BandDims()
	if v, _ := got[0].Expr.Eval("update", []int64{3, 1}); v != 1 {
		t.Errorf("outer dim at update[3,1] = %d, want 1 after reversal", v)
	}
	if v, _ := got[1].Expr.Eval("update", []int64{3, 1}); v != 3 {
		t.Errorf("inner dim at update[3,1] = %d, want 3 after reversal", v)
	}

	// The displaced identity band covers only "update": it cannot serve as
	// the band of an "init" filter.
	tr2 := New(twoStatementDomain())
	fInit := tr2.Root().Child(0).Child(0)
	before := tr2.String()
	if _, err := tr2.ReplaceSubtree(fInit.Child(0), old); !errors.Is(err, ErrInvariant) {
		t.Fatalf("mismatched replacement: err = %v, want ErrInvariant", err)
	}
	if old.Root() == nil {
		t.Fatal("failed replacement consumed the fragment")
	}
	if diff := cmp.Diff(before, tr2.String()); diff != "" {
		t.Errorf("tree changed by rejected replacement:\n%s", diff)
	}
}

func TestRemoveSubtree(t *testing.T) {
	tr := New(twoStatementDomain())
	seq := tr.Root().Child(0)
	if err := tr.RemoveSubtree(seq.Child(0)); err != nil {
		t.Fatalf("RemoveSubtree: %v", err)
	}
	if err := tr.RemoveSubtree(seq.Child(0)); !errors.Is(err, ErrInvariant) {
		t.Fatalf("emptying a sequence: err = %v, want ErrInvariant", err)
	}
	if err := tr.RemoveSubtree(tr.Root()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("removing the root: err = %v, want ErrInvariant", err)
	}
}

func TestMappingValidation(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)

	m, err := tr.InsertMappingAbove(band, "thread.x", 0)
	if err != nil {
		t.Fatalf("InsertMappingAbove: %v", err)
	}
	if m.MappingResource() != "thread.x" || m.MappingDim() != 0 {
		t.Fatalf("mapping payload = %q/%d", m.MappingResource(), m.MappingDim())
	}

	if _, err := tr.InsertMappingAbove(band, "thread.x", 1); !errors.Is(err, ErrInvariant) {
		t.Fatalf("duplicate resource: err = %v, want ErrInvariant", err)
	}
	if _, err := tr.InsertMappingAbove(band, "thread.y", 5); !errors.Is(err, ErrInvariant) {
		t.Fatalf("dimension out of range: err = %v, want ErrInvariant", err)
	}
	if _, err := tr.InsertMappingAbove(band, "thread.y", 1); err != nil {
		t.Fatalf("second resource: %v", err)
	}
}

func TestMappingNeedsBandBelow(t *testing.T) {
	tr := New(updateDomain())
	band := tr.Root().Child(0)
	half := poly.NewUnionSet(poly.Box("update", []int64{0, 0}, []int64{2, 3}))
	f, err := tr.InsertFilterAbove(band, half)
	if err != nil {
		t.Fatalf("InsertFilterAbove: %v", err)
	}
	frag, err := tr.DetachSubtree(band)
	if err != nil {
		t.Fatalf("DetachSubtree: %v", err)
	}
	if _, err := tr.InsertMappingAbove(f, "block.x", 0); !errors.Is(err, ErrInvariant) {
		t.Fatalf("mapping with no band below: err = %v, want ErrInvariant", err)
	}
	if err := tr.GraftBelow(f, frag, 0); err != nil {
		t.Fatalf("GraftBelow: %v", err)
	}
	if _, err := tr.InsertMappingAbove(f, "block.x", 0); err != nil {
		t.Fatalf("mapping above filter with band: %v", err)
	}
}

func constDim(u *poly.UnionSet) poly.UnionAff {
	ua := poly.UnionAff{}
	for _, s := range u.Sets() {
		ua[s.Tuple()] = poly.ConstAff(s.Rank(), 0)
	}
	return ua
}

func randomSubset(rng *rand.Rand, u *poly.UnionSet) *poly.UnionSet {
	out := poly.NewUnionSet()
	for _, s := range u.Sets() {
		sub := poly.NewSet(s.Tuple(), s.Rank())
		for _, p := range s.Points() {
			if rng.Intn(2) == 0 {
				sub.Add(p...)
			}
		}
		out.Add(sub)
	}
	return out
}

// TestMutateFuzz applies random mutations and checks the one invariant the
// mutators promise: every operation either succeeds leaving a valid tree or
// fails leaving the tree untouched.
func TestMutateFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tr := New(twoStatementDomain())

	allNodes := func() []*Node {
		var out []*Node
		tr.Walk(tr.Root(), func(n *Node) bool {
			out = append(out, n)
			return true
		})
		return out
	}

	for i := 0; i < 200; i++ {
		nodes := allNodes()
		n := nodes[rng.Intn(len(nodes))]
		before := tr.String()

		var err error
		switch rng.Intn(4) {
		case 0:
			if n.Parent() == nil {
				continue
			}
			_, err = tr.InsertFilterAbove(n, randomSubset(rng, tr.EffectiveDomain(n.Parent())))
		case 1:
			if n.Parent() == nil {
				continue
			}
			dims := []BandDim{{Expr: constDim(tr.EffectiveDomain(n.Parent()))}}
			_, err = tr.InsertBandAbove(n, dims)
		case 2:
			if n.Parent() == nil {
				continue
			}
			err = tr.RemoveSubtree(n)
		case 3:
			if n.Parent() == nil {
				continue
			}
			parent := n.Parent()
			at := 0
			for j, c := range parent.Children() {
				if c == n {
					at = j
				}
			}
			var frag *Tree
			frag, err = tr.DetachSubtree(n)
			if err == nil {
				if gerr := tr.GraftBelow(parent, frag, at); gerr != nil {
					t.Fatalf("iter %d: graft back failed: %v", i, gerr)
				}
				if diff := cmp.Diff(before, tr.String()); diff != "" {
					t.Fatalf("iter %d: detach+graft roundtrip changed tree:\n%s", i, diff)
				}
			}
		}

		if err != nil {
			if !errors.Is(err, ErrInvariant) {
				t.Fatalf("iter %d: unexpected error class: %v", i, err)
			}
			if diff := cmp.Diff(before, tr.String()); diff != "" {
				t.Fatalf("iter %d: rejected mutation changed tree:\n%s", i, diff)
			}
			continue
		}
		if verr := tr.validate(); verr != nil {
			t.Fatalf("iter %d: tree invalid after accepted mutation: %v", i, verr)
		}
	}
}
