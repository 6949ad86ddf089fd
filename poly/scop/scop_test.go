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
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-polyhedral/poly"
)

// buildReductionScop is the canonical accumulation region used throughout
// the tests: init zeroes acc[i], update folds B[i,j] into acc[i].
func buildReductionScop(t *testing.T) *Scop {
	t.Helper()
	b := NewBuilder()
	b.AddStatement(Statement{
		ID:     "init",
		Dims:   []string{"i"},
		Domain: poly.Box("init", []int64{0}, []int64{10}),
		Writes: []Access{Write("acc", poly.MultiAff{poly.Dim(1, 0)})},
		Body:   Body{Op: OpNone, Expr: "0"},
	})
	b.AddStatement(Statement{
		ID:     "update",
		Dims:   []string{"i", "j"},
		Domain: poly.Box("update", []int64{0, 0}, []int64{10, 5}),
		Reads: []Access{
			Read("acc", poly.MultiAff{poly.Dim(2, 0)}),
			Read("B", poly.MultiAff{poly.Dim(2, 0), poly.Dim(2, 1)}),
		},
		Writes: []Access{Write("acc", poly.MultiAff{poly.Dim(2, 0)})},
		Body:   Body{Op: OpAdd, Expr: "B[i][j]"},
	})
	b.RegisterReduction("update", "j")
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestBuilderValidation(t *testing.T) {
	valid := func() Statement {
		return Statement{
			ID:     "S",
			Dims:   []string{"i"},
			Domain: poly.Box("S", []int64{0}, []int64{4}),
			Writes: []Access{Write("A", poly.MultiAff{poly.Dim(1, 0)})},
			Body:   Body{Expr: "1"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Statement)
		wantErr string
	}{
		{"ok", func(st *Statement) {}, ""},
		{"empty id", func(st *Statement) { st.ID = "" }, "empty identifier"},
		{"tuple mismatch", func(st *Statement) { st.Domain = poly.Box("T", []int64{0}, []int64{4}) }, "does not match"},
		{"rank mismatch", func(st *Statement) { st.Dims = []string{"i", "j"} }, "dimension names"},
		{"dup dim", func(st *Statement) {
			st.Dims = []string{"i", "i"}
			st.Domain = poly.Box("S", []int64{0, 0}, []int64{2, 2})
			st.Writes = []Access{Write("A", poly.MultiAff{poly.Dim(2, 0)})}
		}, "duplicate dimension"},
		{"no write", func(st *Statement) { st.Writes = nil }, "exactly one write"},
		{"two writes", func(st *Statement) { st.Writes = append(st.Writes, st.Writes[0]) }, "exactly one write"},
		{"empty expr", func(st *Statement) { st.Body.Expr = "" }, "empty body expression"},
		{"index rank", func(st *Statement) { st.Writes = []Access{Write("A", poly.MultiAff{poly.Dim(2, 0)})} }, "rank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := valid()
			tt.mutate(&st)
			_, err := NewBuilder().AddStatement(st).Build()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("duplicate statement", func(t *testing.T) {
		_, err := NewBuilder().AddStatement(valid()).AddStatement(valid()).Build()
		require.ErrorContains(t, err, "duplicate statement")
	})
	t.Run("reduction unknown statement", func(t *testing.T) {
		b := NewBuilder().AddStatement(valid())
		b.RegisterReduction("nope", "i")
		_, err := b.Build()
		require.True(t, errors.Is(err, ErrUnknownStatement), "got %v", err)
	})
	t.Run("reduction unknown dimension", func(t *testing.T) {
		b := NewBuilder().AddStatement(valid())
		b.RegisterReduction("S", "k")
		_, err := b.Build()
		require.ErrorContains(t, err, "unknown dimension")
	})
}

func TestDependenceCounts(t *testing.T) {
	s := buildReductionScop(t)

	counts := map[DepKind]int{}
	for _, d := range s.DependenceList() {
		counts[d.Kind]++
	}
	// init->update: 50 flow + 50 output on acc. update<->update within one
	// i: per ordered j pair one flow, one anti, one output (10 pairs x 10 i).
	require.Equal(t, 150, counts[DepFlow], "flow")
	require.Equal(t, 100, counts[DepAnti], "anti")
	require.Equal(t, 150, counts[DepOutput], "output")
	require.Equal(t, 150, s.Dependences().NumPairs(), "distinct instance pairs")
}

func TestDependenceMembership(t *testing.T) {
	s := buildReductionScop(t)
	rel := s.Dependences()

	require.True(t, rel.Contains(poly.NewPoint("init", 3), poly.NewPoint("update", 3, 0)))
	require.True(t, rel.Contains(poly.NewPoint("update", 3, 0), poly.NewPoint("update", 3, 4)))
	require.False(t, rel.Contains(poly.NewPoint("update", 3, 0), poly.NewPoint("update", 4, 0)),
		"instances with distinct accumulators must not conflict")
	require.False(t, rel.Contains(poly.NewPoint("update", 3, 4), poly.NewPoint("update", 3, 0)),
		"dependences must point forward in program order")
}

// TestDependenceOracle cross-checks the dependence computation against a
// filter-free brute force over all access pairs.
func TestDependenceOracle(t *testing.T) {
	s := buildReductionScop(t)

	want := make(map[string]struct{})
	stmts := s.Statements()
	for ai, sa := range stmts {
		for bi, sb := range stmts {
			for _, accA := range append(slices.Clone(sa.Reads), sa.Writes...) {
				for _, accB := range append(slices.Clone(sb.Reads), sb.Writes...) {
					if accA.Kind != AccessWrite && accB.Kind != AccessWrite {
						continue
					}
					if accA.Array != accB.Array {
						continue
					}
					for _, x := range sa.Domain.Points() {
						for _, y := range sb.Domain.Points() {
							if ai == bi && slices.Equal(x, y) {
								continue
							}
							if !accA.Cell(x).Equal(accB.Cell(y)) {
								continue
							}
							src := poly.NewPoint(sa.ID, x...)
							dst := poly.NewPoint(sb.ID, y...)
							if !execBefore(ai, x, bi, y) {
								src, dst = dst, src
							}
							want[src.String()+"->"+dst.String()] = struct{}{}
						}
					}
				}
			}
		}
	}

	got := make(map[string]struct{})
	for _, p := range s.Dependences().PairsList() {
		got[p.Src.String()+"->"+p.Dst.String()] = struct{}{}
	}
	require.Equal(t, want, got)
}

func TestGCDFilter(t *testing.T) {
	// S writes A[2i], T reads A[2i+1]: parities never meet, and the GCD
	// test alone proves it.
	even := Statement{
		ID:     "S",
		Dims:   []string{"i"},
		Domain: poly.Box("S", []int64{0}, []int64{100}),
		Writes: []Access{Write("A", poly.MultiAff{poly.NewAff([]int64{2}, 0)})},
		Body:   Body{Expr: "1"},
	}
	odd := Statement{
		ID:     "T",
		Dims:   []string{"i"},
		Domain: poly.Box("T", []int64{0}, []int64{100}),
		Reads:  []Access{Read("A", poly.MultiAff{poly.NewAff([]int64{2}, 1)})},
		Writes: []Access{Write("C", poly.MultiAff{poly.Dim(1, 0)})},
		Body:   Body{Expr: "A[2*i+1]"},
	}
	s, err := NewBuilder().AddStatement(even).AddStatement(odd).Build()
	require.NoError(t, err)
	require.Empty(t, s.DependenceList())

	require.False(t, mayConflict(even.Writes[0], odd.Reads[0]))

	// A[2i] vs A[4j+2] share gcd 2 | 2: the filter must keep the pair.
	require.True(t, mayConflict(
		Write("A", poly.MultiAff{poly.NewAff([]int64{2}, 0)}),
		Read("A", poly.MultiAff{poly.NewAff([]int64{4}, 2)}),
	))
}

func TestReductionsRelation(t *testing.T) {
	s := buildReductionScop(t)
	red := s.Reductions()

	require.Equal(t, 50, red.NumPairs())
	require.True(t, red.Contains(poly.NewPoint("update", 7, 3), poly.NewPoint("acc", 7)))
	require.True(t, red.Domain().Set("init") == nil, "init is not a reduction update")

	require.True(t, s.IsReductionUpdate("update"))
	require.False(t, s.IsReductionUpdate("init"))
	require.Equal(t, []int{1}, s.ReductionDims("update"))
	acc, ok := s.Accumulator("update")
	require.True(t, ok)
	require.Equal(t, "acc", acc.Array)
}

func TestConcurrentAccumulationSafe(t *testing.T) {
	s := buildReductionScop(t)
	dom := s.Domain()

	// Scheduling update by i alone: co-scheduled instances differ only in j
	// and conflict only through the accumulator.
	byI := poly.MultiUnionAff{poly.UnionAff{"update": poly.Dim(2, 0)}}
	safe, err := s.ConcurrentAccumulationSafe("update", dom, byI)
	require.NoError(t, err)
	require.True(t, safe)

	// A prefix not covering the statement is conservatively unsafe.
	uncovered := poly.MultiUnionAff{poly.UnionAff{"init": poly.Dim(1, 0)}}
	safe, err = s.ConcurrentAccumulationSafe("update", dom, uncovered)
	require.NoError(t, err)
	require.False(t, safe)

	_, err = s.ConcurrentAccumulationSafe("nope", dom, byI)
	require.True(t, errors.Is(err, ErrUnknownStatement), "got %v", err)
}

func TestConcurrentAccumulationUnsafeOnForeignConflict(t *testing.T) {
	// Every instance writes D[0]; without reduction registration those
	// writes conflict pairwise on a non-accumulator array.
	st := Statement{
		ID:     "S",
		Dims:   []string{"i"},
		Domain: poly.Box("S", []int64{0}, []int64{4}),
		Writes: []Access{Write("D", poly.MultiAff{poly.ConstAff(1, 0)})},
		Body:   Body{Expr: "1"},
	}
	s, err := NewBuilder().AddStatement(st).Build()
	require.NoError(t, err)

	collapse := poly.MultiUnionAff{poly.UnionAff{"S": poly.ConstAff(1, 0)}}
	safe, err := s.ConcurrentAccumulationSafe("S", s.Domain(), collapse)
	require.NoError(t, err)
	require.False(t, safe, "co-scheduled conflicting writes must be unsafe")

	identity := poly.MultiUnionAff{poly.UnionAff{"S": poly.Dim(1, 0)}}
	safe, err = s.ConcurrentAccumulationSafe("S", s.Domain(), identity)
	require.NoError(t, err)
	require.True(t, safe, "distinct scheduled points never co-execute")
}
