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
	"testing"
)

func TestAffEval(t *testing.T) {
	tests := []struct {
		name   string
		aff    Aff
		coords []int64
		want   int64
	}{
		{"dim", Dim(2, 1), []int64{3, 7}, 7},
		{"const", ConstAff(2, 5), []int64{3, 7}, 5},
		{"mixed", NewAff([]int64{2, -1}, 3), []int64{4, 1}, 10},
		{"rank0", ConstAff(0, -2), nil, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.aff.Eval(tt.coords); got != tt.want {
				t.Errorf("Eval(%v) = %d, want %d", tt.coords, got, tt.want)
			}
		})
	}
}

func TestAffString(t *testing.T) {
	tests := []struct {
		aff  Aff
		want string
	}{
		{Dim(2, 0), "d0"},
		{NewAff([]int64{2, -1}, 3), "2*d0 - d1 + 3"},
		{NewAff([]int64{0, -3}, 0), "-3*d1"},
		{ConstAff(3, 0), "0"},
	}
	for _, tt := range tests {
		if got := tt.aff.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAffSingleDim(t *testing.T) {
	if d, c, ok := Dim(3, 2).SingleDim(); !ok || d != 2 || c != 1 {
		t.Errorf("Dim(3,2).SingleDim() = (%d, %d, %v), want (2, 1, true)", d, c, ok)
	}
	if _, _, ok := NewAff([]int64{1, 1}, 0).SingleDim(); ok {
		t.Error("SingleDim ok for a two-dimension form")
	}
	if _, _, ok := ConstAff(2, 4).SingleDim(); ok {
		t.Error("SingleDim ok for a constant form")
	}
}

func TestMultiUnionAffEval(t *testing.T) {
	// Schedule (i) for init[i] and (i) then (j) for update[i,j].
	outer := UnionAff{"init": Dim(1, 0), "update": Dim(2, 0)}
	inner := UnionAff{"update": Dim(2, 1)}

	full := MultiUnionAff{outer, inner}
	if v, ok := full.Eval("update", []int64{3, 4}); !ok || !slices.Equal(v, []int64{3, 4}) {
		t.Errorf("Eval(update[3,4]) = (%v, %v), want ([3 4], true)", v, ok)
	}
	if _, ok := full.Eval("init", []int64{3}); ok {
		t.Error("Eval ok for a tuple the inner dimension does not cover")
	}
	if !full.Covers("update") || full.Covers("init") {
		t.Error("Covers misreported tuple coverage")
	}

	empty := MultiUnionAff{}
	if v, ok := empty.Eval("init", []int64{3}); !ok || len(v) != 0 {
		t.Errorf("empty prefix Eval = (%v, %v), want ([], true)", v, ok)
	}
}

func TestExtentOf(t *testing.T) {
	dom := NewUnionSet(Box("S", []int64{0, 0}, []int64{4, 3}))

	e, err := ExtentOf(UnionAff{"S": Dim(2, 1)}, dom)
	if err != nil {
		t.Fatalf("ExtentOf: %v", err)
	}
	if e.Min != 0 || e.Max != 2 || !e.Dense || e.Size() != 3 {
		t.Errorf("extent = %+v, want Min 0 Max 2 Dense true", e)
	}

	// Stride-2 values leave holes.
	e, err = ExtentOf(UnionAff{"S": NewAff([]int64{0, 2}, 0)}, dom)
	if err != nil {
		t.Fatalf("ExtentOf: %v", err)
	}
	if e.Dense {
		t.Errorf("extent %+v reported Dense for strided values", e)
	}

	if _, err := ExtentOf(UnionAff{"T": Dim(1, 0)}, dom); err == nil {
		t.Error("ExtentOf succeeded for an uncovered tuple")
	}

	e, err = ExtentOf(UnionAff{"S": Dim(2, 0)}, NewUnionSet())
	if err != nil {
		t.Fatalf("ExtentOf on empty domain: %v", err)
	}
	if e.Count != 0 || e.Size() != 0 {
		t.Errorf("empty-domain extent = %+v, want Count 0", e)
	}
}
