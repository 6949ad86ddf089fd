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

// Package scop models a static control part: statements with affine access
// relations over finite iteration domains, the reduction-update registry
// supplied by the front end, and the conservative dependence relation
// computed from them.
//
// A Scop is built once through a Builder and is read-only afterwards. The
// dependence relation may over-approximate (extra ordering constraints cost
// performance, not correctness) but never under-approximates: every pair of
// conflicting statement instances is related.
package scop

import (
	"fmt"

	"github.com/ajroetker/go-polyhedral/poly"
)

// UpdateOp identifies the combining operator of an update-form statement
// body, `target op= expr`. OpNone marks a plain assignment `target = expr`.
type UpdateOp uint8

const (
	OpNone UpdateOp = iota
	OpAdd
	OpMul
	OpMax
	OpMin
)

var updateOpNames = [...]string{
	OpNone: "none",
	OpAdd:  "add",
	OpMul:  "mul",
	OpMax:  "max",
	OpMin:  "min",
}

// String returns the operator's lower-case name.
func (op UpdateOp) String() string {
	if int(op) < len(updateOpNames) {
		return updateOpNames[op]
	}
	return fmt.Sprintf("UpdateOp(%d)", uint8(op))
}

// Token returns the C compound-assignment token for the operator, or
// ok=false for operators that have none (max/min lower through a combining
// call instead).
func (op UpdateOp) Token() (string, bool) {
	switch op {
	case OpAdd:
		return "+=", true
	case OpMul:
		return "*=", true
	default:
		return "", false
	}
}

// ParseUpdateOp maps an operator name to its UpdateOp. The empty string and
// "none" both mean plain assignment.
func ParseUpdateOp(name string) (UpdateOp, error) {
	switch name {
	case "", "none":
		return OpNone, nil
	case "add", "+=":
		return OpAdd, nil
	case "mul", "*=":
		return OpMul, nil
	case "max":
		return OpMax, nil
	case "min":
		return OpMin, nil
	}
	return OpNone, fmt.Errorf("unknown update operator %q", name)
}

// AccessKind tags an access relation as a read or a write.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
)

// String returns "read" or "write".
func (k AccessKind) String() string {
	if k == AccessWrite {
		return "write"
	}
	return "read"
}

// Access is one tagged affine access relation: for each instance of the
// enclosing statement, the array cell it touches. Index has one affine form
// per array dimension, each over the statement's instance space; a
// zero-length Index addresses a scalar.
type Access struct {
	Kind  AccessKind
	Array string
	Index poly.MultiAff
}

// Read constructs a read access.
func Read(array string, index poly.MultiAff) Access {
	return Access{Kind: AccessRead, Array: array, Index: index.Clone()}
}

// Write constructs a write access.
func Write(array string, index poly.MultiAff) Access {
	return Access{Kind: AccessWrite, Array: array, Index: index.Clone()}
}

// Cell returns the array cell the access touches at one statement instance.
func (a Access) Cell(coords []int64) poly.Point {
	return poly.Point{Tuple: a.Array, Coords: a.Index.Eval(coords)}
}

// Body is a statement's computation in normalized form: the single write
// target combined with an opaque right-hand side. Op == OpNone renders as
// `target = Expr`, anything else as the update `target op= Expr`. Expr is
// written in terms of the statement's dimension names and array cells and is
// never parsed, only re-rendered with iterator substitutions at emission.
type Body struct {
	Op   UpdateOp
	Expr string
}

// Statement is one statement of the region: an instance space (Domain, whose
// tuple name is the statement ID), named instance dimensions, tagged access
// relations, and the body.
//
// Statements are value-built through the Builder and read-only once the Scop
// exists.
type Statement struct {
	// ID identifies the statement; it doubles as the tuple name of every
	// instance point.
	ID string

	// Dims names the instance dimensions, e.g. ["i", "j"]. len(Dims) is the
	// rank of Domain.
	Dims []string

	// Domain holds the statement's dynamic instances.
	Domain *poly.Set

	// Reads and Writes are the tagged access relations. Exactly one write
	// is required; it is the body's target.
	Reads  []Access
	Writes []Access

	// Body is the computation executed at each instance.
	Body Body
}

// Rank returns the number of instance dimensions.
func (st *Statement) Rank() int { return len(st.Dims) }

// Target returns the statement's write access.
func (st *Statement) Target() Access { return st.Writes[0] }

// DimIndex resolves a dimension name to its position, or -1.
func (st *Statement) DimIndex(name string) int {
	for i, d := range st.Dims {
		if d == name {
			return i
		}
	}
	return -1
}
