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

// Package reduction decides which update statements may be lowered through
// the specialized race-free reduction paths, and carries the per-operator
// lowering strategies.
//
// A statement qualifies only when it is registered as a reduction update in
// the SCoP and its operator's strategy is marked verified. Everything else
// goes through the generic lowering, which is always correct.
package reduction

import "github.com/ajroetker/go-polyhedral/poly/scop"

// Strategy describes how one accumulation operator is lowered. Combine is a
// two-operand format template producing the combining expression; Identity
// is the operator's neutral element literal.
type Strategy struct {
	Op       scop.UpdateOp
	Identity string
	Combine  string

	// Verified marks the operator as validated for race-free parallel
	// partial accumulation. Unverified operators are never given the
	// specialized lowering, however associative they look on paper.
	Verified bool
}

// strategyRegistry holds all known operator strategies, keyed by operator.
var strategyRegistry map[scop.UpdateOp]*Strategy

func init() {
	strategyRegistry = make(map[scop.UpdateOp]*Strategy)

	for _, s := range []*Strategy{
		addStrategy(),
		mulStrategy(),
		maxStrategy(),
		minStrategy(),
	} {
		strategyRegistry[s.Op] = s
	}
}

// Register installs or replaces the strategy for s.Op. A new operator whose
// validator has proven race-freedom registers with Verified set.
func Register(s *Strategy) {
	strategyRegistry[s.Op] = s
}

// Lookup returns the strategy for the operator, or nil if none is
// registered.
func Lookup(op scop.UpdateOp) *Strategy {
	return strategyRegistry[op]
}

// Verified reports whether the operator has a strategy validated for
// race-free parallel lowering.
func Verified(op scop.UpdateOp) bool {
	s := strategyRegistry[op]
	return s != nil && s.Verified
}

func addStrategy() *Strategy {
	return &Strategy{
		Op:       scop.OpAdd,
		Identity: "0",
		Combine:  "%s + %s",
		Verified: true,
	}
}

// Multiplication, max and min are associative, but their parallel partial
// accumulation has not been validated against the runtime's accumulation
// wrappers, so they stay unverified and take the generic path.

func mulStrategy() *Strategy {
	return &Strategy{
		Op:       scop.OpMul,
		Identity: "1",
		Combine:  "%s * %s",
	}
}

func maxStrategy() *Strategy {
	return &Strategy{
		Op:       scop.OpMax,
		Identity: "-FLT_MAX",
		Combine:  "fmaxf(%s, %s)",
	}
}

func minStrategy() *Strategy {
	return &Strategy{
		Op:       scop.OpMin,
		Identity: "FLT_MAX",
		Combine:  "fminf(%s, %s)",
	}
}
