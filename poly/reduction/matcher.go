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

package reduction

import (
	"fmt"

	"github.com/ajroetker/go-polyhedral/poly"
	"github.com/ajroetker/go-polyhedral/poly/scop"
)

// UpdateStatements returns the subset of domain made of instances of
// reduction update statements with a verified operator. Statements that are
// not registered reductions, or whose operator is unverified, are silently
// dropped. A domain tuple naming no SCoP statement is an upstream bug and
// yields an error wrapping scop.ErrUnknownStatement.
func UpdateStatements(domain *poly.UnionSet, s *scop.Scop) (*poly.UnionSet, error) {
	out := poly.NewUnionSet()
	for _, set := range domain.Sets() {
		st, ok := s.Statement(set.Tuple())
		if !ok {
			return nil, fmt.Errorf("reduction updates: %w: %q", scop.ErrUnknownStatement, set.Tuple())
		}
		if !s.IsReductionUpdate(st.ID) {
			continue
		}
		if !Verified(st.Body.Op) {
			continue
		}
		out.Add(set)
	}
	return out, nil
}

// IsSingleWithin reports whether, under the given schedule prefix, every
// scheduled point of the reduction instances in domain reaches at most one
// accumulator cell. True licenses the specialized reduction lowering;
// false forces the generic path.
//
// A prefix that fails to cover part of the restricted reduction domain
// proves nothing, so the answer is conservatively false.
func IsSingleWithin(domain *poly.UnionSet, prefix poly.MultiUnionAff, s *scop.Scop) bool {
	rel := s.Reductions().IntersectDomain(domain)
	for _, tuple := range rel.Domain().Tuples() {
		if !prefix.Covers(tuple) {
			return false
		}
	}
	return rel.ApplyDomain(prefix).IsSingleValued()
}
