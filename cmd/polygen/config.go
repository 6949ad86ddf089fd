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

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-polyhedral/poly"
	"github.com/ajroetker/go-polyhedral/poly/schedule"
	"github.com/ajroetker/go-polyhedral/poly/scop"
)

// Description is one YAML program description:
//
//	kernel: rowsum
//	target: cuda
//	params:
//	  N: 10
//	statements:
//	  - id: update
//	    dims: [i, j]
//	    domain: {lo: [0, 0], hi: [10, 5]}
//	    reads:
//	      - {array: acc, index: [{coeffs: [1, 0]}]}
//	      - {array: B, index: [{coeffs: [1, 0]}, {coeffs: [0, 1]}]}
//	    write: {array: acc, index: [{coeffs: [1, 0]}]}
//	    body: {op: add, expr: "B[i][j]"}
//	reductions:
//	  update: [j]
//	schedule:
//	  order: [update]
//	  mappings:
//	    - {statement: update, dim: 1, resource: thread.x}
//
// Access indices are explicit affine coefficient lists over the statement's
// dimensions; neither the core nor the CLI parses index expressions.
type Description struct {
	Kernel     string              `yaml:"kernel"`
	Target     string              `yaml:"target"`
	Params     map[string]int64    `yaml:"params"`
	Statements []StatementDesc     `yaml:"statements"`
	Reductions map[string][]string `yaml:"reductions"`
	Schedule   ScheduleDesc        `yaml:"schedule"`
}

// StatementDesc declares one statement of the region.
type StatementDesc struct {
	ID     string       `yaml:"id"`
	Dims   []string     `yaml:"dims"`
	Domain DomainDesc   `yaml:"domain"`
	Reads  []AccessDesc `yaml:"reads"`
	Write  AccessDesc   `yaml:"write"`
	Body   BodyDesc     `yaml:"body"`
}

// DomainDesc is a half-open box: lo[d] <= i[d] < hi[d].
type DomainDesc struct {
	Lo []int64 `yaml:"lo"`
	Hi []int64 `yaml:"hi"`
}

// AccessDesc is one array access; Index holds one affine form per array
// dimension.
type AccessDesc struct {
	Array string    `yaml:"array"`
	Index []AffDesc `yaml:"index"`
}

// AffDesc is an integer affine form over the statement's dimensions.
type AffDesc struct {
	Coeffs []int64 `yaml:"coeffs"`
	Const  int64   `yaml:"const"`
}

// BodyDesc is the statement body: op selects the combining operator (empty
// or "none" for plain assignment) and expr is the opaque right-hand side.
type BodyDesc struct {
	Op   string `yaml:"op"`
	Expr string `yaml:"expr"`
}

// ScheduleDesc applies directives to the canonical identity tree.
type ScheduleDesc struct {
	// Order fixes the sequence order of the statements.
	Order []string `yaml:"order"`

	// Mappings bind band dimensions to parallel resources.
	Mappings []MappingDesc `yaml:"mappings"`

	// Context binds structure parameters within the tree.
	Context map[string]int64 `yaml:"context"`
}

// MappingDesc binds one schedule dimension of a statement's band to a
// resource.
type MappingDesc struct {
	Statement string `yaml:"statement"`
	Dim       int    `yaml:"dim"`
	Resource  string `yaml:"resource"`
}

// LoadDescription reads and decodes one YAML program description. Unknown
// fields are rejected.
func LoadDescription(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &d, nil
}

// Build compiles the description into a SCoP and a frozen schedule tree.
func (d *Description) Build() (*scop.Scop, *schedule.Tree, error) {
	b := scop.NewBuilder()
	for _, sd := range d.Statements {
		st, err := sd.statement()
		if err != nil {
			return nil, nil, err
		}
		b.AddStatement(st)
	}
	for id, dims := range d.Reductions {
		b.RegisterReduction(id, dims...)
	}
	for name, v := range d.Params {
		b.DeclareParam(name, v)
	}
	s, err := b.Build()
	if err != nil {
		return nil, nil, err
	}

	tr := schedule.New(s.Domain(), d.Schedule.Order...)
	if len(d.Schedule.Context) > 0 && tr.Root().NumChildren() > 0 {
		if _, err := tr.InsertContextAbove(tr.Root().Child(0), d.Schedule.Context); err != nil {
			return nil, nil, fmt.Errorf("schedule context: %w", err)
		}
	}
	for _, m := range d.Schedule.Mappings {
		band, ok := bandFor(tr, m.Statement)
		if !ok {
			return nil, nil, fmt.Errorf("schedule mapping: no band schedules statement %q", m.Statement)
		}
		if _, err := tr.InsertMappingAbove(band, m.Resource, m.Dim); err != nil {
			return nil, nil, fmt.Errorf("schedule mapping %s/%d -> %s: %w", m.Statement, m.Dim, m.Resource, err)
		}
	}
	if err := tr.Freeze(); err != nil {
		return nil, nil, err
	}
	return s, tr, nil
}

func (sd *StatementDesc) statement() (scop.Statement, error) {
	rank := len(sd.Dims)
	index := func(a AccessDesc) (poly.MultiAff, error) {
		out := make(poly.MultiAff, 0, len(a.Index))
		for i, f := range a.Index {
			if len(f.Coeffs) != rank {
				return nil, fmt.Errorf("statement %q: access %s index %d has %d coefficients for %d dimensions",
					sd.ID, a.Array, i, len(f.Coeffs), rank)
			}
			out = append(out, poly.NewAff(f.Coeffs, f.Const))
		}
		return out, nil
	}

	if len(sd.Domain.Lo) != rank || len(sd.Domain.Hi) != rank {
		return scop.Statement{}, fmt.Errorf("statement %q: domain bounds span %d/%d dimensions, want %d",
			sd.ID, len(sd.Domain.Lo), len(sd.Domain.Hi), rank)
	}
	st := scop.Statement{
		ID:     sd.ID,
		Dims:   sd.Dims,
		Domain: poly.Box(sd.ID, sd.Domain.Lo, sd.Domain.Hi),
	}
	for _, rd := range sd.Reads {
		idx, err := index(rd)
		if err != nil {
			return scop.Statement{}, err
		}
		st.Reads = append(st.Reads, scop.Read(rd.Array, idx))
	}
	idx, err := index(sd.Write)
	if err != nil {
		return scop.Statement{}, err
	}
	st.Writes = []scop.Access{scop.Write(sd.Write.Array, idx)}

	op, err := scop.ParseUpdateOp(sd.Body.Op)
	if err != nil {
		return scop.Statement{}, fmt.Errorf("statement %q: %w", sd.ID, err)
	}
	st.Body = scop.Body{Op: op, Expr: sd.Body.Expr}
	return st, nil
}

// bandFor returns the outermost band scheduling the statement.
func bandFor(tr *schedule.Tree, stmt string) (*schedule.Node, bool) {
	var found *schedule.Node
	tr.Walk(tr.Root(), func(n *schedule.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind() == schedule.KindBand {
			for _, d := range n.BandDims() {
				if d.Expr.Covers(stmt) {
					found = n
					return false
				}
			}
		}
		return true
	})
	return found, found != nil
}
