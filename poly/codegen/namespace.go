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

package codegen

import "fmt"

// Namespace allocates identifier names for one generated kernel. Names
// with the same prefix never collide: each request continues the prefix's
// counter, so repeated generation yields identical names.
type Namespace struct {
	counters map[string]int
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{counters: make(map[string]int)}
}

// MakeLoopIterators returns n fresh names prefix<k>..prefix<k+n-1> where k
// is the number of names already handed out for prefix. n of zero returns
// an empty slice.
func (ns *Namespace) MakeLoopIterators(n int, prefix string) []string {
	start := ns.counters[prefix]
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, start+i)
	}
	ns.counters[prefix] = start + n
	return out
}

// Fresh returns a single fresh name for prefix.
func (ns *Namespace) Fresh(prefix string) string {
	return ns.MakeLoopIterators(1, prefix)[0]
}
