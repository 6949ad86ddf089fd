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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeLoopIterators(t *testing.T) {
	ns := NewNamespace()

	got := ns.MakeLoopIterators(3, "c")
	require.Equal(t, []string{"c0", "c1", "c2"}, got)

	// Later requests continue the prefix counter rather than restarting.
	got = ns.MakeLoopIterators(2, "c")
	require.Equal(t, []string{"c3", "c4"}, got)

	require.Empty(t, ns.MakeLoopIterators(0, "c"))

	// Distinct prefixes count independently.
	require.Equal(t, []string{"r0"}, ns.MakeLoopIterators(1, "r"))
	require.Equal(t, []string{"c5"}, ns.MakeLoopIterators(1, "c"))
}

func TestMakeLoopIteratorsDistinct(t *testing.T) {
	ns := NewNamespace()
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		for _, name := range ns.MakeLoopIterators(i%3, "c") {
			require.False(t, seen[name], "name %q handed out twice", name)
			seen[name] = true
		}
	}
}

func TestNamespaceDeterminism(t *testing.T) {
	a, b := NewNamespace(), NewNamespace()
	require.Equal(t, a.MakeLoopIterators(4, "c"), b.MakeLoopIterators(4, "c"))
	require.Equal(t, a.Fresh("r"), b.Fresh("r"))
}
