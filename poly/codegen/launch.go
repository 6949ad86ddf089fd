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
	"fmt"

	"github.com/ajroetker/go-polyhedral/poly/target"
)

// LaunchConfig records the extent of every resource a kernel's schedule
// binds. Resources the schedule never binds have extent 1.
type LaunchConfig map[target.Resource]int64

// Extent returns the recorded extent of r, defaulting to 1.
func (lc LaunchConfig) Extent(r target.Resource) int64 {
	if e, ok := lc[r]; ok {
		return e
	}
	return 1
}

// grow records the extent needed by one mapped dimension. Bindings of the
// same resource in different subtrees keep the widest extent.
func (lc LaunchConfig) grow(r target.Resource, extent int64) {
	if extent > lc[r] {
		lc[r] = extent
	}
}

// Grid returns the block-grid extents along x, y, z.
func (lc LaunchConfig) Grid() [3]int64 {
	return [3]int64{lc.Extent(target.BlockX), lc.Extent(target.BlockY), lc.Extent(target.BlockZ)}
}

// Block returns the per-block thread extents along x, y, z.
func (lc LaunchConfig) Block() [3]int64 {
	return [3]int64{lc.Extent(target.ThreadX), lc.Extent(target.ThreadY), lc.Extent(target.ThreadZ)}
}

// String renders the configuration as "grid(gx,gy,gz) block(bx,by,bz)".
func (lc LaunchConfig) String() string {
	g, b := lc.Grid(), lc.Block()
	return fmt.Sprintf("grid(%d,%d,%d) block(%d,%d,%d)", g[0], g[1], g[2], b[0], b[1], b[2])
}
