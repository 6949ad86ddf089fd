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

// Package target models the parallel execution resources a schedule can bind
// band dimensions to. A mapping node names a Resource; code generation
// validates every binding against the active Model and refuses resources the
// target does not provide.
package target

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// Resource names one parallel execution resource of a target, using the
// block/thread vocabulary of grid-based accelerators: "block.x" through
// "thread.z".
type Resource string

const (
	BlockX Resource = "block.x"
	BlockY Resource = "block.y"
	BlockZ Resource = "block.z"

	ThreadX Resource = "thread.x"
	ThreadY Resource = "thread.y"
	ThreadZ Resource = "thread.z"
)

// IsBlock reports whether the resource is a grid-level (block) index.
func (r Resource) IsBlock() bool { return strings.HasPrefix(string(r), "block.") }

// IsThread reports whether the resource is a thread-level index.
func (r Resource) IsThread() bool { return strings.HasPrefix(string(r), "thread.") }

// Axis returns the trailing axis letter, e.g. "x".
func (r Resource) Axis() string {
	if i := strings.LastIndexByte(string(r), '.'); i >= 0 {
		return string(r)[i+1:]
	}
	return ""
}

// Model describes one target's parallel resources and its vector width in
// 32-bit lanes. The resource list is ordered outermost first.
type Model struct {
	Name        string
	Resources   []Resource
	VectorWidth int
}

// Supports reports whether the model provides the resource.
func (m Model) Supports(r Resource) bool {
	for _, have := range m.Resources {
		if have == r {
			return true
		}
	}
	return false
}

// CUDA returns the model of a CUDA-style device: a three-dimensional grid of
// three-dimensional thread blocks, warp-width vectors.
func CUDA() Model {
	return Model{
		Name:        "cuda",
		Resources:   []Resource{BlockX, BlockY, BlockZ, ThreadX, ThreadY, ThreadZ},
		VectorWidth: 32,
	}
}

// CPU returns the model of the host CPU: one flat thread dimension plus the
// SIMD width detected from the processor's feature flags.
func CPU() Model {
	return Model{
		Name:        "cpu",
		Resources:   []Resource{ThreadX},
		VectorWidth: VectorLanes(),
	}
}

// VectorLanes returns the widest f32 SIMD lane count the host CPU offers,
// or 1 when no vector extension is detected.
func VectorLanes() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 16
	case cpu.X86.HasAVX2:
		return 8
	case cpu.ARM64.HasASIMD:
		return 4
	default:
		return 1
	}
}
