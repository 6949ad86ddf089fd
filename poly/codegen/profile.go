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
	"sort"
	"strings"

	"github.com/ajroetker/go-polyhedral/poly/scop"
	"github.com/ajroetker/go-polyhedral/poly/target"
)

// Profile supplies the target-specific fragments the generator splices into
// an emitted kernel. Everything structural (loops, guards, statement order,
// barrier placement) is target-independent; profiles only answer how a
// resource index, a barrier, an atomic update or the kernel frame is spelled.
type Profile interface {
	// Name identifies the profile, e.g. "cuda".
	Name() string

	// Model describes the resources and vector width of the target.
	Model() target.Model

	// ResourceExpr returns the index expression a mapped dimension binds to,
	// e.g. "threadIdx.x". ok=false means the target distributes mapped
	// dimensions as parallel loops instead of index bindings.
	ResourceExpr(r target.Resource) (string, bool)

	// ParallelLoopPragma returns the pragma emitted above a mapped
	// dimension's loop on targets without index bindings.
	ParallelLoopPragma() (string, bool)

	// Barrier returns the statement synchronizing the executors of a shared
	// resource between sequence children.
	Barrier() string

	// Atomic returns the statement lines performing `addr op= val`
	// atomically, or ok=false when the target has no such primitive for op.
	Atomic(op scop.UpdateOp, addr, val string) ([]string, bool)

	// Prologue returns the lines opening the kernel, given the function name
	// and the rendered parameter declarations.
	Prologue(name string, params []string) []string

	// Epilogue returns the lines closing the kernel.
	Epilogue() []string
}

// profileRegistry maps profile names to constructors. Populated in init;
// extended through RegisterProfile.
var profileRegistry = map[string]func() Profile{}

func init() {
	RegisterProfile("cuda", func() Profile { return NewCUDAProfile() })
	RegisterProfile("openmp", func() Profile { return NewOpenMPProfile() })
}

// RegisterProfile makes a profile available to LookupProfile under name.
func RegisterProfile(name string, ctor func() Profile) {
	profileRegistry[name] = ctor
}

// LookupProfile constructs the named profile, or nil if it is not
// registered.
func LookupProfile(name string) Profile {
	ctor, ok := profileRegistry[name]
	if !ok {
		return nil
	}
	return ctor()
}

// ProfileNames returns the registered profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profileRegistry))
	for name := range profileRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CUDAProfile emits CUDA C kernels: mapped dimensions bind to block and
// thread indices, barriers are __syncthreads, and additive updates can use
// atomicAdd.
type CUDAProfile struct{}

// NewCUDAProfile returns the CUDA profile.
func NewCUDAProfile() *CUDAProfile { return &CUDAProfile{} }

func (p *CUDAProfile) Name() string { return "cuda" }

func (p *CUDAProfile) Model() target.Model { return target.CUDA() }

var cudaResourceExprs = map[target.Resource]string{
	target.BlockX:  "blockIdx.x",
	target.BlockY:  "blockIdx.y",
	target.BlockZ:  "blockIdx.z",
	target.ThreadX: "threadIdx.x",
	target.ThreadY: "threadIdx.y",
	target.ThreadZ: "threadIdx.z",
}

func (p *CUDAProfile) ResourceExpr(r target.Resource) (string, bool) {
	expr, ok := cudaResourceExprs[r]
	return expr, ok
}

func (p *CUDAProfile) ParallelLoopPragma() (string, bool) { return "", false }

func (p *CUDAProfile) Barrier() string { return "__syncthreads();" }

func (p *CUDAProfile) Atomic(op scop.UpdateOp, addr, val string) ([]string, bool) {
	// Float atomics beyond addition need a CAS loop; none is emitted.
	if op != scop.OpAdd {
		return nil, false
	}
	return []string{fmt.Sprintf("atomicAdd(&%s, %s);", addr, val)}, true
}

func (p *CUDAProfile) Prologue(name string, params []string) []string {
	return []string{fmt.Sprintf(`extern "C" __global__ void %s(%s) {`, name, strings.Join(params, ", "))}
}

func (p *CUDAProfile) Epilogue() []string { return []string{"}"} }

// OpenMPProfile emits C with OpenMP pragmas: mapped thread dimensions become
// parallel loops, barriers and atomics use the corresponding omp pragmas.
// Block resources are not part of its model.
type OpenMPProfile struct{}

// NewOpenMPProfile returns the OpenMP profile.
func NewOpenMPProfile() *OpenMPProfile { return &OpenMPProfile{} }

func (p *OpenMPProfile) Name() string { return "openmp" }

func (p *OpenMPProfile) Model() target.Model {
	return target.Model{
		Name:        "openmp",
		Resources:   []target.Resource{target.ThreadX, target.ThreadY, target.ThreadZ},
		VectorWidth: target.VectorLanes(),
	}
}

func (p *OpenMPProfile) ResourceExpr(r target.Resource) (string, bool) { return "", false }

func (p *OpenMPProfile) ParallelLoopPragma() (string, bool) {
	return "#pragma omp parallel for", true
}

func (p *OpenMPProfile) Barrier() string { return "#pragma omp barrier" }

func (p *OpenMPProfile) Atomic(op scop.UpdateOp, addr, val string) ([]string, bool) {
	tok, ok := op.Token()
	if !ok {
		return nil, false
	}
	return []string{
		"#pragma omp atomic",
		fmt.Sprintf("%s %s %s;", addr, tok, val),
	}, true
}

func (p *OpenMPProfile) Prologue(name string, params []string) []string {
	return []string{fmt.Sprintf("void %s(%s) {", name, strings.Join(params, ", "))}
}

func (p *OpenMPProfile) Epilogue() []string { return []string{"}"} }
