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

package target

import "testing"

func TestResourceKinds(t *testing.T) {
	tests := []struct {
		r      Resource
		block  bool
		thread bool
		axis   string
	}{
		{BlockX, true, false, "x"},
		{BlockY, true, false, "y"},
		{BlockZ, true, false, "z"},
		{ThreadX, false, true, "x"},
		{ThreadY, false, true, "y"},
		{ThreadZ, false, true, "z"},
		{Resource("warp"), false, false, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			if got := tt.r.IsBlock(); got != tt.block {
				t.Errorf("IsBlock() = %v, want %v", got, tt.block)
			}
			if got := tt.r.IsThread(); got != tt.thread {
				t.Errorf("IsThread() = %v, want %v", got, tt.thread)
			}
			if got := tt.r.Axis(); got != tt.axis {
				t.Errorf("Axis() = %q, want %q", got, tt.axis)
			}
		})
	}
}

func TestCUDAModel(t *testing.T) {
	m := CUDA()
	for _, r := range []Resource{BlockX, BlockY, BlockZ, ThreadX, ThreadY, ThreadZ} {
		if !m.Supports(r) {
			t.Errorf("cuda model must support %s", r)
		}
	}
	if m.Supports(Resource("warp.x")) {
		t.Error("cuda model must reject unknown resources")
	}
	if m.VectorWidth != 32 {
		t.Errorf("cuda vector width = %d, want 32", m.VectorWidth)
	}
}

func TestCPUModel(t *testing.T) {
	m := CPU()
	if !m.Supports(ThreadX) {
		t.Error("cpu model must support thread.x")
	}
	if m.Supports(BlockX) {
		t.Error("cpu model has no block resources")
	}
	switch m.VectorWidth {
	case 1, 4, 8, 16:
	default:
		t.Errorf("cpu vector width = %d, want one of 1, 4, 8, 16", m.VectorWidth)
	}
}
