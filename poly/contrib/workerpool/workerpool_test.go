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

package workerpool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-polyhedral/poly"
	"github.com/ajroetker/go-polyhedral/poly/codegen"
	"github.com/ajroetker/go-polyhedral/poly/schedule"
	"github.com/ajroetker/go-polyhedral/poly/scop"
)

func TestNew(t *testing.T) {
	pool := New(4)
	defer pool.Close()
	if pool.NumWorkers() != 4 {
		t.Errorf("NumWorkers() = %d, want 4", pool.NumWorkers())
	}
}

func TestNewDefault(t *testing.T) {
	pool := New(0)
	defer pool.Close()
	if pool.NumWorkers() != runtime.GOMAXPROCS(0) {
		t.Errorf("NumWorkers() = %d, want %d", pool.NumWorkers(), runtime.GOMAXPROCS(0))
	}
}

func TestSubmitWait(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	var done atomic.Int64
	for range 64 {
		pool.Submit(func() { done.Add(1) })
	}
	pool.Wait()
	if got := done.Load(); got != 64 {
		t.Errorf("completed %d jobs, want 64", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	pool := New(2)
	pool.Close()

	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Error("submit after close must run synchronously")
	}
}

func TestParallelFor(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	n := 100
	results := make([]int64, n)
	pool.ParallelFor(n, func(i int) {
		atomic.StoreInt64(&results[i], int64(i)*2)
	})
	for i := range n {
		if results[i] != int64(i)*2 {
			t.Errorf("results[%d] = %d, want %d", i, results[i], i*2)
		}
	}

	pool.ParallelFor(0, func(i int) { t.Error("n = 0 must run nothing") })
}

// TestParallelCompilations drives many isolated generations concurrently:
// each job owns its generator (and so its iterator namespace), and every job
// must produce the same kernel text as a reference sequential run.
func TestParallelCompilations(t *testing.T) {
	compile := func() (string, error) {
		b := scop.NewBuilder()
		b.AddStatement(scop.Statement{
			ID:     "copy",
			Dims:   []string{"i"},
			Domain: poly.Box("copy", []int64{0}, []int64{16}),
			Reads:  []scop.Access{scop.Read("A", poly.MultiAff{poly.Dim(1, 0)})},
			Writes: []scop.Access{scop.Write("B", poly.MultiAff{poly.Dim(1, 0)})},
			Body:   scop.Body{Expr: "A[i]"},
		})
		s, err := b.Build()
		if err != nil {
			return "", err
		}
		tr := schedule.New(s.Domain())
		if err := tr.Freeze(); err != nil {
			return "", err
		}
		prog, err := codegen.New(s, tr).Generate()
		if err != nil {
			return "", err
		}
		return prog.Kernel, nil
	}

	ref, err := compile()
	if err != nil {
		t.Fatal(err)
	}

	pool := New(8)
	defer pool.Close()

	kernels := make([]string, 32)
	var g errgroup.Group
	for i := range kernels {
		g.Go(func() error {
			done := make(chan error, 1)
			pool.Submit(func() {
				k, err := compile()
				kernels[i] = k
				done <- err
			})
			return <-done
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i, k := range kernels {
		if k != ref {
			t.Fatalf("compilation %d diverged from the sequential reference:\n%s", i, k)
		}
	}
}
