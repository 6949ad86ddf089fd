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

// Package workerpool provides a persistent worker pool for running many
// independent compilations in parallel. A single compilation is synchronous
// and owns its iterator namespace, so parallelism lives outside the core:
// sweeps over schedule variants or input files submit one job per
// compilation, each with its own generator.
//
// The pool is created once and reused:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	for _, v := range variants {
//	    pool.Submit(func() { compile(v) })
//	}
//	pool.Wait()
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool. Workers are spawned once at creation and
// persist until Close.
type Pool struct {
	numWorkers int
	workC      chan workItem
	pending    sync.WaitGroup
	closeOnce  sync.Once
	closed     atomic.Bool
}

// workItem is one submitted job plus the barrier it reports completion to.
type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a pool with the given number of workers, spawned immediately.
// numWorkers <= 0 uses GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Submit queues one job. Jobs submitted after Close run synchronously in the
// caller.
func (p *Pool) Submit(fn func()) {
	if p.closed.Load() {
		fn()
		return
	}
	p.pending.Add(1)
	p.workC <- workItem{fn: fn, barrier: &p.pending}
}

// Wait blocks until every job submitted so far has completed.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close shuts the pool down after all pending work completes. Calling Close
// more than once is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.pending.Wait()
		close(p.workC)
	})
}

// ParallelFor runs fn(i) for every i in [0, n) across the pool's workers,
// using atomic index stealing for load balance, and blocks until all indices
// complete. A closed pool runs sequentially.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.numWorkers, n)
	if p.closed.Load() || workers == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		p.workC <- workItem{
			fn: func() {
				for {
					i := int(next.Add(1)) - 1
					if i >= n {
						return
					}
					fn(i)
				}
			},
			barrier: &wg,
		}
	}
	wg.Wait()
}
