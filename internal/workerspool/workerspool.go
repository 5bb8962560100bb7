// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent CPU-bound tasks, like the compilation of separate graphs, with a
// bounded number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. The zero value is not usable, use New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time.
	// 0 runs tasks inline, negative values don't limit it.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
	peak       int
}

// New returns a new Pool with the given parallelism. If maxParallelism is 0, tasks run inline in the
// caller's goroutine. If it is negative, the parallelism is runtime.NumCPU().
func New(maxParallelism int) *Pool {
	if maxParallelism < 0 {
		maxParallelism = runtime.NumCPU()
	}
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether tasks run in separate goroutines.
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism > 0
}

// MaxParallelism returns the limit of tasks running at the same time, 0 if tasks run inline.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// Peak returns the largest number of tasks that ran at the same time so far.
func (w *Pool) Peak() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peak
}

// WaitToStart waits until a worker is available and starts the task in it.
//
// If the pool is not enabled, it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if !w.IsEnabled() {
		w.mu.Lock()
		w.peak = max(w.peak, 1)
		w.mu.Unlock()
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning >= w.maxParallelism {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	w.peak = max(w.peak, w.numRunning)
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// Run calls task(idx) for idx in [0, numTasks), with at most MaxParallelism tasks running at the same time,
// and returns when all are finished. Tasks are started in order.
func (w *Pool) Run(numTasks int, task func(idx int)) {
	var wg sync.WaitGroup
	for idx := range numTasks {
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			task(idx)
		})
	}
	wg.Wait()
}
