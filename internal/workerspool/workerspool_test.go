// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	const numTasks = 20
	pool := New(3)
	require.True(t, pool.IsEnabled())
	assert.Equal(t, 3, pool.MaxParallelism())

	var running, count atomic.Int32
	results := make([]int, numTasks)
	pool.Run(numTasks, func(idx int) {
		current := running.Add(1)
		assert.LessOrEqual(t, current, int32(3))
		time.Sleep(time.Millisecond)
		runtime.Gosched()
		results[idx] = idx * idx
		count.Add(1)
		running.Add(-1)
	})
	assert.Equal(t, int32(numTasks), count.Load())
	for idx, result := range results {
		assert.Equal(t, idx*idx, result)
	}
	assert.LessOrEqual(t, pool.Peak(), 3)
	assert.GreaterOrEqual(t, pool.Peak(), 1)
}

func TestPool_Inline(t *testing.T) {
	pool := New(0)
	require.False(t, pool.IsEnabled())
	var order []int
	pool.Run(5, func(idx int) {
		// No synchronization needed: tasks run inline, in order.
		order = append(order, idx)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 1, pool.Peak())
}

func TestPool_Default(t *testing.T) {
	pool := New(-1)
	assert.Equal(t, runtime.NumCPU(), pool.MaxParallelism())
	var count atomic.Int32
	pool.Run(2*runtime.NumCPU(), func(int) { count.Add(1) })
	assert.Equal(t, int32(2*runtime.NumCPU()), count.Load())
}
