// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/internal/workerspool"
	"github.com/gomlx/npucompiler/pkg/compiler/layoutprop"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/kernels"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Job is one graph to compile with CompileAll.
type Job struct {
	// Name of the job, used in logs and errors. Defaults to the graph name.
	Name string

	// Graph to compile. If nil, Load is called to get it.
	Graph *graph.Graph

	// Load the graph, called from the worker goroutine. Only used if Graph is nil.
	Load func() (*graph.Graph, error)

	// Kernels store used to compile the graph. If nil, kernels.Default() is used.
	Kernels kernels.Store

	// Done is called, if set, when the job finishes, from the worker goroutine.
	Done func(result Result)
}

// Result of a Job.
type Result struct {
	Name    string
	Graph   *graph.Graph
	Report  *layoutprop.Report
	Elapsed time.Duration
	Err     error
}

// CompileAll compiles the independent graphs of the jobs with the default pipeline, running at most
// parallelism jobs at the same time. If parallelism is 0, jobs run sequentially in the caller's goroutine,
// and if it is negative, runtime.NumCPU() jobs run in parallel.
//
// Jobs must not share graphs. It returns one Result per job, in the same order.
func CompileAll(jobs []Job, cfg Config, parallelism int) []Result {
	pool := workerspool.New(parallelism)
	results := make([]Result, len(jobs))
	start := time.Now()
	pool.Run(len(jobs), func(idx int) {
		job := &jobs[idx]
		results[idx] = compileJob(job, cfg)
		if job.Done != nil {
			job.Done(results[idx])
		}
	})
	klog.V(1).Infof("compiler: %d graphs compiled in %s, up to %d in parallel", len(jobs), time.Since(start), pool.Peak())
	return results
}

func compileJob(job *Job, cfg Config) (result Result) {
	start := time.Now()
	result.Name = job.Name
	defer func() { result.Elapsed = time.Since(start) }()

	g := job.Graph
	if g == nil {
		if job.Load == nil {
			result.Err = errors.Errorf("job %q has no graph", job.Name)
			return
		}
		var err error
		g, err = job.Load()
		if err != nil {
			result.Err = errors.WithMessagef(err, "loading graph of job %q", job.Name)
			return
		}
	}
	result.Graph = g
	if result.Name == "" {
		result.Name = g.Name()
	}

	// Errors thrown while compiling one graph only fail its job.
	var err error
	result.Err = exceptions.TryCatch[error](func() {
		result.Report, err = Compile(g, job.Kernels, cfg)
	})
	if result.Err == nil {
		result.Err = err
	}
	if result.Err != nil {
		klog.Warningf("compiler: job %q failed: %v", result.Name, result.Err)
	}
	return
}
