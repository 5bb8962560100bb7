// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiler drives the compilation of operator graphs: it runs a Pipeline of passes over each graph,
// sharing a Context, and compiles batches of independent graphs in parallel (see CompileAll).
//
// The default pipeline validates the graph, builds its cross-reference table and runs the layout propagation
// pass (see package layoutprop).
package compiler

import (
	"time"

	"github.com/gomlx/npucompiler/pkg/compiler/layoutprop"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/kernels"
	"github.com/gomlx/npucompiler/pkg/core/xref"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context shared by the passes compiling one graph.
type Context struct {
	Graph   *graph.Graph
	Kernels kernels.Store
	Config  Config

	// XRef is the cross-reference table of Graph, set by XRefPass.
	XRef *xref.Table

	// Report of the layout propagation, set by LayoutPass.
	Report *layoutprop.Report
}

// NewContext returns a Context to compile the graph with the kernel store. If store is nil, kernels.Default()
// is used.
func NewContext(g *graph.Graph, store kernels.Store, cfg Config) *Context {
	if store == nil {
		store = kernels.Default()
	}
	return &Context{Graph: g, Kernels: store, Config: cfg}
}

// Pass transforms or checks the graph of a Context.
type Pass interface {
	// Name of the pass, used in logs and errors.
	Name() string

	// Run the pass. An error aborts the pipeline.
	Run(ctx *Context) error
}

// Pipeline is a list of passes run in order.
type Pipeline []Pass

// DefaultPipeline returns the validation, cross-reference and layout propagation passes.
func DefaultPipeline() Pipeline {
	return Pipeline{ValidatePass{}, XRefPass{}, LayoutPass{}}
}

// Run the passes in order, stopping at the first error.
func (p Pipeline) Run(ctx *Context) error {
	for _, pass := range p {
		start := time.Now()
		err := pass.Run(ctx)
		if err != nil {
			return errors.WithMessagef(err, "pass %q on graph %q", pass.Name(), ctx.Graph.Name())
		}
		if klog.V(1).Enabled() {
			klog.Infof("compiler: pass %q on graph %q took %s", pass.Name(), ctx.Graph.Name(), time.Since(start))
		}
	}
	return nil
}

// Compile the graph with the default pipeline. It returns the report of the layout propagation, which
// may be set even if an error is returned.
func Compile(g *graph.Graph, store kernels.Store, cfg Config) (*layoutprop.Report, error) {
	ctx := NewContext(g, store, cfg)
	err := DefaultPipeline().Run(ctx)
	return ctx.Report, err
}

// ValidatePass checks the graph is well-formed.
type ValidatePass struct{}

// Name implements Pass.
func (ValidatePass) Name() string { return "validate" }

// Run implements Pass.
func (ValidatePass) Run(ctx *Context) error {
	return ctx.Graph.Validate()
}

// XRefPass builds the cross-reference table of the graph, if not yet set.
type XRefPass struct{}

// Name implements Pass.
func (XRefPass) Name() string { return "xref" }

// Run implements Pass.
func (XRefPass) Run(ctx *Context) error {
	if ctx.XRef != nil {
		return nil
	}
	table, err := xref.Build(ctx.Graph)
	if err != nil {
		return err
	}
	ctx.XRef = table
	klog.V(2).Infof("compiler: graph %q has %d cross-reference links", ctx.Graph.Name(), table.NumLinks())
	return nil
}

// LayoutPass runs the layout propagation. If no XRefPass ran before, it builds the cross-reference table first.
//
// Branch failures and weight rollbacks are logged as warnings, and only fail the pass if Config.Strict is set.
type LayoutPass struct{}

// Name implements Pass.
func (LayoutPass) Name() string { return "layoutprop" }

// Run implements Pass.
func (LayoutPass) Run(ctx *Context) error {
	if err := (XRefPass{}).Run(ctx); err != nil {
		return err
	}
	report, err := layoutprop.New(ctx.Graph, ctx.Kernels, ctx.XRef, ctx.Config.Layout).Run()
	ctx.Report = report
	if err != nil {
		return err
	}
	if err = report.Err(); err != nil {
		if ctx.Config.Strict {
			return err
		}
		klog.Warningf("graph %q compiled with failed branches: %v", ctx.Graph.Name(), err)
	}
	return nil
}
