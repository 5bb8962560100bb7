// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities to build small operator graphs for the compiler passes tests.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/gomlx/npucompiler/pkg/core/dtypes"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// Data adds a Data node with one output "y".
func Data(sg *graph.Subgraph, name string, shape shapes.Shape, origin layout.Format) *graph.Node {
	return sg.AddNode(name, graph.OpData).AddOutput("y", shape, origin)
}

// DataOf adds a Data node with one output "y" of the dtype of the Go type T, e.g. float16.Float16.
func DataOf[T dtypes.Supported](sg *graph.Subgraph, name string, origin layout.Format, dims ...int) *graph.Node {
	return Data(sg, name, shapes.Make(dtypes.FromGenericsType[T](), dims...), origin)
}

// ConstOf is like DataOf, for a Const (weight) node.
func ConstOf[T dtypes.Supported](sg *graph.Subgraph, name string, origin layout.Format, dims ...int) *graph.Node {
	return Const(sg, name, shapes.Make(dtypes.FromGenericsType[T](), dims...), origin)
}

// Const adds a Const (weight) node with one output "y".
func Const(sg *graph.Subgraph, name string, shape shapes.Shape, origin layout.Format) *graph.Node {
	return sg.AddNode(name, graph.OpConst).AddOutput("y", shape, origin)
}

// Op adds a node with one input per name in inputNames and a single output "y", all with the same shape and
// origin format. The inputs are not connected.
func Op(sg *graph.Subgraph, name, opType string, shape shapes.Shape, origin layout.Format, inputNames ...string) *graph.Node {
	node := sg.AddNode(name, opType)
	for _, input := range inputNames {
		node.AddInput(input, shape, origin)
	}
	return node.AddOutput("y", shape, origin)
}

// Unary adds a node with input "x" and output "y", and connects its input to output 0 of producer.
func Unary(producer *graph.Node, name, opType string) *graph.Node {
	out := producer.Output(0)
	node := Op(producer.Subgraph(), name, opType, out.Logical, out.Origin, "x")
	producer.Graph().Connect(producer, 0, node, 0)
	return node
}

// Binary adds a node with inputs "x1" and "x2" and output "y", connected to output 0 of a and b.
func Binary(a, b *graph.Node, name, opType string) *graph.Node {
	out := a.Output(0)
	node := Op(a.Subgraph(), name, opType, out.Logical, out.Origin, "x1", "x2")
	g := a.Graph()
	g.Connect(a, 0, node, 0)
	g.Connect(b, 0, node, 1)
	return node
}

// Output adds a NetOutput node with one input per producer, connected to their output 0.
func Output(sg *graph.Subgraph, name string, producers ...*graph.Node) *graph.Node {
	node := sg.AddNode(name, graph.OpNetOutput)
	for ii, producer := range producers {
		out := producer.Output(0)
		node.AddInput(fmt.Sprintf("x%d", ii), out.Logical, out.Origin)
		sg.Graph().Connect(producer, 0, node, ii)
	}
	return node
}

// Conv2D adds a Conv2D node with inputs "x" (connected to output 0 of input) and "filter" (connected to a new
// Const node named name+"_filter"), and output "y". The input must be NCHW, the output has outChannels and
// the same spatial dimensions, the filter is 3x3.
func Conv2D(input *graph.Node, name string, outChannels, groups int) (conv, filter *graph.Node) {
	x := input.Output(0)
	sg := input.Subgraph()
	dims := x.Logical.Dimensions
	filterShape := shapes.Make(x.Logical.DType, outChannels, dims[1]/groups, 3, 3)
	filter = Const(sg, name+"_filter", filterShape, layout.NCHW)
	conv = sg.AddNode(name, "Conv2D").
		AddInput("x", x.Logical, layout.NCHW).
		AddInput("filter", filterShape, layout.NCHW).
		AddOutput("y", shapes.Make(x.Logical.DType, dims[0], outChannels, dims[2], dims[3]), layout.NCHW)
	if groups > 1 {
		conv.SetAttr(graph.AttrGroups, groups)
	}
	g := sg.Graph()
	g.Connect(input, 0, conv, 0)
	g.Connect(filter, 0, conv, 1)
	return
}

// RequireValid fails the test if the graph is not well-formed.
func RequireValid(t *testing.T, g *graph.Graph) {
	t.Helper()
	require.NoError(t, g.Validate(), "graph:\n%s", g)
}

// Heavy returns the layout with the given format and the block factor of float16 tensors.
func Heavy(format layout.Format) layout.Layout {
	c0 := layout.BlockFactor(dtypes.FromGenericsType[float16.Float16](), layout.PrecisionAllowFp32ToFp16)
	return layout.Layout{Primary: format, C0: c0}
}

// SetLayout forces the layout of a slot, computing its physical shape. It fails the test if the layout can't
// be applied to the slot.
func SetLayout(t *testing.T, slot *graph.Slot, l layout.Layout) {
	t.Helper()
	physical, err := layout.TransferShape(slot.Logical, slot.Origin, "", l)
	require.NoError(t, err)
	slot.Layout = l
	slot.Physical = physical
	slot.Propagated = true
}
