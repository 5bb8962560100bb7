// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"testing"

	"github.com/gomlx/npucompiler/internal/graphtest"
	"github.com/gomlx/npucompiler/pkg/core/dtypes"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/kernels"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/gomlx/npucompiler/pkg/core/xref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

var (
	fp16Image = shapes.Make(dtypes.FromGenericsType[float16.Float16](), 1, 32, 8, 8)
	nc1hwc0   = graphtest.Heavy(layout.NC1HWC0)
	fractalZ  = graphtest.Heavy(layout.FractalZ)
)

// runPass builds the cross-reference table of the graph and runs the pass, requiring no structural failure.
func runPass(t *testing.T, g *graph.Graph, store kernels.Store, cfg Config) *Report {
	t.Helper()
	graphtest.RequireValid(t, g)
	table, err := xref.Build(g)
	require.NoError(t, err)
	report, err := New(g, store, table, cfg).Run()
	require.NoError(t, err)
	return report
}

func slotKernel(name string, supports ...kernels.Support) kernels.SlotKernel {
	return kernels.SlotKernel{Name: name, Supports: supports}
}

// heavyOpStore returns the default catalogue plus "HeavyOp", a layout-generating operator with input "x" and
// output "y" in NC1HWC0.
func heavyOpStore() *kernels.Registry {
	support := kernels.Support{Format: layout.NC1HWC0, DType: dtypes.Float16}
	return kernels.Default().Clone().MustRegister(kernels.OpKernel{
		OpType:           "HeavyOp",
		LayoutGenerating: true,
		Inputs:           []kernels.SlotKernel{slotKernel("x", support)},
		Outputs:          []kernels.SlotKernel{slotKernel("y", support)},
	})
}

type loadStoreGraph struct {
	g                                *graph.Graph
	data, load, heavy, store, output *graph.Node
}

// buildLoadStore builds data -> load -> heavy -> store -> output.
func buildLoadStore(t *testing.T) *loadStoreGraph {
	g := graph.NewGraph("load_store")
	main := g.Main()
	lsg := &loadStoreGraph{g: g}
	lsg.data = graphtest.Data(main, "data", fp16Image, layout.NCHW)
	lsg.load = graphtest.Unary(lsg.data, "load", "Load")
	lsg.heavy = graphtest.Unary(lsg.load, "heavy", "HeavyOp")
	lsg.store = graphtest.Unary(lsg.heavy, "store", "Store")
	lsg.output = graphtest.Output(main, "output", lsg.store)
	graphtest.RequireValid(t, g)
	return lsg
}

func TestLoadHeavyStore(t *testing.T) {
	lsg := buildLoadStore(t)
	report := runPass(t, lsg.g, heavyOpStore(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, []graph.NodeId{lsg.heavy.Id()}, report.Seeds)

	assert.Equal(t, nc1hwc0, lsg.heavy.Input(0).Layout)
	assert.Equal(t, lsg.heavy.Input(0).Layout, lsg.load.Output(0).Layout)
	assert.Equal(t, lsg.heavy.Output(0).Layout, lsg.store.Input(0).Layout)
	assert.Equal(t, nc1hwc0, lsg.load.Input(0).Layout)
	assert.Equal(t, nc1hwc0, lsg.store.Output(0).Layout)
	assert.Equal(t, []int{1, 2, 8, 8, 16}, lsg.load.Output(0).Physical.Dimensions)
	assert.True(t, lsg.load.Output(0).Propagated)

	// The model interface keeps its layout.
	assert.True(t, lsg.data.Output(0).IsLinear())
	assert.False(t, lsg.data.Output(0).Propagated)
	assert.True(t, lsg.output.Input(0).IsLinear())
	assert.Equal(t, 2, report.Halts[HaltBoundary])

	assert.Equal(t, []graph.NodeId{lsg.load.Id(), lsg.heavy.Id(), lsg.store.Id()}, report.HeavyNodes())
	assert.Len(t, report.Committed, 6)
	assert.Contains(t, report.String(), "1 seeds, 6 committed slots")
}

func TestIdempotency(t *testing.T) {
	lsg := buildLoadStore(t)
	table, err := xref.Build(lsg.g)
	require.NoError(t, err)
	e := New(lsg.g, heavyOpStore(), table, DefaultConfig())
	report, err := e.Run()
	require.NoError(t, err)
	snapshot := make(map[graph.SlotRef]graph.Slot)
	for ref, slot := range lsg.g.Slots() {
		snapshot[ref] = *slot
	}
	numCommitted := len(report.Committed)

	// Replay the item that reached the output of load.
	w := e.newWalk(lsg.heavy)
	w.step(item{
		slot:      graph.Out(lsg.load.Id(), 0),
		dir:       graph.Backward,
		candidate: nc1hwc0,
		from:      graph.In(lsg.heavy.Id(), 0),
	})
	w.drain()
	assert.Len(t, report.Committed, numCommitted)
	assert.Equal(t, 1, report.Halts[HaltAlreadyCommitted])
	for ref, slot := range lsg.g.Slots() {
		assert.Equal(t, snapshot[ref], *slot, "slot %s changed", ref)
	}

	// A second run doesn't change anything either.
	report, err = e.Run()
	require.NoError(t, err)
	assert.Empty(t, report.Committed)
	assert.Equal(t, 2, report.Halts[HaltAlreadyCommitted])
	for ref, slot := range lsg.g.Slots() {
		assert.Equal(t, snapshot[ref], *slot, "slot %s changed", ref)
	}

	// Until the layouts are reset.
	lsg.g.ResetLayouts()
	report, err = e.Run()
	require.NoError(t, err)
	assert.Len(t, report.Committed, numCommitted)
}

func TestFirstCandidateWins(t *testing.T) {
	g := graph.NewGraph("first_wins")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	a := graphtest.Data(main, "a", fp16Image, layout.ND)
	b := graphtest.Data(main, "b", fp16Image, layout.ND)
	bmm := graphtest.Binary(a, b, "bmm", "BatchMatMul")
	add := graphtest.Binary(conv, bmm, "add", "Add")
	graphtest.Output(main, "output", add)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, []graph.NodeId{conv.Id(), bmm.Id()}, report.Seeds)

	// The convolution was seeded first: its layout reached both inputs of add.
	assert.Equal(t, nc1hwc0, add.Input(0).Layout)
	assert.Equal(t, nc1hwc0, add.Input(1).Layout)
	assert.Equal(t, nc1hwc0, add.Output(0).Layout)
	assert.Equal(t, graphtest.Heavy(layout.FractalNZ), bmm.Output(0).Layout)
	assert.Equal(t, []int{1, 32, 1, 1, 16, 16}, bmm.Output(0).Physical.Dimensions)
	assert.Equal(t, 1, report.Halts[HaltKernelUnsupported], "BatchMatMul has no NC1HWC0 kernel")
	assert.Equal(t, 1, report.Halts[HaltAlreadyCommitted], "add.x2 was committed by the first seed")
}

func TestScalarsKeepTheirLayout(t *testing.T) {
	g := graph.NewGraph("scalar")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	scale := graphtest.Data(main, "scale", shapes.Scalar(dtypes.Float16), layout.ND)
	mul := graphtest.Op(main, "mul", "Mul", fp16Image, layout.NCHW, "x1").
		AddInput("x2", shapes.Scalar(dtypes.Float16), layout.ND)
	g.Connect(conv, 0, mul, 0)
	g.Connect(scale, 0, mul, 1)
	graphtest.Output(main, "output", mul)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, nc1hwc0, mul.Input(0).Layout)
	assert.Equal(t, nc1hwc0, mul.Output(0).Layout)
	scalar := mul.Input(1)
	assert.True(t, scalar.IsLinear())
	assert.False(t, scalar.Propagated)
	assert.True(t, scalar.Physical.Equal(scalar.Logical))
	assert.Equal(t, 1, report.Halts[HaltScalar])
}

func TestWeights(t *testing.T) {
	testCases := []struct {
		name string

		// earlierSeed adds a convolution seeded before the one owning the filter.
		earlierSeed bool

		// consumer adds a second consumer to the filter of the convolution, and returns it. Its input number
		// input is connected to the filter.
		consumer      func(filter, earlier *graph.Node) *graph.Node
		input         int
		wantConsumer  layout.Layout
		wantRollbacks int
	}{
		{
			name: "pooling",
			consumer: func(filter, _ *graph.Node) *graph.Node {
				return graphtest.Unary(filter, "pool", "Pooling")
			},
			wantConsumer:  layout.Linear(layout.NCHW),
			wantRollbacks: 1,
		},
		{
			name: "switch to pooling",
			consumer: func(filter, _ *graph.Node) *graph.Node {
				sw := graphtest.Unary(filter, "switch", graph.OpSwitch)
				return graphtest.Unary(sw, "pool", "Pooling")
			},
			wantConsumer:  layout.Linear(layout.NCHW),
			wantRollbacks: 1,
		},
		{
			name: "switch to add",
			consumer: func(filter, _ *graph.Node) *graph.Node {
				sw := graphtest.Unary(filter, "switch", graph.OpSwitch)
				other := graphtest.Data(filter.Subgraph(), "other", filter.Output(0).Logical, layout.NCHW)
				return graphtest.Binary(sw, other, "add", "Add")
			},
			wantConsumer: layout.Linear(layout.NCHW),
		},
		{
			// The earlier seed commits ident.x2 to NC1HWC0, and fails to commit the filter since the
			// convolution rejects it. When the convolution reaches the filter with FRACTAL_Z, ident.x2
			// holds another format.
			name:        "consumer committed by an earlier seed",
			earlierSeed: true,
			consumer: func(filter, earlier *graph.Node) *graph.Node {
				return graphtest.Binary(earlier, filter, "ident", "Identity").
					SetAttr(graph.AttrFormatAgnostic, graph.AgnosticAll)
			},
			input:         1,
			wantConsumer:  nc1hwc0,
			wantRollbacks: 2,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := graph.NewGraph("weights")
			main := g.Main()
			var earlier *graph.Node
			if tc.earlierSeed {
				earlierData := graphtest.DataOf[float16.Float16](main, "earlier_data", layout.NCHW, 1, 32, 8, 8)
				earlier, _ = graphtest.Conv2D(earlierData, "earlier", 32, 1)
			}
			data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
			conv, filter := graphtest.Conv2D(data, "conv", 32, 1)
			consumer := tc.consumer(filter, earlier)
			graphtest.Output(main, "output", conv, consumer)

			report := runPass(t, g, kernels.Default(), DefaultConfig())
			if tc.earlierSeed {
				assert.Equal(t, []graph.NodeId{earlier.Id(), conv.Id()}, report.Seeds)
			}
			assert.Empty(t, report.Failures)
			assert.Equal(t, fractalZ, conv.Input(1).Layout)
			assert.Equal(t, tc.wantConsumer, consumer.Input(tc.input).Layout)
			assert.Equal(t, tc.wantConsumer.IsHeavy(), consumer.Input(tc.input).Propagated)
			if tc.wantRollbacks == 0 {
				require.NoError(t, report.Err())
				assert.Equal(t, fractalZ, filter.Output(0).Layout)
				assert.Equal(t, []int{18, 2, 16, 16}, filter.Output(0).Physical.Dimensions)
				return
			}
			require.Len(t, report.Rollbacks, tc.wantRollbacks)
			for _, rollback := range report.Rollbacks {
				assert.Equal(t, graph.Out(filter.Id(), 0), rollback.Slot)
			}
			require.ErrorIs(t, report.Err(), ErrWeightRollback)
			weight := filter.Output(0)
			assert.True(t, weight.IsLinear())
			assert.False(t, weight.Propagated)
			assert.True(t, weight.Physical.Equal(weight.Logical))
		})
	}

	t.Run("disabled", func(t *testing.T) {
		g := graph.NewGraph("weights")
		main := g.Main()
		data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
		conv, filter := graphtest.Conv2D(data, "conv", 32, 1)
		graphtest.Output(main, "output", conv)
		cfg := DefaultConfig()
		cfg.WeightPropagation = false
		report := runPass(t, g, kernels.Default(), cfg)
		require.NoError(t, report.Err())
		assert.Equal(t, fractalZ, conv.Input(1).Layout)
		assert.True(t, filter.Output(0).IsLinear())
		assert.Equal(t, 1, report.Halts[HaltWeightsDisabled])
	})
}

func TestWeightAliases(t *testing.T) {
	g := graph.NewGraph("aliases")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, filter := graphtest.Conv2D(data, "conv", 32, 1)
	filter.SetAttr(graph.AttrWeightAlias, "w")
	filterShape := filter.Output(0).Logical
	shared := graphtest.ConstOf[float16.Float16](main, "shared", layout.NCHW, 32, 32, 3, 3).
		SetAttr(graph.AttrWeightAlias, "w")
	other := graphtest.Data(main, "other", filterShape, layout.NCHW)
	add := graphtest.Binary(other, shared, "add", "Add")
	graphtest.Output(main, "output", conv, add)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, fractalZ, filter.Output(0).Layout)
	assert.Equal(t, filter.Output(0).Layout, shared.Output(0).Layout)
	assert.Equal(t, filter.Output(0).Physical, shared.Output(0).Physical)

	// The consumers of the alias follow.
	assert.Equal(t, fractalZ, add.Input(1).Layout)
	assert.Equal(t, fractalZ, add.Input(0).Layout)
	assert.Equal(t, fractalZ, add.Output(0).Layout)
	assert.True(t, other.Output(0).IsLinear())
}

func TestSubgraphBoundarySymmetry(t *testing.T) {
	g := graph.NewGraph("call")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	call := graphtest.Unary(conv, "call", graph.OpPartitionedCall)
	output := graphtest.Output(main, "output", call)

	body := g.NewSubgraph("body")
	call.AttachSubgraph(body, false)
	arg := graphtest.Data(body, "arg", fp16Image, layout.NCHW).SetAttr(graph.AttrParentNodeIndex, 0)
	relu := graphtest.Unary(arg, "relu", "Relu")
	result := graphtest.Output(body, "result", relu)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, nc1hwc0, call.Input(0).Layout)
	assert.Equal(t, call.Input(0).Layout, arg.Output(0).Layout)
	assert.Equal(t, call.Input(0).Physical, arg.Output(0).Physical)
	assert.Equal(t, nc1hwc0, relu.Input(0).Layout)
	assert.Equal(t, nc1hwc0, relu.Output(0).Layout)
	assert.Equal(t, nc1hwc0, result.Input(0).Layout)
	assert.Equal(t, result.Input(0).Layout, call.Output(0).Layout)
	assert.True(t, output.Input(0).IsLinear())
}

func TestSubgraphBoundaryPresetLayout(t *testing.T) {
	g := graph.NewGraph("preset")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	call := graphtest.Unary(conv, "call", graph.OpPartitionedCall)
	graphtest.Output(main, "output", call)

	body := g.NewSubgraph("body")
	call.AttachSubgraph(body, false)
	arg := graphtest.Data(body, "arg", fp16Image, layout.NCHW).SetAttr(graph.AttrParentNodeIndex, 0)
	relu := graphtest.Unary(arg, "relu", "Relu")
	graphtest.Output(body, "result", relu)

	// The argument already holds the layout, e.g. loaded from a description, but is not committed.
	preset := arg.Output(0)
	graphtest.SetLayout(t, preset, nc1hwc0)
	preset.Propagated = false

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Zero(t, report.Halts[HaltSameFormat])
	assert.True(t, preset.Propagated)
	assert.Equal(t, nc1hwc0, preset.Layout)
	assert.Equal(t, []int{1, 2, 8, 8, 16}, preset.Physical.Dimensions)
	assert.Contains(t, report.Committed, graph.Out(arg.Id(), 0))
	assert.Equal(t, nc1hwc0, relu.Input(0).Layout)
	assert.Equal(t, nc1hwc0, relu.Output(0).Layout)
}

// filterPrepStore returns the default catalogue plus "FilterPrep", an operator keeping convolution filters in
// FRACTAL_Z with the given sub-layouts.
func filterPrepStore(subs []int) *kernels.Registry {
	support := kernels.Support{Format: layout.FractalZ, SubLayouts: subs, DType: dtypes.Float16}
	return kernels.Default().Clone().MustRegister(kernels.OpKernel{
		OpType:  "FilterPrep",
		Inputs:  []kernels.SlotKernel{slotKernel("x", support)},
		Outputs: []kernels.SlotKernel{slotKernel("y", support)},
	})
}

func TestGroupedConvolution(t *testing.T) {
	build := func() (g *graph.Graph, conv, prep *graph.Node) {
		g = graph.NewGraph("grouped")
		main := g.Main()
		data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
		filterShape := shapes.Make(dtypes.Float16, 32, 8, 3, 3)
		weights := graphtest.Data(main, "weights", filterShape, layout.NCHW)
		prep = graphtest.Unary(weights, "prep", "FilterPrep")
		conv = main.AddNode("conv", "Conv2D").
			SetAttr(graph.AttrGroups, 4).
			AddInput("x", fp16Image, layout.NCHW).
			AddInput("filter", filterShape, layout.NCHW).
			AddOutput("y", fp16Image, layout.NCHW)
		g.Connect(data, 0, conv, 0)
		g.Connect(prep, 0, conv, 1)
		graphtest.Output(main, "output", conv)
		return
	}
	grouped := layout.Layout{Primary: layout.FractalZ, Sub: 4, C0: 16}

	t.Run("supported", func(t *testing.T) {
		g, conv, prep := build()
		report := runPass(t, g, filterPrepStore([]int{1, 2, 4, 8}), DefaultConfig())
		require.NoError(t, report.Err())
		assert.Equal(t, grouped, conv.Input(1).Layout)
		assert.Equal(t, grouped, prep.Output(0).Layout)
		assert.Equal(t, grouped, prep.Input(0).Layout)
		assert.Equal(t, []int{18, 1, 16, 16}, prep.Output(0).Physical.Dimensions)
		assert.Equal(t, nc1hwc0, conv.Input(0).Layout, "group count is only kept on the filter")
	})

	t.Run("unsupported", func(t *testing.T) {
		g, conv, prep := build()
		report := runPass(t, g, filterPrepStore([]int{1, 2}), DefaultConfig())
		require.Len(t, report.Failures, 1)
		assert.Equal(t, graph.Out(prep.Id(), 0), report.Failures[0].Slot)
		assert.Equal(t, conv.Id(), report.Failures[0].Seed)
		require.ErrorIs(t, report.Err(), ErrSubLayoutUnsupported)
		assert.Equal(t, grouped, conv.Input(1).Layout)
		assert.True(t, prep.Output(0).IsLinear())
		assert.False(t, prep.Output(0).Propagated)
		assert.True(t, prep.Input(0).IsLinear())
	})
}

func TestMaxElements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxElements = 1000
	lsg := buildLoadStore(t)
	report := runPass(t, lsg.g, heavyOpStore(), cfg)
	require.ErrorIs(t, report.Err(), ErrSizeOverflow)
	assert.Len(t, report.Failures, 2)
	assert.Empty(t, report.Committed)
	assert.True(t, lsg.heavy.Input(0).IsLinear())
	assert.True(t, lsg.heavy.Output(0).IsLinear())

	cfg.MaxElements = 2048
	lsg = buildLoadStore(t)
	report = runPass(t, lsg.g, heavyOpStore(), cfg)
	require.NoError(t, report.Err())
	assert.Equal(t, nc1hwc0, lsg.heavy.Input(0).Layout)
}

// biasGenStore returns the default catalogue plus "BiasGen", a layout-generating operator with a single rank-1
// output in NC1HWC0 expanded with the given reshape-type.
func biasGenStore(reshapeType string) *kernels.Registry {
	output := slotKernel("y", kernels.Support{Format: layout.NC1HWC0, DType: dtypes.Float16})
	output.ReshapeType = reshapeType
	return kernels.Default().Clone().MustRegister(kernels.OpKernel{
		OpType:           "BiasGen",
		LayoutGenerating: true,
		Outputs:          []kernels.SlotKernel{output},
	})
}

func TestReshapeType(t *testing.T) {
	build := func() (g *graph.Graph, gen, biasAdd *graph.Node) {
		g = graph.NewGraph("bias")
		main := g.Main()
		data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
		biasShape := shapes.Make(dtypes.Float16, 32)
		gen = main.AddNode("gen", "BiasGen").AddOutput("y", biasShape, layout.NCHW)
		biasAdd = main.AddNode("bias_add", "BiasAdd").
			AddInput("x", fp16Image, layout.NCHW).
			AddInput("bias", biasShape, layout.NCHW).
			AddOutput("y", fp16Image, layout.NCHW)
		g.Connect(data, 0, biasAdd, 0)
		g.Connect(gen, 0, biasAdd, 1)
		graphtest.Output(main, "output", biasAdd)
		return
	}

	t.Run("agreeing", func(t *testing.T) {
		g, gen, biasAdd := build()
		report := runPass(t, g, biasGenStore("C"), DefaultConfig())
		require.NoError(t, report.Err())
		assert.Equal(t, "C", gen.Output(0).ReshapeType)
		bias := biasAdd.Input(1)
		assert.Equal(t, nc1hwc0, bias.Layout)
		assert.Equal(t, "C", bias.ReshapeType)
		assert.Equal(t, []int{1, 2, 1, 1, 16}, bias.Physical.Dimensions)
		assert.Equal(t, nc1hwc0, biasAdd.Input(0).Layout)
		assert.Equal(t, "", biasAdd.Input(0).ReshapeType)
		assert.Equal(t, nc1hwc0, biasAdd.Output(0).Layout)
	})

	t.Run("mismatch", func(t *testing.T) {
		g, gen, biasAdd := build()
		report := runPass(t, g, biasGenStore("H"), DefaultConfig())
		assert.Equal(t, "H", gen.Output(0).ReshapeType)
		assert.Equal(t, []int{1, 1, 32, 1, 16}, gen.Output(0).Physical.Dimensions)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, graph.In(biasAdd.Id(), 1), report.Failures[0].Slot)
		require.ErrorIs(t, report.Err(), ErrReshapeTypeMismatch)
		assert.True(t, biasAdd.Input(1).IsLinear())
		assert.True(t, biasAdd.Output(0).IsLinear())
	})
}

func TestDanglingLink(t *testing.T) {
	g := graph.NewGraph("dangling")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	output := graphtest.Output(main, "output", conv)
	graphtest.RequireValid(t, g)

	table := xref.New(g)
	table.AddLink(graph.In(output.Id(), 0), graph.Out(99, 0), graph.Forward)
	report, err := New(g, kernels.Default(), table, DefaultConfig()).Run()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDanglingLink)
	assert.Contains(t, err.Error(), `graph "dangling"`)
	assert.NotNil(t, report)
}

func TestDegenerateSeeds(t *testing.T) {
	build := func() (g *graph.Graph, matmul *graph.Node) {
		g = graph.NewGraph("matmul")
		main := g.Main()
		lhs := graphtest.Data(main, "lhs", shapes.Make(dtypes.Float32, 32, 64), layout.ND)
		rhs := graphtest.Data(main, "rhs", shapes.Make(dtypes.Float32, 64, 16), layout.ND)
		matmul = main.AddNode("matmul", "MatMul").
			AddInput("x1", shapes.Make(dtypes.Float32, 32, 64), layout.ND).
			AddInput("x2", shapes.Make(dtypes.Float32, 64, 16), layout.ND).
			AddOutput("y", shapes.Make(dtypes.Float32, 32, 16), layout.ND)
		g.Connect(lhs, 0, matmul, 0)
		g.Connect(rhs, 0, matmul, 1)
		graphtest.Output(main, "output", matmul)
		return
	}

	for _, mode := range []layout.PrecisionMode{layout.PrecisionAllowFp32ToFp16, layout.PrecisionForceFp16} {
		t.Run(mode.String(), func(t *testing.T) {
			g, matmul := build()
			cfg := DefaultConfig()
			cfg.PrecisionMode = mode
			report := runPass(t, g, kernels.Default(), cfg)
			require.NoError(t, report.Err())
			assert.Equal(t, []graph.NodeId{matmul.Id()}, report.Seeds)
			assert.Empty(t, report.DegenerateSeeds)
			assert.Equal(t, graphtest.Heavy(layout.FractalNZ), matmul.Output(0).Layout)
			assert.Equal(t, []int{1, 2, 16, 16}, matmul.Output(0).Physical.Dimensions)
			assert.Equal(t, []int{4, 2, 16, 16}, matmul.Input(0).Physical.Dimensions)
		})
	}

	t.Run(layout.PrecisionMustKeepOriginDtype.String(), func(t *testing.T) {
		g, matmul := build()
		cfg := DefaultConfig()
		cfg.PrecisionMode = layout.PrecisionMustKeepOriginDtype
		report := runPass(t, g, kernels.Default(), cfg)
		require.NoError(t, report.Err())
		assert.Empty(t, report.Seeds)
		assert.Equal(t, []graph.NodeId{matmul.Id()}, report.DegenerateSeeds)
		assert.Empty(t, report.Committed)
		assert.True(t, matmul.Output(0).IsLinear())
	})
}

func TestPenetrating(t *testing.T) {
	g := graph.NewGraph("penetrating")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	reshape := graphtest.Unary(conv, "reshape", "Reshape").SetAttr(graph.AttrCompilerInserted, true)
	relu := graphtest.Unary(reshape, "relu", "Relu")
	graphtest.Output(main, "output", relu)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.True(t, reshape.Input(0).IsLinear())
	assert.False(t, reshape.Output(0).Propagated)
	assert.Equal(t, nc1hwc0, relu.Input(0).Layout)
	assert.Equal(t, nc1hwc0, relu.Output(0).Layout)
}

func TestAgnosticExceptions(t *testing.T) {
	g := graph.NewGraph("agnostic")
	main := g.Main()
	data := graphtest.Data(main, "data", fp16Image, layout.NCHW)
	conv, _ := graphtest.Conv2D(data, "conv", 32, 1)
	other := graphtest.Data(main, "other", fp16Image, layout.NCHW)
	concat := graphtest.Binary(conv, other, "concat", "ConcatLike").
		SetAttr(graph.AttrFormatAgnostic, graph.AgnosticAll).
		SetAttr(graph.AttrFormatAgnosticExceptInput, []int{1}).
		SetAttr(graph.AttrFormatContinuous, true)
	graphtest.Output(main, "output", concat)

	report := runPass(t, g, kernels.Default(), DefaultConfig())
	require.NoError(t, report.Err())
	assert.Equal(t, nc1hwc0, concat.Input(0).Layout)
	assert.Equal(t, nc1hwc0, concat.Output(0).Layout)
	assert.True(t, concat.Input(1).IsLinear())
	assert.False(t, concat.Input(1).Propagated)
	assert.Equal(t, []graph.NodeId{concat.Id()}, report.ContinuousNodes)
	assert.Zero(t, report.Reconciled)
}

func TestResolveMode(t *testing.T) {
	g := graph.NewGraph("modes")
	main := g.Main()
	sub := g.NewSubgraph("sub")
	call := main.AddNode("call", graph.OpPartitionedCall).AttachSubgraph(sub, false)
	testCases := []struct {
		node *graph.Node
		want Mode
	}{
		{main.AddNode("data", graph.OpData), ModeSubgraphBoundary},
		{main.AddNode("output", graph.OpNetOutput), ModeSubgraphBoundary},
		{call, ModeSubgraphBoundary},
		{main.AddNode("const", graph.OpConst), ModePenetrating},
		{main.AddNode("var", "ReadVariable").SetAttr(graph.AttrIsWeight, true), ModePenetrating},
		{main.AddNode("trans", graph.OpTransData), ModePenetrating},
		{main.AddNode("inserted", "Reshape").SetAttr(graph.AttrCompilerInserted, true), ModePenetrating},
		{main.AddNode("merge", graph.OpMerge).SetAttr(graph.AttrFormatAgnostic, "all"), ModeAgnosticAll},
		{main.AddNode("next", graph.OpNextIteration).SetAttr(graph.AttrFormatAgnostic, graph.AgnosticPaired), ModeAgnosticPaired},
		{main.AddNode("relu", "Relu"), ModeKernelDependent},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, resolveMode(tc.node), "node %s", tc.node)
	}
}

func TestWorklist(t *testing.T) {
	var w worklist
	_, ok := w.pop()
	require.False(t, ok)
	for ii := range 3 {
		w.push(item{slot: graph.In(graph.NodeId(ii), 0)})
	}
	w.pushFront(item{slot: graph.Out(7, 0)})
	assert.Equal(t, 4, w.len())
	var order []graph.NodeId
	for {
		it, ok := w.pop()
		if !ok {
			break
		}
		order = append(order, it.slot.Node)
	}
	assert.Equal(t, []graph.NodeId{7, 0, 1, 2}, order)
	assert.Equal(t, 4, w.pushed)
}
