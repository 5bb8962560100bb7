// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layoutprop implements the heavy layout propagation pass: it decides, for every tensor edge of an
// operator graph, which physical layout ("format") the producer and the consumers use, and writes the decision
// (layout, physical shape, reshape-type) onto the graph slots.
//
// Propagation starts from seeds, the nodes whose kernels generate heavy layouts (convolutions, matrix
// multiplications), and walks the graph in both directions with an explicit worklist. How a node reacts to a
// candidate layout arriving at one of its slots depends on its Mode: format-agnostic nodes adopt it,
// kernel-dependent nodes adopt what their kernels support, weights and data-movement nodes let it through,
// and subgraph boundaries pass it to the other side through the cross-reference table.
//
// Each slot is committed at most once per pass: the first candidate to reach it wins. Weights are committed
// in all-or-nothing transactions, only if every consumer accepts the candidate.
//
// After the walks, the nodes marked format-continuous are reconciled with their peers (see Engine.Reconcile).
package layoutprop

import (
	"slices"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/kernels"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// XRef is the cross-reference table consumed by the pass, see package xref.
type XRef interface {
	LinkedSlots(ref graph.SlotRef, dir graph.Direction) ([]graph.SlotRef, error)
}

// Engine runs the layout propagation over one graph.
//
// The graph is mutated in place. The kernel store and the cross-reference table are only read, and must not
// change while the Engine runs.
type Engine struct {
	g      *graph.Graph
	store  kernels.Store
	xref   XRef
	cfg    Config
	report *Report
}

// New creates an Engine for the graph.
func New(g *graph.Graph, store kernels.Store, xref XRef, cfg Config) *Engine {
	return &Engine{g: g, store: store, xref: xref, cfg: cfg}
}

// seedPlan is the normalized layout of the heavy slots of a seed, decided before any walk starts.
type seedPlan struct {
	node    *graph.Node
	variant int
	refs    []graph.SlotRef
	layouts []layout.Layout
}

// Run the pass: plan the seeds, walk from each of them and reconcile the format-continuous nodes.
//
// Branch failures and weight rollbacks don't stop the pass, they are listed in the report (see Report.Err).
// The returned error is only set for structural failures (dangling cross-reference links, missing peers),
// in which case the graph may be partially updated.
//
// Run is meant to be called once per graph: slots committed by a previous run are left as they are,
// use graph.ResetLayouts to start over.
func (e *Engine) Run() (*Report, error) {
	start := time.Now()
	e.report = newReport(e.g)
	err := exceptions.TryCatch[error](func() {
		plans := e.planSeeds()
		for _, plan := range plans {
			e.walkSeed(plan)
		}
		e.Reconcile()
	})
	if err != nil {
		return e.report, errors.WithMessagef(err, "layout propagation of graph %q", e.g.Name())
	}
	if klog.V(1).Enabled() {
		klog.Infof("layoutprop: %s in %s", e.report, time.Since(start))
	}
	return e.report, nil
}

// Report returns the report of the last Run.
func (e *Engine) Report() *Report { return e.report }

// seedOrder lists the nodes of the main graph and then of each subgraph, each in NodeId order.
func (e *Engine) seedOrder() []*graph.Node {
	nodes := make([]*graph.Node, 0, e.g.NumNodes())
	for _, sg := range e.g.Subgraphs() {
		nodes = slices.AppendSeq(nodes, sg.Nodes())
	}
	return nodes
}

// planSeeds selects the seeds and normalizes their layouts: every heavy slot of the selected kernel variant
// gets the block factor of its dtype and, for grouped convolutions, the group count as sub-layout.
func (e *Engine) planSeeds() []seedPlan {
	var plans []seedPlan
	for _, node := range e.seedOrder() {
		if !e.store.IsLayoutGenerating(node.OpType()) {
			continue
		}
		variant := e.seedVariant(node)
		if variant < 0 {
			klog.V(2).Infof("layoutprop: %s has no kernel variant for its dtypes under %s, not seeded", node, e.cfg.PrecisionMode)
			e.report.DegenerateSeeds = append(e.report.DegenerateSeeds, node.Id())
			continue
		}
		plan := seedPlan{node: node, variant: variant}
		groups := node.Groups()
		for _, ref := range node.Refs() {
			slot := e.g.Slot(ref)
			supports := e.store.SupportedLayouts(node.OpType(), slot.Name)
			if variant >= len(supports) || !supports[variant].Format.IsHeavy() {
				continue
			}
			support := supports[variant]
			candidate := layout.Layout{Primary: support.Format}
			if groups > 1 && len(support.SubLayouts) > 0 {
				candidate.Sub = groups
			}
			candidate = candidate.WithC0(layout.BlockFactor(slot.Logical.DType, e.cfg.PrecisionMode))
			plan.refs = append(plan.refs, ref)
			plan.layouts = append(plan.layouts, candidate)
		}
		if len(plan.refs) == 0 {
			klog.V(2).Infof("layoutprop: kernel variant #%d of %s only uses origin formats, not seeded", variant, node)
			e.report.DegenerateSeeds = append(e.report.DegenerateSeeds, node.Id())
			continue
		}
		plans = append(plans, plan)
	}
	return plans
}

// seedVariant returns the first kernel variant matching the dtypes of every declared slot of the node (after
// the precision policy) and its group count, or -1 if there is none.
func (e *Engine) seedVariant(node *graph.Node) int {
	inputs, outputs := e.store.SlotNames(node.OpType())
	names := slices.Concat(inputs, outputs)
	if len(names) == 0 {
		return -1
	}
	numVariants := len(e.store.SupportedLayouts(node.OpType(), names[0]))
	groups := node.Groups()
	for variant := range numVariants {
		if e.variantMatches(node, variant, groups) {
			return variant
		}
	}
	return -1
}

func (e *Engine) variantMatches(node *graph.Node, variant, groups int) bool {
	for _, ref := range node.Refs() {
		slot := e.g.Slot(ref)
		supports := e.store.SupportedLayouts(node.OpType(), slot.Name)
		if len(supports) == 0 {
			// Slot not declared by the kernel.
			continue
		}
		if variant >= len(supports) {
			return false
		}
		support := supports[variant]
		candidates := e.cfg.PrecisionMode.CandidateDTypes(slot.Logical.DType, node.KeepDType())
		if !slices.Contains(candidates, support.DType) {
			return false
		}
		if groups > 1 && !support.AcceptsSub(groups) {
			return false
		}
	}
	return true
}

// walk holds the state of the walk from one seed. It is discarded once the worklist drains.
type walk struct {
	e    *Engine
	g    *graph.Graph
	seed *graph.Node

	queue worklist

	// modes caches the Mode of the nodes reached.
	modes map[graph.NodeId]Mode

	// visited holds the (slot, candidate) pairs already crossed through penetrating nodes, which never
	// commit anything that would stop a cycle.
	visited sets.Set[visitKey]
}

type visitKey struct {
	ref       graph.SlotRef
	candidate layout.Layout
}

func (e *Engine) newWalk(seed *graph.Node) *walk {
	return &walk{
		e:       e,
		g:       e.g,
		seed:    seed,
		modes:   make(map[graph.NodeId]Mode),
		visited: sets.Make[visitKey](),
	}
}

// walkSeed commits the planned layouts of the seed and drains the worklist of its walk.
func (e *Engine) walkSeed(plan seedPlan) {
	node := plan.node
	e.report.Seeds = append(e.report.Seeds, node.Id())
	w := e.newWalk(node)
	if node.IsFormatContinuous() {
		e.report.addContinuous(node.Id())
	}
	klog.V(2).Infof("layoutprop: seed %s, kernel variant #%d", node, plan.variant)
	for ii, ref := range plan.refs {
		if w.commit(ref, plan.layouts[ii], "") == OutcomeCommitted {
			w.spread(ref, graph.InvalidSlotRef)
		}
	}
	w.drain()
	klog.V(2).Infof("layoutprop: seed %s done, %d items processed", node, w.queue.pushed)
}

func (w *walk) drain() {
	for {
		it, ok := w.queue.pop()
		if !ok {
			return
		}
		w.step(it)
	}
}

// mode returns the cached Mode of the node.
func (w *walk) mode(node *graph.Node) Mode {
	if mode, found := w.modes[node.Id()]; found {
		return mode
	}
	mode := resolveMode(node)
	w.modes[node.Id()] = mode
	return mode
}

// step processes one item of the worklist.
func (w *walk) step(it item) {
	node := w.g.Node(it.slot.Node)
	mode := w.mode(node)
	if klog.V(3).Enabled() {
		klog.Infof("layoutprop: seed %s: %s [%s] %s", w.seed, node, mode, it)
	}
	switch mode {
	case ModeSubgraphBoundary:
		w.crossBoundary(it)
	case ModePenetrating:
		if node.IsWeight() {
			w.weight(it, node)
		} else {
			w.penetrate(it, node)
		}
	case ModeAgnosticAll, ModeAgnosticPaired:
		w.agnostic(it, node, mode)
	case ModeKernelDependent:
		w.kernelDependent(it, node)
	default:
		exceptions.Panicf("layoutprop: unknown mode %s for node %s", mode, node)
	}
}

// direction of the walk leaving a node through the slot: forward from outputs, backward from inputs.
func direction(ref graph.SlotRef) graph.Direction {
	if ref.Kind == graph.Output {
		return graph.Forward
	}
	return graph.Backward
}

// peers returns the slots at the other end of the edges of ref. Peers that don't exist are a structural
// failure.
func (w *walk) peers(ref graph.SlotRef) []graph.SlotRef {
	node := w.g.Node(ref.Node)
	peers := node.Peers(ref.Kind, ref.Index)
	for _, peer := range peers {
		if !w.g.HasSlot(peer) {
			panic(errors.Wrapf(ErrMissingPeer, "edge %s -> %s of node %s", ref, peer, node))
		}
	}
	return peers
}

// spread enqueues the candidate committed on ref to its peers, except exclude.
func (w *walk) spread(ref graph.SlotRef, exclude graph.SlotRef) {
	slot := w.g.Slot(ref)
	for _, peer := range w.peers(ref) {
		if peer == exclude {
			continue
		}
		w.queue.push(item{slot: peer, dir: direction(ref), candidate: slot.Layout, reshapeType: slot.ReshapeType, from: ref})
	}
}

// linked returns the cross-reference links of ref in both directions. Lookup errors are structural failures.
func (w *walk) linked(ref graph.SlotRef) (forward, backward []graph.SlotRef) {
	var err error
	forward, err = w.e.xref.LinkedSlots(ref, graph.Forward)
	if err == nil {
		backward, err = w.e.xref.LinkedSlots(ref, graph.Backward)
	}
	if err != nil {
		panic(errors.WithMessagef(err, "crossing boundary at %s of node %s", ref, w.g.Node(ref.Node)))
	}
	return
}

// crossBoundary commits the candidate on a boundary slot and continues on the linked slots. Boundaries
// without links (the Data and NetOutput of the main graph, the output of condition subgraphs) keep their layout.
func (w *walk) crossBoundary(it item) {
	forward, backward := w.linked(it.slot)
	if len(forward) == 0 && len(backward) == 0 {
		w.halt(HaltBoundary)
		return
	}
	if w.commit(it.slot, it.candidate, it.reshapeType) != OutcomeCommitted {
		return
	}
	w.spread(it.slot, it.from)
	slot := w.g.Slot(it.slot)
	for _, link := range []struct {
		dir     graph.Direction
		targets []graph.SlotRef
	}{{graph.Forward, forward}, {graph.Backward, backward}} {
		for _, target := range link.targets {
			if target == it.from {
				continue
			}
			w.queue.push(item{slot: target, dir: link.dir, candidate: slot.Layout, reshapeType: slot.ReshapeType, from: it.slot})
		}
	}
}

// penetrate lets the candidate through a node that doesn't change layouts, to the peers of all its other slots.
func (w *walk) penetrate(it item, node *graph.Node) {
	key := visitKey{ref: it.slot, candidate: it.candidate}
	if w.visited.Has(key) {
		w.halt(HaltVisited)
		return
	}
	w.visited.Insert(key)
	var exits int
	for _, ref := range node.Refs() {
		if ref == it.slot {
			continue
		}
		for _, peer := range w.peers(ref) {
			if peer == it.from {
				continue
			}
			w.queue.push(item{slot: peer, dir: direction(ref), candidate: it.candidate, reshapeType: it.reshapeType, from: ref})
			exits++
		}
	}
	if exits == 0 {
		w.halt(HaltNoAnchors)
	}
}

// agnostic commits the candidate on the arrival slot and on the admissible slots of a format-agnostic node:
// all of them for ModeAgnosticAll, the slot of the other kind with the same index for ModeAgnosticPaired.
func (w *walk) agnostic(it item, node *graph.Node, mode Mode) {
	if node.IsAgnosticException(it.slot.Kind, it.slot.Index) {
		w.halt(HaltException)
		return
	}
	if w.commit(it.slot, it.candidate, it.reshapeType) != OutcomeCommitted {
		return
	}
	w.noteContinuous(node)
	w.spread(it.slot, it.from)
	arrived := w.g.Slot(it.slot)

	var others []graph.SlotRef
	if mode == ModeAgnosticAll {
		for _, ref := range node.Refs() {
			if ref != it.slot {
				others = append(others, ref)
			}
		}
	} else {
		paired := graph.SlotRef{Node: it.slot.Node, Kind: graph.Output, Index: it.slot.Index}
		if it.slot.Kind == graph.Output {
			paired.Kind = graph.Input
		}
		if w.g.HasSlot(paired) {
			others = append(others, paired)
		}
	}
	for _, ref := range others {
		if node.IsAgnosticException(ref.Kind, ref.Index) {
			continue
		}
		if w.commit(ref, arrived.Layout, arrived.ReshapeType) == OutcomeCommitted {
			w.spread(ref, it.from)
		}
	}
}

// matchVariant returns the first kernel variant of the node that supports the candidate at the slot, with a
// dtype allowed by the precision policy. subRejected reports whether a variant supports the candidate format
// but not its sub-layout.
func (e *Engine) matchVariant(node *graph.Node, ref graph.SlotRef, candidate layout.Layout) (variant int, subRejected bool) {
	slot := e.g.Slot(ref)
	allowed := e.cfg.PrecisionMode.CandidateDTypes(slot.Logical.DType, node.KeepDType())
	for ii, support := range e.store.SupportedLayouts(node.OpType(), slot.Name) {
		if support.Format != candidate.Primary || !slices.Contains(allowed, support.DType) {
			continue
		}
		if !support.AcceptsSub(candidate.Sub) {
			subRejected = true
			continue
		}
		return ii, false
	}
	return -1, subRejected
}

// kernelDependent commits the candidate on the arrival slot if a kernel variant of the node supports it, and
// the heavy formats of that variant on the other slots. Slots where the variant uses an origin format are
// left untouched.
func (w *walk) kernelDependent(it item, node *graph.Node) {
	variant, subRejected := w.e.matchVariant(node, it.slot, it.candidate)
	if variant < 0 {
		if subRejected {
			w.fail(it.slot, errors.Wrapf(ErrSubLayoutUnsupported, "kernels of %s support %s but not sub-layout %d",
				node.OpType(), it.candidate.Primary, it.candidate.Sub))
			return
		}
		w.halt(HaltKernelUnsupported)
		return
	}
	if w.commit(it.slot, it.candidate, it.reshapeType) != OutcomeCommitted {
		return
	}
	w.noteContinuous(node)
	w.spread(it.slot, it.from)

	for _, ref := range node.Refs() {
		if ref == it.slot {
			continue
		}
		supports := w.e.store.SupportedLayouts(node.OpType(), w.g.Slot(ref).Name)
		if variant >= len(supports) || !supports[variant].Format.IsHeavy() {
			continue
		}
		support := supports[variant]
		target := layout.Layout{Primary: support.Format}
		if support.Format == it.candidate.Primary {
			target.Sub = it.candidate.Sub
		}
		if !support.AcceptsSub(target.Sub) {
			w.fail(ref, errors.Wrapf(ErrSubLayoutUnsupported, "kernel variant #%d of %s doesn't support sub-layout %d for %s",
				variant, node.OpType(), target.Sub, support.Format))
			continue
		}
		if w.commit(ref, target, "") == OutcomeCommitted {
			w.spread(ref, it.from)
		}
	}
}

func (w *walk) noteContinuous(node *graph.Node) {
	if node.IsFormatContinuous() {
		w.e.report.addContinuous(node.Id())
	}
}

func (w *walk) halt(reason HaltReason) {
	w.e.report.Halts[reason]++
}

func (w *walk) fail(ref graph.SlotRef, err error) {
	failure := &BranchError{Seed: w.seed.Id(), Slot: ref, Node: w.g.Node(ref.Node).String(), Err: err}
	w.e.report.Failures = append(w.e.report.Failures, failure)
	klog.Warningf("layoutprop: graph %q run %s: %v", w.g.Name(), w.e.report.RunID, failure)
}
