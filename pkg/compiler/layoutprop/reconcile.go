// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"slices"

	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Reconcile re-derives the layouts of the format-continuous nodes reached by the walks from the layouts of
// their connected peers, since loop-carried edges may have been set by a node processed later. It runs over
// Report.ContinuousNodes in discovery order and then, if Config.ReconcileReverse is set, in reverse order.
//
// Nodes in ModeAgnosticPaired align each input with the output of the same index. Other nodes align all their
// slots on the first heavy peer, in anchor order (inputs first). If no peer is heavy, the node falls back to
// linear layouts. Exception slots are left untouched.
//
// Slots of nodes in ModeKernelDependent (format-continuous seeds, for instance) only take the layout of the
// first heavy peer if a kernel variant supports it there, and never fall back to linear layouts.
//
// It is called by Run; it's exported to allow running it again after manual changes to the graph.
func (e *Engine) Reconcile() {
	if e.report == nil {
		e.report = newReport(e.g)
	}
	nodes := e.report.ContinuousNodes
	if len(nodes) == 0 {
		return
	}
	forward := e.reconcilePass(nodes)
	var reverse int
	if e.cfg.ReconcileReverse {
		reversed := slices.Clone(nodes)
		slices.Reverse(reversed)
		reverse = e.reconcilePass(reversed)
		if reverse > 0 {
			// Two passes are enough for the loops seen so far, not proven for arbitrary nesting.
			klog.V(1).Infof("layoutprop: graph %q: reverse reconciliation changed %d slots", e.g.Name(), reverse)
		}
	}
	e.report.Reconciled += forward + reverse
	e.report.ReverseChanges += reverse
}

// reconcilePass reconciles the nodes in the given order and returns the number of slots changed.
func (e *Engine) reconcilePass(nodes []graph.NodeId) (changes int) {
	for _, id := range nodes {
		node := e.g.Node(id)
		mode := resolveMode(node)
		if mode != ModeAgnosticPaired {
			changes += e.reconcileGroup(node, mode, node.Refs())
			continue
		}
		for ii := range max(node.NumInputs(), node.NumOutputs()) {
			var group []graph.SlotRef
			if ii < node.NumInputs() {
				group = append(group, graph.In(id, ii))
			}
			if ii < node.NumOutputs() {
				group = append(group, graph.Out(id, ii))
			}
			changes += e.reconcileGroup(node, mode, group)
		}
	}
	return
}

// reconcileGroup aligns the group of slots of the node on the dominant layout of their peers.
func (e *Engine) reconcileGroup(node *graph.Node, mode Mode, group []graph.SlotRef) (changes int) {
	group = slices.DeleteFunc(slices.Clone(group), func(ref graph.SlotRef) bool {
		return node.IsAgnosticException(ref.Kind, ref.Index)
	})
	var dominant *graph.Slot
	var numPeers int
	for _, ref := range group {
		for _, peer := range node.Peers(ref.Kind, ref.Index) {
			if !e.g.HasSlot(peer) {
				panic(errors.Wrapf(ErrMissingPeer, "edge %s -> %s of node %s", ref, peer, node))
			}
			numPeers++
			if slot := e.g.Slot(peer); dominant == nil && slot.Layout.IsHeavy() {
				dominant = slot
			}
		}
	}
	if numPeers == 0 {
		return 0
	}

	for _, ref := range group {
		slot := e.g.Slot(ref)
		if dominant == nil {
			if mode != ModeKernelDependent && !slot.IsLinear() {
				slot.Reset()
				slot.Propagated = true
				changes++
			}
			continue
		}
		if slot.IsScalar() {
			continue
		}
		target := layout.Layout{Primary: dominant.Layout.Primary, Sub: dominant.Layout.Sub}
		if mode == ModeKernelDependent {
			if variant, _ := e.matchVariant(node, ref, target); variant < 0 {
				klog.V(2).Infof("layoutprop: reconciliation of %s of %s to %s skipped: no kernel variant", ref, node, target)
				continue
			}
		}
		d := e.transfer(ref, target, dominant.ReshapeType)
		switch d.outcome {
		case OutcomeCommitted:
			slot.Layout = d.layout
			slot.Physical = d.physical
			slot.ReshapeType = d.reshapeType
			slot.PhysicalRange = d.physicalRange
			slot.Propagated = true
			e.report.heavyNodes.Insert(ref.Node)
			changes++
		case OutcomeFailed:
			klog.V(2).Infof("layoutprop: reconciliation of %s of %s to %s skipped: %v", ref, node, dominant.Layout, d.err)
		}
	}
	return
}
