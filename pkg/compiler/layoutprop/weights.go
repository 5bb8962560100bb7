// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"slices"

	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// transaction buffers the decisions for a weight and its aliases until every consumer is validated.
type transaction struct {
	refs      []graph.SlotRef
	decisions []decision
}

func (tx *transaction) add(ref graph.SlotRef, d decision) {
	tx.refs = append(tx.refs, ref)
	tx.decisions = append(tx.decisions, d)
}

// weight handles a candidate arriving at the output of a weight: the weight and the weights aliased to it
// take the candidate only if all their other consumers accept it. Otherwise nothing is written and the
// rollback is reported.
func (w *walk) weight(it item, node *graph.Node) {
	if !w.e.cfg.WeightPropagation {
		w.halt(HaltWeightsDisabled)
		return
	}
	if it.slot.Kind != graph.Output {
		// Weights with inputs (e.g. initializers) are crossed like any other penetrating node.
		w.penetrate(it, node)
		return
	}

	// Buffer the decisions for the weight and its aliases.
	var tx transaction
	d := w.e.decide(it.slot, it.candidate, it.reshapeType)
	switch d.outcome {
	case OutcomeHalted:
		w.halt(d.halt)
		return
	case OutcomeFailed:
		w.fail(it.slot, d.err)
		return
	}
	tx.add(it.slot, d)
	forward, backward := w.linked(it.slot)
	for _, alias := range slices.Concat(forward, backward) {
		if slices.Contains(tx.refs, alias) || !w.g.Node(alias.Node).IsWeight() {
			continue
		}
		d := w.e.decide(alias, it.candidate, it.reshapeType)
		switch d.outcome {
		case OutcomeCommitted:
			tx.add(alias, d)
		case OutcomeFailed:
			w.rollback(it.slot, it.candidate, errors.WithMessagef(d.err, "alias %s of the weight", alias))
			return
		}
	}

	// Validate every consumer, except the one the candidate comes from.
	var consumers []graph.SlotRef
	for _, ref := range tx.refs {
		for _, peer := range w.peers(ref) {
			if peer != it.from {
				consumers = append(consumers, peer)
			}
		}
	}
	if rejected, ok := w.validateConsumers(consumers, it.candidate); !ok {
		w.rollback(it.slot, it.candidate, errors.Errorf("consumer %s of node %s rejects it", rejected, w.g.Node(rejected.Node)))
		return
	}

	// Commit and fan out, the fan-out of the weight first.
	for ii, ref := range tx.refs {
		w.e.apply(ref, tx.decisions[ii])
	}
	klog.V(2).Infof("layoutprop: weight %s (and %d aliases) committed to %s", node, len(tx.refs)-1, tx.decisions[0].layout)
	for ii := len(tx.refs) - 1; ii >= 0; ii-- {
		ref := tx.refs[ii]
		slot := w.g.Slot(ref)
		peers := w.peers(ref)
		for jj := len(peers) - 1; jj >= 0; jj-- {
			if peers[jj] == it.from {
				continue
			}
			w.queue.pushFront(item{slot: peers[jj], dir: graph.Forward, candidate: slot.Layout, reshapeType: slot.ReshapeType, from: ref})
		}
	}
}

// validateConsumers checks that every consumer accepts the candidate: format-agnostic consumers (unless the
// slot is an exception), kernel-dependent consumers with a kernel variant supporting it, and penetrating ones.
// Conditional branches and subgraph boundaries are checked through their own successors. A consumer slot
// already committed to another heavy format, e.g. by an earlier seed, rejects it.
//
// It returns the first consumer rejecting the candidate.
func (w *walk) validateConsumers(consumers []graph.SlotRef, candidate layout.Layout) (rejected graph.SlotRef, ok bool) {
	stack := slices.Clone(consumers)
	seen := sets.Make[graph.SlotRef]()
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Has(ref) {
			continue
		}
		seen.Insert(ref)
		if slot := w.g.Slot(ref); slot.Propagated && slot.Layout.IsHeavy() && !slot.Layout.SameFormat(candidate) {
			return ref, false
		}
		node := w.g.Node(ref.Node)
		if isBranch(node) {
			for ii := range node.NumOutputs() {
				stack = append(stack, w.peers(graph.Out(node.Id(), ii))...)
			}
			continue
		}
		switch w.mode(node) {
		case ModePenetrating:
			// Accepts anything.
		case ModeAgnosticAll, ModeAgnosticPaired:
			if node.IsAgnosticException(ref.Kind, ref.Index) {
				return ref, false
			}
		case ModeKernelDependent:
			if variant, _ := w.e.matchVariant(node, ref, candidate); variant < 0 {
				return ref, false
			}
		case ModeSubgraphBoundary:
			forward, _ := w.linked(ref)
			if len(forward) == 0 {
				// The model output keeps its layout.
				return ref, false
			}
			for _, link := range forward {
				stack = append(stack, w.peers(link)...)
			}
		}
	}
	return graph.InvalidSlotRef, true
}

// rollback reports that the candidate could not be committed on the weight.
func (w *walk) rollback(ref graph.SlotRef, candidate layout.Layout, reason error) {
	failure := &BranchError{
		Seed: w.seed.Id(),
		Slot: ref,
		Node: w.g.Node(ref.Node).String(),
		Err:  errors.Wrapf(ErrWeightRollback, "%s: %v", candidate, reason),
	}
	w.e.report.Rollbacks = append(w.e.report.Rollbacks, failure)
	klog.Warningf("layoutprop: graph %q run %s: %v", w.g.Name(), w.e.report.RunID, failure)
}
