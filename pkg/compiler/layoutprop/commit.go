// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// decision is the result of trying a candidate layout on a slot. For OutcomeCommitted, the fields after outcome
// hold the values to write.
type decision struct {
	outcome Outcome
	halt    HaltReason
	err     error

	layout        layout.Layout
	physical      shapes.Shape
	reshapeType   string
	physicalRange shapes.Ranges
}

func halted(reason HaltReason) decision { return decision{outcome: OutcomeHalted, halt: reason} }

func failed(err error) decision { return decision{outcome: OutcomeFailed, err: err} }

// decide computes what committing the candidate onto the slot would do, without changing the graph.
// carried is the reshape-type of the slot the candidate comes from, "" if none.
//
// Subgraph boundaries that already hold the candidate, but were not committed, commit it as is: the walk must
// still cross them.
func (e *Engine) decide(ref graph.SlotRef, candidate layout.Layout, carried string) decision {
	slot := e.g.Slot(ref)
	if slot.Propagated {
		return halted(HaltAlreadyCommitted)
	}
	if slot.IsScalar() {
		return halted(HaltScalar)
	}
	d := e.transfer(ref, candidate, carried)
	if d.outcome == OutcomeHalted && d.halt == HaltSameFormat && resolveMode(e.g.Node(ref.Node)) == ModeSubgraphBoundary {
		return decision{
			outcome:       OutcomeCommitted,
			layout:        slot.Layout,
			physical:      slot.Physical,
			reshapeType:   slot.ReshapeType,
			physicalRange: slot.PhysicalRange,
		}
	}
	return d
}

// transfer computes the layout, physical shape and range of the slot for the candidate, regardless of the
// propagation marker.
func (e *Engine) transfer(ref graph.SlotRef, candidate layout.Layout, carried string) decision {
	node := e.g.Node(ref.Node)
	slot := e.g.Slot(ref)
	target := candidate
	if target.IsHeavy() {
		target = target.WithC0(layout.BlockFactor(slot.Logical.DType, e.cfg.PrecisionMode))
	}
	if slot.Layout == target {
		return halted(HaltSameFormat)
	}

	reshapeType, err := e.reshapeType(node, slot, target, carried)
	if err != nil {
		return failed(err)
	}
	physical, err := layout.TransferShape(slot.Logical, slot.Origin, reshapeType, target)
	if err != nil {
		return transferFailure(err)
	}
	var physicalRange shapes.Ranges
	if len(slot.Range) > 0 {
		physicalRange, err = layout.TransferRange(slot.Range, slot.Origin, reshapeType, target)
		if err != nil {
			return transferFailure(err)
		}
	}
	if err := e.checkMaxElements(physical, physicalRange); err != nil {
		return failed(err)
	}
	return decision{
		outcome:       OutcomeCommitted,
		layout:        target,
		physical:      physical,
		reshapeType:   reshapeType,
		physicalRange: physicalRange,
	}
}

// transferFailure classifies a layout transfer error: formats that can't tile the slot stop the branch,
// anything else (overflows, group mismatches) fails it.
func transferFailure(err error) decision {
	if errors.Is(err, layout.ErrRankMismatch) || errors.Is(err, layout.ErrIncompatibleOrigin) {
		return halted(HaltIncompatible)
	}
	return failed(err)
}

// checkMaxElements checks the number of elements of the physical shape against Config.MaxElements. For dynamic
// shapes the maxima of the physical range are used, if bounded.
func (e *Engine) checkMaxElements(physical shapes.Shape, physicalRange shapes.Ranges) error {
	if e.cfg.MaxElements <= 0 {
		return nil
	}
	count := physical.Size()
	if count < 0 && len(physicalRange) == physical.Rank() {
		maxes := make([]int, len(physicalRange))
		for ii, r := range physicalRange {
			maxes[ii] = r.Max
		}
		var err error
		count, err = layout.ElementCount(maxes)
		if err != nil {
			return err
		}
	}
	if count > e.cfg.MaxElements {
		return errors.Wrapf(ErrSizeOverflow, "physical shape %s has %d elements, more than the maximum %d",
			physical, count, e.cfg.MaxElements)
	}
	return nil
}

// reshapeType returns the reshape-type to expand the slot with for the target layout: the kernel hint for the
// slot if there is one, otherwise the carried one if it is valid for the slot, otherwise the default of the
// origin format. Slots of full rank, or too small to be tiled, are not reshaped.
//
// A carried reshape-type valid for the slot but different from the kernel hint is an ErrReshapeTypeMismatch.
func (e *Engine) reshapeType(node *graph.Node, slot *graph.Slot, target layout.Layout, carried string) (string, error) {
	if !target.IsHeavy() {
		return "", nil
	}
	origin, err := layout.ResolveOrigin(slot.Origin, target.Primary)
	if err != nil {
		// TransferShape reports it.
		return "", nil
	}
	rank := slot.Logical.Rank()
	if rank >= len(origin.Axes()) || rank < target.Primary.MinRank() {
		return "", nil
	}
	carriedValid := carried != "" && layout.ValidateReshapeType(origin, rank, carried) == nil
	if hint, found := e.store.ReshapeHint(node.OpType(), slot.Name); found {
		if err := layout.ValidateReshapeType(origin, rank, hint); err != nil {
			return "", errors.Wrapf(ErrReshapeTypeMismatch, "kernel %s declares reshape-type %q for slot %q of rank %d: %v",
				node.OpType(), hint, slot.Name, rank, err)
		}
		if carriedValid && carried != hint {
			return "", errors.Wrapf(ErrReshapeTypeMismatch, "kernel %s requires reshape-type %q for slot %q, propagated %q",
				node.OpType(), hint, slot.Name, carried)
		}
		return hint, nil
	}
	if carriedValid {
		return carried, nil
	}
	return layout.DefaultReshapeType(origin, rank), nil
}

// apply writes a committed decision onto the slot and marks it as propagated.
func (e *Engine) apply(ref graph.SlotRef, d decision) {
	slot := e.g.Slot(ref)
	slot.Layout = d.layout
	slot.Physical = d.physical
	slot.ReshapeType = d.reshapeType
	slot.PhysicalRange = d.physicalRange
	slot.Propagated = true
	e.report.Committed = append(e.report.Committed, ref)
	if d.layout.IsHeavy() {
		e.report.heavyNodes.Insert(ref.Node)
	}
}

// commit tries the candidate on the slot and applies it. Halts and failures are recorded in the report.
func (w *walk) commit(ref graph.SlotRef, candidate layout.Layout, carried string) Outcome {
	d := w.e.decide(ref, candidate, carried)
	switch d.outcome {
	case OutcomeCommitted:
		w.e.apply(ref, d)
		if klog.V(3).Enabled() {
			klog.Infof("layoutprop: committed %s of %s: %s", ref, w.g.Node(ref.Node), w.g.Slot(ref))
		}
	case OutcomeHalted:
		w.halt(d.halt)
	case OutcomeFailed:
		w.fail(ref, d.err)
	}
	return d.outcome
}
