// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"github.com/gomlx/npucompiler/pkg/core/graph"
)

// Mode is how a node handles a candidate layout arriving at one of its slots.
// It is resolved once per node and per seed walk.
type Mode int

const (
	// ModePenetrating nodes are not changed: the candidate passes through to their other slots.
	// Weights, TransData and compiler-inserted nodes.
	ModePenetrating Mode = iota

	// ModeAgnosticAll nodes adopt the candidate on every slot not listed as an exception.
	ModeAgnosticAll

	// ModeAgnosticPaired nodes adopt the candidate on the arrival slot and on the slot of the other kind
	// with the same index.
	ModeAgnosticPaired

	// ModeKernelDependent nodes adopt whatever the kernel variant supporting the candidate requires.
	ModeKernelDependent

	// ModeSubgraphBoundary nodes (Data and NetOutput placeholders, nodes invoking subgraphs) pass the candidate
	// across the cross-reference links.
	ModeSubgraphBoundary
)

//go:generate go tool enumer -type=Mode -trimprefix=Mode -output=gen_mode_enumer.go mode.go

// resolveMode of a node from its operator type and attributes.
func resolveMode(node *graph.Node) Mode {
	switch {
	case node.OpType() == graph.OpData || node.OpType() == graph.OpNetOutput || node.HasSubgraphs():
		return ModeSubgraphBoundary
	case node.IsWeight() || node.OpType() == graph.OpTransData || node.IsCompilerInserted():
		return ModePenetrating
	}
	switch node.FormatAgnostic() {
	case graph.AgnosticAll:
		return ModeAgnosticAll
	case graph.AgnosticPaired:
		return ModeAgnosticPaired
	default:
		return ModeKernelDependent
	}
}

// isBranch returns whether the node is a conditional branch: it has no format opinion of its own, its
// successors decide for it.
func isBranch(node *graph.Node) bool {
	return node.OpType() == graph.OpSwitch || node.OpType() == graph.OpStreamSwitch
}
