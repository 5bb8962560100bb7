// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/google/uuid"
)

// Report of one run of the pass.
type Report struct {
	// RunID identifies the run in the logs.
	RunID uuid.UUID

	// Graph is the name of the graph.
	Graph string

	// Seeds are the layout-generating nodes the walks started from, in processing order.
	Seeds []graph.NodeId

	// DegenerateSeeds are layout-generating nodes whose selected kernel variant only uses origin formats
	// (or that have no matching variant), so they were not seeded.
	DegenerateSeeds []graph.NodeId

	// Committed lists the slots that took a heavy layout, in commit order.
	Committed []graph.SlotRef

	// Halts counts the branches that stopped without error, per reason.
	Halts map[HaltReason]int

	// Failures are the abandoned branches.
	Failures []*BranchError

	// Rollbacks are the weights whose candidate layout was rolled back.
	Rollbacks []*BranchError

	// ContinuousNodes are the format-continuous nodes found by the walks, in discovery order.
	ContinuousNodes []graph.NodeId

	// Reconciled is the number of slot changes made by the reconciliation of format-continuous nodes, and
	// ReverseChanges the part of them made by the reverse pass.
	Reconciled, ReverseChanges int

	heavyNodes sets.Set[graph.NodeId]
	continuous sets.Set[graph.NodeId]
}

func newReport(g *graph.Graph) *Report {
	return &Report{
		RunID:      uuid.New(),
		Graph:      g.Name(),
		Halts:      make(map[HaltReason]int),
		heavyNodes: sets.Make[graph.NodeId](),
		continuous: sets.Make[graph.NodeId](),
	}
}

// HeavyNodes returns the nodes with at least one slot committed to a heavy layout, sorted by NodeId.
func (r *Report) HeavyNodes() []graph.NodeId {
	return sets.Sorted(r.heavyNodes)
}

// IsHeavy returns whether the node has at least one slot committed to a heavy layout.
func (r *Report) IsHeavy(id graph.NodeId) bool {
	return r.heavyNodes.Has(id)
}

// NumHalts returns the total number of halted branches.
func (r *Report) NumHalts() int {
	var count int
	for _, n := range r.Halts {
		count += n
	}
	return count
}

// Err returns a *FailuresError with the branch failures and rollbacks, or nil if there are none.
func (r *Report) Err() error {
	if len(r.Failures) == 0 && len(r.Rollbacks) == 0 {
		return nil
	}
	return &FailuresError{Failures: slices.Concat(r.Failures, r.Rollbacks)}
}

func (r *Report) addContinuous(id graph.NodeId) {
	if r.continuous.Has(id) {
		return
	}
	r.continuous.Insert(id)
	r.ContinuousNodes = append(r.ContinuousNodes, id)
}

// String returns a one-line summary.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %q run %s: %d seeds, %d committed slots, %d heavy nodes, %d halts, %d failures, %d rollbacks",
		r.Graph, r.RunID, len(r.Seeds), len(r.Committed), len(r.heavyNodes), r.NumHalts(), len(r.Failures), len(r.Rollbacks))
	if len(r.ContinuousNodes) > 0 {
		fmt.Fprintf(&sb, ", %d continuous nodes (%d reconciled)", len(r.ContinuousNodes), r.Reconciled)
	}
	return sb.String()
}
