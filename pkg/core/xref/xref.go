// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xref implements the cross-reference table of a graph: the links between slots that are the same
// tensor but live on different sides of a subgraph boundary, and between weights that alias each other.
//
// Links are directed by the walk direction that crosses them:
//
//   - Forward: an input #i of a node invoking subgraphs leads to the output of every subgraph Data node with
//     "_parent_node_index" i; the input #i of a subgraph NetOutput leads to output #i of the parent node.
//   - Backward: the reverse of the above. The output #i of a parent leads to input #i of the NetOutput of each
//     of its non-condition subgraphs.
//   - Weights sharing the same "_weight_alias" are linked to each other (output #0) in both directions.
package xref

import (
	"slices"

	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrDanglingLink is returned when a link points to a slot that doesn't exist in the graph.
var ErrDanglingLink = errors.New("dangling cross-reference link")

// ErrUnknownSlot is returned when the queried slot doesn't exist in the graph.
var ErrUnknownSlot = errors.New("unknown slot")

// Table of links between slots. It is read-only once built.
type Table struct {
	g     *graph.Graph
	links [2]map[graph.SlotRef][]graph.SlotRef
}

// New returns an empty Table for the graph. Links are added with AddLink.
func New(g *graph.Graph) *Table {
	t := &Table{g: g}
	for ii := range t.links {
		t.links[ii] = make(map[graph.SlotRef][]graph.SlotRef)
	}
	return t
}

// Build the Table of the graph from its subgraph structure and weight aliases.
//
// It returns an error if the graph is not well-formed (see graph.Validate).
func Build(g *graph.Graph) (*Table, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "building cross-reference table of graph %q", g.Name())
	}
	t := New(g)
	for _, sg := range g.Subgraphs()[1:] {
		parent := sg.Parent()
		for _, data := range sg.DataNodes() {
			t.AddLink(graph.In(parent.Id(), data.ParentNodeIndex()), graph.Out(data.Id(), 0), graph.Forward)
		}
		output := sg.Output()
		if output == nil || sg.IsCondition() {
			continue
		}
		for ii := range output.NumInputs() {
			t.AddLink(graph.In(output.Id(), ii), graph.Out(parent.Id(), ii), graph.Forward)
		}
	}

	// Weight aliases, in NodeId order.
	aliases := make(map[string][]graph.NodeId)
	var names []string
	for _, node := range g.Nodes() {
		alias := node.WeightAlias()
		if alias == "" || !node.IsWeight() || node.NumOutputs() == 0 {
			continue
		}
		if _, found := aliases[alias]; !found {
			names = append(names, alias)
		}
		aliases[alias] = append(aliases[alias], node.Id())
	}
	for _, name := range names {
		ids := aliases[name]
		for ii, a := range ids {
			for _, b := range ids[ii+1:] {
				t.AddLink(graph.Out(a, 0), graph.Out(b, 0), graph.Forward)
				t.AddLink(graph.Out(a, 0), graph.Out(b, 0), graph.Backward)
			}
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("graph %q: cross-reference table with %d links", g.Name(), t.NumLinks())
	}
	return t, nil
}

// AddLink adds a link from -> to crossed when walking in direction dir, and the reverse link to -> from crossed
// when walking in the opposite direction. Duplicate links are ignored.
func (t *Table) AddLink(from, to graph.SlotRef, dir graph.Direction) {
	t.add(from, to, dir)
	t.add(to, from, dir.Reverse())
}

func (t *Table) add(from, to graph.SlotRef, dir graph.Direction) {
	links := t.links[dir]
	if slices.Contains(links[from], to) {
		return
	}
	links[from] = append(links[from], to)
}

// LinkedSlots returns the slots linked to ref when walking in direction dir, in the order they were added.
// It returns nil if there are none.
func (t *Table) LinkedSlots(ref graph.SlotRef, dir graph.Direction) ([]graph.SlotRef, error) {
	if !t.g.HasSlot(ref) {
		return nil, errors.Wrapf(ErrUnknownSlot, "cross-reference lookup of %s", ref)
	}
	linked := t.links[dir][ref]
	for _, target := range linked {
		if !t.g.HasSlot(target) {
			return nil, errors.Wrapf(ErrDanglingLink, "%s -> %s (%s)", ref, target, dir)
		}
	}
	return linked, nil
}

// NumLinks returns the number of directed links in the table.
func (t *Table) NumLinks() int {
	var count int
	for _, links := range t.links {
		for _, targets := range links {
			count += len(targets)
		}
	}
	return count
}
