// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/npucompiler/pkg/compiler"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/support/xslices"
	"github.com/muesli/termenv"
)

// isTerminal is false if stdout doesn't support colors, e.g. when it's redirected to a file.
var isTerminal = termenv.NewOutput(os.Stdout).Profile != termenv.Ascii

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})
}

func humanizeInt[T interface{ ~int | ~int64 }](v T) string {
	return humanize.Comma(int64(v))
}

// report prints the tables selected by the flags for one compiled graph.
func report(result compiler.Result) {
	g, r := result.Graph, result.Report
	if *flagSummary {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Graph %q", g.Name())))
		fmt.Println(summaryTable(result).Render())
	}
	if len(r.Failures)+len(r.Rollbacks) > 0 {
		fmt.Println(titleStyle.Render("Failed branches"))
		table := newPlainTable(true)
		table.Row("Seed", "Node", "Slot", "Error")
		for _, failure := range slices.Concat(r.Failures, r.Rollbacks) {
			table.Row(nodeName(g, failure.Seed), failure.Node, failure.Slot.String(), failure.Err.Error())
		}
		fmt.Println(table.Render())
	}
	if *flagSlots {
		fmt.Println(titleStyle.Render("Slots"))
		fmt.Println(slotsTable(g).Render())
	}
}

func nodeName(g *graph.Graph, id graph.NodeId) string {
	return g.Node(id).Name()
}

func summaryTable(result compiler.Result) *lgtable.Table {
	g, r := result.Graph, result.Report
	table := newPlainTable(false)
	table.Row("file", result.Name)
	table.Row("run", r.RunID.String())
	table.Row("elapsed", result.Elapsed.String())
	table.Row("# nodes", humanizeInt(g.NumNodes()))
	table.Row("seeds", strings.Join(xslices.Map(r.Seeds, func(id graph.NodeId) string { return nodeName(g, id) }), ", "))
	if len(r.DegenerateSeeds) > 0 {
		table.Row("degenerate seeds", strings.Join(xslices.Map(r.DegenerateSeeds, func(id graph.NodeId) string { return nodeName(g, id) }), ", "))
	}
	table.Row("# committed slots", humanizeInt(len(r.Committed)))
	table.Row("# heavy nodes", humanizeInt(len(r.HeavyNodes())))
	for _, reason := range xslices.SortedKeys(r.Halts) {
		table.Row(fmt.Sprintf("# halts (%s)", reason), humanizeInt(r.Halts[reason]))
	}
	table.Row("# failures", humanizeInt(len(r.Failures)))
	table.Row("# rollbacks", humanizeInt(len(r.Rollbacks)))
	if len(r.ContinuousNodes) > 0 {
		table.Row("# continuous nodes", humanizeInt(len(r.ContinuousNodes)))
		table.Row("# reconciled slots", fmt.Sprintf("%s (%s in reverse)", humanizeInt(r.Reconciled), humanizeInt(r.ReverseChanges)))
	}
	var linearBytes, physicalBytes int
	for _, slot := range g.Slots() {
		if slot.Physical.IsDynamic() {
			continue
		}
		linearBytes += slot.Logical.Memory()
		physicalBytes += slot.Physical.Memory()
	}
	table.Row("static tensors bytes", fmt.Sprintf("%s (%s with padding)",
		humanize.Bytes(uint64(linearBytes)), humanize.Bytes(uint64(physicalBytes))))
	return table
}

func slotsTable(g *graph.Graph) *lgtable.Table {
	table := newPlainTable(true)
	table.Row("Node", "Op", "Slot", "Layout", "Packed", "Physical", "Reshape", "Bytes")
	for ref, slot := range g.Slots() {
		if *flagHeavyOnly && slot.IsLinear() {
			continue
		}
		node := g.Node(ref.Node)
		if len(*flagOps) > 0 && !slices.Contains(*flagOps, node.OpType()) {
			continue
		}
		packed := "-"
		if p, err := slot.Layout.Pack(); err == nil {
			packed = fmt.Sprintf("0x%08x", uint32(p))
		}
		bytes := "?"
		if !slot.Physical.IsDynamic() {
			bytes = humanize.Bytes(uint64(slot.Physical.Memory()))
		}
		kind := "in"
		if ref.Kind == graph.Output {
			kind = "out"
		}
		table.Row(node.Name(), node.OpType(), fmt.Sprintf("%s[%d] %s", kind, ref.Index, slot.Name),
			slot.Layout.String(), packed, slot.Physical.String(), slot.ReshapeType, bytes)
	}
	return table
}
