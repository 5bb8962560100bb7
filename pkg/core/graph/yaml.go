// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/pkg/core/dtypes"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Description is the serializable form of a Graph, read by LoadYAML and written by Dump.
// JSON documents are valid YAML, so they can be used as well.
//
// Example:
//
//	name: conv
//	subgraphs:
//	  - name: main
//	    nodes:
//	      - name: x
//	        op: Data
//	        outputs: [{name: y, dtype: float16, shape: [8, 64, 56, 56], format: NCHW}]
//	      - name: conv
//	        op: Conv2D
//	        attrs: {groups: 1}
//	        inputs:
//	          - {name: x, dtype: float16, shape: [8, 64, 56, 56], format: NCHW, from: x}
//	          - {name: filter, dtype: float16, shape: [64, 64, 3, 3], format: NCHW, from: "w:0"}
//	        ...
type Description struct {
	Name      string                `yaml:"name"`
	Subgraphs []SubgraphDescription `yaml:"subgraphs"`
}

// SubgraphDescription lists the nodes of a subgraph. The main subgraph is named "main".
type SubgraphDescription struct {
	Name  string            `yaml:"name"`
	Nodes []NodeDescription `yaml:"nodes"`
}

// NodeDescription describes one node.
type NodeDescription struct {
	Name      string                   `yaml:"name"`
	Op        string                   `yaml:"op"`
	Attrs     map[string]any           `yaml:"attrs,omitempty"`
	Subgraphs []SubgraphRefDescription `yaml:"subgraphs,omitempty"`
	Inputs    []SlotDescription        `yaml:"inputs,omitempty"`
	Outputs   []SlotDescription        `yaml:"outputs,omitempty"`
}

// SubgraphRefDescription references a subgraph invoked by a node.
type SubgraphRefDescription struct {
	Name      string `yaml:"name"`
	Condition bool   `yaml:"condition,omitempty"`
}

// SlotDescription describes one input or output slot.
type SlotDescription struct {
	Name   string        `yaml:"name"`
	DType  dtypes.DType  `yaml:"dtype"`
	Shape  []int         `yaml:"shape,flow"`
	Axes   []string      `yaml:"axes,omitempty,flow"`
	Format layout.Format `yaml:"format"`
	Range  [][2]int      `yaml:"range,omitempty,flow"`

	// From is set for inputs only: "<node>" or "<node>:<output index>".
	From     string `yaml:"from,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`

	// Layout holds the decision of the compiler, if any.
	Layout *LayoutDescription `yaml:"layout,omitempty"`
}

// LayoutDescription is the physical layout of a slot decided by the compiler.
type LayoutDescription struct {
	Format        layout.Format `yaml:"format"`
	Sub           int           `yaml:"sub,omitempty"`
	C0            int           `yaml:"c0,omitempty"`
	Physical      []int         `yaml:"physical,flow"`
	ReshapeType   string        `yaml:"reshape_type,omitempty"`
	PhysicalRange [][2]int      `yaml:"physical_range,omitempty,flow"`
}

// LoadYAMLFile reads a graph description from a YAML (or JSON) file.
func LoadYAMLFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening graph description %q", path)
	}
	defer func() { _ = f.Close() }()
	g, err := LoadYAML(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading graph description %q", path)
	}
	return g, nil
}

// LoadYAML reads a graph description, see Description.
func LoadYAML(r io.Reader) (*Graph, error) {
	var desc Description
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&desc); err != nil {
		return nil, errors.Wrap(err, "decoding graph description")
	}
	return FromDescription(&desc)
}

// FromDescription builds a Graph from its description.
func FromDescription(desc *Description) (g *Graph, err error) {
	err = exceptions.TryCatch[error](func() {
		g = buildFromDescription(desc)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func buildFromDescription(desc *Description) *Graph {
	g := NewGraph(desc.Name)
	for _, sgDesc := range desc.Subgraphs {
		if sgDesc.Name != MainName {
			g.NewSubgraph(sgDesc.Name)
		}
	}

	// Nodes and slots.
	for _, sgDesc := range desc.Subgraphs {
		sg := g.Subgraph(sgDesc.Name)
		for _, nodeDesc := range sgDesc.Nodes {
			node := sg.AddNode(nodeDesc.Name, nodeDesc.Op)
			for _, key := range sortedKeys(nodeDesc.Attrs) {
				node.SetAttr(key, nodeDesc.Attrs[key])
			}
			for ii, slotDesc := range nodeDesc.Inputs {
				node.addInput(slotDesc.Name, slotDesc.shape(node), slotDesc.Format, slotDesc.Optional)
				slotDesc.applyRangeAndLayout(node, Input, ii)
			}
			for ii, slotDesc := range nodeDesc.Outputs {
				node.AddOutput(slotDesc.Name, slotDesc.shape(node), slotDesc.Format)
				slotDesc.applyRangeAndLayout(node, Output, ii)
			}
		}
	}

	// Subgraph references and edges.
	for _, sgDesc := range desc.Subgraphs {
		for _, nodeDesc := range sgDesc.Nodes {
			node := g.NodeByName(nodeDesc.Name)
			for _, ref := range nodeDesc.Subgraphs {
				sg := g.Subgraph(ref.Name)
				if sg == nil {
					exceptions.Panicf("node %s references unknown subgraph %q", node, ref.Name)
				}
				node.AttachSubgraph(sg, ref.Condition)
			}
			for ii, slotDesc := range nodeDesc.Inputs {
				if slotDesc.From == "" {
					continue
				}
				from, fromIndex := parseFrom(g, slotDesc.From)
				g.Connect(from, fromIndex, node, ii)
			}
		}
	}
	return g
}

func (sd *SlotDescription) shape(node *Node) shapes.Shape {
	if sd.DType == dtypes.InvalidDType {
		exceptions.Panicf("node %s: slot %q has no dtype", node, sd.Name)
	}
	return shapes.MakeNamed(sd.DType, sd.Shape, sd.Axes)
}

func (sd *SlotDescription) applyRangeAndLayout(node *Node, kind SlotKind, index int) {
	if len(sd.Range) > 0 {
		node.SetRange(kind, index, toRanges(sd.Range))
	}
	if sd.Layout == nil {
		return
	}
	slot := node.Slots(kind)[index]
	slot.Layout = layout.Layout{Primary: sd.Layout.Format, Sub: sd.Layout.Sub, C0: sd.Layout.C0}
	slot.Physical = shapes.Make(slot.Logical.DType, sd.Layout.Physical...)
	slot.ReshapeType = sd.Layout.ReshapeType
	if len(sd.Layout.PhysicalRange) > 0 {
		slot.PhysicalRange = toRanges(sd.Layout.PhysicalRange)
	}
	slot.Propagated = true
}

// parseFrom parses "<node>" or "<node>:<output index>".
func parseFrom(g *Graph, from string) (*Node, int) {
	name, indexStr, hasIndex := strings.Cut(from, ":")
	node := g.NodeByName(name)
	if node == nil {
		exceptions.Panicf("edge from unknown node %q", from)
	}
	index := 0
	if hasIndex {
		var err error
		index, err = strconv.Atoi(indexStr)
		if err != nil {
			exceptions.Panicf("invalid output index in edge %q: %v", from, err)
		}
	}
	return node, index
}

func toRanges(pairs [][2]int) shapes.Ranges {
	ranges := make(shapes.Ranges, len(pairs))
	for ii, pair := range pairs {
		ranges[ii] = shapes.DimRange{Min: pair[0], Max: pair[1]}
	}
	return ranges
}

func fromRanges(ranges shapes.Ranges) [][2]int {
	if len(ranges) == 0 {
		return nil
	}
	pairs := make([][2]int, len(ranges))
	for ii, r := range ranges {
		pairs[ii] = [2]int{r.Min, r.Max}
	}
	return pairs
}

// Description returns the serializable form of the graph, including the layout decisions of propagated slots.
func (g *Graph) Description() *Description {
	desc := &Description{Name: g.name}
	for _, sg := range g.subgraphs {
		sgDesc := SubgraphDescription{Name: sg.name}
		for node := range sg.Nodes() {
			nodeDesc := NodeDescription{Name: node.name, Op: node.opType}
			if len(node.attrs) > 0 {
				nodeDesc.Attrs = make(map[string]any, len(node.attrs))
				for key, value := range node.attrs {
					nodeDesc.Attrs[key] = value
				}
			}
			for _, child := range node.subgraphs {
				nodeDesc.Subgraphs = append(nodeDesc.Subgraphs, SubgraphRefDescription{Name: child.name, Condition: child.isCondition})
			}
			for ii, slot := range node.inputs {
				slotDesc := describeSlot(slot)
				slotDesc.Optional = node.optional[ii]
				if producer := node.producers[ii]; producer.Ok() {
					slotDesc.From = g.nodes[producer.Node].name
					if producer.Index != 0 {
						slotDesc.From += ":" + strconv.Itoa(producer.Index)
					}
				}
				nodeDesc.Inputs = append(nodeDesc.Inputs, slotDesc)
			}
			for _, slot := range node.outputs {
				nodeDesc.Outputs = append(nodeDesc.Outputs, describeSlot(slot))
			}
			sgDesc.Nodes = append(sgDesc.Nodes, nodeDesc)
		}
		desc.Subgraphs = append(desc.Subgraphs, sgDesc)
	}
	return desc
}

func describeSlot(slot *Slot) SlotDescription {
	sd := SlotDescription{
		Name:   slot.Name,
		DType:  slot.Logical.DType,
		Shape:  slot.Logical.Dimensions,
		Axes:   slot.Logical.AxisNames,
		Format: slot.Origin,
		Range:  fromRanges(slot.Range),
	}
	if sd.Shape == nil {
		sd.Shape = []int{}
	}
	if slot.Propagated {
		sd.Layout = &LayoutDescription{
			Format:        slot.Layout.Primary,
			Sub:           slot.Layout.Sub,
			C0:            slot.Layout.C0,
			Physical:      slot.Physical.Dimensions,
			ReshapeType:   slot.ReshapeType,
			PhysicalRange: fromRanges(slot.PhysicalRange),
		}
	}
	return sd
}

// Dump writes the graph description, including the layout decisions, as YAML.
func (g *Graph) Dump(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(g.Description()); err != nil {
		return errors.Wrapf(err, "encoding graph %q", g.name)
	}
	return errors.Wrap(encoder.Close(), "flushing graph description")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
