// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements the operator graph handed to the compiler passes.
//
// The main elements in the package are:
//
//   - Graph owns all nodes in an arena, addressed by stable NodeId handles, and all subgraphs.
//   - Subgraph is a function body: the main graph, or the branches/bodies of control-flow operators and the
//     callees of function-call operators. Subgraphs receive their inputs through Data nodes (with the
//     "_parent_node_index" attribute) and return their results through one NetOutput node.
//   - Node is an operator with input and output slots, edges to its peers and an attribute bag.
//   - Slot is a tensor endpoint with its logical shape and origin format, and the physical layout decided by
//     the compiler.
//   - SlotRef is a handle to a slot, used for edges and by the cross-reference tables.
//
// # Error Handling
//
// Like the computation graph of GoMLX, building methods "throw" errors with panic (using
// github.com/gomlx/exceptions) with meaningful messages: misuse of the builder is a bug in the caller.
// Functions that read external descriptions (LoadYAML) return errors instead.
package graph

import (
	"fmt"
	"iter"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MainName is the name of the main subgraph, created with the Graph.
const MainName = "main"

// Graph of operators.
type Graph struct {
	name string

	// nodes is the arena of all nodes, of all subgraphs, indexed by NodeId.
	nodes      []*Node
	nodeByName map[string]NodeId

	// subgraphs[0] is the main subgraph.
	subgraphs      []*Subgraph
	subgraphByName map[string]*Subgraph
}

// Subgraph is a function body: the main graph or a subgraph invoked by a control-flow or function-call node.
type Subgraph struct {
	graph *Graph
	name  string

	// parent is the node invoking the subgraph, nil for the main subgraph and before it is attached.
	parent *Node

	// isCondition is set for condition subgraphs (e.g. the condition of a While), whose outputs are not
	// outputs of the parent node.
	isCondition bool

	nodes []NodeId
}

// NewGraph creates an empty graph, with an empty main subgraph.
func NewGraph(name string) *Graph {
	g := &Graph{
		name:           name,
		nodeByName:     make(map[string]NodeId),
		subgraphByName: make(map[string]*Subgraph),
	}
	g.NewSubgraph(MainName)
	return g
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes in the graph, including the ones in subgraphs.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns all nodes, in NodeId order. The returned slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the node with the given id. It panics for invalid ids.
func (g *Graph) Node(id NodeId) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		exceptions.Panicf("graph %q has %d nodes, node #%d requested", g.name, len(g.nodes), id)
	}
	return g.nodes[id]
}

// NodeByName returns the node with the given name, or nil if not found.
func (g *Graph) NodeByName(name string) *Node {
	id, found := g.nodeByName[name]
	if !found {
		return nil
	}
	return g.nodes[id]
}

// Main returns the main subgraph.
func (g *Graph) Main() *Subgraph { return g.subgraphs[0] }

// Subgraphs returns all subgraphs, the main one first, in order of creation.
func (g *Graph) Subgraphs() []*Subgraph { return g.subgraphs }

// Subgraph returns the subgraph with the given name, or nil if not found.
func (g *Graph) Subgraph(name string) *Subgraph { return g.subgraphByName[name] }

// NewSubgraph creates a new empty subgraph. It must be attached to a node with Node.AttachSubgraph.
func (g *Graph) NewSubgraph(name string) *Subgraph {
	if name == "" {
		exceptions.Panicf("graph %q: subgraph name cannot be empty", g.name)
	}
	if _, found := g.subgraphByName[name]; found {
		exceptions.Panicf("graph %q: subgraph %q already exists", g.name, name)
	}
	sg := &Subgraph{graph: g, name: name}
	g.subgraphs = append(g.subgraphs, sg)
	g.subgraphByName[name] = sg
	return sg
}

// Slot returns the slot referenced by ref. It panics if the reference is invalid.
func (g *Graph) Slot(ref SlotRef) *Slot {
	return g.Node(ref.Node).Slots(ref.Kind)[ref.Index]
}

// HasSlot returns whether ref points to an existing slot.
func (g *Graph) HasSlot(ref SlotRef) bool {
	if ref.Node < 0 || int(ref.Node) >= len(g.nodes) {
		return false
	}
	return ref.Index >= 0 && ref.Index < len(g.nodes[ref.Node].Slots(ref.Kind))
}

// Slots iterates over all slots of all nodes, in NodeId order, inputs before outputs.
func (g *Graph) Slots() iter.Seq2[SlotRef, *Slot] {
	return func(yield func(SlotRef, *Slot) bool) {
		for _, node := range g.nodes {
			for _, ref := range node.Refs() {
				if !yield(ref, g.Slot(ref)) {
					return
				}
			}
		}
	}
}

// ResetLayouts restores every slot to its default linear layout.
func (g *Graph) ResetLayouts() {
	for _, slot := range g.Slots() {
		slot.Reset()
	}
}

// Connect the output fromIndex of node from to the input toIndex of node to. Both nodes must be in the same
// subgraph, and the input must not be connected yet.
func (g *Graph) Connect(from *Node, fromIndex int, to *Node, toIndex int) {
	if from.graph != g || to.graph != g {
		exceptions.Panicf("Connect(%s, %s): nodes from a different graph", from, to)
	}
	if from.subgraph != to.subgraph {
		exceptions.Panicf("Connect(%s, %s): nodes in different subgraphs (%q and %q), subgraphs are linked through Data and NetOutput nodes",
			from, to, from.subgraph.name, to.subgraph.name)
	}
	output := from.Output(fromIndex)
	input := to.Input(toIndex)
	if to.producers[toIndex].Ok() {
		exceptions.Panicf("Connect(%s, %s): input #%d already connected to %s", from, to, toIndex, to.producers[toIndex])
	}
	if output.Logical.DType != input.Logical.DType || !output.Logical.EqualDimensions(input.Logical) {
		exceptions.Panicf("Connect(%s, %s): output #%d shape %s doesn't match input #%d shape %s",
			from, to, fromIndex, output.Logical, toIndex, input.Logical)
	}
	to.producers[toIndex] = Out(from.id, fromIndex)
	from.consumers[fromIndex] = append(from.consumers[fromIndex], In(to.id, toIndex))
}

// String implements fmt.Stringer: it lists all subgraphs and nodes.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q: %d nodes, %d subgraphs\n", g.name, len(g.nodes), len(g.subgraphs))
	for _, sg := range g.subgraphs {
		fmt.Fprintf(&sb, "Subgraph %q", sg.name)
		if sg.parent != nil {
			fmt.Fprintf(&sb, " (invoked by %s)", sg.parent)
		}
		sb.WriteString(":\n")
		for _, id := range sg.nodes {
			sb.WriteString(g.nodes[id].Describe())
		}
	}
	return sb.String()
}

// Name of the subgraph.
func (sg *Subgraph) Name() string { return sg.name }

// Graph owning the subgraph.
func (sg *Subgraph) Graph() *Graph { return sg.graph }

// IsMain returns whether this is the main subgraph.
func (sg *Subgraph) IsMain() bool { return sg.graph.subgraphs[0] == sg }

// Parent returns the node invoking the subgraph, or nil for the main subgraph.
func (sg *Subgraph) Parent() *Node { return sg.parent }

// IsCondition returns whether this is a condition subgraph: its outputs are not outputs of the parent node.
func (sg *Subgraph) IsCondition() bool { return sg.isCondition }

// NodeIds returns the ids of the nodes in the subgraph, in order of creation.
func (sg *Subgraph) NodeIds() []NodeId { return sg.nodes }

// Nodes iterates over the nodes of the subgraph, in order of creation.
func (sg *Subgraph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, id := range sg.nodes {
			if !yield(sg.graph.nodes[id]) {
				return
			}
		}
	}
}

// DataNodes returns the Data nodes of the subgraph.
func (sg *Subgraph) DataNodes() []*Node {
	var data []*Node
	for node := range sg.Nodes() {
		if node.opType == OpData {
			data = append(data, node)
		}
	}
	return data
}

// Output returns the NetOutput node of the subgraph, or nil if it has none.
func (sg *Subgraph) Output() *Node {
	for node := range sg.Nodes() {
		if node.opType == OpNetOutput {
			return node
		}
	}
	return nil
}

// AddNode creates a new node in the subgraph. Node names must be unique in the Graph.
// Slots are added with Node.AddInput and Node.AddOutput.
func (sg *Subgraph) AddNode(name, opType string) *Node {
	g := sg.graph
	if name == "" || opType == "" {
		exceptions.Panicf("subgraph %q: node name (%q) and op type (%q) must be given", sg.name, name, opType)
	}
	if _, found := g.nodeByName[name]; found {
		exceptions.Panicf("graph %q: node named %q already exists", g.name, name)
	}
	n := &Node{
		graph:    g,
		id:       NodeId(len(g.nodes)),
		subgraph: sg,
		name:     name,
		opType:   opType,
	}
	g.nodes = append(g.nodes, n)
	g.nodeByName[name] = n.id
	sg.nodes = append(sg.nodes, n.id)
	return n
}

// AttachSubgraph makes the node invoke the subgraph. A subgraph can only be attached to one node, and the
// main subgraph can't be attached. It returns the node, so calls can be chained.
func (n *Node) AttachSubgraph(sg *Subgraph, isCondition bool) *Node {
	if sg.graph != n.graph {
		exceptions.Panicf("AttachSubgraph(%s, %q): subgraph from a different graph", n, sg.name)
	}
	if sg.IsMain() {
		exceptions.Panicf("AttachSubgraph(%s): cannot attach the main subgraph", n)
	}
	if sg.parent != nil {
		exceptions.Panicf("AttachSubgraph(%s, %q): subgraph already attached to %s", n, sg.name, sg.parent)
	}
	for ancestor := n.subgraph; ancestor != nil; ancestor = ancestorOf(ancestor) {
		if ancestor == sg {
			exceptions.Panicf("AttachSubgraph(%s, %q): subgraph would invoke itself", n, sg.name)
		}
	}
	sg.parent = n
	sg.isCondition = isCondition
	n.subgraphs = append(n.subgraphs, sg)
	return n
}

func ancestorOf(sg *Subgraph) *Subgraph {
	if sg.parent == nil {
		return nil
	}
	return sg.parent.subgraph
}

// Validate checks the graph is well-formed:
//
//   - Required inputs are connected.
//   - Every subgraph other than main is attached to a node.
//   - Subgraph Data nodes have a valid "_parent_node_index" and one output; subgraphs have at most one NetOutput.
//   - The NetOutput of non-condition subgraphs has as many inputs as the parent has outputs.
func (g *Graph) Validate() error {
	for _, node := range g.nodes {
		for ii := range node.inputs {
			if !node.optional[ii] && !node.producers[ii].Ok() && node.opType != OpData {
				return errors.Errorf("node %s: required input #%d (%q) is not connected", node, ii, node.inputs[ii].Name)
			}
		}
	}
	for _, sg := range g.subgraphs[1:] {
		if sg.parent == nil {
			return errors.Errorf("subgraph %q is not attached to any node", sg.name)
		}
		parent := sg.parent
		for _, data := range sg.DataNodes() {
			idx := data.ParentNodeIndex()
			if idx < 0 || idx >= parent.NumInputs() {
				return errors.Errorf("subgraph %q: Data node %s has %s=%d, but parent %s has %d inputs",
					sg.name, data, AttrParentNodeIndex, idx, parent, parent.NumInputs())
			}
			if data.NumOutputs() != 1 {
				return errors.Errorf("subgraph %q: Data node %s must have exactly 1 output, got %d", sg.name, data, data.NumOutputs())
			}
		}
		var numOutputs int
		for node := range sg.Nodes() {
			if node.opType == OpNetOutput {
				numOutputs++
			}
		}
		if numOutputs > 1 {
			return errors.Errorf("subgraph %q has %d NetOutput nodes, at most one is allowed", sg.name, numOutputs)
		}
		if output := sg.Output(); output != nil && !sg.isCondition && output.NumInputs() != parent.NumOutputs() {
			return errors.Errorf("subgraph %q: NetOutput %s has %d inputs, but parent %s has %d outputs",
				sg.name, output, output.NumInputs(), parent, parent.NumOutputs())
		}
	}
	return nil
}
