// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
)

// NodeId is the index of a node in the Graph arena. It is stable for the lifetime of the Graph.
type NodeId int

// InvalidNodeId is used for unconnected edges.
const InvalidNodeId NodeId = -1

// Operator types with a special meaning for the compiler. Other operator types are opaque: their behavior is
// described by the kernel capabilities and the node attributes.
const (
	OpData            = "Data"
	OpNetOutput       = "NetOutput"
	OpConst           = "Const"
	OpVariable        = "Variable"
	OpTransData       = "TransData"
	OpSwitch          = "Switch"
	OpStreamSwitch    = "StreamSwitch"
	OpMerge           = "Merge"
	OpEnter           = "Enter"
	OpNextIteration   = "NextIteration"
	OpExit            = "Exit"
	OpIf              = "If"
	OpWhile           = "While"
	OpPartitionedCall = "PartitionedCall"
)

// Node is one operator of the graph: its type, its input and output slots, the edges to its peers, the
// subgraphs it invokes (for control-flow and function-call operators) and an attribute bag.
//
// Nodes are created with Subgraph.AddNode, and are owned by the Graph. Edges are stored as SlotRef handles.
type Node struct {
	graph    *Graph
	id       NodeId
	subgraph *Subgraph
	name     string
	opType   string

	inputs  []*Slot
	outputs []*Slot

	// optional marks inputs that may be left unconnected.
	optional []bool

	// producers holds the output slot feeding each input, InvalidSlotRef if unconnected.
	producers []SlotRef

	// consumers holds the input slots fed by each output.
	consumers [][]SlotRef

	// subgraphs invoked by the node, in order.
	subgraphs []*Subgraph

	attrs map[string]any
}

// Id is the index of the node in its Graph.
func (n *Node) Id() NodeId { return n.id }

// Graph that owns the node.
func (n *Node) Graph() *Graph { return n.graph }

// Subgraph where the node lives.
func (n *Node) Subgraph() *Subgraph { return n.subgraph }

// Name of the node, unique in the Graph.
func (n *Node) Name() string { return n.name }

// OpType returns the operator type of the node, e.g. "Conv2D".
func (n *Node) OpType() string { return n.opType }

// NumInputs returns the number of input slots.
func (n *Node) NumInputs() int { return len(n.inputs) }

// NumOutputs returns the number of output slots.
func (n *Node) NumOutputs() int { return len(n.outputs) }

// Input returns the input slot at index. It panics if out of range.
func (n *Node) Input(index int) *Slot {
	if index < 0 || index >= len(n.inputs) {
		exceptions.Panicf("node %s has %d inputs, input #%d requested", n, len(n.inputs), index)
	}
	return n.inputs[index]
}

// Output returns the output slot at index. It panics if out of range.
func (n *Node) Output(index int) *Slot {
	if index < 0 || index >= len(n.outputs) {
		exceptions.Panicf("node %s has %d outputs, output #%d requested", n, len(n.outputs), index)
	}
	return n.outputs[index]
}

// Slots returns the input or output slots of the node.
func (n *Node) Slots(kind SlotKind) []*Slot {
	if kind == Input {
		return n.inputs
	}
	return n.outputs
}

// Refs returns references to all slots of the node, inputs first and then outputs.
func (n *Node) Refs() []SlotRef {
	refs := make([]SlotRef, 0, len(n.inputs)+len(n.outputs))
	for ii := range n.inputs {
		refs = append(refs, In(n.id, ii))
	}
	for ii := range n.outputs {
		refs = append(refs, Out(n.id, ii))
	}
	return refs
}

// InputIndex returns the index of the input with the given name, or -1 if not found.
func (n *Node) InputIndex(name string) int {
	return slices.IndexFunc(n.inputs, func(s *Slot) bool { return s.Name == name })
}

// OutputIndex returns the index of the output with the given name, or -1 if not found.
func (n *Node) OutputIndex(name string) int {
	return slices.IndexFunc(n.outputs, func(s *Slot) bool { return s.Name == name })
}

// IsOptionalInput returns whether the input may be left unconnected.
func (n *Node) IsOptionalInput(index int) bool {
	return n.optional[index]
}

// Producer returns the output slot feeding the input at index, or InvalidSlotRef if it is unconnected.
func (n *Node) Producer(index int) SlotRef {
	return n.producers[index]
}

// Consumers returns the input slots fed by the output at index.
func (n *Node) Consumers(index int) []SlotRef {
	return n.consumers[index]
}

// Peers returns the slots on the other side of the edges of the given slot of this node: the producer of an input
// (if connected) or the consumers of an output.
func (n *Node) Peers(kind SlotKind, index int) []SlotRef {
	if kind == Input {
		if producer := n.producers[index]; producer.Ok() {
			return []SlotRef{producer}
		}
		return nil
	}
	return n.consumers[index]
}

// Subgraphs invoked by the node.
func (n *Node) Subgraphs() []*Subgraph { return n.subgraphs }

// HasSubgraphs returns whether the node invokes subgraphs, e.g. If, While or PartitionedCall.
func (n *Node) HasSubgraphs() bool { return len(n.subgraphs) > 0 }

// IsSubgraphData returns whether the node is a Data placeholder of a subgraph (not the main graph).
func (n *Node) IsSubgraphData() bool {
	return n.opType == OpData && !n.subgraph.IsMain()
}

// IsSubgraphOutput returns whether the node is the NetOutput of a subgraph (not the main graph).
func (n *Node) IsSubgraphOutput() bool {
	return n.opType == OpNetOutput && !n.subgraph.IsMain()
}

// AddInput adds a required input slot. It returns the node, so calls can be chained.
func (n *Node) AddInput(name string, logical shapes.Shape, origin layout.Format) *Node {
	return n.addInput(name, logical, origin, false)
}

// AddOptionalInput adds an input slot that may be left unconnected.
func (n *Node) AddOptionalInput(name string, logical shapes.Shape, origin layout.Format) *Node {
	return n.addInput(name, logical, origin, true)
}

func (n *Node) addInput(name string, logical shapes.Shape, origin layout.Format, optional bool) *Node {
	n.checkSlot(name, logical, origin)
	n.inputs = append(n.inputs, NewSlot(name, logical, origin))
	n.optional = append(n.optional, optional)
	n.producers = append(n.producers, InvalidSlotRef)
	return n
}

// AddOutput adds an output slot. It returns the node, so calls can be chained.
func (n *Node) AddOutput(name string, logical shapes.Shape, origin layout.Format) *Node {
	n.checkSlot(name, logical, origin)
	n.outputs = append(n.outputs, NewSlot(name, logical, origin))
	n.consumers = append(n.consumers, nil)
	return n
}

func (n *Node) checkSlot(name string, logical shapes.Shape, origin layout.Format) {
	if !logical.Ok() {
		exceptions.Panicf("node %s: slot %q has an invalid shape", n, name)
	}
	if !origin.IsOrigin() {
		exceptions.Panicf("node %s: slot %q origin format %s is not an origin (linear) format", n, name, origin)
	}
	if axes := origin.Axes(); axes != "" && logical.Rank() > len(axes) {
		exceptions.Panicf("node %s: slot %q of shape %s has more axes than its origin format %s", n, name, logical, origin)
	}
}

// SetRange sets the logical ranges of the slot, for dynamic shapes. It returns the node, so calls can be chained.
func (n *Node) SetRange(kind SlotKind, index int, ranges shapes.Ranges) *Node {
	slot := n.Slots(kind)[index]
	if err := ranges.Validate(slot.Logical); err != nil {
		exceptions.Panicf("node %s: invalid range for %s slot #%d: %v", n, kind, index, err)
	}
	slot.Range = ranges.Clone()
	slot.PhysicalRange = ranges.Clone()
	return n
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	return fmt.Sprintf("%s(%s#%d)", n.name, n.opType, n.id)
}

// Describe returns a multi-line description of the node with all its slots.
func (n *Node) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s in %q\n", n, n.subgraph.Name())
	for ii, slot := range n.inputs {
		fmt.Fprintf(&sb, "\tin[%d] %s <- %s\n", ii, slot, n.producers[ii])
	}
	for ii, slot := range n.outputs {
		fmt.Fprintf(&sb, "\tout[%d] %s -> %v\n", ii, slot, n.consumers[ii])
	}
	return sb.String()
}
