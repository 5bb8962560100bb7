// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
)

// SlotKind tells whether a slot is an input or an output anchor of a node.
type SlotKind int

const (
	Input SlotKind = iota
	Output
)

//go:generate go tool enumer -type=SlotKind -output=gen_slotkind_enumer.go slot.go

// Direction of a walk over the data-flow edges: Forward goes from producers to consumers, Backward from consumers
// to producers.
type Direction int

const (
	Forward Direction = iota
	Backward
)

//go:generate go tool enumer -type=Direction -output=gen_direction_enumer.go slot.go

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// SlotRef is a handle to a slot: the node, whether it's an input or output, and the index.
// It is comparable and can be used as a map key.
type SlotRef struct {
	Node  NodeId
	Kind  SlotKind
	Index int
}

// InvalidSlotRef is returned for unconnected inputs.
var InvalidSlotRef = SlotRef{Node: InvalidNodeId}

// In returns a reference to the input slot index of node.
func In(node NodeId, index int) SlotRef {
	return SlotRef{Node: node, Kind: Input, Index: index}
}

// Out returns a reference to the output slot index of node.
func Out(node NodeId, index int) SlotRef {
	return SlotRef{Node: node, Kind: Output, Index: index}
}

// Ok returns whether the reference points to a node.
func (ref SlotRef) Ok() bool {
	return ref.Node != InvalidNodeId
}

// String implements fmt.Stringer.
func (ref SlotRef) String() string {
	if !ref.Ok() {
		return "<unconnected>"
	}
	if ref.Kind == Input {
		return fmt.Sprintf("#%d.in[%d]", ref.Node, ref.Index)
	}
	return fmt.Sprintf("#%d.out[%d]", ref.Node, ref.Index)
}

// Slot is a tensor-valued input or output anchor of a node, with its logical description and the
// physical layout decided by the compiler.
type Slot struct {
	Name string

	// Logical shape (and dtype) of the tensor. It is not changed by the compiler.
	Logical shapes.Shape

	// Origin is the format of the logical shape (e.g. NCHW), ND if the axes have no particular meaning.
	Origin layout.Format

	// Range holds the range of each logical dimension, for dynamic shapes. It can be nil.
	Range shapes.Ranges

	// Physical shape of the tensor on device, derived from Logical by Layout and ReshapeType.
	Physical shapes.Shape

	// Layout of the tensor on device. It starts as layout.Linear(Origin).
	Layout layout.Layout

	// ReshapeType describes how a lower-rank Logical shape was expanded to the Origin format rank, "" if not expanded.
	ReshapeType string

	// PhysicalRange is the Range transferred to the physical shape.
	PhysicalRange shapes.Ranges

	// Propagated is set once the layout of the slot was decided by layout propagation.
	// A propagated slot is never changed again by the same pass.
	Propagated bool
}

// NewSlot creates a slot with the default (linear) layout.
func NewSlot(name string, logical shapes.Shape, origin layout.Format) *Slot {
	s := &Slot{Name: name, Logical: logical.Clone(), Origin: origin}
	s.Reset()
	return s
}

// Reset restores the physical description of the slot to its defaults: the linear layout of its origin format.
func (s *Slot) Reset() {
	s.Physical = s.Logical.Clone()
	s.Layout = layout.Linear(s.Origin)
	s.ReshapeType = ""
	s.PhysicalRange = s.Range.Clone()
	s.Propagated = false
}

// IsScalar returns whether the slot holds a scalar tensor.
func (s *Slot) IsScalar() bool {
	return s.Logical.Rank() == 0
}

// IsLinear returns whether the slot has its default linear layout.
func (s *Slot) IsLinear() bool {
	return !s.Layout.IsHeavy()
}

// String implements fmt.Stringer.
func (s *Slot) String() string {
	if s.Propagated {
		return fmt.Sprintf("%s:%s %s->%s %s", s.Name, s.Logical, s.Origin, s.Layout, s.Physical)
	}
	return fmt.Sprintf("%s:%s %s", s.Name, s.Logical, s.Layout)
}
