// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels describes what the accelerator kernels support: for each operator type and each of its
// named tensor slots, the list of layouts, sub-layouts and dtypes a kernel variant accepts.
//
// Variants are aligned by index: entry i of the list of every slot of an operator describes kernel variant i.
// So a Conv2D with slots "x", "filter" and "y" declaring
//
//	x:      [NC1HWC0/float16, NC1HWC0/int8]
//	filter: [FRACTAL_Z/float16, FRACTAL_Z/int8]
//	y:      [NC1HWC0/float16, NC1HWC0/int32]
//
// has two variants, one for float16 and one for int8 quantized inputs.
//
// The Store interface is what compiler passes consume. Registry is the implementation, loaded from a YAML
// catalogue (LoadYAML) or built in code; Default returns the built-in catalogue.
package kernels

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/npucompiler/pkg/core/dtypes"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/pkg/errors"
)

// Support is one entry of the capability list of a slot: the slot of that kernel variant accepts tensors of
// DType stored with Format.
type Support struct {
	Format layout.Format `yaml:"format"`

	// SubLayouts lists the accepted sub-layouts (e.g. convolution group counts). Empty means any.
	SubLayouts []int `yaml:"sub_layouts,omitempty,flow"`

	DType dtypes.DType `yaml:"dtype"`
}

// AcceptsSub returns whether the sub-layout is accepted. Sub-layout 0 (none) is always accepted.
func (s Support) AcceptsSub(sub int) bool {
	if sub <= 0 || len(s.SubLayouts) == 0 {
		return true
	}
	return slices.Contains(s.SubLayouts, sub)
}

// String implements fmt.Stringer.
func (s Support) String() string {
	if len(s.SubLayouts) == 0 {
		return fmt.Sprintf("%s/%s", s.Format, s.DType)
	}
	return fmt.Sprintf("%s%v/%s", s.Format, s.SubLayouts, s.DType)
}

// Store is the read-only view of the kernel capabilities used by compiler passes.
//
// Implementations must not be mutated while a pass is running.
type Store interface {
	// SupportedLayouts returns the capability list of the slot of the operator, one entry per kernel variant.
	// It returns nil if the operator or the slot is unknown.
	SupportedLayouts(opType, slotName string) []Support

	// ReshapeHint returns the reshape-type the kernels of the operator require for the slot, if they declare one.
	ReshapeHint(opType, slotName string) (reshapeType string, found bool)

	// IsLayoutGenerating returns whether the operator intrinsically produces heavy layouts, which makes its
	// nodes seeds of the layout propagation.
	IsLayoutGenerating(opType string) bool

	// SlotNames returns the names of the input and output slots the kernels of the operator declare.
	SlotNames(opType string) (inputs, outputs []string)
}

// SlotKernel is the capability list of one named slot.
type SlotKernel struct {
	Name string `yaml:"name"`

	// ReshapeType is the reshape hint of the slot, e.g. "C" for a bias expanded into NCHW. Optional.
	ReshapeType string `yaml:"reshape_type,omitempty"`

	// Supports has one entry per kernel variant.
	Supports []Support `yaml:"supports"`
}

// OpKernel holds the capabilities of the kernels of one operator type.
type OpKernel struct {
	OpType string `yaml:"op"`

	// LayoutGenerating marks operators whose kernels produce heavy layouts by themselves (convolutions,
	// matrix multiplications).
	LayoutGenerating bool `yaml:"layout_generating,omitempty"`

	Inputs  []SlotKernel `yaml:"inputs,omitempty"`
	Outputs []SlotKernel `yaml:"outputs,omitempty"`
}

// NumVariants returns the number of kernel variants of the operator.
func (op *OpKernel) NumVariants() int {
	for _, slot := range op.Inputs {
		return len(slot.Supports)
	}
	for _, slot := range op.Outputs {
		return len(slot.Supports)
	}
	return 0
}

// Slot returns the capability list of the named slot, or nil if not declared.
func (op *OpKernel) Slot(name string) *SlotKernel {
	for ii := range op.Inputs {
		if op.Inputs[ii].Name == name {
			return &op.Inputs[ii]
		}
	}
	for ii := range op.Outputs {
		if op.Outputs[ii].Name == name {
			return &op.Outputs[ii]
		}
	}
	return nil
}

// Variant returns the supports of every slot for kernel variant idx, keyed by slot name.
func (op *OpKernel) Variant(idx int) map[string]Support {
	variant := make(map[string]Support, len(op.Inputs)+len(op.Outputs))
	for _, list := range [][]SlotKernel{op.Inputs, op.Outputs} {
		for _, slot := range list {
			if idx >= 0 && idx < len(slot.Supports) {
				variant[slot.Name] = slot.Supports[idx]
			}
		}
	}
	return variant
}

// Validate checks that slot names are unique, that all slots declare the same number of variants and that
// reshape hints are made of distinct letters.
func (op *OpKernel) Validate() error {
	if op.OpType == "" {
		return errors.New("kernel without an operator type")
	}
	names := sets.Make[string]()
	numVariants := op.NumVariants()
	for _, list := range [][]SlotKernel{op.Inputs, op.Outputs} {
		for _, slot := range list {
			if slot.Name == "" {
				return errors.Errorf("kernel %q has a slot without a name", op.OpType)
			}
			if names.Has(slot.Name) {
				return errors.Errorf("kernel %q declares slot %q twice", op.OpType, slot.Name)
			}
			names.Insert(slot.Name)
			if len(slot.Supports) != numVariants {
				return errors.Errorf("kernel %q: slot %q declares %d variants, other slots declare %d",
					op.OpType, slot.Name, len(slot.Supports), numVariants)
			}
			if !isReshapeHint(slot.ReshapeType) {
				return errors.Errorf("kernel %q: slot %q has an invalid reshape type %q", op.OpType, slot.Name, slot.ReshapeType)
			}
			for ii, support := range slot.Supports {
				if !support.Format.IsValid() {
					return errors.Errorf("kernel %q: slot %q variant #%d has an invalid format", op.OpType, slot.Name, ii)
				}
				if support.DType == dtypes.InvalidDType {
					return errors.Errorf("kernel %q: slot %q variant #%d has no dtype", op.OpType, slot.Name, ii)
				}
				for _, sub := range support.SubLayouts {
					if sub <= 0 {
						return errors.Errorf("kernel %q: slot %q variant #%d has invalid sub-layout %d", op.OpType, slot.Name, ii, sub)
					}
				}
			}
		}
	}
	return nil
}

// isReshapeHint accepts upper-case axis letters, each at most once.
func isReshapeHint(reshapeType string) bool {
	for ii, letter := range reshapeType {
		if letter < 'A' || letter > 'Z' || strings.IndexRune(reshapeType[ii+1:], letter) >= 0 {
			return false
		}
	}
	return true
}

// Registry implements Store with an in-memory table of OpKernel.
//
// It is filled with Register (or LoadYAML) and must not be changed after it is handed to a pass.
type Registry struct {
	ops map[string]*OpKernel
}

var _ Store = (*Registry)(nil)

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*OpKernel)}
}

// Register adds the kernels of an operator type, replacing any previous registration of the same type.
func (r *Registry) Register(op OpKernel) error {
	if err := op.Validate(); err != nil {
		return err
	}
	r.ops[op.OpType] = &op
	return nil
}

// MustRegister is like Register, but panics on error. It returns the Registry, so calls can be chained.
func (r *Registry) MustRegister(op OpKernel) *Registry {
	if err := r.Register(op); err != nil {
		panic(err)
	}
	return r
}

// Op returns the kernels registered for the operator type.
func (r *Registry) Op(opType string) (*OpKernel, bool) {
	op, found := r.ops[opType]
	return op, found
}

// OpTypes returns the sorted list of registered operator types.
func (r *Registry) OpTypes() []string {
	return slices.Sorted(maps.Keys(r.ops))
}

// Clone makes a deep copy of the Registry.
func (r *Registry) Clone() *Registry {
	r2 := NewRegistry()
	for opType, op := range r.ops {
		op2 := *op
		op2.Inputs = cloneSlots(op.Inputs)
		op2.Outputs = cloneSlots(op.Outputs)
		r2.ops[opType] = &op2
	}
	return r2
}

func cloneSlots(slots []SlotKernel) []SlotKernel {
	if slots == nil {
		return nil
	}
	slots2 := slices.Clone(slots)
	for ii := range slots2 {
		slots2[ii].Supports = slices.Clone(slots[ii].Supports)
		for jj := range slots2[ii].Supports {
			slots2[ii].Supports[jj].SubLayouts = slices.Clone(slots[ii].Supports[jj].SubLayouts)
		}
	}
	return slots2
}

// SupportedLayouts implements Store.
func (r *Registry) SupportedLayouts(opType, slotName string) []Support {
	op, found := r.ops[opType]
	if !found {
		return nil
	}
	slot := op.Slot(slotName)
	if slot == nil {
		return nil
	}
	return slot.Supports
}

// ReshapeHint implements Store.
func (r *Registry) ReshapeHint(opType, slotName string) (string, bool) {
	op, found := r.ops[opType]
	if !found {
		return "", false
	}
	slot := op.Slot(slotName)
	if slot == nil || slot.ReshapeType == "" {
		return "", false
	}
	return slot.ReshapeType, true
}

// IsLayoutGenerating implements Store.
func (r *Registry) IsLayoutGenerating(opType string) bool {
	op, found := r.ops[opType]
	return found && op.LayoutGenerating
}

// SlotNames implements Store.
func (r *Registry) SlotNames(opType string) (inputs, outputs []string) {
	op, found := r.ops[opType]
	if !found {
		return nil, nil
	}
	for _, slot := range op.Inputs {
		inputs = append(inputs, slot.Name)
	}
	for _, slot := range op.Outputs {
		outputs = append(outputs, slot.Name)
	}
	return
}

// HasHeavyVariant returns whether any variant of the operator declares a heavy format in any slot.
func (r *Registry) HasHeavyVariant(opType string) bool {
	op, found := r.ops[opType]
	if !found {
		return false
	}
	for _, list := range [][]SlotKernel{op.Inputs, op.Outputs} {
		for _, slot := range list {
			for _, support := range slot.Supports {
				if support.Format.IsHeavy() {
					return true
				}
			}
		}
	}
	return false
}
