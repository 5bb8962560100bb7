// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the logical or physical shape of a tensor slot, and the per-axis ranges
// used for dynamic shapes.
//
// A dimension is either a literal (>= 0) or DimDynamic. Dynamic dimensions may carry a symbolic
// name (an "axis name", e.g. "batch"), which lets two dynamic axes be recognized as the same value.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. Here we refer to a dimension index as "axis"
//     (plural axes), and its size as its dimension.
//   - Scalar: a shape with no axes, only a single value of the associated DType.
//
// Example: `shapes.Make(dtypes.Float16, 8, 64, 56, 56)` is a rank-4 shape, and
// `shapes.MakeNamed(dtypes.Float16, []int{-1, 64}, []string{"batch", ""})` has a dynamic
// first axis named "batch".
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/pkg/core/dtypes"
)

// DimDynamic marks a dimension whose size is only known at execution time.
const DimDynamic = -1

// Shape represents the shape of a tensor slot: its DType, dimensions and optional axis names.
//
// Use Make or MakeNamed to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int

	// AxisNames is either empty or has one entry per axis; "" means the axis is not named.
	AxisNames []string
}

// Make returns a Shape structure filled with the values given.
// Dimensions must be >= 0 or DimDynamic.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim < 0 && dim != DimDynamic {
			exceptions.Panicf("shapes.Make(%s): invalid dimension %d", s, dim)
		}
	}
	return s
}

// MakeNamed returns a Shape with the given dimensions and axis names.
// An axis with a name and DimDynamic dimension is a symbolic axis.
func MakeNamed(dtype dtypes.DType, dimensions []int, axisNames []string) Shape {
	s := Make(dtype, dimensions...)
	if len(axisNames) != 0 && len(axisNames) != len(dimensions) {
		exceptions.Panicf("shapes.MakeNamed(%s): got %d axis names for rank %d", s, len(axisNames), len(dimensions))
	}
	if slices.ContainsFunc(axisNames, func(name string) bool { return name != "" }) {
		s.AxisNames = slices.Clone(axisNames)
	}
	return s
}

// Scalar returns a scalar Shape for the given type.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// IsDynamic returns whether any of the dimensions is DimDynamic.
func (s Shape) IsDynamic() bool {
	return slices.Contains(s.Dimensions, DimDynamic)
}

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// AxisName returns the name of the given axis, or "" if it is not named.
func (s Shape) AxisName(axis int) string {
	if len(s.AxisNames) == 0 {
		return ""
	}
	return s.AxisNames[axis]
}

// HasNamedAxes returns whether any axis carries a name.
func (s Shape) HasNamedAxes() bool {
	return len(s.AxisNames) > 0
}

// String implements stringer, pretty-prints the shape. Dynamic axes are printed with their name, or "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, s.Rank())
	for axis, dim := range s.Dimensions {
		switch {
		case dim != DimDynamic:
			parts[axis] = fmt.Sprintf("%d", dim)
		case s.AxisName(axis) != "":
			parts[axis] = s.AxisName(axis)
		default:
			parts[axis] = "?"
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// Size returns the number of elements of the shape, or DimDynamic if any dimension is dynamic.
func (s Shape) Size() int {
	size := 1
	for _, d := range s.Dimensions {
		if d == DimDynamic {
			return DimDynamic
		}
		size *= d
	}
	return size
}

// Memory returns the number of bytes used by a tensor of this shape, or DimDynamic for dynamic shapes.
func (s Shape) Memory() int {
	if s.IsDynamic() {
		return DimDynamic
	}
	return s.DType.SizeForDimensions(s.Dimensions...)
}

// Equal compares two shapes for equality: dtype, dimensions and axis names are compared.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.Rank() != s2.Rank() {
		return false
	}
	if !slices.Equal(s.Dimensions, s2.Dimensions) {
		return false
	}
	for axis := range s.Dimensions {
		if s.AxisName(axis) != s2.AxisName(axis) {
			return false
		}
	}
	return true
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes and axis names can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	s2.AxisNames = slices.Clone(s.AxisNames)
	return
}

// WithDimensions returns a copy of the shape with new dimensions and axis names (which can be nil).
func (s Shape) WithDimensions(dimensions []int, axisNames []string) Shape {
	return MakeNamed(s.DType, dimensions, axisNames)
}
