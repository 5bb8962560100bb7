// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// DefaultReshapeType returns the reshape type used to expand a tensor of the given rank to the full rank of
// its origin format, when no kernel declares one: the axes of the origin format starting at the channel axis,
// or the trailing axes of the format if those don't fit.
//
// It returns "" (no reshape) for ND, for scalars and if rank is already the full rank (or larger).
func DefaultReshapeType(origin Format, rank int) string {
	axes := origin.Axes()
	full := len(axes)
	if full == 0 || rank <= 0 || rank >= full {
		return ""
	}
	channelAxis := strings.IndexByte(axes, 'C')
	if channelAxis >= 0 && channelAxis+rank <= full {
		return axes[channelAxis : channelAxis+rank]
	}
	return axes[full-rank:]
}

// ValidateReshapeType checks that reshapeType lists, in order and without repetitions, rank axes of the
// origin format. An empty reshapeType is always valid.
func ValidateReshapeType(origin Format, rank int, reshapeType string) error {
	if reshapeType == "" {
		return nil
	}
	axes := origin.Axes()
	if len(reshapeType) != rank {
		return errors.Wrapf(ErrInvalidReshapeType, "reshape type %q has %d axes, but tensor has rank %d", reshapeType, len(reshapeType), rank)
	}
	last := -1
	for _, letter := range []byte(reshapeType) {
		pos := strings.IndexByte(axes, letter)
		if pos < 0 {
			return errors.Wrapf(ErrInvalidReshapeType, "reshape type %q uses axis %q not in format %s", reshapeType, letter, origin)
		}
		if pos <= last {
			return errors.Wrapf(ErrInvalidReshapeType, "reshape type %q axes are not in the order of format %s", reshapeType, origin)
		}
		last = pos
	}
	return nil
}

// ExpandShape expands the dimensions of a tensor to the full rank of its origin format, placing the
// given dimensions on the axes listed by reshapeType and 1 on the missing axes. If reshapeType is empty,
// DefaultReshapeType is used.
//
// ND tensors and tensors already of full rank are returned as a copy.
func ExpandShape(dims []int, origin Format, reshapeType string) ([]int, error) {
	expanded, _, err := expandNamed(dims, nil, origin, reshapeType)
	return expanded, err
}

// expandNamed is ExpandShape carrying the axis names along, names may be nil.
func expandNamed(dims []int, names []string, origin Format, reshapeType string) ([]int, []string, error) {
	axes := origin.Axes()
	full := len(axes)
	rank := len(dims)
	if full == 0 {
		return slices.Clone(dims), slices.Clone(names), nil
	}
	if rank > full {
		return nil, nil, errors.Wrapf(ErrRankMismatch, "tensor of rank %d cannot be expanded to format %s", rank, origin)
	}
	if rank == full {
		if reshapeType != "" && reshapeType != axes {
			return nil, nil, errors.Wrapf(ErrInvalidReshapeType, "reshape type %q given for a full rank tensor of format %s", reshapeType, origin)
		}
		return slices.Clone(dims), slices.Clone(names), nil
	}
	if reshapeType == "" {
		reshapeType = DefaultReshapeType(origin, rank)
	}
	if err := ValidateReshapeType(origin, rank, reshapeType); err != nil {
		return nil, nil, err
	}
	expanded := make([]int, full)
	var expandedNames []string
	if names != nil {
		expandedNames = make([]string, full)
	}
	for axis := range expanded {
		expanded[axis] = 1
	}
	for ii, letter := range []byte(reshapeType) {
		pos := strings.IndexByte(axes, letter)
		expanded[pos] = dims[ii]
		if names != nil {
			expandedNames[pos] = names[ii]
		}
	}
	return expanded, expandedNames, nil
}
