// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Unbounded is the DimRange.Max value for an axis without an upper bound.
const Unbounded = -1

// DimRange is the closed interval [Min, Max] of values a dimension can take. Max == Unbounded means
// there is no upper bound.
type DimRange struct {
	Min, Max int
}

// String implements fmt.Stringer.
func (r DimRange) String() string {
	if r.Max == Unbounded {
		return fmt.Sprintf("[%d,-1]", r.Min)
	}
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// IsFixed returns whether the range holds exactly one value.
func (r DimRange) IsFixed() bool { return r.Max != Unbounded && r.Min == r.Max }

// Ranges is a list of DimRange, one per axis of a shape.
type Ranges []DimRange

// String implements fmt.Stringer.
func (rs Ranges) String() string {
	parts := make([]string, len(rs))
	for ii, r := range rs {
		parts[ii] = r.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Clone returns a copy of the ranges.
func (rs Ranges) Clone() Ranges {
	if rs == nil {
		return nil
	}
	return append(Ranges(nil), rs...)
}

// Validate checks the ranges are consistent with the shape: one range per axis, static
// dimensions inside their range and Min <= Max.
func (rs Ranges) Validate(s Shape) error {
	if len(rs) != s.Rank() {
		return errors.Errorf("got %d ranges for shape %s of rank %d", len(rs), s, s.Rank())
	}
	for axis, r := range rs {
		if r.Min < 0 || (r.Max != Unbounded && r.Max < r.Min) {
			return errors.Errorf("invalid range %s for axis %d of shape %s", r, axis, s)
		}
		dim := s.Dimensions[axis]
		if dim == DimDynamic {
			continue
		}
		if dim < r.Min || (r.Max != Unbounded && dim > r.Max) {
			return errors.Errorf("dimension %d of axis %d is outside of its range %s (shape %s)", dim, axis, r, s)
		}
	}
	return nil
}

// StaticRanges returns the ranges implied by a shape: fixed ranges for static dimensions and
// [1, Unbounded] for dynamic ones.
func StaticRanges(s Shape) Ranges {
	rs := make(Ranges, s.Rank())
	for axis, dim := range s.Dimensions {
		if dim == DimDynamic {
			rs[axis] = DimRange{Min: 1, Max: Unbounded}
		} else {
			rs[axis] = DimRange{Min: dim, Max: dim}
		}
	}
	return rs
}
