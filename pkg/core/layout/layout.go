// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

var (
	// ErrSizeOverflow is returned when a physical shape (or its number of elements) doesn't fit an int.
	ErrSizeOverflow = errors.New("physical shape size overflow")

	// ErrRankMismatch is returned when a logical shape has more axes than the origin format it is expanded to.
	ErrRankMismatch = errors.New("rank incompatible with format")

	// ErrIncompatibleOrigin is returned when a heavy format cannot tile the origin format of a tensor.
	ErrIncompatibleOrigin = errors.New("incompatible origin format")

	// ErrInvalidReshapeType is returned for reshape types not consistent with the origin format or the rank.
	ErrInvalidReshapeType = errors.New("invalid reshape type")

	// ErrGroupMismatch is returned when the number of output channels is not divisible by the number of groups
	// of a grouped convolution filter.
	ErrGroupMismatch = errors.New("channels not divisible by groups")
)

// Layout is the physical memory layout of a tensor: a primary format, a sub-layout (the group count of
// grouped convolution filters, 0 when not used) and a block factor C0 (0 for non-blocked formats).
//
// The zero value is the linear ND layout.
type Layout struct {
	Primary Format
	Sub     int
	C0      int
}

// Linear returns the default (linear) layout of a tensor with the given origin format.
func Linear(origin Format) Layout {
	return Layout{Primary: origin}
}

// IsHeavy returns whether the primary format is a heavy format.
func (l Layout) IsHeavy() bool {
	return l.Primary.IsHeavy()
}

// WithC0 returns a copy of the layout with the given block factor.
func (l Layout) WithC0(c0 int) Layout {
	l.C0 = c0
	return l
}

// SameFormat returns whether l and other have the same primary format and sub-layout. The block factor is not
// compared, since it depends on the dtype of each tensor.
func (l Layout) SameFormat(other Layout) bool {
	return l.Primary == other.Primary && l.Sub == other.Sub
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch {
	case l.Sub > 0 && l.C0 > 0:
		return fmt.Sprintf("%s[g=%d,c0=%d]", l.Primary, l.Sub, l.C0)
	case l.Sub > 0:
		return fmt.Sprintf("%s[g=%d]", l.Primary, l.Sub)
	case l.C0 > 0:
		return fmt.Sprintf("%s[c0=%d]", l.Primary, l.C0)
	default:
		return l.Primary.String()
	}
}

const (
	primaryBits  = 8
	subBits      = 20
	subShift     = primaryBits
	c0Shift      = primaryBits + subBits
	primaryMask  = 1<<primaryBits - 1
	subMask      = 1<<subBits - 1
	c0CodeMask   = 0xf
	maxSubLayout = subMask
)

// Pack the layout into its integer encoding:
//
//	c0code<<28 | sub<<8 | primary
//
// where c0code is log2(C0)+1, or 0 if there is no block factor. C0 must be a power of 2 and Sub must fit in 20 bits.
func (l Layout) Pack() (int32, error) {
	if !l.Primary.IsValid() {
		return 0, errors.Errorf("cannot pack layout with invalid primary format %d", int(l.Primary))
	}
	if l.Sub < 0 || l.Sub > maxSubLayout {
		return 0, errors.Errorf("cannot pack layout %s: sub-layout must be in [0, %d]", l, maxSubLayout)
	}
	var c0Code int
	if l.C0 != 0 {
		if l.C0 < 0 || bits.OnesCount(uint(l.C0)) != 1 {
			return 0, errors.Errorf("cannot pack layout %s: block factor must be a power of 2", l)
		}
		c0Code = bits.TrailingZeros(uint(l.C0)) + 1
		if c0Code > 7 {
			return 0, errors.Errorf("cannot pack layout %s: block factor too large", l)
		}
	}
	return int32(c0Code<<c0Shift | l.Sub<<subShift | int(l.Primary)), nil
}

// Unpack decodes a layout packed with Layout.Pack.
func Unpack(packed int32) (Layout, error) {
	v := int(packed)
	l := Layout{
		Primary: Format(v & primaryMask),
		Sub:     (v >> subShift) & subMask,
	}
	if c0Code := (v >> c0Shift) & c0CodeMask; c0Code > 0 {
		l.C0 = 1 << (c0Code - 1)
	}
	if !l.Primary.IsValid() {
		return Layout{}, errors.Errorf("packed layout 0x%08x has invalid primary format %d", uint32(packed), int(l.Primary))
	}
	return l, nil
}
