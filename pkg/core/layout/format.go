// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layout implements the arithmetic of physical memory layouts ("formats") of tensors on the
// accelerator: the Format enum, the packed Layout triple {primary format, sub-layout, block factor},
// block factors derived from dtypes, reshape-type expansion of lower-rank shapes and the transfer of
// logical shapes (and their value ranges) to physical shapes.
//
// Formats are either "origin" formats, plain row-major layouts that name the meaning of each axis
// (NCHW, NHWC, ...), or "heavy" formats, hardware tilings of an origin format (NC1HWC0, FRACTAL_Z, ...).
//
// All functions in this package are pure.
package layout

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Format is the primary tag of a layout.
type Format int

const (
	ND Format = iota
	NCHW
	NHWC
	HWCN
	CHWN
	NCDHW
	NDHWC
	DHWCN
	NC1HWC0
	NDC1HWC0
	FractalZ
	FractalZ3D
	FractalNZ
	C1HWNCoC0

	// lastFormat is used to size the info table.
	lastFormat
)

// Family groups an origin format with the heavy formats that tile it.
type Family int

const (
	// FamilyND has no named axes: heavy formats of this family tile the trailing axes.
	FamilyND Family = iota
	Family4D
	Family5D
)

type formatInfo struct {
	name string

	// axes of an origin format, one letter per axis. Empty for ND and heavy formats.
	axes string

	heavy  bool
	family Family

	// minRank is the smallest rank a heavy format tiles; lower-rank tensors only get the layout tag.
	minRank int
}

var formatInfos = [lastFormat]formatInfo{
	ND:         {name: "ND", family: FamilyND},
	NCHW:       {name: "NCHW", axes: "NCHW", family: Family4D},
	NHWC:       {name: "NHWC", axes: "NHWC", family: Family4D},
	HWCN:       {name: "HWCN", axes: "HWCN", family: Family4D},
	CHWN:       {name: "CHWN", axes: "CHWN", family: Family4D},
	NCDHW:      {name: "NCDHW", axes: "NCDHW", family: Family5D},
	NDHWC:      {name: "NDHWC", axes: "NDHWC", family: Family5D},
	DHWCN:      {name: "DHWCN", axes: "DHWCN", family: Family5D},
	NC1HWC0:    {name: "NC1HWC0", heavy: true, family: Family4D, minRank: 1},
	NDC1HWC0:   {name: "NDC1HWC0", heavy: true, family: Family5D, minRank: 1},
	FractalZ:   {name: "FRACTAL_Z", heavy: true, family: Family4D, minRank: 1},
	FractalZ3D: {name: "FRACTAL_Z_3D", heavy: true, family: Family5D, minRank: 1},
	FractalNZ:  {name: "FRACTAL_NZ", heavy: true, family: FamilyND, minRank: 2},
	C1HWNCoC0:  {name: "C1HWNCoC0", heavy: true, family: Family4D, minRank: 1},
}

// IsValid returns whether f is one of the known formats.
func (f Format) IsValid() bool {
	return f >= 0 && f < lastFormat
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if !f.IsValid() {
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
	return formatInfos[f].name
}

// IsHeavy returns whether f is a hardware tiling, as opposed to a linear (origin) format.
func (f Format) IsHeavy() bool {
	return f.IsValid() && formatInfos[f].heavy
}

// IsOrigin returns whether f is a linear format.
func (f Format) IsOrigin() bool {
	return f.IsValid() && !formatInfos[f].heavy
}

// Axes returns the axis letters of an origin format, e.g. "NCHW". It is empty for ND and heavy formats.
func (f Format) Axes() string {
	if !f.IsValid() {
		return ""
	}
	return formatInfos[f].axes
}

// Family of the format.
func (f Format) Family() Family {
	if !f.IsValid() {
		return FamilyND
	}
	return formatInfos[f].family
}

// MinRank is the smallest logical rank a heavy format tiles. It is 0 for origin formats.
func (f Format) MinRank() int {
	if !f.IsValid() {
		return 0
	}
	return formatInfos[f].minRank
}

// FullRank returns the number of axes of the family of origin formats, or 0 for FamilyND.
func (fam Family) FullRank() int {
	switch fam {
	case Family4D:
		return 4
	case Family5D:
		return 5
	default:
		return 0
	}
}

// DefaultOrigin is the origin format assumed for an ND tensor tiled by a heavy format of the family.
func (fam Family) DefaultOrigin() Format {
	switch fam {
	case Family4D:
		return NCHW
	case Family5D:
		return NCDHW
	default:
		return ND
	}
}

// FormatValues returns all known formats.
func FormatValues() []Format {
	values := make([]Format, 0, lastFormat)
	for f := range lastFormat {
		values = append(values, f)
	}
	return values
}

// ParseFormat parses the name of a format. The match is case-insensitive, and "_" is optional
// (so "FRACTAL_Z", "fractal_z" and "FractalZ" all work).
func ParseFormat(name string) (Format, error) {
	normalized := normalizeFormatName(name)
	idx := slices.IndexFunc(formatInfos[:], func(info formatInfo) bool {
		return normalizeFormatName(info.name) == normalized
	})
	if idx < 0 {
		return ND, errors.Errorf("unknown format %q, valid values are %q", name, FormatValues())
	}
	return Format(idx), nil
}

func normalizeFormatName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, and it is used by the YAML decoder as well.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ResolveOrigin returns the origin format used to tile a tensor of the given origin format with the
// heavy format target. An ND tensor is interpreted with the family default origin.
//
// It returns ErrIncompatibleOrigin if the origin format belongs to another family.
func ResolveOrigin(origin, target Format) (Format, error) {
	family := target.Family()
	if family == FamilyND {
		return origin, nil
	}
	if origin == ND {
		return family.DefaultOrigin(), nil
	}
	if origin.IsOrigin() && origin.Family() == family {
		return origin, nil
	}
	return ND, errors.Wrapf(ErrIncompatibleOrigin, "format %s cannot tile a tensor of origin format %s", target, origin)
}
