// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"math"
	"testing"

	"github.com/gomlx/npucompiler/pkg/core/dtypes"
	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"ND":           ND,
		"nchw":         NCHW,
		"NC1HWC0":      NC1HWC0,
		"FRACTAL_Z":    FractalZ,
		"fractal_z_3d": FractalZ3D,
		"FractalNZ":    FractalNZ,
		"C1HWNCoC0":    C1HWNCoC0,
	} {
		got, err := ParseFormat(name)
		require.NoErrorf(t, err, "parsing %q", name)
		assert.Equalf(t, want, got, "parsing %q", name)
	}
	_, err := ParseFormat("NCHW5")
	require.Error(t, err)

	assert.Equal(t, "FRACTAL_Z_3D", FractalZ3D.String())
	assert.Equal(t, "Format(99)", Format(99).String())
	assert.True(t, FractalNZ.IsHeavy())
	assert.False(t, NHWC.IsHeavy())
	assert.True(t, NHWC.IsOrigin())
	assert.Equal(t, "DHWCN", DHWCN.Axes())
	assert.Equal(t, "", NC1HWC0.Axes())
	assert.Equal(t, Family5D, NDC1HWC0.Family())
	assert.Equal(t, 5, Family5D.FullRank())
	assert.Len(t, FormatValues(), int(lastFormat))

	var f Format
	require.NoError(t, f.UnmarshalText([]byte("fractal_nz")))
	assert.Equal(t, FractalNZ, f)
	text, err := NDC1HWC0.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "NDC1HWC0", string(text))
}

func TestResolveOrigin(t *testing.T) {
	origin, err := ResolveOrigin(ND, NC1HWC0)
	require.NoError(t, err)
	assert.Equal(t, NCHW, origin)
	origin, err = ResolveOrigin(NHWC, FractalZ)
	require.NoError(t, err)
	assert.Equal(t, NHWC, origin)
	origin, err = ResolveOrigin(NCDHW, FractalNZ)
	require.NoError(t, err)
	assert.Equal(t, NCDHW, origin)
	_, err = ResolveOrigin(NCDHW, NC1HWC0)
	require.ErrorIs(t, err, ErrIncompatibleOrigin)
}

func TestPack(t *testing.T) {
	l := Layout{Primary: FractalZ, Sub: 4, C0: 16}
	packed, err := l.Pack()
	require.NoError(t, err)
	assert.Equal(t, int32(0x5000040A), packed)
	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, l, unpacked)

	packed, err = Linear(NCHW).Pack()
	require.NoError(t, err)
	assert.Equal(t, int32(1), packed)

	packed, err = Layout{Primary: NC1HWC0, C0: 64}.Pack()
	require.NoError(t, err)
	unpacked, err = Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, 64, unpacked.C0)

	_, err = Layout{Primary: NC1HWC0, C0: 12}.Pack()
	require.Error(t, err)
	_, err = Layout{Primary: NC1HWC0, Sub: -1}.Pack()
	require.Error(t, err)
	_, err = Layout{Primary: Format(200)}.Pack()
	require.Error(t, err)
	_, err = Unpack(200)
	require.Error(t, err)
}

func TestLayoutString(t *testing.T) {
	assert.Equal(t, "NCHW", Linear(NCHW).String())
	assert.Equal(t, "NC1HWC0[c0=16]", Layout{Primary: NC1HWC0, C0: 16}.String())
	assert.Equal(t, "FRACTAL_Z[g=4,c0=32]", Layout{Primary: FractalZ, Sub: 4, C0: 32}.String())
	assert.True(t, Layout{Primary: FractalZ, Sub: 4, C0: 32}.SameFormat(Layout{Primary: FractalZ, Sub: 4, C0: 16}))
	assert.False(t, Layout{Primary: FractalZ, Sub: 4}.SameFormat(Layout{Primary: FractalZ, Sub: 2}))
}

func TestBlockFactor(t *testing.T) {
	assert.Equal(t, 16, BlockFactor(dtypes.Float16, PrecisionAllowFp32ToFp16))
	assert.Equal(t, 16, BlockFactor(dtypes.BFloat16, PrecisionMustKeepOriginDtype))
	assert.Equal(t, 32, BlockFactor(dtypes.Int8, PrecisionAllowFp32ToFp16))
	assert.Equal(t, 64, BlockFactor(dtypes.Int4, PrecisionAllowFp32ToFp16))
	assert.Equal(t, 16, BlockFactor(dtypes.Float32, PrecisionAllowFp32ToFp16))
	assert.Equal(t, 16, BlockFactor(dtypes.Float32, PrecisionForceFp16))
	assert.Equal(t, 8, BlockFactor(dtypes.Float32, PrecisionMustKeepOriginDtype))
	assert.Equal(t, 0, BlockFactor(dtypes.InvalidDType, PrecisionAllowFp32ToFp16))

	assert.Equal(t, []dtypes.DType{dtypes.Float32, dtypes.Float16},
		PrecisionAllowFp32ToFp16.CandidateDTypes(dtypes.Float32, false))
	assert.Equal(t, []dtypes.DType{dtypes.Float16}, PrecisionForceFp16.CandidateDTypes(dtypes.Float32, false))
	assert.Equal(t, []dtypes.DType{dtypes.Float32}, PrecisionForceFp16.CandidateDTypes(dtypes.Float32, true))
	assert.Equal(t, []dtypes.DType{dtypes.Int8}, PrecisionForceFp16.CandidateDTypes(dtypes.Int8, false))

	mode, err := PrecisionModeString("must_keep_origin_dtype")
	require.NoError(t, err)
	assert.Equal(t, PrecisionMustKeepOriginDtype, mode)
	assert.Equal(t, "allow_fp32_to_fp16", PrecisionAllowFp32ToFp16.String())
}

func TestDefaultReshapeType(t *testing.T) {
	testCases := []struct {
		origin Format
		rank   int
		want   string
	}{
		{NCHW, 1, "C"},
		{NCHW, 2, "CH"},
		{NCHW, 3, "CHW"},
		{NCHW, 4, ""},
		{NHWC, 1, "C"},
		{NHWC, 2, "WC"},
		{NHWC, 3, "HWC"},
		{HWCN, 2, "CN"},
		{HWCN, 3, "WCN"},
		{NCDHW, 2, "CD"},
		{ND, 2, ""},
		{NCHW, 0, ""},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.want, DefaultReshapeType(tc.origin, tc.rank), "DefaultReshapeType(%s, %d)", tc.origin, tc.rank)
	}
}

func TestExpandShape(t *testing.T) {
	expanded, err := ExpandShape([]int{64}, NCHW, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 64, 1, 1}, expanded)

	expanded, err = ExpandShape([]int{8, 64}, NCHW, "NC")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 64, 1, 1}, expanded)

	expanded, err = ExpandShape([]int{7, 3}, NHWC, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 7, 3}, expanded)

	expanded, err = ExpandShape([]int{2, 3, 4, 5, 6}, ND, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, expanded)

	_, err = ExpandShape([]int{5, 6}, NCHW, "CN")
	require.ErrorIs(t, err, ErrInvalidReshapeType)
	_, err = ExpandShape([]int{5, 6}, NCHW, "CX")
	require.ErrorIs(t, err, ErrInvalidReshapeType)
	_, err = ExpandShape([]int{5, 6}, NCHW, "NCH")
	require.ErrorIs(t, err, ErrInvalidReshapeType)
	_, err = ExpandShape([]int{1, 2, 3, 4}, NCHW, "CHWN")
	require.ErrorIs(t, err, ErrInvalidReshapeType)
	_, err = ExpandShape([]int{1, 2, 3, 4, 5}, NCHW, "")
	require.ErrorIs(t, err, ErrRankMismatch)
}

func TestTransferShape(t *testing.T) {
	fp16 := dtypes.Float16
	testCases := []struct {
		name        string
		logical     shapes.Shape
		origin      Format
		reshapeType string
		target      Layout
		want        []int
	}{
		{"nc1hwc0", shapes.Make(fp16, 8, 64, 56, 56), NCHW, "", Layout{Primary: NC1HWC0, C0: 16}, []int{8, 4, 56, 56, 16}},
		{"nc1hwc0-nhwc-padded", shapes.Make(fp16, 8, 56, 56, 33), NHWC, "", Layout{Primary: NC1HWC0, C0: 16}, []int{8, 3, 56, 56, 16}},
		{"nc1hwc0-int8", shapes.Make(dtypes.Int8, 1, 64, 7, 7), NCHW, "", Layout{Primary: NC1HWC0, C0: 32}, []int{1, 2, 7, 7, 32}},
		{"nc1hwc0-bias", shapes.Make(fp16, 64), NCHW, "", Layout{Primary: NC1HWC0, C0: 16}, []int{1, 4, 1, 1, 16}},
		{"nc1hwc0-nd", shapes.Make(fp16, 2, 40, 3, 3), ND, "", Layout{Primary: NC1HWC0, C0: 16}, []int{2, 3, 3, 3, 16}},
		{"ndc1hwc0", shapes.Make(fp16, 2, 32, 4, 5, 5), NCDHW, "", Layout{Primary: NDC1HWC0, C0: 16}, []int{2, 4, 2, 5, 5, 16}},
		{"fractal_z", shapes.Make(fp16, 64, 32, 3, 3), NCHW, "", Layout{Primary: FractalZ, C0: 16}, []int{18, 4, 16, 16}},
		{"fractal_z-grouped", shapes.Make(fp16, 64, 8, 3, 3), NCHW, "", Layout{Primary: FractalZ, Sub: 4, C0: 16}, []int{18, 2, 16, 16}},
		{"fractal_z-hwcn", shapes.Make(fp16, 3, 3, 32, 64), HWCN, "", Layout{Primary: FractalZ, C0: 16}, []int{18, 4, 16, 16}},
		{"fractal_z_3d", shapes.Make(fp16, 32, 16, 2, 3, 3), NCDHW, "", Layout{Primary: FractalZ3D, C0: 16}, []int{18, 2, 16, 16}},
		{"fractal_nz", shapes.Make(fp16, 4, 100, 33), ND, "", Layout{Primary: FractalNZ, C0: 16}, []int{4, 3, 7, 16, 16}},
		{"fractal_nz-rank1", shapes.Make(fp16, 33), ND, "", Layout{Primary: FractalNZ, C0: 16}, []int{33}},
		{"c1hwncoc0", shapes.Make(fp16, 8, 32, 3, 3), NCHW, "", Layout{Primary: C1HWNCoC0, C0: 16}, []int{2, 3, 3, 8, 16, 16}},
		{"permute", shapes.Make(fp16, 1, 2, 3, 4), NCHW, "", Linear(NHWC), []int{1, 3, 4, 2}},
		{"permute-expanded", shapes.Make(fp16, 5), NCHW, "", Linear(HWCN), []int{1, 1, 5, 1}},
		{"linear-nd", shapes.Make(fp16, 1, 2, 3), ND, "", Linear(NCHW), []int{1, 2, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			physical, err := TransferShape(tc.logical, tc.origin, tc.reshapeType, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, physical.Dimensions)
			assert.Equal(t, tc.logical.DType, physical.DType)
		})
	}
}

func TestTransferShapeDynamic(t *testing.T) {
	logical := shapes.MakeNamed(dtypes.Float16, []int{shapes.DimDynamic, 64, shapes.DimDynamic, 56}, []string{"batch", "", "height", ""})
	physical, err := TransferShape(logical, NCHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.NoError(t, err)
	want := shapes.MakeNamed(dtypes.Float16, []int{shapes.DimDynamic, 4, shapes.DimDynamic, 56, 16}, []string{"batch", "", "height", "", ""})
	assert.Truef(t, want.Equal(physical), "got %s, wanted %s", physical, want)

	// Dynamic channels make the number of channel blocks dynamic.
	logical = shapes.Make(dtypes.Float16, 1, shapes.DimDynamic, 8, 8)
	physical, err = TransferShape(logical, NCHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.NoError(t, err)
	assert.Equal(t, []int{1, shapes.DimDynamic, 8, 8, 16}, physical.Dimensions)

	logical = shapes.Make(dtypes.Float16, shapes.DimDynamic, 8, 3, 3)
	physical, err = TransferShape(logical, NCHW, "", Layout{Primary: FractalZ, Sub: 2, C0: 16})
	require.NoError(t, err)
	assert.Equal(t, []int{shapes.DimDynamic, shapes.DimDynamic, 16, 16}, physical.Dimensions)
}

func TestTransferShapeErrors(t *testing.T) {
	fp16 := dtypes.Float16
	_, err := TransferShape(shapes.Make(fp16, 63, 8, 3, 3), NCHW, "", Layout{Primary: FractalZ, Sub: 4, C0: 16})
	require.ErrorIs(t, err, ErrGroupMismatch)

	_, err = TransferShape(shapes.Make(fp16, 1, 2, 3, 4, 5), NCDHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.ErrorIs(t, err, ErrIncompatibleOrigin)

	_, err = TransferShape(shapes.Make(fp16, 1, 2, 3, 4, 5), ND, "", Layout{Primary: NC1HWC0, C0: 16})
	require.ErrorIs(t, err, ErrRankMismatch)

	_, err = TransferShape(shapes.Make(fp16, 1, 2, 3, 4), NCHW, "", Layout{Primary: NC1HWC0})
	require.Error(t, err)

	_, err = TransferShape(shapes.Make(fp16, 1, 2, 3, 4), NCHW, "", Linear(NCDHW))
	require.ErrorIs(t, err, ErrIncompatibleOrigin)

	huge := math.MaxInt / 4
	_, err = TransferShape(shapes.Make(fp16, huge, 64, 1<<20, 1<<20), NCHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.ErrorIs(t, err, ErrSizeOverflow)
	require.True(t, errors.Is(err, ErrSizeOverflow))
}

func TestTransferRange(t *testing.T) {
	ranges := shapes.Ranges{{Min: 1, Max: shapes.Unbounded}, {Min: 17, Max: 40}, {Min: 16, Max: 32}, {Min: 16, Max: 32}}
	physical, err := TransferRange(ranges, NCHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.NoError(t, err)
	assert.Equal(t, shapes.Ranges{
		{Min: 1, Max: shapes.Unbounded},
		{Min: 2, Max: 3},
		{Min: 16, Max: 32},
		{Min: 16, Max: 32},
		{Min: 16, Max: 16},
	}, physical)

	physical, err = TransferRange(shapes.Ranges{{Min: 1, Max: 64}}, NCHW, "", Layout{Primary: NC1HWC0, C0: 16})
	require.NoError(t, err)
	assert.Equal(t, shapes.Ranges{{Min: 1, Max: 1}, {Min: 1, Max: 4}, {Min: 1, Max: 1}, {Min: 1, Max: 1}, {Min: 16, Max: 16}}, physical)
}

func TestElementCount(t *testing.T) {
	count, err := ElementCount([]int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 24, count)
	count, err = ElementCount([]int{shapes.DimDynamic, 3})
	require.NoError(t, err)
	assert.Equal(t, shapes.DimDynamic, count)
	count, err = ElementCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, err = ElementCount([]int{math.MaxInt / 2, 3})
	require.ErrorIs(t, err, ErrSizeOverflow)
}
