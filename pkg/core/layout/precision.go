// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import "github.com/gomlx/npucompiler/pkg/core/dtypes"

// PrecisionMode is the numeric precision policy of the compilation. It decides which dtype a kernel
// computes float32 tensors with, and hence their block factor.
type PrecisionMode int

const (
	// PrecisionAllowFp32ToFp16 uses a float32 kernel if there is one, and falls back to float16 otherwise.
	PrecisionAllowFp32ToFp16 PrecisionMode = iota

	// PrecisionForceFp16 computes all float32 tensors in float16.
	PrecisionForceFp16

	// PrecisionMustKeepOriginDtype never changes the dtype of a tensor.
	PrecisionMustKeepOriginDtype
)

//go:generate go tool enumer -type=PrecisionMode -trimprefix=Precision -transform=snake -text -yaml -output=gen_precisionmode_enumer.go precision.go

// BlockBytes is the size in bytes of one block of a blocked layout.
const BlockBytes = 32

// CubeBlock is the fixed block size of the matrix unit along the non-reduced axes of fractal layouts.
const CubeBlock = 16

// ComputeDType returns the dtype a kernel computes a tensor of dtype with, under the precision mode.
func (mode PrecisionMode) ComputeDType(dtype dtypes.DType) dtypes.DType {
	if dtype == dtypes.Float32 && mode != PrecisionMustKeepOriginDtype {
		return dtypes.Float16
	}
	return dtype
}

// CandidateDTypes returns the dtypes, in order of preference, that a kernel variant may declare
// for a tensor of the given dtype. keepDType pins the dtype of the tensor regardless of the mode.
func (mode PrecisionMode) CandidateDTypes(dtype dtypes.DType, keepDType bool) []dtypes.DType {
	if keepDType || dtype != dtypes.Float32 {
		return []dtypes.DType{dtype}
	}
	switch mode {
	case PrecisionForceFp16:
		return []dtypes.DType{dtypes.Float16}
	case PrecisionAllowFp32ToFp16:
		return []dtypes.DType{dtypes.Float32, dtypes.Float16}
	default:
		return []dtypes.DType{dtype}
	}
}

// BlockFactor returns the block factor (C0) of blocked layouts for tensors of the given dtype: the number of
// elements in BlockBytes. Float32 under the fp16 modes is computed as float16.
//
// It returns 0 for invalid dtypes.
func BlockFactor(dtype dtypes.DType, mode PrecisionMode) int {
	numBits := mode.ComputeDType(dtype).Bits()
	if numBits == 0 {
		return 0
	}
	return BlockBytes * 8 / numBits
}
