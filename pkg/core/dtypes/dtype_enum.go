// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum represents the element type of a tensor slot.
//
// The numeric values follow github.com/gomlx/go-xla/pkg/types/dtypes (and hence the PJRT C API), so graphs
// exported by GoMLX keep their data types. Only the types the accelerator kernels know about are listed.
type DType int32

const (
	// InvalidDType is the zero value, and it is used to mark an unset data type.
	InvalidDType DType = 0

	// Bool is a two-state predicate, stored as one byte.
	Bool DType = 1

	// Int8 is a signed 8-bit integer.
	Int8 DType = 2

	// Int16 is a signed 16-bit integer.
	Int16 DType = 3

	// Int32 is a signed 32-bit integer.
	Int32 DType = 4

	// Int64 is a signed 64-bit integer.
	Int64 DType = 5

	// Uint8 is an unsigned 8-bit integer.
	Uint8 DType = 6

	// Uint16 is an unsigned 16-bit integer.
	Uint16 DType = 7

	// Uint32 is an unsigned 32-bit integer.
	Uint32 DType = 8

	// Uint64 is an unsigned 64-bit integer.
	Uint64 DType = 9

	// Float16 is the IEEE half-precision float.
	Float16 DType = 10

	// Float32 is the IEEE single-precision float.
	Float32 DType = 11

	// Float64 is the IEEE double-precision float.
	Float64 DType = 12

	// BFloat16 is the truncated 16-bit "brain" float: 1 bit sign, 8 bits exponent and 7 bits mantissa.
	BFloat16 DType = 13

	// Complex64 is a pair of Float32 (real, imag).
	Complex64 DType = 14

	// Complex128 is a pair of Float64 (real, imag).
	Complex128 DType = 15

	// Int4 is a signed 4-bit integer, two values packed per byte.
	Int4 DType = 21

	// Uint4 is an unsigned 4-bit integer, two values packed per byte.
	Uint4 DType = 22
)

// Aliases from the PJRT C API names.
const (
	INVALID = InvalidDType
	PRED    = Bool
	S4      = Int4
	S8      = Int8
	S16     = Int16
	S32     = Int32
	S64     = Int64
	U4      = Uint4
	U8      = Uint8
	U16     = Uint16
	U32     = Uint32
	U64     = Uint64
	F16     = Float16
	F32     = Float32
	F64     = Float64
	BF16    = BFloat16
	C64     = Complex64
	C128    = Complex128
)

// canonicalNames is used by String.
var canonicalNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int4:         "Int4",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint4:        "Uint4",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	BFloat16:     "BFloat16",
	Complex64:    "Complex64",
	Complex128:   "Complex128",
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"INVALID":      InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"Int4":         Int4,
	"S4":           Int4,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint4":        Uint4,
	"U4":           Uint4,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
	"Complex64":    Complex64,
	"C64":          Complex64,
	"Complex128":   Complex128,
	"C128":         Complex128,
}
