// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import "github.com/gomlx/npucompiler/pkg/core/layout"

// Config of the layout propagation pass.
type Config struct {
	// PrecisionMode selects the dtype kernels compute float32 tensors with, which decides the kernel variants
	// of seeds and the block factor of float32 tensors.
	PrecisionMode layout.PrecisionMode

	// MaxElements is the largest number of elements of a physical shape. 0 only checks for overflows.
	MaxElements int

	// ReconcileReverse runs the reconciliation of format-continuous nodes a second time, in reverse order.
	ReconcileReverse bool

	// WeightPropagation allows candidate layouts to be committed onto weights.
	WeightPropagation bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PrecisionMode:     layout.PrecisionAllowFp32ToFp16,
		ReconcileReverse:  true,
		WeightPropagation: true,
	}
}
