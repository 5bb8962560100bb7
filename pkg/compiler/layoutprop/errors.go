// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"fmt"
	"strings"

	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
	"github.com/gomlx/npucompiler/pkg/core/xref"
	"github.com/pkg/errors"
)

// Branch failures: the branch is abandoned, the rest of the walk continues.
var (
	// ErrReshapeTypeMismatch is reported when the reshape-type a kernel requires for a slot differs from the
	// one propagated to it.
	ErrReshapeTypeMismatch = errors.New("reshape-type mismatch")

	// ErrSizeOverflow is reported when a physical shape or range overflows, or exceeds Config.MaxElements.
	ErrSizeOverflow = layout.ErrSizeOverflow

	// ErrSubLayoutUnsupported is reported when a kernel supports the candidate format but not its sub-layout.
	ErrSubLayoutUnsupported = errors.New("sub-layout unsupported")

	// ErrWeightRollback is reported when a weight could not take the candidate layout because one of its
	// consumers rejects it.
	ErrWeightRollback = errors.New("weight layout rolled back")
)

// Structural failures: the pass is aborted.
var (
	// ErrDanglingLink is returned when a cross-reference link points to a slot that doesn't exist.
	ErrDanglingLink = xref.ErrDanglingLink

	// ErrMissingPeer is returned when an edge points to a slot that doesn't exist.
	ErrMissingPeer = errors.New("missing peer slot")
)

// BranchError describes a branch of the walk that was abandoned.
type BranchError struct {
	// Seed whose walk reached the failure.
	Seed graph.NodeId

	// Slot where the failure was detected.
	Slot graph.SlotRef

	// Node is a description of the node of Slot, for messages.
	Node string

	Err error
}

// Error implements error.
func (e *BranchError) Error() string {
	return fmt.Sprintf("seed #%d: %s at %s: %v", e.Seed, e.Node, e.Slot, e.Err)
}

// Unwrap returns the underlying error, so errors.Is works with the sentinel errors.
func (e *BranchError) Unwrap() error { return e.Err }

// FailuresError aggregates the branch failures and weight rollbacks of a pass.
type FailuresError struct {
	Failures []*BranchError
}

// Error implements error.
func (e *FailuresError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "layout propagation: %d branch failure(s)", len(e.Failures))
	for _, failure := range e.Failures {
		sb.WriteString("\n\t")
		sb.WriteString(failure.Error())
	}
	return sb.String()
}

// Unwrap returns the individual failures.
func (e *FailuresError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for ii, failure := range e.Failures {
		errs[ii] = failure
	}
	return errs
}
