// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

// Outcome of an attempt to commit a candidate layout onto a slot.
type Outcome int

const (
	// OutcomeCommitted means the slot took the candidate layout and the walk continues through it.
	OutcomeCommitted Outcome = iota

	// OutcomeHalted means the branch stops there, without error. See HaltReason.
	OutcomeHalted

	// OutcomeFailed means the branch is abandoned with a BranchError.
	OutcomeFailed
)

//go:generate go tool enumer -type=Outcome -trimprefix=Outcome -output=gen_outcome_enumer.go outcome.go

// HaltReason tells why a branch of the walk stopped without error.
type HaltReason int

const (
	// HaltAlreadyCommitted: the slot was committed before, by this or an earlier seed.
	HaltAlreadyCommitted HaltReason = iota

	// HaltScalar: scalars don't change layout.
	HaltScalar

	// HaltKernelUnsupported: no kernel variant of the node supports the candidate at the slot.
	HaltKernelUnsupported

	// HaltNoAnchors: the node has nothing to propagate to.
	HaltNoAnchors

	// HaltSameFormat: the slot already has the candidate format.
	HaltSameFormat

	// HaltBoundary: a Data or NetOutput of the main graph, which keeps the layout of the model interface.
	HaltBoundary

	// HaltIncompatible: the candidate doesn't tile the slot's origin format or rank.
	HaltIncompatible

	// HaltException: the slot is excluded from the node's format-agnostic rule.
	HaltException

	// HaltVisited: a penetrating node was already crossed with the same candidate.
	HaltVisited

	// HaltWeightsDisabled: weight propagation is disabled by configuration.
	HaltWeightsDisabled
)

//go:generate go tool enumer -type=HaltReason -trimprefix=Halt -transform=snake -text -output=gen_haltreason_enumer.go outcome.go
