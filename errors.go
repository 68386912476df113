// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import "errors"

var (
	// ErrSchema means the comparison table lacks a required column or
	// has a comparison_side value that is not a number.
	ErrSchema = errors.New("comparison table schema error")

	// ErrInvalidComparison means a comparison does not have exactly
	// two sides, or one of its sides has no samples.
	ErrInvalidComparison = errors.New("invalid comparison")

	ErrMissingPeakFile    = errors.New("missing peak file")
	ErrUnreadablePeakFile = errors.New("unreadable peak file")
	ErrEmptyPeakFile      = errors.New("peak file has no records")
	ErrAmbiguousGenome    = errors.New("comparison genome is not uniquely determined")
	ErrNoBlacklist        = errors.New("no blacklist available")
	ErrUnknownComparison  = errors.New("unknown comparison")
	ErrNoConsensus        = errors.New("consensus region set has not been built or loaded")
	ErrConfig             = errors.New("invalid configuration")

	// ErrConsensusChanged means the consensus file read back after
	// writing does not match what was written.
	ErrConsensusChanged = errors.New("consensus region set changed on disk")
)
