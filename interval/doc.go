// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package interval implements the genomic interval algebra used to
// build consensus region sets: merging, slop (extension), removal of
// records that overlap a mask, and per-region overlap counting.
//
// Coordinates are 0-based and half-open, as in BED files.
package interval
