// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package interval

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed interval")

// Interval is a genomic interval [Start, End) on Chrom. Strand is
// '+', '-', or 0 if unknown.
type Interval struct {
	Chrom  string
	Start  int
	End    int
	Strand byte
}

// String returns the "chrom:start-end" form used as a region key.
func (iv Interval) String() string {
	return iv.Chrom + ":" + strconv.Itoa(iv.Start) + "-" + strconv.Itoa(iv.End)
}

// Len returns the number of bases covered by iv.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Overlaps reports whether iv and other share at least one base.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Chrom == other.Chrom && iv.Start < other.End && other.Start < iv.End
}

// Parse parses a "chrom:start-end" region key.
func Parse(s string) (Interval, error) {
	colon := strings.LastIndexByte(s, ':')
	if colon < 1 {
		return Interval{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	dash := strings.IndexByte(s[colon:], '-')
	if dash < 0 {
		return Interval{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	dash += colon
	start, err := strconv.Atoi(s[colon+1 : dash])
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q: %s", ErrMalformed, s, err)
	}
	end, err := strconv.Atoi(s[dash+1:])
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q: %s", ErrMalformed, s, err)
	}
	if start < 0 || end < start {
		return Interval{}, fmt.Errorf("%w: %q: bad coordinates", ErrMalformed, s)
	}
	return Interval{Chrom: s[:colon], Start: start, End: end}, nil
}

func less(a, b Interval) bool {
	if a.Chrom != b.Chrom {
		return a.Chrom < b.Chrom
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}

// Sort sorts intervals by chrom, start, end.
func Sort(ivs []Interval) {
	sort.SliceStable(ivs, func(i, j int) bool { return less(ivs[i], ivs[j]) })
}

// SortRecords sorts records by chrom, start, end, keeping the input
// order of records with equal coordinates.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool { return less(recs[i].Interval, recs[j].Interval) })
}

// Merge returns the union of ivs as a sorted list of disjoint
// intervals. Overlapping and book-ended intervals are coalesced into
// one. Strand is not retained. The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, len(ivs))
	for i, iv := range ivs {
		sorted[i] = Interval{Chrom: iv.Chrom, Start: iv.Start, End: iv.End}
	}
	Sort(sorted)
	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Chrom == last.Chrom && iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Disjoint reports whether ivs is sorted and no two intervals overlap.
func Disjoint(ivs []Interval) bool {
	for i := 1; i < len(ivs); i++ {
		prev, cur := ivs[i-1], ivs[i]
		if less(cur, prev) || prev.Overlaps(cur) {
			return false
		}
	}
	return true
}

// ChromSizes returns the length of a chromosome, and false if it is
// not known.
type ChromSizes func(chrom string) (int, bool)

// Slop extends each interval by ext bases on both sides, clipping at
// zero and, when the chromosome length is known, at its end.
func Slop(ivs []Interval, ext int, sizes ChromSizes) []Interval {
	out := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		iv.Start -= ext
		if iv.Start < 0 {
			iv.Start = 0
		}
		iv.End += ext
		if sizes != nil {
			if size, ok := sizes(iv.Chrom); ok && iv.End > size {
				iv.End = size
			}
		}
		if iv.End < iv.Start {
			iv.End = iv.Start
		}
		out = append(out, iv)
	}
	return out
}

// DropChroms returns the intervals that are not on any of the given
// chromosomes, preserving order.
func DropChroms(ivs []Interval, chroms ...string) []Interval {
	drop := make(map[string]bool, len(chroms))
	for _, c := range chroms {
		drop[c] = true
	}
	out := ivs[:0:0]
	for _, iv := range ivs {
		if !drop[iv.Chrom] {
			out = append(out, iv)
		}
	}
	return out
}
