// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package interval

import (
	"github.com/biogo/store/interval"
)

// treeEntry adapts a record to biogo's integer interval tree.
type treeEntry struct {
	start, end int
	id         uintptr
}

func (e treeEntry) Overlap(b interval.IntRange) bool {
	return e.start < b.End && b.Start < e.end
}
func (e treeEntry) ID() uintptr { return e.id }
func (e treeEntry) Range() interval.IntRange {
	return interval.IntRange{Start: e.start, End: e.end}
}

type query struct{ start, end int }

func (q query) Overlap(b interval.IntRange) bool {
	return q.start < b.End && b.Start < q.end
}

// CountOverlaps returns, for each region, the number of records that
// overlap it (bedtools intersect -a regions -b records -wa -c).
func CountOverlaps(regions []Interval, recs []Record) ([]int, error) {
	trees := map[string]*interval.IntTree{}
	for i, r := range recs {
		if r.End <= r.Start {
			continue
		}
		t := trees[r.Chrom]
		if t == nil {
			t = &interval.IntTree{}
			trees[r.Chrom] = t
		}
		err := t.Insert(treeEntry{start: r.Start, end: r.End, id: uintptr(i)}, true)
		if err != nil {
			return nil, err
		}
	}
	for _, t := range trees {
		t.AdjustRanges()
	}
	counts := make([]int, len(regions))
	for i, region := range regions {
		t := trees[region.Chrom]
		if t == nil {
			continue
		}
		counts[i] = len(t.Get(query{region.Start, region.End}))
	}
	return counts, nil
}
