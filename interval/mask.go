// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package interval

import (
	"sort"
)

type span struct {
	start int
	end   int
}

type maskTreeNode struct {
	span   span
	maxend int
}

// Implicit binary tree: children of node i are 2i+1 and 2i+2.
type maskTree []maskTreeNode

// Mask answers "does this interval overlap anything in the set?"
// queries, e.g., against a blacklist. Add all intervals, call Freeze,
// then call Overlaps.
type Mask struct {
	spans  map[string][]span
	itrees map[string]maskTree
	frozen bool
}

// NewMask returns a frozen mask containing ivs.
func NewMask(ivs []Interval) *Mask {
	m := &Mask{}
	for _, iv := range ivs {
		m.Add(iv.Chrom, iv.Start, iv.End)
	}
	m.Freeze()
	return m
}

func (m *Mask) Add(chrom string, start, end int) {
	if m.spans == nil {
		m.spans = map[string][]span{}
	}
	m.spans[chrom] = append(m.spans[chrom], span{start, end})
}

func (m *Mask) Freeze() {
	m.itrees = map[string]maskTree{}
	for chrom, spans := range m.spans {
		m.itrees[chrom] = m.freeze(spans)
	}
	m.frozen = true
}

// Overlaps reports whether [start, end) on chrom shares at least one
// base with an interval in the mask.
func (m *Mask) Overlaps(chrom string, start, end int) bool {
	if !m.frozen {
		panic("bug: (*Mask)Overlaps() called before Freeze()")
	}
	return m.itrees[chrom].check(0, span{start, end})
}

func (m *Mask) freeze(in []span) maskTree {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start < in[j].start
	})
	itreesize := 1
	for itreesize < len(in) {
		itreesize = itreesize * 2
	}
	itree := make(maskTree, itreesize)
	// Unused slots keep maxend 0, so check never descends into them.
	itree.importSlice(0, in)
	return itree
}

func (itree maskTree) check(root int, q span) bool {
	return root < len(itree) &&
		itree[root].maxend > q.start &&
		((itree[root].span.start < q.end && itree[root].span.end > q.start) ||
			itree.check(root*2+1, q) ||
			itree.check(root*2+2, q))
}

func (itree maskTree) importSlice(root int, in []span) int {
	mid := len(in) / 2
	node := maskTreeNode{span: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}

// ExcludeOverlapping returns the records that do not overlap any
// interval in the mask, preserving order (bedtools intersect -v).
func ExcludeOverlapping(recs []Record, m *Mask) []Record {
	var out []Record
	for _, r := range recs {
		if !m.Overlaps(r.Chrom, r.Start, r.End) {
			out = append(out, r)
		}
	}
	return out
}
