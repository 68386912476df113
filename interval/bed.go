// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package interval

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one line of a BED-like file: the interval in the first
// three columns plus whatever columns follow, kept verbatim.
type Record struct {
	Interval
	Fields []string
}

// Name returns the 4th BED column, or "" if there is none.
func (r Record) Name() string {
	if len(r.Fields) > 0 {
		return r.Fields[0]
	}
	return ""
}

// Intervals returns the intervals of recs in the same order.
func Intervals(recs []Record) []Interval {
	ivs := make([]Interval, len(recs))
	for i, r := range recs {
		ivs[i] = r.Interval
	}
	return ivs
}

// ReadBED reads tab-separated BED records. Blank lines and "#",
// "track" and "browser" header lines are skipped.
func ReadBED(r io.Reader) ([]Record, error) {
	var recs []Record
	err := scanBED(r, func(line string) error {
		rec, err := parseBEDLine(line)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// scanBED calls fn for each data line of a BED file. Errors returned
// by fn are prefixed with the line number.
func scanBED(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" ||
			strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") ||
			strings.HasPrefix(line, "browser") {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	return scanner.Err()
}

func parseBEDLine(line string) (Record, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 3 {
		return Record{}, fmt.Errorf("%w: %d columns (need at least 3)", ErrMalformed, len(cols))
	}
	start, err := strconv.Atoi(cols[1])
	if err != nil {
		return Record{}, fmt.Errorf("%w: start %q", ErrMalformed, cols[1])
	}
	end, err := strconv.Atoi(cols[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: end %q", ErrMalformed, cols[2])
	}
	if start < 0 || end < start {
		return Record{}, fmt.Errorf("%w: bad coordinates %d-%d", ErrMalformed, start, end)
	}
	rec := Record{Interval: Interval{Chrom: cols[0], Start: start, End: end}}
	if len(cols) > 3 {
		rec.Fields = cols[3:]
	}
	if len(cols) > 5 && len(cols[5]) == 1 && (cols[5] == "+" || cols[5] == "-") {
		rec.Strand = cols[5][0]
	}
	return rec, nil
}

// WriteBED writes recs, one per line, with their extra fields.
func WriteBED(w io.Writer, recs []Record) error {
	bufw := bufio.NewWriter(w)
	for _, r := range recs {
		bufw.WriteString(r.Chrom)
		bufw.WriteByte('\t')
		bufw.WriteString(strconv.Itoa(r.Start))
		bufw.WriteByte('\t')
		bufw.WriteString(strconv.Itoa(r.End))
		for _, f := range r.Fields {
			bufw.WriteByte('\t')
			bufw.WriteString(f)
		}
		bufw.WriteByte('\n')
	}
	return bufw.Flush()
}
