// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	colComparison = "comparison_name"
	colSample     = "sample_name"
	colSide       = "comparison_side"
	colGroup      = "sample_group"
	colGenome     = "comparison_genome"
)

var peakCallingColumns = []string{colComparison, colSample, colSide, colGroup}

// ComparisonRow is one (comparison, sample) row of a comparison
// table. Side is NaN when the comparison_side cell is blank.
type ComparisonRow struct {
	Comparison string
	Sample     string
	Side       float64
	Group      string
	Genome     string
}

// ComparisonTable groups samples into named signal-vs-background
// comparisons.
type ComparisonTable struct {
	rows    []ComparisonRow
	columns map[string]bool
}

// NewComparisonTable returns a table holding rows. columns lists the
// column names the table is considered to have; if empty, all five
// standard columns are assumed.
func NewComparisonTable(rows []ComparisonRow, columns ...string) *ComparisonTable {
	if len(columns) == 0 {
		columns = []string{colComparison, colSample, colSide, colGroup, colGenome}
	}
	t := &ComparisonTable{
		rows:    append([]ComparisonRow(nil), rows...),
		columns: map[string]bool{},
	}
	for _, col := range columns {
		t.columns[col] = true
	}
	return t
}

// LoadComparisonTable reads a comparison table from a CSV file.
func LoadComparisonTable(path string) (*ComparisonTable, error) {
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	df := dataframe.ReadCSV(f,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil))
	t, err := comparisonTableFromDataFrame(df)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func comparisonTableFromDataFrame(df dataframe.DataFrame) (*ComparisonTable, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	names := df.Names()
	cols := make(map[string][]string, len(names))
	for _, name := range names {
		cols[name] = df.Col(name).Records()
	}
	if _, ok := cols[colComparison]; !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrSchema, colComparison)
	}
	cell := func(col string, i int) string {
		vals, ok := cols[col]
		if !ok || isBlank(vals[i]) {
			return ""
		}
		return strings.TrimSpace(vals[i])
	}
	rows := make([]ComparisonRow, df.Nrow())
	for i := range rows {
		side := math.NaN()
		if s := cell(colSide, i); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %s %q is not a number", ErrSchema, i+1, colSide, s)
			}
			side = v
		}
		rows[i] = ComparisonRow{
			Comparison: cell(colComparison, i),
			Sample:     cell(colSample, i),
			Side:       side,
			Group:      cell(colGroup, i),
			Genome:     cell(colGenome, i),
		}
	}
	return NewComparisonTable(rows, names...), nil
}

func isBlank(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NaN", "NA", "nan":
		return true
	}
	return false
}

// Rows returns a copy of the table rows in file order.
func (t *ComparisonTable) Rows() []ComparisonRow {
	return append([]ComparisonRow(nil), t.rows...)
}

// RequireColumns returns an ErrSchema error if any of cols is absent.
func (t *ComparisonTable) RequireColumns(cols ...string) error {
	var missing []string
	for _, col := range cols {
		if !t.columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: comparison table is missing some of the following columns: %s", ErrSchema, strings.Join(cols, ","))
	}
	return nil
}

// Comparisons returns the distinct comparison names in order of first
// appearance.
func (t *ComparisonTable) Comparisons() []string {
	var names []string
	seen := map[string]bool{}
	for _, row := range t.rows {
		if row.Comparison == "" || seen[row.Comparison] {
			continue
		}
		seen[row.Comparison] = true
		names = append(names, row.Comparison)
	}
	return names
}

// SortedComparisons returns the distinct comparison names in lexical
// order.
func (t *ComparisonTable) SortedComparisons() []string {
	names := t.Comparisons()
	sort.Strings(names)
	return names
}

// Sides returns the sample names on the signal side (side == 1) and
// the background side (side < 1) of the named comparison. It returns
// ErrInvalidComparison unless the comparison's rows carry exactly two
// distinct side values.
func (t *ComparisonTable) Sides(name string) (signal, background []string, err error) {
	distinct := map[float64]bool{}
	found := false
	for _, row := range t.rows {
		if row.Comparison != name {
			continue
		}
		found = true
		if math.IsNaN(row.Side) {
			continue
		}
		distinct[row.Side] = true
		if row.Side == 1 {
			signal = append(signal, row.Sample)
		} else if row.Side < 1 {
			background = append(background, row.Sample)
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownComparison, name)
	}
	if len(distinct) != 2 {
		return nil, nil, fmt.Errorf("%w: comparison %q does not contain two sides", ErrInvalidComparison, name)
	}
	return signal, background, nil
}

// Genome returns the single genome assembly of the named comparison.
func (t *ComparisonTable) Genome(name string) (string, error) {
	if !t.columns[colGenome] {
		return "", fmt.Errorf("%w: no %s column", ErrSchema, colGenome)
	}
	genome := ""
	for _, row := range t.rows {
		if row.Comparison != name {
			continue
		}
		if row.Genome == "" || (genome != "" && row.Genome != genome) {
			return "", fmt.Errorf("%w: could not determine genome of comparison %q", ErrAmbiguousGenome, name)
		}
		genome = row.Genome
	}
	if genome == "" {
		return "", fmt.Errorf("%w: could not determine genome of comparison %q", ErrAmbiguousGenome, name)
	}
	return genome, nil
}
