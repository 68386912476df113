// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bufio"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/ngs-toolkit/chipseq/interval"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// SupportColumn holds, for each consensus region, the number of peaks
// of one comparison and peak type that overlap it.
type SupportColumn struct {
	Comparison string
	PeakType   string
	Counts     []int
}

// SupportMatrix is a region by (comparison, peak type) table of
// overlap counts. Support[i] is the fraction of columns with a
// nonzero count for region i.
type SupportMatrix struct {
	Regions []interval.Interval
	Columns []SupportColumn
	Support []float64
}

func newSupportMatrix(regions []interval.Interval, columns []SupportColumn) *SupportMatrix {
	m := &SupportMatrix{Regions: regions, Columns: columns}
	m.computeSupport()
	return m
}

// computeSupport fills in Support. Regions get 0 if there are no
// columns at all.
func (m *SupportMatrix) computeSupport() {
	m.Support = make([]float64, len(m.Regions))
	if len(m.Columns) == 0 {
		return
	}
	for i := range m.Regions {
		nonzero := 0
		for _, col := range m.Columns {
			if col.Counts[i] > 0 {
				nonzero++
			}
		}
		m.Support[i] = float64(nonzero) / float64(len(m.Columns))
	}
}

// SupportedPeaks reports, for each region, whether any column of the
// given comparisons has a nonzero count. It returns
// ErrUnknownComparison if a comparison has no column.
func (m *SupportMatrix) SupportedPeaks(comparisons []string) ([]bool, error) {
	var cols []SupportColumn
	for _, name := range comparisons {
		found := false
		for _, col := range m.Columns {
			if col.Comparison == name {
				cols = append(cols, col)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q has no column in the support matrix", ErrUnknownComparison, name)
		}
	}
	supported := make([]bool, len(m.Regions))
	for i := range supported {
		for _, col := range cols {
			if col.Counts[i] > 0 {
				supported[i] = true
				break
			}
		}
	}
	return supported, nil
}

// WriteCSV writes the matrix with two header rows (comparison,
// peak_type) and the region key in the first column. With
// withSupport, the support fraction is appended as a last column.
func (m *SupportMatrix) WriteCSV(w io.Writer, withSupport bool) error {
	cw := csv.NewWriter(w)
	ncols := len(m.Columns) + 1
	if withSupport {
		ncols++
	}
	comparisons := make([]string, 0, ncols)
	types := make([]string, 0, ncols)
	comparisons = append(comparisons, "comparison")
	types = append(types, "peak_type")
	for _, col := range m.Columns {
		comparisons = append(comparisons, col.Comparison)
		types = append(types, col.PeakType)
	}
	if withSupport {
		comparisons = append(comparisons, "support")
		types = append(types, "")
	}
	cw.Write(comparisons)
	cw.Write(types)
	row := make([]string, ncols)
	for i, region := range m.Regions {
		row[0] = region.String()
		for j, col := range m.Columns {
			row[j+1] = strconv.Itoa(col.Counts[i])
		}
		if withSupport {
			row[ncols-1] = strconv.FormatFloat(m.Support[i], 'g', -1, 64)
		}
		cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

// ReadSupportMatrix reads a matrix written by WriteCSV, with or
// without the support column. Support is recomputed from the counts
// when the column is absent.
func ReadSupportMatrix(r io.Reader) (*SupportMatrix, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 || len(records[0]) < 1 || records[0][0] != "comparison" || records[1][0] != "peak_type" {
		return nil, errors.New("support matrix: missing comparison/peak_type header rows")
	}
	header, types := records[0], records[1]
	supportCol := -1
	m := &SupportMatrix{}
	for j := 1; j < len(header); j++ {
		if header[j] == "support" && types[j] == "" {
			supportCol = j
			continue
		}
		m.Columns = append(m.Columns, SupportColumn{Comparison: header[j], PeakType: types[j]})
	}
	rows := records[2:]
	m.Regions = make([]interval.Interval, len(rows))
	for k := range m.Columns {
		m.Columns[k].Counts = make([]int, len(rows))
	}
	if supportCol >= 0 {
		m.Support = make([]float64, len(rows))
	}
	for i, row := range rows {
		m.Regions[i], err = interval.Parse(row[0])
		if err != nil {
			return nil, fmt.Errorf("support matrix: row %d: %w", i+3, err)
		}
		k := 0
		for j := 1; j < len(row); j++ {
			if j == supportCol {
				m.Support[i], err = strconv.ParseFloat(row[j], 64)
				if err != nil {
					return nil, fmt.Errorf("support matrix: row %d: support %q: %w", i+3, row[j], err)
				}
				continue
			}
			m.Columns[k].Counts[i], err = strconv.Atoi(row[j])
			if err != nil {
				return nil, fmt.Errorf("support matrix: row %d: count %q: %w", i+3, row[j], err)
			}
			k++
		}
	}
	if supportCol < 0 {
		m.computeSupport()
	}
	return m, nil
}

// WriteNumpy writes the count matrix (regions x columns) as an int32
// .npy array.
func (m *SupportMatrix) WriteNumpy(w io.Writer) error {
	bufw := bufio.NewWriter(w)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	rows, cols := len(m.Regions), len(m.Columns)
	out := make([]int32, rows*cols)
	for j, col := range m.Columns {
		for i, n := range col.Counts {
			out[i*cols+j] = int32(n)
		}
	}
	npw.Shape = []int{rows, cols}
	err = npw.WriteInt32(out)
	if err != nil {
		return err
	}
	return bufw.Flush()
}

// WriteColumnLabels writes one "index,comparison,peak_type" line per
// column of the numpy matrix.
func (m *SupportMatrix) WriteColumnLabels(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"index", "comparison", "peak_type"})
	for j, col := range m.Columns {
		cw.Write([]string{strconv.Itoa(j), col.Comparison, col.PeakType})
	}
	cw.Flush()
	return cw.Error()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// SupportStats summarizes the distribution of the support fraction.
type SupportStats struct {
	Regions int
	Mean    float64
	StdDev  float64
	Q1      float64
	Median  float64
	Q3      float64
}

func (m *SupportMatrix) Stats() SupportStats {
	st := SupportStats{Regions: len(m.Support)}
	if len(m.Support) == 0 {
		return st
	}
	sorted := append([]float64(nil), m.Support...)
	sort.Float64s(sorted)
	st.Mean, st.StdDev = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		st.StdDev = 0
	}
	st.Q1 = stat.Quantile(0.25, stat.Empirical, sorted, nil)
	st.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	st.Q3 = stat.Quantile(0.75, stat.Empirical, sorted, nil)
	return st
}

// CalculatePeakSupport counts, for every consensus region, the peaks
// of each comparison and peak type that overlap it, then writes the
// count matrix and the matrix with the support fraction appended to
// the results directory. A peak file that is missing or cannot be
// parsed is logged and contributes no column.
func (c *ChIPSeq) CalculatePeakSupport(table *ComparisonTable) error {
	if c.Sites == nil {
		return ErrNoConsensus
	}
	err := table.RequireColumns(colComparison)
	if err != nil {
		return err
	}
	dir, err := c.peakDir()
	if err != nil {
		return err
	}
	var columns []SupportColumn
	for _, comparison := range table.Comparisons() {
		for _, peakType := range peakTypes {
			logger := c.logger.WithFields(log.Fields{"comparison": comparison, "peak_type": peakType})
			path := bedPeakFile(dir, comparison, peakType)
			recs, err := readBEDFile(path)
			if err != nil {
				logger.WithField("file", path).Warnf("peaks for comparison not found or unreadable: %s", err)
				continue
			}
			counts, err := interval.CountOverlaps(c.Sites, recs)
			if err != nil {
				return err
			}
			columns = append(columns, SupportColumn{Comparison: comparison, PeakType: peakType, Counts: counts})
		}
	}
	m := newSupportMatrix(c.Sites, columns)
	prefix := filepath.Join(c.analysis.ResultsDir(), c.analysis.Name()+"_peaks")
	err = os.MkdirAll(c.analysis.ResultsDir(), 0777)
	if err != nil {
		return err
	}
	err = writeSupportFile(prefix+".binary_overlap_support.csv", m, false)
	if err != nil {
		return err
	}
	err = writeSupportFile(prefix+".support.csv", m, true)
	if err != nil {
		return err
	}
	c.Support = m
	return nil
}

func writeSupportFile(path string, m *SupportMatrix, withSupport bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	err = m.WriteCSV(f, withSupport)
	if err != nil {
		return err
	}
	return f.Close()
}

// LoadSupport reads a support matrix file into Support.
func (c *ChIPSeq) LoadSupport(path string) error {
	m, err := loadSupportMatrix(path)
	if err != nil {
		return err
	}
	c.Support = m
	return nil
}

func loadSupportMatrix(path string) (*SupportMatrix, error) {
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadSupportMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SupportedPeaks reports, for each consensus region, whether any of
// the given comparisons has a peak overlapping it.
func (c *ChIPSeq) SupportedPeaks(comparisons []string) ([]bool, error) {
	if c.Support == nil {
		return nil, errors.New("support matrix has not been calculated or loaded")
	}
	return c.Support.SupportedPeaks(comparisons)
}

// SupportSummary logs and returns summary statistics of the support
// fraction.
func (c *ChIPSeq) SupportSummary() SupportStats {
	if c.Support == nil {
		return SupportStats{}
	}
	st := c.Support.Stats()
	c.logger.WithFields(log.Fields{
		"regions": st.Regions,
		"mean":    st.Mean,
		"stddev":  st.StdDev,
		"q1":      st.Q1,
		"median":  st.Median,
		"q3":      st.Q3,
	}).Info("peak support")
	return st
}

type supportCmd struct {
	commonFlags
}

func (cmd *supportCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.register(flags)
	peakDir := flags.String("peak-dir", "", "peak `dir` (default from config)")
	outputNpy := flags.String("output-npy", "", "also write the count matrix to numpy `file`")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	chip, err := cmd.setup(stderr, func(cfg *Config) {
		if *peakDir != "" {
			cfg.Consensus.PeakDir = *peakDir
		}
	})
	if err != nil {
		return 1
	}
	table, err := cmd.comparisonTable()
	if err != nil {
		return 1
	}
	err = chip.LoadConsensus()
	if err != nil {
		return 1
	}
	err = chip.CalculatePeakSupport(table)
	if err != nil {
		return 1
	}
	chip.SupportSummary()
	if *outputNpy != "" {
		err = writeNumpyFiles(*outputNpy, chip.Support)
		if err != nil {
			return 1
		}
	}
	return 0
}

func writeNumpyFiles(path string, m *SupportMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	err = m.WriteNumpy(f)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}
	labels, err := os.Create(strings.TrimSuffix(path, ".npy") + ".columns.csv")
	if err != nil {
		return err
	}
	defer labels.Close()
	err = m.WriteColumnLabels(labels)
	if err != nil {
		return err
	}
	return labels.Close()
}

type supportedPeaksCmd struct{}

func (cmd *supportedPeaksCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "support matrix `file` (csv)")
	comparisonList := flags.String("c", "", "comma-separated `comparisons`")
	outputFilename := flags.String("o", "-", "output `file`")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	if *inputFilename == "" || *comparisonList == "" {
		err = errors.New("both -i and -c are required")
		return 2
	}
	m, err := loadSupportMatrix(*inputFilename)
	if err != nil {
		return 1
	}
	supported, err := m.SupportedPeaks(strings.Split(*comparisonList, ","))
	if err != nil {
		return 1
	}
	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.Create(*outputFilename)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	cw := csv.NewWriter(output)
	cw.Write([]string{"region", "supported"})
	for i, region := range m.Regions {
		cw.Write([]string{region.String(), strconv.FormatBool(supported[i])})
	}
	cw.Flush()
	err = cw.Error()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
