// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"

	"github.com/ngs-toolkit/chipseq/interval"
	"gopkg.in/check.v1"
)

type supportSuite struct{}

var _ = check.Suite(&supportSuite{})

var supportSites = []interval.Interval{
	{Chrom: "chr1", Start: 100, End: 200},
	{Chrom: "chr1", Start: 300, End: 400},
	{Chrom: "chr2", Start: 0, End: 50},
}

func tableABC() *ComparisonTable {
	return NewComparisonTable(append(tableAB().Rows(),
		ComparisonRow{Comparison: "C", Sample: "s7", Side: 1, Group: "treated", Genome: "hg38"},
		ComparisonRow{Comparison: "C", Sample: "s8", Side: 0, Group: "control", Genome: "hg38"},
	))
}

func (s *supportSuite) setup(c *check.C) chipSetup {
	a := newTestAnalysis(c)
	dir := peakDirOf(a)
	writeFile(c, nativePeakFile(dir, "A", PeakTypeMACS2), bed(
		"chr1\t150\t160\tA_1",
		"chr1\t170\t180\tA_2",
		"chr2\t10\t20\tA_3",
	))
	writeFile(c, bedPeakFile(dir, "A", PeakTypeHOMERFactor), bed("chr1\t350\t360\tchr1:350-360\t2\t+"))
	writeFile(c, nativePeakFile(dir, "B", PeakTypeMACS2), bed("chr1\t199\t301\tB_1"))
	writeFile(c, nativePeakFile(dir, "C", PeakTypeMACS2), bed("chr3\t0\t10\tC_1"))
	cs := newChIPSeq(c, a, DefaultConfig())
	cs.chip.Sites = supportSites
	return cs
}

func (s *supportSuite) TestCalculate(c *check.C) {
	cs := s.setup(c)
	err := cs.chip.CalculatePeakSupport(tableABC())
	c.Assert(err, check.IsNil)
	m := cs.chip.Support
	c.Assert(m, check.NotNil)

	var labels []string
	for _, col := range m.Columns {
		labels = append(labels, col.Comparison+"/"+col.PeakType)
	}
	c.Check(labels, check.DeepEquals, []string{"A/macs2", "A/homer_factor", "B/macs2", "C/macs2"})
	c.Check(m.Columns[0].Counts, check.DeepEquals, []int{2, 0, 1})
	c.Check(m.Columns[2].Counts, check.DeepEquals, []int{1, 1, 0})
	c.Check(m.Support, check.DeepEquals, []float64{0.5, 0.5, 0.25})
	for _, v := range m.Support {
		c.Check(v >= 0 && v <= 1, check.Equals, true)
	}
	// A/homer_histone, B/homer_*, C/homer_*
	c.Check(cs.warnings(), check.HasLen, 5)

	results := cs.analysis.resultsDir
	c.Check(readFile(c, filepath.Join(results, "proj_peaks.binary_overlap_support.csv")), check.Equals, `comparison,A,A,B,C
peak_type,macs2,homer_factor,macs2,macs2
chr1:100-200,2,0,1,0
chr1:300-400,0,1,1,0
chr2:0-50,1,0,0,0
`)
	c.Check(readFile(c, filepath.Join(results, "proj_peaks.support.csv")), check.Equals, `comparison,A,A,B,C,support
peak_type,macs2,homer_factor,macs2,macs2,
chr1:100-200,2,0,1,0,0.5
chr1:300-400,0,1,1,0,0.5
chr2:0-50,1,0,0,0,0.25
`)
}

func (s *supportSuite) TestSupportedPeaks(c *check.C) {
	cs := s.setup(c)
	c.Assert(cs.chip.CalculatePeakSupport(tableABC()), check.IsNil)

	supported, err := cs.chip.SupportedPeaks([]string{"A", "B"})
	c.Check(err, check.IsNil)
	c.Check(supported, check.DeepEquals, []bool{true, true, true})

	supported, err = cs.chip.SupportedPeaks([]string{"B"})
	c.Check(err, check.IsNil)
	c.Check(supported, check.DeepEquals, []bool{true, true, false})

	supported, err = cs.chip.SupportedPeaks([]string{"C"})
	c.Check(err, check.IsNil)
	c.Check(supported, check.DeepEquals, []bool{false, false, false})

	_, err = cs.chip.SupportedPeaks([]string{"A", "D"})
	c.Check(errors.Is(err, ErrUnknownComparison), check.Equals, true)
}

func (s *supportSuite) TestReadSupportMatrix(c *check.C) {
	cs := s.setup(c)
	c.Assert(cs.chip.CalculatePeakSupport(tableABC()), check.IsNil)
	results := cs.analysis.resultsDir
	for _, fnm := range []string{"proj_peaks.support.csv", "proj_peaks.binary_overlap_support.csv"} {
		m, err := loadSupportMatrix(filepath.Join(results, fnm))
		c.Assert(err, check.IsNil)
		c.Check(m, check.DeepEquals, cs.chip.Support, check.Commentf("%s", fnm))
	}
	want := cs.chip.Support
	cs.chip.Support = nil
	c.Assert(cs.chip.LoadSupport(filepath.Join(results, "proj_peaks.support.csv")), check.IsNil)
	c.Check(cs.chip.Support, check.DeepEquals, want)

	_, err := ReadSupportMatrix(strings.NewReader("region,A\nchr1:1-2,1\n"))
	c.Check(err, check.ErrorMatches, `.*missing comparison/peak_type header rows`)
	_, err = ReadSupportMatrix(strings.NewReader("comparison,A\npeak_type,macs2\nchr1:1-2,x\n"))
	c.Check(err, check.ErrorMatches, `support matrix: row 3: count "x".*`)
}

func (s *supportSuite) TestNoConsensus(c *check.C) {
	cs := newChIPSeq(c, newTestAnalysis(c), DefaultConfig())
	err := cs.chip.CalculatePeakSupport(tableA())
	c.Check(err, check.Equals, ErrNoConsensus)
	_, err = cs.chip.SupportedPeaks([]string{"A"})
	c.Check(err, check.NotNil)
}

func (s *supportSuite) TestNoPeakFiles(c *check.C) {
	cs := newChIPSeq(c, newTestAnalysis(c), DefaultConfig())
	cs.chip.Sites = supportSites
	c.Assert(cs.chip.CalculatePeakSupport(tableA()), check.IsNil)
	c.Check(cs.chip.Support.Columns, check.HasLen, 0)
	c.Check(cs.chip.Support.Support, check.DeepEquals, []float64{0, 0, 0})
	c.Check(cs.warnings(), check.HasLen, 3)
}

func (s *supportSuite) TestNumpy(c *check.C) {
	m := newSupportMatrix(supportSites, []SupportColumn{
		{Comparison: "A", PeakType: PeakTypeMACS2, Counts: []int{2, 0, 1}},
		{Comparison: "B", PeakType: PeakTypeMACS2, Counts: []int{1, 1, 0}},
	})
	var buf bytes.Buffer
	c.Assert(m.WriteNumpy(&buf), check.IsNil)
	c.Check(strings.HasPrefix(buf.String(), "\x93NUMPY"), check.Equals, true)
	c.Check(buf.Len() > 6*4, check.Equals, true)

	buf.Reset()
	c.Assert(m.WriteColumnLabels(&buf), check.IsNil)
	c.Check(buf.String(), check.Equals, "index,comparison,peak_type\n0,A,macs2\n1,B,macs2\n")
}

func (s *supportSuite) TestStats(c *check.C) {
	m := &SupportMatrix{Support: []float64{0.5, 0.25, 0.5}}
	st := m.Stats()
	c.Check(st.Regions, check.Equals, 3)
	c.Check(math.Abs(st.Mean-5.0/12) < 1e-9, check.Equals, true)
	c.Check(st.StdDev > 0, check.Equals, true)
	c.Check(st.Q1, check.Equals, 0.25)
	c.Check(st.Median, check.Equals, 0.5)
	c.Check(st.Q3, check.Equals, 0.5)

	c.Check((&SupportMatrix{}).Stats(), check.Equals, SupportStats{})
}
