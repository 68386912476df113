package chipseq

import (
	"errors"
	"math"
	"path/filepath"

	"gopkg.in/check.v1"
)

type comparisonSuite struct{}

var _ = check.Suite(&comparisonSuite{})

const testComparisonCSV = `comparison_name,sample_name,comparison_side,sample_group,comparison_genome
B,s4,1,treated,hg38
A,s1,1,treated,hg38
A,s2,1,treated,hg38
A,s3,0,control,hg38
B,s5,1,treated,hg38
B,s6,1,treated,hg38
`

func (s *comparisonSuite) TestLoad(c *check.C) {
	path := filepath.Join(c.MkDir(), "comparisons.csv")
	writeFile(c, path, testComparisonCSV)
	t, err := LoadComparisonTable(path)
	c.Assert(err, check.IsNil)
	c.Check(t.Comparisons(), check.DeepEquals, []string{"B", "A"})
	c.Check(t.SortedComparisons(), check.DeepEquals, []string{"A", "B"})
	c.Check(t.RequireColumns(peakCallingColumns...), check.IsNil)
	c.Check(t.Rows(), check.HasLen, 6)

	signal, background, err := t.Sides("A")
	c.Check(err, check.IsNil)
	c.Check(signal, check.DeepEquals, []string{"s1", "s2"})
	c.Check(background, check.DeepEquals, []string{"s3"})

	_, _, err = t.Sides("B")
	c.Check(errors.Is(err, ErrInvalidComparison), check.Equals, true)

	_, _, err = t.Sides("Z")
	c.Check(errors.Is(err, ErrUnknownComparison), check.Equals, true)

	genome, err := t.Genome("A")
	c.Check(err, check.IsNil)
	c.Check(genome, check.Equals, "hg38")
}

func (s *comparisonSuite) TestMissingColumns(c *check.C) {
	path := filepath.Join(c.MkDir(), "comparisons.csv")
	writeFile(c, path, "comparison_name,sample_name\nA,s1\n")
	t, err := LoadComparisonTable(path)
	c.Assert(err, check.IsNil)
	err = t.RequireColumns(peakCallingColumns...)
	c.Check(errors.Is(err, ErrSchema), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*missing some of the following columns: comparison_name,sample_name,comparison_side,sample_group`)

	_, err = t.Genome("A")
	c.Check(errors.Is(err, ErrSchema), check.Equals, true)

	writeFile(c, path, "sample_name\ns1\n")
	_, err = LoadComparisonTable(path)
	c.Check(errors.Is(err, ErrSchema), check.Equals, true)
}

func (s *comparisonSuite) TestBadSide(c *check.C) {
	path := filepath.Join(c.MkDir(), "comparisons.csv")
	writeFile(c, path, "comparison_name,sample_name,comparison_side,sample_group\nA,s1,one,x\n")
	_, err := LoadComparisonTable(path)
	c.Check(errors.Is(err, ErrSchema), check.Equals, true)
}

func (s *comparisonSuite) TestBlankSide(c *check.C) {
	path := filepath.Join(c.MkDir(), "comparisons.csv")
	writeFile(c, path, "comparison_name,sample_name,comparison_side,sample_group\nA,s1,1,x\nA,s2,,x\nA,s3,-1,y\n")
	t, err := LoadComparisonTable(path)
	c.Assert(err, check.IsNil)
	c.Check(math.IsNaN(t.Rows()[1].Side), check.Equals, true)
	signal, background, err := t.Sides("A")
	c.Check(err, check.IsNil)
	c.Check(signal, check.DeepEquals, []string{"s1"})
	c.Check(background, check.DeepEquals, []string{"s3"})
}

func (s *comparisonSuite) TestGenome(c *check.C) {
	t := NewComparisonTable([]ComparisonRow{
		{Comparison: "A", Sample: "s1", Side: 1, Genome: "hg38"},
		{Comparison: "A", Sample: "s2", Side: 0, Genome: "hg19"},
		{Comparison: "B", Sample: "s3", Side: 1, Genome: "mm10"},
		{Comparison: "B", Sample: "s4", Side: 0, Genome: ""},
		{Comparison: "C", Sample: "s5", Side: 1, Genome: "mm10"},
		{Comparison: "C", Sample: "s6", Side: 0, Genome: "mm10"},
	})
	for _, name := range []string{"A", "B", "Z"} {
		_, err := t.Genome(name)
		c.Check(errors.Is(err, ErrAmbiguousGenome), check.Equals, true, check.Commentf("%s", name))
	}
	genome, err := t.Genome("C")
	c.Check(err, check.IsNil)
	c.Check(genome, check.Equals, "mm10")
}
