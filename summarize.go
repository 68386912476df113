package chipseq

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	log "github.com/sirupsen/logrus"
)

// PeakCount is the number of peaks one caller found for one
// comparison. Count is NaN if the peak file does not exist.
type PeakCount struct {
	Comparison string
	PeakType   string
	Count      float64
}

// PeakCounts is the result of SummarizePeaks, one entry per
// comparison and peak type.
type PeakCounts []PeakCount

// DataFrame returns the counts as a table with columns
// comparison_name, peak_type, peak_counts. Missing counts are blank.
func (pcs PeakCounts) DataFrame() dataframe.DataFrame {
	comparisons := make([]string, len(pcs))
	types := make([]string, len(pcs))
	counts := make([]string, len(pcs))
	for i, pc := range pcs {
		comparisons[i] = pc.Comparison
		types[i] = pc.PeakType
		if !math.IsNaN(pc.Count) {
			counts[i] = strconv.FormatFloat(pc.Count, 'f', -1, 64)
		}
	}
	return dataframe.New(
		series.New(comparisons, series.String, "comparison_name"),
		series.New(types, series.String, "peak_type"),
		series.New(counts, series.String, "peak_counts"),
	)
}

// WriteCSV writes pcs as the CSV form of DataFrame.
func (pcs PeakCounts) WriteCSV(w io.Writer) error {
	return pcs.DataFrame().WriteCSV(w)
}

// SummarizePeaks counts the peaks of every comparison and caller.
// With Summary.Filtered, the blacklist-filtered BED files are
// counted, otherwise the callers' own output (HOMER output is
// converted to BED first).
//
// Each (comparison, peak type) pair yields exactly one row: the
// number of records, 0 if the file is empty, or NaN if the file is
// missing and Summary.Permissive is set. A missing file is an error
// otherwise.
func (c *ChIPSeq) SummarizePeaks(table *ComparisonTable) (PeakCounts, error) {
	err := table.RequireColumns(peakCallingColumns...)
	if err != nil {
		return nil, err
	}
	dir, err := c.peakCallingDir()
	if err != nil {
		return nil, err
	}
	cfg := c.cfg.Summary
	var counts PeakCounts
	for _, comparison := range table.SortedComparisons() {
		for _, peakType := range peakTypes {
			logger := c.logger.WithFields(log.Fields{"comparison": comparison, "peak_type": peakType})
			n, err := c.countPeaks(dir, comparison, peakType)
			if errors.Is(err, ErrMissingPeakFile) && cfg.Permissive {
				logger.Warn(err)
				n = math.NaN()
			} else if err != nil {
				return nil, err
			}
			counts = append(counts, PeakCount{Comparison: comparison, PeakType: peakType, Count: n})
		}
	}
	return counts, nil
}

func (c *ChIPSeq) countPeaks(dir, comparison, peakType string) (float64, error) {
	var path string
	if c.cfg.Summary.Filtered {
		path = filteredPeakFile(dir, comparison, peakType)
	} else if peakType == PeakTypeMACS2 {
		path = nativePeakFile(dir, comparison, peakType)
	} else {
		native := nativePeakFile(dir, comparison, peakType)
		path = bedPeakFile(dir, comparison, peakType)
		err := HOMERToBED(native, path)
		if errors.Is(err, ErrEmptyPeakFile) {
			return 0, nil
		} else if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: peak files for comparison %q with %q parameters don't exist: %s", ErrMissingPeakFile, comparison, peakType, err)
		} else if err != nil {
			return 0, err
		}
	}
	recs, err := readBEDFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: peak files for comparison %q with %q parameters don't exist: %s", ErrMissingPeakFile, comparison, peakType, err)
	} else if err != nil {
		return 0, err
	}
	return float64(len(recs)), nil
}

type summarizePeaksCmd struct {
	commonFlags
}

func (cmd *summarizePeaksCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.register(flags)
	outputDir := flags.String("output-dir", "", "peak calling output `dir` (default from config)")
	filtered := flags.Bool("filtered", true, "count blacklist-filtered peaks")
	permissive := flags.Bool("permissive", true, "record missing peak files as NaN instead of failing")
	outputFilename := flags.String("o", "-", "output `file` (csv)")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	chip, err := cmd.setup(stderr, func(cfg *Config) {
		if *outputDir != "" {
			cfg.PeakCalling.OutputDir = *outputDir
		}
		if cmd.isSet("filtered") {
			cfg.Summary.Filtered = *filtered
		}
		if cmd.isSet("permissive") {
			cfg.Summary.Permissive = *permissive
		}
	})
	if err != nil {
		return 1
	}
	table, err := cmd.comparisonTable()
	if err != nil {
		return 1
	}
	counts, err := chip.SummarizePeaks(table)
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
	err = counts.WriteCSV(output)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
