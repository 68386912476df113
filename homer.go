package chipseq

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ngs-toolkit/chipseq/interval"
)

// HOMERToBED converts a HOMER findPeaks output file to sorted BED6:
// chrom, start, end, "chrom:start-end", -log10(p-value), strand.
//
// If the input has no peaks, an empty output file is written and
// ErrEmptyPeakFile is returned.
func HOMERToBED(input, output string) error {
	f, err := zopen(input)
	if err != nil {
		return err
	}
	defer f.Close()
	recs, err := readHOMERPeaks(f)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	err = writeBEDFile(output, recs)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("%s: %w", input, ErrEmptyPeakFile)
	}
	return nil
}

func readHOMERPeaks(r io.Reader) ([]interval.Record, error) {
	var recs []interval.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 8 {
			return nil, fmt.Errorf("line %d: %w: %d columns", lineno, interval.ErrMalformed, len(cols))
		}
		start, err := strconv.Atoi(cols[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: start %q", lineno, interval.ErrMalformed, cols[2])
		}
		end, err := strconv.Atoi(cols[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: end %q", lineno, interval.ErrMalformed, cols[3])
		}
		pval, err := strconv.ParseFloat(cols[len(cols)-3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: p-value %q", lineno, interval.ErrMalformed, cols[len(cols)-3])
		}
		iv := interval.Interval{Chrom: cols[1], Start: start, End: end}
		if s := cols[4]; s == "+" || s == "-" {
			iv.Strand = s[0]
		}
		strand := cols[4]
		if strand == "" {
			strand = "."
		}
		recs = append(recs, interval.Record{
			Interval: iv,
			Fields:   []string{iv.String(), formatScore(pval), strand},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	interval.SortRecords(recs)
	return recs, nil
}

func formatScore(pval float64) string {
	score := -math.Log10(pval)
	if math.IsInf(score, 1) {
		score = 1000
	}
	if score == 0 {
		score = 0 // not -0
	}
	return strconv.FormatFloat(score, 'g', -1, 64)
}

func writeBEDFile(path string, recs []interval.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	err = interval.WriteBED(f, recs)
	if err != nil {
		return err
	}
	return f.Close()
}

// readIntervalsFile reads the intervals of a BED file, ignoring
// extra columns.
func readIntervalsFile(path string) ([]interval.Interval, error) {
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ivs, err := interval.ReadBED3(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ivs, nil
}

func readBEDFile(path string) ([]interval.Record, error) {
	f, err := zopen(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := interval.ReadBED(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
