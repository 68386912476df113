package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	gn "github.com/pbenner/gonetics"
)

// ToGRanges converts ivs to a gonetics GRanges. Unknown strand
// becomes '*'.
func ToGRanges(ivs []Interval) gn.GRanges {
	seqnames := make([]string, len(ivs))
	from := make([]int, len(ivs))
	to := make([]int, len(ivs))
	strand := make([]byte, len(ivs))
	for i, iv := range ivs {
		seqnames[i], from[i], to[i] = iv.Chrom, iv.Start, iv.End
		switch iv.Strand {
		case '+', '-':
			strand[i] = iv.Strand
		default:
			strand[i] = '*'
		}
	}
	return gn.NewGRanges(seqnames, from, to, strand)
}

// FromGRanges converts a gonetics GRanges to intervals, in order.
func FromGRanges(g gn.GRanges) []Interval {
	ivs := make([]Interval, g.Length())
	for i := range ivs {
		ivs[i] = Interval{Chrom: g.Seqnames[i], Start: g.Ranges[i].From, End: g.Ranges[i].To}
		if len(g.Strand) > i && (g.Strand[i] == '+' || g.Strand[i] == '-') {
			ivs[i].Strand = g.Strand[i]
		}
	}
	return ivs
}

// ReadBED3 reads the intervals of a BED file, ignoring columns after
// the third.
func ReadBED3(r io.Reader) ([]Interval, error) {
	// gonetics exits the process on an inverted range, and does not
	// know "#" or "browser" lines, so lines are checked first.
	var data bytes.Buffer
	err := scanBED(r, func(line string) error {
		if _, err := parseBEDLine(line); err != nil {
			return err
		}
		data.WriteString(line)
		data.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, err
	}
	var g gn.GRanges
	if err := g.ReadBed3(&data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return FromGRanges(g), nil
}

// WriteBED3 writes ivs as 3-column BED.
func WriteBED3(w io.Writer, ivs []Interval) error {
	bufw := bufio.NewWriter(w)
	if err := ToGRanges(ivs).WriteBed3(bufw); err != nil {
		return err
	}
	return bufw.Flush()
}

// ReadChromSizes reads a UCSC chrom.sizes table ("chrom<whitespace>length"
// per line).
func ReadChromSizes(r io.Reader) (ChromSizes, error) {
	var genome gn.Genome
	if err := genome.Read(r); err != nil {
		return nil, fmt.Errorf("%w: chromosome sizes: %s", ErrMalformed, err)
	}
	for i, length := range genome.Lengths {
		if length < 0 {
			return nil, fmt.Errorf("%w: chromosome sizes: %s has negative length %d", ErrMalformed, genome.Seqnames[i], length)
		}
	}
	return func(chrom string) (int, bool) {
		length, err := genome.SeqLength(chrom)
		return length, err == nil
	}, nil
}
