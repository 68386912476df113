// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ngs-toolkit/chipseq/interval"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// BuildConsensus builds the consensus region set: the union of every
// comparison's MACS2, HOMER factor and HOMER histone peaks, minus
// regions overlapping the blacklist and regions on excluded
// chromosomes. The result is written to ConsensusPath and read back
// into Sites.
//
// With Consensus.RegionType "summits", MACS2 peaks are replaced by
// their summits and every region is extended by Consensus.Extension
// on both sides. HOMER peaks have no summit file and are extended as
// called.
func (c *ChIPSeq) BuildConsensus(ctx context.Context, table *ComparisonTable) error {
	cfg := c.cfg.Consensus
	err := table.RequireColumns(colComparison, colGenome)
	if err != nil {
		return err
	}
	dir, err := c.peakDir()
	if err != nil {
		return err
	}
	blacklistPath := c.resolveExternal(cfg.BlacklistBed)
	if blacklistPath == "" {
		blacklistPath, err = c.FetchBlacklist(ctx)
		if err != nil {
			return err
		}
	}
	blacklist, err := readIntervalsFile(blacklistPath)
	if err != nil {
		return err
	}

	sizes := map[string]interval.ChromSizes{}
	var sites []interval.Interval
	for _, comparison := range table.Comparisons() {
		genome, err := table.Genome(comparison)
		if err != nil {
			return err
		}
		for _, peakType := range peakTypes {
			logger := c.logger.WithFields(log.Fields{"comparison": comparison, "peak_type": peakType})
			peaks, err := c.consensusPeaks(ctx, dir, comparison, peakType, genome, sizes)
			if err != nil {
				if cfg.Permissive && (errors.Is(err, ErrMissingPeakFile) || errors.Is(err, ErrUnreadablePeakFile)) {
					logger.Warn(err)
					continue
				}
				return err
			}
			sites = interval.Merge(append(sites, interval.Merge(peaks)...))
		}
	}
	sites = interval.Merge(sites)
	mask := interval.NewMask(blacklist)
	filtered := sites[:0]
	for _, iv := range sites {
		if !mask.Overlaps(iv.Chrom, iv.Start, iv.End) {
			filtered = append(filtered, iv)
		}
	}
	sites = interval.DropChroms(filtered, cfg.ExcludeChroms...)

	var buf bytes.Buffer
	err = interval.WriteBED3(&buf, sites)
	if err != nil {
		return err
	}
	path := c.ConsensusPath()
	err = os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return err
	}
	err = ioutil.WriteFile(path, buf.Bytes(), 0666)
	if err != nil {
		return err
	}
	return c.reloadConsensus(blake2b.Sum256(buf.Bytes()))
}

// reloadConsensus reads ConsensusPath into Sites and checks that its
// content has the given digest.
func (c *ChIPSeq) reloadConsensus(written [blake2b.Size256]byte) error {
	sum, err := c.loadConsensus()
	if err != nil {
		return err
	}
	if sum != written {
		return fmt.Errorf("%w: %s has blake2b %x, wrote %x", ErrConsensusChanged, c.ConsensusPath(), sum, written)
	}
	return nil
}

// consensusPeaks returns the regions one peak file contributes to the
// consensus.
func (c *ChIPSeq) consensusPeaks(ctx context.Context, dir, comparison, peakType, genome string, sizes map[string]interval.ChromSizes) ([]interval.Interval, error) {
	cfg := c.cfg.Consensus
	path := bedPeakFile(dir, comparison, peakType)
	if cfg.RegionType == RegionSummits && peakType == PeakTypeMACS2 {
		path = summitsFile(dir, comparison)
	}
	ivs, err := readIntervalsFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: peaks for comparison %q (%s) not found", ErrMissingPeakFile, comparison, path)
	} else if err != nil {
		return nil, fmt.Errorf("%w: peaks for comparison %q: %s", ErrUnreadablePeakFile, comparison, err)
	}
	if cfg.RegionType == RegionPeaks {
		return ivs, nil
	}
	chromSizes, ok := sizes[genome]
	if !ok {
		chromSizes, err = c.chromSizes(ctx, genome)
		if err != nil {
			return nil, err
		}
		sizes[genome] = chromSizes
	}
	return interval.Slop(ivs, cfg.Extension, chromSizes), nil
}

// SetConsensus replaces the consensus region set with the regions in
// bedFile, in file order. With overwrite, bedFile is also copied to
// ConsensusPath.
func (c *ChIPSeq) SetConsensus(bedFile string, overwrite bool) error {
	recs, err := readBEDFile(bedFile)
	if err != nil {
		return err
	}
	c.Sites = interval.Intervals(recs)
	if overwrite {
		path := c.ConsensusPath()
		err = os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return err
		}
		return writeBEDFile(path, recs)
	}
	return nil
}

// LoadConsensus reads the consensus region set from ConsensusPath.
func (c *ChIPSeq) LoadConsensus() error {
	_, err := c.loadConsensus()
	return err
}

func (c *ChIPSeq) loadConsensus() ([blake2b.Size256]byte, error) {
	path := c.ConsensusPath()
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return [blake2b.Size256]byte{}, err
	}
	sites, err := interval.ReadBED3(bytes.NewReader(buf))
	if err != nil {
		return [blake2b.Size256]byte{}, fmt.Errorf("%s: %w", path, err)
	}
	sum := blake2b.Sum256(buf)
	c.Sites = sites
	c.logger.WithField("file", path).Infof("consensus region set has %d regions, blake2b %x", len(sites), sum)
	return sum, nil
}

type consensusCmd struct {
	commonFlags
}

func (cmd *consensusCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	regionType := flags.String("region-type", "", "`summits` or peaks (default from config)")
	extension := flags.Int("extension", 250, "extend summits by `N` bases on each side")
	blacklist := flags.String("blacklist", "", "blacklist BED `file` (default: download)")
	chromSizes := flags.String("chrom-sizes", "", "chromosome sizes `file` (default: download)")
	permissive := flags.Bool("permissive", false, "skip missing peak files instead of failing")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	chip, err := cmd.setup(stderr, func(cfg *Config) {
		if *peakDir != "" {
			cfg.Consensus.PeakDir = *peakDir
		}
		if *regionType != "" {
			cfg.Consensus.RegionType = *regionType
		}
		if cmd.isSet("extension") {
			cfg.Consensus.Extension = *extension
		}
		if *blacklist != "" {
			cfg.Consensus.BlacklistBed = *blacklist
		}
		if *chromSizes != "" {
			cfg.Consensus.ChromSizes = *chromSizes
		}
		if cmd.isSet("permissive") {
			cfg.Consensus.Permissive = *permissive
		}
	})
	if err != nil {
		return 1
	}
	table, err := cmd.comparisonTable()
	if err != nil {
		return 1
	}
	err = chip.BuildConsensus(context.Background(), table)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, chip.ConsensusPath())
	return 0
}

type setConsensusCmd struct {
	commonFlags
}

func (cmd *setConsensusCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.register(flags)
	inputFilename := flags.String("i", "", "consensus region set BED `file`")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	if *inputFilename == "" {
		err = errors.New("no input file given (-i)")
		return 2
	}
	chip, err := cmd.setup(stderr, nil)
	if err != nil {
		return 1
	}
	err = chip.SetConsensus(*inputFilename, true)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, chip.ConsensusPath())
	return 0
}
