// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/ngs-toolkit/chipseq/interval"
	log "github.com/sirupsen/logrus"
)

// FilterPeaks writes a blacklist-filtered copy of each comparison's
// MACS2 and HOMER peak files, converting HOMER output to BED first.
// Records overlapping any blacklist interval are dropped; the rest
// are written unchanged. If blacklistBed is empty, Filter.BlacklistBed
// is used.
//
// A missing peak file is an error: this step expects peak calling to
// have completed for every comparison in table.
func (c *ChIPSeq) FilterPeaks(table *ComparisonTable, blacklistBed string) error {
	if blacklistBed == "" {
		blacklistBed = c.cfg.Filter.BlacklistBed
	}
	if blacklistBed == defaultFilterBlacklist {
		c.logger.Warn("using blacklist features of mm10 genome")
	}
	dir, err := c.peakCallingDir()
	if err != nil {
		return err
	}
	blacklist, err := readIntervalsFile(c.resolveExternal(blacklistBed))
	if err != nil {
		return err
	}
	mask := interval.NewMask(blacklist)
	for _, comparison := range table.Comparisons() {
		for _, peakType := range peakTypes {
			logger := c.logger.WithFields(log.Fields{"comparison": comparison, "peak_type": peakType})
			if peakType != PeakTypeMACS2 {
				in, out := nativePeakFile(dir, comparison, peakType), bedPeakFile(dir, comparison, peakType)
				err = HOMERToBED(in, out)
				if errors.Is(err, ErrEmptyPeakFile) {
					logger.Warn(err)
				} else if err != nil {
					return err
				}
			}
			in := bedPeakFile(dir, comparison, peakType)
			out := filteredPeakFile(dir, comparison, peakType)
			n, kept, err := filterBED(in, out, mask)
			if err != nil {
				return err
			}
			logger.WithField("file", out).Infof("kept %d of %d peaks", kept, n)
		}
	}
	return nil
}

// filterBED copies the records of in that do not overlap mask to out.
func filterBED(in, out string, mask *interval.Mask) (total, kept int, err error) {
	recs, err := readBEDFile(in)
	if err != nil {
		return 0, 0, err
	}
	keep := interval.ExcludeOverlapping(recs, mask)
	return len(recs), len(keep), writeBEDFile(out, keep)
}

type filterPeaksCmd struct {
	commonFlags
}

func (cmd *filterPeaksCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.register(flags)
	blacklist := flags.String("blacklist", "", "blacklist BED `file` (default from config)")
	outputDir := flags.String("output-dir", "", "peak calling output `dir` (default from config)")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	chip, err := cmd.setup(stderr, func(cfg *Config) {
		if *outputDir != "" {
			cfg.PeakCalling.OutputDir = *outputDir
		}
	})
	if err != nil {
		return 1
	}
	table, err := cmd.comparisonTable()
	if err != nil {
		return 1
	}
	err = chip.FilterPeaks(table, *blacklist)
	if err != nil {
		return 1
	}
	return 0
}
