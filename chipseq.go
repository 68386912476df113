// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/ngs-toolkit/chipseq/interval"
	log "github.com/sirupsen/logrus"
)

// Peak caller variants. Every comparison yields up to one peak file
// per type.
const (
	PeakTypeMACS2        = "macs2"
	PeakTypeHOMERFactor  = "homer_factor"
	PeakTypeHOMERHistone = "homer_histone"
)

var peakTypes = []string{PeakTypeMACS2, PeakTypeHOMERFactor, PeakTypeHOMERHistone}

// ChIPSeq runs the comparison-driven peak calling, consensus and
// support steps for one Analysis. It owns the consensus region set
// and support matrix it builds.
type ChIPSeq struct {
	analysis  Analysis
	cfg       Config
	logger    log.FieldLogger
	runner    CommandRunner
	submitter JobSubmitter
	client    *http.Client

	// Sites is the consensus region set, nil until BuildConsensus,
	// SetConsensus or LoadConsensus succeeds.
	Sites []interval.Interval
	// Support is the support matrix, nil until CalculatePeakSupport
	// or LoadSupport succeeds.
	Support *SupportMatrix
}

// An Option changes a collaborator of a ChIPSeq at construction.
type Option func(*ChIPSeq)

// WithRunner sets the executor used for synchronous peak calling.
func WithRunner(r CommandRunner) Option {
	return func(c *ChIPSeq) { c.runner = r }
}

// WithSubmitter sets the job submitter used when
// PeakCalling.AsJobs is set.
func WithSubmitter(s JobSubmitter) Option {
	return func(c *ChIPSeq) { c.submitter = s }
}

// WithHTTPClient sets the client used to download blacklists and
// chromosome sizes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ChIPSeq) { c.client = client }
}

// NewChIPSeq validates cfg and returns a pipeline component for
// analysis. A nil logger means the standard logrus logger.
func NewChIPSeq(analysis Analysis, cfg Config, logger log.FieldLogger, opts ...Option) (*ChIPSeq, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &ChIPSeq{
		analysis: analysis,
		cfg:      cfg,
		logger:   logger.WithField("analysis", analysis.Name()),
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = &execRunner{logger: c.logger}
	}
	if c.submitter == nil {
		var err error
		c.submitter, err = newJobSubmitter(cfg.Jobs, c.runner, c.logger)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Config returns the validated configuration.
func (c *ChIPSeq) Config() Config { return c.cfg }

func (c *ChIPSeq) peakCallingDir() (string, error) {
	return filepath.Abs(expand(c.cfg.PeakCalling.OutputDir, c.analysis, ""))
}

func (c *ChIPSeq) peakDir() (string, error) {
	return filepath.Abs(expand(c.cfg.Consensus.PeakDir, c.analysis, ""))
}

// ConsensusPath returns where the consensus region set is persisted.
func (c *ChIPSeq) ConsensusPath() string {
	return filepath.Join(c.analysis.ResultsDir(), c.analysis.Name()+".peak_set.bed")
}

// peakPrefix returns the path prefix shared by the output files of
// one caller for one comparison, e.g. "<dir>/<c>/<c>_peaks" for
// MACS2 or "<dir>/<c>/<c>_homer_peaks.factor" for HOMER factor.
func peakPrefix(dir, comparison, peakType string) string {
	base := filepath.Join(dir, comparison, comparison)
	switch peakType {
	case PeakTypeMACS2:
		return base + "_peaks"
	case PeakTypeHOMERFactor:
		return base + "_homer_peaks.factor"
	case PeakTypeHOMERHistone:
		return base + "_homer_peaks.histone"
	}
	panic(fmt.Sprintf("bug: unknown peak type %q", peakType))
}

// nativePeakFile is the file a caller writes.
func nativePeakFile(dir, comparison, peakType string) string {
	return peakPrefix(dir, comparison, peakType) + ".narrowPeak"
}

// bedPeakFile is the canonical BED for a peak type: the caller's own
// file for MACS2, the converted file for HOMER.
func bedPeakFile(dir, comparison, peakType string) string {
	if peakType == PeakTypeMACS2 {
		return nativePeakFile(dir, comparison, peakType)
	}
	return peakPrefix(dir, comparison, peakType) + ".bed"
}

func filteredPeakFile(dir, comparison, peakType string) string {
	return peakPrefix(dir, comparison, peakType) + ".filtered.bed"
}

func summitsFile(dir, comparison string) string {
	return filepath.Join(dir, comparison, comparison+"_summits.bed")
}
