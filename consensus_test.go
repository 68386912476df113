// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/ngs-toolkit/chipseq/interval"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/check.v1"
)

type consensusSuite struct{}

var _ = check.Suite(&consensusSuite{})

func (s *consensusSuite) setupPeaks(c *check.C) (*testAnalysis, Config) {
	a := newTestAnalysis(c)
	dir := peakDirOf(a)
	writeFile(c, nativePeakFile(dir, "A", PeakTypeMACS2), bed(
		"chr1\t100\t200\tA_1\t10",
		"chr1\t150\t300\tA_2\t10",
		"chrM\t10\t50\tA_3\t10",
		"chr2\t1000\t1100\tA_4\t10",
	))
	writeFile(c, bedPeakFile(dir, "A", PeakTypeHOMERFactor), bed("chr1\t290\t400\tchr1:290-400\t3\t+"))
	writeFile(c, nativePeakFile(dir, "B", PeakTypeMACS2), bed(
		"chr1\t400\t500\tB_1\t10",
		"chr3\t0\t10\tB_2\t10",
	))
	blacklist := filepath.Join(a.dataDir, "external", "blacklist.bed")
	writeFile(c, blacklist, bed("chr3\t5\t6"))
	cfg := DefaultConfig()
	cfg.Consensus.RegionType = RegionPeaks
	cfg.Consensus.BlacklistBed = blacklist
	cfg.Consensus.Permissive = true
	return a, cfg
}

func (s *consensusSuite) TestPeaks(c *check.C) {
	a, cfg := s.setupPeaks(c)
	cs := newChIPSeq(c, a, cfg)
	err := cs.chip.BuildConsensus(context.Background(), tableAB())
	c.Assert(err, check.IsNil)
	path := filepath.Join(a.resultsDir, "proj.peak_set.bed")
	c.Check(cs.chip.ConsensusPath(), check.Equals, path)
	c.Check(readFile(c, path), check.Equals, bed("chr1\t100\t500", "chr2\t1000\t1100"))
	c.Check(cs.chip.Sites, check.DeepEquals, []interval.Interval{
		{Chrom: "chr1", Start: 100, End: 500},
		{Chrom: "chr2", Start: 1000, End: 1100},
	})
	// A/homer_histone, B/homer_factor, B/homer_histone
	c.Check(cs.warnings(), check.HasLen, 3)
}

func (s *consensusSuite) TestInvariants(c *check.C) {
	a, cfg := s.setupPeaks(c)
	cs := newChIPSeq(c, a, cfg)
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableAB()), check.IsNil)
	first := readFile(c, cs.chip.ConsensusPath())
	sites := cs.chip.Sites

	c.Check(interval.Disjoint(sites), check.Equals, true)
	for _, iv := range sites {
		c.Check(iv.Chrom, check.Not(check.Equals), "chrM")
	}

	// round trip
	c.Assert(cs.chip.LoadConsensus(), check.IsNil)
	c.Check(cs.chip.Sites, check.DeepEquals, sites)

	// idempotent
	cs = newChIPSeq(c, a, cfg)
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableAB()), check.IsNil)
	c.Check(readFile(c, cs.chip.ConsensusPath()), check.Equals, first)
}

func (s *consensusSuite) TestNotPermissive(c *check.C) {
	a, cfg := s.setupPeaks(c)
	cfg.Consensus.Permissive = false
	cs := newChIPSeq(c, a, cfg)
	err := cs.chip.BuildConsensus(context.Background(), tableAB())
	c.Check(errors.Is(err, ErrMissingPeakFile), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*peaks for comparison "A" .*A_homer_peaks.histone.bed.* not found`)
	c.Check(fileExists(cs.chip.ConsensusPath()), check.Equals, false)
}

func (s *consensusSuite) TestSummits(c *check.C) {
	a := newTestAnalysis(c)
	dir := peakDirOf(a)
	writeFile(c, summitsFile(dir, "A"), bed(
		"chr1\t1000\t1001\tA_1\t5",
		"chr1\t1100\t1101\tA_2\t5",
		"chr2\t10\t11\tA_3\t5",
	))
	writeFile(c, bedPeakFile(dir, "A", PeakTypeHOMERFactor), bed("chr2\t990\t1010\tchr2:990-1010\t3\t+"))
	writeFile(c, bedPeakFile(dir, "A", PeakTypeHOMERHistone), bed("chr1\t5000\t9000\tchr1:5000-9000\t3\t+"))
	sizes := filepath.Join(a.dataDir, "hg38.sizes")
	writeFile(c, sizes, "chr1\t100000\nchr2\t1200\n")
	blacklist := filepath.Join(a.dataDir, "blacklist.bed")
	writeFile(c, blacklist, "")
	cfg := DefaultConfig()
	cfg.Consensus.BlacklistBed = blacklist
	cfg.Consensus.ChromSizes = sizes
	cfg.Consensus.Permissive = true
	cs := newChIPSeq(c, a, cfg)
	err := cs.chip.BuildConsensus(context.Background(), tableA())
	c.Assert(err, check.IsNil)
	c.Check(cs.chip.Sites, check.DeepEquals, []interval.Interval{
		{Chrom: "chr1", Start: 750, End: 1351},
		{Chrom: "chr1", Start: 4750, End: 9250},
		{Chrom: "chr2", Start: 0, End: 261},
		{Chrom: "chr2", Start: 740, End: 1200},
	})
}

func (s *consensusSuite) TestUnreadablePeakFile(c *check.C) {
	a, cfg := s.setupPeaks(c)
	// a directory where A's HOMER histone peaks should be
	c.Assert(os.MkdirAll(bedPeakFile(peakDirOf(a), "A", PeakTypeHOMERHistone), 0777), check.IsNil)
	cs := newChIPSeq(c, a, cfg)
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableAB()), check.IsNil)
	c.Check(cs.chip.Sites, check.HasLen, 2)
	c.Check(cs.warnings()[0], check.Matches, `unreadable peak file: peaks for comparison "A": .*`)

	cfg.Consensus.Permissive = false
	cs = newChIPSeq(c, a, cfg)
	err := cs.chip.BuildConsensus(context.Background(), tableAB())
	c.Check(errors.Is(err, ErrUnreadablePeakFile), check.Equals, true)
}

func (s *consensusSuite) TestDigestMismatch(c *check.C) {
	a, cfg := s.setupPeaks(c)
	cs := newChIPSeq(c, a, cfg)
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableAB()), check.IsNil)
	content := readFile(c, cs.chip.ConsensusPath())
	c.Check(cs.chip.reloadConsensus(blake2b.Sum256([]byte(content))), check.IsNil)

	err := cs.chip.reloadConsensus(blake2b.Sum256([]byte(content + "chr9\t1\t2\n")))
	c.Check(errors.Is(err, ErrConsensusChanged), check.Equals, true)
	c.Check(err, check.ErrorMatches, `consensus region set changed on disk: .*proj.peak_set.bed has blake2b [0-9a-f]{64}, wrote [0-9a-f]{64}`)
}

func (s *consensusSuite) TestDownloadChromSizes(c *check.C) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/hg38/hg38.chrom.sizes" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("chr1\t1200\n"))
	}))
	defer srv.Close()

	a := newTestAnalysis(c)
	writeFile(c, summitsFile(peakDirOf(a), "A"), bed("chr1\t1000\t1001"))
	blacklist := filepath.Join(a.dataDir, "blacklist.bed")
	writeFile(c, blacklist, "")
	cfg := DefaultConfig()
	cfg.Consensus.BlacklistBed = blacklist
	cfg.Consensus.ChromSizesURL = srv.URL + "/{genome}/{genome}.chrom.sizes"
	cfg.Consensus.Permissive = true
	cs := newChIPSeq(c, a, cfg)
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableA()), check.IsNil)
	c.Check(cs.chip.Sites, check.DeepEquals, []interval.Interval{{Chrom: "chr1", Start: 750, End: 1200}})
	c.Check(readFile(c, filepath.Join(a.dataDir, "external", "hg38.chrom.sizes")), check.Equals, "chr1\t1200\n")
	c.Check(requests, check.Equals, 1)

	// cached in {data_dir}/external
	c.Assert(cs.chip.BuildConsensus(context.Background(), tableA()), check.IsNil)
	c.Check(requests, check.Equals, 1)
}

func (s *consensusSuite) TestFetchBlacklist(c *check.C) {
	var gz bytes.Buffer
	zw := pgzip.NewWriter(&gz)
	zw.Write([]byte("chr1\t0\t10\n"))
	c.Assert(zw.Close(), check.IsNil)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/lists/hg38-blacklist.v2.bed.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(gz.Bytes())
	}))
	defer srv.Close()

	a := newTestAnalysis(c)
	cfg := DefaultConfig()
	cfg.Consensus.BlacklistURL = srv.URL + "/lists/{genome}-blacklist.v2.bed.gz"
	cs := newChIPSeq(c, a, cfg, WithHTTPClient(srv.Client()))
	path, err := cs.chip.FetchBlacklist(context.Background())
	c.Assert(err, check.IsNil)
	c.Check(path, check.Equals, filepath.Join(a.dataDir, "external", "human.hg38.blacklist.bed"))
	c.Check(readFile(c, path), check.Equals, "chr1\t0\t10\n")
	_, err = cs.chip.FetchBlacklist(context.Background())
	c.Check(err, check.IsNil)
	c.Check(requests, check.Equals, 1)

	a.genome = "mm10"
	_, err = cs.chip.FetchBlacklist(context.Background())
	c.Check(errors.Is(err, ErrNoBlacklist), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*404 Not Found`)
}

func (s *consensusSuite) TestNoBlacklist(c *check.C) {
	a, cfg := s.setupPeaks(c)
	a.organism = ""
	cfg.Consensus.BlacklistBed = ""
	cs := newChIPSeq(c, a, cfg)
	err := cs.chip.BuildConsensus(context.Background(), tableAB())
	c.Check(errors.Is(err, ErrNoBlacklist), check.Equals, true)
	c.Check(err, check.ErrorMatches, `.*cannot get one without analysis having organism and genome set`)
}

func (s *consensusSuite) TestAmbiguousGenome(c *check.C) {
	a, cfg := s.setupPeaks(c)
	cs := newChIPSeq(c, a, cfg)
	rows := tableA().Rows()
	rows[2].Genome = "hg19"
	err := cs.chip.BuildConsensus(context.Background(), NewComparisonTable(rows))
	c.Check(errors.Is(err, ErrAmbiguousGenome), check.Equals, true)
}

func (s *consensusSuite) TestSetConsensus(c *check.C) {
	a := newTestAnalysis(c)
	cs := newChIPSeq(c, a, DefaultConfig())
	external := filepath.Join(a.dataDir, "mysites.bed")
	writeFile(c, external, bed("chr2\t1\t5\tx", "chr1\t10\t20\ty"))

	c.Assert(cs.chip.SetConsensus(external, false), check.IsNil)
	c.Check(cs.chip.Sites, check.DeepEquals, []interval.Interval{
		{Chrom: "chr2", Start: 1, End: 5},
		{Chrom: "chr1", Start: 10, End: 20},
	})
	c.Check(fileExists(cs.chip.ConsensusPath()), check.Equals, false)

	c.Assert(cs.chip.SetConsensus(external, true), check.IsNil)
	c.Check(readFile(c, cs.chip.ConsensusPath()), check.Equals, readFile(c, external))
	sites := cs.chip.Sites
	cs.chip.Sites = nil
	c.Assert(cs.chip.LoadConsensus(), check.IsNil)
	c.Check(cs.chip.Sites, check.DeepEquals, sites)
}
