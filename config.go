// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"fmt"
	"io/ioutil"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	RegionSummits = "summits"
	RegionPeaks   = "peaks"

	BackendSlurm   = "slurm"
	BackendArvados = "arvados"

	defaultFilterBlacklist = "blacklist.mm10_liftOver.bed"
)

type PeakCallingConfig struct {
	OutputDir  string   `yaml:"output_dir"`
	Permissive bool     `yaml:"permissive"`
	Overwrite  bool     `yaml:"overwrite"`
	AsJobs     bool     `yaml:"as_jobs"`
	MACS2Args  []string `yaml:"macs2_args"`
}

type SummaryConfig struct {
	Filtered   bool `yaml:"filtered"`
	Permissive bool `yaml:"permissive"`
}

type ConsensusConfig struct {
	PeakDir       string   `yaml:"peak_dir"`
	RegionType    string   `yaml:"region_type"`
	Extension     int      `yaml:"extension"`
	BlacklistBed  string   `yaml:"blacklist_bed"`
	BlacklistURL  string   `yaml:"blacklist_url"`
	ChromSizes    string   `yaml:"chrom_sizes"`
	ChromSizesURL string   `yaml:"chrom_sizes_url"`
	ExcludeChroms []string `yaml:"exclude_chroms"`
	Permissive    bool     `yaml:"permissive"`
}

type FilterConfig struct {
	BlacklistBed string `yaml:"blacklist_bed"`
}

// JobsConfig controls how peak-calling commands are queued when
// PeakCalling.AsJobs is set.
type JobsConfig struct {
	Backend        string `yaml:"backend"`
	Partition      string `yaml:"partition"`
	CPUs           int    `yaml:"cpus"`
	MemoryMB       int    `yaml:"memory_mb"`
	Time           string `yaml:"time"`
	QueueLimit     int    `yaml:"queue_limit"`
	RefreshSeconds int    `yaml:"refresh_seconds"`
	PauseSeconds   int    `yaml:"pause_seconds"`
	ProjectUUID    string `yaml:"project_uuid"`
	Priority       int    `yaml:"priority"`
	Image          string `yaml:"image"`
}

// Config holds every option of the pipeline. Start from
// DefaultConfig (or LoadConfig) and call Validate before use.
type Config struct {
	PeakCalling PeakCallingConfig `yaml:"peak_calling"`
	Summary     SummaryConfig     `yaml:"summary"`
	Consensus   ConsensusConfig   `yaml:"consensus"`
	Filter      FilterConfig      `yaml:"filter"`
	Jobs        JobsConfig        `yaml:"jobs"`
}

func DefaultConfig() Config {
	return Config{
		PeakCalling: PeakCallingConfig{
			OutputDir:  "{results_dir}/chipseq_peaks",
			Permissive: true,
			Overwrite:  true,
			AsJobs:     true,
		},
		Summary: SummaryConfig{
			Filtered:   true,
			Permissive: true,
		},
		Consensus: ConsensusConfig{
			PeakDir:       "{results_dir}/chipseq_peaks",
			RegionType:    RegionSummits,
			Extension:     250,
			BlacklistURL:  "https://github.com/Boyle-Lab/Blacklist/raw/master/lists/{genome}-blacklist.v2.bed.gz",
			ChromSizesURL: "https://hgdownload.soe.ucsc.edu/goldenPath/{genome}/bigZips/{genome}.chrom.sizes",
			ExcludeChroms: []string{"chrM"},
		},
		Filter: FilterConfig{
			BlacklistBed: defaultFilterBlacklist,
		},
		Jobs: JobsConfig{
			Backend:        BackendSlurm,
			Partition:      "shortq",
			CPUs:           4,
			MemoryMB:       8000,
			Time:           "10:00:00",
			QueueLimit:     800,
			RefreshSeconds: 10,
			PauseSeconds:   5,
			Priority:       500,
			Image:          "chipseq-runtime",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys absent
// from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.UnmarshalStrict(buf, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch cfg.Consensus.RegionType {
	case RegionSummits, RegionPeaks:
	default:
		return fmt.Errorf("%w: consensus.region_type %q must be %q or %q", ErrConfig, cfg.Consensus.RegionType, RegionSummits, RegionPeaks)
	}
	if cfg.Consensus.Extension < 0 {
		return fmt.Errorf("%w: consensus.extension %d must not be negative", ErrConfig, cfg.Consensus.Extension)
	}
	if cfg.PeakCalling.OutputDir == "" {
		return fmt.Errorf("%w: peak_calling.output_dir is empty", ErrConfig)
	}
	if cfg.Consensus.PeakDir == "" {
		return fmt.Errorf("%w: consensus.peak_dir is empty", ErrConfig)
	}
	j := cfg.Jobs
	switch j.Backend {
	case BackendSlurm, BackendArvados:
	default:
		return fmt.Errorf("%w: jobs.backend %q must be %q or %q", ErrConfig, j.Backend, BackendSlurm, BackendArvados)
	}
	if j.CPUs < 1 || j.MemoryMB < 1 {
		return fmt.Errorf("%w: jobs.cpus and jobs.memory_mb must be positive", ErrConfig)
	}
	if j.QueueLimit < 1 || j.RefreshSeconds < 1 || j.PauseSeconds < 0 {
		return fmt.Errorf("%w: jobs.queue_limit and jobs.refresh_seconds must be positive", ErrConfig)
	}
	return nil
}

// expand substitutes {results_dir}, {data_dir}, {name}, {organism}
// and {genome} placeholders in tmpl.
func expand(tmpl string, a Analysis, genome string) string {
	if genome == "" {
		genome = a.Genome()
	}
	return strings.NewReplacer(
		"{results_dir}", a.ResultsDir(),
		"{data_dir}", a.DataDir(),
		"{name}", a.Name(),
		"{organism}", a.Organism(),
		"{genome}", genome,
	).Replace(tmpl)
}
