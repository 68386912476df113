// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gopkg.in/yaml.v2"
)

// Analysis is the project-level information the pipeline needs:
// where results go, which genome is used, and which samples exist.
type Analysis interface {
	Name() string
	ResultsDir() string
	DataDir() string
	Organism() string
	Genome() string
	Samples() []Sample
}

// Sample is a sequenced library and the paths of its alignments and
// peaks.
type Sample struct {
	Name     string
	Library  string
	Mapped   string
	Filtered string
	Peaks    string
}

// Project is an Analysis loaded from a YAML project file and a
// sample annotation CSV.
type Project struct {
	ProjectName      string `yaml:"name"`
	RootDir          string `yaml:"root_dir"`
	ResultsDirectory string `yaml:"results_dir"`
	DataDirectory    string `yaml:"data_dir"`
	OrganismName     string `yaml:"organism"`
	GenomeName       string `yaml:"genome"`
	SampleAnnotation string `yaml:"sample_annotation"`

	samples []Sample
}

func (p *Project) Name() string       { return p.ProjectName }
func (p *Project) ResultsDir() string { return p.ResultsDirectory }
func (p *Project) DataDir() string    { return p.DataDirectory }
func (p *Project) Organism() string   { return p.OrganismName }
func (p *Project) Genome() string     { return p.GenomeName }
func (p *Project) Samples() []Sample  { return append([]Sample(nil), p.samples...) }

// LoadProject reads a project file. Relative directories are resolved
// against root_dir, which itself defaults to the directory holding
// the project file.
func LoadProject(path string) (*Project, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Project{
		ResultsDirectory: "results",
		DataDirectory:    "data",
	}
	err = yaml.Unmarshal(buf, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.ProjectName == "" {
		return nil, fmt.Errorf("%s: project has no name", path)
	}
	if p.RootDir == "" {
		p.RootDir = filepath.Dir(path)
	}
	p.ResultsDirectory = p.resolve(p.ResultsDirectory)
	p.DataDirectory = p.resolve(p.DataDirectory)
	if p.SampleAnnotation != "" {
		f, err := open(p.resolve(p.SampleAnnotation))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		df := dataframe.ReadCSV(f,
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
			dataframe.NaNValues(nil))
		p.samples, err = p.samplesFromAnnotation(df)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.SampleAnnotation, err)
		}
	}
	return p, nil
}

func (p *Project) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || collectionInPathRe.MatchString(path) {
		return path
	}
	return filepath.Join(p.RootDir, path)
}

// SetSamples replaces the sample list, e.g., when samples come from
// somewhere other than the annotation CSV.
func (p *Project) SetSamples(samples []Sample) {
	p.samples = append([]Sample(nil), samples...)
}

func (p *Project) samplesFromAnnotation(df dataframe.DataFrame) ([]Sample, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	cols := map[string][]string{}
	for _, name := range df.Names() {
		cols[name] = df.Col(name).Records()
	}
	names, ok := cols["sample_name"]
	if !ok {
		return nil, fmt.Errorf("sample annotation has no sample_name column")
	}
	get := func(col string, i int) string {
		if vals, ok := cols[col]; ok {
			return vals[i]
		}
		return ""
	}
	samples := make([]Sample, len(names))
	for i, name := range names {
		s := Sample{
			Name:     name,
			Library:  get("library", i),
			Mapped:   get("mapped", i),
			Filtered: get("filtered", i),
			Peaks:    get("peaks", i),
		}
		if protocol := get("protocol", i); protocol != "" {
			s.Library = protocol
		}
		dir := filepath.Join(p.DataDirectory, name)
		if s.Mapped == "" {
			s.Mapped = filepath.Join(dir, "mapped", name+".trimmed.bowtie2.bam")
		}
		if s.Filtered == "" {
			s.Filtered = filepath.Join(dir, "mapped", name+".trimmed.bowtie2.filtered.bam")
		}
		if s.Peaks == "" {
			s.Peaks = filepath.Join(dir, "peaks", name+"_peaks.narrowPeak")
		}
		samples[i] = s
	}
	return samples, nil
}
