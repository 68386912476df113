// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// CallPeaks builds the MACS2 and HOMER commands for every valid
// comparison in table and dispatches them, either as cluster jobs or
// by running them here. It returns the commands it dispatched.
//
// An invalid comparison is skipped with a warning when
// PeakCalling.Permissive is set, otherwise it stops the loop with an
// ErrInvalidComparison error. Commands dispatched before that point
// are not undone.
func (c *ChIPSeq) CallPeaks(ctx context.Context, table *ComparisonTable) ([]PeakCommand, error) {
	err := table.RequireColumns(peakCallingColumns...)
	if err != nil {
		return nil, err
	}
	cfg := c.cfg.PeakCalling
	outdir, err := c.peakCallingDir()
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(outdir, 0777)
	if err != nil {
		return nil, err
	}
	var cmds []PeakCommand
	for _, comparison := range table.SortedComparisons() {
		logger := c.logger.WithField("comparison", comparison)
		signal, background, err := c.comparisonSamples(table, comparison)
		if err != nil {
			if cfg.Permissive {
				logger.Warn(err)
				continue
			}
			return cmds, err
		}
		logger.Infof("doing comparison with signal samples %q and background samples %q", sampleNames(signal), sampleNames(background))

		var todo []PeakCommand
		if cfg.Overwrite || !fileExists(nativePeakFile(outdir, comparison, PeakTypeMACS2)) {
			todo = append(todo, c.macs2Command(outdir, comparison, signal, background))
		} else {
			logger.WithField("caller", "macs2").Warn("peak files already exist, skipping")
		}
		if cfg.Overwrite ||
			!fileExists(nativePeakFile(outdir, comparison, PeakTypeHOMERFactor)) ||
			!fileExists(nativePeakFile(outdir, comparison, PeakTypeHOMERHistone)) {
			todo = append(todo, c.homerCommand(outdir, comparison, signal, background))
		} else {
			logger.WithField("caller", "homer").Warn("peak files already exist, skipping")
		}

		for _, pc := range todo {
			if cfg.AsJobs {
				err = c.submitter.Submit(ctx, pc)
			} else {
				err = c.runPeakCommand(ctx, pc)
			}
			if err != nil {
				return cmds, fmt.Errorf("comparison %q: %s: %w", comparison, pc.Caller, err)
			}
			cmds = append(cmds, pc)
		}
	}
	return cmds, nil
}

// comparisonSamples returns the signal and background samples of a
// comparison, or ErrInvalidComparison if it is not a proper
// two-sided comparison with samples on both sides.
func (c *ChIPSeq) comparisonSamples(table *ComparisonTable, comparison string) (signal, background []Sample, err error) {
	pos, neg, err := table.Sides(comparison)
	if err != nil {
		return nil, nil, err
	}
	want := func(names []string) []Sample {
		in := map[string]bool{}
		for _, n := range names {
			in[n] = true
		}
		var samples []Sample
		for _, s := range c.analysis.Samples() {
			if in[s.Name] {
				samples = append(samples, s)
			}
		}
		return samples
	}
	signal, background = want(pos), want(neg)
	if len(signal) == 0 || len(background) == 0 {
		return nil, nil, fmt.Errorf("%w: comparison side for %q does not contain samples", ErrInvalidComparison, comparison)
	}
	return signal, background, nil
}

func (c *ChIPSeq) runPeakCommand(ctx context.Context, pc PeakCommand) error {
	err := os.MkdirAll(pc.Dir, 0777)
	if err != nil {
		return err
	}
	for _, argv := range pc.Steps {
		c.logger.WithFields(log.Fields{"comparison": pc.Comparison, "caller": pc.Caller}).Infof("calling peaks with command: %q", argv)
		err = c.runner.Run(ctx, argv)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ChIPSeq) macs2Command(outdir, comparison string, signal, background []Sample) PeakCommand {
	dir := filepath.Join(outdir, comparison)
	argv := []string{"macs2", "callpeak", "-t"}
	argv = append(argv, filteredBAMs(signal)...)
	argv = append(argv, "-c")
	argv = append(argv, filteredBAMs(background)...)
	argv = append(argv, "-n", comparison, "--outdir", dir)
	argv = append(argv, c.cfg.PeakCalling.MACS2Args...)
	return PeakCommand{
		Comparison: comparison,
		Caller:     "macs2",
		Dir:        dir,
		Steps:      [][]string{argv},
	}
}

func (c *ChIPSeq) homerCommand(outdir, comparison string, signal, background []Sample) PeakCommand {
	dir := filepath.Join(outdir, comparison)
	sigdir := filepath.Join(dir, "homer_tag_dir_signal")
	bgdir := filepath.Join(dir, "homer_tag_dir_background")
	steps := [][]string{
		append([]string{"makeTagDirectory", sigdir}, filteredBAMs(signal)...),
		append([]string{"makeTagDirectory", bgdir}, filteredBAMs(background)...),
	}
	for _, style := range []string{"factor", "histone"} {
		steps = append(steps, []string{
			"findPeaks", sigdir,
			"-style", style,
			"-o", filepath.Join(dir, comparison+"_homer_peaks."+style+".narrowPeak"),
			"-i", bgdir,
		})
	}
	return PeakCommand{
		Comparison: comparison,
		Caller:     "homer",
		Dir:        dir,
		Steps:      steps,
	}
}

func filteredBAMs(samples []Sample) []string {
	bams := make([]string, len(samples))
	for i, s := range samples {
		bams[i] = s.Filtered
	}
	return bams
}

func sampleNames(samples []Sample) []string {
	names := make([]string, len(samples))
	for i, s := range samples {
		names[i] = s.Name
	}
	return names
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type callPeaksCmd struct {
	commonFlags
}

func (cmd *callPeaksCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	permissive := flags.Bool("permissive", true, "skip invalid comparisons instead of failing")
	overwrite := flags.Bool("overwrite", true, "call peaks even if output files exist")
	asJobs := flags.Bool("as-jobs", true, "submit cluster jobs instead of running commands here")
	backend := flags.String("backend", "", "job `backend`: slurm or arvados (default from config)")
	projectUUID := flags.String("project-uuid", "", "arvados project `UUID` for container requests")
	priority := flags.Int("priority", 500, "arvados container request priority")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}

	chip, err := cmd.setup(stderr, func(cfg *Config) {
		if *outputDir != "" {
			cfg.PeakCalling.OutputDir = *outputDir
		}
		if cmd.isSet("permissive") {
			cfg.PeakCalling.Permissive = *permissive
		}
		if cmd.isSet("overwrite") {
			cfg.PeakCalling.Overwrite = *overwrite
		}
		if cmd.isSet("as-jobs") {
			cfg.PeakCalling.AsJobs = *asJobs
		}
		if *backend != "" {
			cfg.Jobs.Backend = *backend
		}
		if *projectUUID != "" {
			cfg.Jobs.ProjectUUID = *projectUUID
		}
		if cmd.isSet("priority") {
			cfg.Jobs.Priority = *priority
		}
	})
	if err != nil {
		return 1
	}
	table, err := cmd.comparisonTable()
	if err != nil {
		return 1
	}
	cmds, err := chip.CallPeaks(context.Background(), table)
	if err != nil {
		return 1
	}
	for _, pc := range cmds {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", pc.Comparison, pc.Caller, pc)
	}
	return 0
}
