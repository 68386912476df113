// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package chipseq

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// PeakCommand is the sequence of external commands that calls peaks
// for one comparison with one caller.
type PeakCommand struct {
	Comparison string
	Caller     string
	// Dir is the comparison's output directory.
	Dir   string
	Steps [][]string
}

// Script returns the steps as a shell script fragment, one command
// per line.
func (pc PeakCommand) Script() string {
	var buf strings.Builder
	for _, argv := range pc.Steps {
		for i, arg := range argv {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(shellQuote(arg))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func (pc PeakCommand) String() string {
	return strings.Replace(strings.TrimSuffix(pc.Script(), "\n"), "\n", " && ", -1)
}

func (pc PeakCommand) jobName() string {
	return pc.Comparison + "." + pc.Caller
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// CommandRunner runs external programs to completion. No timeout is
// applied beyond ctx.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) error
	Output(ctx context.Context, argv []string) ([]byte, error)
}

// JobSubmitter queues a peak-calling command on a cluster and returns
// without waiting for it to run.
type JobSubmitter interface {
	Submit(ctx context.Context, cmd PeakCommand) error
}

type execRunner struct {
	logger log.FieldLogger
}

func (r *execRunner) Run(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout := &logWriter{logger: r.logger.WithField("stream", "stdout").WithField("prog", argv[0])}
	stderr := &logWriter{logger: r.logger.WithField("stream", "stderr").WithField("prog", argv[0])}
	defer stdout.Close()
	defer stderr.Close()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func (r *execRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stderr := &logWriter{logger: r.logger.WithField("stream", "stderr").WithField("prog", argv[0])}
	defer stderr.Close()
	cmd.Stderr = stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", argv[0], err)
	}
	return out, nil
}

// logWriter logs each line written to it.
type logWriter struct {
	logger log.FieldLogger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		eol := bytes.IndexByte(w.buf, '\n')
		if eol < 0 {
			break
		}
		if eol > 0 {
			w.logger.Info(string(w.buf[:eol]))
		}
		w.buf = w.buf[eol+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logger.Info(string(w.buf))
		w.buf = nil
	}
	return nil
}

func newJobSubmitter(cfg JobsConfig, runner CommandRunner, logger log.FieldLogger) (JobSubmitter, error) {
	switch cfg.Backend {
	case BackendSlurm:
		return &slurmSubmitter{cfg: cfg, runner: runner, logger: logger, sleep: sleepContext}, nil
	case BackendArvados:
		return newArvadosSubmitter(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown job backend %q", ErrConfig, cfg.Backend)
	}
}

// slurmSubmitter writes a batch script next to the comparison's
// output and hands it to sbatch once the queue has room.
type slurmSubmitter struct {
	cfg    JobsConfig
	runner CommandRunner
	logger log.FieldLogger
	sleep  func(context.Context, time.Duration) error
}

func (s *slurmSubmitter) Submit(ctx context.Context, pc PeakCommand) error {
	err := os.MkdirAll(pc.Dir, 0777)
	if err != nil {
		return err
	}
	jobfile := filepath.Join(pc.Dir, pc.jobName()+".sh")
	err = s.writeJobFile(jobfile, pc)
	if err != nil {
		return err
	}
	for {
		n, err := s.queued(ctx)
		if err != nil {
			return err
		}
		if n < s.cfg.QueueLimit {
			break
		}
		s.logger.WithField("queued", n).Debug("job queue is full, waiting")
		err = s.sleep(ctx, time.Duration(s.cfg.RefreshSeconds)*time.Second)
		if err != nil {
			return err
		}
	}
	err = s.runner.Run(ctx, []string{"sbatch", jobfile})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"comparison": pc.Comparison, "caller": pc.Caller, "file": jobfile}).Info("submitted job")
	return s.sleep(ctx, time.Duration(s.cfg.PauseSeconds)*time.Second)
}

func (s *slurmSubmitter) writeJobFile(path string, pc PeakCommand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	fmt.Fprintf(bufw, "#!/bin/bash\n")
	fmt.Fprintf(bufw, "#SBATCH --partition=%s\n", s.cfg.Partition)
	fmt.Fprintf(bufw, "#SBATCH --ntasks=1\n")
	fmt.Fprintf(bufw, "#SBATCH --cpus-per-task=%d\n", s.cfg.CPUs)
	fmt.Fprintf(bufw, "#SBATCH --mem=%d\n", s.cfg.MemoryMB)
	fmt.Fprintf(bufw, "#SBATCH --time=%s\n", s.cfg.Time)
	fmt.Fprintf(bufw, "#SBATCH --job-name=%s\n", pc.jobName())
	fmt.Fprintf(bufw, "#SBATCH --output=%s\n", filepath.Join(pc.Dir, pc.jobName()+".log"))
	fmt.Fprintf(bufw, "\nset -e\ndate\n\n%s\ndate\n", pc.Script())
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

// queued returns the number of jobs in the cluster queue.
func (s *slurmSubmitter) queued(ctx context.Context) (int, error) {
	out, err := s.runner.Output(ctx, []string{"squeue", "--noheader"})
	if err != nil {
		return 0, err
	}
	return countLines(bytes.NewReader(out))
}

func countLines(r io.Reader) (int, error) {
	n := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n, scanner.Err()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
