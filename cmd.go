package chipseq

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"call-peaks":      &callPeaksCmd{},
		"filter-peaks":    &filterPeaksCmd{},
		"summarize-peaks": &summarizePeaksCmd{},
		"consensus":       &consensusCmd{},
		"set-consensus":   &setConsensusCmd{},
		"support":         &supportCmd{},
		"supported-peaks": &supportedPeaksCmd{},

		"build-docker-image": &buildDockerImage{},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// commonFlags are accepted by every pipeline subcommand.
type commonFlags struct {
	projectFile     string
	comparisonsFile string
	configFile      string
	logLevel        string
	flags           *flag.FlagSet
}

func (cf *commonFlags) register(flags *flag.FlagSet) {
	cf.flags = flags
	flags.StringVar(&cf.projectFile, "project", "", "project definition `file` (yaml)")
	flags.StringVar(&cf.comparisonsFile, "comparisons", "", "comparison table `file` (csv)")
	flags.StringVar(&cf.configFile, "config", "", "pipeline configuration `file` (yaml)")
	flags.StringVar(&cf.logLevel, "log-level", "info", "logging `level` (debug, info, warn, error)")
}

// isSet reports whether the named flag was given on the command line.
func (cf *commonFlags) isSet(name string) bool {
	set := false
	cf.flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func (cf *commonFlags) logger(stderr io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cf.logLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.Out = stderr
	logger.Formatter = logrus.StandardLogger().Formatter
	logger.Level = level
	return logger, nil
}

func (cf *commonFlags) loadConfig() (Config, error) {
	return LoadConfig(cf.configFile)
}

// setup loads the project and builds the pipeline component. The
// caller applies command-line overrides to cfg first, via adjust.
func (cf *commonFlags) setup(stderr io.Writer, adjust func(*Config), opts ...Option) (*ChIPSeq, error) {
	logger, err := cf.logger(stderr)
	if err != nil {
		return nil, err
	}
	if cf.projectFile == "" {
		return nil, errors.New("no project file given (-project)")
	}
	cfg, err := cf.loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	project, err := LoadProject(cf.projectFile)
	if err != nil {
		return nil, err
	}
	return NewChIPSeq(project, cfg, logger, opts...)
}

func (cf *commonFlags) comparisonTable() (*ComparisonTable, error) {
	if cf.comparisonsFile == "" {
		return nil, errors.New("no comparison table given (-comparisons)")
	}
	return LoadComparisonTable(cf.comparisonsFile)
}

// parseFlags parses args and reports the exit code to use if the
// command should stop now.
func parseFlags(flags *flag.FlagSet, args []string, stderr io.Writer) (int, bool) {
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return 0, true
	} else if err != nil {
		return 2, true
	} else if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %q\n", flags.Args())
		return 2, true
	}
	return 0, false
}
