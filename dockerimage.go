package chipseq

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
)

// runtimeDockerfile installs the peak callers used by the commands
// in peakcall.go.
const runtimeDockerfile = `FROM debian:bullseye
RUN DEBIAN_FRONTEND=noninteractive \
  apt-get update && \
  apt-get dist-upgrade -y && \
  apt-get install -y --no-install-recommends macs samtools perl wget unzip zip build-essential ca-certificates && \
  apt-get clean
RUN mkdir -p /opt/homer && cd /opt/homer && \
  wget -q http://homer.ucsd.edu/homer/configureHomer.pl && \
  perl configureHomer.pl -install homer && \
  rm -rf /opt/homer/data/genomes
ENV PATH=/opt/homer/bin:$PATH
`

type buildDockerImage struct{}

func (cmd *buildDockerImage) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	tag := flags.String("tag", DefaultConfig().Jobs.Image, "image `tag`")
	printOnly := flags.Bool("print", false, "print the Dockerfile instead of building")
	if code, stop := parseFlags(flags, args, stderr); stop {
		return code
	}
	if *printOnly {
		_, err = io.WriteString(stdout, runtimeDockerfile)
		if err != nil {
			return 1
		}
		return 0
	}
	tmpdir, err := ioutil.TempDir("", "")
	if err != nil {
		return 1
	}
	defer os.RemoveAll(tmpdir)
	err = ioutil.WriteFile(filepath.Join(tmpdir, "Dockerfile"), []byte(runtimeDockerfile), 0644)
	if err != nil {
		return 1
	}
	docker := exec.Command("docker", "build", "--tag="+*tag, tmpdir)
	docker.Stdout = stdout
	docker.Stderr = stderr
	err = docker.Run()
	if err != nil {
		return 1
	}
	fmt.Fprintf(stderr, "built and tagged new docker image, %s\n", *tag)
	return 0
}
