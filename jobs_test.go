package chipseq

import (
	"context"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gopkg.in/check.v1"
)

type execSuite struct{}

var _ = check.Suite(&execSuite{})

func (s *execSuite) TestOutputLogsStderr(c *check.C) {
	logger, hook := logtest.NewNullLogger()
	r := &execRunner{logger: logger}
	out, err := r.Output(context.Background(), []string{"sh", "-c", "echo to-stdout; echo to-stderr >&2"})
	c.Assert(err, check.IsNil)
	c.Check(string(out), check.Equals, "to-stdout\n")
	var logged []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["stream"] == "stderr" {
			logged = append(logged, e.Message)
		}
	}
	c.Check(logged, check.DeepEquals, []string{"to-stderr"})
}

func (s *execSuite) TestRunError(c *check.C) {
	r := &execRunner{logger: newTestLogger()}
	err := r.Run(context.Background(), []string{"sh", "-c", "exit 3"})
	c.Check(err, check.ErrorMatches, `sh: exit status 3`)
}
