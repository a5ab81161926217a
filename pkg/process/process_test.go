//go:build linux

package process

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ProcessTestSuite struct {
	suite.Suite
	sleep string
}

func (s *ProcessTestSuite) SetupSuite() {
	path, err := exec.LookPath("sleep")
	if err != nil {
		s.T().Skip("sleep not available")
	}
	s.sleep = path
}

func (s *ProcessTestSuite) TestResolve() {
	s.Equal("/opt/assets/producer", Resolve("/opt/assets", "producer"))
	s.Equal("/usr/bin/producer", Resolve("/opt/assets", "/usr/bin/producer"))
	s.Equal("producer", Resolve("", "producer"))
	s.Equal("", Resolve("/opt/assets", ""))
}

func (s *ProcessTestSuite) TestStartStopKill() {
	p := New(Options{Path: s.sleep, Args: []string{"30"}})
	s.Equal(NotStarted, p.State())
	s.Zero(p.PID())
	s.Require().NoError(p.Stop(0))

	s.Require().NoError(p.Start(context.Background()))
	s.Equal(Running, p.State())
	s.NotZero(p.PID())
	s.ErrorIs(p.Start(context.Background()), ErrAlreadyStarted)

	s.Require().NoError(p.Stop(0))
	s.Equal(Exited, p.State())
	s.Error(p.ExitErr())
	s.Require().NoError(p.Stop(0))
	s.ErrorIs(p.Start(context.Background()), ErrAlreadyStarted)
}

func (s *ProcessTestSuite) TestGracefulStop() {
	p := New(Options{Path: s.sleep, Args: []string{"30"}})
	s.Require().NoError(p.Start(context.Background()))

	start := time.Now()
	s.Require().NoError(p.Stop(5 * time.Second))
	s.Less(time.Since(start), 5*time.Second)
	s.Equal(Exited, p.State())
}

func (s *ProcessTestSuite) TestExitsOnItsOwn() {
	p := New(Options{Path: s.sleep, Args: []string{"0"}})
	s.Require().NoError(p.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(p.Wait(ctx))
	s.Equal(Exited, p.State())
	s.False(p.Alive(ctx))
	_, err := p.RSS(ctx)
	s.ErrorIs(err, ErrNotRunning)
}

func (s *ProcessTestSuite) TestProbes() {
	p := New(Options{Path: s.sleep, Args: []string{"30"}})
	ctx := context.Background()
	s.ErrorIs(p.Wait(ctx), ErrNotRunning)
	s.Require().NoError(p.Start(ctx))
	defer p.Stop(0)

	s.True(p.Alive(ctx))
	rss, err := p.RSS(ctx)
	s.Require().NoError(err)
	s.Greater(rss, uint64(0))
}

func (s *ProcessTestSuite) TestMissingExecutable() {
	p := New(Options{Path: "no-such-producer", AssetDir: s.T().TempDir()})
	s.Equal(filepath.Join(filepath.Dir(p.Path()), "no-such-producer"), p.Path())
	s.Error(p.Start(context.Background()))
	s.Equal(NotStarted, p.State())
}

func (s *ProcessTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Options{Path: s.sleep, Args: []string{"30"}})
	s.ErrorIs(p.Start(ctx), context.Canceled)
	s.Equal(NotStarted, p.State())
}

func TestProcessTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessTestSuite))
}
