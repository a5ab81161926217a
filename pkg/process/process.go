// Package process supervises the external producer process.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
)

// State of a producer process.
type State int32

const (
	NotStarted State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrNotRunning is returned by probes on a process that is not running.
	ErrNotRunning = errors.New("process not running")
)

// Options describes the producer to launch.
type Options struct {
	// Path of the executable. A relative path is resolved against AssetDir.
	Path     string
	AssetDir string
	Args     []string
	Logger   *zap.Logger
}

// Process is a handle on one launch of an external executable. It is
// started at most once.
type Process struct {
	path   string
	args   []string
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// New returns a handle in state NotStarted.
func New(opts Options) *Process {
	return &Process{
		path:   Resolve(opts.AssetDir, opts.Path),
		args:   opts.Args,
		logger: logging.Or(opts.Logger, "process"),
		done:   make(chan struct{}),
	}
}

// Resolve joins a relative path onto assetDir.
func Resolve(assetDir, path string) string {
	if path == "" || filepath.IsAbs(path) || assetDir == "" {
		return path
	}
	return filepath.Join(assetDir, path)
}

// Path returns the resolved executable path.
func (p *Process) Path() string { return p.path }

// Start launches the executable. ctx only bounds the launch itself; the
// process outlives it until Stop.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != NotStarted || p.cmd != nil {
		return ErrAlreadyStarted
	}
	cmd := exec.Command(p.path, p.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.path, err)
	}
	p.cmd = cmd
	p.state = Running
	p.logger.Info("producer started", zap.String("path", p.path), zap.Int("pid", cmd.Process.Pid))

	go p.wait()
	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.state = Exited
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
	p.logger.Info("producer exited", zap.String("path", p.path), zap.Error(err))
}

// State returns the current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PID returns the process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once a started process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the error from waiting on the process once it exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	if p.State() == NotStarted {
		return ErrNotRunning
	}
	select {
	case <-p.done:
		return p.ExitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates a running process. With a positive grace it sends SIGTERM
// and waits up to grace before killing; with zero grace it kills at once.
// Stop on a process that never started or already exited is a no-op.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	state, cmd := p.state, p.cmd
	p.mu.Unlock()
	if state != Running {
		return nil
	}

	if grace > 0 {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("producer terminate failed", zap.Error(err))
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-p.done:
			return nil
		case <-t.C:
			p.logger.Warn("producer ignored terminate, killing", zap.Duration("grace", grace))
		}
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", p.path, err)
	}
	<-p.done
	return nil
}

// RSS reports the resident set size of the running process in bytes.
func (p *Process) RSS(ctx context.Context) (uint64, error) {
	pid := p.PID()
	if pid == 0 || p.State() != Running {
		return 0, ErrNotRunning
	}
	proc, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, fmt.Errorf("probe pid %d: %w", pid, err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory info pid %d: %w", pid, err)
	}
	return mem.RSS, nil
}

// Alive asks the OS whether the pid still exists.
func (p *Process) Alive(ctx context.Context) bool {
	pid := p.PID()
	if pid == 0 {
		return false
	}
	ok, err := gopsprocess.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok && p.State() == Running
}
