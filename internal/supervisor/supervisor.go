// Package supervisor launches, signals and reaps the single managed runtime
// process and owns its pid bookkeeping.
package supervisor

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/logger"
	"github.com/loykin/rtctl/internal/pidstore"
)

const (
	DefaultLaunchTimeout = 60 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond

	// minStopWait is granted to the pid wait when the shutdown request used
	// up the whole stop budget.
	minStopWait = 2 * time.Second
	// escalateWait bounds terminate and kill after a readiness timeout.
	escalateWait = 5 * time.Second
)

// Options configure how the managed process is started.
type Options struct {
	Name    string
	Command []string // argv; Command[0] is resolved against PATH from Env
	// Env is the complete target environment. Nil inherits the controller's.
	Env     []string
	WorkDir string
	// Detach launches through an intermediate stage in a new session so the
	// process outlives the controller.
	Detach       bool
	Timeout      time.Duration
	PollInterval time.Duration
	// Output receives the process output in attached mode and a copy of the
	// relayed startup output in detached mode. Nil means the controller's
	// stdout.
	Output io.Writer
	Logger *slog.Logger
}

type attachedProc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor manages one process. It is not a singleton: callers create one
// per managed runtime and pass it around.
type Supervisor struct {
	store  *pidstore.Store
	client *admin.Client
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	pid      int
	attached *attachedProc
}

func New(store *pidstore.Store, client *admin.Client, opts Options) *Supervisor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLaunchTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "runtime"
	}
	return &Supervisor{
		store:  store,
		client: client,
		opts:   opts,
		logger: opts.Logger.With("component", "supervisor", "app", opts.Name),
	}
}

func (s *Supervisor) Options() Options { return s.opts }

// Pid returns the tracked pid, re-reading the pidfile when none is held in
// memory. Zero means no pid is known.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pid == 0 {
		pid, ok, err := s.store.Read()
		if err != nil {
			s.logger.Warn("cannot read pidfile", "error", err)
		}
		if ok {
			s.pid = pid
		}
	}
	return s.pid
}

func (s *Supervisor) setPid(pid int) {
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
	if err := s.store.Write(pid); err != nil {
		s.logger.Error("cannot write pidfile", "pid", pid, "error", err)
	}
}

// forgetPid drops the in-memory pid so the next Pid call consults the file.
func (s *Supervisor) forgetPid() {
	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()
}

// CheckAlive reports whether the tracked process exists. An attached child
// whose wait has completed is not alive.
func (s *Supervisor) CheckAlive() bool {
	s.mu.Lock()
	if a := s.attached; a != nil {
		select {
		case <-a.done:
			s.logger.Log(context.Background(), logger.LevelTrace, "attached process exited", "exit_code", a.cmd.ProcessState.ExitCode())
			s.attached = nil
			s.mu.Unlock()
			return false
		default:
		}
	}
	s.mu.Unlock()

	pid := s.Pid()
	if pid == 0 {
		return false
	}
	return pidAlive(pid)
}

// Done returns a channel closed when the attached child exits. It is nil
// when no attached child is held, for example after a detached launch.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == nil {
		return nil
	}
	return s.attached.done
}

// CleanupPid clears the in-memory and persisted pid. Only call it once the
// process is known to be gone.
func (s *Supervisor) CleanupPid() {
	s.logger.Debug("cleaning up pid and pidfile")
	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("cannot remove pidfile", "error", err)
	}
}

// Stop asks the runtime to shut down through the admin API and waits for the
// pid to disappear. True means the process is gone and the pid was cleared.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) bool {
	if s.Pid() == 0 {
		return true
	}
	begin := time.Now()
	s.client.Shutdown(ctx, timeout)
	remaining := timeout - time.Since(begin)
	if remaining < time.Second {
		s.logger.Debug("shutdown request returned late, extending pid wait", "wait", minStopWait)
		remaining = minStopWait
	}
	return s.waitGone(remaining)
}

// Terminate sends SIGTERM and waits up to timeout. Without a tracked pid it
// returns true and sends nothing.
func (s *Supervisor) Terminate(timeout time.Duration) bool {
	return s.signal("SIGTERM", sendTerminate, timeout)
}

// Kill sends SIGKILL and waits up to timeout.
func (s *Supervisor) Kill(timeout time.Duration) bool {
	return s.signal("SIGKILL", sendKill, timeout)
}

func (s *Supervisor) signal(name string, send func(int) error, timeout time.Duration) bool {
	pid := s.Pid()
	if pid == 0 {
		return true
	}
	if !s.CheckAlive() {
		s.CleanupPid()
		return true
	}
	s.logger.Debug("sending signal", "signal", name, "pid", pid)
	if err := send(pid); err != nil {
		s.logger.Debug("signal failed, process already gone?", "signal", name, "pid", pid, "error", err)
	}
	return s.waitGone(timeout)
}

// waitGone polls liveness every poll interval until the process disappears
// or timeout passes. On success the pid is cleaned up.
func (s *Supervisor) waitGone(timeout time.Duration) bool {
	if s.CheckAlive() {
		deadline := time.Now().Add(timeout)
		for {
			time.Sleep(s.opts.PollInterval)
			if !s.CheckAlive() {
				break
			}
			if !time.Now().Before(deadline) {
				s.logger.Debug("process takes too long to disappear", "pid", s.Pid(), "timeout", timeout)
				return false
			}
		}
	}
	s.CleanupPid()
	return true
}
