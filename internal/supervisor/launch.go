package supervisor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/logger"
	"github.com/loykin/rtctl/internal/metrics"
)

const defaultSearchPath = "/bin:/usr/bin"

// Launch starts the managed process and waits for it to answer on the admin
// API. It never retries; every failure is a *LaunchError.
func (s *Supervisor) Launch(ctx context.Context) error {
	if s.CheckAlive() {
		s.logger.Error("the managed process is already started", "pid", s.Pid())
		return ErrAlreadyRunning
	}
	begin := time.Now()
	var err error
	if s.opts.Detach {
		err = s.launchDetached(ctx)
	} else {
		err = s.launchAttached(ctx)
	}
	metrics.ObserveLaunchDuration(s.opts.Name, time.Since(begin).Seconds())
	outcome := "ready"
	var le *LaunchError
	if errors.As(err, &le) {
		outcome = le.Kind.String()
	} else if err != nil {
		outcome = "error"
	}
	metrics.IncLaunch(s.opts.Name, outcome)
	return err
}

func (s *Supervisor) launchAttached(ctx context.Context) error {
	out := s.opts.Output
	if out == nil {
		out = os.Stdout
	}
	tail := newTailBuffer(64 << 10)
	res := s.runTarget(ctx, io.MultiWriter(out, tail))
	if res.code == CodeReady {
		s.mu.Lock()
		s.attached = &attachedProc{cmd: res.cmd, done: res.done}
		s.mu.Unlock()
		s.logger.Debug("managed process started", "pid", res.cmd.Process.Pid)
		return nil
	}
	return s.launchFailed(res.code, tail.String(), res.err)
}

func (s *Supervisor) launchDetached(ctx context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return &LaunchError{Kind: KindForkExec, Code: CodeForkExec, Err: err}
	}
	spec := s.stageSpec()
	payload, err := spec.encode()
	if err != nil {
		return &LaunchError{Kind: KindForkExec, Code: CodeForkExec, Err: err}
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return &LaunchError{Kind: KindForkExec, Code: CodeForkExec, Err: err}
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), EnvLaunchStage+"=1")
	cmd.Dir = "/"
	cmd.Stdin = strings.NewReader(payload)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = stageAttrs()

	s.logger.Log(ctx, logger.LevelTrace, "starting intermediate launch stage", "exe", exe)
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return &LaunchError{Kind: KindForkExec, Code: CodeForkExec, Err: err}
	}
	// the target inherits the write end; ours must go so reads can finish
	_ = pw.Close()

	var echo io.Writer
	if stderrIsTerminal() {
		echo = os.Stderr
	}
	rl := startRelay(pr, echo, s.opts.Output)
	waitErr := cmd.Wait()
	output := rl.finish(200 * time.Millisecond)

	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return &LaunchError{Kind: KindUnknown, Code: code, Output: output, Err: waitErr}
	}
	// the stage recorded the pid; read it back from the pidfile
	s.forgetPid()
	if code != CodeReady {
		return s.launchFailed(code, output, nil)
	}
	s.logger.Debug("managed process started", "pid", s.Pid())
	s.closeStdio(ctx)
	return nil
}

// closeStdio asks the runtime to drop the stdio it inherited from the launch
// stage, whose reading end is gone now.
func (s *Supervisor) closeStdio(ctx context.Context) {
	if err := s.client.RequireAction(ctx, admin.ActionCloseStdio); err != nil {
		s.logger.Debug("runtime does not offer close_stdio", "error", err)
		return
	}
	if _, err := s.client.CloseStdio(ctx); err != nil {
		s.logger.Warn("close_stdio failed", "error", err)
	}
}

// launchFailed turns an exit code into a LaunchError. A readiness timeout
// leaves a half-started process behind which is terminated, then killed.
func (s *Supervisor) launchFailed(code int, output string, cause error) error {
	if code == CodeTimeout {
		stopped := false
		if s.CheckAlive() {
			stopped = s.Terminate(escalateWait)
		}
		if !stopped && s.CheckAlive() {
			s.logger.Error("unable to terminate managed process")
			stopped = s.Kill(escalateWait)
			if !stopped {
				s.logger.Error("unable to kill managed process")
			}
		}
	}
	return &LaunchError{Kind: KindForCode(code), Code: code, Output: output, Err: cause}
}

type targetResult struct {
	code int
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// runTarget starts the command, records its pid at once and polls until it is
// ready, exits, or the launch timeout passes.
func (s *Supervisor) runTarget(ctx context.Context, out io.Writer) targetResult {
	if len(s.opts.Command) == 0 {
		return targetResult{code: CodeForkExec, err: errors.New("empty command")}
	}
	env := s.opts.Env
	if env == nil {
		env = os.Environ()
	}
	path, err := lookPath(s.opts.Command[0], env)
	if err != nil {
		s.logger.Error("binary cannot be found in the search path", "binary", s.opts.Command[0], "path", envValue(env, "PATH"))
		return targetResult{code: CodeBinaryNotFound, err: err}
	}

	cmd := &exec.Cmd{Path: path, Args: s.opts.Command, Env: env, Stdout: out, Stderr: out}
	cmd.Dir = s.opts.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = "/"
	}
	s.logger.Log(ctx, logger.LevelTrace, "starting managed process", "command", strings.Join(s.opts.Command, " "))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			return targetResult{code: CodeBinaryNotFound, err: err}
		}
		s.logger.Error("starting managed process failed", "error", err)
		return targetResult{code: CodeForkExec, err: err}
	}

	// written before readiness so monitoring sees processes that fail to start
	pid := cmd.Process.Pid
	s.setPid(pid)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	deadline := time.Now().Add(s.opts.Timeout)
	pingTimeout := min(admin.DefaultPingTimeout, s.opts.Timeout)
	for {
		select {
		case <-done:
			status := cmd.ProcessState.ExitCode()
			s.logger.Debug("managed process terminated", "exit_code", status)
			return targetResult{code: CodeExitedClean + status, cmd: cmd, done: done}
		case <-ctx.Done():
			return targetResult{code: CodeTimeout, cmd: cmd, done: done, err: ctx.Err()}
		case <-time.After(s.opts.PollInterval):
		}
		if pidAlive(pid) && s.client.Ping(ctx, pingTimeout) {
			return targetResult{code: CodeReady, cmd: cmd, done: done}
		}
		if !time.Now().Before(deadline) {
			s.logger.Debug("managed process takes too long to start", "timeout", s.opts.Timeout)
			return targetResult{code: CodeTimeout, cmd: cmd, done: done}
		}
	}
}

// lookPath resolves file against PATH taken from the target environment
// rather than the controller's own.
func lookPath(file string, env []string) (string, error) {
	if strings.Contains(file, "/") {
		// explicit paths are left to Start so permission errors stay distinct
		return file, nil
	}
	search := envValue(env, "PATH")
	if search == "" {
		search = defaultSearchPath
	}
	for _, dir := range filepath.SplitList(search) {
		if dir == "" {
			dir = "."
		}
		p := filepath.Join(dir, file)
		if executable(p) == nil {
			return p, nil
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func executable(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() || fi.Mode().Perm()&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

func envValue(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}
