package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/pidstore"
)

// EnvLaunchStage marks a process started as the intermediate launch stage.
// The stage reads its stageSpec as JSON from stdin.
const EnvLaunchStage = "RTCTL_LAUNCH_STAGE"

type stageSpec struct {
	Name          string        `json:"name"`
	Command       []string      `json:"command"`
	Env           []string      `json:"env"`
	WorkDir       string        `json:"workdir"`
	PidFile       string        `json:"pidfile"`
	AdminURL      string        `json:"admin_url"`
	AdminPassword string        `json:"admin_password"`
	Timeout       time.Duration `json:"timeout"`
	PollInterval  time.Duration `json:"poll_interval"`
}

func (s *Supervisor) stageSpec() stageSpec {
	cfg := s.client.Config()
	env := s.opts.Env
	if env == nil {
		env = os.Environ()
	}
	return stageSpec{
		Name:          s.opts.Name,
		Command:       s.opts.Command,
		Env:           env,
		WorkDir:       s.opts.WorkDir,
		PidFile:       s.store.Path(),
		AdminURL:      cfg.URL,
		AdminPassword: cfg.Password,
		Timeout:       s.opts.Timeout,
		PollInterval:  s.opts.PollInterval,
	}
}

func (sp stageSpec) encode() (string, error) {
	b, err := json.Marshal(sp)
	if err != nil {
		return "", fmt.Errorf("encode launch stage: %w", err)
	}
	return string(b), nil
}

// RunLaunchStageIfRequested runs the intermediate launch stage when the
// current process was started as one, and exits with a launch code. It
// returns immediately otherwise. Binaries that launch detached must call it
// first thing in main (and tests in TestMain).
func RunLaunchStageIfRequested() {
	if os.Getenv(EnvLaunchStage) == "" {
		return
	}
	os.Exit(runStage(os.Stdin, os.Stdout))
}

func runStage(in io.Reader, out *os.File) int {
	var spec stageSpec
	if err := json.NewDecoder(in).Decode(&spec); err != nil {
		_, _ = fmt.Fprintf(out, "launch stage: %v\n", err)
		return CodeForkExec
	}
	_ = os.Unsetenv(EnvLaunchStage)
	setStageUmask()
	_ = os.Chdir("/")

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := admin.New(admin.Config{URL: spec.AdminURL, Password: spec.AdminPassword, Logger: quiet})
	sup := New(pidstore.New(spec.PidFile), client, Options{
		Name:         spec.Name,
		Command:      spec.Command,
		Env:          spec.Env,
		WorkDir:      spec.WorkDir,
		Timeout:      spec.Timeout,
		PollInterval: spec.PollInterval,
		Logger:       quiet,
	})
	// out is handed to the target as is, so it keeps writing to the
	// first stage's pipe directly
	return sup.runTarget(context.Background(), out).code
}
