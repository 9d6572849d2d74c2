package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/loykin/rtctl/internal/config"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/decision"
	"github.com/loykin/rtctl/internal/logger"
	"github.com/loykin/rtctl/internal/orchestrator"
)

// command carries what every subcommand shares. Tests swap the policy.
type command struct {
	globals   *GlobalFlags
	out       io.Writer
	logOut    io.Writer
	newPolicy func(batch bool, out io.Writer) orchestrator.Policy
}

func newCommand(out io.Writer) *command {
	return &command{
		globals:   &GlobalFlags{},
		out:       out,
		logOut:    os.Stderr,
		newPolicy: defaultPolicy,
	}
}

func defaultPolicy(batch bool, out io.Writer) orchestrator.Policy {
	return decision.Select(decision.Env{NonInteractive: batch}, out)
}

// session is one loaded configuration with its controller.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	ctl    *controller.Controller
	closer io.Closer
}

func (s *session) Close() {
	_ = s.ctl.Close()
	_ = s.closer.Close()
}

// open loads the configuration and wires a controller. validate checks the
// whole configuration before anything is launched; queries skip it. batch
// forces the non-interactive policy.
func (c *command) open(validate, batch bool) (*session, error) {
	cfg, err := config.Load(c.globals.ConfigPath)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}
	log, closer, err := logger.New(c.logOut, logger.Options{Level: c.globals.LogLevel, Format: c.globals.LogFormat})
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		log.Debug("configuration loaded", "file", cfg.File)
	}
	ctl, err := controller.New(cfg, controller.Options{
		Logger: log,
		Policy: c.newPolicy(batch || c.globals.NonInteractive, c.out),
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &session{cfg: cfg, logger: log, ctl: ctl, closer: closer}, nil
}
