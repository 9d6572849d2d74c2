// Package controller assembles the supervisor, admin client and orchestrator
// for one configured runtime and serialises control operations on it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/config"
	"github.com/loykin/rtctl/internal/history"
	"github.com/loykin/rtctl/internal/history/factory"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/loykin/rtctl/internal/pidstore"
	"github.com/loykin/rtctl/internal/supervisor"
)

// ErrNotStopped is returned by Restart when the runtime could not be stopped.
var ErrNotStopped = errors.New("the runtime could not be stopped")

type Options struct {
	Logger *slog.Logger
	Policy orchestrator.Policy
	// Sink overrides the history sink built from history.dsn.
	Sink history.Sink
}

type Controller struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *admin.Client
	sup      *supervisor.Supervisor
	orch     *orchestrator.Orchestrator
	recorder *history.Recorder
	output   io.WriteCloser

	mu sync.Mutex
}

// New wires a controller for cfg. The policy is required.
func New(cfg *config.Config, opts Options) (*Controller, error) {
	if opts.Policy == nil {
		return nil, errors.New("controller: a decision policy is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.EnvWarnings() {
		logger.Warn(w)
	}

	client := admin.New(admin.Config{
		URL:      cfg.AdminURL(),
		Password: cfg.Admin.Password,
		Timeout:  cfg.Admin.Timeout,
		Logger:   logger,
	})

	output := cfg.OutputLog.Writer()
	supOpts := supervisor.Options{
		Name:         cfg.AppName,
		Command:      cfg.Command,
		Env:          cfg.RuntimeEnv(),
		WorkDir:      cfg.WorkDir,
		Detach:       cfg.Detach,
		Timeout:      cfg.Timeouts.Launch,
		PollInterval: cfg.Timeouts.PollInterval,
		Logger:       logger,
	}
	if output != nil {
		supOpts.Output = output
	}
	sup := supervisor.New(pidstore.New(cfg.PIDFile), client, supOpts)

	sink := opts.Sink
	if sink == nil && cfg.History.DSN != "" {
		s, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			logger.Warn("history disabled", "error", err)
		} else {
			sink = s
		}
	}
	recorder := history.NewRecorder(sink, cfg.AppName, logger)

	obs := &observer{app: cfg.AppName, recorder: recorder, pid: sup.Pid}
	orch := orchestrator.New(sup, client, opts.Policy, orchestrator.Config{
		AppName:            cfg.AppName,
		DeploymentMode:     cfg.DeploymentMode,
		MaxStartRounds:     cfg.MaxStartRounds,
		StopTimeout:        cfg.Timeouts.Stop,
		TerminateTimeout:   cfg.Timeouts.Terminate,
		KillTimeout:        cfg.Timeouts.Kill,
		AppContainerConfig: cfg.AppContainerConfig,
		LogSubscribers:     subscribers(cfg.Logging),
		RuntimeConfig:      cfg.RuntimeParams(),
	},
		orchestrator.WithDDLSink(orchestrator.FileDDLSink{Dir: cfg.DDLDumpPath}),
		orchestrator.WithObserver(obs),
		orchestrator.WithLogger(logger),
	)

	return &Controller{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		sup:      sup,
		orch:     orch,
		recorder: recorder,
		output:   output,
	}, nil
}

func subscribers(in []map[string]any) []admin.Params {
	out := make([]admin.Params, 0, len(in))
	for _, s := range in {
		out = append(out, admin.Params(s))
	}
	return out
}

func (c *Controller) Config() *config.Config { return c.cfg }

// Admin exposes the admin client for read-only queries.
func (c *Controller) Admin() *admin.Client { return c.client }

func (c *Controller) State() orchestrator.State { return c.orch.State() }

func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orch.Start(ctx)
}

func (c *Controller) Stop(ctx context.Context) (orchestrator.ShutdownAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orch.Shutdown(ctx)
}

// Restart starts the runtime again only after it was stopped.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.orch.Shutdown(ctx)
	if err != nil {
		return err
	}
	if !a.Stopped {
		return fmt.Errorf("%w (last tier %s)", ErrNotStopped, a.Tier)
	}
	return c.orch.Start(ctx)
}

// Attached reports whether this controller holds the runtime as its own
// child, so that Wait blocks until it exits.
func (c *Controller) Attached() bool { return c.sup.Done() != nil }

// Wait blocks until an attached runtime exits or ctx is done. It returns at
// once when the runtime was launched detached or by another controller.
func (c *Controller) Wait(ctx context.Context) error {
	done := c.sup.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check probes liveness. An InconsistentStateError comes back next to the
// probe result.
func (c *Controller) Check(ctx context.Context) (orchestrator.Liveness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orch.CheckLiveness(ctx)
}

// Status gathers what is known about the runtime. Admin queries are only
// issued when the admin API answers.
type Status struct {
	App           string               `json:"app"`
	State         string               `json:"state"`
	Pid           int                  `json:"pid"`
	PidAlive      bool                 `json:"pid_alive"`
	AdminAlive    bool                 `json:"admin_alive"`
	RuntimeStatus string               `json:"runtime_status,omitempty"`
	CriticalLogs  []string             `json:"critical_logs,omitempty"`
	LoggedInUsers int                  `json:"logged_in_users"`
	Process       *supervisor.ProcInfo `json:"process,omitempty"`
	Problem       string               `json:"problem,omitempty"`
}

func (c *Controller) Status(ctx context.Context) (Status, error) {
	l, lerr := c.Check(ctx)
	st := Status{
		App:        c.cfg.AppName,
		State:      c.orch.State().String(),
		Pid:        l.Pid,
		PidAlive:   l.PidAlive,
		AdminAlive: l.AdminAlive,
	}
	if lerr != nil {
		st.Problem = lerr.Error()
	}
	if l.PidAlive {
		if info, err := c.sup.Inspect(ctx); err == nil {
			st.Process = info
		} else {
			c.logger.Debug("process inspection failed", "error", err)
		}
	}
	if !l.AdminAlive {
		return st, lerr
	}
	status, err := c.client.RuntimeStatus(ctx)
	if err != nil {
		return st, err
	}
	st.RuntimeStatus = status
	if logs, err := c.client.CriticalLogMessages(ctx); err == nil {
		st.CriticalLogs = logs
	}
	if status == admin.StatusRunning {
		if fb, err := c.client.LoggedInUserNames(ctx, 0); err == nil {
			st.LoggedInUsers, _ = fb.Int("count")
		}
	}
	return st, nil
}

func (c *Controller) Close() error {
	var errs []error
	if err := c.recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.output != nil {
		errs = append(errs, c.output.Close())
	}
	return errors.Join(errs...)
}
