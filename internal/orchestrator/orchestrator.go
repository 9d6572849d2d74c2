// Package orchestrator drives the managed runtime from NotStarted to Running
// and back down through an escalating shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/rtctl/internal/admin"
)

const (
	DefaultMaxStartRounds        = 10
	DefaultMaxCredentialAttempts = 5
	DefaultStopTimeout           = 10 * time.Second
	DefaultTerminateTimeout      = 10 * time.Second
	DefaultKillTimeout           = 10 * time.Second
)

// Supervisor is the process side the orchestrator needs.
type Supervisor interface {
	Launch(ctx context.Context) error
	Stop(ctx context.Context, timeout time.Duration) bool
	Terminate(timeout time.Duration) bool
	Kill(timeout time.Duration) bool
	CheckAlive() bool
	CleanupPid()
	Pid() int
}

// Runtime is the admin API surface the orchestrator needs.
type Runtime interface {
	Ping(ctx context.Context, timeout time.Duration) bool
	RequireAction(ctx context.Context, action string) error
	RuntimeStatus(ctx context.Context) (string, error)
	UpdateAppContainerConfiguration(ctx context.Context, params admin.Params) (admin.Feedback, error)
	CreateLogSubscriber(ctx context.Context, params admin.Params) (admin.Feedback, error)
	StartLogging(ctx context.Context) (admin.Feedback, error)
	UpdateConfiguration(ctx context.Context, params admin.Params) (admin.Feedback, error)
	Start(ctx context.Context, params admin.Params) (admin.Feedback, error)
	GetDDLCommands(ctx context.Context, params admin.Params) (admin.Feedback, error)
	ExecuteDDLCommands(ctx context.Context) (admin.Feedback, error)
	UpdateAdminUser(ctx context.Context, username, password string) (admin.Feedback, error)
	Shutdown(ctx context.Context, timeout time.Duration)
}

// Config holds the startup inputs.
type Config struct {
	AppName string
	// DeploymentMode starting with D or T permits automatic database
	// creation; A and P do not.
	DeploymentMode string
	// MaxStartRounds bounds start calls per Start; 0 means unbounded.
	MaxStartRounds        int
	MaxCredentialAttempts int
	PingTimeout           time.Duration
	StopTimeout           time.Duration
	TerminateTimeout      time.Duration
	KillTimeout           time.Duration

	AppContainerConfig admin.Params
	LogSubscribers     []admin.Params
	RuntimeConfig      admin.Params
}

// Permissive reports whether mode allows automatic database creation.
func Permissive(mode string) bool {
	m := strings.ToUpper(strings.TrimSpace(mode))
	return strings.HasPrefix(m, "D") || strings.HasPrefix(m, "T")
}

type Option func(*Orchestrator)

func WithDDLSink(s DDLSink) Option { return func(o *Orchestrator) { o.ddl = s } }

func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.obs = obs } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// Orchestrator owns the startup state. Start and Shutdown are not meant to
// run concurrently; callers serialise control operations.
type Orchestrator struct {
	sup    Supervisor
	rt     Runtime
	policy Policy
	ddl    DDLSink
	obs    Observer
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(sup Supervisor, rt Runtime, policy Policy, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxCredentialAttempts <= 0 {
		cfg.MaxCredentialAttempts = DefaultMaxCredentialAttempts
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = admin.DefaultPingTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = DefaultTerminateTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	o := &Orchestrator{sup: sup, rt: rt, policy: policy, cfg: cfg, obs: NopObserver{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator", "app", cfg.AppName)
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()
	if from != to {
		o.logger.Debug("state transition", "from", from.String(), "to", to.String())
	}
	o.obs.Transition(from, to)
}

// Liveness is the pair of independent liveness probes.
type Liveness struct {
	Pid        int
	PidAlive   bool
	AdminAlive bool
}

// CheckLiveness probes the pid and the admin API. A live pid whose admin API
// does not answer yields an InconsistentStateError next to the result.
func (o *Orchestrator) CheckLiveness(ctx context.Context) (Liveness, error) {
	l := Liveness{PidAlive: o.sup.CheckAlive(), AdminAlive: o.rt.Ping(ctx, o.cfg.PingTimeout)}
	l.Pid = o.sup.Pid()
	o.obs.Liveness(l)
	switch {
	case l.PidAlive && !l.AdminAlive:
		err := &InconsistentStateError{Pid: l.Pid}
		o.logger.Error("runtime process seems to be running but is not accessible; check the admin port setting or the runtime logs for out of memory errors", "pid", l.Pid)
		return l, err
	case !l.PidAlive && l.AdminAlive:
		o.logger.Error("pid is not available, but the admin api responds", "pid", l.Pid)
	}
	return l, nil
}

// Start brings the runtime to Running. It launches the process when nothing
// is alive, pushes configuration and negotiates the admin start action until
// it succeeds, the policy aborts, or a fatal condition occurs.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.state = NotStarted
	o.mu.Unlock()

	l, err := o.CheckLiveness(ctx)
	if err != nil {
		o.transition(Fatal)
		return err
	}
	if !l.PidAlive && !l.AdminAlive {
		o.transition(Launching)
		o.logger.Info("trying to start the runtime")
		if err := o.sup.Launch(ctx); err != nil {
			o.transition(Fatal)
			return err
		}
	}

	status, err := o.rt.RuntimeStatus(ctx)
	if err != nil {
		o.transition(Fatal)
		return err
	}
	o.logger.Debug("runtime status", "status", status)
	switch status {
	case admin.StatusRunning:
		o.logger.Info("the runtime is already running")
		o.transition(Running)
		return nil
	case admin.StatusCreated, admin.StatusStarting:
	default:
		o.transition(Fatal)
		return &UnexpectedStatusError{Status: status}
	}

	o.transition(ConfigSent)
	if err := o.pushConfig(ctx); err != nil {
		o.transition(Fatal)
		return err
	}
	return o.negotiate(ctx)
}

func (o *Orchestrator) pushConfig(ctx context.Context) error {
	if len(o.cfg.AppContainerConfig) > 0 {
		if _, err := o.rt.UpdateAppContainerConfiguration(ctx, o.cfg.AppContainerConfig); err != nil {
			return fmt.Errorf("push appcontainer configuration: %w", err)
		}
	}
	for _, sub := range o.cfg.LogSubscribers {
		if _, err := o.rt.CreateLogSubscriber(ctx, sub); err != nil {
			if k, _ := admin.KindOf(err); k == admin.KindSubscriberExists {
				o.logger.Debug("log subscriber already exists", "name", sub["name"])
				continue
			}
			return fmt.Errorf("create log subscriber: %w", err)
		}
	}
	if _, err := o.rt.StartLogging(ctx); err != nil {
		return fmt.Errorf("start logging: %w", err)
	}
	params := o.cfg.RuntimeConfig
	if params == nil {
		params = admin.Params{}
	}
	if _, err := o.rt.UpdateConfiguration(ctx, params); err != nil {
		return fmt.Errorf("push runtime configuration: %w", err)
	}
	return nil
}

// negotiate loops the start action, resolving recoverable results through
// the policy. Decisions such as autocreatedb carry into later rounds.
func (o *Orchestrator) negotiate(ctx context.Context) error {
	params := admin.Params{}
	for round := 1; ; round++ {
		if o.cfg.MaxStartRounds > 0 && round > o.cfg.MaxStartRounds {
			return o.abort(ctx, fmt.Errorf("runtime did not start within %d start rounds", o.cfg.MaxStartRounds))
		}
		o.transition(Negotiating)

		_, err := o.rt.Start(ctx, params)
		if err == nil {
			o.obs.StartRound(round, admin.KindOK.String())
			o.logger.Info("the runtime is fully started now")
			o.transition(Running)
			return nil
		}

		var pe *admin.ProtocolError
		if !errors.As(err, &pe) {
			o.obs.StartRound(round, "transport")
			o.transition(Fatal)
			return err
		}
		o.obs.StartRound(round, pe.Kind.String())
		o.logger.Warn("start did not succeed", "round", round, "result", pe.Result, "kind", pe.Kind.String(), "message", pe.Message)

		switch pe.Kind {
		case admin.KindNoExistingDB:
			o.transition(NeedsDbCreation)
			err = o.resolveDB(ctx, params)
		case admin.KindSchemaOutOfSync:
			o.transition(NeedsSchemaSync)
			err = o.resolveSchema(ctx)
		case admin.KindMissingConstants:
			// the runtime already named the missing constants in its message
			o.transition(NeedsConstantFix)
			o.logger.Error("add the missing constant definitions to the runtime configuration and start again")
			o.transition(Fatal)
			return pe
		case admin.KindInsecureAdminCredential:
			o.transition(NeedsCredentialReset)
			err = o.resetCredentials(ctx, pe.Feedback.Strings("users"))
		default:
			o.transition(Fatal)
			o.stopPartial(ctx)
			return pe
		}
		if err != nil {
			return err
		}
	}
}

func (o *Orchestrator) resolveDB(ctx context.Context, params admin.Params) error {
	permissive := Permissive(o.cfg.DeploymentMode)
	d, err := o.policy.ResolveDBCreation(ctx, permissive)
	if err != nil {
		return o.abort(ctx, err)
	}
	switch d {
	case DBAbort:
		return o.abort(ctx, nil)
	case DBCreate:
		if !permissive {
			o.logger.Error("automatic database creation is disabled in acceptance and production mode, retrying instead")
			return nil
		}
		err := o.rt.RequireAction(ctx, admin.ActionExecuteDDLCommands)
		var ce *admin.CapabilityError
		switch {
		case err == nil:
			// creates the database and runs the initial ddl in one go
			if _, err := o.rt.ExecuteDDLCommands(ctx); err != nil {
				if admin.IsTransport(err) {
					return o.fail(err)
				}
				o.logger.Error("creating the database did not succeed", "error", err)
			}
		case errors.As(err, &ce):
			params["autocreatedb"] = true
		default:
			return o.fail(err)
		}
	}
	return nil
}

func (o *Orchestrator) resolveSchema(ctx context.Context) error {
	fb, err := o.rt.GetDDLCommands(ctx, admin.Params{"verbose": true})
	if err != nil {
		return o.fail(err)
	}
	ddl := fb.Strings("ddl_commands")
	d, err := o.policy.ResolveSchemaSync(ctx, ddl)
	if err != nil {
		return o.abort(ctx, err)
	}
	if d == SchemaAbort {
		return o.abort(ctx, nil)
	}
	if o.ddl != nil {
		path, err := o.ddl.SaveDDL(ctx, ddl)
		if err != nil {
			o.logger.Error("saving ddl commands failed", "error", err)
		} else {
			o.logger.Info("saved ddl commands", "path", path)
		}
	}
	if d == SchemaExecute {
		if _, err := o.rt.ExecuteDDLCommands(ctx); err != nil {
			if admin.IsTransport(err) {
				return o.fail(err)
			}
			o.logger.Error("executing ddl commands did not succeed", "error", err)
		}
	}
	return nil
}

// resetCredentials re-keys every account. A mismatched confirmation or a
// rejected update asks again for the same account.
func (o *Orchestrator) resetCredentials(ctx context.Context, accounts []string) error {
	ok, err := o.policy.ResolveCredentialReset(ctx, accounts)
	if err != nil {
		return o.abort(ctx, err)
	}
	if !ok {
		return o.abort(ctx, nil)
	}
	for _, account := range accounts {
		changed := false
		for attempt := 1; !changed; attempt++ {
			if attempt > o.cfg.MaxCredentialAttempts {
				return o.abort(ctx, fmt.Errorf("password for %s not changed after %d attempts", account, o.cfg.MaxCredentialAttempts))
			}
			cred, err := o.policy.ReadCredential(ctx, account)
			if err != nil {
				return o.abort(ctx, err)
			}
			if cred.Password != cred.Confirmation {
				o.logger.Warn("the passwords are not equal", "user", account)
				continue
			}
			if _, err := o.rt.UpdateAdminUser(ctx, account, cred.Password); err != nil {
				if admin.IsTransport(err) {
					return o.fail(err)
				}
				o.logger.Error("changing the password did not succeed", "user", account, "error", err)
				continue
			}
			changed = true
		}
	}
	return nil
}

func (o *Orchestrator) fail(err error) error {
	o.transition(Fatal)
	return err
}

// abort ends a Start on request of the policy and stops what was started.
func (o *Orchestrator) abort(ctx context.Context, reason error) error {
	o.transition(Aborted)
	o.stopPartial(ctx)
	if reason != nil {
		return fmt.Errorf("%w: %w", ErrAborted, reason)
	}
	return ErrAborted
}

func (o *Orchestrator) stopPartial(ctx context.Context) {
	o.logger.Info("stopping the partially started runtime")
	if !o.sup.Stop(ctx, o.cfg.StopTimeout) {
		o.logger.Warn("the runtime did not shut down by itself, use stop to escalate")
	}
}
