package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/spf13/cobra"
)

// buildRoot creates the root command with every subcommand attached.
func buildRoot(c *command) *cobra.Command {
	root := createRootCommand(c.globals)
	root.AddCommand(
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createStatusCommand(c, &StatusFlags{}),
		createStatisticsCommand(c),
		createAboutCommand(c),
		createLicenseCommand(c),
		createRequestsCommand(c),
		createStackTracesCommand(c),
		createCheckHealthCommand(c),
		createCriticalLogsCommand(c),
		createWhoCommand(c, &WhoFlags{}),
		createLogLevelCommand(c),
		createUpdateAdminUserCommand(c, &AdminUserFlags{}),
		createCreateAdminUserCommand(c),
		createServeCommand(c, &ServeFlags{}),
		createVersionCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "rtctl",
		Short: "Control plane for a managed application runtime",
		Long: `rtctl launches, configures, starts and stops one managed application
runtime that is reachable through its local admin API.

Examples:
  rtctl start                        # launch and bring the runtime up
  rtctl status
  rtctl stop
  rtctl --config /etc/rtctl/shop.toml restart
  rtctl serve                        # HTTP API, metrics and liveness monitor`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to the config file (TOML, or YAML by extension)")
	pf.StringVar(&flags.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.LogFormat, "log-format", "text", "log format: text or json")
	pf.BoolVar(&flags.NonInteractive, "non-interactive", false, "never prompt; decide like an unattended run")
	pf.StringVar(&flags.Server, "server", "", "URL of a running rtctl serve; start, stop and status go through its API")
	return root
}

// signalContext is cancelled on SIGINT and SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func createStartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the runtime if needed and bring it to running",
		Long: `Launch the runtime if it is not running, push the configuration and
negotiate the start until the runtime runs. Questions such as creating a
missing database are asked on the terminal unless --non-interactive is set.

Without detach the runtime stays in the foreground; interrupting rtctl then
stops it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.globals.Server != "" {
				return c.remoteStart(cmd.Context())
			}
			return c.runStart(cmd.Context())
		},
	}
}

func (c *command) runStart(ctx context.Context) error {
	s, err := c.open(true, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ctl.Start(ctx); err != nil {
		return err
	}
	if s.cfg.Detach {
		return nil
	}
	if !s.ctl.Attached() {
		s.logger.Info("the runtime was already running, leaving it in the background")
		return nil
	}

	sctx, cancel := signalContext()
	defer cancel()
	s.logger.Info("the runtime runs in the foreground, interrupt to stop it")
	if err := s.ctl.Wait(sctx); err == nil {
		s.logger.Warn("the runtime exited")
		return nil
	}
	a, err := s.ctl.Stop(context.Background())
	if err != nil {
		return err
	}
	if !a.Stopped {
		return fmt.Errorf("the runtime is still running after %s", a.Tier)
	}
	return nil
}

func createStopCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Shut the runtime down, escalating to terminate and kill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.globals.Server != "" {
				return c.remoteStop(cmd.Context())
			}
			s, err := c.open(false, false)
			if err != nil {
				return err
			}
			defer s.Close()
			a, err := s.ctl.Stop(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Stopped {
				return fmt.Errorf("the runtime is still running (last tier %s)", a.Tier)
			}
			return nil
		},
	}
}

func createRestartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the runtime and start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(true, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.ctl.Restart(cmd.Context())
		},
	}
}

func createStatusCommand(c *command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show liveness, runtime status and critical log messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.globals.Server != "" {
				return c.remoteStatus(cmd.Context(), flags.JSON)
			}
			s, err := c.open(false, true)
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.ctl.Status(cmd.Context())
			var inconsistent *orchestrator.InconsistentStateError
			if err != nil && !errors.As(err, &inconsistent) {
				return err
			}
			if flags.JSON {
				return printJSON(c.out, st)
			}
			printStatus(c, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(c *command, st controller.Status) {
	w := c.out
	switch {
	case !st.PidAlive && !st.AdminAlive:
		_, _ = fmt.Fprintf(w, "%s is not running\n", st.App)
		return
	case st.Problem != "":
		_, _ = fmt.Fprintf(w, "%s: %s\n", st.App, st.Problem)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: runtime status %s", st.App, st.RuntimeStatus)
	if st.PidAlive {
		_, _ = fmt.Fprintf(w, " (pid %d)", st.Pid)
	}
	_, _ = fmt.Fprintln(w)
	if p := st.Process; p != nil {
		_, _ = fmt.Fprintf(w, "  started %s, %d threads, %d MiB resident\n",
			p.CreateTime.Format("2006-01-02 15:04:05"), p.Threads, p.RSSBytes>>20)
	}
	if st.RuntimeStatus == admin.StatusRunning {
		_, _ = fmt.Fprintf(w, "  %d logged in users\n", st.LoggedInUsers)
	}
	if n := len(st.CriticalLogs); n > 0 {
		_, _ = fmt.Fprintf(w, "  %d critical log messages, see critical-logs\n", n)
	}
}

// adminQuery runs fn against the admin API of a configured runtime.
func (c *command) adminQuery(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := c.open(false, true)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}

func createStatisticsCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "statistics",
		Short: "Print runtime and server statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				rt, err := s.ctl.Admin().RuntimeStatistics(ctx)
				if err != nil {
					return err
				}
				srv, err := s.ctl.Admin().ServerStatistics(ctx)
				if err != nil {
					return err
				}
				for k, v := range srv {
					rt[k] = v
				}
				// older runtimes do not offer cache statistics
				if cache, err := s.ctl.Admin().CacheStatistics(ctx); err == nil {
					rt["cache"] = cache
				} else {
					s.logger.Debug("cache statistics not available", "error", err)
				}
				return printJSON(c.out, rt)
			})
		},
	}
}

func createAboutCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Print version and license information of the runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				fb, err := s.ctl.Admin().About(ctx)
				if err != nil {
					return err
				}
				return printJSON(c.out, fb)
			})
		},
	}
}

// feedbackCommand prints the feedback of one admin query as JSON.
func feedbackCommand(c *command, use, short string, query func(*admin.Client, context.Context) (admin.Feedback, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				fb, err := query(s.ctl.Admin(), ctx)
				if err != nil {
					return err
				}
				return printJSON(c.out, fb)
			})
		},
	}
}

func createLicenseCommand(c *command) *cobra.Command {
	return feedbackCommand(c, "license", "Print license information of the runtime", (*admin.Client).LicenseInformation)
}

func createRequestsCommand(c *command) *cobra.Command {
	return feedbackCommand(c, "requests", "Print requests currently handled by the runtime", (*admin.Client).CurrentRuntimeRequests)
}

func createStackTracesCommand(c *command) *cobra.Command {
	return feedbackCommand(c, "stack-traces", "Print stack traces of every runtime thread", (*admin.Client).AllThreadStackTraces)
}

func createCheckHealthCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "check-health",
		Short: "Run the application health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				fb, err := s.ctl.Admin().CheckHealth(ctx)
				if err != nil {
					if k, ok := admin.KindOf(err); ok && k == admin.KindInvalidState {
						return errors.New("health check not available, the runtime is not running")
					}
					return err
				}
				health := fb.String("health")
				switch health {
				case "healthy":
					_, _ = fmt.Fprintln(c.out, "health check: healthy")
				case "sick":
					_, _ = fmt.Fprintf(c.out, "health check: sick: %s\n", fb.String("diagnosis"))
				default:
					_, _ = fmt.Fprintln(c.out, "health check: unknown, no health check microflow configured")
				}
				return nil
			})
		},
	}
}

func createCriticalLogsCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "critical-logs",
		Short: "Print critical log messages reported by the runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				msgs, err := s.ctl.Admin().CriticalLogMessages(ctx)
				if err != nil {
					return err
				}
				if len(msgs) == 0 {
					_, _ = fmt.Fprintln(c.out, "no critical log messages")
				}
				for _, m := range msgs {
					_, _ = fmt.Fprintln(c.out, m)
				}
				return nil
			})
		},
	}
}

func createWhoCommand(c *command, flags *WhoFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "who",
		Short: "List logged in users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				fb, err := s.ctl.Admin().LoggedInUserNames(ctx, flags.Limit)
				if err != nil {
					return err
				}
				count, _ := fb.Int("count")
				_, _ = fmt.Fprintf(c.out, "logged in users: %d\n", count)
				for _, u := range fb.Strings("users") {
					_, _ = fmt.Fprintln(c.out, "  "+u)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "show at most this many users (0 for all)")
	return cmd
}

func createLogLevelCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "loglevel [subscriber [node level]]",
		Short: "Show or change log levels",
		Long: `Without arguments the log levels of every configured subscriber are shown.
With a subscriber only its levels are shown. With a subscriber, a log node
and a level the level of that node is changed.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if n := len(args); n != 0 && n != 1 && n != 3 {
				return fmt.Errorf("expected 0, 1 or 3 arguments, got %d", n)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				if len(args) == 3 {
					if _, err := s.ctl.Admin().SetLogLevel(ctx, args[0], args[1], strings.ToUpper(args[2])); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.out, "log level of %s on %s set to %s\n", args[1], args[0], strings.ToUpper(args[2]))
					return nil
				}
				subs := args
				if len(subs) == 0 {
					for _, sub := range s.cfg.Logging {
						if name, ok := sub["name"].(string); ok {
							subs = append(subs, name)
						}
					}
				}
				for _, sub := range subs {
					fb, err := s.ctl.Admin().GetLogSettings(ctx, sub)
					if err != nil {
						return err
					}
					printLogSettings(c, sub, fb)
				}
				return nil
			})
		},
	}
}

func printLogSettings(c *command, sub string, fb admin.Feedback) {
	_, _ = fmt.Fprintf(c.out, "%s:\n", sub)
	levels := fb.Map(sub)
	if levels == nil {
		levels = fb
	}
	names := make([]string, 0, len(levels))
	for k := range levels {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = fmt.Fprintf(c.out, "  %s %v\n", n, levels[n])
	}
}

func createUpdateAdminUserCommand(c *command, flags *AdminUserFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-admin-user",
		Short: "Change the password of an administrative user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				return c.rekey(ctx, s, flags.Username, func(pw string) error {
					_, err := s.ctl.Admin().UpdateAdminUser(ctx, flags.Username, pw)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&flags.Username, "username", "MxAdmin", "user to update")
	return cmd
}

func createCreateAdminUserCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "create-admin-user",
		Short: "Create the administrative user with a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.adminQuery(cmd, func(ctx context.Context, s *session) error {
				return c.rekey(ctx, s, "MxAdmin", func(pw string) error {
					_, err := s.ctl.Admin().CreateAdminUser(ctx, pw)
					return err
				})
			})
		},
	}
}

// rekey asks the policy for a password typed twice and applies it.
func (c *command) rekey(ctx context.Context, s *session, user string, apply func(string) error) error {
	if !s.ctl.Admin().Ping(ctx, admin.DefaultPingTimeout) {
		return errors.New("the runtime is not running")
	}
	policy := c.newPolicy(c.globals.NonInteractive, c.out)
	cred, err := policy.ReadCredential(ctx, user)
	if err != nil {
		return err
	}
	if cred.Password != cred.Confirmation {
		return errors.New("the passwords do not match")
	}
	if err := apply(cred.Password); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "password of %s changed\n", user)
	return nil
}

func createVersionCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rtctl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(c.out, "rtctl %s\n", version)
			return err
		},
	}
}
