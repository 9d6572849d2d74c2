package admin

import (
	"context"
	"time"

	"github.com/loykin/rtctl/internal/logger"
)

const (
	ActionEcho                            = "echo"
	ActionRuntimeStatus                   = "runtime_status"
	ActionRuntimeStatistics               = "runtime_statistics"
	ActionServerStatistics                = "server_statistics"
	ActionStart                           = "start"
	ActionShutdown                        = "shutdown"
	ActionUpdateConfiguration             = "update_configuration"
	ActionUpdateAppContainerConfiguration = "update_appcontainer_configuration"
	ActionCreateLogSubscriber             = "create_log_subscriber"
	ActionStartLogging                    = "start_logging"
	ActionGetDDLCommands                  = "get_ddl_commands"
	ActionExecuteDDLCommands              = "execute_ddl_commands"
	ActionUpdateAdminUser                 = "update_admin_user"
	ActionCreateAdminUser                 = "create_admin_user"
	ActionGetLoggedInUserNames            = "get_logged_in_user_names"
	ActionSetLogLevel                     = "set_log_level"
	ActionGetLogSettings                  = "get_log_settings"
	ActionCheckHealth                     = "check_health"
	ActionAbout                           = "about"
	ActionCloseStdio                      = "close_stdio"
	ActionGetAdminActionInfo              = "get_admin_action_info"
	ActionGetLicenseInformation           = "get_license_information"
	ActionGetCurrentRuntimeRequests       = "get_current_runtime_requests"
	ActionGetAllThreadStackTraces         = "get_all_thread_stack_traces"
	ActionCacheStatistics                 = "cache_statistics"
)

// Runtime status values reported by runtime_status.
const (
	StatusCreated  = "created"
	StatusStarting = "starting"
	StatusRunning  = "running"
)

// Echo sends the echo action with {"echo":"ping"} merged with params.
func (c *Client) Echo(ctx context.Context, params Params, timeout time.Duration) (Feedback, error) {
	p := Params{"echo": "ping"}
	for k, v := range params {
		p[k] = v
	}
	return c.Request(ctx, ActionEcho, p, timeout)
}

// CriticalLogMessages returns the errors carried by an echo answer that is
// not a plain pong.
func (c *Client) CriticalLogMessages(ctx context.Context) ([]string, error) {
	fb, err := c.Echo(ctx, nil, DefaultPingTimeout)
	if err != nil {
		return nil, err
	}
	if fb.String("echo") != "pong" {
		return fb.Strings("errors"), nil
	}
	return nil, nil
}

// RuntimeStatus returns the status string of the runtime.
func (c *Client) RuntimeStatus(ctx context.Context) (string, error) {
	fb, err := c.Request(ctx, ActionRuntimeStatus, nil, 0)
	if err != nil {
		return "", err
	}
	return fb.String("status"), nil
}

func (c *Client) RuntimeStatistics(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionRuntimeStatistics, nil, 0)
}

func (c *Client) ServerStatistics(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionServerStatistics, nil, 0)
}

func (c *Client) Start(ctx context.Context, params Params) (Feedback, error) {
	return c.Request(ctx, ActionStart, params, 0)
}

// Shutdown asks the runtime to exit. The runtime terminates while handling the
// request, so every error is swallowed.
func (c *Client) Shutdown(ctx context.Context, timeout time.Duration) {
	c.logger.Log(ctx, logger.LevelTrace, "sending shutdown request", "timeout", timeout)
	_, _ = c.Request(ctx, ActionShutdown, nil, timeout)
}

func (c *Client) UpdateConfiguration(ctx context.Context, params Params) (Feedback, error) {
	return c.Request(ctx, ActionUpdateConfiguration, params, 0)
}

func (c *Client) UpdateAppContainerConfiguration(ctx context.Context, params Params) (Feedback, error) {
	return c.Request(ctx, ActionUpdateAppContainerConfiguration, params, 0)
}

func (c *Client) CreateLogSubscriber(ctx context.Context, params Params) (Feedback, error) {
	return c.Request(ctx, ActionCreateLogSubscriber, params, 0)
}

func (c *Client) StartLogging(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionStartLogging, nil, 0)
}

func (c *Client) GetDDLCommands(ctx context.Context, params Params) (Feedback, error) {
	return c.Request(ctx, ActionGetDDLCommands, params, 0)
}

func (c *Client) ExecuteDDLCommands(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionExecuteDDLCommands, nil, 0)
}

func (c *Client) UpdateAdminUser(ctx context.Context, username, password string) (Feedback, error) {
	return c.Request(ctx, ActionUpdateAdminUser, Params{"username": username, "password": password}, 0)
}

func (c *Client) CreateAdminUser(ctx context.Context, password string) (Feedback, error) {
	return c.Request(ctx, ActionCreateAdminUser, Params{"password": password}, 0)
}

// LoggedInUserNames takes an optional limit; zero lists everyone.
func (c *Client) LoggedInUserNames(ctx context.Context, limit int) (Feedback, error) {
	p := Params{}
	if limit > 0 {
		p["limit"] = limit
	}
	return c.Request(ctx, ActionGetLoggedInUserNames, p, 0)
}

func (c *Client) SetLogLevel(ctx context.Context, subscriber, node, level string) (Feedback, error) {
	return c.Request(ctx, ActionSetLogLevel, Params{
		"subscriber": subscriber,
		"nodes":      []map[string]string{{"name": node, "level": level}},
	}, 0)
}

func (c *Client) GetLogSettings(ctx context.Context, subscriber string) (Feedback, error) {
	return c.Request(ctx, ActionGetLogSettings, Params{"sub_name": subscriber}, 0)
}

func (c *Client) CheckHealth(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionCheckHealth, nil, 0)
}

func (c *Client) About(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionAbout, nil, 0)
}

func (c *Client) CloseStdio(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionCloseStdio, nil, 0)
}

func (c *Client) AdminActionInfo(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionGetAdminActionInfo, nil, 0)
}

func (c *Client) LicenseInformation(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionGetLicenseInformation, nil, 0)
}

func (c *Client) CurrentRuntimeRequests(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionGetCurrentRuntimeRequests, nil, 0)
}

func (c *Client) AllThreadStackTraces(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionGetAllThreadStackTraces, nil, 0)
}

func (c *Client) CacheStatistics(ctx context.Context) (Feedback, error) {
	return c.Request(ctx, ActionCacheStatistics, nil, 0)
}
