// Package config loads the controller configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/rtctl/internal/env"
	"github.com/loykin/rtctl/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: RTCTL_ADMIN_PORT overrides
// admin.port.
const EnvPrefix = "RTCTL"

// Passwords the runtime itself would accept but that must never guard the
// admin port.
var weakAdminPasswords = map[string]bool{"": true, "1": true, "password": true}

type Admin struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// ListenAddresses is passed to the runtime; empty keeps its default.
	ListenAddresses string `mapstructure:"listen_addresses"`
}

type Runtime struct {
	Port            int    `mapstructure:"port"`
	ListenAddresses string `mapstructure:"listen_addresses"`
}

type Environment struct {
	// Preserve lists variables copied from the controller environment;
	// "*" copies all of them.
	Preserve []string          `mapstructure:"preserve"`
	Custom   map[string]string `mapstructure:"custom"`
}

type Timeouts struct {
	Launch       time.Duration `mapstructure:"launch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Stop         time.Duration `mapstructure:"stop"`
	Terminate    time.Duration `mapstructure:"terminate"`
	Kill         time.Duration `mapstructure:"kill"`
}

type History struct {
	DSN string `mapstructure:"dsn"`
}

type Server struct {
	Listen string `mapstructure:"listen"`
}

type Monitor struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the whole controller configuration.
type Config struct {
	AppName        string      `mapstructure:"app_name"`
	Admin          Admin       `mapstructure:"admin"`
	Runtime        Runtime     `mapstructure:"runtime"`
	PIDFile        string      `mapstructure:"pidfile"`
	Command        []string    `mapstructure:"command"`
	WorkDir        string      `mapstructure:"workdir"`
	Environment    Environment `mapstructure:"environment"`
	Detach         bool        `mapstructure:"detach"`
	Timeouts       Timeouts    `mapstructure:"timeouts"`
	DeploymentMode string      `mapstructure:"deployment_mode"`
	MaxStartRounds int         `mapstructure:"max_start_rounds"`

	RuntimeConfig      map[string]any   `mapstructure:"runtime_config"`
	AppContainerConfig map[string]any   `mapstructure:"appcontainer_config"`
	Logging            []map[string]any `mapstructure:"logging"`

	DDLDumpPath string              `mapstructure:"ddl_dump_path"`
	OutputLog   logger.OutputConfig `mapstructure:"output_log"`
	History     History             `mapstructure:"history"`
	Server      Server              `mapstructure:"server"`
	Monitor     Monitor             `mapstructure:"monitor"`

	// File is the configuration file that was read, empty when none.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "runtime")
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 9000)
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.timeout", "30s")
	v.SetDefault("admin.listen_addresses", "")
	v.SetDefault("runtime.port", 8000)
	v.SetDefault("runtime.listen_addresses", "")
	v.SetDefault("pidfile", "rtctl.pid")
	v.SetDefault("command", []string{})
	v.SetDefault("workdir", "")
	v.SetDefault("environment.preserve", []string{"PATH", "HOME", "LANG", "TZ"})
	v.SetDefault("detach", true)
	v.SetDefault("timeouts.launch", "60s")
	v.SetDefault("timeouts.poll_interval", "250ms")
	v.SetDefault("timeouts.stop", "10s")
	v.SetDefault("timeouts.terminate", "10s")
	v.SetDefault("timeouts.kill", "10s")
	v.SetDefault("deployment_mode", "P")
	v.SetDefault("max_start_rounds", 10)
	v.SetDefault("ddl_dump_path", "data/database")
	v.SetDefault("output_log.path", "")
	v.SetDefault("output_log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("output_log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("output_log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("output_log.compress", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("server.listen", "127.0.0.1:8090")
	v.SetDefault("monitor.interval", "30s")
}

// Load reads path (TOML unless the extension says otherwise) and applies
// RTCTL_ environment overrides on top. An empty path searches rtctl.toml in
// the working directory, $HOME/.rtctl and /etc/rtctl; finding none is not an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
	} else {
		v.SetConfigName("rtctl")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rtctl"))
		}
		v.AddConfigPath("/etc/rtctl")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.File = v.ConfigFileUsed()
	if c.File != "" {
		raw, err := readRawSections(c.File)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		c.applyRaw(raw)
	}
	c.resolvePaths()
	return &c, nil
}

// resolvePaths makes relative file settings relative to the config file.
func (c *Config) resolvePaths() {
	if c.File == "" {
		return
	}
	base := filepath.Dir(c.File)
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.PIDFile = abs(c.PIDFile)
	c.DDLDumpPath = abs(c.DDLDumpPath)
	c.OutputLog.Path = abs(c.OutputLog.Path)
}

// Validate reports every problem at once so an operator can fix the
// configuration in one pass.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if len(c.Command) == 0 || strings.TrimSpace(c.Command[0]) == "" {
		add("command: no runtime command configured")
	}
	if c.PIDFile == "" {
		add("pidfile: must be set")
	}
	if !validPort(c.Admin.Port) {
		add("admin.port: %d is not a valid port", c.Admin.Port)
	}
	if !validPort(c.Runtime.Port) {
		add("runtime.port: %d is not a valid port", c.Runtime.Port)
	}
	if c.Admin.Port == c.Runtime.Port {
		add("admin.port and runtime.port must differ (both %d)", c.Admin.Port)
	}
	if weakAdminPasswords[c.Admin.Password] {
		add("admin.password: set a password that is not empty, '1' or 'password'")
	}
	if c.Admin.Host == "" {
		add("admin.host: must be set")
	}
	switch m := strings.ToUpper(c.DeploymentMode); {
	case m == "":
		add("deployment_mode: must be one of D, T, A, P")
	case !strings.ContainsRune("DTAP", rune(m[0])):
		add("deployment_mode: %q is not one of D, T, A, P", c.DeploymentMode)
	}
	if c.MaxStartRounds < 0 {
		add("max_start_rounds: must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.launch":        c.Timeouts.Launch,
		"timeouts.poll_interval": c.Timeouts.PollInterval,
		"timeouts.stop":          c.Timeouts.Stop,
		"timeouts.terminate":     c.Timeouts.Terminate,
		"timeouts.kill":          c.Timeouts.Kill,
		"monitor.interval":       c.Monitor.Interval,
	} {
		if d <= 0 {
			add("%s: must be positive", name)
		}
	}
	if c.WorkDir != "" {
		if fi, err := os.Stat(c.WorkDir); err != nil || !fi.IsDir() {
			add("workdir: %s is not a directory", c.WorkDir)
		}
	}
	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			add("server.listen: %v", err)
		}
	}
	for i, sub := range c.Logging {
		if _, ok := sub["name"].(string); !ok {
			add("logging[%d]: subscriber needs a name", i)
		}
		if _, ok := sub["type"].(string); !ok {
			add("logging[%d]: subscriber needs a type", i)
		}
	}
	return errors.Join(errs...)
}

func validPort(p int) bool { return p > 0 && p < 65536 }

// AdminURL is the admin endpoint of the runtime.
func (c *Config) AdminURL() string {
	return "http://" + net.JoinHostPort(c.Admin.Host, strconv.Itoa(c.Admin.Port)) + "/"
}

// RuntimeEnv builds the environment of the runtime process: preserved and
// custom variables first, then the admin settings, which always win.
func (c *Config) RuntimeEnv() []string {
	return c.runtimeEnv(env.New(c.Environment.Preserve, c.Environment.Custom))
}

func (c *Config) runtimeEnv(e *env.Env) []string {
	fixed := []string{
		"M2EE_ADMIN_PORT=" + strconv.Itoa(c.Admin.Port),
		"M2EE_ADMIN_PASS=" + c.Admin.Password,
		"M2EE_RUNTIME_PORT=" + strconv.Itoa(c.Runtime.Port),
	}
	if c.Admin.ListenAddresses != "" {
		fixed = append(fixed, "M2EE_ADMIN_LISTEN_ADDRESSES="+c.Admin.ListenAddresses)
	}
	if c.Runtime.ListenAddresses != "" {
		fixed = append(fixed, "M2EE_RUNTIME_LISTEN_ADDRESSES="+c.Runtime.ListenAddresses)
	}
	return e.Merge(fixed)
}

// EnvWarnings lists preserved variables that are not set, plus a missing
// PATH when the command is not an absolute path.
func (c *Config) EnvWarnings() []string {
	return c.envWarnings(env.New(c.Environment.Preserve, c.Environment.Custom))
}

func (c *Config) envWarnings(e *env.Env) []string {
	var out []string
	for _, k := range e.Missing() {
		out = append(out, fmt.Sprintf("preserved variable %s is not set", k))
	}
	if len(c.Command) > 0 && !strings.Contains(c.Command[0], "/") && !e.Has("PATH") {
		out = append(out, "PATH is not passed to the runtime, the command is resolved against /bin:/usr/bin")
	}
	return out
}

// RuntimeParams is the update_configuration payload. The deployment mode
// is added as DTAPMode unless runtime_config sets it.
func (c *Config) RuntimeParams() map[string]any {
	out := make(map[string]any, len(c.RuntimeConfig)+1)
	for k, v := range c.RuntimeConfig {
		out[k] = v
	}
	if _, ok := out["DTAPMode"]; !ok && c.DeploymentMode != "" {
		out["DTAPMode"] = strings.ToUpper(c.DeploymentMode[:1])
	}
	return out
}
