//go:build !windows

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/rtctl/internal/admintest"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/decision"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/loykin/rtctl/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	supervisor.RunLaunchStageIfRequested()
	admintest.RunFakeRuntimeIfRequested()
	os.Exit(m.Run())
}

// writeConfig writes a config that launches this test binary as a fake
// runtime and returns its path.
func writeConfig(t *testing.T, detach bool) string {
	t.Helper()
	addr, err := admintest.FreeAddr()
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`app_name = "shop"
pidfile = "run/shop.pid"
command = [%q]
detach = %t
deployment_mode = "D"
max_start_rounds = 3

[admin]
host = %q
port = %s
password = "cl1-Secret"
timeout = "2s"

[runtime]
port = 1

[timeouts]
launch = "20s"
poll_interval = "50ms"
stop = "5s"
terminate = "5s"
kill = "5s"

[environment]
preserve = ["PATH", "HOME", "TMPDIR"]

[environment.custom]
%s = %q
%s = "cl1-Secret"

[[logging]]
name = "Main"
type = "file"
`, exe, detach, host, port, admintest.EnvRuntimeAddr, addr, admintest.EnvRuntimePassword)
	path := filepath.Join(dir, "rtctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := newCommand(&out)
	c.logOut = io.Discard
	c.newPolicy = func(bool, io.Writer) orchestrator.Policy { return &decision.Batch{Report: io.Discard} }
	root := buildRoot(c)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"start", "stop", "restart", "status", "serve", "loglevel", "update-admin-user", "license", "requests", "stack-traces"} {
		assert.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "rtctl dev\n", out)
}

func TestLogLevelArgs(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, true), "loglevel", "Main", "Core")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 0, 1 or 3 arguments")
}

func TestStatusNotRunning(t *testing.T) {
	cfg := writeConfig(t, true)
	out, err := run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Equal(t, "shop is not running\n", out)

	_, err = run(t, "--config", cfg, "stop")
	require.NoError(t, err, "stopping nothing succeeds")
}

func TestStartInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("[admin]\npassword = \"1\"\n"), 0o644))
	_, err := run(t, "--config", path, "start")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestStartStatusStopDetached(t *testing.T) {
	cfg := writeConfig(t, true)
	t.Cleanup(func() { _, _ = run(t, "--config", cfg, "stop") })

	_, err := run(t, "--config", cfg, "start")
	require.NoError(t, err)

	pidfile := filepath.Join(filepath.Dir(cfg), "run", "shop.pid")
	_, err = os.Stat(pidfile)
	require.NoError(t, err, "pidfile is resolved against the config directory")

	out, err := run(t, "--config", cfg, "status", "--json")
	require.NoError(t, err)
	var st controller.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "shop", st.App)
	assert.True(t, st.PidAlive)
	assert.True(t, st.AdminAlive)
	assert.Equal(t, "running", st.RuntimeStatus)

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "shop: runtime status running (pid "), out)

	out, err = run(t, "--config", cfg, "about")
	require.NoError(t, err)
	assert.Contains(t, out, `"fake runtime"`)

	out, err = run(t, "--config", cfg, "statistics")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Contains(t, stats, "requests")
	assert.Contains(t, stats, "jetty")
	assert.NotContains(t, stats, "cache", "the fake runtime has no cache statistics")

	out, err = run(t, "--config", cfg, "license")
	require.NoError(t, err)
	assert.Contains(t, out, `"LicenseID": "trial"`)

	out, err = run(t, "--config", cfg, "requests")
	require.NoError(t, err)
	assert.Contains(t, out, `"requests": []`)

	out, err = run(t, "--config", cfg, "stack-traces")
	require.NoError(t, err)
	assert.Contains(t, out, "Thread.sleep")

	out, err = run(t, "--config", cfg, "check-health")
	require.NoError(t, err)
	assert.Equal(t, "health check: healthy\n", out)

	out, err = run(t, "--config", cfg, "critical-logs")
	require.NoError(t, err)
	assert.Equal(t, "no critical log messages\n", out)

	out, err = run(t, "--config", cfg, "loglevel")
	require.NoError(t, err)
	assert.Equal(t, "Main:\n  Core INFO\n", out)

	_, err = run(t, "--config", cfg, "who")
	require.Error(t, err, "the fake runtime does not list users")

	_, err = run(t, "--config", cfg, "stop")
	require.NoError(t, err)
	_, err = os.Stat(pidfile)
	assert.True(t, os.IsNotExist(err), "pidfile removed after stop")

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Equal(t, "shop is not running\n", out)
}

func TestAttachedStartLeavesForeignRuntime(t *testing.T) {
	detached := writeConfig(t, true)
	t.Cleanup(func() { _, _ = run(t, "--config", detached, "stop") })
	_, err := run(t, "--config", detached, "start")
	require.NoError(t, err)

	data, err := os.ReadFile(detached)
	require.NoError(t, err)
	attached := filepath.Join(filepath.Dir(detached), "attached.toml")
	require.NoError(t, os.WriteFile(attached, bytes.Replace(data, []byte("detach = true"), []byte("detach = false"), 1), 0o644))

	var out, logs bytes.Buffer
	c := newCommand(&out)
	c.logOut = &logs
	c.newPolicy = func(bool, io.Writer) orchestrator.Policy { return &decision.Batch{Report: io.Discard} }
	root := buildRoot(c)
	root.SetArgs([]string{"--config", attached, "--log-format", "json", "start"})
	require.NoError(t, root.Execute())

	assert.Contains(t, logs.String(), "leaving it in the background")
	assert.NotContains(t, logs.String(), "the runtime exited")

	st, err := run(t, "--config", detached, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, st, `"pid_alive": true`)
}
