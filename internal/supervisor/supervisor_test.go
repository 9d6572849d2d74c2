//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loykin/rtctl/internal/admin"
	"github.com/loykin/rtctl/internal/admintest"
	"github.com/loykin/rtctl/internal/pidstore"
)

const testPassword = "test-secret"

func TestMain(m *testing.M) {
	RunLaunchStageIfRequested()
	admintest.RunFakeRuntimeIfRequested()
	os.Exit(m.Run())
}

type fixture struct {
	sup   *Supervisor
	store *pidstore.Store
	addr  string
}

// newFixture builds a supervisor whose target is this test binary acting as
// a fake runtime in the given mode.
func newFixture(t *testing.T, mode string, detach bool, timeout time.Duration) *fixture {
	t.Helper()
	addr, err := admintest.FreeAddr()
	if err != nil {
		t.Fatal(err)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	env := append(os.Environ(),
		admintest.EnvRuntimeAddr+"="+addr,
		admintest.EnvRuntimePassword+"="+testPassword,
		admintest.EnvRuntimeMode+"="+mode,
	)
	store := pidstore.New(filepath.Join(t.TempDir(), "run", "runtime.pid"))
	client := admin.New(admin.Config{URL: "http://" + addr + "/", Password: testPassword, Timeout: 2 * time.Second})
	sup := New(store, client, Options{
		Name:         "fake",
		Command:      []string{exe},
		Env:          env,
		Detach:       detach,
		Timeout:      timeout,
		PollInterval: 50 * time.Millisecond,
		Output:       io.Discard,
	})
	t.Cleanup(func() {
		if sup.CheckAlive() {
			sup.Kill(2 * time.Second)
		}
	})
	return &fixture{sup: sup, store: store, addr: addr}
}

func requireLaunchKind(t *testing.T, err error, want Kind) *LaunchError {
	t.Helper()
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %T: %v", err, err)
	}
	if le.Kind != want {
		t.Fatalf("expected kind %s, got %s (code %d, output %q)", want, le.Kind, le.Code, le.Output)
	}
	return le
}

func TestAttachedLaunchAndStop(t *testing.T) {
	f := newFixture(t, "", false, 10*time.Second)
	if f.sup.CheckAlive() {
		t.Fatal("nothing launched yet, must not be alive")
	}

	if err := f.sup.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !f.sup.CheckAlive() {
		t.Fatal("expected alive after launch")
	}
	done := f.sup.Done()
	if done == nil {
		t.Fatal("attached launch must expose its exit channel")
	}
	pid, ok, err := f.store.Read()
	if err != nil || !ok || pid != f.sup.Pid() {
		t.Fatalf("pidfile mismatch: pid=%d ok=%v err=%v tracked=%d", pid, ok, err, f.sup.Pid())
	}

	if !f.sup.Stop(context.Background(), 5*time.Second) {
		t.Fatal("graceful stop failed")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("exit channel not closed after stop")
	}
	if f.sup.CheckAlive() {
		t.Fatal("expected not alive after stop")
	}
	if _, ok, _ := f.store.Read(); ok {
		t.Fatal("pidfile must be cleared after a confirmed stop")
	}
}

func TestDetachedLaunchAndStop(t *testing.T) {
	f := newFixture(t, "", true, 10*time.Second)
	if err := f.sup.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	pid := f.sup.Pid()
	if pid <= 0 || !f.sup.CheckAlive() {
		t.Fatalf("expected a live pid from the pidfile, got %d", pid)
	}
	if f.sup.Done() != nil {
		t.Fatal("a detached launch has no exit channel")
	}
	if pid == os.Getpid() {
		t.Fatal("tracked pid must be the target, not the controller")
	}

	// a fresh supervisor over the same pidfile sees the same process
	other := New(f.store, admin.New(admin.Config{URL: "http://" + f.addr + "/", Password: testPassword}), Options{PollInterval: 50 * time.Millisecond})
	if other.Pid() != pid || !other.CheckAlive() {
		t.Fatalf("second supervisor should track pid %d", pid)
	}

	if !f.sup.Stop(context.Background(), 5*time.Second) {
		t.Fatal("graceful stop failed")
	}
	if other.CheckAlive() {
		t.Fatal("process should be gone")
	}
}

func TestLaunchRefusesWhenAlive(t *testing.T) {
	f := newFixture(t, "", false, 10*time.Second)
	if err := f.sup.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := f.sup.Launch(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestLaunchBinaryNotFound(t *testing.T) {
	for _, detach := range []bool{false, true} {
		t.Run("detach="+strconv.FormatBool(detach), func(t *testing.T) {
			f := newFixture(t, "", detach, time.Second)
			f.sup.opts.Command = []string{"rtctl-no-such-binary"}
			f.sup.opts.Env = []string{"PATH=" + t.TempDir()}

			le := requireLaunchKind(t, f.sup.Launch(context.Background()), KindBinaryNotFound)
			if le.Code != CodeBinaryNotFound || le.Kind.Retryable() {
				t.Fatalf("unexpected error %+v", le)
			}
			if f.sup.Pid() != 0 {
				t.Fatal("no pid may be recorded")
			}
		})
	}
}

func TestLaunchTargetExitsEarly(t *testing.T) {
	for _, detach := range []bool{false, true} {
		t.Run("detach="+strconv.FormatBool(detach), func(t *testing.T) {
			f := newFixture(t, "exit:2", detach, 10*time.Second)
			le := requireLaunchKind(t, f.sup.Launch(context.Background()), KindAdminPortInUse)
			if le.Code != CodeAdminPortInUse {
				t.Fatalf("expected code 0x22, got %#x", le.Code)
			}
			if !strings.Contains(le.Output, "fake runtime giving up") {
				t.Fatalf("output not captured: %q", le.Output)
			}
		})
	}
}

func TestLaunchTimeoutTerminatesHalfStarted(t *testing.T) {
	for _, detach := range []bool{false, true} {
		t.Run("detach="+strconv.FormatBool(detach), func(t *testing.T) {
			f := newFixture(t, "hang", detach, 500*time.Millisecond)
			le := requireLaunchKind(t, f.sup.Launch(context.Background()), KindTimeout)
			if le.Code != CodeTimeout || !le.Kind.Retryable() {
				t.Fatalf("timeout should be retryable with code 4, got %+v", le)
			}
			if f.sup.CheckAlive() {
				t.Fatal("half-started process must be terminated")
			}
			if _, ok, _ := f.store.Read(); ok {
				t.Fatal("pidfile must be cleared after termination")
			}
		})
	}
}

func TestStopIgnoredEscalatesToKill(t *testing.T) {
	f := newFixture(t, "stubborn", false, 10*time.Second)
	if err := f.sup.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	pid := f.sup.Pid()

	if f.sup.Stop(context.Background(), 500*time.Millisecond) {
		t.Fatal("stop must fail when the runtime ignores shutdown")
	}
	if !f.sup.CheckAlive() {
		t.Fatal("a process that ignored shutdown must still be alive")
	}
	if f.sup.Terminate(500 * time.Millisecond) {
		t.Fatal("terminate must fail when SIGTERM is ignored")
	}
	if got, ok, _ := f.store.Read(); !ok || got != pid {
		t.Fatal("pid must stay recorded while the process lives")
	}
	if !f.sup.Kill(5 * time.Second) {
		t.Fatal("kill failed")
	}
	if f.sup.CheckAlive() {
		t.Fatal("expected dead after kill")
	}
}

func TestTerminateKillIdempotent(t *testing.T) {
	f := newFixture(t, "", false, time.Second)
	for i := 0; i < 2; i++ {
		if !f.sup.Terminate(time.Second) || !f.sup.Kill(time.Second) || !f.sup.Stop(context.Background(), time.Second) {
			t.Fatal("no tracked pid must report success")
		}
	}
}

func TestStalePidfileIsCleanedWithoutSignal(t *testing.T) {
	f := newFixture(t, "", false, time.Second)
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("true not available: %v", err)
	}
	if err := f.store.Write(cmd.ProcessState.Pid()); err != nil {
		t.Fatal(err)
	}
	if f.sup.CheckAlive() {
		t.Fatal("dead pid must not be alive")
	}
	if !f.sup.Terminate(time.Second) {
		t.Fatal("terminate on a stale pid should succeed")
	}
	if _, ok, _ := f.store.Read(); ok {
		t.Fatal("stale pidfile should be cleared")
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t, "", false, 10*time.Second)
	if _, err := f.sup.Inspect(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := f.sup.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	info, err := f.sup.Inspect(context.Background())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Pid != f.sup.Pid() || info.CreateTime.IsZero() || info.RSSBytes == 0 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestLookPathUsesTargetPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "runtime-bin")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := lookPath("runtime-bin", []string{"PATH=/nowhere:" + dir})
	if err != nil || got != bin {
		t.Fatalf("lookPath = %q, %v", got, err)
	}
	if _, err := lookPath("runtime-bin", nil); !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("default search path should not find it: %v", err)
	}
	if got, _ := lookPath("/opt/x/java", nil); got != "/opt/x/java" {
		t.Fatalf("explicit path must be kept, got %q", got)
	}
}

func TestKindForCode(t *testing.T) {
	cases := map[int]Kind{
		2:    KindBinaryNotFound,
		3:    KindForkExec,
		4:    KindTimeout,
		0x20: KindExitedClean,
		0x21: KindUnknownReason,
		0x22: KindAdminPortInUse,
		0x23: KindRuntimePortInUse,
		0x24: KindIncompatibleRuntime,
		0x25: KindUnknown,
		1:    KindUnknown,
	}
	for code, want := range cases {
		if got := KindForCode(code); got != want {
			t.Errorf("KindForCode(%#x) = %s, want %s", code, got, want)
		}
	}
	if !strings.Contains((&LaunchError{Kind: KindUnknown, Code: 0x30}).Error(), "48") {
		t.Fatal("unknown code should be in the message")
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(4)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("def"))
	if tb.String() != "cdef" {
		t.Fatalf("got %q", tb.String())
	}
}
