package admintest

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Environment variables understood by RunFakeRuntimeIfRequested.
const (
	EnvRuntimeAddr     = "RTCTL_FAKE_RUNTIME_ADDR"
	EnvRuntimePassword = "RTCTL_FAKE_RUNTIME_PASSWORD"
	// EnvRuntimeMode selects the behaviour: empty for a well behaved runtime,
	// "stubborn" to ignore the shutdown action and SIGTERM, "hang" to never
	// open the admin port, "exit:N" to exit with status N at once.
	EnvRuntimeMode = "RTCTL_FAKE_RUNTIME_MODE"
)

// RunFakeRuntimeIfRequested turns the current process into a fake managed
// runtime when EnvRuntimeAddr is set, and never returns in that case. Test
// binaries call it from TestMain and re-execute themselves as the target.
func RunFakeRuntimeIfRequested() {
	addr := os.Getenv(EnvRuntimeAddr)
	if addr == "" {
		return
	}
	mode := os.Getenv(EnvRuntimeMode)
	fmt.Printf("fake runtime pid=%d mode=%q\n", os.Getpid(), mode)

	switch {
	case strings.HasPrefix(mode, "exit:"):
		code, _ := strconv.Atoi(strings.TrimPrefix(mode, "exit:"))
		fmt.Fprintln(os.Stderr, "fake runtime giving up")
		os.Exit(code)
	case mode == "hang":
		signal.Ignore(syscall.SIGHUP)
		for {
			time.Sleep(time.Hour)
		}
	case mode == "stubborn":
		signal.Ignore(syscall.SIGTERM, syscall.SIGHUP)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fake runtime listen: %v\n", err)
		os.Exit(2)
	}
	err = Serve(ln, os.Getenv(EnvRuntimePassword), func(s *Server) {
		s.Handle("shutdown", func(map[string]any) Reply {
			if mode != "stubborn" {
				go func() {
					time.Sleep(50 * time.Millisecond)
					os.Exit(0)
				}()
			}
			return OK(nil)
		})
		s.Reply("close_stdio", OK(nil))
		s.Reply("about", OK(map[string]any{"name": "fake runtime", "version": "0.0.0"}))
		s.Reply("check_health", OK(map[string]any{"health": "healthy"}))
		s.Reply("get_license_information", OK(map[string]any{"license": map[string]any{"LicenseID": "trial"}}))
		s.Reply("get_current_runtime_requests", OK(map[string]any{"requests": []any{}}))
		s.Reply("get_all_thread_stack_traces", OK(map[string]any{"main": []any{"Thread.sleep"}}))
		s.Reply("runtime_statistics", OK(map[string]any{"requests": map[string]any{"": 0}}))
		s.Reply("server_statistics", OK(map[string]any{"jetty": map[string]any{"current_connections": 1}}))
		s.Reply("get_log_settings", OK(map[string]any{"Main": map[string]any{"Core": "INFO"}}))
	})
	fmt.Fprintf(os.Stderr, "fake runtime serve: %v\n", err)
	os.Exit(1)
}

// FreeAddr returns a loopback address with a currently unused port.
func FreeAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().String(), nil
}
