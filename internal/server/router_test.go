package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/metrics"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/loykin/rtctl/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeCtl struct {
	startErr  error
	stop      orchestrator.ShutdownAttempt
	stopErr   error
	status    controller.Status
	statusErr error
	checks    atomic.Int32
	checkErr  error
}

func (f *fakeCtl) Start(context.Context) error { return f.startErr }

func (f *fakeCtl) Stop(context.Context) (orchestrator.ShutdownAttempt, error) {
	return f.stop, f.stopErr
}

func (f *fakeCtl) Status(context.Context) (controller.Status, error) { return f.status, f.statusErr }

func (f *fakeCtl) Check(context.Context) (orchestrator.Liveness, error) {
	f.checks.Add(1)
	return orchestrator.Liveness{Pid: 7, PidAlive: true}, f.checkErr
}

func setupRouter(t *testing.T, ctl Controller, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(ctl, base, nil).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestStatusOK(t *testing.T) {
	ctl := &fakeCtl{status: controller.Status{App: "shop", Pid: 42, PidAlive: true, AdminAlive: true, RuntimeStatus: "running"}}
	rec := doReq(t, setupRouter(t, ctl, "/api"), http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	m := decode(t, rec)
	if m["app"] != "shop" || m["runtime_status"] != "running" || m["pid"] != float64(42) {
		t.Fatalf("unexpected body: %v", m)
	}
}

func TestStatusInconsistentIsReported(t *testing.T) {
	err := &orchestrator.InconsistentStateError{Pid: 9}
	ctl := &fakeCtl{status: controller.Status{Pid: 9, PidAlive: true, Problem: err.Error()}, statusErr: err}
	rec := doReq(t, setupRouter(t, ctl, ""), http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decode(t, rec)["problem"] == "" {
		t.Fatal("expected problem in body")
	}
}

func TestStatusAdminFailure(t *testing.T) {
	ctl := &fakeCtl{statusErr: errors.New("boom")}
	rec := doReq(t, setupRouter(t, ctl, ""), http.MethodGet, "/status")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"launch", &supervisor.LaunchError{Kind: supervisor.KindAdminPortInUse, Code: 0x22, Output: "port busy"}, http.StatusInternalServerError, supervisor.KindAdminPortInUse.String()},
		{"aborted", fmt.Errorf("%w: no", orchestrator.ErrAborted), http.StatusConflict, ""},
		{"inconsistent", &orchestrator.InconsistentStateError{Pid: 3}, http.StatusConflict, ""},
		{"other", errors.New("x"), http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doReq(t, setupRouter(t, &fakeCtl{startErr: tt.err}, ""), http.MethodPost, "/start")
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			m := decode(t, rec)
			if tt.err == nil && m["state"] != "running" {
				t.Fatalf("unexpected body: %v", m)
			}
			if tt.kind != "" && (m["kind"] != tt.kind || m["output"] != "port busy") {
				t.Fatalf("unexpected body: %v", m)
			}
		})
	}
}

func TestStop(t *testing.T) {
	ctl := &fakeCtl{stop: orchestrator.ShutdownAttempt{Tier: orchestrator.TierKill, Stopped: true}}
	rec := doReq(t, setupRouter(t, ctl, ""), http.MethodPost, "/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m := decode(t, rec); m["tier"] != "kill" || m["stopped"] != true {
		t.Fatalf("unexpected body: %v", m)
	}

	ctl.stop = orchestrator.ShutdownAttempt{Tier: orchestrator.TierGraceful, Halted: true}
	rec = doReq(t, setupRouter(t, ctl, ""), http.MethodPost, "/stop")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestMethodMismatch(t *testing.T) {
	rec := doReq(t, setupRouter(t, &fakeCtl{}, ""), http.MethodGet, "/start")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	metrics.IncLaunch("router-test", "ready")
	rec := doReq(t, setupRouter(t, &fakeCtl{}, "/x"), http.MethodGet, "/x/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `rtctl_supervisor_launches_total{app="router-test",outcome="ready"}`) {
		t.Fatalf("metrics output misses launch counter:\n%s", rec.Body.String())
	}
}

func TestMonitorProbesUntilCancelled(t *testing.T) {
	ctl := &fakeCtl{checkErr: &orchestrator.InconsistentStateError{Pid: 7}}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		(&Monitor{Checker: ctl, Interval: 10 * time.Millisecond}).Run(ctx)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for ctl.checks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()
	if ctl.checks.Load() < 3 {
		t.Fatalf("expected at least 3 probes, got %d", ctl.checks.Load())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer("127.0.0.1:0", NewRouter(&fakeCtl{}, "", nil))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, srv, &Monitor{Checker: &fakeCtl{}, Interval: time.Hour}) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
