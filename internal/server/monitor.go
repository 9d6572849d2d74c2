package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/rtctl/internal/orchestrator"
)

// Monitor probes liveness on a fixed interval. The probe results reach the
// metrics through the controller's observer; inconsistent states are logged.
type Monitor struct {
	Checker interface {
		Check(ctx context.Context) (orchestrator.Liveness, error)
	}
	Interval time.Duration
	Logger   *slog.Logger
}

// Run probes once at once and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "monitor")
	interval := m.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		m.probe(ctx, logger)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) probe(ctx context.Context, logger *slog.Logger) {
	l, err := m.Checker.Check(ctx)
	var inconsistent *orchestrator.InconsistentStateError
	switch {
	case errors.As(err, &inconsistent):
		logger.Warn("runtime process is alive but its admin api does not answer", "pid", inconsistent.Pid)
	case err != nil:
		logger.Warn("liveness check failed", "error", err)
	default:
		logger.Debug("liveness", "pid", l.Pid, "pid_alive", l.PidAlive, "admin_alive", l.AdminAlive)
	}
}

// Serve runs the HTTP API and the monitor until ctx is done, then shuts the
// HTTP server down gracefully.
func Serve(ctx context.Context, srv interface {
	ListenAndServe() error
	Shutdown(context.Context) error
}, mon *Monitor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	if mon != nil {
		go func() {
			defer close(done)
			mon.Run(ctx)
		}()
	} else {
		close(done)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = srv.Shutdown(shutCtx)
		shutCancel()
		if lerr := <-errc; lerr != nil && !errors.Is(lerr, http.ErrServerClosed) {
			err = errors.Join(err, lerr)
		}
	}
	cancel()
	<-done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
