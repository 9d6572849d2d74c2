package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/metrics"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/loykin/rtctl/internal/supervisor"
)

// Controller is what the HTTP API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (orchestrator.ShutdownAttempt, error)
	Status(ctx context.Context) (controller.Status, error)
	Check(ctx context.Context) (orchestrator.Liveness, error)
}

// Router provides embeddable HTTP handlers for controlling the runtime.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/start
//	POST {basePath}/stop
//	GET  {basePath}/metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
	logger   *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(ctl Controller, basePath string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{ctl: ctl, basePath: sanitizeBase(basePath), logger: logger.With("component", "server")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer builds an HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start and stop run as long as the configured launch and stop timeouts
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Output string `json:"output,omitempty"`
}

type startResp struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

type stopResp struct {
	Tier    string `json:"tier"`
	Stopped bool   `json:"stopped"`
	Halted  bool   `json:"halted"`
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.ctl.Status(c.Request.Context())
	var inconsistent *orchestrator.InconsistentStateError
	if err != nil && !errors.As(err, &inconsistent) {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStart(c *gin.Context) {
	// a client going away must not cancel a launch half way
	ctx := context.WithoutCancel(c.Request.Context())
	if err := r.ctl.Start(ctx); err != nil {
		r.logger.Error("start via http failed", "error", err)
		writeJSON(c, startStatus(err), startError(err))
		return
	}
	writeJSON(c, http.StatusOK, startResp{OK: true, State: orchestrator.Running.String()})
}

func startStatus(err error) int {
	var le *supervisor.LaunchError
	var inconsistent *orchestrator.InconsistentStateError
	switch {
	case errors.Is(err, orchestrator.ErrAborted):
		return http.StatusConflict
	case errors.As(err, &inconsistent):
		return http.StatusConflict
	case errors.As(err, &le):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func startError(err error) errorResp {
	resp := errorResp{Error: err.Error()}
	var le *supervisor.LaunchError
	if errors.As(err, &le) {
		resp.Kind = le.Kind.String()
		resp.Output = le.Output
	}
	return resp
}

func (r *Router) handleStop(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	a, err := r.ctl.Stop(ctx)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	code := http.StatusOK
	if !a.Stopped {
		code = http.StatusConflict
	}
	writeJSON(c, code, stopResp{Tier: a.Tier.String(), Stopped: a.Stopped, Halted: a.Halted})
}
