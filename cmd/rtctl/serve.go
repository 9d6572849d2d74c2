package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/loykin/rtctl/internal/metrics"
	"github.com/loykin/rtctl/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func createServeCommand(c *command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API, metrics and the liveness monitor",
		Long: `Serve an HTTP API to start, stop and inspect the runtime, expose
Prometheus metrics and probe liveness periodically. Operations triggered over
HTTP never prompt.

Endpoints:
  GET  /status
  POST /start
  POST /stop
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address, overrides server.listen")
	return cmd
}

func (c *command) runServe(flags *ServeFlags) error {
	s, err := c.open(true, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	listen := s.cfg.Server.Listen
	if flags.Listen != "" {
		listen = flags.Listen
	}
	gin.SetMode(gin.ReleaseMode)
	srv := server.NewServer(listen, server.NewRouter(s.ctl, "", s.logger))
	mon := &server.Monitor{Checker: s.ctl, Interval: s.cfg.Monitor.Interval, Logger: s.logger}

	ctx, cancel := signalContext()
	defer cancel()
	s.logger.Info("serving control api", "listen", listen)
	return server.Serve(ctx, srv, mon)
}
