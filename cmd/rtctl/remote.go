package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/supervisor"
	"github.com/loykin/rtctl/pkg/client"
)

func (c *command) remote() *client.Client {
	return client.New(client.Config{
		BaseURL: c.globals.Server,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func (c *command) remoteStart(ctx context.Context) error {
	res, err := c.remote().Start(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "runtime state: %s\n", res.State)
	return err
}

func (c *command) remoteStop(ctx context.Context) error {
	res, err := c.remote().Stop(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "runtime stopped (%s)\n", res.Tier)
	return err
}

func (c *command) remoteStatus(ctx context.Context, asJSON bool) error {
	st, err := c.remote().Status(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(c.out, st)
	}
	printStatus(c, statusFromRemote(st))
	return nil
}

func statusFromRemote(st client.Status) controller.Status {
	out := controller.Status{
		App:           st.App,
		State:         st.State,
		Pid:           st.Pid,
		PidAlive:      st.PidAlive,
		AdminAlive:    st.AdminAlive,
		RuntimeStatus: st.RuntimeStatus,
		CriticalLogs:  st.CriticalLogs,
		LoggedInUsers: st.LoggedInUsers,
		Problem:       st.Problem,
	}
	if st.Process != nil {
		p := supervisor.ProcInfo(*st.Process)
		out.Process = &p
	}
	return out
}
