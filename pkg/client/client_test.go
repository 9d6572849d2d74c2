package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/rtctl/internal/controller"
	"github.com/loykin/rtctl/internal/orchestrator"
	"github.com/loykin/rtctl/internal/server"
	"github.com/loykin/rtctl/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCtl struct {
	startErr error
	stop     orchestrator.ShutdownAttempt
	status   controller.Status
}

func (f *fakeCtl) Start(context.Context) error { return f.startErr }

func (f *fakeCtl) Stop(context.Context) (orchestrator.ShutdownAttempt, error) { return f.stop, nil }

func (f *fakeCtl) Status(context.Context) (controller.Status, error) { return f.status, nil }

func (f *fakeCtl) Check(context.Context) (orchestrator.Liveness, error) {
	return orchestrator.Liveness{}, nil
}

func newClient(t *testing.T, ctl server.Controller) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := httptest.NewServer(server.NewRouter(ctl, "/api", nil).Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api/", Timeout: 5 * time.Second})
}

func TestStatus(t *testing.T) {
	ctl := &fakeCtl{status: controller.Status{
		App: "shop", State: "running", Pid: 42, PidAlive: true, AdminAlive: true,
		RuntimeStatus: "running", LoggedInUsers: 3,
		Process: &supervisor.ProcInfo{Pid: 42, Threads: 9},
	}}
	c := newClient(t, ctl)
	require.True(t, c.IsReachable(context.Background()))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shop", st.App)
	assert.Equal(t, 42, st.Pid)
	assert.True(t, st.PidAlive && st.AdminAlive)
	assert.Equal(t, 3, st.LoggedInUsers)
	require.NotNil(t, st.Process)
	assert.EqualValues(t, 9, st.Process.Threads)
}

func TestStart(t *testing.T) {
	res, err := newClient(t, &fakeCtl{}).Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "running", res.State)

	le := &supervisor.LaunchError{Kind: supervisor.KindBinaryNotFound, Code: supervisor.CodeBinaryNotFound, Output: "no java"}
	_, err = newClient(t, &fakeCtl{startErr: le}).Start(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "binary_not_found", apiErr.Kind)
	assert.Equal(t, "no java", apiErr.Output)

	_, err = newClient(t, &fakeCtl{startErr: orchestrator.ErrAborted}).Start(context.Background())
	assert.True(t, IsConflict(err))
}

func TestStop(t *testing.T) {
	res, err := newClient(t, &fakeCtl{stop: orchestrator.ShutdownAttempt{Tier: orchestrator.TierGraceful, Stopped: true}}).Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stopped)

	res, err = newClient(t, &fakeCtl{stop: orchestrator.ShutdownAttempt{Tier: orchestrator.TierKill}}).Stop(context.Background())
	assert.True(t, IsConflict(err))
	assert.False(t, res.Stopped)
	assert.Equal(t, orchestrator.TierKill.String(), res.Tier)
}

func TestUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}
