// Package admintest provides a scriptable fake of the runtime admin API for
// tests, built on echo.
package admintest

import (
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
)

const authHeader = "X-M2EE-Authentication"

// Reply is one scripted admin answer.
type Reply struct {
	Result   int            `json:"result"`
	Feedback map[string]any `json:"feedback,omitempty"`
	Message  string         `json:"message,omitempty"`
	Cause    string         `json:"cause,omitempty"`
}

// OK is a successful reply carrying feedback.
func OK(feedback map[string]any) Reply {
	if feedback == nil {
		feedback = map[string]any{}
	}
	return Reply{Result: 0, Feedback: feedback}
}

// Fail is a failing reply with the given result code.
func Fail(result int, message string) Reply {
	return Reply{Result: result, Message: message}
}

type Handler func(params map[string]any) Reply

type Call struct {
	Action string
	Params map[string]any
}

type request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Server is a fake admin endpoint. Unregistered actions answer with the
// action-not-found result; requests with the wrong secret with forbidden.
type Server struct {
	mu       sync.Mutex
	e        *echo.Echo
	ts       *httptest.Server
	auth     string
	handlers map[string]Handler
	calls    []Call
	onCall   func(Call)
}

// New starts a fake endpoint on a random loopback port.
func New(password string) *Server {
	s := newServer(password)
	s.ts = httptest.NewServer(s.e)
	return s
}

// Serve runs a fake endpoint on ln until the listener is closed.
func Serve(ln net.Listener, password string, setup func(*Server)) error {
	s := newServer(password)
	if setup != nil {
		setup(s)
	}
	return http.Serve(ln, s.e)
}

func newServer(password string) *Server {
	s := &Server{
		e:        echo.New(),
		auth:     base64.StdEncoding.EncodeToString([]byte(password)),
		handlers: map[string]Handler{},
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.POST("/", s.dispatch)

	s.Reply("echo", OK(map[string]any{"echo": "pong"}))
	s.Reply("runtime_status", OK(map[string]any{"status": "running"}))
	s.Handle("get_admin_action_info", func(map[string]any) Reply {
		return OK(map[string]any{"action_info": s.actionInfo()})
	})
	return s
}

func (s *Server) URL() string {
	if s.ts == nil {
		return ""
	}
	return s.ts.URL + "/"
}

func (s *Server) Close() {
	if s.ts != nil {
		s.ts.Close()
	}
}

func (s *Server) Handle(action string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = h
}

// Remove unregisters action so it answers with action-not-found.
func (s *Server) Remove(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, action)
}

// Reply answers every call of action with r.
func (s *Server) Reply(action string, r Reply) {
	s.Handle(action, func(map[string]any) Reply { return r })
}

// Sequence answers successive calls of action with replies in order; the last
// reply repeats once the list is exhausted.
func (s *Server) Sequence(action string, replies ...Reply) {
	if len(replies) == 0 {
		return
	}
	var (
		mu sync.Mutex
		i  int
	)
	s.Handle(action, func(map[string]any) Reply {
		mu.Lock()
		defer mu.Unlock()
		r := replies[i]
		if i < len(replies)-1 {
			i++
		}
		return r
	})
}

// OnCall registers a hook invoked after every recorded call.
func (s *Server) OnCall(fn func(Call)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
}

// Calls returns recorded calls of action, or all calls when action is empty.
func (s *Server) Calls(action string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if action == "" || c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// Actions returns the recorded action names in call order.
func (s *Server) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Action)
	}
	return out
}

func (s *Server) actionInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	info := make(map[string]any, len(names))
	for _, n := range names {
		info[n] = map[string]any{}
	}
	return info
}

func (s *Server) dispatch(c echo.Context) error {
	if c.Request().Header.Get(authHeader) != s.auth {
		return c.JSON(http.StatusOK, Fail(-4, "forbidden"))
	}
	var req request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, Fail(-6, err.Error()))
	}

	s.mu.Lock()
	call := Call{Action: req.Action, Params: req.Params}
	s.calls = append(s.calls, call)
	h, ok := s.handlers[req.Action]
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if !ok {
		return c.JSON(http.StatusOK, Fail(-5, "action not found: "+req.Action))
	}
	return c.JSON(http.StatusOK, h(req.Params))
}
