// Package admin talks to the admin API of the managed runtime.
//
// Every call opens a fresh connection. The supervisor starts, stops and
// recovers the other end of these calls, so no transport state is carried
// between requests.
package admin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/loykin/rtctl/internal/logger"
)

// AuthHeader carries the base64 encoded admin secret.
const AuthHeader = "X-M2EE-Authentication"

// DefaultPingTimeout bounds echo probes used for liveness.
const DefaultPingTimeout = 5 * time.Second

// Config holds connection parameters.
type Config struct {
	URL      string
	Password string
	// Timeout applies to requests that do not pass their own. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Client struct {
	cfg    Config
	auth   string
	logger *slog.Logger
}

// New creates a client for the admin endpoint in cfg.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		auth:   base64.StdEncoding.EncodeToString([]byte(cfg.Password)),
		logger: cfg.Logger.With("component", "admin"),
	}
}

func (c *Client) Config() Config { return c.cfg }

type requestBody struct {
	Action string `json:"action"`
	Params Params `json:"params"`
}

type responseBody struct {
	Result   *int            `json:"result"`
	Feedback Feedback        `json:"feedback"`
	Message  string          `json:"message"`
	Cause    json.RawMessage `json:"cause"`
}

func (c *Client) httpClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             nil,
			DisableKeepAlives: true,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
		},
	}
}

// Request performs one admin action. A zero timeout falls back to the client
// default. Success yields the feedback object (never nil).
func (c *Client) Request(ctx context.Context, action string, params Params, timeout time.Duration) (Feedback, error) {
	if params == nil {
		params = Params{}
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	payload, err := json.Marshal(requestBody{Action: action, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}
	c.logger.Log(ctx, logger.LevelTrace, "admin request", "action", action, "body", string(payload))

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AuthHeader, c.auth)

	hc := c.httpClient()
	defer hc.CloseIdleConnections()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, c.transportError(action, timeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(action, timeout, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Kind: BadStatus, Action: action, StatusCode: resp.StatusCode, Body: string(data)}
	}

	var body responseBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &TransportError{Kind: BadStatus, Action: action, StatusCode: resp.StatusCode, Err: err}
	}
	if body.Result == nil {
		return nil, &TransportError{Kind: BadStatus, Action: action, StatusCode: resp.StatusCode, Err: errors.New("missing result field")}
	}
	c.logger.Log(ctx, logger.LevelTrace, "admin response", "action", action, "body", string(data))

	result := *body.Result
	if result == ResultActionNotFound && action != ActionRuntimeStatus {
		if status, serr := c.RuntimeStatus(ctx); serr == nil && status != StatusRunning {
			return nil, &NotFullyRunningError{Status: status, Action: action}
		}
	}
	if result != ResultOK {
		return nil, &ProtocolError{
			Action:   action,
			Result:   result,
			Kind:     Classify(action, result),
			Message:  body.Message,
			Cause:    causeString(body.Cause),
			Feedback: body.Feedback,
		}
	}
	if body.Feedback == nil {
		body.Feedback = Feedback{}
	}
	return body.Feedback, nil
}

func (c *Client) transportError(action string, timeout time.Duration, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		c.logger.Log(context.Background(), logger.LevelTrace, "admin api timeout", "action", action, "timeout", timeout)
		return &TransportError{Kind: Timeout, Action: action, Timeout: timeout, Err: err}
	}
	c.logger.Log(context.Background(), logger.LevelTrace, "admin api not available", "action", action, "error", err)
	return &TransportError{Kind: NotAvailable, Action: action, Err: err}
}

func causeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Ping reports whether the admin API answers an echo request. Every failure,
// transport or protocol, counts as false.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	_, err := c.Echo(ctx, nil, timeout)
	return err == nil
}

// RequireAction fails with a CapabilityError when the runtime does not list
// action among its admin actions. Runtimes that predate get_admin_action_info
// offer nothing beyond the basic set, so a missing info action counts as a
// missing action too.
func (c *Client) RequireAction(ctx context.Context, action string) error {
	fb, err := c.AdminActionInfo(ctx)
	if err != nil {
		var nfr *NotFullyRunningError
		if k, ok := KindOf(err); (ok && k == KindActionNotFound) || errors.As(err, &nfr) {
			c.logger.Debug("admin action info not available", "action", action, "error", err)
			return &CapabilityError{Action: action}
		}
		return err
	}
	if !hasAction(fb["action_info"], action) {
		return &CapabilityError{Action: action}
	}
	return nil
}

func hasAction(info any, action string) bool {
	switch v := info.(type) {
	case map[string]any:
		_, ok := v[action]
		return ok
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok && s == action {
				return true
			}
		}
	}
	return false
}
