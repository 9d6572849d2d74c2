// Package client talks to the control API served by "rtctl serve".
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with rtctl serve
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	// Timeout bounds each request. Start and stop wait for the whole launch
	// or shutdown, so it should exceed the server's configured timeouts.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8090",
		Timeout: 5 * time.Minute,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger.With("component", "client"),
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// APIError is a non-2xx answer of the server.
type APIError struct {
	StatusCode int
	ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.ErrorResponse.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Kind != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Kind, msg)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, msg)
}

// IsReachable checks if the server is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Status fetches liveness and runtime details.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	_, err := c.do(ctx, http.MethodGet, "/status", &st)
	return st, err
}

// Start asks the server to bring the runtime up and waits for the outcome.
func (c *Client) Start(ctx context.Context) (StartResult, error) {
	var res StartResult
	_, err := c.do(ctx, http.MethodPost, "/start", &res)
	return res, err
}

// Stop asks the server to shut the runtime down. A runtime that survived
// every tier comes back as the result together with an *APIError.
func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var res StopResult
	code, err := c.do(ctx, http.MethodPost, "/stop", &res, http.StatusConflict)
	if err == nil && code == http.StatusConflict {
		err = &APIError{StatusCode: code, ErrorResponse: ErrorResponse{
			Error: fmt.Sprintf("the runtime is still running after %s", res.Tier),
		}}
	}
	return res, err
}

// do performs a request and decodes the body into out when the answer is
// 200 or one of the extra codes.
func (c *Client) do(ctx context.Context, method, path string, out any, extra ...int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusOK || slices.Contains(extra, resp.StatusCode) {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	return resp.StatusCode, decodeError(resp.StatusCode, data)
}

func decodeError(code int, data []byte) error {
	e := &APIError{StatusCode: code}
	if err := json.Unmarshal(data, &e.ErrorResponse); err != nil {
		e.ErrorResponse.Error = strings.TrimSpace(string(data))
	}
	return e
}

// IsConflict reports whether err is a 409 answer: an aborted start, an
// inconsistent state, or a runtime that survived stop.
func IsConflict(err error) bool {
	var e *APIError
	return errors.As(err, &e) && e.StatusCode == http.StatusConflict
}
