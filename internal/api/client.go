// Package api is the HTTP client for the request worker's control API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/s22625/nexusflow/internal/model"
)

const (
	pathStart  = "/api/start"
	pathStop   = "/api/stop"
	pathStatus = "/api/status"
	pathLogs   = "/api/logs"
	pathLogin  = "/login"
)

// maxBodyBytes caps how much of a response is read. The log endpoint returns
// at most a few hundred entries.
const maxBodyBytes = 8 << 20

// Ack is the minimal {ok, error} envelope every endpoint returns.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the transport. Its Jar is replaced when nil.
	HTTPClient *http.Client
	// Timeout bounds each request. Zero leaves timeouts to the transport.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to one worker instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for the worker at baseURL (e.g. http://127.0.0.1:5000).
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	} else {
		copied := *hc
		hc = &copied
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: hc,
		logger:     logger,
	}, nil
}

// BaseURL returns the worker URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login authenticates with the worker's shared password. The session cookie
// is kept in the client's jar for all later requests.
func (c *Client) Login(ctx context.Context, password string) error {
	form := url.Values{"password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathLogin, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return &RejectedError{Op: "login", Message: "Wrong password"}
	case resp.StatusCode >= 400:
		return &MalformedResponseError{Op: "login", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	c.logger.Debug("logged in", "server", c.baseURL)
	return nil
}

// Start sends the run configuration to the worker.
func (c *Client) Start(ctx context.Context, cfg model.FormConfig) (*Ack, error) {
	var ack Ack
	if err := c.doJSON(ctx, "start", http.MethodPost, pathStart, cfg, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Stop asks the worker to stop. Stopping an idle worker succeeds.
func (c *Client) Stop(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.doJSON(ctx, "stop", http.MethodPost, pathStop, nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Status fetches the current run state.
func (c *Client) Status(ctx context.Context) (*model.RunStatus, error) {
	var st model.RunStatus
	if err := c.doJSON(ctx, "status", http.MethodGet, pathStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Logs fetches the worker's log buffer.
func (c *Client) Logs(ctx context.Context) (*model.LogSnapshot, error) {
	var snap model.LogSnapshot
	if err := c.doJSON(ctx, "logs", http.MethodGet, pathLogs, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// doJSON performs one request and decodes the {ok, error, ...} envelope into out.
// Error statuses are still decoded since the worker reports rejections as
// JSON with 4xx/5xx codes.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", op, err)
		}
		body = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug("api request", "op", op, "status", resp.StatusCode, "bytes", len(blob), "elapsed", time.Since(start))

	// Unauthenticated API calls are redirected to the login page.
	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Path == pathLogin {
		return &RejectedError{Op: op, Message: LoginRequired}
	}

	var ack Ack
	if err := json.Unmarshal(blob, &ack); err != nil {
		return &MalformedResponseError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !ack.OK {
		msg := strings.TrimSpace(ack.Error)
		if msg == "" {
			msg = UnknownError
		}
		return &RejectedError{Op: op, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return &MalformedResponseError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// ErrorMessage extracts the operator-facing reason from an API error.
func ErrorMessage(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Message
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Err.Error()
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return "malformed response"
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
