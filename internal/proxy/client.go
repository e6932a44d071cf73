// Package proxy forwards messaging tool calls from the gateway to the
// session host over HTTP.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/tools"
)

// ErrUnavailable covers every transport failure talking to the session host.
var ErrUnavailable = errors.New("WhatsApp server unavailable. Please ensure local WhatsApp server is running.")

// NotConfiguredMessage is returned when no session host URL is set.
const NotConfiguredMessage = "WhatsApp server not configured. Please set WHATSAPP_SERVER_URL environment variable."

// KeyHeader carries the shared MCP secret.
const KeyHeader = "x-mcp-key"

const (
	DefaultTimeout       = 20 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds session host connection settings.
type Config struct {
	BaseURL       string
	Key           string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// Client calls the session host. It never retries; that is left to the
// external caller.
type Client struct {
	baseURL       string
	key           string
	client        *http.Client
	timeout       time.Duration
	healthTimeout time.Duration
}

// New creates a proxy client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		key:           cfg.Key,
		client:        &http.Client{},
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = DefaultHealthTimeout
	}
	return c
}

// Configured reports whether a session host URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// SendMessage forwards a send to the session host and relays its result.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, message string) tools.Result {
	if !c.Configured() {
		return tools.Fail(NotConfiguredMessage)
	}

	L_info("proxy: forwarding message", "to", phoneNumber)
	res, err := c.Forward(ctx, tools.Request{
		ToolName: tools.SendMessageToolName,
		Parameters: tools.Params{
			"phone_number": phoneNumber,
			"message":      message,
		},
	})
	if err != nil {
		L_error("proxy: forward failed", "error", err)
		return tools.FailErr(ErrUnavailable)
	}
	return res
}

// Forward posts req to the session host's dispatch endpoint. Any transport
// failure, non-2xx status or undecodable body is reported as ErrUnavailable.
func (c *Client) Forward(ctx context.Context, req tools.Request) (tools.Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return tools.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp/run", bytes.NewReader(payload))
	if err != nil {
		MetricProxyRequest(OutcomeFailure)
		return tools.Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(KeyHeader, c.key)
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		MetricProxyRequest(OutcomeFailure)
		return tools.Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		MetricProxyRequest(OutcomeFailure)
		return tools.Result{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		MetricProxyRequest(OutcomeFailure)
		return tools.Result{}, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var res tools.Result
	if err := json.Unmarshal(body, &res); err != nil {
		MetricProxyRequest(OutcomeFailure)
		return tools.Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	MetricProxyRequest(OutcomeSuccess)
	L_debug("proxy: forwarded", "tool", req.ToolName, "success", res.Success, "elapsed", time.Since(start))
	return res, nil
}

// Probe checks the session host's /health endpoint.
func (c *Client) Probe(ctx context.Context) tools.HostStatus {
	if !c.Configured() {
		return tools.HostStatus{Message: "WhatsApp server URL not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return tools.HostStatus{Message: "WhatsApp server not reachable"}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		L_debug("proxy: health probe failed", "error", err)
		return tools.HostStatus{Message: "WhatsApp server not reachable"}
	}
	defer resp.Body.Close()

	var health struct {
		Ready bool `json:"whatsapp_ready"`
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || json.NewDecoder(resp.Body).Decode(&health) != nil {
		return tools.HostStatus{Message: "WhatsApp server not reachable"}
	}

	status := tools.HostStatus{Reachable: true, Ready: health.Ready}
	if health.Ready {
		status.Message = "WhatsApp connected and ready"
	} else {
		status.Message = "WhatsApp server running but not connected"
	}
	return status
}
