// Package clickup is a minimal ClickUp REST client for creating tasks.
package clickup

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

	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// DefaultBaseURL is the public ClickUp v2 API.
const DefaultBaseURL = "https://api.clickup.com/api/v2"

const (
	defaultDiscoveryTimeout = 10 * time.Second
	defaultCreateTimeout    = 15 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ClickUp API key not configured in environment variables")

// Discovery failures, surfaced verbatim to callers.
var (
	ErrNoTeams  = errors.New("No ClickUp teams found. Please check your API key.")
	ErrNoSpaces = errors.New("No spaces found in your ClickUp team.")
	ErrNoLists  = errors.New("No lists found. Please create a list in your ClickUp space.")
)

// Config holds ClickUp client settings.
type Config struct {
	APIKey           string        `json:"apiKey" toml:"api_key" yaml:"api_key"`
	BaseURL          string        `json:"baseUrl" toml:"base_url" yaml:"base_url"`
	DiscoveryTimeout time.Duration `json:"discoveryTimeout" toml:"discovery_timeout" yaml:"discovery_timeout"`
	CreateTimeout    time.Duration `json:"createTimeout" toml:"create_timeout" yaml:"create_timeout"`
}

// Task is a created ClickUp task.
type Task struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is a non-2xx ClickUp response. Msg carries the API's "err" field when present.
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("ClickUp API returned HTTP %d", e.Status)
}

// Client talks to the ClickUp REST API. It never retries.
type Client struct {
	apiKey           string
	baseURL          string
	client           *http.Client
	discoveryTimeout time.Duration
	createTimeout    time.Duration
}

// NewClient creates a client. An empty API key yields a client that reports
// itself unconfigured rather than an error, so the gateway can still start.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	discovery := cfg.DiscoveryTimeout
	if discovery <= 0 {
		discovery = defaultDiscoveryTimeout
	}
	create := cfg.CreateTimeout
	if create <= 0 {
		create = defaultCreateTimeout
	}

	L_debug("clickup: client created", "url", baseURL, "configured", cfg.APIKey != "")

	return &Client{
		apiKey:           cfg.APIKey,
		baseURL:          baseURL,
		client:           &http.Client{},
		discoveryTimeout: discovery,
		createTimeout:    create,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// CreateTask creates a task in the first list of the first space of the first
// team visible to the API key.
func (c *Client) CreateTask(ctx context.Context, name, description string) (Task, error) {
	if !c.Configured() {
		return Task{}, ErrNotConfigured
	}

	L_debug("clickup: creating task", "name", name)

	var teams struct {
		Teams []entity `json:"teams"`
	}
	if err := c.do(ctx, c.discoveryTimeout, http.MethodGet, "/team", nil, &teams); err != nil {
		return Task{}, err
	}
	if len(teams.Teams) == 0 {
		return Task{}, ErrNoTeams
	}

	var spaces struct {
		Spaces []entity `json:"spaces"`
	}
	if err := c.do(ctx, c.discoveryTimeout, http.MethodGet, "/team/"+teams.Teams[0].ID+"/space", nil, &spaces); err != nil {
		return Task{}, err
	}
	if len(spaces.Spaces) == 0 {
		return Task{}, ErrNoSpaces
	}

	var lists struct {
		Lists []entity `json:"lists"`
	}
	if err := c.do(ctx, c.discoveryTimeout, http.MethodGet, "/space/"+spaces.Spaces[0].ID+"/list", nil, &lists); err != nil {
		return Task{}, err
	}
	if len(lists.Lists) == 0 {
		return Task{}, ErrNoLists
	}

	body := map[string]string{
		"name":        name,
		"description": description,
	}
	var task Task
	if err := c.do(ctx, c.createTimeout, http.MethodPost, "/list/"+lists.Lists[0].ID+"/task", body, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Err string `json:"err"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Msg = payload.Err
		}
		L_warn("clickup: request failed", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	L_trace("clickup: request completed", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(data))
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
