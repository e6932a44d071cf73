// Package config loads wamcp configuration from defaults, an optional config
// file, an optional .env file and the environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	"github.com/roelfdiedericks/wamcp/internal/paths"
)

// Role default ports.
const (
	DefaultGatewayPort = 3000
	DefaultHostPort    = 3001
)

// Config represents the merged wamcp configuration
type Config struct {
	// MCPKey is the shared secret expected in the x-mcp-key header. The
	// gateway also presents it to the session host.
	MCPKey   string         `json:"mcpKey,omitempty" toml:"mcp_key,omitempty" yaml:"mcp_key,omitempty"`
	Server   ServerConfig   `json:"server" toml:"server" yaml:"server"`
	Session  SessionConfig  `json:"session" toml:"session" yaml:"session"`
	WhatsApp WhatsAppConfig `json:"whatsapp" toml:"whatsapp" yaml:"whatsapp"`
	Gateway  GatewayConfig  `json:"gateway" toml:"gateway" yaml:"gateway"`
	ClickUp  ClickUpConfig  `json:"clickup" toml:"clickup" yaml:"clickup"`
	Log      LogSettings    `json:"log" toml:"log" yaml:"log"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Port        int      `json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"` // 0 = role default
	Bind        string   `json:"bind,omitempty" toml:"bind,omitempty" yaml:"bind,omitempty"`
	CORSOrigins []string `json:"corsOrigins,omitempty" toml:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// SessionConfig controls the session host's send and recovery behavior.
type SessionConfig struct {
	QueueOnNotReady *bool  `json:"queueOnNotReady,omitempty" toml:"queue_on_not_ready,omitempty" yaml:"queue_on_not_ready,omitempty"`
	CountryCode     string `json:"countryCode,omitempty" toml:"country_code,omitempty" yaml:"country_code,omitempty"`
	DrainRetryLimit int    `json:"drainRetryLimit,omitempty" toml:"drain_retry_limit,omitempty" yaml:"drain_retry_limit,omitempty"`
	SendTimeout     string `json:"sendTimeout,omitempty" toml:"send_timeout,omitempty" yaml:"send_timeout,omitempty"`
	ReconnectDelay  string `json:"reconnectDelay,omitempty" toml:"reconnect_delay,omitempty" yaml:"reconnect_delay,omitempty"`
	InitRetryDelay  string `json:"initRetryDelay,omitempty" toml:"init_retry_delay,omitempty" yaml:"init_retry_delay,omitempty"`
	MaxAttempts     int    `json:"maxAttempts,omitempty" toml:"max_attempts,omitempty" yaml:"max_attempts,omitempty"` // 0 = unbounded
	FormatMarkdown  *bool  `json:"formatMarkdown,omitempty" toml:"format_markdown,omitempty" yaml:"format_markdown,omitempty"`
}

// WhatsAppConfig is the whatsmeow device store and pairing display.
type WhatsAppConfig struct {
	DBPath string `json:"dbPath,omitempty" toml:"db_path,omitempty" yaml:"db_path,omitempty"` // empty = ~/.wamcp/whatsapp.db
	ShowQR *bool  `json:"showQr,omitempty" toml:"show_qr,omitempty" yaml:"show_qr,omitempty"`
}

// GatewayConfig is how the gateway reaches the session host.
type GatewayConfig struct {
	HostURL       string `json:"hostUrl,omitempty" toml:"host_url,omitempty" yaml:"host_url,omitempty"`
	Timeout       string `json:"timeout,omitempty" toml:"timeout,omitempty" yaml:"timeout,omitempty"`
	HealthTimeout string `json:"healthTimeout,omitempty" toml:"health_timeout,omitempty" yaml:"health_timeout,omitempty"`
	Deployment    string `json:"deployment,omitempty" toml:"deployment,omitempty" yaml:"deployment,omitempty"`
}

// ClickUpConfig holds task tracker credentials.
type ClickUpConfig struct {
	APIKey           string `json:"apiKey,omitempty" toml:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL          string `json:"baseUrl,omitempty" toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	DiscoveryTimeout string `json:"discoveryTimeout,omitempty" toml:"discovery_timeout,omitempty" yaml:"discovery_timeout,omitempty"`
	CreateTimeout    string `json:"createTimeout,omitempty" toml:"create_timeout,omitempty" yaml:"create_timeout,omitempty"`
}

// LogSettings configures the global logger.
type LogSettings struct {
	Level      string `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`
	JSON       bool   `json:"json,omitempty" toml:"json,omitempty" yaml:"json,omitempty"`
	ShowCaller bool   `json:"showCaller,omitempty" toml:"show_caller,omitempty" yaml:"show_caller,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			CORSOrigins: []string{"*"},
		},
		Session: SessionConfig{
			QueueOnNotReady: boolPtr(true),
			CountryCode:     "92",
			SendTimeout:     "15s",
			ReconnectDelay:  "5s",
			InitRetryDelay:  "10s",
			FormatMarkdown:  boolPtr(false),
		},
		WhatsApp: WhatsAppConfig{
			ShowQR: boolPtr(true),
		},
		Gateway: GatewayConfig{
			Timeout:       "20s",
			HealthTimeout: "5s",
			Deployment:    "cloud",
		},
		ClickUp: ClickUpConfig{
			DiscoveryTimeout: "10s",
			CreateTimeout:    "15s",
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// LoadOptions selects the inputs to Load.
type LoadOptions struct {
	Path    string // explicit config file; empty = search ./ then ~/.wamcp/
	EnvFile string // .env file; empty = ".env"
	NoEnv   bool   // skip .env and environment overrides (tests)
}

// LoadResult is a loaded configuration and where it came from.
type LoadResult struct {
	Config *Config
	Path   string // "" if no file was found
}

// Load builds the configuration. A missing config file or .env file is fine;
// a malformed one is an error.
func Load(opts LoadOptions) (*LoadResult, error) {
	cfg := Default()

	path := opts.Path
	if path == "" {
		found, err := paths.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = found
	} else if expanded, err := paths.ExpandTilde(path); err == nil {
		path = expanded
	}

	if path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := Merge(cfg, fileCfg); err != nil {
			return nil, fmt.Errorf("merge %s: %w", path, err)
		}
		L_debug("config: loaded file", "path", path)
	}

	if !opts.NoEnv {
		envFile := opts.EnvFile
		if envFile == "" {
			envFile = ".env"
		}
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
			L_trace("config: no .env file, using environment variables")
		}

		envCfg, err := FromEnv(os.Getenv)
		if err != nil {
			return nil, err
		}
		if err := Merge(cfg, envCfg); err != nil {
			return nil, fmt.Errorf("merge environment: %w", err)
		}
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

// Merge overlays the non-empty fields of src onto dst. Pointer fields are
// replaced rather than merged through, so an explicit false wins.
func Merge(dst, src *Config) error {
	return mergo.Merge(dst, src, mergo.WithOverride, mergo.WithoutDereference)
}

// ReadFile decodes a config file by extension (.json, .toml, .yaml, .yml).
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv reads the environment overrides. Unset variables leave fields empty.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		MCPKey: getenv("MCP_SECRET_KEY"),
		ClickUp: ClickUpConfig{
			APIKey: getenv("CLICKUP_API_KEY"),
		},
		Gateway: GatewayConfig{
			HostURL: getenv("WHATSAPP_SERVER_URL"),
		},
		Session: SessionConfig{
			CountryCode: getenv("DEFAULT_COUNTRY_CODE"),
		},
		Log: LogSettings{
			Level: getenv("LOG_LEVEL"),
		},
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("QUEUE_ON_NOT_READY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("QUEUE_ON_NOT_READY: %w", err)
		}
		cfg.Session.QueueOnNotReady = &b
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}
	return cfg, nil
}

// Validate rejects configurations the servers cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MCPKey == "" {
		errs = append(errs, errors.New("MCP key is not set (MCP_SECRET_KEY or mcp_key)"))
	}
	if cc := c.Session.CountryCode; cc == "" || len(cc) > 3 || strings.Trim(cc, "0123456789") != "" {
		errs = append(errs, fmt.Errorf("invalid country code %q", cc))
	}
	if p := c.Server.Port; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", p))
	}
	if c.Session.DrainRetryLimit < 0 {
		errs = append(errs, errors.New("drain retry limit must not be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	for name, v := range map[string]string{
		"session.send_timeout":      c.Session.SendTimeout,
		"session.reconnect_delay":   c.Session.ReconnectDelay,
		"session.init_retry_delay":  c.Session.InitRetryDelay,
		"gateway.timeout":           c.Gateway.Timeout,
		"gateway.health_timeout":    c.Gateway.HealthTimeout,
		"clickup.discovery_timeout": c.ClickUp.DiscoveryTimeout,
		"clickup.create_timeout":    c.ClickUp.CreateTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// PortOr returns the configured port, or fallback when unset.
func (c *Config) PortOr(fallback int) int {
	if c.Server.Port > 0 {
		return c.Server.Port
	}
	return fallback
}

// Queue reports the not-ready send policy.
func (s SessionConfig) Queue() bool {
	return s.QueueOnNotReady != nil && *s.QueueOnNotReady
}

// Markdown reports whether outbound bodies are converted to WhatsApp markup.
func (s SessionConfig) Markdown() bool {
	return s.FormatMarkdown != nil && *s.FormatMarkdown
}

// QR reports whether pairing QR codes are drawn on the terminal.
func (w WhatsAppConfig) QR() bool {
	return w.ShowQR == nil || *w.ShowQR
}

// Duration parses a duration setting, falling back when empty or invalid.
func Duration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		L_warn("config: invalid duration, using default", "value", v, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func boolPtr(b bool) *bool {
	return &b
}
