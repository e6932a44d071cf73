// Package mcp serves the MCP tool endpoint and its informational routes for
// both the gateway and the session host.
package mcp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/session"
	"github.com/roelfdiedericks/wamcp/internal/tools"
)

// Role selects which routes and payloads a server exposes.
type Role string

const (
	RoleGateway Role = "gateway"
	RoleHost    Role = "host"
)

// DefaultVersion is reported by the gateway health payload.
const DefaultVersion = "2.0.0"

// SessionView is the host's read-only view of its messaging session.
type SessionView interface {
	SessionStatus() tools.SessionStatus
	Snapshot() session.Snapshot
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Role        Role
	Listen      string // e.g. ":3000", "127.0.0.1:3001"
	Key         string // shared x-mcp-key secret
	CORSOrigins []string
	Deployment  string
	Version     string

	Registry *tools.Registry
	// Session is required for RoleHost.
	Session SessionView
}

// Server represents the HTTP server
type Server struct {
	cfg    ServerConfig
	server *http.Server
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewRegistry()
	}

	s := &Server{cfg: cfg, now: time.Now}
	s.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /session/events holds its connection open.
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logRequest)
	r.Use(chiMiddleware.Recoverer)
	r.Use(stripHeaders)
	r.Use(cors(s.cfg.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(requireKey(s.cfg.Key))
		r.Post("/mcp/run", s.handleRun)
		r.Post("/api/mcp/run", s.handleRun)
		if s.cfg.Role == RoleHost {
			r.Get("/session/events", s.handleSessionEvents)
		}
	})

	if s.cfg.Role == RoleHost {
		r.Get("/qr", s.handleQR)
	}

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	for _, line := range s.cfg.Registry.Summary() {
		L_debug("mcp: tool registered", "tool", line)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("mcp: server starting", "role", s.cfg.Role, "addr", s.server.Addr, "tools", s.cfg.Registry.Count())

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("mcp: server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("mcp: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("mcp: server stopped")
	return nil
}
