package mcp

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/proxy"
	"github.com/roelfdiedericks/wamcp/internal/tools"
)

// Authentication failure messages.
const (
	MissingKeyMessage = "MCP key is required in x-mcp-key header"
	InvalidKeyMessage = "Invalid MCP key"
)

// requireKey rejects requests whose x-mcp-key header does not match key.
// A rejected request never reaches the wrapped handler.
func requireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(proxy.KeyHeader)
			if got == "" {
				MetricAuthFailure("missing")
				L_warn("mcp: auth failed - missing key", "ip", r.RemoteAddr, "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, tools.Fail(MissingKeyMessage))
				return
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				MetricAuthFailure("invalid")
				L_warn("mcp: auth failed - invalid key", "ip", r.RemoteAddr, "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, tools.Fail(InvalidKeyMessage))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cors returns middleware that handles CORS headers.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			wildcard, explicit := false, false
			for _, o := range allowedOrigins {
				switch {
				case o == "*":
					wildcard = true
				case o == origin, matchWildcardOrigin(o, origin):
					explicit = true
				}
			}

			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+proxy.KeyHeader)
				w.Header().Add("Vary", "Origin")
				// Credentials only for explicitly listed origins, never for "*".
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchWildcardOrigin matches patterns like "https://*.example.com".
func matchWildcardOrigin(pattern, origin string) bool {
	prefix, suffix, ok := strings.Cut(pattern, "*")
	if !ok || origin == "" {
		return false
	}
	return len(origin) > len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix)
}

// logRequest logs each request once it completes
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lw, r)

		L_trace("mcp: request",
			"id", chiMiddleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	})
}

// loggingResponseWriter wraps ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("mcp: response writer does not support hijacking")
	}
	lw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Flush implements http.Flusher
func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// stripHeaders removes fingerprinting headers
func stripHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")

		next.ServeHTTP(w, r)
	})
}
