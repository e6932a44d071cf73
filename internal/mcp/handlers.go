package mcp

import (
	"encoding/json"
	"net/http"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/tools"
)

// InvalidBodyMessage is returned when /mcp/run cannot decode its body.
const InvalidBodyMessage = "Invalid request body"

// maxBodyBytes caps /mcp/run request bodies.
const maxBodyBytes = 1 << 20

// handleRun dispatches one tool call. Tool outcomes, including failures,
// are always 200 with the result envelope.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req tools.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		L_debug("mcp: invalid request body", "error", err)
		writeJSON(w, http.StatusOK, tools.Fail(InvalidBodyMessage))
		return
	}

	L_info("mcp: tool called", "tool", req.ToolName, "role", s.cfg.Role)
	res := s.cfg.Registry.Dispatch(r.Context(), req)

	label := req.ToolName
	if !s.cfg.Registry.Has(label) {
		label = "unknown"
	}
	MetricToolCall(label, outcome(res))

	writeJSON(w, http.StatusOK, res)
}

func outcome(res tools.Result) string {
	switch {
	case res.Success:
		return OutcomeSuccess
	case res.Bool("queued"):
		return OutcomeQueued
	case res.Bool("qr_required"):
		return OutcomeRejected
	default:
		return OutcomeFailure
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := tools.Timestamp(s.now())

	if s.cfg.Role == RoleHost {
		st := s.cfg.Session.SessionStatus()
		body := map[string]any{
			"status":         "OK",
			"service":        "Local WhatsApp Server",
			"whatsapp_ready": st.Ready,
			"qr_available":   st.PairingAvailable,
			"state":          st.State,
			"queued":         st.Queued,
			"timestamp":      now,
		}
		if !st.OldestQueued.IsZero() {
			body["oldest_queued_at"] = tools.Timestamp(st.OldestQueued)
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "OK",
		"service":    "MCP Server",
		"version":    s.cfg.Version,
		"deployment": s.cfg.Deployment,
		"features":   []string{"ClickUp Integration", "WhatsApp Integration"},
		"timestamp":  now,
		"endpoints": map[string]string{
			"mcp":    "POST /api/mcp/run",
			"health": "GET /api/health",
		},
	})
}

// handleQR reports pairing availability; the code itself is only rendered
// on the host terminal.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	st := s.cfg.Session.SessionStatus()

	msg := "QR code not generated yet"
	switch {
	case st.PairingAvailable:
		msg = "Scan this QR code with WhatsApp"
	case st.Ready:
		msg = "WhatsApp already connected"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"qr_available": st.PairingAvailable,
		"message":      msg,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	services := []string{"ClickUp Task Management", "WhatsApp Messaging"}
	message := "MCP Server running"
	if s.cfg.Role == RoleHost {
		services = []string{"WhatsApp Messaging"}
		message = "Local WhatsApp Server running"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      message,
		"services":     services,
		"deployment":   s.cfg.Deployment,
		"instructions": "Use /api/mcp/run endpoint for MCP integration",
		"tools":        s.cfg.Registry.Definitions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("mcp: failed to write response", "error", err)
	}
}
