package tools

import (
	"context"
	"time"
)

const (
	ServerStatusToolName   = "get_server_status"
	WhatsAppStatusToolName = "get_whatsapp_status"
	WhatsAppQRToolName     = "get_whatsapp_qr"
)

// Service flag values reported under "services".
const (
	ServiceConnected     = "connected"
	ServiceWaitingQR     = "waiting_qr"
	ServiceDisconnected  = "disconnected"
	ServiceConfigured    = "configured"
	ServiceNotConfigured = "not_configured"
	ServiceHealthy       = "healthy"
)

// TimestampFormat matches the millisecond UTC timestamps callers already parse.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t for status payloads.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// SessionStatus is the session host's view of its messaging session.
type SessionStatus struct {
	State            string
	Ready            bool
	PairingAvailable bool
	Queued           int
	OldestQueued     time.Time // head of the outbox; zero when empty
}

// ServiceFlag maps the session status onto a services flag.
func (s SessionStatus) ServiceFlag() string {
	switch {
	case s.Ready:
		return ServiceConnected
	case s.PairingAvailable || s.State == "pairing":
		return ServiceWaitingQR
	default:
		return ServiceDisconnected
	}
}

// SessionStatusSource exposes the current session status.
type SessionStatusSource interface {
	SessionStatus() SessionStatus
}

// HostStatus is the gateway's view of the session host, from its health probe.
type HostStatus struct {
	Reachable bool
	Ready     bool
	Message   string
}

// ServiceFlag maps the probe onto a services flag.
func (h HostStatus) ServiceFlag() string {
	switch {
	case !h.Reachable:
		return ServiceDisconnected
	case h.Ready:
		return ServiceConnected
	default:
		return ServiceWaitingQR
	}
}

// HostProber checks on the session host.
type HostProber interface {
	Probe(ctx context.Context) HostStatus
}

// GatewayStatusTool reports gateway configuration and session host reachability.
type GatewayStatusTool struct {
	clickupConfigured bool
	prober            HostProber
	deployment        string
	now               func() time.Time
}

// NewGatewayStatusTool creates get_server_status for the gateway role.
func NewGatewayStatusTool(clickupConfigured bool, prober HostProber, deployment string) *GatewayStatusTool {
	return &GatewayStatusTool{
		clickupConfigured: clickupConfigured,
		prober:            prober,
		deployment:        deployment,
		now:               time.Now,
	}
}

func (t *GatewayStatusTool) Name() string { return ServerStatusToolName }

func (t *GatewayStatusTool) Description() string {
	return "Report gateway health, ClickUp configuration and WhatsApp session host status."
}

func (t *GatewayStatusTool) Schema() map[string]any { return objectSchema(nil, nil) }

func (t *GatewayStatusTool) Execute(ctx context.Context, _ Params) Result {
	host := t.prober.Probe(ctx)

	clickup := ServiceNotConfigured
	if t.clickupConfigured {
		clickup = ServiceConfigured
	}

	return OK(map[string]any{
		"status":     "running",
		"deployment": t.deployment,
		"services": map[string]string{
			"clickup":  clickup,
			"whatsapp": host.ServiceFlag(),
			"server":   ServiceHealthy,
		},
		"message":   host.Message,
		"timestamp": Timestamp(t.now()),
	})
}

// HostStatusTool is get_server_status for the session host role.
type HostStatusTool struct {
	source SessionStatusSource
	now    func() time.Time
}

// NewHostStatusTool creates get_server_status for the session host role.
func NewHostStatusTool(source SessionStatusSource) *HostStatusTool {
	return &HostStatusTool{source: source, now: time.Now}
}

func (t *HostStatusTool) Name() string { return ServerStatusToolName }

func (t *HostStatusTool) Description() string {
	return "Report session host health and WhatsApp session readiness."
}

func (t *HostStatusTool) Schema() map[string]any { return objectSchema(nil, nil) }

func (t *HostStatusTool) Execute(_ context.Context, _ Params) Result {
	st := t.source.SessionStatus()
	return OK(map[string]any{
		"status":     "running",
		"deployment": "local",
		"services": map[string]string{
			"whatsapp": st.ServiceFlag(),
			"server":   ServiceHealthy,
		},
		"message":   statusMessage(st),
		"queued":    st.Queued,
		"timestamp": Timestamp(t.now()),
	})
}

// WhatsAppStatusTool reports session readiness.
type WhatsAppStatusTool struct {
	source SessionStatusSource
}

// NewWhatsAppStatusTool creates get_whatsapp_status.
func NewWhatsAppStatusTool(source SessionStatusSource) *WhatsAppStatusTool {
	return &WhatsAppStatusTool{source: source}
}

func (t *WhatsAppStatusTool) Name() string { return WhatsAppStatusToolName }

func (t *WhatsAppStatusTool) Description() string {
	return "Check whether the WhatsApp session is connected, pairing or recovering."
}

func (t *WhatsAppStatusTool) Schema() map[string]any { return objectSchema(nil, nil) }

func (t *WhatsAppStatusTool) Execute(_ context.Context, _ Params) Result {
	st := t.source.SessionStatus()
	return OK(map[string]any{
		"whatsapp_ready": st.Ready,
		"qr_required":    !st.Ready && st.PairingAvailable,
		"state":          st.State,
		"queued":         st.Queued,
		"message":        statusMessage(st),
	})
}

// WhatsAppQRTool reports pairing code availability.
type WhatsAppQRTool struct {
	source SessionStatusSource
}

// NewWhatsAppQRTool creates get_whatsapp_qr.
func NewWhatsAppQRTool(source SessionStatusSource) *WhatsAppQRTool {
	return &WhatsAppQRTool{source: source}
}

func (t *WhatsAppQRTool) Name() string { return WhatsAppQRToolName }

func (t *WhatsAppQRTool) Description() string {
	return "Check whether a pairing QR code is available to scan."
}

func (t *WhatsAppQRTool) Schema() map[string]any { return objectSchema(nil, nil) }

func (t *WhatsAppQRTool) Execute(_ context.Context, _ Params) Result {
	st := t.source.SessionStatus()
	return OK(map[string]any{
		"qr_available":   st.PairingAvailable,
		"whatsapp_ready": st.Ready,
		"message":        QRMessage(st),
	})
}

func statusMessage(st SessionStatus) string {
	switch {
	case st.Ready:
		return "WhatsApp connected and ready"
	case st.PairingAvailable:
		return "Please scan QR code to connect WhatsApp"
	default:
		return "WhatsApp initializing..."
	}
}

// QRMessage describes pairing availability for st.
func QRMessage(st SessionStatus) string {
	switch {
	case st.Ready:
		return "WhatsApp already connected"
	case st.PairingAvailable:
		return "QR code available - scan to connect"
	default:
		return "Generating QR code..."
	}
}
