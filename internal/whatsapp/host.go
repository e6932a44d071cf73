// Package whatsapp is the session host's messaging transport: a whatsmeow
// client over a sqlite device store, translated into session lifecycle
// events, plus the operator link/unlink/status commands.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
	"github.com/roelfdiedericks/wamcp/internal/messenger"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/session"
)

// Notifier receives lifecycle events raised by the transport.
type Notifier interface {
	Notify(ev session.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev session.Event)

func (f NotifierFunc) Notify(ev session.Event) { f(ev) }

// Config controls the transport.
type Config struct {
	DBPath string
	// ShowQR draws pairing codes on stdout when it is a terminal.
	ShowQR          bool
	InitPolicy      session.RetryPolicy
	ReconnectPolicy session.RetryPolicy
}

type recovery int

const (
	recoverInit recovery = iota
	recoverReconnect
)

// Host owns the whatsmeow client for the process.
type Host struct {
	cfg      Config
	notifier Notifier
	out      io.Writer
	showQR   bool

	retry         chan recovery
	authenticated atomic.Bool
	// startFn is start unless replaced in tests.
	startFn func(ctx context.Context) error

	mu        sync.RWMutex
	db        *sql.DB
	container *sqlstore.Container
	client    *whatsmeow.Client
}

// NewHost creates a transport. Nothing is opened until Run.
func NewHost(cfg Config, notifier Notifier) *Host {
	if cfg.InitPolicy.Delay <= 0 {
		cfg.InitPolicy.Delay = session.DefaultInitPolicy.Delay
	}
	if cfg.ReconnectPolicy.Delay <= 0 {
		cfg.ReconnectPolicy.Delay = session.DefaultReconnectPolicy.Delay
	}
	h := &Host{
		cfg:      cfg,
		notifier: notifier,
		out:      os.Stdout,
		showQR:   cfg.ShowQR && stdoutIsTerminal(),
		retry:    make(chan recovery, 1),
	}
	h.startFn = h.start
	return h
}

// Run initializes the client and keeps it alive until ctx is cancelled.
// Init failures retry on the init policy, dropped connections on the
// reconnect policy. It returns an error only when a bounded policy gives up.
func (h *Host) Run(ctx context.Context) error {
	defer h.shutdown()

	attempt := 0
	for {
		h.clearRecovery()

		kind := recoverInit
		if err := h.startFn(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			L_error("whatsapp: init failed", "error", err)
			h.notifier.Notify(session.Event{Kind: session.InitFailed, Reason: err.Error()})
		} else {
			select {
			case <-ctx.Done():
				return nil
			case kind = <-h.retry:
			}
			h.disconnect()
		}

		if h.authenticated.Swap(false) {
			attempt = 0
		}
		attempt++

		policy := h.cfg.InitPolicy
		if kind == recoverReconnect {
			policy = h.cfg.ReconnectPolicy
		}
		if !policy.Allow(attempt) {
			return fmt.Errorf("whatsapp: giving up after %d attempts", attempt-1)
		}

		MetricReconnectAttempt()
		L_info("whatsapp: retrying", "in", policy.Delay, "attempt", attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(policy.Delay):
		}
	}
}

// start opens the store on first use and connects a client for the first
// stored device, or a fresh one that must pair.
func (h *Host) start(ctx context.Context) error {
	container, err := h.store(ctx)
	if err != nil {
		return err
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(device, &waLogger{module: "client"})
	client.EnableAutoReconnect = false
	client.AddEventHandler(h.handleEvent)

	h.mu.Lock()
	h.client = client
	h.mu.Unlock()

	if client.Store.ID == nil {
		// QR channel must exist before Connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		L_info("whatsapp: no paired device, waiting for QR scan")
		go h.watchQR(qrChan)
		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	L_info("whatsapp: connecting", "jid", client.Store.ID)
	return nil
}

func (h *Host) store(ctx context.Context) (*sqlstore.Container, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.container != nil {
		return h.container, nil
	}
	db, container, err := openStore(ctx, h.cfg.DBPath, &waLogger{module: "store"})
	if err != nil {
		return nil, err
	}
	h.db = db
	h.container = container
	return container, nil
}

func (h *Host) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			L_info("whatsapp: pairing code issued")
			h.notifier.Notify(session.Event{Kind: session.PairingIssued, Code: item.Code})
			if h.showQR {
				renderQR(h.out, item.Code)
			}
		case "success":
			L_info("whatsapp: scan accepted, completing initial sync")
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			L_warn("whatsapp: pairing ended", "reason", reason)
			h.notifier.Notify(session.Event{Kind: session.InitFailed, Reason: "pairing " + reason})
			h.signal(recoverInit)
		}
	}
}

// handleEvent is the whatsmeow event handler
func (h *Host) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		h.authenticated.Store(true)
		L_info("whatsapp: connected", "jid", h.JID())
		h.notifier.Notify(session.Event{Kind: session.Authenticated})
	case *events.LoggedOut:
		L_error("whatsapp: logged out, device will re-pair", "reason", v.Reason)
		h.forgetDevice()
		h.notifier.Notify(session.Event{Kind: session.AuthFailed, Reason: fmt.Sprint(v.Reason)})
		h.signal(recoverReconnect)
	case *events.Disconnected:
		L_warn("whatsapp: disconnected from server")
		h.notifier.Notify(session.Event{Kind: session.Disconnected})
		h.signal(recoverReconnect)
	}
}

// forgetDevice deletes the stored device so the next init pairs again.
func (h *Host) forgetDevice() {
	client := h.currentClient()
	if client == nil || client.Store == nil || client.Store.ID == nil {
		return
	}
	if err := client.Store.Delete(context.Background()); err != nil {
		L_warn("whatsapp: failed to delete device", "error", err)
	}
}

// signal requests a recovery cycle; pending requests coalesce.
func (h *Host) signal(kind recovery) {
	select {
	case h.retry <- kind:
	default:
	}
}

func (h *Host) clearRecovery() {
	select {
	case <-h.retry:
	default:
	}
}

func (h *Host) currentClient() *whatsmeow.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// JID returns the paired account, or "" before pairing.
func (h *Host) JID() string {
	client := h.currentClient()
	if client == nil || client.Store == nil || client.Store.ID == nil {
		return ""
	}
	return client.Store.ID.String()
}

// SendText implements messenger.Transport.
func (h *Host) SendText(ctx context.Context, chatID, body string) (messenger.Receipt, error) {
	client := h.currentClient()
	if client == nil || !client.IsConnected() {
		return messenger.Receipt{}, ErrNotConnected
	}

	jid, err := ParseChatID(chatID)
	if err != nil {
		return messenger.Receipt{}, err
	}

	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return messenger.Receipt{}, fmt.Errorf("whatsapp: send failed: %w", err)
	}
	return messenger.Receipt{ID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (h *Host) disconnect() {
	h.mu.Lock()
	client := h.client
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

func (h *Host) shutdown() {
	h.disconnect()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			L_warn("whatsapp: failed to close store", "error", err)
		}
		h.db = nil
		h.container = nil
	}
	L_debug("whatsapp: stopped")
}
