// Package messenger owns the session host's sending side: the lifecycle
// state, the outbox of messages waiting for the session, and the single
// path through which every message reaches the transport.
//
// Lifecycle events are applied by one goroutine (Run). Live sends hold the
// gate shared; event handling holds it exclusively, so a drain on entering
// Ready always completes before any fresh send is attempted and queued
// messages go out in submission order ahead of new ones.
package messenger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roelfdiedericks/wamcp/internal/bus"
	. "github.com/roelfdiedericks/wamcp/internal/logging"
	. "github.com/roelfdiedericks/wamcp/internal/metrics"
	"github.com/roelfdiedericks/wamcp/internal/outbox"
	"github.com/roelfdiedericks/wamcp/internal/phone"
	"github.com/roelfdiedericks/wamcp/internal/session"
	"github.com/roelfdiedericks/wamcp/internal/tools"
)

// Caller-facing not-ready messages.
const (
	NotReadyMessage = "WhatsApp connecting... Please scan QR code first and wait for ready message."
	QueuedMessage   = "WhatsApp not ready. Message queued and will be sent once connected."
)

// DefaultSendTimeout bounds one transport send. It stays under the gateway's
// proxy timeout so a send held behind a drain still answers the gateway.
const DefaultSendTimeout = 15 * time.Second

const eventBuffer = 64

// Receipt identifies a message accepted by the transport.
type Receipt struct {
	ID        string
	Timestamp time.Time
}

// Transport delivers a text message to a chat identifier ("<digits>@c.us").
type Transport interface {
	SendText(ctx context.Context, chatID, body string) (Receipt, error)
}

// Config controls send behavior.
type Config struct {
	// QueueOnNotReady queues sends while the session is not ready instead of
	// rejecting them.
	QueueOnNotReady bool
	CountryCode     string
	// DrainRetryLimit is how many drains a failed queued message may go
	// through before it is dropped. 0 drops on the first failure.
	DrainRetryLimit int
	SendTimeout     time.Duration
	// Format rewrites outbound bodies, e.g. markdown to WhatsApp markup.
	Format func(string) string
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Requeued int `json:"requeued"`
}

// Messenger serializes lifecycle handling against sends.
type Messenger struct {
	transport Transport
	sess      *session.Session
	queue     *outbox.Queue
	events    chan session.Event

	gate sync.RWMutex

	queueOnNotReady atomic.Bool
	countryCode     string
	retryLimit      int
	sendTimeout     time.Duration
	format          func(string) string
}

// New creates a messenger in the Pairing state with an empty outbox.
func New(transport Transport, cfg Config) *Messenger {
	m := &Messenger{
		transport:   transport,
		sess:        session.New(),
		queue:       outbox.New(),
		events:      make(chan session.Event, eventBuffer),
		countryCode: cfg.CountryCode,
		retryLimit:  cfg.DrainRetryLimit,
		sendTimeout: cfg.SendTimeout,
		format:      cfg.Format,
	}
	if m.sendTimeout <= 0 {
		m.sendTimeout = DefaultSendTimeout
	}
	m.queueOnNotReady.Store(cfg.QueueOnNotReady)
	return m
}

// SetQueueOnNotReady switches between queuing and rejecting not-ready sends.
func (m *Messenger) SetQueueOnNotReady(v bool) {
	if m.queueOnNotReady.Swap(v) != v {
		L_info("messenger: queue_on_not_ready changed", "value", v)
	}
}

// QueueOnNotReady reports the current not-ready policy.
func (m *Messenger) QueueOnNotReady() bool {
	return m.queueOnNotReady.Load()
}

// Snapshot returns the current lifecycle snapshot.
func (m *Messenger) Snapshot() session.Snapshot {
	return m.sess.Snapshot()
}

// SessionStatus reports readiness for the status tools.
func (m *Messenger) SessionStatus() tools.SessionStatus {
	snap := m.sess.Snapshot()
	return tools.SessionStatus{
		State:            snap.State.String(),
		Ready:            snap.Ready,
		PairingAvailable: snap.PairingAvailable,
		Queued:           m.queue.Len(),
		OldestQueued:     m.queue.Oldest(),
	}
}

// SendMessage sends now if the session is ready. Otherwise the message is
// queued or rejected, depending on the not-ready policy.
func (m *Messenger) SendMessage(ctx context.Context, phoneNumber, message string) tools.Result {
	m.gate.RLock()
	defer m.gate.RUnlock()

	if !m.sess.Ready() {
		if m.queueOnNotReady.Load() {
			msg, pos := m.queue.Enqueue(phoneNumber, message)
			MetricOutboxDepth(m.queue.Len())
			L_info("messenger: session not ready, message queued", "id", msg.ID, "position", pos)
			return tools.Fail(QueuedMessage).
				With("queued", true).
				With("message_id", msg.ID).
				With("queue_position", pos)
		}
		L_debug("messenger: session not ready, send rejected", "state", m.sess.State())
		return tools.Fail(NotReadyMessage).With("qr_required", true)
	}

	return m.deliver(ctx, phoneNumber, message)
}

// deliver is the one send path for live and drained messages. Sends are not
// cancelled by the caller going away; only the send timeout bounds them.
func (m *Messenger) deliver(ctx context.Context, recipient, body string) tools.Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.sendTimeout)
	defer cancel()

	chatID := phone.ChatID(recipient, m.countryCode)
	to := phone.StripSuffix(chatID)
	if m.format != nil {
		body = m.format(body)
	}

	start := time.Now()
	receipt, err := m.transport.SendText(ctx, chatID, body)
	if err != nil {
		L_error("messenger: send failed", "to", to, "error", err)
		return tools.FailErr(err)
	}
	L_elapsed(start, "messenger: message sent", "to", to, "id", receipt.ID)

	return tools.OK(map[string]any{
		"messageId": receipt.ID,
		"to":        to,
		"timestamp": receipt.Timestamp.Unix(),
		"message":   fmt.Sprintf("REAL WhatsApp sent to %s successfully!", to),
	})
}

// Notify hands a lifecycle event to Run. Transports call this from their
// own callbacks; it blocks only if Run has fallen far behind.
func (m *Messenger) Notify(ev session.Event) {
	m.events <- ev
}

// Run applies lifecycle events until ctx is done.
func (m *Messenger) Run(ctx context.Context) error {
	L_debug("messenger: lifecycle loop started")
	for {
		select {
		case <-ctx.Done():
			L_debug("messenger: lifecycle loop stopped")
			return ctx.Err()
		case ev := <-m.events:
			m.Handle(ctx, ev)
		}
	}
}

// Handle applies ev and, on entering Ready, drains the outbox before any
// waiting send proceeds. Run is the only production caller.
func (m *Messenger) Handle(ctx context.Context, ev session.Event) session.Change {
	change, report := m.apply(ctx, ev)

	if change.Changed() || ev.Kind == session.PairingIssued {
		bus.PublishEventWithSource(bus.TopicSessionState, m.sess.Snapshot(), "messenger")
	}
	if report != nil {
		bus.PublishEventWithSource(bus.TopicOutboxDrained, *report, "messenger")
	}
	return change
}

func (m *Messenger) apply(ctx context.Context, ev session.Event) (session.Change, *DrainReport) {
	m.gate.Lock()
	defer m.gate.Unlock()

	change := m.sess.Apply(ev)
	if change.Changed() {
		L_info("messenger: session state changed", "from", change.From, "to", change.To, "event", ev.Kind, "reason", ev.Reason)
		MetricTransition(change.From.String(), change.To.String(), int(change.To))
	} else {
		L_debug("messenger: session event", "state", change.To, "event", ev.Kind)
	}

	if !change.Entered(session.Ready) {
		return change, nil
	}
	report := m.drain(ctx)
	return change, &report
}

// drain delivers every queued message in FIFO order and leaves the outbox
// empty, apart from failures still inside their retry allowance.
// The caller holds the gate exclusively.
func (m *Messenger) drain(ctx context.Context) DrainReport {
	var report DrainReport

	items := m.queue.TakeAll()
	if len(items) == 0 {
		return report
	}
	L_info("messenger: draining outbox", "count", len(items))

	for _, msg := range items {
		res := m.deliver(ctx, msg.Recipient, msg.Body)
		if res.Success {
			report.Sent++
			MetricDrained(OutcomeSuccess)
			continue
		}

		msg.Attempts++
		if m.retryLimit > 0 && msg.Attempts <= m.retryLimit {
			m.queue.Requeue(msg)
			report.Requeued++
			MetricDrained("requeued")
			L_warn("messenger: queued message failed, kept for next drain", "id", msg.ID, "attempts", msg.Attempts, "error", res.Error)
			continue
		}
		report.Failed++
		MetricDrained(OutcomeFailure)
		L_warn("messenger: queued message dropped", "id", msg.ID, "attempts", msg.Attempts, "error", res.Error)
	}

	MetricOutboxDepth(m.queue.Len())
	L_info("messenger: outbox drained", "sent", report.Sent, "failed", report.Failed, "requeued", report.Requeued)
	return report
}
