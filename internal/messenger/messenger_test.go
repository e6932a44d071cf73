package messenger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/wamcp/internal/proxy"
	"github.com/roelfdiedericks/wamcp/internal/session"
)

type sent struct {
	chatID string
	body   string
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[string]bool
	block chan struct{} // if set, the first send waits on it
	began chan struct{}
}

func (f *fakeTransport) SendText(_ context.Context, chatID, body string) (Receipt, error) {
	f.mu.Lock()
	first := len(f.sent) == 0
	f.sent = append(f.sent, sent{chatID, body})
	block := f.block
	f.mu.Unlock()

	if first && block != nil {
		close(f.began)
		<-block
	}
	if f.fail[body] {
		return Receipt{}, errors.New("send failed")
	}
	return Receipt{ID: "3EB0" + body, Timestamp: time.Unix(1700000000, 0)}, nil
}

func (f *fakeTransport) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.body)
	}
	return out
}

var authenticated = session.Event{Kind: session.Authenticated}

func TestSendWhileReady(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, Config{})
	m.Handle(context.Background(), authenticated)

	res := m.SendMessage(context.Background(), "300 1234567", "hello")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "923001234567", res.Get("to"))
	assert.Equal(t, "3EB0hello", res.Get("messageId"))
	assert.Equal(t, int64(1700000000), res.Get("timestamp"))
	assert.Equal(t, "REAL WhatsApp sent to 923001234567 successfully!", res.Get("message"))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "923001234567@c.us", tr.sent[0].chatID)
}

func TestSendTimeoutUnderProxyTimeout(t *testing.T) {
	assert.Less(t, New(nil, Config{}).sendTimeout, proxy.DefaultTimeout)
	assert.Equal(t, time.Second, New(nil, Config{SendTimeout: time.Second}).sendTimeout)
}

func TestSendNotReadyQueues(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, Config{QueueOnNotReady: true})

	res := m.SendMessage(context.Background(), "3001234567", "hi")
	assert.False(t, res.Success)
	assert.True(t, res.Bool("queued"))
	assert.Equal(t, QueuedMessage, res.Error)
	assert.Equal(t, 1, res.Get("queue_position"))
	assert.Equal(t, 1, m.queue.Len())
	assert.Empty(t, tr.bodies())
}

func TestSendNotReadyRejects(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, Config{QueueOnNotReady: false})

	res := m.SendMessage(context.Background(), "3001234567", "hi")
	assert.False(t, res.Success)
	assert.True(t, res.Bool("qr_required"))
	assert.False(t, res.Bool("queued"))
	assert.Equal(t, NotReadyMessage, res.Error)
	assert.Equal(t, 0, m.queue.Len())
	assert.Empty(t, tr.bodies())
}

func TestQueuePolicyCanChangeLive(t *testing.T) {
	m := New(&fakeTransport{}, Config{QueueOnNotReady: true})
	m.SetQueueOnNotReady(false)
	assert.False(t, m.QueueOnNotReady())

	res := m.SendMessage(context.Background(), "3001234567", "hi")
	assert.True(t, res.Bool("qr_required"))
}

func TestDrainOnReadyInOrder(t *testing.T) {
	tr := &fakeTransport{fail: map[string]bool{"B": true}}
	m := New(tr, Config{QueueOnNotReady: true})
	ctx := context.Background()

	for _, body := range []string{"A", "B", "C"} {
		m.SendMessage(ctx, "3001234567", body)
	}
	require.Equal(t, 3, m.queue.Len())

	change := m.Handle(ctx, authenticated)
	assert.True(t, change.Entered(session.Ready))
	assert.Equal(t, []string{"A", "B", "C"}, tr.bodies())
	assert.Equal(t, 0, m.queue.Len())
}

func TestDrainOncePerReadyTransition(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, Config{QueueOnNotReady: true})
	ctx := context.Background()

	m.Handle(ctx, authenticated)
	m.queue.Enqueue("3001234567", "late")

	// Ready -> Ready is not a transition into Ready.
	change := m.Handle(ctx, authenticated)
	assert.False(t, change.Changed())
	assert.Empty(t, tr.bodies())
	assert.Equal(t, 1, m.queue.Len())

	m.Handle(ctx, session.Event{Kind: session.Disconnected})
	m.Handle(ctx, authenticated)
	assert.Equal(t, []string{"late"}, tr.bodies())
	assert.Equal(t, 0, m.queue.Len())
}

func TestDrainRetryLimit(t *testing.T) {
	tr := &fakeTransport{fail: map[string]bool{"X": true}}
	m := New(tr, Config{QueueOnNotReady: true, DrainRetryLimit: 1})
	ctx := context.Background()

	m.SendMessage(ctx, "3001234567", "X")
	m.Handle(ctx, authenticated)

	require.Equal(t, 1, m.queue.Len())
	assert.Equal(t, []string{"X"}, tr.bodies())

	m.Handle(ctx, session.Event{Kind: session.Disconnected})
	m.Handle(ctx, authenticated)
	assert.Equal(t, 0, m.queue.Len())
	assert.Equal(t, []string{"X", "X"}, tr.bodies())
}

func TestFreshSendWaitsForDrain(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), began: make(chan struct{})}
	m := New(tr, Config{QueueOnNotReady: true})
	ctx := context.Background()

	m.SendMessage(ctx, "3001234567", "A")
	m.SendMessage(ctx, "3001234567", "B")

	drained := make(chan struct{})
	go func() {
		m.Handle(ctx, authenticated)
		close(drained)
	}()
	<-tr.began

	fresh := make(chan bool)
	go func() {
		fresh <- m.SendMessage(ctx, "3001234567", "Z").Success
	}()

	close(tr.block)
	<-drained
	assert.True(t, <-fresh)
	assert.Equal(t, []string{"A", "B", "Z"}, tr.bodies())
}

func TestRunAppliesNotifiedEvents(t *testing.T) {
	m := New(&fakeTransport{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.Notify(session.Event{Kind: session.PairingIssued, Code: "2@abc"})
	require.Eventually(t, func() bool { return m.SessionStatus().PairingAvailable }, time.Second, 5*time.Millisecond)

	m.Notify(authenticated)
	require.Eventually(t, func() bool { return m.SessionStatus().Ready }, time.Second, 5*time.Millisecond)
	assert.False(t, m.SessionStatus().PairingAvailable)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFormatApplied(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, Config{Format: func(s string) string { return "*" + s + "*" }})
	m.Handle(context.Background(), authenticated)
	m.SendMessage(context.Background(), "923001234567", "bold")
	assert.Equal(t, []string{"*bold*"}, tr.bodies())
}
