package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/roelfdiedericks/wamcp/internal/session"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []session.Event
}

func (n *recordingNotifier) Notify(ev session.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []session.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]session.EventKind, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"bold", "this is **important**", "this is *important*"},
		{"strike", "~~old~~ new", "~old~ new"},
		{"header", "## Tasks\nitem", "*Tasks*\nitem"},
		{"link", "see [docs](https://x.io)", "see docs (https://x.io)"},
		{"image", "![logo](https://x.io/a.png)", "https://x.io/a.png"},
		{"html", "<b>hi</b>", "hi"},
		{"blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"italic untouched", "_quiet_", "_quiet_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMessage(tt.in))
		})
	}
}

func TestParseChatID(t *testing.T) {
	jid, err := ParseChatID("923001234567@c.us")
	require.NoError(t, err)
	assert.Equal(t, "923001234567", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	jid, err = ParseChatID("923001234567")
	require.NoError(t, err)
	assert.Equal(t, "923001234567", jid.User)

	for _, bad := range []string{"", "@c.us", "abc@c.us", "92 300@c.us"} {
		_, err := ParseChatID(bad)
		assert.Error(t, err, bad)
	}
}

func TestHandleEventTranslatesLifecycle(t *testing.T) {
	n := &recordingNotifier{}
	h := NewHost(Config{}, n)

	h.handleEvent(&events.Connected{})
	assert.True(t, h.authenticated.Load())

	h.handleEvent(&events.Disconnected{})
	assert.Equal(t, recoverReconnect, <-h.retry)

	h.handleEvent(&events.LoggedOut{})
	assert.Equal(t, recoverReconnect, <-h.retry)

	h.handleEvent(&events.Message{})

	assert.Equal(t, []session.EventKind{
		session.Authenticated,
		session.Disconnected,
		session.AuthFailed,
	}, n.kinds())
}

func TestRecoverySignalsCoalesce(t *testing.T) {
	h := NewHost(Config{}, &recordingNotifier{})
	h.signal(recoverInit)
	h.signal(recoverReconnect)

	assert.Equal(t, recoverInit, <-h.retry)
	select {
	case k := <-h.retry:
		t.Fatalf("unexpected second signal %v", k)
	default:
	}
}

func TestNewHostAppliesDefaultPolicies(t *testing.T) {
	h := NewHost(Config{}, &recordingNotifier{})
	assert.Equal(t, session.DefaultInitPolicy.Delay, h.cfg.InitPolicy.Delay)
	assert.Equal(t, session.DefaultReconnectPolicy.Delay, h.cfg.ReconnectPolicy.Delay)
	assert.Empty(t, h.JID())
}

// unopenableDB returns a store path whose parent cannot be created.
func unopenableDB(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	return filepath.Join(blocker, "sub", "whatsapp.db")
}

func TestRunGivesUpOnBoundedInitPolicy(t *testing.T) {
	n := &recordingNotifier{}
	h := NewHost(Config{
		DBPath:          unopenableDB(t),
		InitPolicy:      session.RetryPolicy{Delay: time.Millisecond, MaxAttempts: 2},
		ReconnectPolicy: session.RetryPolicy{Delay: time.Millisecond},
	}, n)

	err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
	assert.Equal(t, []session.EventKind{
		session.InitFailed,
		session.InitFailed,
		session.InitFailed,
	}, n.kinds())
}

func TestRunReturnsNilWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var kinds []session.EventKind
	h := NewHost(Config{
		DBPath:     unopenableDB(t),
		InitPolicy: session.RetryPolicy{Delay: time.Hour},
	}, NotifierFunc(func(ev session.Event) {
		kinds = append(kinds, ev.Kind)
		cancel()
	}))

	assert.NoError(t, h.Run(ctx))
	assert.Equal(t, []session.EventKind{session.InitFailed}, kinds)
}

func TestRunUsesReconnectPolicyAfterDisconnect(t *testing.T) {
	h := NewHost(Config{
		InitPolicy:      session.RetryPolicy{Delay: time.Millisecond, MaxAttempts: 1},
		ReconnectPolicy: session.RetryPolicy{Delay: time.Millisecond, MaxAttempts: 3},
	}, &recordingNotifier{})

	starts := 0
	h.startFn = func(context.Context) error {
		starts++
		h.signal(recoverReconnect)
		return nil
	}

	err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 4, starts)
}

func TestRunResetsAttemptsAfterAuthentication(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHost(Config{
		ReconnectPolicy: session.RetryPolicy{Delay: time.Millisecond, MaxAttempts: 2},
	}, &recordingNotifier{})

	starts := 0
	h.startFn = func(ctx context.Context) error {
		starts++
		if starts == 5 {
			cancel()
			return errors.New("stopped")
		}
		h.handleEvent(&events.Connected{})
		h.handleEvent(&events.Disconnected{})
		return nil
	}

	assert.NoError(t, h.Run(ctx))
	assert.Equal(t, 5, starts)
}

func TestSendTextWithoutClient(t *testing.T) {
	h := NewHost(Config{}, &recordingNotifier{})
	_, err := h.SendText(context.Background(), "923001234567@c.us", "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDeviceStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "whatsapp.db")
	var out bytes.Buffer

	require.NoError(t, DeviceStatus(context.Background(), dbPath, &out))
	assert.Contains(t, out.String(), "Not paired (no session database)")

	db, _, err := openStore(context.Background(), dbPath, &waLogger{module: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out.Reset()
	require.NoError(t, DeviceStatus(context.Background(), dbPath, &out))
	assert.Contains(t, out.String(), "Run 'wamcp whatsapp link'")

	err = UnlinkDevice(context.Background(), dbPath, &out)
	assert.EqualError(t, err, "no paired devices found")
}
