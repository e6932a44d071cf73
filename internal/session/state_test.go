package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		ev   EventKind
		want State
	}{
		{"pairing reissue", Pairing, PairingIssued, Pairing},
		{"pairing to ready", Pairing, Authenticated, Ready},
		{"degraded to ready", Degraded, Authenticated, Ready},
		{"ready stays ready", Ready, Authenticated, Ready},
		{"ready auth failure", Ready, AuthFailed, Degraded},
		{"ready disconnect", Ready, Disconnected, Degraded},
		{"pairing disconnect", Pairing, Disconnected, Degraded},
		{"degraded repeated failure", Degraded, InitFailed, Degraded},
		{"pairing init failure", Pairing, InitFailed, Degraded},
		{"ready ignores init failure", Ready, InitFailed, Ready},
		{"degraded repairs", Degraded, PairingIssued, Pairing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.from, Event{Kind: tt.ev}))
		})
	}
}

func TestSessionStartsPairing(t *testing.T) {
	s := New()
	assert.Equal(t, Pairing, s.State())
	assert.False(t, s.Ready())
	assert.False(t, s.Snapshot().PairingAvailable)
	assert.Empty(t, s.Snapshot().LastEvent)
}

func TestSessionPairingCodeLifecycle(t *testing.T) {
	s := New()

	s.Apply(Event{Kind: PairingIssued, Code: "first"})
	assert.True(t, s.Snapshot().PairingAvailable)

	c := s.Apply(Event{Kind: PairingIssued, Code: "second"})
	assert.False(t, c.Changed())
	assert.True(t, s.Snapshot().PairingAvailable)

	c = s.Apply(Event{Kind: Authenticated})
	assert.True(t, c.Entered(Ready))
	assert.False(t, s.Snapshot().PairingAvailable)
	assert.True(t, s.Snapshot().Ready)
}

func TestSessionEnteredReadyOncePerTransition(t *testing.T) {
	s := New()

	entries := 0
	for _, ev := range []EventKind{Authenticated, Authenticated, Disconnected, InitFailed, Authenticated, Authenticated} {
		if s.Apply(Event{Kind: ev}).Entered(Ready) {
			entries++
		}
	}
	assert.Equal(t, 2, entries)
}

func TestSessionSinceMovesOnlyOnChange(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	s.now = func() time.Time { return tick }

	tick = base.Add(time.Minute)
	s.Apply(Event{Kind: Authenticated})
	require.Equal(t, tick, s.Snapshot().Since)

	tick = base.Add(2 * time.Minute)
	s.Apply(Event{Kind: Authenticated})
	assert.Equal(t, base.Add(time.Minute), s.Snapshot().Since)

	s.Apply(Event{Kind: Disconnected, Reason: "stream error"})
	snap := s.Snapshot()
	assert.Equal(t, tick, snap.Since)
	assert.Equal(t, Degraded, snap.State)
	assert.Equal(t, "disconnected", snap.LastEvent)
	assert.Equal(t, "stream error", snap.Reason)
}

func TestRetryPolicy(t *testing.T) {
	unbounded := RetryPolicy{Delay: time.Second}
	assert.True(t, unbounded.Allow(1_000_000))

	capped := RetryPolicy{Delay: time.Second, MaxAttempts: 3}
	assert.True(t, capped.Allow(3))
	assert.False(t, capped.Allow(4))
}

func TestStateText(t *testing.T) {
	b, err := Degraded.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "degraded", string(b))
	assert.Equal(t, "state(9)", State(9).String())
}
