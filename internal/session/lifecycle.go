package session

import (
	"sync"
	"time"
)

// Snapshot is a read-only view of the session at a point in time.
type Snapshot struct {
	State            State     `json:"state"`
	Ready            bool      `json:"whatsapp_ready"`
	PairingAvailable bool      `json:"qr_available"`
	Since            time.Time `json:"since"`
	LastEvent        string    `json:"last_event,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}

// Session is the single lifecycle instance owned by a session host.
type Session struct {
	mu          sync.RWMutex
	state       State
	pairingCode string
	since       time.Time
	lastEvent   Event
	seen        bool

	now func() time.Time
}

// New returns a session in the initial Pairing state.
func New() *Session {
	return &Session{
		state: Pairing,
		since: time.Now(),
		now:   time.Now,
	}
}

// Apply runs ev through the state machine and records the result.
// Only lifecycle handlers may call this.
func (s *Session) Apply(ev Event) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	to := Transition(from, ev)

	switch {
	case ev.Kind == PairingIssued:
		// A fresh code replaces whatever was pending.
		s.pairingCode = ev.Code
	case to != Pairing:
		s.pairingCode = ""
	}

	if to != from {
		s.since = s.now()
	}
	s.state = to
	s.lastEvent = ev
	s.seen = true

	return Change{From: from, To: to, Event: ev}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether sends are currently permitted.
func (s *Session) Ready() bool {
	return s.State() == Ready
}

// Snapshot returns a consistent copy of the session fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:            s.state,
		Ready:            s.state == Ready,
		PairingAvailable: s.pairingCode != "",
		Since:            s.since,
	}
	if s.seen {
		snap.LastEvent = s.lastEvent.Kind.String()
		snap.Reason = s.lastEvent.Reason
	}
	return snap
}
