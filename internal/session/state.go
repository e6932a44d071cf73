// Package session tracks the lifecycle of the messaging client connection.
//
// The lifecycle is an explicit state machine: Transition is a pure function
// from (state, event) to the next state, and Session owns the single live
// instance for a process. Only lifecycle event handlers call Session.Apply;
// everything else reads through the accessors.
package session

import "fmt"

// State is the connection lifecycle state.
type State int

const (
	// Pairing: a pairing QR has been or will be issued. Sends are not allowed.
	Pairing State = iota
	// Ready: authenticated. Sends are allowed and the pairing code is cleared.
	Ready
	// Degraded: authentication lost or connection dropped. Recovery is scheduled.
	Degraded
)

func (s State) String() string {
	switch s {
	case Pairing:
		return "pairing"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State render as its name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventKind identifies a lifecycle event raised by the transport.
type EventKind int

const (
	// PairingIssued: a new pairing code was issued. Event.Code carries it.
	PairingIssued EventKind = iota
	// Authenticated: the transport confirmed the session.
	Authenticated
	// AuthFailed: the transport rejected the session (logged out, banned, ...).
	AuthFailed
	// Disconnected: the transport connection dropped.
	Disconnected
	// InitFailed: the initialization routine failed before connecting.
	InitFailed
)

func (k EventKind) String() string {
	switch k {
	case PairingIssued:
		return "pairing_issued"
	case Authenticated:
		return "authenticated"
	case AuthFailed:
		return "auth_failed"
	case Disconnected:
		return "disconnected"
	case InitFailed:
		return "init_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a lifecycle event. Code is only meaningful for PairingIssued;
// Reason is free-form detail for logs.
type Event struct {
	Kind   EventKind
	Code   string
	Reason string
}

// Transition returns the state that follows s when ev occurs.
//
//	PairingIssued:  any     -> Pairing
//	Authenticated:  any     -> Ready
//	AuthFailed:     any     -> Degraded
//	Disconnected:   any     -> Degraded
//	InitFailed:     Ready   -> Ready (cannot happen while connected; ignored)
//	                other   -> Degraded
func Transition(s State, ev Event) State {
	switch ev.Kind {
	case PairingIssued:
		return Pairing
	case Authenticated:
		return Ready
	case AuthFailed, Disconnected:
		return Degraded
	case InitFailed:
		if s == Ready {
			return Ready
		}
		return Degraded
	}
	return s
}

// Change describes the outcome of applying one event.
type Change struct {
	From  State
	To    State
	Event Event
}

// Changed reports whether the state itself moved.
func (c Change) Changed() bool {
	return c.From != c.To
}

// Entered reports whether this change moved the session into s from another state.
func (c Change) Entered(s State) bool {
	return c.From != s && c.To == s
}
