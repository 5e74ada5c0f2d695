// Package connection implements the supervised realtime connection: a
// state machine over one Transport with visibility handling, heartbeat
// probing, and breaker-guarded reconnect with exponential backoff.
package connection

import "time"

// State connection state
type State int32

const (
	// StateDisconnected no transport, nothing in flight
	StateDisconnected State = iota

	// StateConnecting a dial attempt is in flight or scheduled
	StateConnecting

	// StateConnected the transport is open and healthy
	StateConnected

	// StateError the last attempt failed, or the connection is degraded
	StateError

	// StateSuspended hidden client with a stale transport kept for resume
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Status a point-in-time connection snapshot delivered to listeners
type Status struct {
	// State current state machine position
	State State

	// LastError the error behind the most recent Error transition
	LastError error

	// ReconnectAttempts consecutive failed connect attempts; zeroed on
	// every successful connect
	ReconnectAttempts int

	// Visible whether the client is foregrounded
	Visible bool

	// Epoch increments each time a new transport session is
	// established; subscribers use it to detect session replacement
	Epoch int64

	// LastTransition when this snapshot was produced
	LastTransition time.Time
}

// Listener receives status snapshots in registration order
type Listener func(Status)
