package client

// ConnectionState is the lifecycle state of the single server connection.
type ConnectionState int

const (
	// StateDisconnected means no transport is open or being opened.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the transport is open and auth was sent.
	StateConnected
	// StateErrored is entered on a transport failure and immediately
	// collapses into StateDisconnected.
	StateErrored
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event drives the connection state machine.
type Event int

const (
	EventConnect Event = iota
	EventOpen
	EventClose
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Transition returns the state reached by applying e to s. ok is false for
// transitions the machine does not allow; s is returned unchanged then.
//
// Close covers both a transport close and an explicit disconnect.
func Transition(s ConnectionState, e Event) (next ConnectionState, ok bool) {
	switch e {
	case EventConnect:
		if s == StateDisconnected || s == StateErrored {
			return StateConnecting, true
		}
	case EventOpen:
		if s == StateConnecting {
			return StateConnected, true
		}
	case EventClose:
		return StateDisconnected, true
	case EventError:
		return StateErrored, true
	}
	return s, false
}

// StateChange is published to state subscribers on every transition.
type StateChange struct {
	From ConnectionState
	To   ConnectionState
	// Err is set when the change was caused by a transport failure.
	Err error
}
