package iot

// State is the messaging session state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// EventType is a transport lifecycle signal or an inbound message.
type EventType int

const (
	// EventAttemptingConnect: the transport started dialling the broker.
	EventAttemptingConnect EventType = iota
	// EventConnectionSuccess: the broker accepted the session.
	EventConnectionSuccess
	// EventConnectionFailure: the dial or handshake failed.
	EventConnectionFailure
	// EventDisconnection: an established connection went away.
	EventDisconnection
	// EventStopped: the transport has fully stopped.
	EventStopped
	// EventMessage: an inbound publish.
	EventMessage

	// eventStopRequested is raised locally by Disconnect.
	eventStopRequested
)

// String returns the event name for logging.
func (e EventType) String() string {
	switch e {
	case EventAttemptingConnect:
		return "attempting_connect"
	case EventConnectionSuccess:
		return "connection_success"
	case EventConnectionFailure:
		return "connection_failure"
	case EventDisconnection:
		return "disconnection"
	case EventStopped:
		return "stopped"
	case EventMessage:
		return "message"
	case eventStopRequested:
		return "stop_requested"
	default:
		return "unknown"
	}
}

// Event is one signal from the transport.
type Event struct {
	Type    EventType
	Topic   string
	Payload []byte
	Err     error
}

// transition is the session state machine. Failure and disconnection drop
// straight to Disconnected; there is no reconnecting state.
func transition(s State, ev EventType) State {
	switch ev {
	case EventAttemptingConnect:
		if s == StateDisconnected {
			return StateConnecting
		}
	case EventConnectionSuccess:
		if s == StateConnecting {
			return StateConnected
		}
	case EventConnectionFailure, EventDisconnection, EventStopped:
		return StateDisconnected
	case eventStopRequested:
		if s == StateConnecting || s == StateConnected {
			return StateDisconnecting
		}
	}
	return s
}

// lostConnection reports whether moving from prev on ev is an unplanned loss
// of an established session.
func lostConnection(prev State, ev EventType) bool {
	return prev == StateConnected && (ev == EventConnectionFailure || ev == EventDisconnection || ev == EventStopped)
}
