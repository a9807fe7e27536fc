package store

// State is the connectivity state of a Connector.
type State int32

// Connector states. The normal cycle is
// connecting -> ready -> error -> reconnecting -> ready.
// StateEnded is terminal.
const (
	StateConnecting State = iota
	StateReady
	StateError
	StateReconnecting
	StateEnded
)

// AllStates lists every state in declaration order.
var AllStates = []State{StateConnecting, StateReady, StateError, StateReconnecting, StateEnded}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Usable reports whether operations are permitted in this state.
func (s State) Usable() bool {
	return s == StateReady
}

// Terminal reports whether the connector will never leave this state.
func (s State) Terminal() bool {
	return s == StateEnded
}
