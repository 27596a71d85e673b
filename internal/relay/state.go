package relay

// State is the connection lifecycle state of the stream client. Exactly
// one instance exists per session and only the client transitions it.
type State int

const (
	StateIdle State = iota
	StateValidatingCredentials
	StateConnecting
	StateAwaitingReady
	StateStreaming
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidatingCredentials:
		return "validating_credentials"
	case StateConnecting:
		return "connecting"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session: Closed is the
// user-initiated terminal state, Failed the error terminal state.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
