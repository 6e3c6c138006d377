package hub

// ConnectionState is the lifecycle state of the hub connection. Only the
// Manager moves it.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// StateChange is delivered to OnStateChange subscribers on every transition
type StateChange struct {
	Old ConnectionState
	New ConnectionState
}
