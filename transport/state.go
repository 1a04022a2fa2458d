package transport

// State is the lifecycle of a channel. The zero value is StateDisconnected.
//
//	disconnected -> connecting -> connected
//	connecting|connected -> disconnecting -> disconnected
//
// A channel that has gone back to StateDisconnected is terminal.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

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

func (s State) IsConnecting() bool { return s == StateConnecting }

// IsActive reports whether s is connecting or connected.
func (s State) IsActive() bool { return s == StateConnecting || s == StateConnected }

// IsClosing reports whether s is disconnecting or disconnected.
func (s State) IsClosing() bool { return s == StateDisconnecting || s == StateDisconnected }
