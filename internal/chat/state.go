package chat

// State is the connection state of a Manager.
type State int32

const (
	StateNone       State = iota // doing nothing
	StateListening               // waiting for an inbound connection
	StateConnecting              // an outbound connection attempt is in flight
	StateConnected               // a session with a peer is live
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
