package realtime

// ConnectionState is the externally visible lifecycle state of a client.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// HandshakeState tracks progress through the protocol handshake. A client
// is never StateConnected unless the handshake is HandshakeReady.
type HandshakeState int

const (
	HandshakeNotStarted HandshakeState = iota
	HandshakeAwaitingSession
	HandshakeAwaitingNamespaceAck
	HandshakeReady
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeNotStarted:
		return "not_started"
	case HandshakeAwaitingSession:
		return "awaiting_session"
	case HandshakeAwaitingNamespaceAck:
		return "awaiting_namespace_ack"
	case HandshakeReady:
		return "ready"
	default:
		return "unknown"
	}
}

// StateEvent is delivered to state observers on every ConnectionState
// transition. Err is non-nil only when New is StateError.
type StateEvent struct {
	Old ConnectionState
	New ConnectionState
	Err error
}
