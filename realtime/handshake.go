package realtime

// handshakeAction is what the connection manager must do after the machine
// consumes a frame.
type handshakeAction int

const (
	hsNone handshakeAction = iota
	hsSendNamespaceRequest
	hsReady
)

// handshakeMachine drives the connection through setup. Transitions:
//
//	NotStarted -> AwaitingSession            on begin()
//	AwaitingSession -> AwaitingNamespaceAck  on an open frame
//	AwaitingNamespaceAck -> Ready            on a namespace ack, or on the
//	                                         legacy "connected" event some
//	                                         older servers emit instead
//
// Ready is terminal until reset(). The machine itself holds no locks; the
// client serializes access.
type handshakeMachine struct {
	state   HandshakeState
	session *SessionInfo
}

func (m *handshakeMachine) begin() {
	m.state = HandshakeAwaitingSession
	m.session = nil
}

func (m *handshakeMachine) reset() {
	m.state = HandshakeNotStarted
	m.session = nil
}

func (m *handshakeMachine) observe(f Frame) handshakeAction {
	switch m.state {
	case HandshakeAwaitingSession:
		if f.Kind == FrameOpen {
			m.state = HandshakeAwaitingNamespaceAck
			m.session = f.Session
			return hsSendNamespaceRequest
		}

	case HandshakeAwaitingNamespaceAck:
		if f.Kind == FrameNamespaceAck {
			m.state = HandshakeReady
			return hsReady
		}
		if f.Kind == FrameEvent && f.Event == EventConnected {
			m.state = HandshakeReady
			return hsReady
		}
	}

	return hsNone
}
