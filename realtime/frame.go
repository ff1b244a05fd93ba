package realtime

import (
	"encoding/json"
	"strings"
)

// FrameKind identifies the protocol-level type of a text frame. The wire
// format is a single-character Engine.IO packet type, optionally followed by
// a Socket.IO sub-type and a JSON body.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameOpen
	FramePing
	FramePong
	FrameNamespaceAck
	FrameEvent
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameNamespaceAck:
		return "namespace_ack"
	case FrameEvent:
		return "event"
	default:
		return "unknown"
	}
}

// SessionInfo is the metadata carried by the open frame. Only presence
// matters to the handshake; the fields are kept for diagnostics.
type SessionInfo struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// Frame is a decoded inbound text frame. Immutable once parsed.
type Frame struct {
	Kind    FrameKind
	Session *SessionInfo    // FrameOpen only
	SID     string          // FrameNamespaceAck, when the ack embeds one
	Event   string          // FrameEvent only
	Payload json.RawMessage // FrameEvent only
	Raw     string
}

const (
	prefixOpen      = "0{"
	rawPing         = "2"
	rawPong         = "3"
	rawNamespaceAck = "40"
	prefixEvent     = "42["
)

// ParseFrame classifies a raw text frame by its leading characters. Text
// that matches no recognized prefix comes back as FrameUnknown; parsing
// never fails outright.
func ParseFrame(raw string) Frame {
	f := Frame{Kind: FrameUnknown, Raw: raw}

	switch {
	case strings.HasPrefix(raw, prefixOpen):
		var info SessionInfo
		if err := json.Unmarshal([]byte(raw[1:]), &info); err != nil {
			return f
		}
		f.Kind = FrameOpen
		f.Session = &info

	case raw == rawPing:
		f.Kind = FramePing

	case raw == rawPong:
		f.Kind = FramePong

	case raw == rawNamespaceAck:
		f.Kind = FrameNamespaceAck

	case strings.HasPrefix(raw, rawNamespaceAck+"{"):
		f.Kind = FrameNamespaceAck
		// The embedded sid is informational; a malformed body does not
		// invalidate the ack.
		var body struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal([]byte(raw[2:]), &body); err == nil {
			f.SID = body.SID
		}

	case strings.HasPrefix(raw, prefixEvent):
		name, payload, ok := parseEventBody(raw[2:])
		if !ok {
			return f
		}
		f.Kind = FrameEvent
		f.Event = name
		f.Payload = payload
	}

	return f
}

// parseEventBody decodes the `[name, payload]` array of an event frame.
// The name must be a string and the payload an object; anything else is
// rejected so the frame falls back to FrameUnknown.
func parseEventBody(body string) (string, json.RawMessage, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil {
		return "", nil, false
	}
	if len(parts) < 2 {
		return "", nil, false
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, false
	}
	payload := parts[1]
	if len(payload) == 0 || payload[0] != '{' {
		return "", nil, false
	}
	return name, payload, true
}

// EncodePing returns the client-initiated heartbeat probe frame.
func EncodePing() string { return rawPing }

// EncodePong returns the response to a server heartbeat probe.
func EncodePong() string { return rawPong }

// EncodeNamespaceAckRequest returns the handshake-continuation frame that
// asks the server to join the default namespace.
func EncodeNamespaceAckRequest() string { return rawNamespaceAck }

// EncodeEvent serializes an application event as a `42[name,payload]`
// frame.
func EncodeEvent(name string, payload any) (string, error) {
	body, err := json.Marshal([2]any{name, payload})
	if err != nil {
		return "", err
	}
	return "42" + string(body), nil
}
