package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fieldhunt/gamelink/debug"

	"github.com/gorilla/websocket"
)

// Transport is the minimal text-frame connection the realtime client
// drives. Implemented by WebSocketTransport; faked in tests.
type Transport interface {
	Connect(ctx context.Context) error
	SendText(data string) error
	ReceiveText() (string, error)
	Close() error
}

type WebSocketTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	url          string
	dialer       *websocket.Dialer
	headers      http.Header
	connected    bool
	writeTimeout time.Duration
	dialTimeout  time.Duration
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithDialTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.dialTimeout = timeout
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
		dialTimeout:  10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	debug.Printf("WebSocketTransport: connecting to %s", t.url)

	dialer := *t.dialer
	dialer.HandshakeTimeout = t.dialTimeout

	conn, _, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		debug.Printf("WebSocketTransport: connection failed: %v", err)
		return err
	}

	t.conn = conn
	t.connected = true

	return nil
}

func (t *WebSocketTransport) SendText(data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return errors.New("not connected")
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}

	debug.Printf("WebSocketTransport: sending frame: %s", data)
	err := t.conn.WriteMessage(websocket.TextMessage, []byte(data))
	if err != nil {
		debug.Printf("WebSocketTransport: send error: %v", err)
	}
	return err
}

func (t *WebSocketTransport) ReceiveText() (string, error) {
	t.mu.Lock()
	if !t.connected || t.conn == nil {
		t.mu.Unlock()
		return "", errors.New("not connected")
	}
	conn := t.conn
	t.mu.Unlock()

	_, message, err := conn.ReadMessage()
	if err != nil {
		debug.Printf("WebSocketTransport: read error: %v", err)
		return "", err
	}

	debug.Printf("WebSocketTransport: received frame: %s", string(message))
	return string(message), nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return nil
	}

	debug.Printf("WebSocketTransport: closing connection")

	err := t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		debug.Printf("WebSocketTransport: error sending close message: %v", err)
	}

	err = t.conn.Close()
	if err != nil {
		debug.Printf("WebSocketTransport: error closing connection: %v", err)
	}

	t.connected = false
	t.conn = nil

	return err
}
