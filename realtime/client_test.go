package realtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldhunt/gamelink/realtime/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	inbound chan string
	errCh   chan error
	done    chan struct{}
	closed  bool
	dialErr error
	dials   int
	sent    chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan string, 16),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
		sent:    make(chan string, 16),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	return t.dialErr
}

func (t *fakeTransport) SendText(data string) error {
	select {
	case t.sent <- data:
		return nil
	case <-t.done:
		return errors.New("not connected")
	}
}

func (t *fakeTransport) ReceiveText() (string, error) {
	select {
	case s := <-t.inbound:
		return s, nil
	case err := <-t.errCh:
		return "", err
	case <-t.done:
		return "", errors.New("use of closed connection")
	}
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

func (t *fakeTransport) feed(raw string) { t.inbound <- raw }

func (t *fakeTransport) breakConn(err error) { t.errCh <- err }

type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeTransport
}

func (f *fakeFactory) new(string) transport.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := newFakeTransport()
	f.conns = append(f.conns, ft)
	return ft
}

func (f *fakeFactory) conn(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func waitSent(t *testing.T, ft *fakeTransport) string {
	t.Helper()
	select {
	case s := <-ft.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return ""
	}
}

func waitState(t *testing.T, c *Client, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

func newTestClient(t *testing.T, factory *fakeFactory, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithTransport(factory.new),
		WithHandshakeTimeout(2 * time.Second),
		WithReconnectDelay(time.Hour),
		WithHeartbeatGrace(time.Hour),
	}
	c := New("http://game.test", append(base, opts...)...)
	t.Cleanup(c.Disconnect)
	return c
}

// completeHandshake feeds the open frame and namespace ack, draining the
// outbound namespace request and register_device frames.
func completeHandshake(t *testing.T, c *Client, ft *fakeTransport) {
	t.Helper()
	ft.feed(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)
	if got := waitSent(t, ft); got != "40" {
		t.Fatalf("expected namespace request, got %q", got)
	}
	ft.feed("40")
	if got := waitSent(t, ft); !strings.HasPrefix(got, `42["register_device",`) {
		t.Fatalf("expected register_device, got %q", got)
	}
	waitState(t, c, StateConnected)
}

func TestHandshakeReachesConnectedExactlyOnce(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	var mu sync.Mutex
	connected := 0
	c.OnStateChange(func(ev StateEvent) {
		if ev.New == StateConnected {
			mu.Lock()
			connected++
			mu.Unlock()
		}
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := factory.conn(0)
	completeHandshake(t, c, ft)

	if c.HandshakeState() != HandshakeReady {
		t.Fatalf("handshake = %s", c.HandshakeState())
	}

	// A duplicate ack must not re-trigger the ready transition.
	ft.feed("40")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if connected != 1 {
		t.Fatalf("connected transitions = %d, want 1", connected)
	}
}

func TestLegacyConnectedSentinelCompletesHandshake(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := factory.conn(0)
	ft.feed(`0{"sid":"s1"}`)
	if got := waitSent(t, ft); got != "40" {
		t.Fatalf("expected namespace request, got %q", got)
	}
	ft.feed(`42["connected",{}]`)
	waitState(t, c, StateConnected)
}

func TestServerPingAnsweredBeforeNextFrame(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := factory.conn(0)
	completeHandshake(t, c, ft)

	pongFirst := make(chan bool, 1)
	c.On(EventGameModeChanged, func(any) {
		// The pong for the preceding ping must already be on the wire.
		select {
		case frame := <-ft.sent:
			pongFirst <- frame == "3"
		default:
			pongFirst <- false
		}
	})

	ft.feed("2")
	ft.feed(`42["game_mode_changed",{"game_mode":"night"}]`)

	select {
	case ok := <-pongFirst:
		if !ok {
			t.Fatal("pong was not sent before the next frame was processed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event handler never ran")
	}

	if c.Heartbeat().LastInboundServerPingAt.IsZero() {
		t.Fatal("server ping not recorded in ledger")
	}
}

func TestConnectIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("second Connect while connecting: %v", err)
	}

	ft := factory.conn(0)
	completeHandshake(t, c, ft)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect while connected: %v", err)
	}

	factory.mu.Lock()
	conns := len(factory.conns)
	factory.mu.Unlock()
	if conns != 1 {
		t.Fatalf("transports created = %d, want 1", conns)
	}
	if ft.dials != 1 {
		t.Fatalf("dials = %d, want 1", ft.dials)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	// Disconnect before any connect is a no-op.
	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s", c.State())
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	completeHandshake(t, c, factory.conn(0))

	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Fatalf("state = %s", c.State())
	}
	if c.HandshakeState() != HandshakeNotStarted {
		t.Fatalf("handshake = %s", c.HandshakeState())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handshakeTimer != nil || c.reconnectTimer != nil {
		t.Fatal("timers still armed after Disconnect")
	}
}

func TestHandshakeTimeout(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory, WithHandshakeTimeout(40*time.Millisecond))

	var mu sync.Mutex
	errTransitions := 0
	c.OnStateChange(func(ev StateEvent) {
		if ev.New == StateError {
			mu.Lock()
			errTransitions++
			mu.Unlock()
		}
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitState(t, c, StateError)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if errTransitions != 1 {
		mu.Unlock()
		t.Fatalf("error transitions = %d, want 1", errTransitions)
	}
	mu.Unlock()

	if !errors.Is(c.LastError(), &LinkError{Code: ErrCodeTimeout}) {
		t.Fatalf("LastError = %v, want timeout", c.LastError())
	}

	c.mu.Lock()
	armed := c.reconnectTimer != nil
	c.mu.Unlock()
	if !armed {
		t.Fatal("reconnection not scheduled after handshake timeout")
	}
}

func TestTransportErrorTriggersReconnect(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory, WithReconnectDelay(30*time.Millisecond))

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	completeHandshake(t, c, factory.conn(0))

	factory.conn(0).breakConn(io.ErrUnexpectedEOF)
	waitState(t, c, StateError)

	if c.LastError() == nil {
		t.Fatal("LastError is nil after transport failure")
	}

	// The reconnect timer dials a fresh transport; complete that handshake.
	deadline := time.Now().Add(2 * time.Second)
	for factory.conn(1) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ft2 := factory.conn(1)
	if ft2 == nil {
		t.Fatal("no reconnect attempt observed")
	}
	completeHandshake(t, c, ft2)
}

func TestEmitRejectedBeforeReady(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Emit("x", map[string]string{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit while disconnected: %v", err)
	}

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Emit("x", map[string]string{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit while connecting: %v", err)
	}
}

func TestAdminDiagnosticPingAnswered(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := factory.conn(0)
	completeHandshake(t, c, ft)

	ft.feed(`42["admin_diagnostic_ping",{"ping_id":"p1","admin_session_id":"s9"}]`)

	got := waitSent(t, ft)
	if !strings.HasPrefix(got, `42["client_diagnostic_pong",`) {
		t.Fatalf("expected client_diagnostic_pong, got %q", got)
	}
	if !strings.Contains(got, `"ping_id":"p1"`) || !strings.Contains(got, `"admin_session_id":"s9"`) {
		t.Fatalf("pong missing correlation fields: %q", got)
	}
}

func TestMalformedEventFrameIsHarmless(t *testing.T) {
	factory := &fakeFactory{}
	c := newTestClient(t, factory)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := factory.conn(0)
	completeHandshake(t, c, ft)

	invoked := false
	c.On(EventObjectCollected, func(any) { invoked = true })

	ft.feed(`42[`)
	ft.feed("garbage frame")
	time.Sleep(50 * time.Millisecond)

	if c.State() != StateConnected {
		t.Fatalf("state changed to %s on malformed frames", c.State())
	}
	if invoked {
		t.Fatal("handler invoked for malformed frame")
	}
}

func TestBadBaseURLFailsFast(t *testing.T) {
	factory := &fakeFactory{}

	for _, base := range []string{"://missing-scheme", "ftp://game.test", "http://"} {
		c := New(base,
			WithTransport(factory.new),
			WithReconnectDelay(time.Hour),
		)
		err := c.Connect()
		if err == nil {
			t.Fatalf("Connect(%q) succeeded", base)
		}
		if !errors.Is(err, &LinkError{Code: ErrCodeBadURL}) {
			t.Fatalf("Connect(%q) error = %v, want bad_url", base, err)
		}
		if c.State() != StateError {
			t.Fatalf("state = %s, want error", c.State())
		}

		c.mu.Lock()
		armed := c.reconnectTimer != nil
		c.mu.Unlock()
		if armed {
			t.Fatal("reconnect scheduled for an unfixable URL")
		}
		c.Disconnect()
	}
}

func TestDeriveWebsocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://game.test", "ws://game.test/socket.io/?EIO=4&transport=websocket", false},
		{"https://game.test", "wss://game.test/socket.io/?EIO=4&transport=websocket", false},
		{"http://game.test:8080", "ws://game.test:8080/socket.io/?EIO=4&transport=websocket", false},
		{"ws://game.test", "ws://game.test/socket.io/?EIO=4&transport=websocket", false},
		{"wss://game.test:3000/old/path", "wss://game.test:3000/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://game.test", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		got, err := deriveWebsocketURL(tt.base)
		if (err != nil) != tt.wantErr {
			t.Fatalf("deriveWebsocketURL(%q) err = %v, wantErr %v", tt.base, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("deriveWebsocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
