package realtime

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldhunt/gamelink/metrics"
	"github.com/fieldhunt/gamelink/realtime/transport"
)

const (
	handshakePath  = "/socket.io/"
	handshakeQuery = "EIO=4&transport=websocket"
)

// Client keeps a device synchronized with the game server over a single
// websocket connection. One long-lived instance is constructed per device
// and shared by reference with collaborators.
//
// All state transitions are serialized: frames are processed in arrival
// order by a single receive loop (one read in flight), and timer callbacks
// take the same mutex before touching state.
type Client struct {
	baseURL    string
	deviceUUID string
	logger     *slog.Logger
	met        *metrics.Metrics

	handshakeTimeout time.Duration
	reconnectDelay   time.Duration

	newTransport func(wsURL string) transport.Transport

	dispatcher *Dispatcher
	heartbeat  *heartbeatMonitor

	mu             sync.Mutex
	state          ConnectionState
	lastErr        error
	hs             handshakeMachine
	conn           transport.Transport
	gen            uint64 // bumped on every teardown; stale callbacks bail
	handshakeTimer *time.Timer
	reconnectTimer *time.Timer
	observers      []func(StateEvent)
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.met = m
	}
}

// WithDeviceUUID overrides the generated device identity sent in
// register_device.
func WithDeviceUUID(id string) Option {
	return func(c *Client) {
		c.deviceUUID = id
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// WithHeartbeatInterval sets both the staleness check period and the age
// threshold a server ping must beat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) {
		c.heartbeat.interval = d
		c.heartbeat.threshold = d
	}
}

func WithHeartbeatGrace(d time.Duration) Option {
	return func(c *Client) {
		c.heartbeat.grace = d
	}
}

// WithClientPing arms the client-driven heartbeat variant: an outbound ping
// frame every interval, whose pong replies feed the same ledger. Servers
// have used both directions over time, so neither path is dropped.
func WithClientPing(interval time.Duration) Option {
	return func(c *Client) {
		c.heartbeat.pingInterval = interval
	}
}

// WithTransport swaps the transport constructor. Used by tests and by the
// diagnostics CLI to inject headers and dial timeouts.
func WithTransport(factory func(wsURL string) transport.Transport) Option {
	return func(c *Client) {
		c.newTransport = factory
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:          baseURL,
		deviceUUID:       uuid.NewString(),
		logger:           slog.Default(),
		handshakeTimeout: 30 * time.Second,
		reconnectDelay:   5 * time.Second,
		newTransport: func(wsURL string) transport.Transport {
			return transport.NewWebSocketTransport(wsURL)
		},
	}
	c.heartbeat = &heartbeatMonitor{
		interval:  60 * time.Second,
		threshold: 60 * time.Second,
		grace:     2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.dispatcher = newDispatcher(c.logger)
	c.dispatcher.dropped = func(string) { c.met.ObserveEventDropped() }
	c.heartbeat.logger = c.logger
	c.heartbeat.sendPong = func() error { return c.sendRaw(EncodePong()) }
	c.heartbeat.sendPing = func() error { return c.sendRaw(EncodePing()) }
	c.heartbeat.onDegraded = func(failures int) {
		c.logger.Warn("connection degraded: no recent heartbeat", "consecutive_failures", failures)
		c.met.ObserveHeartbeatDegraded()
	}

	// Admin diagnostic pings are answered before user handlers see them.
	c.dispatcher.On(EventAdminPing, func(v any) {
		ping, ok := v.(AdminDiagnosticPing)
		if !ok {
			return
		}
		pong := ClientDiagnosticPong{
			PingID:          ping.PingID,
			ClientTimestamp: time.Now().UTC().Format(time.RFC3339),
			AdminSessionID:  ping.AdminSessionID,
		}
		if err := c.Emit(EventClientPong, pong); err != nil {
			c.logger.Warn("diagnostic pong send failed", "error", err)
		}
	})

	return c
}

// DeviceUUID returns the identity announced in register_device.
func (c *Client) DeviceUUID() string { return c.deviceUUID }

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) HandshakeState() HandshakeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hs.state
}

// LastError returns the cause of the most recent StateError transition.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Heartbeat returns a snapshot of the liveness ledger.
func (c *Client) Heartbeat() HeartbeatLedger {
	return c.heartbeat.snapshot()
}

// OnStateChange registers an observer notified on every ConnectionState
// transition.
func (c *Client) OnStateChange(fn func(StateEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// On registers a handler for a named application event. Catalog events are
// delivered as their typed record; others as json.RawMessage.
func (c *Client) On(event string, handler func(any)) {
	c.dispatcher.On(event, handler)
}

// Off removes all handlers for an event name.
func (c *Client) Off(event string) {
	c.dispatcher.Off(event)
}

// Connect establishes the websocket and begins the handshake. It is
// idempotent: calls while already connecting or connected are no-ops.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	wsURL, err := deriveWebsocketURL(c.baseURL)
	if err != nil {
		le := newLinkError(ErrCodeBadURL, "base URL could not be converted to a websocket endpoint", err)
		c.lastErr = le
		ev := c.transitionLocked(StateError, le)
		c.mu.Unlock()
		c.notify(ev)
		return le
	}

	ev := c.transitionLocked(StateConnecting, nil)
	c.hs.begin()
	c.gen++
	gen := c.gen
	conn := c.newTransport(wsURL)
	c.conn = conn
	c.armHandshakeTimerLocked(gen)
	c.mu.Unlock()
	c.notify(ev)

	if err := conn.Connect(context.Background()); err != nil {
		le := classifyTransportErr(err)
		c.fail(gen, le)
		return le
	}

	// Disconnect may have run while the dial was in flight.
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		_ = conn.Close()
		return nil
	}

	go c.receiveLoop(conn, gen)
	return nil
}

// Disconnect tears the connection down completely: every timer is stopped
// and the socket closed before it returns. Idempotent and safe to call from
// within error handlers.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopHandshakeTimerLocked()
	c.stopReconnectTimerLocked()
	conn := c.conn
	c.conn = nil
	c.hs.reset()
	c.lastErr = nil
	ev := c.transitionLocked(StateDisconnected, nil)
	c.mu.Unlock()

	c.heartbeat.stop()
	if conn != nil {
		_ = conn.Close()
	}
	c.notify(ev)
}

// Emit sends a named application event. Sends are rejected until the
// handshake is complete; there is no outbound queue.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	raw, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return conn.SendText(raw)
}

// Ping emits one client-initiated heartbeat probe. The reply, if any,
// lands in the heartbeat ledger.
func (c *Client) Ping() error {
	return c.sendRaw(EncodePing())
}

func (c *Client) sendRaw(raw string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendText(raw)
}

// receiveLoop issues one read at a time so frames are handled strictly in
// arrival order. It exits when the connection generation it was started for
// is torn down.
func (c *Client) receiveLoop(conn transport.Transport, gen uint64) {
	for {
		raw, err := conn.ReceiveText()
		if err != nil {
			// A close the client initiated itself shows up as a stale
			// generation inside fail and is ignored. Anything else,
			// including a server-sent normal close, is a transport error.
			c.fail(gen, classifyTransportErr(err))
			return
		}
		if !c.handleFrame(conn, raw, gen) {
			return
		}
	}
}

// handleFrame processes one inbound frame. Returns false when the loop
// should stop because its connection has been superseded.
func (c *Client) handleFrame(conn transport.Transport, raw string, gen uint64) bool {
	frame := ParseFrame(raw)
	c.met.ObserveFrame(frame.Kind.String())

	switch frame.Kind {
	case FramePing:
		// Answer before the next read so exactly one pong is sent per ping.
		c.heartbeat.observeServerPing()
		return true

	case FramePong:
		c.heartbeat.observePong()
		return true

	case FrameUnknown:
		c.logger.Debug("unrecognized frame", "raw", truncateForLog(raw))
		return true
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}

	switch c.hs.observe(frame) {
	case hsSendNamespaceRequest:
		c.mu.Unlock()
		if err := conn.SendText(EncodeNamespaceAckRequest()); err != nil {
			c.fail(gen, classifyTransportErr(err))
			return false
		}
		return true

	case hsReady:
		c.stopHandshakeTimerLocked()
		c.stopReconnectTimerLocked()
		ev := c.transitionLocked(StateConnected, nil)
		c.mu.Unlock()

		c.met.ObserveConnect()
		c.notify(ev)
		c.heartbeat.start()
		if err := c.Emit(EventRegisterDevice, RegisterDevice{DeviceUUID: c.deviceUUID}); err != nil {
			c.logger.Warn("register_device send failed", "error", err)
		}
		return true
	}

	ready := c.hs.state == HandshakeReady
	c.mu.Unlock()

	if frame.Kind == FrameEvent && ready {
		c.met.ObserveEventDispatched(frame.Event)
		c.dispatcher.Dispatch(frame.Event, frame.Payload)
	}
	return true
}

// fail moves the client to StateError with a cause-specific message, tears
// the connection down and arms a single reconnect attempt. Stale
// generations (already torn down or superseded) are ignored.
func (c *Client) fail(gen uint64, le *LinkError) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stopHandshakeTimerLocked()
	conn := c.conn
	c.conn = nil
	c.hs.reset()
	c.lastErr = le
	ev := c.transitionLocked(StateError, le)
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.heartbeat.stop()
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Error("connection failed", "error", le)
	c.notify(ev)
}

// transitionLocked mutates ConnectionState and returns the observer event.
// Callers notify after releasing the mutex.
func (c *Client) transitionLocked(next ConnectionState, err error) StateEvent {
	old := c.state
	c.state = next
	c.met.SetConnectionState(int(next))
	return StateEvent{Old: old, New: next, Err: err}
}

func (c *Client) notify(ev StateEvent) {
	if ev.Old == ev.New {
		return
	}
	c.mu.Lock()
	observers := make([]func(StateEvent), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

func (c *Client) armHandshakeTimerLocked(gen uint64) {
	c.stopHandshakeTimerLocked()
	c.handshakeTimer = time.AfterFunc(c.handshakeTimeout, func() {
		c.mu.Lock()
		stale := c.gen != gen || c.hs.state == HandshakeReady
		c.mu.Unlock()
		if stale {
			return
		}
		c.fail(gen, newLinkError(ErrCodeTimeout, "handshake timed out", nil))
	})
}

func (c *Client) stopHandshakeTimerLocked() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
}

// scheduleReconnectLocked arms the single-shot reconnect timer. Re-arming
// replaces the previous timer; at most one is ever pending.
func (c *Client) scheduleReconnectLocked() {
	c.stopReconnectTimerLocked()
	c.met.ObserveReconnectScheduled()
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		if err := c.Connect(); err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
		}
	})
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// deriveWebsocketURL rewrites the configured base URL to the websocket
// handshake endpoint: http(s) becomes ws(s) and the fixed path and query
// are appended.
func deriveWebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", newLinkError(ErrCodeBadURL, "unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" {
		return "", newLinkError(ErrCodeBadURL, "base URL has no host", nil)
	}
	u.Path = handshakePath
	u.RawQuery = handshakeQuery
	return u.String(), nil
}

func truncateForLog(raw string) string {
	if len(raw) > 128 {
		return raw[:128] + "..."
	}
	return raw
}
