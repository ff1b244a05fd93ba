package realtime

import (
	"log/slog"
	"sync"
	"time"
)

const degradedThreshold = 3

// HeartbeatLedger is a snapshot of the liveness signals observed on a
// connection. consecutiveFailures resets on any successful signal.
type HeartbeatLedger struct {
	LastOutboundPingAt      time.Time
	LastInboundPongAt       time.Time
	LastInboundServerPingAt time.Time
	ConsecutiveFailures     int
}

// heartbeatMonitor tracks both liveness variants: server-initiated pings
// that the client answers, and client-initiated pings whose pongs prove the
// server alive. Neither direction is assumed; servers have used both.
// Stale heartbeats are advisory only and never force a disconnect.
type heartbeatMonitor struct {
	mu     sync.Mutex
	ledger HeartbeatLedger

	interval     time.Duration // staleness check period
	threshold    time.Duration // max age of a server ping before a check fails
	grace        time.Duration // delay before passive listening starts
	pingInterval time.Duration // 0 disables the client-driven ping loop

	sendPong   func() error
	sendPing   func() error
	onDegraded func(failures int)
	logger     *slog.Logger

	graceTimer *time.Timer
	stopCh     chan struct{}
	running    bool
}

// start arms passive listening after the grace period. Safe to call only
// from the client with its mutex held; idempotent.
func (h *heartbeatMonitor) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.ledger = HeartbeatLedger{}
	h.stopCh = make(chan struct{})
	stopCh := h.stopCh
	h.graceTimer = time.AfterFunc(h.grace, func() { h.run(stopCh) })
}

// stop cancels the grace timer and staleness loop synchronously.
func (h *heartbeatMonitor) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	if h.graceTimer != nil {
		h.graceTimer.Stop()
		h.graceTimer = nil
	}
	close(h.stopCh)
}

func (h *heartbeatMonitor) run(stopCh chan struct{}) {
	check := time.NewTicker(h.interval)
	defer check.Stop()

	var ping <-chan time.Time
	if h.pingInterval > 0 {
		pinger := time.NewTicker(h.pingInterval)
		defer pinger.Stop()
		ping = pinger.C
	}

	for {
		select {
		case <-stopCh:
			return
		case <-check.C:
			h.checkStaleness(time.Now())
		case <-ping:
			h.emitPing()
		}
	}
}

// observeServerPing answers a server liveness probe. The pong is written
// before the caller issues the next read, so exactly one pong is sent per
// ping, in order.
func (h *heartbeatMonitor) observeServerPing() {
	if err := h.sendPong(); err != nil {
		h.logger.Warn("pong send failed", "error", err)
	}
	h.mu.Lock()
	h.ledger.LastInboundServerPingAt = time.Now()
	h.ledger.ConsecutiveFailures = 0
	h.mu.Unlock()
}

func (h *heartbeatMonitor) observePong() {
	h.mu.Lock()
	h.ledger.LastInboundPongAt = time.Now()
	h.ledger.ConsecutiveFailures = 0
	h.mu.Unlock()
}

func (h *heartbeatMonitor) emitPing() {
	if err := h.sendPing(); err != nil {
		h.logger.Warn("ping send failed", "error", err)
		return
	}
	h.mu.Lock()
	h.ledger.LastOutboundPingAt = time.Now()
	h.mu.Unlock()
}

func (h *heartbeatMonitor) checkStaleness(now time.Time) {
	h.mu.Lock()
	last := h.ledger.LastInboundServerPingAt
	if !last.IsZero() && now.Sub(last) < h.threshold {
		h.mu.Unlock()
		return
	}
	h.ledger.ConsecutiveFailures++
	failures := h.ledger.ConsecutiveFailures
	h.mu.Unlock()

	if failures >= degradedThreshold && h.onDegraded != nil {
		h.onDegraded(failures)
	}
}

func (h *heartbeatMonitor) snapshot() HeartbeatLedger {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger
}
