// Package diag probes game-server reachability with throwaway connections.
// Probes run the same handshake recognition logic as the live client but
// never touch the primary client's state; they are safe to run while a
// primary connection is up.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldhunt/gamelink/realtime"
)

const tracerName = "github.com/fieldhunt/gamelink/diag"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// Result reports the outcome of a single-connection probe.
type Result struct {
	Connected        bool
	HandshakeLatency time.Duration
	PongObserved     bool
	Err              error
}

// Prober runs non-invasive connectivity checks.
type Prober struct {
	logger   *slog.Logger
	timeout  time.Duration
	pongWait time.Duration
}

type Option func(*Prober)

func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.timeout = d
	}
}

func NewProber(opts ...Option) *Prober {
	p := &Prober{
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		pongWait: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe opens a throwaway connection to baseURL, runs it through the
// handshake, and observes one pong. The connection is torn down before
// Probe returns.
func (p *Prober) Probe(ctx context.Context, baseURL string) Result {
	_, span := tracer().Start(ctx, "diag.Probe")
	span.SetAttributes(attribute.String("base_url", baseURL))
	defer span.End()

	client := realtime.New(baseURL,
		realtime.WithLogger(p.logger),
		realtime.WithHandshakeTimeout(p.timeout),
		// Probes are one-shot; push any reconnect far past the timeout.
		realtime.WithReconnectDelay(24*time.Hour),
	)
	defer client.Disconnect()

	connected := make(chan error, 1)
	client.OnStateChange(func(ev realtime.StateEvent) {
		switch ev.New {
		case realtime.StateConnected:
			select {
			case connected <- nil:
			default:
			}
		case realtime.StateError:
			select {
			case connected <- ev.Err:
			default:
			}
		}
	})

	start := time.Now()
	if err := client.Connect(); err != nil {
		span.RecordError(err)
		return Result{Err: err}
	}

	select {
	case err := <-connected:
		if err != nil {
			span.RecordError(err)
			return Result{Err: err}
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-time.After(p.timeout + time.Second):
		return Result{Err: fmt.Errorf("no handshake outcome within %s", p.timeout)}
	}

	result := Result{
		Connected:        true,
		HandshakeLatency: time.Since(start),
	}
	span.SetAttributes(attribute.Int64("handshake_latency_ms", result.HandshakeLatency.Milliseconds()))

	result.PongObserved = p.observePong(client)
	span.SetAttributes(attribute.Bool("pong_observed", result.PongObserved))
	return result
}

// observePong emits one ping and watches the ledger for any inbound
// liveness signal within the pong window.
func (p *Prober) observePong(client *realtime.Client) bool {
	if err := client.Ping(); err != nil {
		return false
	}
	deadline := time.Now().Add(p.pongWait)
	for time.Now().Before(deadline) {
		ledger := client.Heartbeat()
		if !ledger.LastInboundPongAt.IsZero() || !ledger.LastInboundServerPingAt.IsZero() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return false
}
