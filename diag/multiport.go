package diag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// PortOutcome is the result of probing one candidate port.
type PortOutcome struct {
	Port             int
	Connected        bool
	HandshakeLatency time.Duration
	Err              error
}

// MultiPortResult reports a scan across candidate ports. Exactly one winner
// is reported even when several ports would accept the handshake: the first
// to complete wins, the rest land in Failures.
type MultiPortResult struct {
	WinnerPort int // 0 when no port completed the handshake
	Winner     *PortOutcome
	Failures   []PortOutcome
}

// ErrNoWorkingPort is returned in MultiPortResult terms as WinnerPort==0;
// callers wanting an error can use it.
var ErrNoWorkingPort = errors.New("no candidate port completed the handshake")

// ScanPorts probes every candidate port concurrently, each over its own
// throwaway connection with a short timeout. Ties are broken by completion
// order.
func (p *Prober) ScanPorts(ctx context.Context, host string, ports []int, useTLS bool) MultiPortResult {
	ctx, span := tracer().Start(ctx, "diag.ScanPorts")
	span.SetAttributes(
		attribute.String("host", host),
		attribute.IntSlice("ports", ports),
	)
	defer span.End()

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	prober := &Prober{
		logger:   p.logger,
		timeout:  3 * time.Second,
		pongWait: p.pongWait,
	}

	type scanOutcome struct {
		port   int
		result Result
	}
	outcomes := make(chan scanOutcome, len(ports))
	for _, port := range ports {
		go func(port int) {
			url := fmt.Sprintf("%s://%s:%d", scheme, host, port)
			outcomes <- scanOutcome{port: port, result: prober.Probe(ctx, url)}
		}(port)
	}

	var result MultiPortResult
	for range ports {
		o := <-outcomes
		po := PortOutcome{
			Port:             o.port,
			Connected:        o.result.Connected,
			HandshakeLatency: o.result.HandshakeLatency,
			Err:              o.result.Err,
		}
		if po.Connected && result.Winner == nil {
			result.WinnerPort = o.port
			result.Winner = &po
			span.SetAttributes(attribute.Int("winner_port", o.port))
			continue
		}
		result.Failures = append(result.Failures, po)
	}

	if result.Winner == nil {
		span.RecordError(ErrNoWorkingPort)
	}
	return result
}
